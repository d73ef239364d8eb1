package queryagg

import (
	"math/big"

	fr "github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	fr_bw6761 "github.com/consensys/gnark-crypto/ecc/bw6-761/fr"
	"github.com/consensys/gnark-crypto/ecc/bw6-761/fr/mimc"

	"github.com/zkrange/revelation/keyset"
)

// DigestLoBits is the bit width of the low digest limb. A BW6-761 field
// element (377 bits) does not fit in a single BLS12-377 scalar, so the
// digest crosses the proof boundary as digest mod 2^DigestLoBits and
// digest >> DigestLoBits; both halves fit comfortably.
const DigestLoBits = 190

// Digest commits to a multiset of raw mapping keys: the field sum of the
// per-key MiMC hash of the packed limbs, each limb hashed as one field
// element. Summation makes the digest independent of key order, and
// duplicate keys contribute multiple times.
//
// This is the host-side mirror of the in-circuit recomputation; the limb
// packing (keyset.Pack) and the per-limb encoding must stay bit-exact with
// it.
func Digest(keys [][]byte) (fr_bw6761.Element, error) {
	var digest fr_bw6761.Element
	hasher := mimc.NewMiMC()
	for _, key := range keys {
		mk, err := keyset.LeftPad(key)
		if err != nil {
			return fr_bw6761.Element{}, err
		}
		packed := mk.Pack()
		hasher.Reset()
		for _, limb := range packed {
			var el fr_bw6761.Element
			el.SetUint64(uint64(limb))
			b := el.Bytes()
			if _, err := hasher.Write(b[:]); err != nil {
				return fr_bw6761.Element{}, err
			}
		}
		var h fr_bw6761.Element
		h.SetBytes(hasher.Sum(nil))
		digest.Add(&digest, &h)
	}
	return digest, nil
}

// JoinDigest reassembles a digest from its two statement limbs. Inverse of
// SplitDigest.
func JoinDigest(lo, hi fr.Element) fr_bw6761.Element {
	v := hi.BigInt(new(big.Int))
	v.Lsh(v, DigestLoBits)
	v.Add(v, lo.BigInt(new(big.Int)))
	var d fr_bw6761.Element
	d.SetBigInt(v)
	return d
}

// SplitDigest splits a digest into the two limbs carried by the
// query-aggregation statement: the low DigestLoBits bits and the remaining
// high bits.
func SplitDigest(d fr_bw6761.Element) (lo, hi fr.Element) {
	v := d.BigInt(new(big.Int))
	mask := new(big.Int).Lsh(big.NewInt(1), DigestLoBits)
	mask.Sub(mask, big.NewInt(1))
	lo.SetBigInt(new(big.Int).And(v, mask))
	hi.SetBigInt(new(big.Int).Rsh(v, DigestLoBits))
	return lo, hi
}

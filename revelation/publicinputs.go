package revelation

import (
	"fmt"
	"math/big"

	"github.com/blang/semver/v4"
	fr_bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	fr "github.com/consensys/gnark-crypto/ecc/bw6-761/fr"

	"github.com/zkrange/revelation/blockdb"
	"github.com/zkrange/revelation/keyset"
	"github.com/zkrange/revelation/queryagg"
)

// LayoutVersion names the public-input layout below. The major component
// gates decoding; bump it on any reordering or resizing of the sequence.
var LayoutVersion = semver.MustParse("1.0.0")

// Imported inner field elements appear in the outer statement as fixed-size
// little-endian limb runs; widths follow the emulated parameters of the
// inner scalar field.
const (
	innerLimbs    = 4
	innerLimbBits = 64
)

// PublicInputs is the decoded outer statement: everything a downstream
// consumer of a revelation proof learns. Wire order is PackedKeys,
// Occupancy, QueryMinBlock, QueryMaxBlock, then the imported block-database
// and query-aggregation statements.
type PublicInputs struct {
	// PackedKeys is the padded, canonically ordered key set; only the
	// first Occupancy entries are meaningful.
	PackedKeys    []keyset.PackedKey
	Occupancy     uint64
	QueryMinBlock uint64
	QueryMaxBlock uint64
	// DB and Query are the statements of the two composed sub-proofs,
	// re-exposed verbatim by the outer statement.
	DB    blockdb.PublicInputs
	Query queryagg.PublicInputs
}

// NbPublicInputs returns the outer statement length, in field elements, for
// a given key capacity.
func NbPublicInputs(maxKeys int) int {
	return maxKeys*keyset.NumKeyLimbs + 3 + (blockdb.NbPublicInputs+queryagg.NbPublicInputs)*innerLimbs
}

// ParsePublicInputs decodes the statement out of a serialized revelation
// proof without verifying it; maxKeys must match the capacity the proof was
// generated with.
func ParsePublicInputs(data []byte, maxKeys int) (*PublicInputs, error) {
	_, pubw, err := decodeProof(data)
	if err != nil {
		return nil, err
	}
	vec, ok := pubw.Vector().(fr.Vector)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected witness field", ErrMalformedProof)
	}
	return parseVector(vec, maxKeys)
}

func parseVector(vec []fr.Element, maxKeys int) (*PublicInputs, error) {
	if want := NbPublicInputs(maxKeys); len(vec) != want {
		return nil, fmt.Errorf("%w: %d public inputs, want %d for capacity %d", ErrMalformedProof, len(vec), want, maxKeys)
	}
	out := &PublicInputs{PackedKeys: make([]keyset.PackedKey, maxKeys)}

	off := 0
	for i := range out.PackedKeys {
		for j := 0; j < keyset.NumKeyLimbs; j++ {
			limb, err := outerUint64(vec[off])
			if err != nil {
				return nil, fmt.Errorf("%w: key %d limb %d: %v", ErrMalformedProof, i, j, err)
			}
			if limb > (1<<32)-1 {
				return nil, fmt.Errorf("%w: key %d limb %d exceeds 32 bits", ErrMalformedProof, i, j)
			}
			out.PackedKeys[i][j] = uint32(limb)
			off++
		}
	}

	var err error
	if out.Occupancy, err = outerUint64(vec[off]); err != nil {
		return nil, fmt.Errorf("%w: occupancy: %v", ErrMalformedProof, err)
	}
	off++
	if out.QueryMinBlock, err = outerUint64(vec[off]); err != nil {
		return nil, fmt.Errorf("%w: min block: %v", ErrMalformedProof, err)
	}
	off++
	if out.QueryMaxBlock, err = outerUint64(vec[off]); err != nil {
		return nil, fmt.Errorf("%w: max block: %v", ErrMalformedProof, err)
	}
	off++

	dbVec, err := innerVector(vec[off:off+blockdb.NbPublicInputs*innerLimbs], blockdb.NbPublicInputs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}
	off += blockdb.NbPublicInputs * innerLimbs
	if out.DB, err = blockdb.FromVector(dbVec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}

	queryVec, err := innerVector(vec[off:off+queryagg.NbPublicInputs*innerLimbs], queryagg.NbPublicInputs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}
	if out.Query, err = queryagg.FromVector(queryVec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}
	return out, nil
}

// innerVector recomposes inner-field elements from their limb runs.
func innerVector(limbs []fr.Element, n int) ([]fr_bls12377.Element, error) {
	out := make([]fr_bls12377.Element, n)
	for i := range out {
		acc := new(big.Int)
		for j := innerLimbs - 1; j >= 0; j-- {
			limb, err := outerUint64(limbs[i*innerLimbs+j])
			if err != nil {
				return nil, fmt.Errorf("element %d limb %d: %w", i, j, err)
			}
			acc.Lsh(acc, innerLimbBits)
			acc.Or(acc, new(big.Int).SetUint64(limb))
		}
		if acc.Cmp(fr_bls12377.Modulus()) >= 0 {
			return nil, fmt.Errorf("element %d overflows the inner field", i)
		}
		out[i].SetBigInt(acc)
	}
	return out, nil
}

func outerUint64(el fr.Element) (uint64, error) {
	b := el.BigInt(new(big.Int))
	if !b.IsUint64() {
		return 0, fmt.Errorf("value %s exceeds 64 bits", b)
	}
	return b.Uint64(), nil
}

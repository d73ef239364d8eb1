// Package queryagg describes the statement claimed by a query-aggregation
// proof ("over blocks [blockNumber-blockRange, blockNumber] of the chain
// rooted at root, the mapping slot of the contract held, for the user, the
// set of keys committed to by digest") and the digest scheme shared with
// the revelation circuit.
//
// The layout is a fixed-order field sequence; the revelation circuit, the
// host-side builders and the downstream codec all depend on this exact
// order.
package queryagg

import (
	"fmt"
	"math/big"

	fr "github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	"github.com/consensys/gnark/std/algebra/native/sw_bls12377"
	"github.com/consensys/gnark/std/math/emulated"
	"github.com/ethereum/go-ethereum/common"

	fr_bw6761 "github.com/consensys/gnark-crypto/ecc/bw6-761/fr"
)

// Public-input slots, in wire order.
const (
	idxBlockNumber = iota
	idxBlockRange
	idxRoot
	idxContractAddress
	idxUserAddress
	idxMappingSlot
	idxLengthSlot
	idxDigestLo
	idxDigestHi

	// NbPublicInputs is the number of field elements the query-aggregation
	// proof exposes.
	NbPublicInputs = 9
)

// PublicInputs is the host-side view of a query-aggregation statement.
type PublicInputs struct {
	// BlockNumber is the last block covered by the query; BlockRange is the
	// number of blocks before it also covered, so the query spans
	// [BlockNumber-BlockRange, BlockNumber].
	BlockNumber uint64
	BlockRange  uint64
	// Root is the block-database root the aggregation ran against.
	Root            fr.Element
	ContractAddress common.Address
	UserAddress     common.Address
	MappingSlot     uint64
	LengthSlot      uint64
	// Digest commits to the multiset of mapping keys matched by the query.
	// It lives in the revelation circuit's native field and crosses the
	// proof boundary as two limbs; see SplitDigest.
	Digest fr_bw6761.Element
}

// Vector lays the statement out in wire order.
func (pi PublicInputs) Vector() []fr.Element {
	var out [NbPublicInputs]fr.Element
	out[idxBlockNumber].SetUint64(pi.BlockNumber)
	out[idxBlockRange].SetUint64(pi.BlockRange)
	out[idxRoot] = pi.Root
	out[idxContractAddress] = addressToScalar(pi.ContractAddress)
	out[idxUserAddress] = addressToScalar(pi.UserAddress)
	out[idxMappingSlot].SetUint64(pi.MappingSlot)
	out[idxLengthSlot].SetUint64(pi.LengthSlot)
	out[idxDigestLo], out[idxDigestHi] = SplitDigest(pi.Digest)
	return out[:]
}

// FromVector parses a wire-order field sequence back into a host-side
// statement. Inverse of Vector.
func FromVector(v []fr.Element) (PublicInputs, error) {
	if len(v) != NbPublicInputs {
		return PublicInputs{}, fmt.Errorf("queryagg: expected %d public inputs, got %d", NbPublicInputs, len(v))
	}
	var pi PublicInputs
	var err error
	if pi.BlockNumber, err = scalarUint64(v[idxBlockNumber]); err != nil {
		return PublicInputs{}, fmt.Errorf("queryagg: block number: %w", err)
	}
	if pi.BlockRange, err = scalarUint64(v[idxBlockRange]); err != nil {
		return PublicInputs{}, fmt.Errorf("queryagg: block range: %w", err)
	}
	pi.Root = v[idxRoot]
	if pi.ContractAddress, err = scalarToAddress(v[idxContractAddress]); err != nil {
		return PublicInputs{}, fmt.Errorf("queryagg: contract address: %w", err)
	}
	if pi.UserAddress, err = scalarToAddress(v[idxUserAddress]); err != nil {
		return PublicInputs{}, fmt.Errorf("queryagg: user address: %w", err)
	}
	if pi.MappingSlot, err = scalarUint64(v[idxMappingSlot]); err != nil {
		return PublicInputs{}, fmt.Errorf("queryagg: mapping slot: %w", err)
	}
	if pi.LengthSlot, err = scalarUint64(v[idxLengthSlot]); err != nil {
		return PublicInputs{}, fmt.Errorf("queryagg: length slot: %w", err)
	}
	pi.Digest = JoinDigest(v[idxDigestLo], v[idxDigestHi])
	return pi, nil
}

func scalarUint64(el fr.Element) (uint64, error) {
	b := el.BigInt(new(big.Int))
	if !b.IsUint64() {
		return 0, fmt.Errorf("value %s exceeds 64 bits", b)
	}
	return b.Uint64(), nil
}

func scalarToAddress(el fr.Element) (common.Address, error) {
	b := el.BigInt(new(big.Int))
	if b.BitLen() > common.AddressLength*8 {
		return common.Address{}, fmt.Errorf("value %s exceeds %d bits", b, common.AddressLength*8)
	}
	var a common.Address
	b.FillBytes(a[:])
	return a, nil
}

func addressToScalar(a common.Address) fr.Element {
	var el fr.Element
	el.SetBigInt(new(big.Int).SetBytes(a.Bytes()))
	return el
}

// Wires is the in-circuit view over the public inputs imported from a
// verified query-aggregation proof.
type Wires struct {
	pis []emulated.Element[sw_bls12377.ScalarField]
}

// WiresFrom checks the imported public-input count and wraps the wires.
func WiresFrom(pis []emulated.Element[sw_bls12377.ScalarField]) (Wires, error) {
	if len(pis) != NbPublicInputs {
		return Wires{}, fmt.Errorf("queryagg: expected %d public inputs, got %d", NbPublicInputs, len(pis))
	}
	return Wires{pis: pis}, nil
}

func (w Wires) BlockNumber() *emulated.Element[sw_bls12377.ScalarField] {
	return &w.pis[idxBlockNumber]
}

func (w Wires) BlockRange() *emulated.Element[sw_bls12377.ScalarField] {
	return &w.pis[idxBlockRange]
}

func (w Wires) Root() *emulated.Element[sw_bls12377.ScalarField] {
	return &w.pis[idxRoot]
}

func (w Wires) ContractAddress() *emulated.Element[sw_bls12377.ScalarField] {
	return &w.pis[idxContractAddress]
}

func (w Wires) UserAddress() *emulated.Element[sw_bls12377.ScalarField] {
	return &w.pis[idxUserAddress]
}

func (w Wires) MappingSlot() *emulated.Element[sw_bls12377.ScalarField] {
	return &w.pis[idxMappingSlot]
}

func (w Wires) LengthSlot() *emulated.Element[sw_bls12377.ScalarField] {
	return &w.pis[idxLengthSlot]
}

func (w Wires) DigestLo() *emulated.Element[sw_bls12377.ScalarField] {
	return &w.pis[idxDigestLo]
}

func (w Wires) DigestHi() *emulated.Element[sw_bls12377.ScalarField] {
	return &w.pis[idxDigestHi]
}

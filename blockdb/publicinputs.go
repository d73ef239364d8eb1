// Package blockdb describes the public-input layout of the block-database
// incremental proof: a chain of verified block roots and numbers, of which
// the revelation circuit imports the last root and the last block number.
//
// The layout is a fixed-order field sequence; the revelation circuit, the
// host-side builders and the downstream codec all depend on this exact
// order.
package blockdb

import (
	"fmt"
	"math/big"

	fr "github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	"github.com/consensys/gnark/std/algebra/native/sw_bls12377"
	"github.com/consensys/gnark/std/math/emulated"
)

// Public-input slots, in wire order.
const (
	idxInitialRoot = iota
	idxLastRoot
	idxInitialBlockNumber
	idxLastBlockNumber
	idxBlockHashLo
	idxBlockHashHi

	// NbPublicInputs is the number of field elements the block-database
	// proof exposes.
	NbPublicInputs = 6
)

// PublicInputs is the host-side view of a block-database statement.
type PublicInputs struct {
	InitialRoot        fr.Element
	LastRoot           fr.Element
	InitialBlockNumber uint64
	// LastBlockNumber is the number of the most recent block folded into
	// the database; the freshness check compares the queried range against
	// it.
	LastBlockNumber uint64
	// BlockHash is the hash of the last block, carried across the proof
	// boundary as two 128-bit halves of its big-endian integer form.
	BlockHash [32]byte
}

// Vector lays the statement out in wire order.
func (pi PublicInputs) Vector() []fr.Element {
	var out [NbPublicInputs]fr.Element
	out[idxInitialRoot] = pi.InitialRoot
	out[idxLastRoot] = pi.LastRoot
	out[idxInitialBlockNumber].SetUint64(pi.InitialBlockNumber)
	out[idxLastBlockNumber].SetUint64(pi.LastBlockNumber)
	out[idxBlockHashLo].SetBytes(pi.BlockHash[16:])
	out[idxBlockHashHi].SetBytes(pi.BlockHash[:16])
	return out[:]
}

// FromVector parses a wire-order field sequence back into a host-side
// statement. Inverse of Vector.
func FromVector(v []fr.Element) (PublicInputs, error) {
	if len(v) != NbPublicInputs {
		return PublicInputs{}, fmt.Errorf("blockdb: expected %d public inputs, got %d", NbPublicInputs, len(v))
	}
	var pi PublicInputs
	pi.InitialRoot = v[idxInitialRoot]
	pi.LastRoot = v[idxLastRoot]
	var err error
	if pi.InitialBlockNumber, err = scalarUint64(v[idxInitialBlockNumber]); err != nil {
		return PublicInputs{}, fmt.Errorf("blockdb: initial block number: %w", err)
	}
	if pi.LastBlockNumber, err = scalarUint64(v[idxLastBlockNumber]); err != nil {
		return PublicInputs{}, fmt.Errorf("blockdb: last block number: %w", err)
	}
	lo := v[idxBlockHashLo].Bytes()
	hi := v[idxBlockHashHi].Bytes()
	for _, b := range lo[:16] {
		if b != 0 {
			return PublicInputs{}, fmt.Errorf("blockdb: block hash low half exceeds 128 bits")
		}
	}
	for _, b := range hi[:16] {
		if b != 0 {
			return PublicInputs{}, fmt.Errorf("blockdb: block hash high half exceeds 128 bits")
		}
	}
	copy(pi.BlockHash[:16], hi[16:])
	copy(pi.BlockHash[16:], lo[16:])
	return pi, nil
}

func scalarUint64(el fr.Element) (uint64, error) {
	b := el.BigInt(new(big.Int))
	if !b.IsUint64() {
		return 0, fmt.Errorf("value %s exceeds 64 bits", b)
	}
	return b.Uint64(), nil
}

// Wires is the in-circuit view over the public inputs imported from a
// verified block-database proof.
type Wires struct {
	pis []emulated.Element[sw_bls12377.ScalarField]
}

// WiresFrom checks the imported public-input count and wraps the wires.
func WiresFrom(pis []emulated.Element[sw_bls12377.ScalarField]) (Wires, error) {
	if len(pis) != NbPublicInputs {
		return Wires{}, fmt.Errorf("blockdb: expected %d public inputs, got %d", NbPublicInputs, len(pis))
	}
	return Wires{pis: pis}, nil
}

func (w Wires) InitialRoot() *emulated.Element[sw_bls12377.ScalarField] {
	return &w.pis[idxInitialRoot]
}

func (w Wires) LastRoot() *emulated.Element[sw_bls12377.ScalarField] {
	return &w.pis[idxLastRoot]
}

func (w Wires) InitialBlockNumber() *emulated.Element[sw_bls12377.ScalarField] {
	return &w.pis[idxInitialBlockNumber]
}

func (w Wires) LastBlockNumber() *emulated.Element[sw_bls12377.ScalarField] {
	return &w.pis[idxLastBlockNumber]
}

func (w Wires) BlockHashLo() *emulated.Element[sw_bls12377.ScalarField] {
	return &w.pis[idxBlockHashLo]
}

func (w Wires) BlockHashHi() *emulated.Element[sw_bls12377.ScalarField] {
	return &w.pis[idxBlockHashHi]
}

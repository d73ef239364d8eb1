// Package circuitset models a closed, immutable registry of circuit shapes:
// the finite set of verifying keys a sub-proof may have been produced under.
//
// A Set is built once, before the revelation parameters are compiled, and is
// never mutated afterwards. Host-side it resolves a supplied verifying key to
// its index in the set during witness assignment; the matching in-circuit
// guarantee comes from the verifying-key switch inside the revelation
// circuit, not from this package.
package circuitset

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
)

var (
	// ErrEmptySet is returned when a set is constructed with no members.
	ErrEmptySet = errors.New("circuitset: empty set")
	// ErrMixedLayout is returned when members disagree on the number of
	// public inputs they expose.
	ErrMixedLayout = errors.New("circuitset: members expose different public-input counts")
	// ErrUnknownCircuit is returned when a verifying key does not belong to
	// the set.
	ErrUnknownCircuit = errors.New("circuitset: verifying key not in set")
)

// Member is one known circuit shape: its compiled constraint system and the
// verifying key proofs of that shape verify under.
type Member struct {
	Name string
	CCS  constraint.ConstraintSystem
	VK   groth16.VerifyingKey
}

// Set is a closed registry of circuit shapes. Immutable after New.
type Set struct {
	members  []Member
	index    map[[sha256.Size]byte]int
	nbPublic int
}

// New builds a Set from the given members. All members must expose the same
// number of public inputs; the common count defines the public-input layout
// the revelation circuit imports from proofs of this family.
func New(members ...Member) (*Set, error) {
	if len(members) == 0 {
		return nil, ErrEmptySet
	}
	nbPublic := members[0].CCS.GetNbPublicVariables() - 1 // discount the one wire
	index := make(map[[sha256.Size]byte]int, len(members))
	for i, m := range members {
		if got := m.CCS.GetNbPublicVariables() - 1; got != nbPublic {
			return nil, fmt.Errorf("%w: member %q exposes %d, member %q exposes %d",
				ErrMixedLayout, members[0].Name, nbPublic, m.Name, got)
		}
		fp, err := Fingerprint(m.VK)
		if err != nil {
			return nil, fmt.Errorf("fingerprint member %q: %w", m.Name, err)
		}
		index[fp] = i
	}
	return &Set{
		members:  append([]Member(nil), members...),
		index:    index,
		nbPublic: nbPublic,
	}, nil
}

// Size returns the number of circuit shapes in the set.
func (s *Set) Size() int {
	return len(s.members)
}

// NbPublicInputs returns the public-input count shared by all members,
// excluding the constant one wire.
func (s *Set) NbPublicInputs() int {
	return s.nbPublic
}

// Members returns a copy of the registry entries, in index order.
func (s *Set) Members() []Member {
	return append([]Member(nil), s.members...)
}

// SampleCCS returns one member's constraint system. Since all members share
// the public-input layout, any member sizes the in-circuit witness
// placeholder.
func (s *Set) SampleCCS() constraint.ConstraintSystem {
	return s.members[0].CCS
}

// IndexOf resolves a verifying key to its index in the set, or fails with
// ErrUnknownCircuit.
func (s *Set) IndexOf(vk groth16.VerifyingKey) (int, error) {
	fp, err := Fingerprint(vk)
	if err != nil {
		return 0, err
	}
	i, ok := s.index[fp]
	if !ok {
		return 0, ErrUnknownCircuit
	}
	return i, nil
}

// Contains reports whether the verifying key belongs to the set.
func (s *Set) Contains(vk groth16.VerifyingKey) bool {
	_, err := s.IndexOf(vk)
	return err == nil
}

// Fingerprint returns a content address for a verifying key, computed over
// its compressed serialized form.
func Fingerprint(vk groth16.VerifyingKey) ([sha256.Size]byte, error) {
	var buf bytes.Buffer
	if _, err := vk.WriteTo(&buf); err != nil {
		return [sha256.Size]byte{}, fmt.Errorf("serialize verifying key: %w", err)
	}
	return sha256.Sum256(buf.Bytes()), nil
}

// Package keyset canonicalizes raw mapping keys into the fixed-width, sorted
// and zero-padded form the revelation circuit expects.
//
// A mapping key (e.g. a token identifier) is at most [MappingKeyLen] bytes
// and is packed into [NumKeyLimbs] big-endian 32-bit limbs. The packing is
// bit-exact with the digest scheme used by the query-aggregation side; see
// the queryagg package.
package keyset

import (
	"errors"
	"fmt"
	"sort"
)

const (
	// MappingKeyLen is the canonical byte width of a mapping key.
	MappingKeyLen = 32
	// LimbBytes is the byte width of a single packed limb.
	LimbBytes = 4
	// NumKeyLimbs is the number of 32-bit limbs in a packed key.
	NumKeyLimbs = MappingKeyLen / LimbBytes
)

var (
	// ErrTooManyKeys is returned when the number of input keys exceeds the
	// configured capacity.
	ErrTooManyKeys = errors.New("keyset: too many keys")
	// ErrKeyTooWide is returned when a raw key is wider than MappingKeyLen.
	ErrKeyTooWide = errors.New("keyset: key exceeds canonical width")
)

// MappingKey is a left-padded, fixed-width mapping key.
type MappingKey [MappingKeyLen]byte

// PackedKey is a MappingKey reinterpreted as NumKeyLimbs big-endian 32-bit
// limbs, most significant limb first.
type PackedKey [NumKeyLimbs]uint32

// FinalLimb returns the least significant limb, the sort key used by
// Canonicalize.
func (k PackedKey) FinalLimb() uint32 {
	return k[NumKeyLimbs-1]
}

// IsZero reports whether all limbs are zero.
func (k PackedKey) IsZero() bool {
	return k == PackedKey{}
}

// LeftPad returns the canonical fixed-width form of a raw key, left-padded
// with zeroes. It fails when the raw key is wider than MappingKeyLen.
func LeftPad(key []byte) (MappingKey, error) {
	var mk MappingKey
	if len(key) > MappingKeyLen {
		return mk, fmt.Errorf("%w: got %d bytes, max %d", ErrKeyTooWide, len(key), MappingKeyLen)
	}
	copy(mk[MappingKeyLen-len(key):], key)
	return mk, nil
}

// Pack splits the key into big-endian 32-bit limbs.
func (mk MappingKey) Pack() PackedKey {
	var pk PackedKey
	for i := 0; i < NumKeyLimbs; i++ {
		off := i * LimbBytes
		pk[i] = uint32(mk[off])<<24 | uint32(mk[off+1])<<16 | uint32(mk[off+2])<<8 | uint32(mk[off+3])
	}
	return pk
}

// CanonicalSet is the canonical form of a key collection: a fixed-capacity
// array of packed keys sorted ascending by their final limb, zero-padded
// past the distinct entries, together with the occupancy count.
//
// Occupancy is the number of keys supplied by the caller, not the number of
// distinct entries: the circuit reveals exactly Occupancy slots and the
// query-side digest is computed over the raw key list, so duplicates must
// stay accounted for.
type CanonicalSet struct {
	Keys      []PackedKey
	Occupancy int
}

// Canonicalize normalizes raw variable-length keys into a CanonicalSet of
// the given capacity. It fails with ErrTooManyKeys when more keys than
// capacity are supplied and with ErrKeyTooWide on malformed byte widths; in
// both cases no partial state is produced.
//
// Keys are ordered and deduplicated by the numeric value of their final
// packed limb only. Two distinct keys sharing that limb collapse into one
// slot (last write wins). This mirrors the circuit, which also considers
// only the final limb; revising it requires revising the circuit in
// lockstep.
//
// Occupancy counts supplied keys while the slots hold deduplicated ones, so
// a nonzero key supplied more than once yields a set whose digest cannot
// match a commitment over the raw key list. Zero keys are the exception:
// their per-key hash equals the padding hash, so duplicated zero keys still
// satisfy the digest binding.
func Canonicalize(keys [][]byte, capacity int) (CanonicalSet, error) {
	if len(keys) > capacity {
		return CanonicalSet{}, fmt.Errorf("%w: got %d, capacity %d", ErrTooManyKeys, len(keys), capacity)
	}

	byFinalLimb := make(map[uint32]PackedKey, len(keys))
	for _, key := range keys {
		mk, err := LeftPad(key)
		if err != nil {
			return CanonicalSet{}, err
		}
		pk := mk.Pack()
		byFinalLimb[pk.FinalLimb()] = pk
	}

	limbs := make([]uint32, 0, len(byFinalLimb))
	for limb := range byFinalLimb {
		limbs = append(limbs, limb)
	}
	sort.Slice(limbs, func(i, j int) bool { return limbs[i] < limbs[j] })

	out := CanonicalSet{
		Keys:      make([]PackedKey, capacity),
		Occupancy: len(keys),
	}
	for i, limb := range limbs {
		out.Keys[i] = byFinalLimb[limb]
	}
	return out, nil
}

package revelation

import (
	"fmt"

	"github.com/zkrange/revelation/keyset"
	"github.com/zkrange/revelation/subproof"
)

// RecursiveInput is the per-request input to GenerateProof: the two
// sub-proofs to compose and the statement data to expose publicly.
//
// The queried block range [QueryMinBlock, QueryMaxBlock] is taken at face
// value here; the circuit binds it against the query proof's own range and
// the database's head, so a dishonest range fails at proving time rather
// than at assembly.
type RecursiveInput struct {
	// Keys is the canonicalized set of revealed mapping keys, padded to
	// the capacity the parameters were built for.
	Keys keyset.CanonicalSet

	// QueryMinBlock and QueryMaxBlock delimit the queried block range,
	// inclusive on both ends.
	QueryMinBlock uint64
	QueryMaxBlock uint64

	// QueryProof is a query-aggregation proof, carrying the verifying key
	// that selects its circuit within the configured set.
	QueryProof *subproof.ProofWithVK

	// DBProof is a block-database proof. Its verifying key is fixed at
	// build time, so the envelope carries none.
	DBProof *subproof.ProofWithVK
}

// NewRecursiveInput assembles a RecursiveInput from serialized sub-proof
// envelopes and the raw query keys. Keys narrower than 32 bytes are
// left-padded; capacity must match the Config the proving parameters were
// built with.
func NewRecursiveInput(queryProof, dbProof []byte, keys [][]byte, queryMinBlock, queryMaxBlock uint64, capacity int) (*RecursiveInput, error) {
	qp, err := subproof.Deserialize(queryProof, subproof.FamilyQueryAggregation)
	if err != nil {
		return nil, fmt.Errorf("query proof: %w", err)
	}
	dp, err := subproof.Deserialize(dbProof, subproof.FamilyBlockDatabase)
	if err != nil {
		return nil, fmt.Errorf("block-db proof: %w", err)
	}
	set, err := keyset.Canonicalize(keys, capacity)
	if err != nil {
		return nil, err
	}
	return &RecursiveInput{
		Keys:          set,
		QueryMinBlock: queryMinBlock,
		QueryMaxBlock: queryMaxBlock,
		QueryProof:    qp,
		DBProof:       dp,
	}, nil
}

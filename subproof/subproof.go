// Package subproof defines the opaque wire encoding of the two sub-proofs
// consumed by the revelation layer: the query-aggregation proof and the
// block-database proof.
//
// Groth16 proofs do not embed their public inputs, so an envelope always
// carries the public witness next to the proof; the query-side envelope
// additionally carries the verifying key the proof claims to verify under,
// which the revelation layer resolves against its circuit set. Envelopes are
// CBOR-framed around the backend's native byte forms and round-trip
// bit-for-bit.
package subproof

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/blang/semver/v4"
	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"
	"github.com/fxamacker/cbor/v2"
)

// InnerCurve is the curve sub-proofs are produced over. The revelation
// circuit verifies them natively over BW6-761 through the 2-chain.
const InnerCurve = ecc.BLS12_377

// EncodingVersion is the envelope layout version. Decoding rejects
// envelopes from a different major version.
var EncodingVersion = semver.MustParse("1.0.0")

// Family tags an envelope with the proof family it claims to belong to.
type Family uint8

const (
	// FamilyQueryAggregation tags proofs from the query-aggregation circuit
	// set.
	FamilyQueryAggregation Family = iota + 1
	// FamilyBlockDatabase tags proofs from the block-database incremental
	// circuit.
	FamilyBlockDatabase
)

func (f Family) String() string {
	switch f {
	case FamilyQueryAggregation:
		return "query-aggregation"
	case FamilyBlockDatabase:
		return "block-database"
	default:
		return fmt.Sprintf("family(%d)", uint8(f))
	}
}

var (
	// ErrMalformed is returned when an envelope or one of its embedded
	// objects fails to parse.
	ErrMalformed = errors.New("subproof: malformed encoding")
	// ErrFamilyMismatch is returned when an envelope carries a family tag
	// other than the expected one.
	ErrFamilyMismatch = errors.New("subproof: family mismatch")
	// ErrIncompatibleVersion is returned when an envelope was produced
	// under an incompatible layout version.
	ErrIncompatibleVersion = errors.New("subproof: incompatible encoding version")
)

// ProofWithVK is a deserialized sub-proof: the proof, the public witness of
// its statement, and (query side only) the verifying key it claims.
type ProofWithVK struct {
	Family        Family
	Proof         groth16.Proof
	VerifyingKey  groth16.VerifyingKey // nil for FamilyBlockDatabase
	PublicWitness witness.Witness
}

type envelope struct {
	Version       string `cbor:"1,keyasint"`
	Family        uint8  `cbor:"2,keyasint"`
	Proof         []byte `cbor:"3,keyasint"`
	VerifyingKey  []byte `cbor:"4,keyasint,omitempty"`
	PublicWitness []byte `cbor:"5,keyasint"`
}

// Serialize encodes the sub-proof into its envelope form.
func (p *ProofWithVK) Serialize() ([]byte, error) {
	env := envelope{
		Version: EncodingVersion.String(),
		Family:  uint8(p.Family),
	}
	var buf bytes.Buffer
	if _, err := p.Proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("serialize proof: %w", err)
	}
	env.Proof = append([]byte(nil), buf.Bytes()...)

	if p.VerifyingKey != nil {
		buf.Reset()
		if _, err := p.VerifyingKey.WriteTo(&buf); err != nil {
			return nil, fmt.Errorf("serialize verifying key: %w", err)
		}
		env.VerifyingKey = append([]byte(nil), buf.Bytes()...)
	}

	buf.Reset()
	if _, err := p.PublicWitness.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("serialize public witness: %w", err)
	}
	env.PublicWitness = append([]byte(nil), buf.Bytes()...)

	return cbor.Marshal(env)
}

// Deserialize decodes an envelope, checking that it carries the expected
// family tag. Malformed bytes fail with ErrMalformed; there is nothing to
// retry.
func Deserialize(data []byte, expected Family) (*ProofWithVK, error) {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	version, err := semver.Parse(env.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: version %q", ErrMalformed, env.Version)
	}
	if version.Major != EncodingVersion.Major {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrIncompatibleVersion, version, EncodingVersion)
	}
	if Family(env.Family) != expected {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrFamilyMismatch, Family(env.Family), expected)
	}

	out := &ProofWithVK{Family: expected}

	out.Proof = groth16.NewProof(InnerCurve)
	if _, err := out.Proof.ReadFrom(bytes.NewReader(env.Proof)); err != nil {
		return nil, fmt.Errorf("%w: proof: %v", ErrMalformed, err)
	}

	if expected == FamilyQueryAggregation {
		if len(env.VerifyingKey) == 0 {
			return nil, fmt.Errorf("%w: missing verifying key", ErrMalformed)
		}
		out.VerifyingKey = groth16.NewVerifyingKey(InnerCurve)
		if _, err := out.VerifyingKey.ReadFrom(bytes.NewReader(env.VerifyingKey)); err != nil {
			return nil, fmt.Errorf("%w: verifying key: %v", ErrMalformed, err)
		}
	}

	out.PublicWitness, err = witness.New(InnerCurve.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("new witness: %w", err)
	}
	if _, err := out.PublicWitness.ReadFrom(bytes.NewReader(env.PublicWitness)); err != nil {
		return nil, fmt.Errorf("%w: public witness: %v", ErrMalformed, err)
	}

	return out, nil
}

package subproof

import (
	"testing"

	fr_bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/zkrange/revelation/internal/testfamily"
)

// makeProof produces one genuine proof over a tiny stub circuit.
func makeProof(t *testing.T, family Family) *ProofWithVK {
	t.Helper()
	fam, err := testfamily.New("stub", 2, 1)
	require.NoError(t, err)

	var one, two fr_bls12377.Element
	one.SetOne()
	two.SetUint64(2)
	proof, pubw, err := fam.Prove(0, []fr_bls12377.Element{one, two})
	require.NoError(t, err)

	p := &ProofWithVK{Family: family, Proof: proof, PublicWitness: pubw}
	if family == FamilyQueryAggregation {
		p.VerifyingKey = fam.VK(0)
	}
	return p
}

func TestRoundTrip(t *testing.T) {
	for _, family := range []Family{FamilyQueryAggregation, FamilyBlockDatabase} {
		t.Run(family.String(), func(t *testing.T) {
			p := makeProof(t, family)
			data, err := p.Serialize()
			require.NoError(t, err)

			got, err := Deserialize(data, family)
			require.NoError(t, err)
			require.Equal(t, family, got.Family)
			if family == FamilyQueryAggregation {
				require.NotNil(t, got.VerifyingKey)
			} else {
				require.Nil(t, got.VerifyingKey)
			}

			// the envelope must be stable across a decode/encode cycle
			again, err := got.Serialize()
			require.NoError(t, err)
			if diff := cmp.Diff(data, again); diff != "" {
				t.Fatalf("envelope not stable (-first +second):\n%s", diff)
			}
		})
	}
}

func TestDeserializeRejectsFamilyMismatch(t *testing.T) {
	p := makeProof(t, FamilyBlockDatabase)
	data, err := p.Serialize()
	require.NoError(t, err)

	_, err = Deserialize(data, FamilyQueryAggregation)
	require.ErrorIs(t, err, ErrFamilyMismatch)
}

func TestDeserializeRejectsGarbage(t *testing.T) {
	_, err := Deserialize([]byte("not cbor"), FamilyBlockDatabase)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDeserializeRejectsMissingVerifyingKey(t *testing.T) {
	p := makeProof(t, FamilyQueryAggregation)
	p.VerifyingKey = nil
	data, err := p.Serialize()
	require.NoError(t, err)

	_, err = Deserialize(data, FamilyQueryAggregation)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDeserializeRejectsIncompatibleVersion(t *testing.T) {
	p := makeProof(t, FamilyBlockDatabase)
	data, err := p.Serialize()
	require.NoError(t, err)

	var env envelope
	require.NoError(t, cbor.Unmarshal(data, &env))
	env.Version = "2.0.0"
	data, err = cbor.Marshal(env)
	require.NoError(t, err)

	_, err = Deserialize(data, FamilyBlockDatabase)
	require.ErrorIs(t, err, ErrIncompatibleVersion)
}

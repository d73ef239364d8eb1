package testfamily

import (
	"testing"

	fr_bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/stretchr/testify/require"
)

func inputs(vals ...uint64) []fr_bls12377.Element {
	out := make([]fr_bls12377.Element, len(vals))
	for i, v := range vals {
		out[i].SetUint64(v)
	}
	return out
}

// Every public input must be bound by the circuit: a proof over one input
// vector cannot verify against another. If the inputs were left
// unconstrained, the verifying key would carry commitment points at
// infinity and any public witness would be accepted.
func TestProveBindsPublicInputs(t *testing.T) {
	fam, err := New("bind", 3, 1)
	require.NoError(t, err)

	proof, pubw, err := fam.Prove(0, inputs(1, 2, 3))
	require.NoError(t, err)
	require.NoError(t, groth16.Verify(proof, fam.VK(0), pubw))

	_, otherPub, err := fam.Prove(0, inputs(4, 5, 6))
	require.NoError(t, err)
	require.Error(t, groth16.Verify(proof, fam.VK(0), otherPub))
}

func TestVariantsHaveDistinctKeys(t *testing.T) {
	fam, err := New("variants", 2, 2)
	require.NoError(t, err)

	i, err := fam.Set().IndexOf(fam.VK(0))
	require.NoError(t, err)
	require.Equal(t, 0, i)
	j, err := fam.Set().IndexOf(fam.VK(1))
	require.NoError(t, err)
	require.Equal(t, 1, j)
}

package blockdb

import (
	"math/big"
	"testing"

	fr "github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	"github.com/stretchr/testify/require"
)

func TestVectorRoundTrip(t *testing.T) {
	var initial, last fr.Element
	initial.SetUint64(0xc0ffee)
	last.SetUint64(0xdeadbeef)

	pi := PublicInputs{
		InitialRoot:        initial,
		LastRoot:           last,
		InitialBlockNumber: 100,
		LastBlockNumber:    5594952,
	}
	for i := range pi.BlockHash {
		pi.BlockHash[i] = byte(i * 7)
	}

	got, err := FromVector(pi.Vector())
	require.NoError(t, err)
	require.Equal(t, pi, got)
}

func TestFromVectorRejectsWrongLength(t *testing.T) {
	_, err := FromVector(make([]fr.Element, NbPublicInputs+1))
	require.Error(t, err)
}

func TestFromVectorRejectsWideHashHalf(t *testing.T) {
	pi := PublicInputs{}
	v := pi.Vector()
	// a hash half must fit in 128 bits
	v[idxBlockHashLo].SetBigInt(new(big.Int).Lsh(big.NewInt(1), 128))
	_, err := FromVector(v)
	require.Error(t, err)
}

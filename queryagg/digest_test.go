package queryagg

import (
	"math/big"
	"testing"

	fr_bw6761 "github.com/consensys/gnark-crypto/ecc/bw6-761/fr"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/zkrange/revelation/keyset"
)

func TestDigestOrderIndependent(t *testing.T) {
	keys := [][]byte{{1}, {2, 3}, {0xff, 0xaa, 0x01}}
	reversed := [][]byte{{0xff, 0xaa, 0x01}, {2, 3}, {1}}

	a, err := Digest(keys)
	require.NoError(t, err)
	b, err := Digest(reversed)
	require.NoError(t, err)
	require.True(t, a.Equal(&b))
}

func TestDigestCountsDuplicates(t *testing.T) {
	once, err := Digest([][]byte{{7}})
	require.NoError(t, err)
	twice, err := Digest([][]byte{{7}, {7}})
	require.NoError(t, err)

	var sum fr_bw6761.Element
	sum.Add(&once, &once)
	require.True(t, twice.Equal(&sum))
	require.False(t, twice.Equal(&once))
}

func TestDigestRejectsWideKey(t *testing.T) {
	_, err := Digest([][]byte{make([]byte, keyset.MappingKeyLen+1)})
	require.ErrorIs(t, err, keyset.ErrKeyTooWide)
}

func TestSplitJoinDigest(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("join inverts split", prop.ForAll(
		func(raw []byte) bool {
			var d fr_bw6761.Element
			d.SetBytes(raw)
			lo, hi := SplitDigest(d)
			joined := JoinDigest(lo, hi)
			return joined.Equal(&d)
		},
		gen.SliceOfN(48, gen.UInt8()),
	))

	properties.Property("low limb fits its width", prop.ForAll(
		func(raw []byte) bool {
			var d fr_bw6761.Element
			d.SetBytes(raw)
			lo, _ := SplitDigest(d)
			// compare the integer value, not the Montgomery limbs
			return lo.BigInt(new(big.Int)).BitLen() <= DigestLoBits
		},
		gen.SliceOfN(48, gen.UInt8()),
	))

	properties.TestingRun(t)
}

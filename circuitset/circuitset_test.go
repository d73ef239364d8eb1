package circuitset_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zkrange/revelation/circuitset"
	"github.com/zkrange/revelation/internal/testfamily"
)

func TestNewRejectsEmptySet(t *testing.T) {
	_, err := circuitset.New()
	require.ErrorIs(t, err, circuitset.ErrEmptySet)
}

func TestNewRejectsMixedLayouts(t *testing.T) {
	a, err := testfamily.New("narrow", 2, 1)
	require.NoError(t, err)
	b, err := testfamily.New("wide", 3, 1)
	require.NoError(t, err)

	mixed := append(a.Set().Members(), b.Set().Members()...)
	_, err = circuitset.New(mixed...)
	require.ErrorIs(t, err, circuitset.ErrMixedLayout)
}

func TestIndexOf(t *testing.T) {
	fam, err := testfamily.New("fam", 2, 3)
	require.NoError(t, err)
	set := fam.Set()

	require.Equal(t, 3, set.Size())
	require.Equal(t, 2, set.NbPublicInputs())

	for i := 0; i < set.Size(); i++ {
		got, err := set.IndexOf(fam.VK(i))
		require.NoError(t, err)
		require.Equal(t, i, got)
	}

	outsider, err := testfamily.New("outsider", 2, 1)
	require.NoError(t, err)
	_, err = set.IndexOf(outsider.VK(0))
	require.ErrorIs(t, err, circuitset.ErrUnknownCircuit)
	require.False(t, set.Contains(outsider.VK(0)))
}

func TestFingerprintDistinguishesKeys(t *testing.T) {
	fam, err := testfamily.New("fam", 2, 2)
	require.NoError(t, err)

	a, err := circuitset.Fingerprint(fam.VK(0))
	require.NoError(t, err)
	b, err := circuitset.Fingerprint(fam.VK(1))
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	again, err := circuitset.Fingerprint(fam.VK(0))
	require.NoError(t, err)
	require.Equal(t, a, again)
}

package internal

import (
	"math/bits"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewGeometryDefaults(t *testing.T) {
	g, err := NewGeometry(DefaultRootHashLevel, DefaultHashLevel)
	require.NoError(t, err)

	require.Equal(t, 256, g.RootSize())
	require.Equal(t, 16, g.Size())
	// 8 root bits + 14 levels of 4 bits = 64
	require.Equal(t, 15, g.MaxLevel)
	require.True(t, g.IsLast(14))
	require.False(t, g.IsLast(13))
}

func TestNewGeometryRejectsInvalidWidths(t *testing.T) {
	for _, tc := range []struct{ root, bits int }{
		{0, 4}, {17, 4}, {8, 0}, {8, 17},
	} {
		_, err := NewGeometry(tc.root, tc.bits)
		require.Error(t, err, "root=%d bits=%d", tc.root, tc.bits)
	}
}

func TestIndex(t *testing.T) {
	g, err := NewGeometry(8, 4)
	require.NoError(t, err)

	h := uint64(0xFEDCBA9876543210)
	require.Equal(t, 0x10, g.Index(h, 0))
	require.Equal(t, 0x2, g.Index(h, 1))
	require.Equal(t, 0x3, g.Index(h, 2))
	require.Equal(t, 0xF, g.Index(h, 14))
}

func TestAllBitsAreConsumed(t *testing.T) {
	for root := 1; root <= MaxLevelBits; root++ {
		for b := 1; b <= MaxLevelBits; b++ {
			g, err := NewGeometry(root, b)
			require.NoError(t, err)

			// the last level must still start below bit 64 ...
			lastShift := root + (g.MaxLevel-2)*b
			require.Less(t, lastShift, HashBits, "root=%d bits=%d", root, b)
			// ... and together all levels must cover bit 63
			require.GreaterOrEqual(t, lastShift+b, HashBits, "root=%d bits=%d", root, b)
		}
	}
}

func TestDistinctHashesSeparate(t *testing.T) {
	g, err := NewGeometry(8, 5)
	require.NoError(t, err)

	// hashes that only differ in the highest bit split at the last level
	a := uint64(0)
	b := uint64(1) << 63
	diverge := -1
	for level := 0; level < g.MaxLevel; level++ {
		if g.Index(a, level) != g.Index(b, level) {
			diverge = level
			break
		}
	}
	require.Equal(t, g.MaxLevel-1, diverge)
	require.Equal(t, 63, bits.Len64(b)-1)
}

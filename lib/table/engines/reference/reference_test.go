package reference

import (
	"math/rand/v2"
	"testing"

	"github.com/ValentinKolb/htrie/lib/table"
	"github.com/ValentinKolb/htrie/lib/table/engines/hashtrie"
	"github.com/ValentinKolb/htrie/lib/table/util"
	"github.com/stretchr/testify/require"
)

func TestReserveIsConsumedByExpansion(t *testing.T) {
	tbl, err := New[uint64, uint64](util.IdentityHasher(), &Options{Capacity: 64})
	require.NoError(t, err)
	defer tbl.Close()

	// 64 entries over 16 slot arrays
	meta := tbl.GetInfo().Metadata.(*Metadata)
	require.Equal(t, 4, meta.ReservedLeft)

	// 0 and 256 share the root slot, the expansion takes a reserved array
	require.NoError(t, tbl.Insert(0, 0))
	require.NoError(t, tbl.Insert(256, 1))
	meta = tbl.GetInfo().Metadata.(*Metadata)
	require.Equal(t, 3, meta.ReservedLeft)
	require.Equal(t, 1, meta.ArrayNodes)
}

func TestFullHashCollision(t *testing.T) {
	tbl, err := New[string, int](func(string) uint64 { return 7 }, nil)
	require.NoError(t, err)
	defer tbl.Close()

	require.NoError(t, tbl.Insert("a", 1))
	require.ErrorIs(t, tbl.Insert("b", 2), table.ErrCapacityExhausted)
	require.ErrorIs(t, tbl.Update("b", 2), table.ErrNotFound)
	require.Equal(t, 1, tbl.Len())
}

func TestInvalidOptions(t *testing.T) {
	_, err := New[uint64, uint64](nil, nil)
	require.Error(t, err)
	_, err = New[uint64, uint64](util.IdentityHasher(), &Options{HashLevel: 20})
	require.Error(t, err)
	_, err = New[uint64, uint64](util.IdentityHasher(), &Options{Capacity: -1})
	require.Error(t, err)
}

// A random serial history must produce identical outcomes on both engines
func TestMatchesHashTrie(t *testing.T) {
	hasher := util.Uint64Hasher(util.GenerateSeed())

	ref, err := New[uint64, uint64](hasher, &Options{RootHashLevel: 2, HashLevel: 2})
	require.NoError(t, err)
	defer ref.Close()

	ht, err := hashtrie.New[uint64, uint64](hasher, &hashtrie.Options{RootHashLevel: 2, HashLevel: 2})
	require.NoError(t, err)
	defer ht.Close()

	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 50000; i++ {
		k := rng.Uint64N(512)
		v := rng.Uint64()
		switch rng.IntN(4) {
		case 0:
			require.Equal(t, ref.Insert(k, v), ht.Insert(k, v), "insert %d", k)
		case 1:
			require.Equal(t, ref.Update(k, v), ht.Update(k, v), "update %d", k)
		case 2:
			require.Equal(t, ref.Remove(k), ht.Remove(k), "remove %d", k)
		default:
			rv, rok := ref.Get(k)
			hv, hok := ht.Get(k)
			require.Equal(t, rok, hok, "get %d", k)
			require.Equal(t, rv, hv, "get %d", k)
		}
	}
	require.Equal(t, ref.Len(), ht.Len())
}

package recycle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type item struct {
	id    int
	links Links[item]
}

func (i *item) Links() *Links[item] { return &i.links }

func stamped(id int, epoch uint64) *item {
	it := &item{id: id}
	it.links.Stamp(epoch)
	return it
}

func TestAcquireIsLIFO(t *testing.T) {
	p := New[item](nil)

	p.Release(stamped(1, 1))
	p.Release(stamped(2, 2))
	p.Release(stamped(3, 3))
	require.Equal(t, 3, p.Len())

	got, ok := p.Acquire(10)
	require.True(t, ok)
	require.Equal(t, 3, got.id)

	got, ok = p.Acquire(10)
	require.True(t, ok)
	require.Equal(t, 2, got.id)
	require.Equal(t, 1, p.Len())
}

func TestAcquireRespectsSafeEpoch(t *testing.T) {
	p := New[item](nil)
	p.Release(stamped(1, 5))

	_, ok := p.Acquire(5)
	require.False(t, ok, "stamp equal to safe epoch is not reusable")

	got, ok := p.Acquire(6)
	require.True(t, ok)
	require.Equal(t, 1, got.id)
	require.Equal(t, uint64(5), got.links.Epoch())

	_, ok = p.Acquire(100)
	require.False(t, ok)

	hits, misses, _ := p.Stats()
	require.Equal(t, uint64(1), hits)
	require.Equal(t, uint64(2), misses)
}

func TestTopBlocksOlderNodes(t *testing.T) {
	p := New[item](nil)
	p.Release(stamped(1, 1))
	p.Release(stamped(2, 9))

	// the top was retired recently, the pool reports a miss
	_, ok := p.Acquire(5)
	require.False(t, ok)
	require.Equal(t, 2, p.Len())
}

func TestUnpublishedNodeIsImmediatelyReusable(t *testing.T) {
	p := New[item](nil)
	p.Release(&item{id: 7})

	got, ok := p.Acquire(1)
	require.True(t, ok)
	require.Equal(t, 7, got.id)
}

func TestDisabledPool(t *testing.T) {
	p := New[item](&Options{Disabled: true})
	p.Release(stamped(1, 0))
	require.Equal(t, 0, p.Len())

	_, ok := p.Acquire(10)
	require.False(t, ok)
}

func TestMaxSizeEvictsOldest(t *testing.T) {
	p := New[item](&Options{MaxSize: 2})
	p.Release(stamped(1, 1))
	p.Release(stamped(2, 1))
	p.Release(stamped(3, 1))

	require.Equal(t, 2, p.Len())
	_, _, evictions := p.Stats()
	require.Equal(t, uint64(1), evictions)

	a, _ := p.Acquire(10)
	b, _ := p.Acquire(10)
	require.Equal(t, []int{3, 2}, []int{a.id, b.id})

	_, ok := p.Acquire(10)
	require.False(t, ok)
}

func TestDoubleReleasePanics(t *testing.T) {
	p := New[item](nil)
	it := stamped(1, 1)
	p.Release(it)
	require.Panics(t, func() { p.Release(it) })

	got, ok := p.Acquire(2)
	require.True(t, ok)
	p.Release(got)
	require.Equal(t, 1, p.Len())
}

func TestReset(t *testing.T) {
	p := New[item](nil)
	for i := 0; i < 10; i++ {
		p.Release(stamped(i, 0))
	}
	p.Reset()
	require.Equal(t, 0, p.Len())

	_, ok := p.Acquire(1)
	require.False(t, ok)
}

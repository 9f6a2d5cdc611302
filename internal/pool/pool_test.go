package pool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type item struct {
	id    int
	dirty bool
}

func TestPool_Get(t *testing.T) {
	var p Pool[item]
	require.Equal(t, 0, p.InUse())

	var items []*item
	for i := 0; i < pageSize*2+3; i++ {
		it := p.Get()
		require.Equal(t, item{}, *it)
		it.id, it.dirty = i, true
		items = append(items, it)
	}
	require.Equal(t, pageSize*2+3, p.InUse())
	require.Equal(t, 3, len(p.pages))
	for i, it := range items {
		// Values never move.
		require.Equal(t, i, it.id)
	}
}

func TestPool_Put(t *testing.T) {
	var p Pool[item]
	a, b := p.Get(), p.Get()
	a.id, b.id = 1, 2

	p.Put(a)
	require.Equal(t, 1, p.InUse())
	require.Equal(t, 2, b.id)

	// The last value given back is handed out first, zeroed.
	c := p.Get()
	require.Same(t, a, c)
	require.Equal(t, item{}, *c)
	require.Equal(t, 2, p.InUse())

	require.NotSame(t, b, p.Get())
	require.Equal(t, 3, p.InUse())
}

func TestPool_Reset(t *testing.T) {
	var p Pool[item]
	first := p.Get()
	first.id = 7
	p.Put(p.Get())

	p.Reset()
	require.Equal(t, 0, p.InUse())
	require.Equal(t, 0, len(p.free))

	// Pages are reused after Reset.
	it := p.Get()
	require.Same(t, first, it)
	require.Equal(t, item{}, *it)
	require.Equal(t, 1, len(p.pages))
}

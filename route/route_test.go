package route

import (
	"fmt"
	"sync"
	"testing"

	"github.com/caffeineduck/fnhost/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() []resource.Resource {
	return []resource.Resource{
		{RoutePath: "/hello", FilePath: "/p/functions/hello.js", Kind: resource.Function},
		{RoutePath: "/secret", FilePath: "/p/functions/secret.protected.js", Kind: resource.Function, Access: resource.Protected},
		{RoutePath: "/img.png", FilePath: "/p/assets/img.private.png", Kind: resource.Asset, Access: resource.Private},
	}
}

func TestBuildLookup(t *testing.T) {
	rs := sample()
	table, err := Build(rs, 1)
	require.NoError(t, err)

	assert.Equal(t, len(rs), table.Len())
	for _, r := range rs {
		got, ok := table.Lookup(r.RoutePath)
		require.True(t, ok, r.RoutePath)
		assert.Equal(t, r, got)
	}

	_, ok := table.Lookup("/missing")
	assert.False(t, ok)
}

func TestBuildDuplicate(t *testing.T) {
	rs := append(sample(), resource.Resource{RoutePath: "/hello", FilePath: "/p/assets/hello"})

	table, err := Build(rs, 1)
	assert.Nil(t, table)

	var dupErr *resource.DuplicateRouteError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "/hello", dupErr.RoutePath)
	assert.Equal(t, []string{"/p/functions/hello.js", "/p/assets/hello"}, dupErr.Files)
}

func TestAccessorsReturnCopies(t *testing.T) {
	table, err := Build(sample(), 1)
	require.NoError(t, err)

	fns := table.Functions()
	require.Len(t, fns, 2)
	fns[0].RoutePath = "/mutated"

	assets := table.Assets()
	require.Len(t, assets, 1)
	assert.Equal(t, "/img.png", assets[0].RoutePath)

	all := table.Resources()
	all[0].RoutePath = "/mutated"

	_, ok := table.Lookup("/hello")
	assert.True(t, ok)
	assert.Equal(t, "/hello", table.Resources()[0].RoutePath)
}

func TestBuildCopiesInput(t *testing.T) {
	rs := sample()
	table, err := Build(rs, 1)
	require.NoError(t, err)

	rs[0].RoutePath = "/changed"
	assert.Equal(t, "/hello", table.Resources()[0].RoutePath)
}

func TestStoreRebuild(t *testing.T) {
	s := NewStore()
	assert.Equal(t, uint64(0), s.Load().Generation())
	assert.Equal(t, 0, s.Load().Len())

	first, err := s.Rebuild(sample())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Generation())
	assert.Same(t, first, s.Load())

	bad := append(sample(), sample()[0])
	_, err = s.Rebuild(bad)
	require.Error(t, err)
	assert.Same(t, first, s.Load(), "failed rebuild must keep the old generation")

	second, err := s.Rebuild(sample()[:1])
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Generation())
	_, ok := s.Load().Lookup("/secret")
	assert.False(t, ok)
}

func TestStorePublish(t *testing.T) {
	s := NewStore()
	table, err := Build(sample(), 7)
	require.NoError(t, err)
	s.Publish(table)
	assert.Same(t, table, s.Load())

	next, err := s.Rebuild(sample())
	require.NoError(t, err)
	assert.Equal(t, uint64(8), next.Generation())
}

func TestStoreConcurrentReaders(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				table := s.Load()
				// A table is either empty or complete.
				if n := table.Len(); n != 0 && n != 50 {
					t.Errorf("observed partial table with %d routes", n)
					return
				}
			}
		}()
	}

	for g := 0; g < 20; g++ {
		rs := make([]resource.Resource, 50)
		for i := range rs {
			rs[i] = resource.Resource{RoutePath: fmt.Sprintf("/r%d", i)}
		}
		_, err := s.Rebuild(rs)
		require.NoError(t, err)
	}
	wg.Wait()
}

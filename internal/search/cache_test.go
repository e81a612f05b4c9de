package search

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/extsearch/internal/query"
)

func TestQueryCache_LoadStoresResult(t *testing.T) {
	c := NewQueryCache(8)
	want := &query.MatchAll{}

	n, hit, err := c.Load("workspace__people.person", func() (query.Node, error) { return want, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Same(t, want, n)

	n, hit, err = c.Load("workspace__people.person", func() (query.Node, error) {
		t.Fatal("cached key rebuilt")
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Same(t, want, n)
	assert.Equal(t, 1, c.Len())
}

func TestQueryCache_NilTreeIsCached(t *testing.T) {
	c := NewQueryCache(8)
	var calls int
	build := func() (query.Node, error) { calls++; return nil, nil }

	_, _, err := c.Load("k", build)
	require.NoError(t, err)
	n, hit, err := c.Load("k", build)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Nil(t, n)
	assert.Equal(t, 1, calls)
}

func TestQueryCache_ErrorsAreNotCached(t *testing.T) {
	c := NewQueryCache(8)
	boom := errors.New("boom")

	_, _, err := c.Load("k", func() (query.Node, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestQueryCache_ConcurrentMissesBuildOnce(t *testing.T) {
	c := NewQueryCache(8)
	var builds atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.Load("k", func() (query.Node, error) {
				builds.Add(1)
				<-release
				return &query.MatchAll{}, nil
			})
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
}

func TestQueryCache_PurgeDuringBuildDiscardsResult(t *testing.T) {
	c := NewQueryCache(8)

	_, _, err := c.Load("k", func() (query.Node, error) {
		c.Purge()
		return &query.MatchAll{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestQueryCache_RemoveAndPurge(t *testing.T) {
	c := NewQueryCache(0)
	c.Add("a", &query.MatchAll{})
	c.Add("b", &query.MatchNone{})

	c.Remove("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

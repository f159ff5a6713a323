package render

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constRender(png string, calls *int) func() ([]byte, error) {
	return func() ([]byte, error) {
		*calls++
		return []byte(png), nil
	}
}

func TestKeyFor(t *testing.T) {
	beta, residuals := Maps[0], Maps[1]

	k := KeyFor(beta, Options{WidthIn: 4, HeightIn: 3, DPI: 50})
	assert.Equal(t, MapKey{Map: "beta_poverty", Width: 200, Height: 150}, k)
	assert.Equal(t, "beta_poverty@200x150", k.String())

	// Zero options resolve to the defaults, so both spellings share a key.
	assert.Equal(t, KeyFor(beta, Options{}), KeyFor(beta, Options{WidthIn: 10, HeightIn: 8, DPI: 96}))
	assert.NotEqual(t, KeyFor(beta, Options{}), KeyFor(residuals, Options{}))
	assert.NotEqual(t, KeyFor(beta, Options{DPI: 96}), KeyFor(beta, Options{DPI: 150}))
}

func TestMapCache_GetOrRender(t *testing.T) {
	cache := NewMapCache(4, time.Hour)
	key := KeyFor(Maps[0], Options{})
	calls := 0

	b, hit, err := cache.GetOrRender(key, constRender("png", &calls))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []byte("png"), b)

	for range 2 {
		b, hit, err = cache.GetOrRender(key, constRender("other", &calls))
		require.NoError(t, err)
		assert.True(t, hit)
		assert.Equal(t, []byte("png"), b)
	}
	assert.Equal(t, 1, calls)
}

func TestMapCache_RenderErrorNotStored(t *testing.T) {
	cache := NewMapCache(4, time.Hour)
	key := KeyFor(Maps[1], Options{})
	boom := errors.New("boom")

	_, hit, err := cache.GetOrRender(key, func() ([]byte, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, hit)
	assert.Equal(t, 0, cache.Stats().Entries)

	calls := 0
	_, hit, err = cache.GetOrRender(key, constRender("png", &calls))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, calls)
}

func TestMapCache_SizesAreSeparateEntries(t *testing.T) {
	cache := NewMapCache(4, time.Hour)
	calls := 0
	small := KeyFor(Maps[0], Options{WidthIn: 4, HeightIn: 3, DPI: 50})
	large := KeyFor(Maps[0], Options{})

	_, _, err := cache.GetOrRender(small, constRender("small", &calls))
	require.NoError(t, err)
	b, hit, err := cache.GetOrRender(large, constRender("large", &calls))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []byte("large"), b)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, cache.Stats().Entries)
}

func TestMapCache_TTLExpiration(t *testing.T) {
	cache := NewMapCache(10, 50*time.Millisecond)
	key := KeyFor(Maps[1], Options{})
	calls := 0

	_, _, err := cache.GetOrRender(key, constRender("png", &calls))
	require.NoError(t, err)
	_, hit, _ := cache.GetOrRender(key, constRender("png", &calls))
	assert.True(t, hit)

	time.Sleep(60 * time.Millisecond)
	_, hit, _ = cache.GetOrRender(key, constRender("png", &calls))
	assert.False(t, hit)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, cache.Stats().Entries)
}

func TestMapCache_LRUEviction(t *testing.T) {
	cache := NewMapCache(2, time.Hour)
	a := MapKey{Map: "a", Width: 1, Height: 1}
	b := MapKey{Map: "b", Width: 1, Height: 1}
	c := MapKey{Map: "c", Width: 1, Height: 1}
	calls := 0

	for _, k := range []MapKey{a, b, a, c} {
		_, _, err := cache.GetOrRender(k, constRender(k.Map, &calls))
		require.NoError(t, err)
	}
	// "a" was touched after "b", so "b" went when "c" arrived.
	assert.Equal(t, 3, calls)
	_, hit, _ := cache.GetOrRender(a, constRender("a", &calls))
	assert.True(t, hit)
	_, hit, _ = cache.GetOrRender(c, constRender("c", &calls))
	assert.True(t, hit)
	_, hit, _ = cache.GetOrRender(b, constRender("b", &calls))
	assert.False(t, hit)
	assert.Equal(t, 2, cache.Stats().Entries)
}

func TestMapCache_Stats(t *testing.T) {
	cache := NewMapCache(5, time.Hour)
	key := KeyFor(Maps[0], Options{})
	calls := 0

	for range 3 {
		_, _, err := cache.GetOrRender(key, constRender("png", &calls))
		require.NoError(t, err)
	}

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 5, stats.MaxEntries)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 0.001)
}

func TestMapCache_ConcurrentMissRendersOnce(t *testing.T) {
	cache := NewMapCache(8, time.Hour)
	key := KeyFor(Maps[0], Options{})

	var calls atomic.Int32
	release := make(chan struct{})
	render := func() ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("png"), nil
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, _, err := cache.GetOrRender(key, render)
			assert.NoError(t, err)
			assert.Equal(t, []byte("png"), b)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
	stats := cache.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(8), stats.Hits+stats.Misses)
}

package cache_test

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/traxacun/gibson/alloc"
	"github.com/traxacun/gibson/cache"
	"github.com/traxacun/gibson/item"
	"github.com/traxacun/gibson/log"
	"github.com/traxacun/gibson/stats"
)

func newCache() *cache.Cache {
	st := stats.New()
	lg := log.NewLogger(log.ErrorLevel, io.Discard)
	sh := alloc.New(st, lg)
	return cache.New(sh, st, item.CompressionConfig{Threshold: 1024})
}

func TestSetGet(t *testing.T) {
	c := newCache()
	now := time.Now()
	require.NoError(t, c.Set([]byte("foo"), []byte("bar"), 0, now))
	it, err := c.Get([]byte("foo"), now)
	require.NoError(t, err)
	require.Equal(t, []byte("bar"), it.Bytes())
}

func TestLockBlocksMutation(t *testing.T) {
	c := newCache()
	now := time.Now()
	require.NoError(t, c.Set([]byte("foo"), []byte("bar"), 0, now))
	require.NoError(t, c.Lock([]byte("foo"), 60*time.Second, now))
	err := c.Set([]byte("foo"), []byte("new"), 0, now)
	require.ErrorIs(t, err, cache.ErrLocked)

	require.NoError(t, c.Unlock([]byte("foo"), now))
	require.NoError(t, c.Set([]byte("foo"), []byte("new"), 0, now))
	it, err := c.Get([]byte("foo"), now)
	require.NoError(t, err)
	require.Equal(t, []byte("new"), it.Bytes())
}

func TestMLockBlocksMutationViaPrefix(t *testing.T) {
	c := newCache()
	now := time.Now()
	require.NoError(t, c.Set([]byte("foo"), []byte("bar"), 0, now))
	require.Equal(t, 1, c.MLock([]byte("f"), 60*time.Second, now))

	err := c.Set([]byte("foo"), []byte("new"), 0, now)
	require.ErrorIs(t, err, cache.ErrLocked)

	require.Equal(t, 1, c.MUnlock([]byte("f"), now))
	require.NoError(t, c.Set([]byte("foo"), []byte("new"), 0, now))
}

func TestIncDecNumeric(t *testing.T) {
	c := newCache()
	now := time.Now()
	require.NoError(t, c.Set([]byte("n"), []byte("41"), 0, now))
	v, err := c.Inc([]byte("n"), now)
	require.NoError(t, err)
	require.EqualValues(t, 42, v)

	it, err := c.Get([]byte("n"), now)
	require.NoError(t, err)
	require.Equal(t, item.Number, it.Encoding)
	require.Equal(t, []byte("42"), it.Bytes())
}

func TestIncNonNumericFails(t *testing.T) {
	c := newCache()
	now := time.Now()
	require.NoError(t, c.Set([]byte("s"), []byte("hello"), 0, now))
	_, err := c.Inc([]byte("s"), now)
	require.ErrorIs(t, err, cache.ErrNaN)
}

func TestTTLExpiry(t *testing.T) {
	c := newCache()
	now := time.Now()
	require.NoError(t, c.Set([]byte("a"), []byte("x"), 0, now))
	require.NoError(t, c.SetTTL([]byte("a"), time.Second, now))

	_, err := c.Get([]byte("a"), now.Add(1500*time.Millisecond))
	require.ErrorIs(t, err, cache.ErrNotFound)
}

func TestPrefixClosureAndMultiDelete(t *testing.T) {
	c := newCache()
	now := time.Now()
	require.NoError(t, c.Set([]byte("/u/1"), []byte("a"), 0, now))
	require.NoError(t, c.Set([]byte("/u/2"), []byte("b"), 0, now))
	require.NoError(t, c.Set([]byte("/v/1"), []byte("c"), 0, now))

	keys := c.Keys([]byte("/u/"), now)
	require.Len(t, keys, 2)

	require.Equal(t, 2, c.MDelete([]byte("/u/"), now))
	require.Equal(t, 0, c.Count([]byte("/u/1"), now))
	require.Equal(t, 1, c.Count([]byte("/v/1"), now))
}

func TestTrieCompactsToEmptyRootAfterAllDeletes(t *testing.T) {
	c := newCache()
	now := time.Now()
	keys := []string{"a", "ab", "abc", "b"}
	for _, k := range keys {
		require.NoError(t, c.Set([]byte(k), []byte("v"), 0, now))
	}
	for _, k := range keys {
		require.NoError(t, c.Delete([]byte(k), now))
	}
	require.Equal(t, 1, c.NodeCount())
}

func TestCompressedLargeValueRoundTrips(t *testing.T) {
	c := newCache()
	now := time.Now()
	value := make([]byte, 5000)
	require.NoError(t, c.Set([]byte("k"), value, 0, now))

	meta, err := c.Meta([]byte("k"), now)
	require.NoError(t, err)
	require.Equal(t, item.Compressed, meta.Encoding)

	it, err := c.Get([]byte("k"), now)
	require.NoError(t, err)
	require.Equal(t, value, it.Bytes())
}

package vulkan

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

type testPrototype struct {
	key  uint64
	name string
}

func (p testPrototype) Hash() uint64 {
	return newHasher().u64(p.key).sum()
}

type testHost struct {
	created   int
	destroyed []string
	fail      bool
}

func newTestCache() *ObjectCache[*testHost, testPrototype, string] {
	return NewObjectCache("test",
		func(h *testHost, p testPrototype) (string, error) {
			if h.fail {
				return "", errors.New("rejected")
			}
			h.created++
			return p.name, nil
		},
		func(h *testHost, o string) {
			h.destroyed = append(h.destroyed, o)
		})
}

func TestObjectCacheHitDoesNotRecreate(t *testing.T) {
	host := &testHost{}
	cache := newTestCache()

	first, hash, err := cache.GetObject(host, testPrototype{key: 1, name: "a"})
	require.NoError(t, err)
	second, hash2, err := cache.GetObject(host, testPrototype{key: 1, name: "ignored"})
	require.NoError(t, err)

	require.Equal(t, "a", first)
	require.Equal(t, first, second)
	require.Equal(t, hash, hash2)
	require.Equal(t, 1, host.created)

	stats := cache.Stats()
	require.Equal(t, 1, stats.Entries)
	require.Equal(t, uint64(1), stats.Hits)
	require.Equal(t, uint64(1), stats.Misses)

	byHash, ok := cache.Lookup(hash)
	require.True(t, ok)
	require.Equal(t, "a", byHash)
	proto, ok := cache.Prototype(hash)
	require.True(t, ok)
	require.Equal(t, "a", proto.name)
}

func TestObjectCacheDoesNotCacheFailures(t *testing.T) {
	host := &testHost{fail: true}
	cache := newTestCache()

	_, hash, err := cache.GetObject(host, testPrototype{key: 2, name: "b"})
	require.Error(t, err)
	require.Zero(t, cache.Len())
	_, ok := cache.Lookup(hash)
	require.False(t, ok)

	host.fail = false
	obj, _, err := cache.GetObject(host, testPrototype{key: 2, name: "b"})
	require.NoError(t, err)
	require.Equal(t, "b", obj)
	require.Equal(t, 1, cache.Len())
}

func TestObjectCacheCleanupDestroysEverything(t *testing.T) {
	host := &testHost{}
	cache := newTestCache()
	for i := uint64(0); i < 4; i++ {
		_, _, err := cache.GetObject(host, testPrototype{key: i, name: string(rune('a' + i))})
		require.NoError(t, err)
	}

	_, hash, _ := cache.GetObject(host, testPrototype{key: 0})
	require.True(t, cache.Destroy(host, hash))
	require.False(t, cache.Destroy(host, hash))

	cache.Cleanup(host)
	require.Zero(t, cache.Len())
	require.ElementsMatch(t, []string{"a", "b", "c", "d"}, host.destroyed)

	// Still usable after cleanup.
	_, _, err := cache.GetObject(host, testPrototype{key: 9, name: "z"})
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len())
}

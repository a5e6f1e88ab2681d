// SPDX-License-Identifier: AGPL-3.0-or-later

package reccache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sonora-audio/sonora/internal/recommend/rectypes"
)

func TestPutThenGetRoundTrips(t *testing.T) {
	c := New(DefaultCapacity, 4, DefaultTTL)
	recs := []rectypes.Recommendation{{TrackID: "a", SimilarityScore: 90}}
	c.Put("key1", recs, 0, "variant1")

	entry, ok := c.Get("key1")
	require.True(t, ok)
	require.Equal(t, recs, entry.Recommendations)
}

func TestGetExpiredEntryMisses(t *testing.T) {
	c := New(DefaultCapacity, 1, 0)
	c.Put("key1", nil, time.Millisecond, "v1")
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("key1")
	require.False(t, ok)
}

func TestEvictsLeastRecentlyUsedWhenOverCapacity(t *testing.T) {
	c := New(2, 1, DefaultTTL)
	c.Put("a", nil, 0, "v1")
	c.Put("b", nil, 0, "v1")
	_, _ = c.Get("a") // touch a so b becomes LRU
	c.Put("c", nil, 0, "v1")

	_, ok := c.Get("b")
	require.False(t, ok, "b should have been evicted")
	_, ok = c.Get("a")
	require.True(t, ok)
	_, ok = c.Get("c")
	require.True(t, ok)
}

func TestInvalidateVariantDropsOnlyMatchingEntries(t *testing.T) {
	c := New(DefaultCapacity, 4, DefaultTTL)
	c.Put("a", nil, 0, "variantA")
	c.Put("b", nil, 0, "variantB")

	c.InvalidateVariant("variantA")

	_, ok := c.Get("a")
	require.False(t, ok)
	_, ok = c.Get("b")
	require.True(t, ok)
}

func TestGetOrBuildCoalescesConcurrentCallers(t *testing.T) {
	c := New(DefaultCapacity, 4, DefaultTTL)
	var calls int64
	release := make(chan struct{})

	build := func() ([]rectypes.Recommendation, error) {
		atomic.AddInt64(&calls, 1)
		<-release
		return []rectypes.Recommendation{{TrackID: "x"}}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrBuild("shared-key", "v1", 0, build)
			require.NoError(t, err)
		}()
	}

	close(release)
	wg.Wait()
	require.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestGetOrBuildReturnsCachedOnSecondCall(t *testing.T) {
	c := New(DefaultCapacity, 4, DefaultTTL)
	var calls int
	build := func() ([]rectypes.Recommendation, error) {
		calls++
		return []rectypes.Recommendation{{TrackID: "x"}}, nil
	}

	_, hit1, err := c.GetOrBuild("key", "v1", 0, build)
	require.NoError(t, err)
	require.False(t, hit1)

	_, hit2, err := c.GetOrBuild("key", "v1", 0, build)
	require.NoError(t, err)
	require.True(t, hit2)
	require.Equal(t, 1, calls)
}

func TestFingerprintKeyIsDeterministic(t *testing.T) {
	k1 := FingerprintKey([]rectypes.TrackRef{"a", "b"}, rectypes.StrategyCluster, 10, "-", "v1")
	k2 := FingerprintKey([]rectypes.TrackRef{"a", "b"}, rectypes.StrategyCluster, 10, "-", "v1")
	require.Equal(t, k1, k2)

	k3 := FingerprintKey([]rectypes.TrackRef{"a", "b"}, rectypes.StrategyCluster, 10, "-", "v2")
	require.NotEqual(t, k1, k3)
}

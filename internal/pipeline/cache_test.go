package pipeline

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yelmkhayar/hydro-sentinel/internal/domain"
	"github.com/Yelmkhayar/hydro-sentinel/internal/observability"
)

// --- mock for cache tests ---

type countingResolver struct {
	mu    sync.Mutex
	calls map[string]int
}

func (m *countingResolver) Resolve(label string) domain.ColumnMapping {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[label]++
	code := len(label)
	return domain.ColumnMapping{Label: label, StationCode: &code, Method: domain.MethodExact, Score: 1}
}

// --- CachedResolver tests ---

func TestCachedResolver_CacheHit(t *testing.T) {
	inner := &countingResolver{}
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedResolver(inner, 10, metrics)

	m1 := cached.Resolve("Allal Fassi debit")
	m2 := cached.Resolve("Allal Fassi debit")

	assert.Equal(t, m1, m2)
	assert.Equal(t, 1, inner.calls["Allal Fassi debit"], "should only call inner once")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ResolverCache.WithLabelValues("hit")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ResolverCache.WithLabelValues("miss")), 0)
}

func TestCachedResolver_DifferentKeysMiss(t *testing.T) {
	inner := &countingResolver{}
	cached := NewCachedResolver(inner, 10, nil)

	cached.Resolve("a")
	cached.Resolve("b")

	assert.Equal(t, map[string]int{"a": 1, "b": 1}, inner.calls)
}

func TestCachedResolver_ReturnsDetachedCopies(t *testing.T) {
	cached := NewCachedResolver(&countingResolver{}, 10, nil)

	m1 := cached.Resolve("abc")
	require.NotNil(t, m1.StationCode)
	*m1.StationCode = 99

	m2 := cached.Resolve("abc")
	assert.Equal(t, 3, *m2.StationCode)
}

func TestCachedResolver_MatchesInnerResolver(t *testing.T) {
	catalog := domain.NewCatalog([]domain.Station{{Code: 1, Name: "Zrarda"}}, []domain.AliasPattern{{Suffix: " debit"}}, nil)
	inner := domain.NewResolver(catalog, domain.DefaultCutoff)
	cached := NewCachedResolver(inner, 10, nil)

	for _, label := range []string{"Zerarda debit", "zrarda debit", "Unrelated"} {
		assert.Equal(t, inner.Resolve(label), cached.Resolve(label), label)
		assert.Equal(t, inner.Resolve(label), cached.Resolve(label), label)
	}
}

func TestCachedResolver_ConcurrentUse(t *testing.T) {
	inner := &countingResolver{}
	cached := NewCachedResolver(inner, 4, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, l := range []string{"a", "bb", "ccc"} {
				m := cached.Resolve(l)
				assert.Equal(t, len(l), *m.StationCode)
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, cached.cache.size(), 4)
}

// --- LRU cache unit tests ---

func mapping(label string) domain.ColumnMapping {
	return domain.ColumnMapping{Label: label}
}

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache(3)

	c.put("a", mapping("A"))
	c.put("b", mapping("B"))

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A", result.Label)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", mapping("A"))
	c.put("b", mapping("B"))
	c.put("c", mapping("C")) // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")

	result, ok := c.get("b")
	assert.True(t, ok)
	assert.Equal(t, "B", result.Label)

	result, ok = c.get("c")
	assert.True(t, ok)
	assert.Equal(t, "C", result.Label)
	assert.Equal(t, 2, c.size())
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", mapping("A"))
	c.put("b", mapping("B"))
	c.get("a")
	c.put("c", mapping("C"))

	_, ok := c.get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")

	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", mapping("A1"))
	c.put("a", mapping("A2"))

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A2", result.Label)
	assert.Equal(t, 1, c.size())
}

func TestLRUCache_NonPositiveSizeKeepsOne(t *testing.T) {
	c := newLRUCache(0)

	c.put("a", mapping("A"))
	c.put("b", mapping("B"))

	_, ok := c.get("a")
	assert.False(t, ok)
	_, ok = c.get("b")
	assert.True(t, ok)
}

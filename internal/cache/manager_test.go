package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestManagerPutGetRoundTrip(t *testing.T) {
	m := NewManager(nil, nil, nil)
	m.EnsureCache("listUsers", 10, time.Minute)

	require.NoError(t, m.Put(context.Background(), "listUsers", "k1", time.Minute, row{ID: 1, Name: "a"}))

	got, ok := Get[row](context.Background(), m, "listUsers", "k1")
	require.True(t, ok)
	assert.Equal(t, row{ID: 1, Name: "a"}, got)
}

func TestManagerGetMissOnTypeMismatch(t *testing.T) {
	m := NewManager(nil, nil, nil)
	m.EnsureCache("c1", 10, time.Minute)
	require.NoError(t, m.Put(context.Background(), "c1", "k1", time.Minute, row{ID: 1}))

	_, ok := Get[string](context.Background(), m, "c1", "k1")
	assert.False(t, ok)
}

func TestManagerGetMissOnAbsentKey(t *testing.T) {
	m := NewManager(nil, nil, nil)
	_, ok := Get[row](context.Background(), m, "c1", "missing")
	assert.False(t, ok)
}

func TestManagerTTLExpiry(t *testing.T) {
	m := NewManager(nil, nil, nil)
	m.EnsureCache("c1", 10, 10*time.Millisecond)
	require.NoError(t, m.Put(context.Background(), "c1", "k1", 10*time.Millisecond, row{ID: 1}))

	_, ok := Get[row](context.Background(), m, "c1", "k1")
	assert.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	_, ok = Get[row](context.Background(), m, "c1", "k1")
	assert.False(t, ok)
}

func TestManagerExactLRUEviction(t *testing.T) {
	m := NewManager(nil, nil, nil)
	m.EnsureCache("c1", 2, time.Minute)
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "c1", "a", time.Minute, row{ID: 1}))
	require.NoError(t, m.Put(ctx, "c1", "b", time.Minute, row{ID: 2}))

	// touch "a" so "b" becomes least-recently-used
	_, _ = Get[row](ctx, m, "c1", "a")

	require.NoError(t, m.Put(ctx, "c1", "c", time.Minute, row{ID: 3}))

	_, ok := Get[row](ctx, m, "c1", "b")
	assert.False(t, ok, "least recently used entry should have been evicted")

	_, ok = Get[row](ctx, m, "c1", "a")
	assert.True(t, ok)
	_, ok = Get[row](ctx, m, "c1", "c")
	assert.True(t, ok)
}

func TestManagerRemove(t *testing.T) {
	m := NewManager(nil, nil, nil)
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "c1", "k1", time.Minute, row{ID: 1}))

	assert.True(t, m.Remove(ctx, "c1", "k1"))
	assert.False(t, m.Remove(ctx, "c1", "k1"))

	_, ok := Get[row](ctx, m, "c1", "k1")
	assert.False(t, ok)
}

func TestManagerRemovePatternGlob(t *testing.T) {
	m := NewManager(nil, nil, nil)
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "c1", "q:trades:AAPL:20", time.Minute, row{ID: 1}))
	require.NoError(t, m.Put(ctx, "c1", "q:trades:AAPL:50", time.Minute, row{ID: 2}))
	require.NoError(t, m.Put(ctx, "c1", "q:trades:GOOGL:20", time.Minute, row{ID: 3}))

	removed := m.RemovePattern(ctx, "c1", "q:trades:AAPL:*")
	assert.Equal(t, 2, removed)

	_, ok := Get[row](ctx, m, "c1", "q:trades:GOOGL:20")
	assert.True(t, ok)
}

func TestManagerClear(t *testing.T) {
	m := NewManager(nil, nil, nil)
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "c1", "k1", time.Minute, row{ID: 1}))
	m.Clear("c1")

	stats := m.Stats("c1")
	assert.Equal(t, 0, stats.Entries)
}

func TestGlobMatch(t *testing.T) {
	assert.True(t, globMatch("q:trades:*", "q:trades:AAPL:20"))
	assert.True(t, globMatch("q:trades:???L", "q:trades:AAPL"))
	assert.False(t, globMatch("q:trades:???L", "q:trades:AAPLX"))
	assert.True(t, globMatch("*", "anything"))
	assert.False(t, globMatch("exact", "different"))
}

func TestBuildKeyWithPattern(t *testing.T) {
	key := BuildKey("stock-trades-by-symbol", "t:{symbol}:{limit}:{offset}", map[string]any{
		"symbol": "AAPL", "limit": 20, "offset": 0,
	})
	assert.Equal(t, "t:aapl:20:0", key)
}

func TestBuildKeyDefaultOrdering(t *testing.T) {
	key := BuildKey("listUsers", "", map[string]any{"b": 2, "a": 1})
	assert.Equal(t, "listUsers:a=1&b=2", key)
}

func TestBuildKeyCollapsesLongKeys(t *testing.T) {
	params := map[string]any{}
	pattern := ""
	long := ""
	for i := 0; i < 40; i++ {
		long += "verylongsegment"
	}
	params["x"] = long
	key := BuildKey("q", pattern, params)
	assert.LessOrEqual(t, len(key), len("q:")+16)
}

func TestBuildKeyNullAndBoolean(t *testing.T) {
	key := BuildKey("q", "", map[string]any{"active": true, "deleted": nil})
	assert.Equal(t, "q:active=true&deleted=null", key)
}

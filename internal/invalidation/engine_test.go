package invalidation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cordal/cordal/internal/cache"
	"github.com/cordal/cordal/internal/events"
)

type row struct {
	Symbol string `json:"symbol"`
}

func TestEngineResolvesPatternAndPurges(t *testing.T) {
	bus := events.NewBus(nil, nil)
	mgr := cache.NewManager(nil, nil, nil)
	ctx := context.Background()

	require.NoError(t, mgr.Put(ctx, "stock-trades-by-symbol", "q:stock-trades-by-symbol:AAPL:recent", time.Minute, row{Symbol: "AAPL"}))
	require.NoError(t, mgr.Put(ctx, "stock-trades-by-symbol", "q:stock-trades-by-symbol:GOOGL:recent", time.Minute, row{Symbol: "GOOGL"}))

	engine := NewEngine(bus, mgr, nil)
	engine.Register(Rule{
		CacheName: "stock-trades-by-symbol",
		EventType: "trade.created",
		Patterns:  []string{"q:stock-trades-by-symbol:{symbol}:*"},
		Condition: "${data.symbol}=AAPL",
	})

	bus.PublishSync(ctx, events.New("trade.created", map[string]any{"symbol": "AAPL"}, "test"))

	_, ok := cache.Get[row](ctx, mgr, "stock-trades-by-symbol", "q:stock-trades-by-symbol:AAPL:recent")
	assert.False(t, ok)

	_, ok = cache.Get[row](ctx, mgr, "stock-trades-by-symbol", "q:stock-trades-by-symbol:GOOGL:recent")
	assert.True(t, ok)
}

func TestEngineConditionGateBlocksNonMatchingEvent(t *testing.T) {
	bus := events.NewBus(nil, nil)
	mgr := cache.NewManager(nil, nil, nil)
	ctx := context.Background()

	require.NoError(t, mgr.Put(ctx, "c1", "q:AAPL", time.Minute, row{Symbol: "AAPL"}))

	engine := NewEngine(bus, mgr, nil)
	engine.Register(Rule{
		CacheName: "c1",
		EventType: "trade.created",
		Patterns:  []string{"q:*"},
		Condition: "${data.symbol}=GOOGL",
	})

	bus.PublishSync(ctx, events.New("trade.created", map[string]any{"symbol": "AAPL"}, "test"))

	_, ok := cache.Get[row](ctx, mgr, "c1", "q:AAPL")
	assert.True(t, ok, "non-matching condition must not purge the cache")
}

func TestEngineOnlyFirstRulePerTypeSubscribes(t *testing.T) {
	bus := events.NewBus(nil, nil)
	mgr := cache.NewManager(nil, nil, nil)

	engine := NewEngine(bus, mgr, nil)
	engine.Register(Rule{CacheName: "c1", EventType: "x", Patterns: []string{"*"}})
	engine.Register(Rule{CacheName: "c2", EventType: "x", Patterns: []string{"*"}})

	assert.Equal(t, 1, bus.ListenerCount("x"))
}

func TestResolvePatternLeavesUnresolvedPlaceholderIntact(t *testing.T) {
	resolved, unresolved := resolvePattern("q:{symbol}:{missing}", conditionEvent{Data: map[string]any{"symbol": "AAPL"}})
	assert.Equal(t, "q:AAPL:{missing}", resolved)
	assert.Equal(t, []string{"missing"}, unresolved)
}

func TestEvaluateConditionNumericFallbackAndLexicographic(t *testing.T) {
	assert.True(t, evaluateCondition("${event.count}>5", conditionEvent{Data: map[string]any{"count": float64(10)}}))
	assert.False(t, evaluateCondition("${event.count}>5", conditionEvent{Data: map[string]any{"count": float64(1)}}))
	assert.True(t, evaluateCondition("b>a", conditionEvent{}))
}

func TestEvaluateConditionMalformedIsFalse(t *testing.T) {
	assert.False(t, evaluateCondition("not a condition", conditionEvent{}))
}

func TestEvaluateConditionEqualityAndInequality(t *testing.T) {
	ce := conditionEvent{Data: map[string]any{"symbol": "AAPL"}}
	assert.True(t, evaluateCondition("symbol=${data.symbol}", ce))
	assert.True(t, evaluateCondition("${data.symbol}==AAPL", ce))
	assert.True(t, evaluateCondition("${data.symbol}!=GOOGL", ce))
}

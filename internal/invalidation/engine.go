package invalidation

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cordal/cordal/internal/cache"
	"github.com/cordal/cordal/internal/events"
)

// Engine owns every registered Rule and the single bus listener per event
// type it takes out on their behalf, per spec.md §4.6 step 1 ("only the
// first rule per type subscribes").
type Engine struct {
	bus   *events.Bus
	cache *cache.Manager

	mu          sync.Mutex
	rulesByType map[string][]Rule
	subscribed  map[string]bool

	logger *slog.Logger
}

func NewEngine(bus *events.Bus, cacheMgr *cache.Manager, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		bus:         bus,
		cache:       cacheMgr,
		rulesByType: make(map[string][]Rule),
		subscribed:  make(map[string]bool),
		logger:      logger,
	}
}

// Register adds rule to the engine, subscribing a bus listener for its
// event type exactly once.
func (e *Engine) Register(rule Rule) {
	e.mu.Lock()
	e.rulesByType[rule.EventType] = append(e.rulesByType[rule.EventType], rule)
	alreadySubscribed := e.subscribed[rule.EventType]
	e.subscribed[rule.EventType] = true
	e.mu.Unlock()

	if !alreadySubscribed {
		e.bus.Subscribe(rule.EventType, e.handle)
	}
}

// Reset clears every registered rule, used when a configuration reload
// rebuilds the invalidation rule set from scratch. The record of which
// event types are already subscribed is kept, so re-registered rules reuse
// the existing bus listener. The bus keeps one listener per previously
// seen event type (events.Bus has no Unsubscribe), but a listener with
// zero matching rules is a no-op on dispatch.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rulesByType = make(map[string][]Rule)
}

func (e *Engine) handle(ctx context.Context, event events.Event) error {
	e.mu.Lock()
	rules := append([]Rule(nil), e.rulesByType[event.Type]...)
	e.mu.Unlock()

	ce := conditionEvent{Type: event.Type, Source: event.Source, ID: event.ID, Data: event.Data}

	for _, rule := range rules {
		if !evaluateCondition(rule.Condition, ce) {
			continue
		}
		if rule.Delay > 0 {
			time.AfterFunc(rule.Delay, func() { e.purge(context.Background(), rule, ce) })
			continue
		}
		if rule.Async {
			go e.purge(context.Background(), rule, ce)
			continue
		}
		e.purge(ctx, rule, ce)
	}
	return nil
}

func (e *Engine) purge(ctx context.Context, rule Rule, ce conditionEvent) {
	for _, pattern := range rule.Patterns {
		resolved, unresolved := resolvePattern(pattern, ce)
		if len(unresolved) > 0 {
			e.logger.Warn("invalidation pattern has unresolved placeholders",
				"pattern", pattern, "placeholders", unresolved)
		}
		removed := e.cache.RemovePattern(ctx, rule.CacheName, resolved)
		e.logger.Debug("invalidation rule purged cache entries",
			"cache", rule.CacheName, "pattern", resolved, "event_type", rule.EventType, "removed", removed)
	}
}

// resolvePattern substitutes {name} placeholders in pattern from the
// event's data map. A placeholder with no matching key is left intact
// and reported in unresolved, per spec.md §4.6 step 3.
func resolvePattern(pattern string, ce conditionEvent) (resolved string, unresolved []string) {
	var b strings.Builder
	i := 0
	for i < len(pattern) {
		if pattern[i] == '{' {
			if end := strings.IndexByte(pattern[i:], '}'); end >= 0 {
				name := pattern[i+1 : i+end]
				if v, ok := ce.Data[name]; ok {
					b.WriteString(stringifyAny(v))
				} else {
					b.WriteString("{" + name + "}")
					unresolved = append(unresolved, name)
				}
				i += end + 1
				continue
			}
		}
		b.WriteByte(pattern[i])
		i++
	}
	return b.String(), unresolved
}

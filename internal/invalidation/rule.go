// Package invalidation is the C7 invalidation engine: declarative rules
// that subscribe to C6 events and purge C5 cache entries by pattern, with
// an optional condition gate and an optional delay. It has no direct
// teacher analogue (the source service purges caches from direct call
// sites, not a rule engine) and is grounded instead on
// internal/events.Bus for subscription/fan-out and on
// pkg/configvalidator's grammar-evaluator style for the condition
// language.
package invalidation

import "time"

// Rule is one invalidation binding: when an event of EventType arrives,
// and Condition (if present) evaluates true against it, every pattern in
// Patterns is resolved and purged from CacheName, either immediately or
// after Delay, per spec.md §4.6.
type Rule struct {
	CacheName string
	EventType string
	Patterns  []string
	Condition string
	Delay     time.Duration
	Async     bool
}

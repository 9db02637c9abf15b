// Package cache is the C5 cache core: independent, named TTL+LRU stores
// fronted by an optional shared Redis L2 tier, ported from
// pkg/history/cache/manager.go's two-tier Manager but generalized from one
// fixed cache to an arbitrary number of named caches (the query executor
// uses two: "query_results" and "count_results").
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"
)

// Stats is the snapshot returned by Manager.Stats.
type Stats struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
	MaxSize int    `json:"maxSize"`
	TTL     string `json:"ttl"`
}

// envelope carries a type tag alongside the serialized value so Get can
// report a miss, rather than a decode error, when the caller asks for a
// type that does not match what was stored.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Manager owns one L1Cache per cache name (lazily created the first time
// a query's cache spec is exercised) and an optional shared Redis L2 tier.
type Manager struct {
	mu      sync.Mutex
	caches  map[string]*L1Cache
	maxSize map[string]int
	ttl     map[string]time.Duration

	l2      *L2Cache
	logger  *slog.Logger
	metrics *Metrics
}

func NewManager(l2 *L2Cache, logger *slog.Logger, metrics *Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		caches:  make(map[string]*L1Cache),
		maxSize: make(map[string]int),
		ttl:     make(map[string]time.Duration),
		l2:      l2,
		logger:  logger,
		metrics: metrics,
	}
}

// EnsureCache registers a named cache's capacity and TTL, idempotently.
// Only the first call for a name takes effect; later calls for the same
// name are no-ops. Registering up front means later Get/Put calls never
// need the query descriptor in hand.
func (m *Manager) EnsureCache(name string, maxSize int, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.caches[name]; ok {
		return
	}
	m.caches[name] = NewL1Cache(maxSize, ttl)
	m.maxSize[name] = maxSize
	m.ttl[name] = ttl
}

func (m *Manager) cacheFor(name string) *L1Cache {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.caches[name]
	if !ok {
		c = NewL1Cache(1000, 5*time.Minute)
		m.caches[name] = c
		m.maxSize[name] = 1000
		m.ttl[name] = 5 * time.Minute
	}
	return c
}

func l2Key(cacheName, key string) string {
	return cacheName + "::" + key
}

// Put stores value, serialized to JSON and tagged with its concrete type,
// under (cacheName,key) in L1 and, if configured, L2.
func (m *Manager) Put(ctx context.Context, cacheName, key string, ttl time.Duration, value any) error {
	start := time.Now()
	data, err := json.Marshal(value)
	if err != nil {
		return errSerialization("marshal cache value", err)
	}
	env := envelope{Type: typeTag(value), Data: data}
	raw, err := json.Marshal(env)
	if err != nil {
		return errSerialization("marshal cache envelope", err)
	}

	l1 := m.cacheFor(cacheName)
	l1.Set(key, raw)
	m.observe(cacheName, "l1", "put", "success", start)

	if m.l2 != nil {
		l2start := time.Now()
		if err := m.l2.Set(ctx, l2Key(cacheName, key), raw); err != nil {
			m.observe(cacheName, "l2", "put", "error", l2start)
			m.errorMetric(cacheName, "l2", "connection")
			m.logger.Warn("l2 cache put failed", "cache", cacheName, "error", err)
		} else {
			m.observe(cacheName, "l2", "put", "success", l2start)
		}
	}
	if m.metrics != nil {
		m.metrics.Size.WithLabelValues(cacheName, "l1").Set(float64(l1.Len()))
	}
	return nil
}

func typeTag(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "nil"
	}
	return t.String()
}

// Get fetches (cacheName,key) and decodes it as T. A miss is reported,
// not an error, both when the key is absent and when the stored value was
// tagged with a different concrete type than T.
func Get[T any](ctx context.Context, m *Manager, cacheName, key string) (T, bool) {
	var zero T
	start := time.Now()
	want := typeTag(zero)

	l1 := m.cacheFor(cacheName)
	if raw, ok := l1.Get(key); ok {
		if v, ok := decodeEnvelope[T](raw, want); ok {
			m.hit(cacheName, "l1", start)
			return v, true
		}
		m.miss(cacheName, "l1", start)
	} else {
		m.miss(cacheName, "l1", start)
	}

	if m.l2 != nil {
		l2start := time.Now()
		raw, err := m.l2.Get(ctx, l2Key(cacheName, key))
		if err == nil {
			if v, ok := decodeEnvelope[T](raw, want); ok {
				m.hit(cacheName, "l2", l2start)
				l1.Set(key, raw)
				return v, true
			}
			m.miss(cacheName, "l2", l2start)
		} else {
			if err != ErrNotFound {
				m.errorMetric(cacheName, "l2", "connection")
				m.logger.Warn("l2 cache get failed", "cache", cacheName, "error", err)
			}
			m.miss(cacheName, "l2", l2start)
		}
	}

	return zero, false
}

func decodeEnvelope[T any](raw []byte, wantType string) (T, bool) {
	var zero T
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return zero, false
	}
	if env.Type != wantType {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return zero, false
	}
	return v, true
}

// Remove deletes (cacheName,key), returning whether it was present.
func (m *Manager) Remove(ctx context.Context, cacheName, key string) bool {
	l1 := m.cacheFor(cacheName)
	_, existed := l1.Get(key)
	l1.Delete(key)
	if m.l2 != nil {
		_ = m.l2.Delete(ctx, l2Key(cacheName, key))
	}
	return existed
}

// RemovePattern purges every key in cacheName matching a glob pattern
// (`*` any run of characters, `?` exactly one), returning the count
// removed from L1. L2 keys matching the pattern are purged independently
// via Redis SCAN/DEL.
func (m *Manager) RemovePattern(ctx context.Context, cacheName, pattern string) int {
	l1 := m.cacheFor(cacheName)
	removed := 0
	for _, k := range l1.lru.Keys() {
		if globMatch(pattern, k) {
			l1.Delete(k)
			removed++
		}
	}
	if m.metrics != nil {
		m.metrics.Evictions.WithLabelValues(cacheName, "l1").Add(float64(removed))
	}
	if m.l2 != nil {
		if err := m.l2.DeletePattern(ctx, l2Key(cacheName, pattern)); err != nil {
			m.logger.Warn("l2 cache pattern purge failed", "cache", cacheName, "pattern", pattern, "error", err)
		}
	}
	return removed
}

// Clear purges every entry in a named cache.
func (m *Manager) Clear(cacheName string) {
	m.cacheFor(cacheName).Purge()
}

func (m *Manager) Stats(cacheName string) Stats {
	m.mu.Lock()
	maxSize := m.maxSize[cacheName]
	ttl := m.ttl[cacheName]
	m.mu.Unlock()
	l1 := m.cacheFor(cacheName)
	return Stats{Name: cacheName, Entries: l1.Len(), MaxSize: maxSize, TTL: ttl.String()}
}

func (m *Manager) hit(cacheName, layer string, start time.Time) {
	if m.metrics == nil {
		return
	}
	m.metrics.Hits.WithLabelValues(cacheName, layer).Inc()
	m.metrics.Latency.WithLabelValues(cacheName, layer, "get", "hit").Observe(time.Since(start).Seconds())
}

func (m *Manager) miss(cacheName, layer string, start time.Time) {
	if m.metrics == nil {
		return
	}
	m.metrics.Misses.WithLabelValues(cacheName, layer).Inc()
	m.metrics.Latency.WithLabelValues(cacheName, layer, "get", "miss").Observe(time.Since(start).Seconds())
}

func (m *Manager) observe(cacheName, layer, op, status string, start time.Time) {
	if m.metrics == nil {
		return
	}
	m.metrics.Latency.WithLabelValues(cacheName, layer, op, status).Observe(time.Since(start).Seconds())
}

func (m *Manager) errorMetric(cacheName, layer, errType string) {
	if m.metrics == nil {
		return
	}
	m.metrics.Errors.WithLabelValues(cacheName, layer, errType).Inc()
}

// globMatch reports whether s matches a glob pattern supporting `*`
// (any run of characters, including none) and `?` (exactly one
// character), translated to an anchored regexp-free matcher via dynamic
// programming so arbitrary '*' placement is handled without backtracking
// blowup.
func globMatch(pattern, s string) bool {
	p := []rune(pattern)
	t := []rune(s)
	dp := make([][]bool, len(p)+1)
	for i := range dp {
		dp[i] = make([]bool, len(t)+1)
	}
	dp[0][0] = true
	for i := 1; i <= len(p); i++ {
		if p[i-1] == '*' {
			dp[i][0] = dp[i-1][0]
		}
	}
	for i := 1; i <= len(p); i++ {
		for j := 1; j <= len(t); j++ {
			switch p[i-1] {
			case '*':
				dp[i][j] = dp[i-1][j] || dp[i][j-1]
			case '?':
				dp[i][j] = dp[i-1][j-1]
			default:
				dp[i][j] = dp[i-1][j-1] && p[i-1] == t[j-1]
			}
		}
	}
	return dp[len(p)][len(t)]
}

// BuildKey implements the C8 cache-key algorithm: substitute each {name}
// in pattern from params' normalized string form, or fall back to
// "name:k1=v1&k2=v2&..." in ascending key order when pattern is empty.
// Keys longer than 250 characters collapse their parameter portion to a
// 16-hex-character SHA-256 prefix.
func BuildKey(name, pattern string, params map[string]any) string {
	var key string
	if pattern != "" {
		key = substituteParams(pattern, params)
	} else {
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sortStrings(keys)
		var b strings.Builder
		b.WriteString(name)
		b.WriteByte(':')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte('&')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(normalizeValue(params[k]))
		}
		key = b.String()
	}

	if len(key) <= 250 {
		return key
	}
	sum := sha256.Sum256([]byte(key))
	return name + ":" + hex.EncodeToString(sum[:])[:16]
}

func substituteParams(pattern string, params map[string]any) string {
	var b strings.Builder
	i := 0
	for i < len(pattern) {
		if pattern[i] == '{' {
			if end := strings.IndexByte(pattern[i:], '}'); end >= 0 {
				name := pattern[i+1 : i+end]
				b.WriteString(normalizeValue(params[name]))
				i += end + 1
				continue
			}
		}
		b.WriteByte(pattern[i])
		i++
	}
	return b.String()
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

package config

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Generation is one immutable, atomically-published snapshot of the
// configuration plane. Every lookup and every dispatcher route table is
// built from exactly one Generation; a reload never mutates one in place.
type Generation struct {
	Seq       int64
	Version   string
	Databases map[string]Database
	Queries   map[string]Query
	Endpoints map[string]Endpoint
	Report    *ValidationReport
}

func buildGeneration(seq int64, databases []Database, queries []Query, endpoints []Endpoint, report *ValidationReport) *Generation {
	g := &Generation{
		Seq:       seq,
		Databases: make(map[string]Database, len(databases)),
		Queries:   make(map[string]Query, len(queries)),
		Endpoints: make(map[string]Endpoint, len(endpoints)),
		Report:    report,
	}
	for _, d := range databases {
		g.Databases[d.Name] = d
	}
	for _, q := range queries {
		g.Queries[q.Name] = q
	}
	for _, e := range endpoints {
		g.Endpoints[e.Key()] = e
	}
	g.Version = g.computeVersion()
	return g
}

// computeVersion hashes a canonical JSON encoding of the generation's
// descriptor maps, the same SHA-256-over-JSON pattern the source material
// uses for its config version fingerprint.
func (g *Generation) computeVersion() string {
	data, err := json.Marshal(struct {
		Databases map[string]Database
		Queries   map[string]Query
		Endpoints map[string]Endpoint
	}{g.Databases, g.Queries, g.Endpoints})
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum[:8])
}

// Policy controls what a Reload does with a freshly validated generation.
type Policy struct {
	RunOnStartup bool
	ValidateOnly bool
}

// Registry is the C3 configuration registry: it owns the current
// Generation, swapped atomically on every successful Reload.
type Registry struct {
	loader  Loader
	policy  Policy
	logger  *slog.Logger
	current atomic.Pointer[Generation]
	seq     atomic.Int64
}

func NewRegistry(loader Loader, policy Policy, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{loader: loader, policy: policy, logger: logger}
}

// Reload loads a fresh candidate generation, validates it, and — unless
// ValidateOnly is set, or the report has errors while RunOnStartup is
// true — atomically publishes it as current. The report is always
// returned so /api/generic/config/validate can reflect it even when
// publish was skipped.
func (r *Registry) Reload(ctx context.Context) (*ValidationReport, error) {
	databases, skippedDatabases, err := r.loader.LoadDatabases(ctx)
	if err != nil {
		return nil, err
	}
	if len(databases) == 0 {
		return nil, fmt.Errorf("no valid databases loaded: %d file(s) skipped", len(skippedDatabases))
	}
	queries, err := r.loader.LoadQueries(ctx)
	if err != nil {
		return nil, err
	}
	endpoints, err := r.loader.LoadEndpoints(ctx)
	if err != nil {
		return nil, err
	}

	report := validateGeneration(databases, queries, endpoints, skippedDatabases)

	if r.policy.ValidateOnly {
		r.logger.Info("validate-only reload: not publishing", "errors", len(report.Errors), "warnings", len(report.Warnings))
		return report, nil
	}

	if !report.Valid() && r.policy.RunOnStartup {
		r.logger.Error("configuration invalid, refusing to publish", "errors", report.Errors)
		return report, fmt.Errorf("%w: %d error(s)", ErrValidationFailed, len(report.Errors))
	}

	gen := buildGeneration(r.seq.Add(1), databases, queries, endpoints, report)
	r.current.Store(gen)
	r.logger.Info("published configuration generation",
		"seq", gen.Seq, "version", gen.Version,
		"databases", len(gen.Databases), "queries", len(gen.Queries), "endpoints", len(gen.Endpoints))
	return report, nil
}

// Current returns the currently published generation, or nil if none has
// ever been published.
func (r *Registry) Current() *Generation {
	return r.current.Load()
}

func (r *Registry) AllDatabases() []Database {
	gen := r.Current()
	if gen == nil {
		return nil
	}
	out := make([]Database, 0, len(gen.Databases))
	for _, d := range gen.Databases {
		out = append(out, d)
	}
	return out
}

func (r *Registry) AllQueries() []Query {
	gen := r.Current()
	if gen == nil {
		return nil
	}
	out := make([]Query, 0, len(gen.Queries))
	for _, q := range gen.Queries {
		out = append(out, q)
	}
	return out
}

func (r *Registry) AllEndpoints() []Endpoint {
	gen := r.Current()
	if gen == nil {
		return nil
	}
	out := make([]Endpoint, 0, len(gen.Endpoints))
	for _, e := range gen.Endpoints {
		out = append(out, e)
	}
	return out
}

func (r *Registry) LookupDatabase(name string) (Database, bool) {
	gen := r.Current()
	if gen == nil {
		return Database{}, false
	}
	d, ok := gen.Databases[name]
	return d, ok
}

func (r *Registry) LookupQuery(name string) (Query, bool) {
	gen := r.Current()
	if gen == nil {
		return Query{}, false
	}
	q, ok := gen.Queries[name]
	return q, ok
}

func (r *Registry) LookupEndpoint(method, path string) (Endpoint, bool) {
	gen := r.Current()
	if gen == nil {
		return Endpoint{}, false
	}
	e, ok := gen.Endpoints[Endpoint{Method: method, Path: path}.Key()]
	return e, ok
}

package dispatch

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/cordal/cordal/internal/apierrors"
	"github.com/cordal/cordal/internal/config"
	"github.com/cordal/cordal/internal/query"
)

// Dispatcher is the C9 request dispatcher. Its route table is rebuilt
// and atomically swapped every time the configuration registry publishes
// a new generation, per the teacher's `PathPrefix().Subrouter()` style in
// internal/api/router.go, generalized from a fixed set of handler
// functions to one dynamically generated per Endpoint descriptor.
type Dispatcher struct {
	registry *config.Registry
	executor *query.Executor
	stats    StatsRecorder
	logger   *slog.Logger

	router atomic.Pointer[mux.Router]
}

func NewDispatcher(registry *config.Registry, executor *query.Executor, stats StatsRecorder, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if stats == nil {
		stats = noopStats{}
	}
	d := &Dispatcher{registry: registry, executor: executor, stats: stats, logger: logger}
	d.Rebuild()
	return d
}

// Rebuild constructs a fresh mux.Router from the registry's current
// generation and atomically swaps it in. Call this after every
// Registry.Reload.
func (d *Dispatcher) Rebuild() {
	gen := d.registry.Current()
	router := mux.NewRouter()
	if gen == nil {
		d.router.Store(router)
		return
	}

	// mux matches routes in registration order, so endpoints with fewer
	// path parameters go first: /api/users/page precedes /api/users/{id}.
	endpoints := make([]config.Endpoint, 0, len(gen.Endpoints))
	for _, ep := range gen.Endpoints {
		endpoints = append(endpoints, ep)
	}
	sort.Slice(endpoints, func(i, j int) bool {
		ni, nj := len(endpoints[i].PathParamNames()), len(endpoints[j].PathParamNames())
		if ni != nj {
			return ni < nj
		}
		return endpoints[i].Key() < endpoints[j].Key()
	})
	for _, ep := range endpoints {
		ep := ep
		router.HandleFunc(ep.Path, d.handlerFor(ep)).Methods(ep.Method)
	}
	d.router.Store(router)
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	router := d.router.Load()
	if router == nil {
		apierrors.Write(w, apierrors.Internal("router not initialized"))
		return
	}
	router.ServeHTTP(w, r)
}

func (d *Dispatcher) handlerFor(ep config.Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		success := true
		defer func() {
			d.stats.RecordEndpoint(ep.Key(), time.Since(start), success)
		}()

		gen := d.registry.Current()
		if gen == nil {
			success = false
			apierrors.Write(w, apierrors.Internal("configuration unavailable"))
			return
		}

		q, ok := gen.Queries[ep.Query]
		if !ok {
			success = false
			apierrors.Write(w, apierrors.Internal("endpoint references unknown query"))
			return
		}

		bound, berr := extractParams(r, mux.Vars(r), ep.Params)
		if berr != nil {
			success = false
			apierrors.Write(w, berr)
			return
		}

		ctx := r.Context()

		switch ep.Response.Type {
		case config.ResponsePaged:
			d.servePaged(ctx, w, r, ep, q, gen, bound, &success)
		default:
			rows, err := d.executor.Execute(ctx, d.registry, q, bound)
			if err != nil {
				success = false
				apierrors.Write(w, toAPIError(err))
				return
			}
			d.serveShaped(w, ep, rows)
		}
	}
}

func (d *Dispatcher) serveShaped(w http.ResponseWriter, ep config.Endpoint, rows []query.Row) {
	switch ep.Response.Type {
	case config.ResponseSingle:
		body, err := shapeSingle(rows, d.logger)
		if err != nil {
			apierrors.Write(w, err)
			return
		}
		writeJSON(w, http.StatusOK, body)
	default:
		writeJSON(w, http.StatusOK, shapeList(rows))
	}
}

func (d *Dispatcher) servePaged(ctx context.Context, w http.ResponseWriter, r *http.Request, ep config.Endpoint, q config.Query, gen *config.Generation, bound map[string]any, success *bool) {
	page, perr := resolvePagination(r, ep.Pagination)
	if perr != nil {
		*success = false
		apierrors.Write(w, perr)
		return
	}
	bound["limit"] = int32(page.limit())
	bound["offset"] = int32(page.offset())

	var rows []query.Row
	var total int64
	var rowsErr, countErr error

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rows, rowsErr = d.executor.Execute(ctx, d.registry, q, bound)
	}()

	if ep.CountQuery != "" {
		if cq, ok := gen.Queries[ep.CountQuery]; ok {
			wg.Add(1)
			go func() {
				defer wg.Done()
				total, countErr = d.executor.ExecuteCount(ctx, d.registry, cq, bound)
			}()
		}
	}
	wg.Wait()

	if rowsErr != nil {
		*success = false
		apierrors.Write(w, toAPIError(rowsErr))
		return
	}
	if countErr != nil {
		*success = false
		apierrors.Write(w, toAPIError(countErr))
		return
	}

	writeJSON(w, http.StatusOK, buildPagedEnvelope(shapeList(rows), page, total))
}

func toAPIError(err error) *apierrors.Error {
	if apiErr, ok := err.(*apierrors.Error); ok {
		return apiErr
	}
	return apierrors.Internal(err.Error())
}

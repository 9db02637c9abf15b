// Package management implements the generic introspection surface
// (/api/generic/...) and the administrative mutation/migration surface
// (/api/management/...) described in spec.md §6: read-only views over the
// live configuration generation, store-backed CRUD on descriptors, and the
// migration/health endpoints built on internal/migration and
// internal/health.
package management

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"

	"github.com/cordal/cordal/internal/apierrors"
	"github.com/cordal/cordal/internal/config"
	"github.com/cordal/cordal/internal/health"
	"github.com/cordal/cordal/internal/migration"
)

// Rebuilder is the narrow surface management needs back onto the request
// dispatcher after a store mutation changes the published generation.
type Rebuilder interface {
	Rebuild()
}

// Handlers wires every generic and management route onto a router.
type Handlers struct {
	registry  *config.Registry
	store     config.Store // nil when the active configuration source is filesystem-only
	migration *migration.Service
	monitor   *health.Monitor
	dispatch  Rebuilder
	logger    *slog.Logger
}

func NewHandlers(registry *config.Registry, store config.Store, mig *migration.Service, monitor *health.Monitor, dispatch Rebuilder, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{registry: registry, store: store, migration: mig, monitor: monitor, dispatch: dispatch, logger: logger}
}

// Register mounts every route this package serves onto router. Routes that
// mutate state (descriptor writes, triggering a migration) are mounted on
// their own subrouter so mutatingMiddleware — typically a rate limiter —
// applies to them without throttling the read-only introspection and
// health routes.
func (h *Handlers) Register(router *mux.Router, mutatingMiddleware ...mux.MiddlewareFunc) {
	router.HandleFunc("/api/health", h.health).Methods(http.MethodGet)

	generic := router.PathPrefix("/api/generic").Subrouter()
	generic.HandleFunc("/endpoints", h.listEndpoints).Methods(http.MethodGet)
	generic.HandleFunc("/config", h.fullConfig).Methods(http.MethodGet)
	generic.HandleFunc("/config/validate", h.validate).Methods(http.MethodGet)
	generic.HandleFunc("/config/validate/{section}", h.validateSection).Methods(http.MethodGet)
	generic.HandleFunc("/config/{kind}/{name}", h.configItem).Methods(http.MethodGet)
	generic.HandleFunc("/config/{kind}", h.configKind).Methods(http.MethodGet)

	readOnly := router.PathPrefix("/api/management").Subrouter()
	readOnly.HandleFunc("/migration/status", h.migrationStatus).Methods(http.MethodGet)
	readOnly.HandleFunc("/migration/compare", h.migrationCompare).Methods(http.MethodGet)
	readOnly.HandleFunc("/migration/export-store-to-fs", h.migrationExport).Methods(http.MethodGet)
	readOnly.HandleFunc("/ready", h.ready).Methods(http.MethodGet)
	readOnly.HandleFunc("/live", h.live).Methods(http.MethodGet)

	mutating := router.PathPrefix("/api/management").Subrouter()
	for _, mw := range mutatingMiddleware {
		mutating.Use(mw)
	}
	mutating.HandleFunc("/config/{kind}/{name}", h.putConfig).Methods(http.MethodPost, http.MethodPut)
	mutating.HandleFunc("/config/{kind}/{name}", h.deleteConfig).Methods(http.MethodDelete)
	mutating.HandleFunc("/migration/fs-to-store", h.migrationApply).Methods(http.MethodPost)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// health reports the system-wide derived status, the first bullet of the
// management API's health surface: UP/DEGRADED/DOWN plus the time it was
// computed, independent of the more detailed /api/management/ready and
// /api/management/live probes.
func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	overall := h.monitor.Overall(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    overall.State,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) listEndpoints(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.AllEndpoints())
}

func (h *Handlers) fullConfig(w http.ResponseWriter, r *http.Request) {
	gen := h.registry.Current()
	if gen == nil {
		apierrors.Write(w, apierrors.Internal("no configuration generation available"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":   gen.Version,
		"databases": gen.SanitizeDatabases(),
		"queries":   h.registry.AllQueries(),
		"endpoints": h.registry.AllEndpoints(),
	})
}

func (h *Handlers) configKind(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]
	switch kind {
	case "databases":
		gen := h.registry.Current()
		if gen == nil {
			writeJSON(w, http.StatusOK, []config.SanitizedDatabase{})
			return
		}
		writeJSON(w, http.StatusOK, gen.SanitizeDatabases())
	case "queries":
		writeJSON(w, http.StatusOK, h.registry.AllQueries())
	case "endpoints":
		writeJSON(w, http.StatusOK, h.registry.AllEndpoints())
	default:
		apierrors.Write(w, apierrors.NotFound("config kind "+kind))
	}
}

func (h *Handlers) configItem(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind, name := vars["kind"], vars["name"]

	switch kind {
	case "databases":
		if d, ok := h.registry.LookupDatabase(name); ok {
			writeJSON(w, http.StatusOK, d.Sanitize())
			return
		}
	case "queries":
		if q, ok := h.registry.LookupQuery(name); ok {
			writeJSON(w, http.StatusOK, q)
			return
		}
	case "endpoints":
		for _, ep := range h.registry.AllEndpoints() {
			if ep.Key() == name || ep.Path == name {
				writeJSON(w, http.StatusOK, ep)
				return
			}
		}
	default:
		apierrors.Write(w, apierrors.NotFound("config kind "+kind))
		return
	}
	apierrors.Write(w, apierrors.NotFound(kind+" "+name))
}

func (h *Handlers) validate(w http.ResponseWriter, r *http.Request) {
	gen := h.registry.Current()
	if gen == nil || gen.Report == nil {
		apierrors.Write(w, apierrors.Internal("no configuration generation available"))
		return
	}
	writeJSON(w, http.StatusOK, gen.Report)
}

// validateSection filters the current report to issues mentioning the
// requested section's entity noun. "relationships" is not filtered: the
// validator's referential-integrity checks (unknown database/query
// references, unused queries) span more than one kind, so the full report
// is the meaningful answer for it.
func (h *Handlers) validateSection(w http.ResponseWriter, r *http.Request) {
	section := mux.Vars(r)["section"]
	gen := h.registry.Current()
	if gen == nil || gen.Report == nil {
		apierrors.Write(w, apierrors.Internal("no configuration generation available"))
		return
	}

	switch section {
	case "endpoints", "queries", "databases", "relationships":
	default:
		apierrors.Write(w, apierrors.NotFound("validation section "+section))
		return
	}
	if section == "relationships" {
		writeJSON(w, http.StatusOK, gen.Report)
		return
	}

	noun := strings.TrimSuffix(section, "s")
	filtered := &config.ValidationReport{}
	for _, issue := range gen.Report.Errors {
		if strings.Contains(issue.Message, noun) {
			filtered.Errors = append(filtered.Errors, issue)
		}
	}
	for _, issue := range gen.Report.Warnings {
		if strings.Contains(issue.Message, noun) {
			filtered.Warnings = append(filtered.Warnings, issue)
		}
	}
	for _, issue := range gen.Report.Info {
		if strings.Contains(issue.Message, noun) {
			filtered.Info = append(filtered.Info, issue)
		}
	}
	writeJSON(w, http.StatusOK, filtered)
}

// putConfig creates or updates one descriptor directly in the store. It
// is only legal when the process is running against a store-backed
// configuration source; a filesystem-only deployment rejects every
// mutation with 409 IllegalState, since CORDAL never rewrites descriptor
// files on disk.
func (h *Handlers) putConfig(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		apierrors.Write(w, apierrors.IllegalState("configuration source is filesystem-only; management mutations require a store-backed source"))
		return
	}
	vars := mux.Vars(r)
	kind, name := vars["kind"], vars["name"]
	if kind != "databases" && kind != "queries" && kind != "endpoints" {
		apierrors.Write(w, apierrors.BadRequest("unknown config kind "+kind))
		return
	}

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		apierrors.Write(w, apierrors.BadRequest("invalid request body: "+err.Error()))
		return
	}
	body, err := yaml.Marshal(payload)
	if err != nil {
		apierrors.Write(w, apierrors.Internal(err.Error()))
		return
	}

	existing, err := h.store.Get(r.Context(), kind, name)
	if err != nil {
		apierrors.Write(w, apierrors.Internal(err.Error()))
		return
	}
	action := "created"
	if existing != nil {
		action = "updated"
	}

	if err := h.store.Put(r.Context(), kind, name, string(body)); err != nil {
		apierrors.Write(w, apierrors.Internal(err.Error()))
		return
	}
	h.refresh(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"action":    action,
		"name":      name,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) deleteConfig(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		apierrors.Write(w, apierrors.IllegalState("configuration source is filesystem-only; management mutations require a store-backed source"))
		return
	}
	vars := mux.Vars(r)
	kind, name := vars["kind"], vars["name"]

	if err := h.store.Delete(r.Context(), kind, name); err != nil {
		apierrors.Write(w, apierrors.Internal(err.Error()))
		return
	}
	h.refresh(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"action":    "deleted",
		"name":      name,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// refresh reloads the registry and rebuilds the dispatcher's route table
// so a management mutation is visible on the very next request.
func (h *Handlers) refresh(ctx context.Context) {
	if _, err := h.registry.Reload(ctx); err != nil {
		h.logger.Error("reload after management mutation failed", "error", err)
		return
	}
	if h.dispatch != nil {
		h.dispatch.Rebuild()
	}
}

func (h *Handlers) migrationStatus(w http.ResponseWriter, r *http.Request) {
	if h.migration == nil {
		apierrors.Write(w, apierrors.IllegalState("migration is not configured for this deployment"))
		return
	}
	results, err := h.migration.Status(r.Context())
	if err != nil {
		apierrors.Write(w, apierrors.Internal(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handlers) migrationCompare(w http.ResponseWriter, r *http.Request) {
	if h.migration == nil {
		apierrors.Write(w, apierrors.IllegalState("migration is not configured for this deployment"))
		return
	}
	results, err := h.migration.Compare(r.Context())
	if err != nil {
		apierrors.Write(w, apierrors.Internal(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handlers) migrationExport(w http.ResponseWriter, r *http.Request) {
	if h.migration == nil {
		apierrors.Write(w, apierrors.IllegalState("migration is not configured for this deployment"))
		return
	}
	databases, queries, endpoints, err := h.migration.ExportStoreToFS(r.Context())
	if err != nil {
		apierrors.Write(w, apierrors.Internal(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"databases": databases,
		"queries":   queries,
		"endpoints": endpoints,
	})
}

func (h *Handlers) migrationApply(w http.ResponseWriter, r *http.Request) {
	if h.migration == nil {
		apierrors.Write(w, apierrors.IllegalState("migration is not configured for this deployment"))
		return
	}
	results, err := h.migration.MigrateFSToStore(r.Context())
	if err != nil {
		apierrors.Write(w, apierrors.Internal(err.Error()))
		return
	}
	h.refresh(r.Context())
	writeJSON(w, http.StatusOK, results)
}

func (h *Handlers) ready(w http.ResponseWriter, r *http.Request) {
	readiness := h.monitor.Readiness(r.Context())
	status := http.StatusOK
	if !readiness.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, readiness)
}

func (h *Handlers) live(w http.ResponseWriter, r *http.Request) {
	liveness := h.monitor.Liveness(r.Context())
	status := http.StatusOK
	if !liveness.Alive {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, liveness)
}

package migration

import (
	"context"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/cordal/cordal/internal/config"
	"github.com/cordal/cordal/internal/events"
)

const (
	kindDatabases = "databases"
	kindQueries   = "queries"
	kindEndpoints = "endpoints"
)

var kinds = []string{kindDatabases, kindQueries, kindEndpoints}

// EventPublisher is the narrow C6 surface migration uses to announce a
// configuration change after every store mutation; kept local so this
// package does not need the full events.Bus API surface.
type EventPublisher interface {
	PublishSync(ctx context.Context, event events.Event)
}

// Service is the C12 migration & sync component.
type Service struct {
	fs     *config.FilesystemLoader
	store  config.Store
	bus    EventPublisher
	logger *slog.Logger
}

func NewService(fs *config.FilesystemLoader, store config.Store, bus EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{fs: fs, store: store, bus: bus, logger: logger}
}

// fsBodies loads every descriptor of kind from the filesystem and
// re-serializes each to its canonical YAML body, keyed by name.
func (s *Service) fsBodies(ctx context.Context, kind string) (map[string]string, error) {
	out := map[string]string{}
	switch kind {
	case kindDatabases:
		dbs, _, err := s.fs.LoadDatabases(ctx)
		if err != nil {
			return nil, err
		}
		for _, d := range dbs {
			body, err := yaml.Marshal(d)
			if err != nil {
				return nil, err
			}
			out[d.Name] = string(body)
		}
	case kindQueries:
		queries, err := s.fs.LoadQueries(ctx)
		if err != nil {
			return nil, err
		}
		for _, q := range queries {
			body, err := yaml.Marshal(q)
			if err != nil {
				return nil, err
			}
			out[q.Name] = string(body)
		}
	case kindEndpoints:
		endpoints, err := s.fs.LoadEndpoints(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range endpoints {
			body, err := yaml.Marshal(e)
			if err != nil {
				return nil, err
			}
			out[e.Key()] = string(body)
		}
	}
	return out, nil
}

func (s *Service) storeBodies(ctx context.Context, kind string) (map[string]string, error) {
	records, err := s.store.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(records))
	for _, r := range records {
		out[r.Name] = r.Body
	}
	return out, nil
}

// MigrateFSToStore loads every descriptor from the filesystem and
// write-throughs it to the store, reporting per-kind
// {created, updated, failed, errors[]}.
func (s *Service) MigrateFSToStore(ctx context.Context) (map[string]KindResult, error) {
	results := make(map[string]KindResult, len(kinds))
	anyChange := false

	for _, kind := range kinds {
		fsBodies, err := s.fsBodies(ctx, kind)
		if err != nil {
			return nil, err
		}
		storeBodies, err := s.storeBodies(ctx, kind)
		if err != nil {
			return nil, err
		}

		var result KindResult
		for name, body := range fsBodies {
			existing, existed := storeBodies[name]
			if err := s.store.Put(ctx, kind, name, body); err != nil {
				result.Failed++
				result.Errors = append(result.Errors, name+": "+err.Error())
				continue
			}
			anyChange = true
			if !existed {
				result.Created++
			} else if existing != body {
				result.Updated++
			}
		}
		results[kind] = result
	}

	if anyChange {
		s.publishChanged(ctx, "migrate_fs_to_store")
	}
	return results, nil
}

// ExportStoreToFS reads every descriptor out of the store and serializes
// each kind to its canonical mapping-document YAML text.
func (s *Service) ExportStoreToFS(ctx context.Context) (databasesYAML, queriesYAML, endpointsYAML string, err error) {
	loader := config.NewStoreLoader(s.store)

	dbs, _, err := loader.LoadDatabases(ctx)
	if err != nil {
		return "", "", "", err
	}
	dbsBody, err := yaml.Marshal(dbs)
	if err != nil {
		return "", "", "", err
	}

	queries, err := loader.LoadQueries(ctx)
	if err != nil {
		return "", "", "", err
	}
	queriesBody, err := yaml.Marshal(queries)
	if err != nil {
		return "", "", "", err
	}

	endpoints, err := loader.LoadEndpoints(ctx)
	if err != nil {
		return "", "", "", err
	}
	endpointsBody, err := yaml.Marshal(endpoints)
	if err != nil {
		return "", "", "", err
	}

	return string(dbsBody), string(queriesBody), string(endpointsBody), nil
}

// Status reports, per descriptor kind, how many descriptors each side
// holds and whether the two sides are identical — a cheap summary for a
// status dashboard, distinct from Compare's full name-by-name diff.
func (s *Service) Status(ctx context.Context) (map[string]StatusResult, error) {
	results := make(map[string]StatusResult, len(kinds))
	for _, kind := range kinds {
		fsBodies, err := s.fsBodies(ctx, kind)
		if err != nil {
			return nil, err
		}
		storeBodies, err := s.storeBodies(ctx, kind)
		if err != nil {
			return nil, err
		}

		inSync := len(fsBodies) == len(storeBodies)
		if inSync {
			for name, body := range fsBodies {
				if storeBodies[name] != body {
					inSync = false
					break
				}
			}
		}
		results[kind] = StatusResult{
			FilesystemCount: len(fsBodies),
			StoreCount:      len(storeBodies),
			InSync:          inSync,
		}
	}
	return results, nil
}

// Compare buckets each descriptor kind's names into onlyInFilesystem,
// onlyInStore and inBoth.
func (s *Service) Compare(ctx context.Context) (map[string]CompareResult, error) {
	results := make(map[string]CompareResult, len(kinds))
	for _, kind := range kinds {
		fsBodies, err := s.fsBodies(ctx, kind)
		if err != nil {
			return nil, err
		}
		storeBodies, err := s.storeBodies(ctx, kind)
		if err != nil {
			return nil, err
		}

		var result CompareResult
		for name := range fsBodies {
			if _, ok := storeBodies[name]; ok {
				result.InBoth = append(result.InBoth, name)
			} else {
				result.OnlyInFilesystem = append(result.OnlyInFilesystem, name)
			}
		}
		for name := range storeBodies {
			if _, ok := fsBodies[name]; !ok {
				result.OnlyInStore = append(result.OnlyInStore, name)
			}
		}
		results[kind] = result
	}
	return results, nil
}

// Sync reconciles each descriptor kind's filesystem and store copies under
// strategy, applying one of the five Action outcomes to every name that
// differs between the two sides. The filesystem side is never rewritten
// (filesystem rewrites are out of CORDAL's scope), so every
// ActionCopyStoreToFS is a no-op that still counts as successful.
func (s *Service) Sync(ctx context.Context, strategy Strategy) (map[string]SyncResult, error) {
	results := make(map[string]SyncResult, len(kinds))
	anyChange := false

	for _, kind := range kinds {
		fsBodies, err := s.fsBodies(ctx, kind)
		if err != nil {
			return nil, err
		}
		storeBodies, err := s.storeBodies(ctx, kind)
		if err != nil {
			return nil, err
		}

		var result SyncResult

		for name, fsBody := range fsBodies {
			storeBody, inStore := storeBodies[name]
			if inStore && storeBody == fsBody {
				continue
			}
			action := syncAction(strategy, inStore)
			if applySync(ctx, s.store, kind, name, fsBody, action, &result) {
				anyChange = true
			}
		}

		for name := range storeBodies {
			if _, inFS := fsBodies[name]; inFS {
				continue
			}
			action := syncActionOnlyInStore(strategy)
			if applySync(ctx, s.store, kind, name, "", action, &result) {
				anyChange = true
			}
		}

		results[kind] = result
	}

	if anyChange {
		s.publishChanged(ctx, "sync:"+string(strategy))
	}
	return results, nil
}

// syncAction decides the action for a name present on the filesystem
// (either only-there, or present on both sides with differing bodies).
func syncAction(strategy Strategy, inStore bool) Action {
	switch strategy {
	case StrategyFSToStore, StrategyFSWins:
		return ActionCopyFSToStore
	case StrategyStoreToFS, StrategyStoreWins:
		if inStore {
			return ActionCopyStoreToFS
		}
		return ActionCopyFSToStore
	case StrategyManualReview:
		return ActionManualReview
	default:
		return ActionManualReview
	}
}

// syncActionOnlyInStore decides the action for a name present only in the
// store.
func syncActionOnlyInStore(strategy Strategy) Action {
	switch strategy {
	case StrategyFSToStore, StrategyFSWins:
		return ActionDeleteFromStore
	case StrategyStoreToFS, StrategyStoreWins:
		return ActionCopyStoreToFS
	case StrategyManualReview:
		return ActionManualReview
	default:
		return ActionManualReview
	}
}

// applySync executes action against the store, updating result. It
// reports whether the store was actually mutated.
func applySync(ctx context.Context, store config.Store, kind, name, fsBody string, action Action, result *SyncResult) bool {
	switch action {
	case ActionCopyFSToStore:
		if err := store.Put(ctx, kind, name, fsBody); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, name+": "+err.Error())
			return false
		}
		result.Successful++
		return true
	case ActionDeleteFromStore:
		if err := store.Delete(ctx, kind, name); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, name+": "+err.Error())
			return false
		}
		result.Successful++
		return true
	case ActionCopyStoreToFS:
		result.Successful++
		return false
	case ActionManualReview:
		result.ManualReviewItems = append(result.ManualReviewItems, name)
		return false
	default:
		return false
	}
}

func (s *Service) publishChanged(ctx context.Context, reason string) {
	if s.bus == nil {
		return
	}
	s.bus.PublishSync(ctx, events.New(events.TypeConfigurationChanged, map[string]any{"reason": reason}, events.SourceManagement))
}

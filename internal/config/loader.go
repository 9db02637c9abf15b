package config

import "context"

// Loader is the contract every descriptor source (filesystem, store)
// implements. A malformed database file is skipped with a warning rather
// than aborting the whole load, so one bad database descriptor does not
// take every query and endpoint down with it — but a generation with zero
// surviving databases can serve nothing and is rejected by the registry
// regardless. Query and Endpoint load failures are fatal: a query or
// endpoint descriptor is load-bearing enough on its own that a parse
// failure there must stop the publish rather than silently narrow it.
type Loader interface {
	LoadDatabases(ctx context.Context) ([]Database, []*LoadError, error)
	LoadQueries(ctx context.Context) ([]Query, error)
	LoadEndpoints(ctx context.Context) ([]Endpoint, error)
}

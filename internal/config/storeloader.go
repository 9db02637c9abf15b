package config

import (
	"context"

	"gopkg.in/yaml.v3"
)

// StoreLoader reads descriptors out of a Store's three tables, decoding
// each row's YAML body into its descriptor type. It has the same
// fatal-vs-skip failure policy as FilesystemLoader: a malformed database
// row is skipped and reported, a malformed query/endpoint row is fatal.
type StoreLoader struct {
	Store Store
}

func NewStoreLoader(store Store) *StoreLoader {
	return &StoreLoader{Store: store}
}

func decodeRecord[T any](r Record) (T, error) {
	var v T
	err := yaml.Unmarshal([]byte(r.Body), &v)
	return v, err
}

func (l *StoreLoader) LoadDatabases(ctx context.Context) ([]Database, []*LoadError, error) {
	records, err := l.Store.List(ctx, string(kindDatabase))
	if err != nil {
		return nil, nil, newLoadError("database", "store", err)
	}
	out := make([]Database, 0, len(records))
	var skipped []*LoadError
	for _, r := range records {
		d, err := decodeRecord[Database](r)
		if err != nil {
			skipped = append(skipped, newLoadError("database", r.Name, err))
			continue
		}
		out = append(out, d)
	}
	return out, skipped, nil
}

func (l *StoreLoader) LoadQueries(ctx context.Context) ([]Query, error) {
	records, err := l.Store.List(ctx, string(kindQuery))
	if err != nil {
		return nil, newLoadError("query", "store", err)
	}
	out := make([]Query, 0, len(records))
	for _, r := range records {
		q, err := decodeRecord[Query](r)
		if err != nil {
			return nil, newLoadError("query", r.Name, err)
		}
		out = append(out, q)
	}
	return out, nil
}

func (l *StoreLoader) LoadEndpoints(ctx context.Context) ([]Endpoint, error) {
	records, err := l.Store.List(ctx, string(kindEndpoint))
	if err != nil {
		return nil, newLoadError("endpoint", "store", err)
	}
	out := make([]Endpoint, 0, len(records))
	for _, r := range records {
		e, err := decodeRecord[Endpoint](r)
		if err != nil {
			return nil, newLoadError("endpoint", r.Name, err)
		}
		out = append(out, e)
	}
	return out, nil
}

var _ Loader = (*StoreLoader)(nil)

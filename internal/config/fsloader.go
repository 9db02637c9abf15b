package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FilesystemLoader reads descriptors from YAML files under a set of
// directories, matched with shell glob patterns — the filesystem half of
// spec.md §4.2's "identical loader contract, two backends" design.
type FilesystemLoader struct {
	Directories []string
	Patterns    struct {
		Databases string
		Queries   string
		Endpoints string
	}
}

func NewFilesystemLoader(directories []string, databasesPattern, queriesPattern, endpointsPattern string) *FilesystemLoader {
	l := &FilesystemLoader{Directories: directories}
	l.Patterns.Databases = databasesPattern
	l.Patterns.Queries = queriesPattern
	l.Patterns.Endpoints = endpointsPattern
	return l
}

func (l *FilesystemLoader) matchFiles(pattern string) ([]string, error) {
	var files []string
	for _, dir := range l.Directories {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
		files = append(files, matches...)
	}
	return files, nil
}

// decodeYAMLDescriptors reads path and decodes it either as a single
// descriptor document or as a YAML sequence of descriptors, returning the
// decoded descriptors as a slice.
func decodeYAMLDescriptors[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var asList []T
	if err := yaml.Unmarshal(data, &asList); err == nil && len(asList) > 0 {
		return asList, nil
	}

	var single T
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	return []T{single}, nil
}

// LoadDatabases loads every matched file, but an individual file's parse
// failure is collected as a non-fatal *LoadError rather than aborting the
// whole load — one malformed database descriptor should not prevent every
// other database from serving. The registry still rejects a generation
// that ends up with zero surviving databases.
func (l *FilesystemLoader) LoadDatabases(ctx context.Context) ([]Database, []*LoadError, error) {
	files, err := l.matchFiles(l.Patterns.Databases)
	if err != nil {
		return nil, nil, newLoadError("database", l.Patterns.Databases, err)
	}
	var out []Database
	var skipped []*LoadError
	for _, f := range files {
		descs, err := decodeYAMLDescriptors[Database](f)
		if err != nil {
			skipped = append(skipped, newLoadError("database", f, err))
			continue
		}
		out = append(out, descs...)
	}
	return out, skipped, nil
}

// LoadQueries aborts the whole load on the first malformed file: unlike a
// database descriptor, a query descriptor that fails to parse cannot be
// silently dropped without risking endpoints that reference it being
// published against a registry that no longer has it. A name reused across
// two files is also fatal, naming the second file that redefined it.
func (l *FilesystemLoader) LoadQueries(ctx context.Context) ([]Query, error) {
	files, err := l.matchFiles(l.Patterns.Queries)
	if err != nil {
		return nil, newLoadError("query", l.Patterns.Queries, err)
	}
	var out []Query
	seenIn := map[string]string{}
	for _, f := range files {
		descs, err := decodeYAMLDescriptors[Query](f)
		if err != nil {
			return nil, newLoadError("query", f, err)
		}
		for _, d := range descs {
			if first, dup := seenIn[d.Name]; dup {
				return nil, newLoadError("query", f, fmt.Errorf("duplicate query name %q already defined in %s", d.Name, first))
			}
			seenIn[d.Name] = f
		}
		out = append(out, descs...)
	}
	return out, nil
}

// LoadEndpoints aborts the whole load on the first malformed file, and on
// the first method+path collision between two files.
func (l *FilesystemLoader) LoadEndpoints(ctx context.Context) ([]Endpoint, error) {
	files, err := l.matchFiles(l.Patterns.Endpoints)
	if err != nil {
		return nil, newLoadError("endpoint", l.Patterns.Endpoints, err)
	}
	var out []Endpoint
	seenIn := map[string]string{}
	for _, f := range files {
		descs, err := decodeYAMLDescriptors[Endpoint](f)
		if err != nil {
			return nil, newLoadError("endpoint", f, err)
		}
		for _, d := range descs {
			key := d.Key()
			if first, dup := seenIn[key]; dup {
				return nil, newLoadError("endpoint", f, fmt.Errorf("duplicate endpoint %q already defined in %s", key, first))
			}
			seenIn[key] = f
		}
		out = append(out, descs...)
	}
	return out, nil
}

var _ Loader = (*FilesystemLoader)(nil)

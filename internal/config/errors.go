package config

import (
	"errors"
	"fmt"
)

// ErrValidationFailed wraps a Reload failure caused by a structurally
// valid but semantically invalid generation (duplicate names, unknown
// references) being rejected under RunOnStartup — as opposed to a failure
// to even assemble a candidate generation (parse errors, zero databases),
// which callers should treat as a distinct, more fundamental failure.
var ErrValidationFailed = errors.New("configuration validation failed")

// LoadError reports a failure to load or parse one descriptor source.
// Kind is "database", "query" or "endpoint"; Path is the filesystem path or
// store key that failed.
type LoadError struct {
	Kind string
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s %s: %v", e.Kind, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func newLoadError(kind, path string, err error) *LoadError {
	return &LoadError{Kind: kind, Path: path, Err: err}
}

// Package config models the three descriptor kinds that drive the whole
// system — Database, Query and Endpoint — plus the loaders and registry
// that turn them into a live, queryable configuration plane.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// tagValidator runs the struct-tag constraints declared on Database, Query
// and Endpoint (required fields, oneof enumerations). Cross-entity checks
// (unknown database/query references, duplicate names, path-segment/param
// matching) stay hand-written below since they need more than one
// descriptor's tags to evaluate.
var tagValidator = validator.New()

// structTagErrors runs v's struct tags and renders each violation as a
// human-readable message, newest Go idiom for combining tag-based and
// hand-written validation in one report.
func structTagErrors(v any) []string {
	err := tagValidator.Struct(v)
	if err == nil {
		return nil
	}
	var errs []string
	for _, fe := range err.(validator.ValidationErrors) {
		switch fe.Tag() {
		case "required":
			errs = append(errs, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			errs = append(errs, fmt.Sprintf("%s has invalid value %q, must be one of: %s", fe.Field(), fe.Value(), fe.Param()))
		default:
			errs = append(errs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return errs
}

// ParamType is the closed set of formal parameter types a Query or Endpoint
// parameter can declare.
type ParamType string

const (
	ParamString    ParamType = "STRING"
	ParamInteger   ParamType = "INTEGER"
	ParamLong      ParamType = "LONG"
	ParamDecimal   ParamType = "DECIMAL"
	ParamBoolean   ParamType = "BOOLEAN"
	ParamTimestamp ParamType = "TIMESTAMP"
)

func (t ParamType) valid() bool {
	switch t {
	case ParamString, ParamInteger, ParamLong, ParamDecimal, ParamBoolean, ParamTimestamp:
		return true
	}
	return false
}

// ParamSource names where an endpoint parameter's value is read from.
type ParamSource string

const (
	SourcePath  ParamSource = "PATH"
	SourceQuery ParamSource = "QUERY"
	SourceBody  ParamSource = "BODY"
)

// Database is an immutable descriptor for one logical database connection.
type Database struct {
	Name        string `yaml:"name" json:"name" validate:"required"`
	Description string `yaml:"description" json:"description"`
	Driver      string `yaml:"driver" json:"driver" validate:"required,oneof=postgres sqlite"`
	URL         string `yaml:"url" json:"url" validate:"required"`
	Username    string `yaml:"username" json:"username,omitempty"`
	Password    string `yaml:"password" json:"-"`

	PoolMinConns       int `yaml:"poolMinConns" json:"poolMinConns"`
	PoolMaxConns       int `yaml:"poolMaxConns" json:"poolMaxConns"`
	PoolMaxConnLifeSec int `yaml:"poolMaxConnLifetimeSeconds" json:"poolMaxConnLifetimeSeconds"`
	PoolMaxIdleSec     int `yaml:"poolMaxConnIdleSeconds" json:"poolMaxConnIdleSeconds"`
}

// ResolvedURL substitutes ${prop:default} placeholders in URL against
// environment variables, falling back to the declared default.
func (d Database) ResolvedURL() string {
	return substituteEnv(d.URL)
}

var envPlaceholder = regexp.MustCompile(`\$\{([A-Za-z0-9_.]+)(?::([^}]*))?\}`)

func substituteEnv(s string) string {
	return envPlaceholder.ReplaceAllStringFunc(s, func(match string) string {
		sub := envPlaceholder.FindStringSubmatch(match)
		name, def := sub[1], sub[2]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return def
	})
}

func (d Database) validate() []string {
	var errs []string
	for _, fe := range structTagErrors(d) {
		errs = append(errs, fmt.Sprintf("database %q: %s", d.Name, fe))
	}
	if d.PoolMaxConns > 0 && d.PoolMinConns > d.PoolMaxConns {
		errs = append(errs, fmt.Sprintf("database %q: poolMinConns > poolMaxConns", d.Name))
	}
	return errs
}

// CacheStrategy names a cache eviction/admission strategy. LRU is the only
// strategy currently implemented.
type CacheStrategy string

const CacheStrategyLRU CacheStrategy = "LRU"

// InvalidationRule declares that a cache entry should be dropped when a
// named event is published and (optionally) a condition holds.
type InvalidationRule struct {
	EventType string   `yaml:"eventType" json:"eventType"`
	Patterns  []string `yaml:"patterns" json:"patterns"`
	Condition string   `yaml:"condition,omitempty" json:"condition,omitempty"`
	DelayMS   int      `yaml:"delayMs,omitempty" json:"delayMs,omitempty"`
	Async     bool     `yaml:"async,omitempty" json:"async,omitempty"`
}

// CacheSpec is a Query descriptor's optional cache configuration.
type CacheSpec struct {
	Enabled          bool               `yaml:"enabled" json:"enabled"`
	Strategy         CacheStrategy      `yaml:"strategy" json:"strategy"`
	TTLSeconds       int                `yaml:"ttlSeconds" json:"ttlSeconds"`
	MaxSize          int                `yaml:"maxSize" json:"maxSize"`
	KeyPattern       string             `yaml:"keyPattern,omitempty" json:"keyPattern,omitempty"`
	InvalidateOn     []string           `yaml:"invalidateOn,omitempty" json:"invalidateOn,omitempty"`
	RefreshAsync     bool               `yaml:"refreshAsync,omitempty" json:"refreshAsync,omitempty"`
	Preload          bool               `yaml:"preload,omitempty" json:"preload,omitempty"`
	InvalidationRules []InvalidationRule `yaml:"invalidationRules,omitempty" json:"invalidationRules,omitempty"`
}

func (c CacheSpec) validate(queryName string) []string {
	var errs []string
	if !c.Enabled {
		return errs
	}
	if c.Strategy != CacheStrategyLRU {
		errs = append(errs, fmt.Sprintf("query %q: unsupported cache strategy %q", queryName, c.Strategy))
	}
	if c.TTLSeconds <= 0 {
		errs = append(errs, fmt.Sprintf("query %q: cache.ttlSeconds must be positive", queryName))
	}
	if c.MaxSize <= 0 {
		errs = append(errs, fmt.Sprintf("query %q: cache.maxSize must be positive", queryName))
	}
	if c.KeyPattern != "" && !bracesBalanced(c.KeyPattern) {
		errs = append(errs, fmt.Sprintf("query %q: cache.keyPattern has unbalanced braces: %q", queryName, c.KeyPattern))
	}
	return errs
}

func bracesBalanced(s string) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// Param is a single formal parameter of a Query descriptor.
type Param struct {
	Name     string    `yaml:"name" json:"name"`
	Type     ParamType `yaml:"type" json:"type"`
	Required bool      `yaml:"required" json:"required"`
}

// Query is an immutable descriptor for one parameterized SQL statement
// against a named Database.
type Query struct {
	Name        string    `yaml:"name" json:"name" validate:"required"`
	Description string    `yaml:"description" json:"description"`
	Database    string    `yaml:"database" json:"database" validate:"required"`
	SQL         string    `yaml:"sql" json:"sql" validate:"required"`
	Params      []Param   `yaml:"params" json:"params"`
	Cache       CacheSpec `yaml:"cache,omitempty" json:"cache,omitempty"`
}

func (q Query) validate(databases map[string]Database) []string {
	var errs []string
	for _, fe := range structTagErrors(q) {
		errs = append(errs, fmt.Sprintf("query %q: %s", q.Name, fe))
	}
	if q.Database != "" {
		if _, ok := databases[q.Database]; !ok {
			errs = append(errs, fmt.Sprintf("query %q: references unknown database %q", q.Name, q.Database))
		}
	}
	seen := map[string]bool{}
	for _, p := range q.Params {
		if p.Name == "" {
			errs = append(errs, fmt.Sprintf("query %q: parameter with empty name", q.Name))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Sprintf("query %q: duplicate parameter name %q", q.Name, p.Name))
		}
		seen[p.Name] = true
		if !p.Type.valid() {
			errs = append(errs, fmt.Sprintf("query %q: parameter %q has invalid type %q", q.Name, p.Name, p.Type))
		}
	}
	errs = append(errs, q.Cache.validate(q.Name)...)
	return errs
}

// PaginationSpec is an Endpoint descriptor's optional pagination config.
type PaginationSpec struct {
	Enabled     bool `yaml:"enabled" json:"enabled"`
	DefaultSize int  `yaml:"defaultSize" json:"defaultSize"`
	MaxSize     int  `yaml:"maxSize" json:"maxSize"`
}

// EndpointParam is a single request parameter an Endpoint exposes.
type EndpointParam struct {
	Name         string      `yaml:"name" json:"name"`
	Type         ParamType   `yaml:"type" json:"type"`
	Required     bool        `yaml:"required" json:"required"`
	DefaultValue string      `yaml:"defaultValue,omitempty" json:"defaultValue,omitempty"`
	Source       ParamSource `yaml:"source" json:"source"`
	Description  string      `yaml:"description,omitempty" json:"description,omitempty"`
}

// ResponseType names the shape an Endpoint's response takes.
type ResponseType string

const (
	ResponseSingle ResponseType = "SINGLE"
	ResponsePaged  ResponseType = "PAGED"
	ResponseList   ResponseType = "LIST"
)

// ResponseSpec describes an Endpoint's response shape.
type ResponseSpec struct {
	Type   ResponseType `yaml:"type" json:"type"`
	Fields []string     `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// Endpoint is an immutable descriptor for one HTTP route.
type Endpoint struct {
	Path        string          `yaml:"path" json:"path" validate:"required"`
	Method      string          `yaml:"method" json:"method" validate:"required,oneof=GET POST PUT DELETE PATCH get post put delete patch"`
	Description string          `yaml:"description" json:"description"`
	Query       string          `yaml:"query" json:"query" validate:"required"`
	CountQuery  string          `yaml:"countQuery,omitempty" json:"countQuery,omitempty"`
	Pagination  PaginationSpec  `yaml:"pagination,omitempty" json:"pagination,omitempty"`
	Params      []EndpointParam `yaml:"params" json:"params"`
	Response    ResponseSpec    `yaml:"response" json:"response"`
}

var pathSegment = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// PathParamNames returns the `{name}` segments declared in Path, in order.
func (e Endpoint) PathParamNames() []string {
	matches := pathSegment.FindAllStringSubmatch(e.Path, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

func (e Endpoint) validate(queries map[string]Query) []string {
	var errs []string
	for _, fe := range structTagErrors(e) {
		errs = append(errs, fmt.Sprintf("endpoint %s: %s", e.Path, fe))
	}
	if e.Query != "" {
		if _, ok := queries[e.Query]; !ok {
			errs = append(errs, fmt.Sprintf("endpoint %s: references unknown query %q", e.Path, e.Query))
		}
	}
	if e.CountQuery != "" {
		if _, ok := queries[e.CountQuery]; !ok {
			errs = append(errs, fmt.Sprintf("endpoint %s: references unknown countQuery %q", e.Path, e.CountQuery))
		}
	}
	if e.Response.Type == ResponsePaged && !e.Pagination.Enabled {
		errs = append(errs, fmt.Sprintf("endpoint %s: response.type=PAGED requires pagination.enabled", e.Path))
	}
	if e.Pagination.Enabled {
		if e.Pagination.DefaultSize <= 0 {
			errs = append(errs, fmt.Sprintf("endpoint %s: pagination.defaultSize must be positive", e.Path))
		}
		if e.Pagination.MaxSize <= 0 || e.Pagination.MaxSize < e.Pagination.DefaultSize {
			errs = append(errs, fmt.Sprintf("endpoint %s: pagination.maxSize must be >= defaultSize", e.Path))
		}
	}
	switch e.Response.Type {
	case ResponseSingle, ResponsePaged, ResponseList:
	default:
		errs = append(errs, fmt.Sprintf("endpoint %s: invalid response.type %q", e.Path, e.Response.Type))
	}

	seen := map[string]bool{}
	for _, p := range e.Params {
		if p.Name == "" {
			errs = append(errs, fmt.Sprintf("endpoint %s: parameter with empty name", e.Path))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Sprintf("endpoint %s: duplicate parameter name %q", e.Path, p.Name))
		}
		seen[p.Name] = true
		if !p.Type.valid() {
			errs = append(errs, fmt.Sprintf("endpoint %s: parameter %q has invalid type %q", e.Path, p.Name, p.Type))
		}
		switch p.Source {
		case SourcePath, SourceQuery, SourceBody:
		default:
			errs = append(errs, fmt.Sprintf("endpoint %s: parameter %q has invalid source %q", e.Path, p.Name, p.Source))
		}
	}
	for _, name := range e.PathParamNames() {
		if !seen[name] {
			errs = append(errs, fmt.Sprintf("endpoint %s: path segment {%s} has no matching parameter declaration", e.Path, name))
		}
	}
	return errs
}

// Key uniquely identifies an endpoint within the registry (method + path).
func (e Endpoint) Key() string {
	return strings.ToUpper(e.Method) + " " + e.Path
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseResolvedURL(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	d := Database{URL: "postgres://${DB_HOST:localhost}:5432/app"}
	assert.Equal(t, "postgres://db.internal:5432/app", d.ResolvedURL())
}

func TestDatabaseResolvedURLDefault(t *testing.T) {
	d := Database{URL: "postgres://${DB_HOST_UNSET:localhost}:5432/app"}
	assert.Equal(t, "postgres://localhost:5432/app", d.ResolvedURL())
}

func TestBracesBalanced(t *testing.T) {
	assert.True(t, bracesBalanced("name:{id}&type={type}"))
	assert.False(t, bracesBalanced("name:{id"))
	assert.False(t, bracesBalanced("name:id}"))
}

func TestEndpointPathParamNames(t *testing.T) {
	e := Endpoint{Path: "/api/users/{id}/orders/{orderId}"}
	assert.Equal(t, []string{"id", "orderId"}, e.PathParamNames())
}

func TestQueryValidateUnknownDatabase(t *testing.T) {
	q := Query{Name: "q1", SQL: "SELECT 1", Database: "missing"}
	errs := q.validate(map[string]Database{})
	assert.Contains(t, errs, `query "q1": references unknown database "missing"`)
}

func TestQueryValidateDuplicateParam(t *testing.T) {
	q := Query{
		Name:     "q1",
		SQL:      "SELECT 1",
		Database: "db1",
		Params: []Param{
			{Name: "id", Type: ParamInteger},
			{Name: "id", Type: ParamString},
		},
	}
	errs := q.validate(map[string]Database{"db1": {Name: "db1"}})
	assert.Contains(t, errs, `query "q1": duplicate parameter name "id"`)
}

func TestEndpointValidatePathParamMissingDeclaration(t *testing.T) {
	e := Endpoint{
		Path:     "/users/{id}",
		Method:   "GET",
		Query:    "q1",
		Response: ResponseSpec{Type: ResponseSingle},
	}
	errs := e.validate(map[string]Query{"q1": {Name: "q1"}})
	assert.Contains(t, errs, `endpoint /users/{id}: path segment {id} has no matching parameter declaration`)
}

func TestEndpointValidatePagedRequiresPagination(t *testing.T) {
	e := Endpoint{
		Path:     "/users",
		Method:   "GET",
		Query:    "q1",
		Response: ResponseSpec{Type: ResponsePaged},
	}
	errs := e.validate(map[string]Query{"q1": {Name: "q1"}})
	assert.Contains(t, errs, "endpoint /users: response.type=PAGED requires pagination.enabled")
}

func TestCacheSpecValidateKeyPattern(t *testing.T) {
	c := CacheSpec{Enabled: true, Strategy: CacheStrategyLRU, TTLSeconds: 60, MaxSize: 10, KeyPattern: "name:{id"}
	errs := c.validate("q1")
	assert.NotEmpty(t, errs)
}

// Package query is the C8 query executor: binds declared parameters by
// type, executes a Query descriptor's SQL against its database's pool,
// materializes rows, and fronts the whole round trip with the C5 cache.
// Grounded on pkg/history/query/builder.go's placeholder-binding idiom
// and internal/database/postgres/pool.go's Query/QueryRow methods.
package query

// Row is an ordered, typed view of one result row, preserving column
// order and offering null-safe accessors, per the GLOSSARY's
// Map<String,Object>-with-column-order requirement for cached rows.
type Row struct {
	columns []string
	values  map[string]any
}

func NewRow(columns []string, values map[string]any) Row {
	return Row{columns: columns, values: values}
}

// Columns returns the column labels in select order.
func (r Row) Columns() []string {
	return r.columns
}

func (r Row) Get(column string) (any, bool) {
	v, ok := r.values[column]
	return v, ok
}

func (r Row) String(column string) string {
	if v, ok := r.values[column]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// MarshalJSON preserves column order instead of Go map's randomized
// iteration, by emitting an explicit field sequence.
func (r Row) MarshalJSON() ([]byte, error) {
	return marshalOrdered(r.columns, r.values)
}

// ToMap returns the row as a column->value mapping for callers (e.g. the
// dispatcher) that just need JSON-serializable data without caring about
// column order.
func (r Row) ToMap() map[string]any {
	return r.values
}

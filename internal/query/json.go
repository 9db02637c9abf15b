package query

import (
	"bytes"
	"encoding/json"
)

// marshalOrdered writes {"col1":val1,"col2":val2,...} with columns in the
// given order, since encoding/json sorts map keys alphabetically and the
// whole point of Row is to preserve select-list order.
func marshalOrdered(columns []string, values map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(values[col])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

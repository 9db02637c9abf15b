package dispatch

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/cordal/cordal/internal/apierrors"
	"github.com/cordal/cordal/internal/query"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// shapeSingle implements spec.md §4.8 step 5's SINGLE rule: NotFound on
// an empty result, a logged warning and the first row on more than one.
func shapeSingle(rows []query.Row, logger *slog.Logger) (any, *apierrors.Error) {
	if len(rows) == 0 {
		return nil, apierrors.NotFound("no matching row")
	}
	if len(rows) > 1 {
		logger.Warn("single-response query returned more than one row", "rows", len(rows))
	}
	return rows[0], nil
}

func shapeList(rows []query.Row) []query.Row {
	if rows == nil {
		return []query.Row{}
	}
	return rows
}

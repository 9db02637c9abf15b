// Package dispatch is the C9 request dispatcher: resolves a route to an
// Endpoint descriptor, extracts and coerces its declared parameters,
// drives C8 execution (with parallel count+data queries for paged
// endpoints), and shapes the response, per spec.md §4.8.
package dispatch

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cordal/cordal/internal/apierrors"
	"github.com/cordal/cordal/internal/config"
)

// extractParams resolves every declared EndpointParam's raw value from
// its source, applies type coercion, and returns a bound-parameter map
// keyed by parameter name. A missing required parameter, or one that
// fails to parse as a numeric/decimal type, returns a BadRequest error
// naming the offending parameter.
func extractParams(r *http.Request, pathVars map[string]string, params []config.EndpointParam) (map[string]any, *apierrors.Error) {
	bound := make(map[string]any, len(params))

	var bodyFields map[string]any
	if hasBodySource(params) {
		bodyFields = parseBodyFields(r)
	}

	query := r.URL.Query()

	for _, p := range params {
		raw, present := rawValue(p, pathVars, query, bodyFields)
		if !present {
			if p.Required {
				return nil, apierrors.BadRequest(fmt.Sprintf("missing required parameter %q", p.Name))
			}
			if p.DefaultValue != "" {
				coerced, err := coerceParam(p.Type, p.DefaultValue)
				if err != nil {
					return nil, apierrors.BadRequest(fmt.Sprintf("parameter %q: %v", p.Name, err))
				}
				bound[p.Name] = coerced
			}
			continue
		}
		coerced, err := coerceParam(p.Type, raw)
		if err != nil {
			return nil, apierrors.BadRequest(fmt.Sprintf("parameter %q: %v", p.Name, err))
		}
		bound[p.Name] = coerced
	}
	return bound, nil
}

func hasBodySource(params []config.EndpointParam) bool {
	for _, p := range params {
		if p.Source == config.SourceBody {
			return true
		}
	}
	return false
}

func parseBodyFields(r *http.Request) map[string]any {
	if r.Body == nil {
		return nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil || len(data) == 0 {
		return nil
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	return fields
}

func rawValue(p config.EndpointParam, pathVars map[string]string, query url.Values, body map[string]any) (string, bool) {
	switch p.Source {
	case config.SourcePath:
		v, ok := pathVars[p.Name]
		return v, ok && v != ""
	case config.SourceBody:
		if body == nil {
			return "", false
		}
		v, ok := body[p.Name]
		if !ok || v == nil {
			return "", false
		}
		return fmt.Sprintf("%v", v), true
	default: // QUERY
		if !query.Has(p.Name) {
			return "", false
		}
		return query.Get(p.Name), true
	}
}

// coerceParam applies spec.md §4.8 step 2's coercion table.
func coerceParam(t config.ParamType, raw string) (any, error) {
	switch t {
	case config.ParamInteger:
		v, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("not a valid integer: %q", raw)
		}
		return int32(v), nil
	case config.ParamLong:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not a valid long: %q", raw)
		}
		return v, nil
	case config.ParamDecimal:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("not a valid decimal: %q", raw)
		}
		return v, nil
	case config.ParamBoolean:
		lower := strings.ToLower(strings.TrimSpace(raw))
		return lower == "true" || lower == "1" || lower == "yes", nil
	case config.ParamTimestamp, config.ParamString:
		return raw, nil
	default:
		return raw, nil
	}
}

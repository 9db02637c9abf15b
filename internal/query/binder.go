package query

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cordal/cordal/internal/config"
)

// BindArgs sorts a Query descriptor's formal parameters by their declared
// position (index in Params, 1..N) and coerces each bound value to the Go
// type matching its declared ParamType, per spec.md §4.7 step 3's
// STRING/INTEGER/LONG/DECIMAL/BOOLEAN/TIMESTAMP binding table. A missing
// required value is an error; a missing optional one binds SQL NULL.
func BindArgs(params []config.Param, bound map[string]any) ([]any, error) {
	args := make([]any, 0, len(params))
	for _, p := range params {
		raw, present := bound[p.Name]
		if !present || raw == nil {
			if p.Required {
				return nil, fmt.Errorf("missing required parameter %q", p.Name)
			}
			args = append(args, nil)
			continue
		}
		coerced, err := coerce(p.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		args = append(args, coerced)
	}
	return args, nil
}

func coerce(t config.ParamType, v any) (any, error) {
	switch t {
	case config.ParamString, config.ParamTimestamp:
		return coerceString(t, v)
	case config.ParamInteger:
		return coerceInt(v)
	case config.ParamLong:
		return coerceLong(v)
	case config.ParamDecimal:
		return coerceDecimal(v)
	case config.ParamBoolean:
		return coerceBool(v), nil
	default:
		return v, nil
	}
}

func coerceString(t config.ParamType, v any) (any, error) {
	switch s := v.(type) {
	case string:
		if t == config.ParamTimestamp {
			if parsed, err := time.Parse(time.RFC3339, s); err == nil {
				return parsed, nil
			}
		}
		return s, nil
	case time.Time:
		return s, nil
	default:
		return fmt.Sprintf("%v", s), nil
	}
}

func coerceInt(v any) (any, error) {
	switch n := v.(type) {
	case int:
		return int32(n), nil
	case int32:
		return n, nil
	case int64:
		return int32(n), nil
	case float64:
		return int32(n), nil
	case string:
		var out int32
		if _, err := fmt.Sscanf(n, "%d", &out); err != nil {
			return nil, fmt.Errorf("not an integer: %q", n)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to INTEGER", v)
	}
}

func coerceLong(v any) (any, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	case string:
		var out int64
		if _, err := fmt.Sscanf(n, "%d", &out); err != nil {
			return nil, fmt.Errorf("not a long: %q", n)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to LONG", v)
	}
}

func coerceDecimal(v any) (any, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return nil, fmt.Errorf("not a decimal: %q", n)
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to DECIMAL", v)
	}
}

func coerceBool(v any) any {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch b {
		case "true", "1", "yes":
			return true
		default:
			return false
		}
	default:
		return false
	}
}

package strategy

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"stratlab/internal/domain"
)

// Params are the loosely typed strategy parameters of a run request. Values
// arrive from JSON, YAML or Go callers, so accessors accept any numeric form.
type Params map[string]any

// Int returns the integer stored under key, or def when the key is absent.
// Fractional floats are rejected.
func (p Params) Int(key string, def int) (int, error) {
	f, ok, err := p.number(key)
	if err != nil || !ok {
		return def, err
	}
	if f != math.Trunc(f) {
		return def, fmt.Errorf("%w: %s must be an integer, got %v", domain.ErrInvalidParams, key, f)
	}
	return int(f), nil
}

// Float returns the float stored under key, or def when the key is absent.
func (p Params) Float(key string, def float64) (float64, error) {
	f, ok, err := p.number(key)
	if err != nil || !ok {
		return def, err
	}
	return f, nil
}

func (p Params) number(key string) (float64, bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	var f float64
	switch x := v.(type) {
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint64:
		f = float64(x)
	case float32:
		f = float64(x)
	case float64:
		f = x
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, false, fmt.Errorf("%w: %s: %v", domain.ErrInvalidParams, key, err)
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false, fmt.Errorf("%w: %s: %q is not a number", domain.ErrInvalidParams, key, x)
		}
		f = n
	default:
		return 0, false, fmt.Errorf("%w: %s has unsupported type %T", domain.ErrInvalidParams, key, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("%w: %s must be finite", domain.ErrInvalidParams, key)
	}
	return f, true, nil
}

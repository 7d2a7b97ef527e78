package harness

import (
	"fmt"
	"math"
	"sort"

	"github.com/YuminosukeSato/churn/pkg/errors"
)

// Params holds the hyperparameters of one model configuration as decoded
// from JSON. Numbers arrive as float64; the typed getters convert them.
type Params map[string]any

// Int returns key as an int, or def when absent. Non-integral numbers are
// an error.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, paramError(key, "must be an integer", v)
		}
		return int(n), nil
	default:
		return 0, paramError(key, "must be an integer", v)
	}
}

// Float returns key as a float64, or def when absent.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, paramError(key, "must be a number", v)
	}
}

// String returns key as a string, or def when absent.
func (p Params) String(key, def string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", paramError(key, "must be a string", v)
	}
	return s, nil
}

// Bool returns key as a bool, or def when absent.
func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, paramError(key, "must be a boolean", v)
	}
	return b, nil
}

// Only rejects keys outside allowed, so a misspelled hyperparameter fails
// the fit instead of being ignored.
func (p Params) Only(allowed ...string) error {
	known := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		known[k] = true
	}
	var unknown []string
	for k := range p {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return errors.NewValueError("params", fmt.Sprintf("unknown hyperparameters %v, allowed %v", unknown, allowed))
	}
	return nil
}

func paramError(key, reason string, v any) error {
	return errors.NewValueError("params", fmt.Sprintf("%s %s, got %v (%T)", key, reason, v, v))
}

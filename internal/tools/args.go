package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/starford/ansuz/internal/apperr"
)

// Args are the decoded arguments of a tool call.
type Args map[string]any

func invalid(format string, a ...any) error {
	return fmt.Errorf("%w: %s", apperr.ErrInvalidArgument, fmt.Sprintf(format, a...))
}

// String returns a string argument. A missing required argument is an error.
func (a Args) String(name string, required bool) (string, error) {
	v, ok := a[name]
	if !ok || v == nil {
		if required {
			return "", invalid("%s is required", name)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", invalid("%s must be a string", name)
	}
	if required && s == "" {
		return "", invalid("%s is required", name)
	}
	return s, nil
}

// Int returns an integer argument or def when absent. JSON numbers arrive
// as float64 or json.Number depending on the decoder.
func (a Args) Int(name string, def int) (int, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, invalid("%s must be an integer", name)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, invalid("%s must be an integer", name)
		}
		return int(i), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, invalid("%s must be an integer", name)
		}
		return i, nil
	default:
		return 0, invalid("%s must be an integer", name)
	}
}

// Bool returns an optional boolean argument; nil when absent.
func (a Args) Bool(name string) (*bool, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return nil, nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil, invalid("%s must be a boolean", name)
	}
	return &b, nil
}

// Strings returns a list-of-strings argument.
func (a Args) Strings(name string) ([]string, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, invalid("%s must be a list of strings", name)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, invalid("%s must be a list of strings", name)
	}
}

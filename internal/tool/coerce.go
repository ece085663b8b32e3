package tool

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"modbot/internal/domain"
)

// coerceArgs checks raw against the declared parameters and returns the
// arguments the handler will see. Missing optional parameters take their
// declared default. Undeclared arguments are dropped when strict is set and
// passed through otherwise.
func coerceArgs(tool string, params []domain.Param, strict bool, raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	if !strict {
		for k, v := range raw {
			out[k] = v
		}
	}

	for _, p := range params {
		v, ok := raw[p.Name]
		if !ok || v == nil {
			if p.Required {
				return nil, &domain.ToolError{
					Kind:     domain.ErrInvalidArguments,
					Tool:     tool,
					Field:    p.Name,
					Expected: string(p.Type),
					Message:  "missing required argument",
				}
			}
			if p.Default == nil {
				delete(out, p.Name)
				continue
			}
			v = p.Default
		}
		cv, ok := coerceValue(p.Type, v)
		if !ok {
			return nil, &domain.ToolError{
				Kind:     domain.ErrInvalidArguments,
				Tool:     tool,
				Field:    p.Name,
				Expected: string(p.Type),
				Message:  fmt.Sprintf("got %s %s", typeName(v), preview(v)),
			}
		}
		out[p.Name] = cv
	}
	return out, nil
}

func coerceValue(t domain.ParamType, v any) (any, bool) {
	switch t {
	case domain.TypeString:
		s, ok := v.(string)
		return s, ok
	case domain.TypeNumber:
		return toFloat(v)
	case domain.TypeInteger:
		f, ok := toFloat(v)
		if !ok || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
			return nil, false
		}
		return int64(f), true
	case domain.TypeBoolean:
		switch x := v.(type) {
		case bool:
			return x, true
		case string:
			switch strings.ToLower(strings.TrimSpace(x)) {
			case "true":
				return true, true
			case "false":
				return false, true
			}
		}
		return nil, false
	case domain.TypeArray:
		switch x := v.(type) {
		case []any:
			return x, true
		case []string:
			out := make([]any, len(x))
			for i, s := range x {
				out[i] = s
			}
			return out, true
		}
		return nil, false
	case domain.TypeObject:
		m, ok := v.(map[string]any)
		return m, ok
	}
	return v, true
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func preview(v any) string {
	s := fmt.Sprintf("%v", v)
	if len(s) > 40 {
		s = s[:40] + "..."
	}
	return strconv.Quote(s)
}

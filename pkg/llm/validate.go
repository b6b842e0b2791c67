package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/harunnryd/pluma/pkg/errorsx"
)

// ValidateArguments type-checks args against params and verifies that every
// required name is present. It returns the declared subset of args;
// undeclared keys are dropped. The tool name is only used in error text.
func ValidateArguments(tool string, params Parameters, args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, req := range params.Required {
		v, ok := args[req]
		if !ok || v == nil {
			return nil, &errorsx.ValidationError{Tool: tool, Field: req, Problem: "is required"}
		}
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		prop, ok := params.Properties[k]
		if !ok {
			continue
		}
		v := args[k]
		if v == nil {
			continue
		}
		normalized, err := checkType(prop, v)
		if err != nil {
			return nil, &errorsx.ValidationError{Tool: tool, Field: k, Problem: err.Error()}
		}
		out[k] = normalized
	}
	return out, nil
}

func checkType(prop Property, v any) (any, error) {
	switch prop.Type {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %s", describe(v))
		}
		if len(prop.Enum) > 0 && !contains(prop.Enum, s) {
			return nil, fmt.Errorf("must be one of %s", strings.Join(prop.Enum, ", "))
		}
		return s, nil
	case TypeInteger:
		n, ok := asInteger(v)
		if !ok {
			return nil, fmt.Errorf("expected integer, got %s", describe(v))
		}
		return n, nil
	case TypeNumber:
		f, ok := asNumber(v)
		if !ok {
			return nil, fmt.Errorf("expected number, got %s", describe(v))
		}
		return f, nil
	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %s", describe(v))
		}
		return b, nil
	case TypeArray:
		a, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("expected array, got %s", describe(v))
		}
		return a, nil
	case TypeObject:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected object, got %s", describe(v))
		}
		return m, nil
	}
	return nil, fmt.Errorf("unsupported type %q", prop.Type)
}

// asInteger accepts Go integers and integral floats, which is what a JSON
// decoder produces for whole numbers.
func asInteger(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func describe(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int32, int64, float32, float64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// coerceRow converts the declared columns of row to their declared types.
// The input map is not modified; undeclared columns are passed through as is.
func coerceRow(row map[string]any, columns []Column) (map[string]any, error) {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}

	for _, col := range columns {
		v, err := coerceValue(row[col.Name], col.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		out[col.Name] = v
	}

	return out, nil
}

func coerceValue(v any, typeName string) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("input contains null")
	}

	switch typeName {
	case "float64":
		return toNumber(v)

	case "int", "int64":
		f, err := toNumber(v)
		if err != nil {
			return nil, err
		}
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("%v is not an integer", f)
		}
		if f < math.MinInt64 || f >= math.MaxInt64 {
			return nil, fmt.Errorf("value %v out of range for int64", f)
		}
		return int64(f), nil

	case "string":
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %s", describe(v))
		}
		return s, nil

	case "bool":
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return nil, fmt.Errorf("could not convert string to bool: '%s'", b)
			}
			return parsed, nil
		}
		f, err := toNumber(v)
		if err != nil {
			return nil, err
		}
		if f != 0 && f != 1 {
			return nil, fmt.Errorf("could not convert %v to bool", f)
		}
		return f == 1, nil
	}

	return nil, fmt.Errorf("unsupported column type %q", typeName)
}

func toNumber(v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("could not convert string to float: '%s'", n)
		}
		f = parsed
	case bool:
		if n {
			f = 1
		}
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("could not convert string to float: '%s'", n)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("expected number, got %s", describe(v))
	}

	if math.IsNaN(f) {
		return 0, fmt.Errorf("input contains NaN")
	}
	if math.IsInf(f, 0) {
		return 0, fmt.Errorf("input contains infinity")
	}
	return f, nil
}

// describe names the JSON kind of a decoded value for error messages
func describe(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "bool"
	case float64, float32, int, int32, int64, json.Number:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}

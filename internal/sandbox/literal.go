package sandbox

import (
	"fmt"
	"strconv"
	"strings"
)

// literalKind classifies a decoded JSON value (the shapes TestCase.Input
// and TestCase.Output actually hold) for literal emission into a
// compiled language. Only the shapes the original_source coding
// questions use are supported: numbers, strings, bools, and flat
// arrays of numbers or strings.
type literalKind int

const (
	kindInt literalKind = iota
	kindFloat
	kindString
	kindBool
	kindIntArray
	kindStringArray
	kindUnknown
)

func classify(v any) literalKind {
	switch x := v.(type) {
	case float64:
		if x == float64(int64(x)) {
			return kindInt
		}
		return kindFloat
	case int:
		return kindInt
	case string:
		return kindString
	case bool:
		return kindBool
	case []any:
		if len(x) == 0 {
			return kindIntArray
		}
		switch x[0].(type) {
		case string:
			return kindStringArray
		default:
			return kindIntArray
		}
	default:
		return kindUnknown
	}
}

func asInt64(v any) int64 {
	switch x := v.(type) {
	case float64:
		return int64(x)
	case int:
		return int64(x)
	default:
		return 0
	}
}

// javaLiteral renders v as a Java expression, typed to match classify(v).
func javaLiteral(v any) string {
	switch classify(v) {
	case kindInt:
		return strconv.FormatInt(asInt64(v), 10)
	case kindFloat:
		return fmt.Sprintf("%v", v)
	case kindString:
		return strconv.Quote(v.(string))
	case kindBool:
		return strconv.FormatBool(v.(bool))
	case kindIntArray:
		arr := v.([]any)
		parts := make([]string, len(arr))
		for i, e := range arr {
			parts[i] = strconv.FormatInt(asInt64(e), 10)
		}
		return "new int[]{" + strings.Join(parts, ", ") + "}"
	case kindStringArray:
		arr := v.([]any)
		parts := make([]string, len(arr))
		for i, e := range arr {
			parts[i] = strconv.Quote(fmt.Sprintf("%v", e))
		}
		return "new String[]{" + strings.Join(parts, ", ") + "}"
	default:
		return "null"
	}
}

// cppLiteral renders v as a C++ expression.
func cppLiteral(v any) string {
	switch classify(v) {
	case kindInt:
		return strconv.FormatInt(asInt64(v), 10)
	case kindFloat:
		return fmt.Sprintf("%v", v)
	case kindString:
		return strconv.Quote(v.(string))
	case kindBool:
		return strconv.FormatBool(v.(bool))
	case kindIntArray:
		arr := v.([]any)
		parts := make([]string, len(arr))
		for i, e := range arr {
			parts[i] = strconv.FormatInt(asInt64(e), 10)
		}
		return "std::vector<int>{" + strings.Join(parts, ", ") + "}"
	case kindStringArray:
		arr := v.([]any)
		parts := make([]string, len(arr))
		for i, e := range arr {
			parts[i] = strconv.Quote(fmt.Sprintf("%v", e))
		}
		return "std::vector<std::string>{" + strings.Join(parts, ", ") + "}"
	default:
		return "nullptr"
	}
}

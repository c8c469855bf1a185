package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Type is the declared value type of a metric.
type Type int

const (
	Int Type = iota
	Float
	String
)

func (t Type) String() string {
	switch t {
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ParseType maps "int", "float" and "string" to a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "integer":
		return Int, nil
	case "float":
		return Float, nil
	case "string", "str":
		return String, nil
	}
	return 0, fmt.Errorf("unknown metric type %q", s)
}

// Rule extracts one field from capture group Group of Pattern.
type Rule struct {
	Field   string
	Pattern *regexp.Regexp
	Group   int
	Type    Type
}

func (r Rule) convert(raw string) (any, error) {
	switch r.Type {
	case Int:
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, &MetricParseError{Field: r.Field, Value: raw, Type: r.Type, Cause: err}
		}
		return v, nil
	case Float:
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, &MetricParseError{Field: r.Field, Value: raw, Type: r.Type, Cause: err}
		}
		return v, nil
	default:
		return raw, nil
	}
}

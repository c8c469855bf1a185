package parser

import "fmt"

// DuplicateFieldError is returned when a rule is declared for a field that
// already has one.
type DuplicateFieldError struct {
	Field string
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("duplicate metric field %q", e.Field)
}

// MetricParseError is returned when a matched capture is not a valid value of
// the rule's declared type.
type MetricParseError struct {
	Field string
	Value string
	Type  Type
	Cause error
}

func (e *MetricParseError) Error() string {
	return fmt.Sprintf("metric %q: cannot parse %q as %s: %v", e.Field, e.Value, e.Type, e.Cause)
}

func (e *MetricParseError) Unwrap() error {
	return e.Cause
}

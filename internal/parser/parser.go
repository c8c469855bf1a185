package parser

import (
	"fmt"
	"regexp"
)

// Result maps field names to int64, float64 or string values.
type Result map[string]any

// Int returns an integer field.
func (r Result) Int(field string) (int64, bool) {
	v, ok := r[field].(int64)
	return v, ok
}

// Float returns a float field.
func (r Result) Float(field string) (float64, bool) {
	v, ok := r[field].(float64)
	return v, ok
}

// Parser is an ordered, immutable-after-setup table of rules. It is safe
// for concurrent Parse calls once declaration is finished.
type Parser struct {
	rules  []Rule
	fields map[string]struct{}
}

func New() *Parser {
	return &Parser{fields: make(map[string]struct{})}
}

// AddPattern declares field as the first capture group of pattern.
func (p *Parser) AddPattern(field, pattern string, typ Type) error {
	return p.AddGroups(pattern, typ, field)
}

// AddGroups declares one field per capture group of pattern, in group order.
// Either all fields are added or none.
func (p *Parser) AddGroups(pattern string, typ Type, fields ...string) error {
	if len(fields) == 0 {
		return fmt.Errorf("pattern %q declares no fields", pattern)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("failed to compile pattern for %q: %w", fields[0], err)
	}
	if re.NumSubexp() < len(fields) {
		return fmt.Errorf("pattern %q has %d groups, %d fields declared", pattern, re.NumSubexp(), len(fields))
	}

	batch := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f == "" {
			return fmt.Errorf("empty field name for pattern %q", pattern)
		}
		if _, ok := p.fields[f]; ok {
			return &DuplicateFieldError{Field: f}
		}
		if _, ok := batch[f]; ok {
			return &DuplicateFieldError{Field: f}
		}
		batch[f] = struct{}{}
	}

	for i, f := range fields {
		p.rules = append(p.rules, Rule{Field: f, Pattern: re, Group: i + 1, Type: typ})
		p.fields[f] = struct{}{}
	}
	return nil
}

// MustAddPattern is AddPattern for static rule tables.
func (p *Parser) MustAddPattern(field, pattern string, typ Type) {
	if err := p.AddPattern(field, pattern, typ); err != nil {
		panic(err)
	}
}

// MustAddGroups is AddGroups for static rule tables.
func (p *Parser) MustAddGroups(pattern string, typ Type, fields ...string) {
	if err := p.AddGroups(pattern, typ, fields...); err != nil {
		panic(err)
	}
}

// Rules returns the declared rules in order.
func (p *Parser) Rules() []Rule {
	out := make([]Rule, len(p.rules))
	copy(out, p.rules)
	return out
}

// Fields returns the declared field names in order.
func (p *Parser) Fields() []string {
	out := make([]string, 0, len(p.rules))
	for _, r := range p.rules {
		out = append(out, r.Field)
	}
	return out
}

// Parse applies every rule to text. On a conversion failure it returns a nil
// Result and a *MetricParseError.
func (p *Parser) Parse(text string) (Result, error) {
	result := Result{}
	matches := make(map[*regexp.Regexp][]int)

	for _, r := range p.rules {
		loc, seen := matches[r.Pattern]
		if !seen {
			loc = r.Pattern.FindStringSubmatchIndex(text)
			matches[r.Pattern] = loc
		}
		// optional groups that did not participate leave the field absent
		if loc == nil || 2*r.Group+1 >= len(loc) || loc[2*r.Group] < 0 {
			continue
		}
		v, err := r.convert(text[loc[2*r.Group]:loc[2*r.Group+1]])
		if err != nil {
			return nil, err
		}
		result[r.Field] = v
	}
	return result, nil
}

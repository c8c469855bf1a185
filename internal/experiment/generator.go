package experiment

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	HeuristicPlaceholder = "{heuristic}"
	LandmarksPlaceholder = "{landmarks}"

	DefaultSearchTimeLimit = "30m"

	// DefaultSearchTemplate is the lazy greedy search over a landmark sum
	// heuristic with progression disabled.
	DefaultSearchTemplate = "let(hlm, {heuristic}({landmarks}, " +
		"transform=adapt_costs(one), " +
		"prog_goal=false, prog_gn=false, prog_w=false), " +
		"lazy_greedy([hlm], cost_type=one, reopen_closed=false))"
)

// Token is one substitutable piece of the search string. Alias is the short
// form used in configuration names.
type Token struct {
	Value string `yaml:"token" json:"token"`
	Alias string `yaml:"alias" json:"alias"`
}

// FixedConfig is a configuration taken verbatim instead of being generated
// from the template.
type FixedConfig struct {
	Nick string   `yaml:"nick" json:"nick"`
	Args []string `yaml:"args" json:"args"`
}

// Spec is the input of Generate. Heuristics and LandmarkGenerators are
// ordered; their order defines run order and naming.
type Spec struct {
	Heuristics         []Token
	LandmarkGenerators []Token
	Builds             []string
	Template           string
	SearchTimeLimit    string
	MemoryLimit        string
	Fixed              []FixedConfig
}

// Generate enumerates build x heuristic x landmark generator, followed by the
// fixed configurations of each build.
func Generate(spec Spec) ([]RunConfiguration, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	multiBuild := len(spec.Builds) > 1
	seen := make(map[string]struct{})
	var configs []RunConfiguration

	add := func(name string, args []string, build string) error {
		if multiBuild {
			name += "-" + build
		}
		if _, ok := seen[name]; ok {
			return configErrorf("configs", "duplicate configuration name %q", name)
		}
		seen[name] = struct{}{}
		configs = append(configs, NewRunConfiguration(name, args, build, spec.driverOptions(build)))
		return nil
	}

	for _, build := range spec.Builds {
		for _, h := range spec.Heuristics {
			for _, lm := range spec.LandmarkGenerators {
				search, err := spec.searchString(h, lm)
				if err != nil {
					return nil, err
				}
				if err := add(h.Alias+"-"+lm.Alias, []string{"--search", search}, build); err != nil {
					return nil, err
				}
			}
		}
		for _, f := range spec.Fixed {
			if err := add(f.Nick, f.Args, build); err != nil {
				return nil, err
			}
		}
	}
	return configs, nil
}

func (s Spec) template() string {
	if s.Template == "" {
		return DefaultSearchTemplate
	}
	return s.Template
}

func (s Spec) driverOptions(build string) []string {
	limit := s.SearchTimeLimit
	if limit == "" {
		limit = DefaultSearchTimeLimit
	}
	opts := []string{"--search-time-limit", limit}
	if s.MemoryLimit != "" {
		opts = append(opts, "--overall-memory-limit", s.MemoryLimit)
	}
	return append(opts, "--build", build)
}

func (s Spec) searchString(h, lm Token) (string, error) {
	search := strings.NewReplacer(
		HeuristicPlaceholder, h.Value,
		LandmarksPlaceholder, lm.Value,
	).Replace(s.template())

	if !Balanced(search) {
		return "", configErrorf("template", "unbalanced search string %q", search)
	}
	for _, tok := range []string{h.Value, lm.Value} {
		if n := strings.Count(search, tok); n != 1 {
			return "", configErrorf("template", "token %q occurs %d times in %q", tok, n, search)
		}
	}
	return search, nil
}

func (s Spec) validate() error {
	if len(s.Builds) == 0 {
		return configErrorf("builds", "at least one build is required")
	}
	if s.SearchTimeLimit != "" {
		if _, err := ParseTimeLimit(s.SearchTimeLimit); err != nil {
			return err
		}
	}
	for _, b := range s.Builds {
		if strings.TrimSpace(b) == "" {
			return configErrorf("builds", "empty build name")
		}
	}

	if (len(s.Heuristics) == 0) != (len(s.LandmarkGenerators) == 0) {
		return configErrorf("heuristics", "heuristics and landmark generators must both be set or both be empty")
	}
	if len(s.Heuristics) == 0 && len(s.Fixed) == 0 {
		return configErrorf("configs", "nothing to run")
	}

	if len(s.Heuristics) > 0 {
		tmpl := s.template()
		for _, p := range []string{HeuristicPlaceholder, LandmarksPlaceholder} {
			if n := strings.Count(tmpl, p); n != 1 {
				return configErrorf("template", "placeholder %s occurs %d times", p, n)
			}
		}
		if !Balanced(tmpl) {
			return configErrorf("template", "unbalanced parentheses in %q", tmpl)
		}
	}

	if err := validateTokens("heuristics", s.Heuristics); err != nil {
		return err
	}
	if err := validateTokens("landmark_generators", s.LandmarkGenerators); err != nil {
		return err
	}

	for i, f := range s.Fixed {
		if f.Nick == "" {
			return configErrorf(fmt.Sprintf("fixed[%d]", i), "nick is required")
		}
		if len(f.Args) == 0 {
			return configErrorf(fmt.Sprintf("fixed[%d]", i), "args are required")
		}
	}
	return nil
}

func validateTokens(field string, tokens []Token) error {
	aliases := make(map[string]struct{}, len(tokens))
	values := make(map[string]string, len(tokens))
	for i, t := range tokens {
		where := fmt.Sprintf("%s[%d]", field, i)
		if strings.TrimSpace(t.Value) == "" {
			return configErrorf(where, "empty token")
		}
		if t.Alias == "" {
			return configErrorf(where, "alias is required for %q", t.Value)
		}
		if strings.ContainsAny(t.Value, "{}") {
			return configErrorf(where, "token %q contains placeholder braces", t.Value)
		}
		if !Balanced(t.Value) {
			return configErrorf(where, "unbalanced token %q", t.Value)
		}
		if _, ok := aliases[t.Alias]; ok {
			return configErrorf(where, "duplicate alias %q", t.Alias)
		}
		aliases[t.Alias] = struct{}{}
		if prev, ok := values[t.Value]; ok {
			return configErrorf(where, "token %q is already declared as %q", t.Value, prev)
		}
		values[t.Value] = t.Alias
	}
	return nil
}

// ParseTimeLimit reads a planner time limit: a number of seconds with an
// optional s, m or h suffix.
func ParseTimeLimit(limit string) (time.Duration, error) {
	s := strings.TrimSpace(limit)
	unit := time.Second
	switch {
	case strings.HasSuffix(s, "h"):
		unit, s = time.Hour, strings.TrimSuffix(s, "h")
	case strings.HasSuffix(s, "m"):
		unit, s = time.Minute, strings.TrimSuffix(s, "m")
	case strings.HasSuffix(s, "s"):
		s = strings.TrimSuffix(s, "s")
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || n <= 0 {
		return 0, configErrorf("search_time_limit", "invalid time limit %q", limit)
	}
	return time.Duration(n * float64(unit)), nil
}

// Balanced reports whether parentheses and brackets in s nest properly.
func Balanced(s string) bool {
	var stack []rune
	for _, r := range s {
		switch r {
		case '(', '[':
			stack = append(stack, r)
		case ')', ']':
			if len(stack) == 0 {
				return false
			}
			open := stack[len(stack)-1]
			if (r == ')' && open != '(') || (r == ']' && open != '[') {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
	return len(stack) == 0
}

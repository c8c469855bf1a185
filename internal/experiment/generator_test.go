package experiment

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lmCutSpec() Spec {
	return Spec{
		Heuristics: []Token{
			{Value: "dalm_sum", Alias: "sum"},
			{Value: "dalm_greedy_hs", Alias: "greedy_hs"},
		},
		LandmarkGenerators: []Token{
			{Value: "fact_translator(lm_rhw())", Alias: "rhw"},
			{Value: "lm_cut_landmarks()", Alias: "lm_cut"},
		},
		Builds:      []string{"ipc23"},
		MemoryLimit: "7600M",
	}
}

func TestGenerate_CartesianProduct(t *testing.T) {
	configs, err := Generate(lmCutSpec())
	require.NoError(t, err)
	require.Len(t, configs, 4)

	var names []string
	for _, c := range configs {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"sum-rhw", "sum-lm_cut", "greedy_hs-rhw", "greedy_hs-lm_cut"}, names)

	first := configs[0]
	assert.Equal(t, "ipc23", first.Build())
	assert.Equal(t, []string{
		"--search-time-limit", "30m",
		"--overall-memory-limit", "7600M",
		"--build", "ipc23",
	}, first.DriverOptions())
	assert.Equal(t,
		"let(hlm, dalm_sum(fact_translator(lm_rhw()), transform=adapt_costs(one), "+
			"prog_goal=false, prog_gn=false, prog_w=false), "+
			"lazy_greedy([hlm], cost_type=one, reopen_closed=false))",
		first.SearchString())
}

func TestGenerate_SubstitutesEachTokenOnce(t *testing.T) {
	spec := lmCutSpec()
	configs, err := Generate(spec)
	require.NoError(t, err)

	i := 0
	for _, h := range spec.Heuristics {
		for _, lm := range spec.LandmarkGenerators {
			search := configs[i].SearchString()
			assert.Equal(t, 1, strings.Count(search, h.Value), search)
			assert.Equal(t, 1, strings.Count(search, lm.Value), search)
			assert.Equal(t, strings.Count(search, "("), strings.Count(search, ")"))
			assert.True(t, Balanced(search))
			i++
		}
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a, err := Generate(lmCutSpec())
	require.NoError(t, err)
	b, err := Generate(lmCutSpec())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGenerate_MultipleBuildsKeepNamesUnique(t *testing.T) {
	spec := lmCutSpec()
	spec.Builds = []string{"release", "debug"}
	configs, err := Generate(spec)
	require.NoError(t, err)
	require.Len(t, configs, 8)

	seen := map[string]bool{}
	for _, c := range configs {
		assert.False(t, seen[c.Name()], "duplicate %s", c.Name())
		seen[c.Name()] = true
		assert.True(t, strings.HasSuffix(c.Name(), "-"+c.Build()))
	}
}

func TestGenerate_FixedConfigs(t *testing.T) {
	configs, err := Generate(Spec{
		Builds: []string{"ipc23"},
		Fixed: []FixedConfig{{
			Nick: "justification-cut",
			Args: []string{"--search", "let(hlm, dalm_sum(abstraction_cut(justification_graph=true), transform=adapt_costs(one)), lazy_greedy([hlm], cost_type=one, reopen_closed=false))"},
		}},
	})
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "justification-cut", configs[0].Name())
	assert.Equal(t, []string{"--search-time-limit", "30m", "--build", "ipc23"}, configs[0].DriverOptions())
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Spec)
	}{
		{"no builds", func(s *Spec) { s.Builds = nil }},
		{"missing landmark generators", func(s *Spec) { s.LandmarkGenerators = nil }},
		{"missing placeholder", func(s *Spec) { s.Template = "let(hlm, {heuristic}(lm_rhw()), lazy_greedy([hlm]))" }},
		{"unbalanced template", func(s *Spec) { s.Template = "let(hlm, {heuristic}({landmarks}), lazy_greedy([hlm])" }},
		{"unbalanced token", func(s *Spec) { s.LandmarkGenerators[0].Value = "lm_rhw(" }},
		{"missing alias", func(s *Spec) { s.Heuristics[1].Alias = "" }},
		{"duplicate alias", func(s *Spec) { s.Heuristics[1].Alias = "sum" }},
		{"duplicate token value", func(s *Spec) { s.Heuristics[1].Value = "dalm_sum" }},
		{"duplicate landmark generator", func(s *Spec) {
			s.LandmarkGenerators[1] = Token{Value: "fact_translator(lm_rhw())", Alias: "rhw2"}
		}},
		{"invalid time limit", func(s *Spec) { s.SearchTimeLimit = "half an hour" }},
		{"token repeated in template", func(s *Spec) { s.Heuristics[0].Value = "hlm" }},
		{"duplicate fixed nick", func(s *Spec) {
			s.Fixed = []FixedConfig{{Nick: "sum-rhw", Args: []string{"--search", "x()"}}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := lmCutSpec()
			tt.mutate(&spec)
			configs, err := Generate(spec)
			assert.Nil(t, configs)

			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
		})
	}
}

func TestParseTimeLimit(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"30m", 30 * time.Minute},
		{"1800s", 30 * time.Minute},
		{"1800", 30 * time.Minute},
		{"2h", 2 * time.Hour},
		{"1.5m", 90 * time.Second},
	}
	for _, tt := range tests {
		got, err := ParseTimeLimit(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "m", "-5m", "0", "soon"} {
		_, err := ParseTimeLimit(bad)
		assert.Error(t, err, bad)
	}
}

func TestRunConfiguration_Immutable(t *testing.T) {
	args := []string{"--search", "astar(blind())"}
	c := NewRunConfiguration("blind", args, "release", []string{"--build", "release"})
	args[1] = "changed"
	c.Args()[0] = "changed"
	c.DriverOptions()[0] = "changed"

	assert.Equal(t, []string{"--search", "astar(blind())"}, c.Args())
	assert.Equal(t, []string{"--build", "release"}, c.DriverOptions())
}

func TestBalanced(t *testing.T) {
	assert.True(t, Balanced("a(b[c]())"))
	assert.False(t, Balanced("a(b]"))
	assert.False(t, Balanced(")("))
	assert.False(t, Balanced("(("))
}

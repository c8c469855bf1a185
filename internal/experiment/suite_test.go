package experiment

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		path := filepath.Join(root, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("(define)"), 0o644))
	}
}

func TestResolveSuite(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root,
		"gripper/domain.pddl", "gripper/prob02.pddl", "gripper/prob01.pddl",
		"airport/p01-domain.pddl", "airport/p01-airport1-p1.pddl",
		"depot/domain_p01.pddl", "depot/p01.pddl",
	)

	tasks, err := ResolveSuite(root, []string{"gripper", "airport", "depot:p01.pddl"})
	require.NoError(t, err)
	require.Len(t, tasks, 4)

	assert.Equal(t, "prob01.pddl", tasks[0].Problem)
	assert.Equal(t, "prob02.pddl", tasks[1].Problem)
	assert.Equal(t, filepath.Join(root, "gripper", "domain.pddl"), tasks[0].DomainFile)
	assert.Equal(t, filepath.Join(root, "airport", "p01-domain.pddl"), tasks[2].DomainFile)
	assert.Equal(t, filepath.Join(root, "depot", "domain_p01.pddl"), tasks[3].DomainFile)
}

func TestResolveSuite_Missing(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "gripper/prob01.pddl")

	for _, suite := range [][]string{{"nosuchdomain"}, {"gripper:prob09.pddl"}, {"gripper"}} {
		_, err := ResolveSuite(root, suite)
		var cfgErr *ConfigurationError
		assert.True(t, errors.As(err, &cfgErr), "suite %v: %v", suite, err)
	}
}

func TestPlan(t *testing.T) {
	configs, err := Generate(lmCutSpec())
	require.NoError(t, err)
	tasks := []Task{{Domain: "depot", Problem: "p01.pddl"}, {Domain: "gripper", Problem: "prob01.pddl"}}

	runs, err := Plan([]string{"2281574db1275d8a931305aede788c062947fa6e"}, configs, tasks)
	require.NoError(t, err)
	require.Len(t, runs, 8)
	assert.Equal(t, "2281574-sum-rhw", runs[0].Algorithm)
	assert.Equal(t, "depot", runs[0].Task.Domain)
	assert.Equal(t, "2281574-sum-rhw", runs[1].Algorithm)
	assert.Equal(t, "gripper", runs[1].Task.Domain)
	assert.Equal(t, "2281574-sum-lm_cut", runs[2].Algorithm)

	assert.Equal(t, []string{"2281574-sum-rhw", "2281574-sum-lm_cut", "2281574-greedy_hs-rhw", "2281574-greedy_hs-lm_cut"},
		Algorithms([]string{"2281574db1275d8a931305aede788c062947fa6e"}, configs))

	_, err = Plan(nil, configs, tasks)
	assert.Error(t, err)
	_, err = Plan([]string{"abcdef0123", "abcdef0999"}, configs, tasks)
	assert.Error(t, err)
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"lm-cut", "lm_cut.v2", "sum rhw"} {
		assert.NoError(t, ValidateName(name), name)
	}
	for _, name := range []string{"", ".", "..", "../../escaped", "a/b", `a\b`, "x..y"} {
		err := ValidateName(name)
		var cfgErr *ConfigurationError
		assert.True(t, errors.As(err, &cfgErr), name)
	}
}

package experiment

import (
	"fmt"
	"strings"
)

const (
	TestRunAuto = "auto"
	TestRunYes  = "yes"
	TestRunNo   = "no"

	BenchmarksEnv = "DOWNWARD_BENCHMARKS"
)

// IsTestRun resolves the --test-run flag. In auto mode a run is a test run
// unless it executes on a cluster node: inside a Slurm job, or on a host whose
// name ends with one of clusterSuffixes.
func IsTestRun(mode string, getenv func(string) string, hostname string, clusterSuffixes []string) (bool, error) {
	switch mode {
	case TestRunYes:
		return true, nil
	case TestRunNo:
		return false, nil
	case TestRunAuto, "":
		if getenv("SLURM_JOB_ID") != "" {
			return false, nil
		}
		for _, suffix := range clusterSuffixes {
			if suffix != "" && strings.HasSuffix(hostname, suffix) {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, configErrorf("test-run", "unknown mode %q (want auto, yes or no)", mode)
	}
}

// BenchmarksDir returns the benchmark suite directory named by
// DOWNWARD_BENCHMARKS.
func BenchmarksDir(getenv func(string) string) (string, error) {
	dir := strings.TrimSpace(getenv(BenchmarksEnv))
	if dir == "" {
		return "", &ConfigurationError{
			Field:   BenchmarksEnv,
			Message: fmt.Sprintf("environment variable %s is not set", BenchmarksEnv),
		}
	}
	return dir, nil
}

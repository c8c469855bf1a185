package experiment

import "strings"

// PlannedRun is one (algorithm, task) pair of a batch.
type PlannedRun struct {
	Algorithm string
	Revision  string
	Config    RunConfiguration
	Task      Task
}

// ShortRevision truncates commit hashes to the seven characters used in
// algorithm names.
func ShortRevision(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

// Algorithms returns the algorithm names of revisions x configs in run order.
func Algorithms(revisions []string, configs []RunConfiguration) []string {
	var names []string
	for _, rev := range revisions {
		for _, c := range configs {
			names = append(names, ShortRevision(rev)+"-"+c.Name())
		}
	}
	return names
}

// ValidateName checks that an experiment name is usable as a single
// directory component.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return configErrorf("name", "experiment name is required")
	case name == "." || strings.Contains(name, ".."):
		return configErrorf("name", "experiment name %q must not contain \"..\"", name)
	case strings.ContainsAny(name, `/\`):
		return configErrorf("name", "experiment name %q must not contain path separators", name)
	}
	return nil
}

// Plan crosses every revision with every configuration and task. Runs are
// ordered by algorithm first, then by task.
func Plan(revisions []string, configs []RunConfiguration, tasks []Task) ([]PlannedRun, error) {
	if len(revisions) == 0 {
		return nil, configErrorf("revisions", "at least one revision is required")
	}
	if len(tasks) == 0 {
		return nil, configErrorf("suite", "suite resolved to no tasks")
	}

	seen := make(map[string]struct{})
	var runs []PlannedRun
	for _, rev := range revisions {
		for _, c := range configs {
			algo := ShortRevision(rev) + "-" + c.Name()
			if _, ok := seen[algo]; ok {
				return nil, configErrorf("revisions", "duplicate algorithm %q", algo)
			}
			seen[algo] = struct{}{}
			for _, t := range tasks {
				runs = append(runs, PlannedRun{Algorithm: algo, Revision: rev, Config: c, Task: t})
			}
		}
	}
	return runs, nil
}

package experiment

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultTestSuite is the smoke test suite used for local test runs.
var DefaultTestSuite = []string{"depot:p01.pddl", "gripper:prob01.pddl"}

// DefaultSatisficingSuite lists the IPC satisficing domains.
var DefaultSatisficingSuite = []string{
	"agricola-sat18-strips", "airport", "assembly", "barman-sat11-strips",
	"barman-sat14-strips", "blocks", "caldera-sat18-adl",
	"caldera-split-sat18-adl", "cavediving-14-adl", "childsnack-sat14-strips",
	"citycar-sat14-adl", "data-network-sat18-strips", "depot", "driverlog",
	"elevators-sat08-strips", "elevators-sat11-strips", "flashfill-sat18-adl",
	"floortile-sat11-strips", "floortile-sat14-strips", "freecell",
	"ged-sat14-strips", "grid", "gripper", "hiking-sat14-strips",
	"logistics00", "logistics98", "maintenance-sat14-adl", "miconic",
	"miconic-fulladl", "miconic-simpleadl", "movie", "mprime", "mystery",
	"nomystery-sat11-strips", "nurikabe-sat18-adl", "openstacks",
	"openstacks-sat08-adl", "openstacks-sat08-strips",
	"openstacks-sat11-strips", "openstacks-sat14-strips", "openstacks-strips",
	"optical-telegraphs", "organic-synthesis-sat18-strips",
	"organic-synthesis-split-sat18-strips", "parcprinter-08-strips",
	"parcprinter-sat11-strips", "parking-sat11-strips", "parking-sat14-strips",
	"pathways", "pegsol-08-strips", "pegsol-sat11-strips", "philosophers",
	"pipesworld-notankage", "pipesworld-tankage", "psr-large", "psr-middle",
	"psr-small", "rovers", "satellite", "scanalyzer-08-strips",
	"scanalyzer-sat11-strips", "schedule", "settlers-sat18-adl",
	"snake-sat18-strips", "sokoban-sat08-strips", "sokoban-sat11-strips",
	"spider-sat18-strips", "storage", "termes-sat18-strips",
	"tetris-sat14-strips", "thoughtful-sat14-strips", "tidybot-sat11-strips",
	"tpp", "transport-sat08-strips", "transport-sat11-strips",
	"transport-sat14-strips", "trucks", "trucks-strips",
	"visitall-sat11-strips", "visitall-sat14-strips",
	"woodworking-sat08-strips", "woodworking-sat11-strips", "zenotravel",
}

// Task is one benchmark problem instance.
type Task struct {
	Domain      string `json:"domain"`
	Problem     string `json:"problem"`
	DomainFile  string `json:"domain_file"`
	ProblemFile string `json:"problem_file"`
}

// ResolveSuite expands suite entries ("domain" or "domain:problem") into
// tasks below benchmarksDir. Problems of a domain are returned in file name
// order.
func ResolveSuite(benchmarksDir string, suite []string) ([]Task, error) {
	var tasks []Task
	for _, entry := range suite {
		domain, problem, hasProblem := strings.Cut(entry, ":")
		dir := filepath.Join(benchmarksDir, domain)

		var problems []string
		if hasProblem {
			problems = []string{problem}
		} else {
			entries, err := os.ReadDir(dir)
			if err != nil {
				return nil, &ConfigurationError{Field: "suite", Message: fmt.Sprintf("cannot list domain %q", domain), Cause: err}
			}
			for _, e := range entries {
				name := e.Name()
				if e.IsDir() || !strings.HasSuffix(name, ".pddl") || strings.Contains(name, "domain") {
					continue
				}
				problems = append(problems, name)
			}
		}

		for _, p := range problems {
			problemFile := filepath.Join(dir, p)
			if _, err := os.Stat(problemFile); err != nil {
				return nil, &ConfigurationError{Field: "suite", Message: fmt.Sprintf("missing problem %s:%s", domain, p), Cause: err}
			}
			domainFile, err := findDomainFile(dir, p)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, Task{
				Domain:      domain,
				Problem:     p,
				DomainFile:  domainFile,
				ProblemFile: problemFile,
			})
		}
	}
	return tasks, nil
}

func findDomainFile(dir, problem string) (string, error) {
	prefix := problem
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	candidates := []string{
		"domain.pddl",
		prefix + "-domain.pddl",
		"domain_" + problem,
		"domain-" + problem,
	}
	for _, c := range candidates {
		path := filepath.Join(dir, c)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", configErrorf("suite", "no domain file for %s in %s", problem, dir)
}

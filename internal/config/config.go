package config

import (
	"fmt"
	"os"

	"lm-bench/internal/experiment"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Planner     PlannerConfig     `yaml:"planner"`
	Experiment  ExperimentConfig  `yaml:"experiment"`
	Environment EnvironmentConfig `yaml:"environment"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Report      ReportConfig      `yaml:"report"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	// Driver is "mysql" or "sqlite".
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	Charset  string `yaml:"charset"`
	// Path is the sqlite database file; ":memory:" keeps it in memory.
	Path string `yaml:"path"`
}

type PlannerConfig struct {
	// Driver is the planner driver script. "{revision}" is replaced by the
	// revision of the run, so each revision can live in its own checkout.
	Driver string `yaml:"driver"`
}

type ExperimentConfig struct {
	Name               string                   `yaml:"name"`
	Dir                string                   `yaml:"dir"`
	Revisions          []string                 `yaml:"revisions"`
	Builds             []string                 `yaml:"builds"`
	Heuristics         []experiment.Token       `yaml:"heuristics"`
	LandmarkGenerators []experiment.Token       `yaml:"landmark_generators"`
	Template           string                   `yaml:"template"`
	SearchTimeLimit    string                   `yaml:"search_time_limit"`
	MemoryLimit        string                   `yaml:"memory_limit"`
	Fixed              []experiment.FixedConfig `yaml:"fixed"`
	Suite              []string                 `yaml:"suite"`
	TestSuite          []string                 `yaml:"test_suite"`
}

type EnvironmentConfig struct {
	Local experiment.LocalEnvironment `yaml:"local"`
	Slurm experiment.SlurmEnvironment `yaml:"slurm"`
	// ClusterHostSuffixes identify cluster nodes for --test-run=auto.
	ClusterHostSuffixes []string `yaml:"cluster_host_suffixes"`
	// SubmitCommand submits the generated job script, "sbatch" by default.
	SubmitCommand string `yaml:"submit_command"`
}

type MetricsConfig struct {
	// Rules are extra extraction rules appended after the built-in ones.
	Rules []RuleConfig `yaml:"rules"`
}

type RuleConfig struct {
	Field   string `yaml:"field"`
	Pattern string `yaml:"pattern"`
	Type    string `yaml:"type"`
}

type ReportConfig struct {
	Attributes     []string `yaml:"attributes"`
	ExcludeDomains []string `yaml:"exclude_domains"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "lm-bench.db"
	}
	if c.Database.Charset == "" {
		c.Database.Charset = "utf8mb4"
	}
	if c.Planner.Driver == "" {
		c.Planner.Driver = "fast-downward.py"
	}
	if c.Experiment.Name == "" {
		c.Experiment.Name = "experiment"
	}
	if c.Experiment.Dir == "" {
		c.Experiment.Dir = "data"
	}
	if c.Experiment.SearchTimeLimit == "" {
		c.Experiment.SearchTimeLimit = experiment.DefaultSearchTimeLimit
	}
	if len(c.Experiment.Suite) == 0 {
		c.Experiment.Suite = experiment.DefaultSatisficingSuite
	}
	if len(c.Experiment.TestSuite) == 0 {
		c.Experiment.TestSuite = experiment.DefaultTestSuite
	}
	if c.Environment.SubmitCommand == "" {
		c.Environment.SubmitCommand = "sbatch"
	}
	if c.Environment.Local.Processes <= 0 {
		c.Environment.Local.Processes = experiment.DefaultLocalProcesses
	}
}

// Spec converts the experiment section into generator input.
func (e ExperimentConfig) Spec() experiment.Spec {
	return experiment.Spec{
		Heuristics:         e.Heuristics,
		LandmarkGenerators: e.LandmarkGenerators,
		Builds:             e.Builds,
		Template:           e.Template,
		SearchTimeLimit:    e.SearchTimeLimit,
		MemoryLimit:        e.MemoryLimit,
		Fixed:              e.Fixed,
	}
}

// SuiteFor returns the test suite for test runs and the full suite otherwise.
func (e ExperimentConfig) SuiteFor(testRun bool) []string {
	if testRun {
		return e.TestSuite
	}
	return e.Suite
}

package experiment

const (
	EnvironmentLocal = "local"
	EnvironmentSlurm = "slurm"

	DefaultLocalProcesses = 4
	// DefaultMaxArrayTasks stays below Slurm's default MaxArraySize of 1001.
	DefaultMaxArrayTasks = 1000
)

// Environment is where a batch executes.
type Environment interface {
	Kind() string
}

type LocalEnvironment struct {
	Processes int `yaml:"processes" json:"processes"`
}

func (LocalEnvironment) Kind() string { return EnvironmentLocal }

type SlurmEnvironment struct {
	Partition    string `yaml:"partition" json:"partition"`
	QOS          string `yaml:"qos" json:"qos,omitempty"`
	MemoryPerCPU string `yaml:"memory_per_cpu" json:"memory_per_cpu,omitempty"`
	Email        string `yaml:"email" json:"email,omitempty"`
	// Setup is a shell snippet run before each task, typically an export PATH=... line.
	Setup string `yaml:"setup" json:"setup,omitempty"`
	// TimeLimitPerTask is passed to sbatch --time.
	TimeLimitPerTask string `yaml:"time_limit_per_task" json:"time_limit_per_task,omitempty"`
	Nice             int    `yaml:"nice" json:"nice,omitempty"`
	// MaxArrayTasks caps the tasks of one array job; larger batches are split
	// into several jobs.
	MaxArrayTasks int `yaml:"max_array_tasks" json:"max_array_tasks,omitempty"`
}

func (SlurmEnvironment) Kind() string { return EnvironmentSlurm }

// SelectEnvironment picks the local environment for test runs and the cluster
// otherwise. It does not look at the process environment.
func SelectEnvironment(testRun bool, local LocalEnvironment, slurm SlurmEnvironment) Environment {
	if testRun {
		if local.Processes <= 0 {
			local.Processes = DefaultLocalProcesses
		}
		return local
	}
	if slurm.MaxArrayTasks <= 0 {
		slurm.MaxArrayTasks = DefaultMaxArrayTasks
	}
	return slurm
}

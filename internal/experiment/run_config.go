package experiment

import "encoding/json"

// RunConfiguration is one planner configuration of a batch. Values are
// immutable: accessors hand out copies of the slices.
type RunConfiguration struct {
	name          string
	args          []string
	build         string
	driverOptions []string
}

func NewRunConfiguration(name string, args []string, build string, driverOptions []string) RunConfiguration {
	return RunConfiguration{
		name:          name,
		args:          cloneStrings(args),
		build:         build,
		driverOptions: cloneStrings(driverOptions),
	}
}

func (c RunConfiguration) Name() string { return c.name }

func (c RunConfiguration) Build() string { return c.build }

// Args returns the planner component arguments, e.g. ["--search", "let(...)"].
func (c RunConfiguration) Args() []string { return cloneStrings(c.args) }

// DriverOptions returns the options placed before the input files on the
// driver command line (limits, build selection).
func (c RunConfiguration) DriverOptions() []string { return cloneStrings(c.driverOptions) }

// SearchString returns the value following "--search", or "" if none.
func (c RunConfiguration) SearchString() string {
	for i := 0; i+1 < len(c.args); i++ {
		if c.args[i] == "--search" {
			return c.args[i+1]
		}
	}
	return ""
}

func (c RunConfiguration) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name          string   `json:"name"`
		Args          []string `json:"args"`
		Build         string   `json:"build"`
		DriverOptions []string `json:"driver_options"`
	}{c.name, c.args, c.build, c.driverOptions})
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

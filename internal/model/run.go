package model

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Run statuses.
const (
	RunPlanned     = "planned"
	RunSubmitted   = "submitted"
	RunFinished    = "finished"
	RunFailed      = "failed"
	RunParsed      = "parsed"
	RunUnparseable = "unparseable"
)

// Run is one planner execution on one task.
type Run struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	ExperimentID uint   `gorm:"not null;index" json:"experiment_id"`
	RunIndex     int    `gorm:"index" json:"run_index"`
	Algorithm    string `gorm:"type:varchar(200);not null;index" json:"algorithm"`
	Revision     string `gorm:"type:varchar(64)" json:"revision"`
	ConfigName   string `gorm:"type:varchar(200)" json:"config_name"`
	Build        string `gorm:"type:varchar(100)" json:"build"`
	Domain       string `gorm:"type:varchar(200);not null;index" json:"domain"`
	Problem      string `gorm:"type:varchar(200);not null" json:"problem"`
	CommandJSON  string `gorm:"type:text" json:"command_json"`

	Status   string  `gorm:"type:varchar(20);index" json:"status"`
	ExitCode *int    `json:"exit_code"`
	WallTime float64 `json:"wall_time"`
	Dir      string  `gorm:"type:varchar(500)" json:"dir"`
	// Error holds the execution failure, if the planner could not be run.
	Error string `gorm:"type:text" json:"error"`

	MetricsJSON string `gorm:"type:text" json:"metrics_json"`
	ParseError  string `gorm:"type:text" json:"parse_error"`
}

// Command returns the argv of the run.
func (r *Run) Command() []string {
	var out []string
	_ = json.Unmarshal([]byte(r.CommandJSON), &out)
	return out
}

// Metrics decodes the stored metrics. Numbers come back as float64.
func (r *Run) Metrics() (map[string]any, error) {
	out := map[string]any{}
	if r.MetricsJSON == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(r.MetricsJSON), &out); err != nil {
		return nil, fmt.Errorf("run %d: invalid metrics: %w", r.ID, err)
	}
	return out, nil
}

// Solved reports whether the planner exited successfully and printed a plan.
func (r *Run) Solved() bool {
	if r.ExitCode == nil || *r.ExitCode != 0 {
		return false
	}
	m, err := r.Metrics()
	if err != nil {
		return false
	}
	_, ok := m["solution_found"]
	return ok
}

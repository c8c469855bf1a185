package model

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Experiment is one benchmarking batch.
type Experiment struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	UUID string `gorm:"type:varchar(36);uniqueIndex;not null" json:"uuid"`
	Name string `gorm:"type:varchar(200);not null;index" json:"name"`
	// local/slurm
	Environment string `gorm:"type:varchar(20)" json:"environment"`
	TestRun     bool   `json:"test_run"`
	Dir         string `gorm:"type:varchar(500)" json:"dir"`

	RevisionsJSON  string `gorm:"type:text" json:"revisions_json"`
	AlgorithmsJSON string `gorm:"type:text" json:"algorithms_json"`
	RunCount       int    `json:"run_count"`
	// SlurmJobIDs lists the array jobs of a cluster batch, comma separated.
	SlurmJobIDs string `gorm:"type:varchar(500)" json:"slurm_job_ids"`
}

// Algorithms returns the algorithm names in run order.
func (e *Experiment) Algorithms() []string {
	var out []string
	_ = json.Unmarshal([]byte(e.AlgorithmsJSON), &out)
	return out
}

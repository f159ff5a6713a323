// Package model defines the records persisted for model runs.
package model

import (
	"time"

	"github.com/sells-group/gwr-cli/internal/report"
)

// RunStatus represents the current state of a model run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunConfig captures the model settings a run was started with.
type RunConfig struct {
	Dataset     string   `json:"dataset"`
	Dependent   string   `json:"dependent"`
	Independent []string `json:"independent"`
	Kernel      string   `json:"kernel"`
	Fixed       bool     `json:"fixed"`
	Criterion   string   `json:"criterion"`
}

// Run represents a single model run over a dataset.
type Run struct {
	ID        string     `json:"id"`
	Config    RunConfig  `json:"config"`
	Status    RunStatus  `json:"status"`
	Bandwidth float64    `json:"bandwidth,omitempty"`
	Result    *RunResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the outcome of a completed run.
type RunResult struct {
	Bandwidth float64         `json:"bandwidth"`
	Summary   *report.Summary `json:"summary"`
	Maps      []string        `json:"maps,omitempty"`
}

// Location is the fitted model at one record of a run.
type Location struct {
	RunID    string    `json:"run_id"`
	Index    int       `json:"index"`
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
	Params   []float64 `json:"params"`
	Residual float64   `json:"residual"`
	LocalR2  float64   `json:"local_r2"`
}

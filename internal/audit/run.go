// Package audit keeps completed backtest runs for later inspection
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/wonny/ashare-rotation/internal/backtest"
	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/internal/report"
)

// RunStatus is the lifecycle state of a run
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunAborted   RunStatus = "aborted"
)

// Done reports whether the status is terminal
func (s RunStatus) Done() bool {
	return s == RunCompleted || s == RunFailed || s == RunAborted
}

// Run is one persisted backtest
type Run struct {
	ID           uuid.UUID                `json:"id"`
	Strategy     string                   `json:"strategy"`
	ConfigHash   string                   `json:"config_hash"`
	Parameters   report.Parameters        `json:"parameters"`
	Status       RunStatus                `json:"status"`
	Error        string                   `json:"error,omitempty"`
	CreatedAt    time.Time                `json:"created_at"`
	FinishedAt   *time.Time               `json:"finished_at,omitempty"`
	Summary      contracts.Summary        `json:"summary"`
	NAV          []contracts.NAVPoint     `json:"nav"`
	Periods      []contracts.PeriodRecord `json:"periods"`
	Liquidation  *contracts.Liquidation   `json:"liquidation,omitempty"`
	Degradations []contracts.Degradation  `json:"degradations"`
}

// RunInfo is the list view of a run, without its series
type RunInfo struct {
	ID         uuid.UUID         `json:"id"`
	Strategy   string            `json:"strategy"`
	ConfigHash string            `json:"config_hash"`
	StartDate  string            `json:"start_date"`
	EndDate    string            `json:"end_date"`
	Status     RunStatus         `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Summary    contracts.Summary `json:"summary"`
}

// NewRun registers a pending run for an engine configuration
func NewRun(cfg backtest.Config, configHash string, now time.Time) *Run {
	return &Run{
		ID:           uuid.New(),
		Strategy:     cfg.Strategy,
		ConfigHash:   configHash,
		Parameters:   report.ParametersOf(cfg),
		Status:       RunPending,
		CreatedAt:    now,
		NAV:          []contracts.NAVPoint{},
		Periods:      []contracts.PeriodRecord{},
		Degradations: []contracts.Degradation{},
	}
}

// Finish copies the engine outcome into the run
// A partial result of a cancelled run is kept with status aborted.
func (r *Run) Finish(result *backtest.Result, err error, now time.Time) {
	r.FinishedAt = &now
	if result != nil {
		r.Summary = result.Summary
		r.NAV = result.NAV
		r.Periods = result.Periods
		r.Liquidation = result.Liquidation
		r.Degradations = result.Degradations
	}

	switch {
	case result != nil && result.Aborted:
		r.Status = RunAborted
	case err != nil:
		r.Status = RunFailed
	default:
		r.Status = RunCompleted
	}
	if err != nil {
		r.Error = err.Error()
	}
}

// Info returns the list view
func (r *Run) Info() RunInfo {
	return RunInfo{
		ID:         r.ID,
		Strategy:   r.Strategy,
		ConfigHash: r.ConfigHash,
		StartDate:  r.Parameters.StartDate,
		EndDate:    r.Parameters.EndDate,
		Status:     r.Status,
		CreatedAt:  r.CreatedAt,
		FinishedAt: r.FinishedAt,
		Summary:    r.Summary,
	}
}

// Document converts the run into the report form
func (r *Run) Document() *report.Document {
	return &report.Document{
		RunID:        r.ID.String(),
		Strategy:     r.Strategy,
		Parameters:   r.Parameters,
		Summary:      r.Summary,
		NAV:          r.NAV,
		Periods:      r.Periods,
		Liquidation:  r.Liquidation,
		Degradations: r.Degradations,
		Aborted:      r.Status == RunAborted,
	}
}

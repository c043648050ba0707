package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/pkg/logger"
)

// SnapshotStore persists data-quality snapshots
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot *contracts.DataQualitySnapshot) error
}

// QualityCheckJob records the store coverage after each daily import
type QualityCheckJob struct {
	gate      contracts.QualityGate
	snapshots SnapshotStore
	schedule  string
	logger    *logger.Logger
	now       func() time.Time
}

// NewQualityCheckJob creates a new quality check job
func NewQualityCheckJob(gate contracts.QualityGate, snapshots SnapshotStore, schedule string, log *logger.Logger) *QualityCheckJob {
	if log == nil {
		log = logger.Nop()
	}
	return &QualityCheckJob{
		gate:      gate,
		snapshots: snapshots,
		schedule:  schedule,
		logger:    log,
		now:       time.Now,
	}
}

// Name returns the job name
func (j *QualityCheckJob) Name() string {
	return "data_quality"
}

// Schedule returns the cron schedule
func (j *QualityCheckJob) Schedule() string {
	return j.schedule
}

// Run checks today's coverage; a failing snapshot is stored and logged, not returned
func (j *QualityCheckJob) Run(ctx context.Context) error {
	snapshot, err := j.gate.Check(ctx, j.now())
	if err != nil {
		return fmt.Errorf("quality validation failed: %w", err)
	}

	if err := j.snapshots.SaveSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	log := j.logger.WithFields(map[string]interface{}{
		"quality_score": snapshot.QualityScore,
		"total_stocks":  snapshot.TotalStocks,
		"valid_stocks":  snapshot.ValidStocks,
	})
	if !snapshot.Passed {
		log.Warn("Data quality below threshold")
		return nil
	}
	log.Info("Data quality check passed")
	return nil
}

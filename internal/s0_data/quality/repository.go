package quality

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/ashare-rotation/internal/contracts"
)

// Repository handles data quality snapshot persistence
// ⭐ SSOT: S0 품질 스냅샷 저장/조회
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new quality repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveSnapshot saves a data quality snapshot
func (r *Repository) SaveSnapshot(ctx context.Context, snapshot *contracts.DataQualitySnapshot) error {
	report, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal quality snapshot: %w", err)
	}

	query := `
		INSERT INTO market.quality_snapshots (check_date, quality_score, passed, report)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (check_date) DO UPDATE SET
			quality_score = EXCLUDED.quality_score,
			passed = EXCLUDED.passed,
			report = EXCLUDED.report,
			created_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, snapshot.Date, snapshot.QualityScore, snapshot.Passed, report); err != nil {
		return fmt.Errorf("save quality snapshot: %w", err)
	}
	return nil
}

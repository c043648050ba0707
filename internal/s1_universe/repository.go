package s1_universe

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/ashare-rotation/internal/contracts"
)

// Repository handles data persistence for S1
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository instance
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// SaveUniverse saves a strategy's universe snapshot
func (r *Repository) SaveUniverse(ctx context.Context, strategy string, universe *contracts.Universe) error {
	excludedJSON, err := json.Marshal(universe.Excluded)
	if err != nil {
		return fmt.Errorf("marshal excluded: %w", err)
	}

	query := `
		INSERT INTO backtest.universe_snapshots (
			strategy,
			snapshot_date,
			eligible_stocks,
			total_count,
			excluded,
			created_at
		) VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (strategy, snapshot_date) DO UPDATE SET
			eligible_stocks = EXCLUDED.eligible_stocks,
			total_count = EXCLUDED.total_count,
			excluded = EXCLUDED.excluded,
			created_at = NOW()
	`

	_, err = r.db.Exec(ctx, query,
		strategy,
		universe.Date,
		universe.Stocks,
		universe.TotalCount,
		excludedJSON,
	)
	if err != nil {
		return fmt.Errorf("insert universe: %w", err)
	}

	return nil
}

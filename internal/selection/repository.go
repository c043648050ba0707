package selection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/ashare-rotation/internal/contracts"
)

// Repository persists live selections (scheduler, select --persist)
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new selection repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveSelection replaces the stored selection of a strategy for record.Date
func (r *Repository) SaveSelection(ctx context.Context, strategy string, record *contracts.SelectionRecord) error {
	// Begin transaction
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Delete existing results for the date
	_, err = tx.Exec(ctx,
		"DELETE FROM backtest.selections WHERE strategy = $1 AND selection_date = $2",
		strategy, record.Date)
	if err != nil {
		return fmt.Errorf("failed to delete old selection: %w", err)
	}

	query := `
		INSERT INTO backtest.selections (
			strategy, selection_date, metric, rank, stock_code, stock_name, metric_value, inputs
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	for _, s := range record.Stocks {
		inputs, err := json.Marshal(s.Inputs)
		if err != nil {
			return fmt.Errorf("marshal inputs: %w", err)
		}
		_, err = tx.Exec(ctx, query,
			strategy, record.Date, record.Metric, s.Rank, s.Code, s.Name, s.MetricValue, inputs,
		)
		if err != nil {
			return fmt.Errorf("failed to insert selection: %w", err)
		}
	}

	// Commit transaction
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetSelection retrieves a stored selection in rank order
func (r *Repository) GetSelection(ctx context.Context, strategy string, date time.Time) (*contracts.SelectionRecord, error) {
	query := `
		SELECT metric, rank, stock_code, stock_name, metric_value, inputs
		FROM backtest.selections
		WHERE strategy = $1 AND selection_date = $2
		ORDER BY rank ASC
	`

	rows, err := r.pool.Query(ctx, query, strategy, contracts.Day(date))
	if err != nil {
		return nil, fmt.Errorf("failed to query selection: %w", err)
	}
	defer rows.Close()

	record := &contracts.SelectionRecord{Date: contracts.Day(date), Stocks: []contracts.SelectedStock{}}
	for rows.Next() {
		var s contracts.SelectedStock
		var inputs []byte
		if err := rows.Scan(&record.Metric, &s.Rank, &s.Code, &s.Name, &s.MetricValue, &inputs); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if len(inputs) > 0 {
			if err := json.Unmarshal(inputs, &s.Inputs); err != nil {
				return nil, fmt.Errorf("failed to unmarshal inputs: %w", err)
			}
		}
		record.Stocks = append(record.Stocks, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(record.Stocks) == 0 {
		return nil, fmt.Errorf("no selection for %s on %s: %w", strategy, date.Format(contracts.DateLayout), contracts.ErrNoData)
	}

	return record, nil
}

// LatestSelectionDate returns the most recent stored date of a strategy
func (r *Repository) LatestSelectionDate(ctx context.Context, strategy string) (time.Time, bool, error) {
	var date time.Time
	err := r.pool.QueryRow(ctx,
		"SELECT MAX(selection_date) FROM backtest.selections WHERE strategy = $1 HAVING COUNT(*) > 0",
		strategy).Scan(&date)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query latest selection: %w", err)
	}
	return contracts.Day(date), true, nil
}

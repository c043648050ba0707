package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/ashare-rotation/internal/contracts"
)

// Repository persists runs in the backtest schema
type Repository struct {
	pool *pgxpool.Pool
}

var _ RunStore = (*Repository)(nil)

// NewRepository creates a new run repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveRun writes the run row, its NAV points, periods and holdings in one transaction
func (r *Repository) SaveRun(ctx context.Context, run *Run) error {
	params, err := json.Marshal(run.Parameters)
	if err != nil {
		return fmt.Errorf("failed to marshal parameters: %w", err)
	}
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	degradations, err := json.Marshal(run.Degradations)
	if err != nil {
		return fmt.Errorf("failed to marshal degradations: %w", err)
	}
	var liquidation []byte
	if run.Liquidation != nil {
		if liquidation, err = json.Marshal(run.Liquidation); err != nil {
			return fmt.Errorf("failed to marshal liquidation: %w", err)
		}
	}

	start, err := time.Parse(contracts.DateLayout, run.Parameters.StartDate)
	if err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}
	end, err := time.Parse(contracts.DateLayout, run.Parameters.EndDate)
	if err != nil {
		return fmt.Errorf("invalid end date: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	query := `
		INSERT INTO backtest.runs (
			run_id, strategy, config_hash, parameters, start_date, end_date,
			status, error, summary, liquidation, degradations, created_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (run_id) DO UPDATE SET
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			summary = EXCLUDED.summary,
			liquidation = EXCLUDED.liquidation,
			degradations = EXCLUDED.degradations,
			finished_at = EXCLUDED.finished_at
	`
	_, err = tx.Exec(ctx, query,
		run.ID, run.Strategy, run.ConfigHash, params,
		start, end,
		string(run.Status), run.Error, summary, liquidation, degradations,
		run.CreatedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	for _, table := range []string{"backtest.nav_points", "backtest.periods", "backtest.holdings"} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE run_id = $1", run.ID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	navRows := make([][]interface{}, len(run.NAV))
	for i, p := range run.NAV {
		navRows[i] = []interface{}{run.ID, i, p.Date, p.NAV}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"backtest", "nav_points"},
		[]string{"run_id", "seq", "date", "nav"},
		pgx.CopyFromRows(navRows),
	); err != nil {
		return fmt.Errorf("failed to save nav points: %w", err)
	}

	batch := &pgx.Batch{}
	holdingRows := make([][]interface{}, 0)
	for _, p := range run.Periods {
		record, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal period %d: %w", p.PeriodIndex, err)
		}
		batch.Queue(`
			INSERT INTO backtest.periods (
				run_id, period_index, selection_date, realized_return, nav_after, degraded, record
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, run.ID, p.PeriodIndex, p.SelectionDate, p.RealizedReturn, p.NAVAfter, p.Degraded, record)

		for _, h := range p.Instruments {
			holdingRows = append(holdingRows, []interface{}{
				run.ID, p.PeriodIndex, h.Code, h.Name, h.RankMetric, h.Shares, h.EntryPrice, h.InvestedCapital,
			})
		}
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to save periods: %w", err)
		}
	}

	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"backtest", "holdings"},
		[]string{"run_id", "period_index", "stock_code", "stock_name", "rank_metric", "shares", "entry_price", "invested_capital"},
		pgx.CopyFromRows(holdingRows),
	); err != nil {
		return fmt.Errorf("failed to save holdings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetRun loads a run with its NAV series and periods
func (r *Repository) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	query := `
		SELECT run_id, strategy, config_hash, parameters, status, error,
		       summary, liquidation, degradations, created_at, finished_at
		FROM backtest.runs
		WHERE run_id = $1
	`

	var run Run
	var status string
	var params, summary, liquidation, degradations []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.Strategy, &run.ConfigHash, &params, &status, &run.Error,
		&summary, &liquidation, &degradations, &run.CreatedAt, &run.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	run.Status = RunStatus(status)

	if err := json.Unmarshal(params, &run.Parameters); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parameters: %w", err)
	}
	if err := json.Unmarshal(summary, &run.Summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}
	if err := json.Unmarshal(degradations, &run.Degradations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal degradations: %w", err)
	}
	if len(liquidation) > 0 {
		run.Liquidation = &contracts.Liquidation{}
		if err := json.Unmarshal(liquidation, run.Liquidation); err != nil {
			return nil, fmt.Errorf("failed to unmarshal liquidation: %w", err)
		}
	}

	if run.NAV, err = r.navPoints(ctx, id); err != nil {
		return nil, err
	}
	if run.Periods, err = r.periods(ctx, id); err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *Repository) navPoints(ctx context.Context, id uuid.UUID) ([]contracts.NAVPoint, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT date, nav FROM backtest.nav_points WHERE run_id = $1 ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query nav points: %w", err)
	}
	defer rows.Close()

	nav := make([]contracts.NAVPoint, 0)
	for rows.Next() {
		var p contracts.NAVPoint
		if err := rows.Scan(&p.Date, &p.NAV); err != nil {
			return nil, fmt.Errorf("failed to scan nav point: %w", err)
		}
		nav = append(nav, p)
	}
	return nav, rows.Err()
}

func (r *Repository) periods(ctx context.Context, id uuid.UUID) ([]contracts.PeriodRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT record FROM backtest.periods WHERE run_id = $1 ORDER BY period_index
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query periods: %w", err)
	}
	defer rows.Close()

	periods := make([]contracts.PeriodRecord, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan period: %w", err)
		}
		var p contracts.PeriodRecord
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal period: %w", err)
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// ListRuns returns the newest runs first
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]RunInfo, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT run_id, strategy, config_hash, start_date, end_date, status,
		       summary, created_at, finished_at
		FROM backtest.runs
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	infos := make([]RunInfo, 0)
	for rows.Next() {
		var info RunInfo
		var start, end time.Time
		var status string
		var summary []byte
		if err := rows.Scan(
			&info.ID, &info.Strategy, &info.ConfigHash, &start, &end, &status,
			&summary, &info.CreatedAt, &info.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		info.StartDate = start.Format(contracts.DateLayout)
		info.EndDate = end.Format(contracts.DateLayout)
		info.Status = RunStatus(status)
		if err := json.Unmarshal(summary, &info.Summary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

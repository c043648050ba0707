package s0_data

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/ashare-rotation/internal/contracts"
)

// FinancialRepository implements contracts.FundamentalsStore over market.financial_abstract
// ⭐ SSOT: 재무 데이터 저장소는 여기서만
type FinancialRepository struct {
	pool *pgxpool.Pool
}

// NewFinancialRepository creates a new financial repository
func NewFinancialRepository(pool *pgxpool.Pool) *FinancialRepository {
	return &FinancialRepository{pool: pool}
}

// Value retrieves one indicator value for a code and report period
func (r *FinancialRepository) Value(ctx context.Context, code string, period contracts.ReportPeriod, indicator string) (float64, bool, error) {
	query := `
		SELECT value
		FROM market.financial_abstract
		WHERE stock_code = $1 AND report_date = $2 AND indicator = $3 AND value IS NOT NULL
		LIMIT 1
	`

	var v float64
	err := r.pool.QueryRow(ctx, query, code, period.String(), indicator).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query fundamental %s %s: %w", code, period, err)
	}
	return v, true, nil
}

// Values retrieves code → period → value for every present combination
func (r *FinancialRepository) Values(ctx context.Context, codes []string, periods []contracts.ReportPeriod, indicator string) (map[string]map[string]float64, error) {
	result := make(map[string]map[string]float64)
	if len(codes) == 0 || len(periods) == 0 {
		return result, nil
	}

	keys := make([]string, len(periods))
	for i, p := range periods {
		keys[i] = p.String()
	}

	query := `
		SELECT stock_code, report_date, value
		FROM market.financial_abstract
		WHERE stock_code = ANY($1) AND report_date = ANY($2) AND indicator = $3 AND value IS NOT NULL
	`

	rows, err := r.pool.Query(ctx, query, codes, keys, indicator)
	if err != nil {
		return nil, fmt.Errorf("query fundamentals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var code, period string
		var v float64
		if err := rows.Scan(&code, &period, &v); err != nil {
			return nil, fmt.Errorf("scan fundamental: %w", err)
		}
		if result[code] == nil {
			result[code] = make(map[string]float64)
		}
		result[code][period] = v
	}
	return result, rows.Err()
}

// SaveBatch upserts fundamental records in one round trip
func (r *FinancialRepository) SaveBatch(ctx context.Context, records []contracts.FundamentalRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO market.financial_abstract (stock_code, category, indicator, report_date, value)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (stock_code, indicator, report_date) DO UPDATE SET
			category = EXCLUDED.category,
			value = EXCLUDED.value
	`

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(query, rec.Code, rec.Category, rec.Indicator, rec.Period.String(), rec.Value)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert fundamental %s: %w", records[i].Code, err)
		}
	}
	return nil
}

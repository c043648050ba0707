package s0_data

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/ashare-rotation/internal/contracts"
)

// PriceRepository implements contracts.MarketDataStore over market.daily_kline
// ⭐ SSOT: 가격 데이터 저장소는 여기서만
type PriceRepository struct {
	pool *pgxpool.Pool
}

// NewPriceRepository creates a new price repository
func NewPriceRepository(pool *pgxpool.Pool) *PriceRepository {
	return &PriceRepository{pool: pool}
}

const klineColumns = `stock_code, trade_date, COALESCE(open_price, 0), COALESCE(close_price, 0),
	COALESCE(total_market_value, 0), COALESCE(float_market_value, 0)`

// RowsForDate retrieves every row traded on date
func (r *PriceRepository) RowsForDate(ctx context.Context, date time.Time) ([]contracts.MarketRow, error) {
	query := `
		SELECT ` + klineColumns + `
		FROM market.daily_kline
		WHERE trade_date = $1
		ORDER BY stock_code
	`

	rows, err := r.pool.Query(ctx, query, contracts.Day(date))
	if err != nil {
		return nil, fmt.Errorf("query rows for date: %w", err)
	}
	return scanMarketRows(rows)
}

// RowsForInstrumentsOnDate retrieves the rows of codes traded on date
func (r *PriceRepository) RowsForInstrumentsOnDate(ctx context.Context, codes []string, date time.Time) ([]contracts.MarketRow, error) {
	if len(codes) == 0 {
		return []contracts.MarketRow{}, nil
	}

	query := `
		SELECT ` + klineColumns + `
		FROM market.daily_kline
		WHERE trade_date = $1 AND stock_code = ANY($2)
		ORDER BY stock_code
	`

	rows, err := r.pool.Query(ctx, query, contracts.Day(date), codes)
	if err != nil {
		return nil, fmt.Errorf("query rows for instruments: %w", err)
	}
	return scanMarketRows(rows)
}

// TradingDates retrieves the distinct trade dates in [start, end]
func (r *PriceRepository) TradingDates(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	query := `
		SELECT DISTINCT trade_date
		FROM market.daily_kline
		WHERE trade_date BETWEEN $1 AND $2
		ORDER BY trade_date ASC
	`

	rows, err := r.pool.Query(ctx, query, contracts.Day(start), contracts.Day(end))
	if err != nil {
		return nil, fmt.Errorf("query trading dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan trading date: %w", err)
		}
		dates = append(dates, contracts.Day(d))
	}
	return dates, rows.Err()
}

// FirstDateAfter retrieves the first trade date strictly after date
func (r *PriceRepository) FirstDateAfter(ctx context.Context, date time.Time) (time.Time, bool, error) {
	query := `SELECT MIN(trade_date) FROM market.daily_kline WHERE trade_date > $1`

	var next *time.Time
	if err := r.pool.QueryRow(ctx, query, contracts.Day(date)).Scan(&next); err != nil {
		return time.Time{}, false, fmt.Errorf("query first date after: %w", err)
	}
	if next == nil {
		return time.Time{}, false, nil
	}
	return contracts.Day(*next), true, nil
}

// SaveBatch upserts kline rows in one round trip
func (r *PriceRepository) SaveBatch(ctx context.Context, rows []contracts.MarketRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `
		INSERT INTO market.daily_kline (stock_code, trade_date, open_price, close_price, total_market_value, float_market_value)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (stock_code, trade_date) DO UPDATE SET
			open_price = EXCLUDED.open_price,
			close_price = EXCLUDED.close_price,
			total_market_value = EXCLUDED.total_market_value,
			float_market_value = EXCLUDED.float_market_value
	`

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(query, row.Code, contracts.Day(row.TradeDate), row.Open, row.Close, row.TotalMarketCap, row.FloatMarketCap)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range rows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert kline %s: %w", rows[i].Code, err)
		}
	}
	return nil
}

func scanMarketRows(rows pgx.Rows) ([]contracts.MarketRow, error) {
	defer rows.Close()

	result := make([]contracts.MarketRow, 0)
	for rows.Next() {
		var row contracts.MarketRow
		if err := rows.Scan(&row.Code, &row.TradeDate, &row.Open, &row.Close, &row.TotalMarketCap, &row.FloatMarketCap); err != nil {
			return nil, fmt.Errorf("scan kline row: %w", err)
		}
		row.TradeDate = contracts.Day(row.TradeDate)
		result = append(result, row)
	}
	return result, rows.Err()
}

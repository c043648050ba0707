package s0_data

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/pkg/logger"
)

// Repository is the Postgres-backed contracts.DataStore
// ⭐ SSOT: S0 Postgres 저장소 조합
type Repository struct {
	*PriceRepository
	*FinancialRepository
	db *pgxpool.Pool
}

var _ contracts.DataStore = (*Repository)(nil)

// NewRepository creates a new Repository instance
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{
		PriceRepository:     NewPriceRepository(db),
		FinancialRepository: NewFinancialRepository(db),
		db:                  db,
	}
}

// Pool returns the underlying database pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.db
}

// Instruments retrieves instrument metadata keyed by code
func (r *Repository) Instruments(ctx context.Context) (map[string]contracts.Instrument, error) {
	query := `
		SELECT stock_code, stock_name, list_date
		FROM market.stocks
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query stocks: %w", err)
	}
	defer rows.Close()

	instruments := make(map[string]contracts.Instrument)
	for rows.Next() {
		var inst contracts.Instrument
		var listDate *time.Time
		if err := rows.Scan(&inst.Code, &inst.Name, &listDate); err != nil {
			return nil, fmt.Errorf("scan stock: %w", err)
		}
		if listDate != nil {
			inst.ListingDate = contracts.Day(*listDate)
		}
		inst.Board = contracts.BoardOf(inst.Code)
		instruments[inst.Code] = inst
	}
	return instruments, rows.Err()
}

// SaveInstruments upserts instrument metadata
func (r *Repository) SaveInstruments(ctx context.Context, instruments []contracts.Instrument) error {
	if len(instruments) == 0 {
		return nil
	}

	query := `
		INSERT INTO market.stocks (stock_code, stock_name, list_date)
		VALUES ($1, $2, $3)
		ON CONFLICT (stock_code) DO UPDATE SET
			stock_name = EXCLUDED.stock_name,
			list_date = EXCLUDED.list_date
	`

	batch := &pgx.Batch{}
	for _, inst := range instruments {
		var listDate *time.Time
		if !inst.ListingDate.IsZero() {
			d := contracts.Day(inst.ListingDate)
			listDate = &d
		}
		batch.Queue(query, inst.Code, inst.Name, listDate)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := range instruments {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert stock %s: %w", instruments[i].Code, err)
		}
	}
	return nil
}

// ImportStats counts what Import copied
type ImportStats struct {
	Instruments  int `json:"instruments"`
	TradingDays  int `json:"trading_days"`
	Rows         int `json:"rows"`
	Fundamentals int `json:"fundamentals"`
}

// Import copies instruments, klines in [start, end] and the given fundamentals
// indicator from src into Postgres, one trading day per batch.
func (r *Repository) Import(ctx context.Context, src contracts.DataStore, start, end time.Time, indicator string, periods []contracts.ReportPeriod, log *logger.Logger) (*ImportStats, error) {
	if log == nil {
		log = logger.Nop()
	}
	stats := &ImportStats{}

	instruments, err := src.Instruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("read instruments: %w", err)
	}
	list := make([]contracts.Instrument, 0, len(instruments))
	codes := make([]string, 0, len(instruments))
	for code, inst := range instruments {
		list = append(list, inst)
		codes = append(codes, code)
	}
	sort.Strings(codes)
	if err := r.SaveInstruments(ctx, list); err != nil {
		return nil, err
	}
	stats.Instruments = len(list)

	dates, err := src.TradingDates(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("read trading dates: %w", err)
	}
	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		rows, err := src.RowsForDate(ctx, date)
		if err != nil {
			return stats, fmt.Errorf("read rows %s: %w", date.Format(contracts.DateLayout), err)
		}
		if err := r.PriceRepository.SaveBatch(ctx, rows); err != nil {
			return stats, err
		}
		stats.TradingDays++
		stats.Rows += len(rows)
	}

	if len(periods) > 0 {
		values, err := src.Values(ctx, codes, periods, indicator)
		if err != nil {
			return stats, fmt.Errorf("read fundamentals: %w", err)
		}
		records := make([]contracts.FundamentalRecord, 0)
		for code, byPeriod := range values {
			for key, v := range byPeriod {
				period, err := contracts.ParseReportPeriod(key)
				if err != nil {
					continue
				}
				records = append(records, contracts.FundamentalRecord{
					Code:      code,
					Period:    period,
					Indicator: indicator,
					Value:     v,
				})
			}
		}
		if err := r.FinancialRepository.SaveBatch(ctx, records); err != nil {
			return stats, err
		}
		stats.Fundamentals = len(records)
	}

	log.WithFields(map[string]interface{}{
		"instruments":  stats.Instruments,
		"trading_days": stats.TradingDays,
		"rows":         stats.Rows,
		"fundamentals": stats.Fundamentals,
	}).Info("Import completed")

	return stats, nil
}

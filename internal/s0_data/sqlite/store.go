// Package sqlite reads the downloader's SQLite database (a_stock_data.db)
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/wonny/ashare-rotation/internal/contracts"
)

var _ contracts.DataStore = (*Store)(nil)

// downloader schema, used by tests and fresh files
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS stock_list (
		stock_code TEXT PRIMARY KEY,
		stock_name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stock_basic_info (
		stock_code TEXT PRIMARY KEY,
		stock_name TEXT,
		total_share REAL,
		float_share REAL,
		total_market_value REAL,
		float_market_value REAL,
		industry TEXT,
		list_date TEXT,
		latest_price REAL
	)`,
	`CREATE TABLE IF NOT EXISTS stock_daily_kline (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		stock_code TEXT NOT NULL,
		trade_date DATE NOT NULL,
		open_price REAL NOT NULL,
		close_price REAL NOT NULL,
		high_price REAL NOT NULL,
		low_price REAL NOT NULL,
		volume INTEGER NOT NULL,
		UNIQUE(stock_code, trade_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trade_date ON stock_daily_kline(trade_date)`,
	`CREATE TABLE IF NOT EXISTS stock_financial_abstract (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		stock_code TEXT NOT NULL,
		stock_name TEXT,
		category TEXT NOT NULL,
		indicator TEXT NOT NULL,
		report_date TEXT NOT NULL,
		value REAL,
		UNIQUE(stock_code, indicator, report_date)
	)`,
}

// Store implements contracts.DataStore over the downloader tables.
// Market caps come from stock_daily_kline when it carries them,
// otherwise from the stock_basic_info snapshot.
type Store struct {
	db        *sql.DB
	capSource string // "kline", "basic_info" or "none"
	totalExpr string
	floatExpr string
	capJoin   string
}

// Open opens (or creates) the database at path
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// database/sql pool + SQLite file locks: one writer at a time
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.detectCapColumns(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for fixtures and maintenance commands
func (s *Store) DB() *sql.DB {
	return s.db
}

// CapSource reports where market caps are read from
func (s *Store) CapSource() string {
	return s.capSource
}

// InitSchema creates the downloader tables when absent and re-detects columns
func (s *Store) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return s.detectCapColumns(ctx)
}

func (s *Store) tableColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid      int
			name     string
			colType  string
			notNull  int
			defValue sql.NullString
			pk       int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defValue, &pk); err != nil {
			return nil, fmt.Errorf("scan table_info %s: %w", table, err)
		}
		cols[strings.ToLower(name)] = true
	}
	return cols, rows.Err()
}

func floatColumn(cols map[string]bool) string {
	for _, name := range []string{"float_market_value", "circulating_market_value"} {
		if cols[name] {
			return name
		}
	}
	return ""
}

func (s *Store) detectCapColumns(ctx context.Context) error {
	kline, err := s.tableColumns(ctx, "stock_daily_kline")
	if err != nil {
		return err
	}
	basic, err := s.tableColumns(ctx, "stock_basic_info")
	if err != nil {
		return err
	}

	s.capSource, s.totalExpr, s.floatExpr, s.capJoin = "none", "0", "0", ""

	switch {
	case kline["total_market_value"] || floatColumn(kline) != "":
		s.capSource = "kline"
		if kline["total_market_value"] {
			s.totalExpr = "COALESCE(k.total_market_value, 0)"
		}
		if col := floatColumn(kline); col != "" {
			s.floatExpr = "COALESCE(k." + col + ", 0)"
		}
	case basic["total_market_value"] || floatColumn(basic) != "":
		s.capSource = "basic_info"
		s.capJoin = "LEFT JOIN stock_basic_info b ON b.stock_code = k.stock_code"
		if basic["total_market_value"] {
			s.totalExpr = "COALESCE(b.total_market_value, 0)"
		}
		if col := floatColumn(basic); col != "" {
			s.floatExpr = "COALESCE(b." + col + ", 0)"
		}
	}
	return nil
}

func (s *Store) rowQuery(where string) string {
	return `
		SELECT k.stock_code, strftime('%Y-%m-%d', k.trade_date),
		       COALESCE(k.open_price, 0), COALESCE(k.close_price, 0),
		       ` + s.totalExpr + `, ` + s.floatExpr + `
		FROM stock_daily_kline k
		` + s.capJoin + `
		WHERE ` + where + `
		ORDER BY k.stock_code`
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func dateArg(t time.Time) string {
	return contracts.Day(t).Format(contracts.DateLayout)
}

// RowsForDate implements contracts.MarketDataStore
func (s *Store) RowsForDate(ctx context.Context, date time.Time) ([]contracts.MarketRow, error) {
	rows, err := s.db.QueryContext(ctx, s.rowQuery("k.trade_date = ?"), dateArg(date))
	if err != nil {
		return nil, fmt.Errorf("query rows for date: %w", err)
	}
	return scanRows(rows)
}

// RowsForInstrumentsOnDate implements contracts.MarketDataStore
func (s *Store) RowsForInstrumentsOnDate(ctx context.Context, codes []string, date time.Time) ([]contracts.MarketRow, error) {
	if len(codes) == 0 {
		return []contracts.MarketRow{}, nil
	}

	args := make([]interface{}, 0, len(codes)+1)
	args = append(args, dateArg(date))
	for _, code := range codes {
		args = append(args, code)
	}

	where := "k.trade_date = ? AND k.stock_code IN (" + placeholders(len(codes)) + ")"
	rows, err := s.db.QueryContext(ctx, s.rowQuery(where), args...)
	if err != nil {
		return nil, fmt.Errorf("query rows for instruments: %w", err)
	}
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]contracts.MarketRow, error) {
	defer rows.Close()

	result := make([]contracts.MarketRow, 0)
	for rows.Next() {
		var row contracts.MarketRow
		var day string
		if err := rows.Scan(&row.Code, &day, &row.Open, &row.Close, &row.TotalMarketCap, &row.FloatMarketCap); err != nil {
			return nil, fmt.Errorf("scan kline row: %w", err)
		}
		t, err := time.Parse(contracts.DateLayout, day)
		if err != nil {
			return nil, fmt.Errorf("parse trade date %q: %w", day, err)
		}
		row.TradeDate = t
		result = append(result, row)
	}
	return result, rows.Err()
}

// TradingDates implements contracts.MarketDataStore
func (s *Store) TradingDates(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	query := `
		SELECT DISTINCT strftime('%Y-%m-%d', trade_date) AS d
		FROM stock_daily_kline
		WHERE trade_date BETWEEN ? AND ?
		ORDER BY d ASC`

	rows, err := s.db.QueryContext(ctx, query, dateArg(start), dateArg(end))
	if err != nil {
		return nil, fmt.Errorf("query trading dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("scan trading date: %w", err)
		}
		t, err := time.Parse(contracts.DateLayout, day)
		if err != nil {
			return nil, fmt.Errorf("parse trading date %q: %w", day, err)
		}
		dates = append(dates, t)
	}
	return dates, rows.Err()
}

// FirstDateAfter implements contracts.MarketDataStore
func (s *Store) FirstDateAfter(ctx context.Context, date time.Time) (time.Time, bool, error) {
	query := `SELECT strftime('%Y-%m-%d', MIN(trade_date)) FROM stock_daily_kline WHERE trade_date > ?`

	var day sql.NullString
	if err := s.db.QueryRowContext(ctx, query, dateArg(date)).Scan(&day); err != nil {
		return time.Time{}, false, fmt.Errorf("query first date after: %w", err)
	}
	if !day.Valid || day.String == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(contracts.DateLayout, day.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse first date %q: %w", day.String, err)
	}
	return t, true, nil
}

// Value implements contracts.FundamentalsStore
func (s *Store) Value(ctx context.Context, code string, period contracts.ReportPeriod, indicator string) (float64, bool, error) {
	query := `
		SELECT value FROM stock_financial_abstract
		WHERE stock_code = ? AND report_date = ? AND indicator = ? AND value IS NOT NULL
		LIMIT 1`

	var v float64
	err := s.db.QueryRowContext(ctx, query, code, period.String(), indicator).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query fundamental %s %s: %w", code, period, err)
	}
	return v, true, nil
}

// Values implements contracts.FundamentalsStore
func (s *Store) Values(ctx context.Context, codes []string, periods []contracts.ReportPeriod, indicator string) (map[string]map[string]float64, error) {
	result := make(map[string]map[string]float64)
	if len(codes) == 0 || len(periods) == 0 {
		return result, nil
	}

	args := make([]interface{}, 0, len(codes)+len(periods)+1)
	for _, code := range codes {
		args = append(args, code)
	}
	for _, p := range periods {
		args = append(args, p.String())
	}
	args = append(args, indicator)

	query := `
		SELECT stock_code, report_date, value FROM stock_financial_abstract
		WHERE stock_code IN (` + placeholders(len(codes)) + `)
		  AND report_date IN (` + placeholders(len(periods)) + `)
		  AND indicator = ? AND value IS NOT NULL`

	rows, err := s.db.QueryContext(ctx, query, args...)
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

// Instruments implements contracts.InstrumentStore
func (s *Store) Instruments(ctx context.Context) (map[string]contracts.Instrument, error) {
	query := `
		SELECT l.stock_code,
		       COALESCE(NULLIF(b.stock_name, ''), l.stock_name, ''),
		       COALESCE(b.list_date, '')
		FROM stock_list l
		LEFT JOIN stock_basic_info b ON b.stock_code = l.stock_code
		UNION
		SELECT b.stock_code, COALESCE(b.stock_name, ''), COALESCE(b.list_date, '')
		FROM stock_basic_info b
		WHERE b.stock_code NOT IN (SELECT stock_code FROM stock_list)`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query instruments: %w", err)
	}
	defer rows.Close()

	instruments := make(map[string]contracts.Instrument)
	for rows.Next() {
		var inst contracts.Instrument
		var listDate string
		if err := rows.Scan(&inst.Code, &inst.Name, &listDate); err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		inst.ListingDate = parseListDate(listDate)
		inst.Board = contracts.BoardOf(inst.Code)
		instruments[inst.Code] = inst
	}
	return instruments, rows.Err()
}

// parseListDate accepts 19910403 and 1991-04-03; anything else is unknown
func parseListDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"20060102", contracts.DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

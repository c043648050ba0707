package database

// schemaStatements mirror the SQLite layout of the downloader, moved into
// the market schema, plus the backtest schema for persisted runs.
var schemaStatements = []string{
	`CREATE SCHEMA IF NOT EXISTS market`,
	`CREATE TABLE IF NOT EXISTS market.stocks (
		stock_code   VARCHAR(10) PRIMARY KEY,
		stock_name   TEXT NOT NULL,
		industry     TEXT,
		list_date    DATE
	)`,
	`CREATE TABLE IF NOT EXISTS market.daily_kline (
		stock_code         VARCHAR(10) NOT NULL,
		trade_date         DATE NOT NULL,
		open_price         DOUBLE PRECISION,
		close_price        DOUBLE PRECISION,
		high_price         DOUBLE PRECISION,
		low_price          DOUBLE PRECISION,
		volume             BIGINT,
		total_market_value DOUBLE PRECISION,
		float_market_value DOUBLE PRECISION,
		PRIMARY KEY (stock_code, trade_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_daily_kline_date ON market.daily_kline (trade_date)`,
	`CREATE TABLE IF NOT EXISTS market.financial_abstract (
		stock_code  VARCHAR(10) NOT NULL,
		category    TEXT,
		indicator   TEXT NOT NULL,
		report_date CHAR(8) NOT NULL,
		value       DOUBLE PRECISION,
		PRIMARY KEY (stock_code, indicator, report_date)
	)`,
	`CREATE SCHEMA IF NOT EXISTS backtest`,
	`CREATE TABLE IF NOT EXISTS backtest.runs (
		run_id       UUID PRIMARY KEY,
		strategy     TEXT NOT NULL,
		config_hash  TEXT NOT NULL,
		parameters   JSONB NOT NULL,
		start_date   DATE NOT NULL,
		end_date     DATE NOT NULL,
		status       TEXT NOT NULL,
		error        TEXT NOT NULL DEFAULT '',
		summary      JSONB NOT NULL,
		liquidation  JSONB,
		degradations JSONB NOT NULL DEFAULT '[]',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		finished_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_created ON backtest.runs (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS backtest.nav_points (
		run_id UUID NOT NULL REFERENCES backtest.runs(run_id) ON DELETE CASCADE,
		seq    INT NOT NULL,
		date   DATE NOT NULL,
		nav    DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS backtest.periods (
		run_id          UUID NOT NULL REFERENCES backtest.runs(run_id) ON DELETE CASCADE,
		period_index    INT NOT NULL,
		selection_date  DATE NOT NULL,
		realized_return DOUBLE PRECISION NOT NULL,
		nav_after       DOUBLE PRECISION NOT NULL,
		degraded        BOOLEAN NOT NULL,
		record          JSONB NOT NULL,
		PRIMARY KEY (run_id, period_index)
	)`,
	`CREATE TABLE IF NOT EXISTS backtest.holdings (
		run_id           UUID NOT NULL REFERENCES backtest.runs(run_id) ON DELETE CASCADE,
		period_index     INT NOT NULL,
		stock_code       VARCHAR(10) NOT NULL,
		stock_name       TEXT,
		rank_metric      DOUBLE PRECISION,
		shares           BIGINT NOT NULL,
		entry_price      DOUBLE PRECISION NOT NULL,
		invested_capital DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (run_id, period_index, stock_code)
	)`,
	`CREATE TABLE IF NOT EXISTS backtest.selections (
		strategy       TEXT NOT NULL,
		selection_date DATE NOT NULL,
		metric         TEXT NOT NULL,
		rank           INT NOT NULL,
		stock_code     VARCHAR(10) NOT NULL,
		stock_name     TEXT,
		metric_value   DOUBLE PRECISION NOT NULL,
		inputs         JSONB,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (strategy, selection_date, rank)
	)`,
	`CREATE TABLE IF NOT EXISTS backtest.universe_snapshots (
		strategy        TEXT NOT NULL,
		snapshot_date   DATE NOT NULL,
		eligible_stocks TEXT[] NOT NULL,
		total_count     INT NOT NULL,
		excluded        JSONB NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (strategy, snapshot_date)
	)`,
	`CREATE TABLE IF NOT EXISTS market.quality_snapshots (
		check_date   DATE PRIMARY KEY,
		quality_score DOUBLE PRECISION NOT NULL,
		passed       BOOLEAN NOT NULL,
		report       JSONB NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

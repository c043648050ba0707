package contracts

import (
	"context"
	"time"
)

// QualityGate checks store coverage (S0)
// ⭐ SSOT: S0 데이터 품질 검증 인터페이스
type QualityGate interface {
	Check(ctx context.Context, date time.Time) (*DataQualitySnapshot, error)
}

// TradingCalendar resolves trading days
// ⭐ SSOT: 거래일 판정 인터페이스
type TradingCalendar interface {
	LastTradingDayOnOrBefore(ctx context.Context, date time.Time) (time.Time, bool, error)
	FirstTradingDayAfter(ctx context.Context, date time.Time) (time.Time, bool, error)
	// MonthEndDates skips months whose lookup failed and reports them as recoverable gaps
	MonthEndDates(ctx context.Context, start, end time.Time) ([]time.Time, []error, error)
}

// SnapshotProvider returns the point-in-time market view (S0 → S1)
type SnapshotProvider interface {
	SnapshotAsOf(ctx context.Context, date time.Time) (*MarketSnapshot, error)
}

// UniverseBuilder creates the eligible universe (S1)
// ⭐ SSOT: S1 유니버스 생성 인터페이스
type UniverseBuilder interface {
	Build(ctx context.Context, snapshot *MarketSnapshot) (*Universe, error)
}

// StockSelector ranks the universe and keeps the top N (S2-S3).
// The []error lists recoverable per-instrument problems.
// ⭐ SSOT: S3 랭킹 인터페이스
type StockSelector interface {
	Select(ctx context.Context, snapshot *MarketSnapshot, universe *Universe) (*SelectionRecord, []error, error)
}

// PositionAllocator sizes positions for a selection (S4)
// ⭐ SSOT: S4 포트폴리오 구성 인터페이스
type PositionAllocator interface {
	Allocate(selection *SelectionRecord, tradeDate time.Time, prices map[string]float64, capital float64) (*Allocation, []error)
}

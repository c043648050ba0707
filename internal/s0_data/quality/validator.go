// Package quality scores how complete the store is for one trading day
package quality

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/internal/fundamentals"
)

// Coverage keys
const (
	CoveragePrice        = "price"
	CoverageMarketCap    = "market_cap"
	CoverageFundamentals = "fundamentals"
	CoverageBenchmarks   = "benchmarks"
)

// QualityGate validates data quality and generates snapshots
type QualityGate struct {
	store  contracts.DataStore
	config Config
}

var _ contracts.QualityGate = (*QualityGate)(nil)

// Config holds quality gate thresholds
type Config struct {
	MinPriceCoverage        float64  `yaml:"min_price_coverage"`        // 0.90
	MinMarketCapCoverage    float64  `yaml:"min_market_cap_coverage"`   // 0.90
	MinFundamentalsCoverage float64  `yaml:"min_fundamentals_coverage"` // 0.60
	MinBenchmarkCoverage    float64  `yaml:"min_benchmark_coverage"`    // 0.60
	Indicator               string   `yaml:"indicator"`
	Benchmarks              []string `yaml:"benchmarks"`
}

// DefaultConfig matches the calendar quorum and the EPS indicator
func DefaultConfig(benchmarks []string) Config {
	return Config{
		MinPriceCoverage:        0.90,
		MinMarketCapCoverage:    0.90,
		MinFundamentalsCoverage: 0.60,
		MinBenchmarkCoverage:    0.60,
		Indicator:               contracts.IndicatorBasicEPS,
		Benchmarks:              benchmarks,
	}
}

// NewQualityGate creates a new QualityGate instance
func NewQualityGate(store contracts.DataStore, config Config) *QualityGate {
	if config.Indicator == "" {
		config.Indicator = contracts.IndicatorBasicEPS
	}
	return &QualityGate{store: store, config: config}
}

// Check validates data quality for a given date
// ⭐ SSOT: S0 → S1 품질 검증
func (g *QualityGate) Check(ctx context.Context, date time.Time) (*contracts.DataQualitySnapshot, error) {
	date = contracts.Day(date)
	snapshot := &contracts.DataQualitySnapshot{
		Date:     date,
		Coverage: make(map[string]float64),
	}

	// 1. 전체 종목 수
	instruments, err := g.store.Instruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	snapshot.TotalStocks = len(instruments)

	// 2. 당일 시세
	rows, err := g.store.RowsForDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("rows for %s: %w", date.Format(contracts.DateLayout), err)
	}
	byCode := make(map[string]contracts.MarketRow, len(rows))
	for _, row := range rows {
		byCode[row.Code] = row
	}

	var priced, capped int
	for code := range instruments {
		row, ok := byCode[code]
		if !ok || row.Open <= 0 || row.Close <= 0 {
			continue
		}
		priced++
		if row.TotalMarketCap > 0 && row.FloatMarketCap > 0 {
			capped++
		}
	}
	snapshot.ValidStocks = capped
	snapshot.Coverage[CoveragePrice] = ratio(priced, snapshot.TotalStocks)
	snapshot.Coverage[CoverageMarketCap] = ratio(capped, snapshot.TotalStocks)

	// 3. 최근 공시 기간의 재무 데이터
	fundamentalsCov, err := g.checkFundamentals(ctx, instruments, date)
	if err != nil {
		return nil, err
	}
	snapshot.Coverage[CoverageFundamentals] = fundamentalsCov

	// 4. 거래일 판정용 벤치마크
	present := 0
	for _, code := range g.config.Benchmarks {
		if _, ok := byCode[code]; ok {
			present++
		}
	}
	snapshot.Coverage[CoverageBenchmarks] = ratio(present, len(g.config.Benchmarks))

	snapshot.QualityScore = g.calculateScore(snapshot.Coverage)
	snapshot.Passed = g.passed(snapshot.Coverage)
	return snapshot, nil
}

// checkFundamentals returns the share of instruments reporting the latest required period
func (g *QualityGate) checkFundamentals(ctx context.Context, instruments map[string]contracts.Instrument, date time.Time) (float64, error) {
	if len(instruments) == 0 {
		return 0, nil
	}
	periods, _ := fundamentals.RequiredDisclosurePeriods(date)
	codes := make([]string, 0, len(instruments))
	for code := range instruments {
		codes = append(codes, code)
	}

	values, err := g.store.Values(ctx, codes, periods[:1], g.config.Indicator)
	if err != nil {
		return 0, fmt.Errorf("fundamentals coverage: %w", err)
	}
	reported := 0
	for _, code := range codes {
		if _, ok := values[code][periods[0].String()]; ok {
			reported++
		}
	}
	return ratio(reported, len(codes)), nil
}

// calculateScore calculates overall quality score using weighted average
func (g *QualityGate) calculateScore(coverage map[string]float64) float64 {
	// 가중치 (합계 = 1.0)
	weights := map[string]float64{
		CoveragePrice:        0.35, // 진입/청산 가격
		CoverageMarketCap:    0.25, // 시가총액 필터
		CoverageFundamentals: 0.25, // TTM PE
		CoverageBenchmarks:   0.15, // 거래일 판정
	}

	score := 0.0
	for key, weight := range weights {
		score += coverage[key] * weight
	}
	return score
}

func (g *QualityGate) passed(coverage map[string]float64) bool {
	return coverage[CoveragePrice] >= g.config.MinPriceCoverage &&
		coverage[CoverageMarketCap] >= g.config.MinMarketCapCoverage &&
		coverage[CoverageFundamentals] >= g.config.MinFundamentalsCoverage &&
		coverage[CoverageBenchmarks] >= g.config.MinBenchmarkCoverage
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

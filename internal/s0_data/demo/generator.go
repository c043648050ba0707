// Package demo builds a deterministic synthetic A-share market in memory
package demo

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/internal/s0_data/memstore"
)

// Benchmarks are always generated and trade every market day
var Benchmarks = []string{"000001", "000002", "000027", "000006", "000026"}

var boardPrefixes = []string{"600", "601", "603", "000", "002", "300", "688"}

// Config controls the synthetic market
type Config struct {
	Start       time.Time
	End         time.Time
	Instruments int     // in addition to the benchmarks
	Seed        int64   // same seed, same market
	STRatio     float64 // share of names carrying the ST marker
	LossRatio   float64 // share of names with negative earnings
	GapRatio    float64 // probability of a missing fundamental record
	Suspension  float64 // daily probability of a missing row
}

// DefaultConfig returns a two-year market of 120 names
func DefaultConfig() Config {
	return Config{
		Start:       time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		Instruments: 120,
		Seed:        42,
		STRatio:     0.05,
		LossRatio:   0.1,
		GapRatio:    0.03,
		Suspension:  0.01,
	}
}

// Stats counts what Generate produced
type Stats struct {
	Instruments  int `json:"instruments"`
	TradingDays  int `json:"trading_days"`
	Rows         int `json:"rows"`
	Fundamentals int `json:"fundamentals"`
}

type instrumentModel struct {
	inst      contracts.Instrument
	price     float64
	shares    float64
	floatPct  float64
	drift     float64
	vol       float64
	annualEPS float64
	benchmark bool
}

// IsMarketDay reports weekdays outside the New Year and National Day closures
func IsMarketDay(d time.Time) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	if d.Month() == time.January && d.Day() == 1 {
		return false
	}
	if d.Month() == time.October && d.Day() <= 3 {
		return false
	}
	return true
}

// Generate fills a new memstore with rows, fundamentals and instruments
func Generate(cfg Config) (*memstore.Store, Stats) {
	rng := rand.New(rand.NewSource(cfg.Seed))
	store := memstore.New()
	stats := Stats{}

	start, end := contracts.Day(cfg.Start), contracts.Day(cfg.End)
	models := buildModels(rng, cfg, start)

	for _, m := range models {
		store.AddInstrument(m.inst)
	}
	stats.Instruments = len(models)

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if !IsMarketDay(day) {
			continue
		}
		stats.TradingDays++

		for _, m := range models {
			if day.Before(m.inst.ListingDate) {
				continue
			}
			prev := m.price
			m.price = math.Max(0.5, prev*(1+m.drift+m.vol*rng.NormFloat64()))
			open := math.Max(0.5, prev*(1+0.005*rng.NormFloat64()))

			if !m.benchmark && rng.Float64() < cfg.Suspension {
				continue
			}

			total := m.price * m.shares
			store.AddRow(contracts.MarketRow{
				Code:           m.inst.Code,
				TradeDate:      day,
				Open:           round2(open),
				Close:          round2(m.price),
				TotalMarketCap: math.Round(total),
				FloatMarketCap: math.Round(total * m.floatPct),
			})
			stats.Rows++
		}
	}

	stats.Fundamentals = addFundamentals(rng, cfg, store, models, start, end)
	return store, stats
}

func buildModels(rng *rand.Rand, cfg Config, start time.Time) []*instrumentModel {
	models := make([]*instrumentModel, 0, len(Benchmarks)+cfg.Instruments)

	newModel := func(code, name string, benchmark bool) *instrumentModel {
		price := 2 + rng.Float64()*38
		pe := 5 + rng.Float64()*55
		eps := price / pe
		if !benchmark && rng.Float64() < cfg.LossRatio {
			eps = -eps
		}

		listing := start.AddDate(-1-rng.Intn(20), 0, -rng.Intn(365))
		if !benchmark && rng.Float64() < 0.05 {
			listing = start.AddDate(0, 0, 30+rng.Intn(300))
		}

		return &instrumentModel{
			inst: contracts.Instrument{
				Code:        code,
				Name:        name,
				Board:       contracts.BoardOf(code),
				ListingDate: listing,
			},
			price:     price,
			shares:    1e8 + rng.Float64()*5e9,
			floatPct:  0.6 + rng.Float64()*0.4,
			drift:     0.0002 + 0.0004*rng.NormFloat64(),
			vol:       0.01 + rng.Float64()*0.02,
			annualEPS: eps,
			benchmark: benchmark,
		}
	}

	for i, code := range Benchmarks {
		models = append(models, newModel(code, fmt.Sprintf("基准%d", i+1), true))
	}

	n := cfg.Instruments
	if n > 899 {
		n = 899 // six-digit codes
	}
	for i := 0; i < n; i++ {
		prefix := boardPrefixes[i%len(boardPrefixes)]
		code := fmt.Sprintf("%s%03d", prefix, 100+i)
		name := fmt.Sprintf("演示%03d", i)
		if rng.Float64() < cfg.STRatio {
			name = "ST" + name
		}
		models = append(models, newModel(code, name, false))
	}
	return models
}

// addFundamentals writes cumulative basic EPS for every period from three
// years before start through end, disclosed or not.
func addFundamentals(rng *rand.Rand, cfg Config, store *memstore.Store, models []*instrumentModel, start, end time.Time) int {
	cumulative := map[contracts.PeriodKind]float64{
		contracts.PeriodQ1:      0.25,
		contracts.PeriodInterim: 0.5,
		contracts.PeriodQ3:      0.75,
		contracts.PeriodAnnual:  1.0,
	}
	kinds := []contracts.PeriodKind{contracts.PeriodQ1, contracts.PeriodInterim, contracts.PeriodQ3, contracts.PeriodAnnual}

	count := 0
	for _, m := range models {
		eps := m.annualEPS
		for year := start.Year() - 3; year <= end.Year(); year++ {
			growth := 1 + 0.05 + 0.1*rng.NormFloat64()
			eps *= growth
			for _, kind := range kinds {
				if !m.benchmark && rng.Float64() < cfg.GapRatio {
					continue
				}
				store.AddFundamental(contracts.FundamentalRecord{
					Code:      m.inst.Code,
					Period:    contracts.ReportPeriod{Year: year, Kind: kind},
					Indicator: contracts.IndicatorBasicEPS,
					Category:  "常用指标",
					Value:     math.Round(eps*cumulative[kind]*(1+0.05*rng.NormFloat64())*1e4) / 1e4,
				})
				count++
			}
		}
	}
	return count
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

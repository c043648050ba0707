package s1_universe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/internal/s0_data/memstore"
)

var day = time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

func row(code string, close, total, float float64) contracts.MarketRow {
	return contracts.MarketRow{Code: code, TradeDate: day, Open: close, Close: close, TotalMarketCap: total, FloatMarketCap: float}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"negative price", func(c *Config) { c.MinPrice = -1 }},
		{"negative cap", func(c *Config) { c.MinMarketCap = -1 }},
		{"bad basis", func(c *Config) { c.CapBasis = "free" }},
		{"negative listing days", func(c *Config) { c.MinListingDays = -5 }},
		{"empty prefix", func(c *Config) { c.Prefixes = []string{"600", ""} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			assert.ErrorIs(t, cfg.Validate(), contracts.ErrConfiguration)
		})
	}
}

func TestConfig_CheckExclusion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinPrice = 10
	cfg.MinMarketCap = 1e9

	plain := contracts.Instrument{Name: "浦发银行"}
	st := contracts.Instrument{Name: "*ST 海航"}

	tests := []struct {
		name   string
		row    contracts.MarketRow
		meta   contracts.Instrument
		reason string
	}{
		{"eligible", row("600000", 12, 5e9, 4e9), plain, ""},
		{"chinext", row("300750", 12, 5e9, 4e9), plain, "보드 제외 (chinext)"},
		{"star", row("688001", 12, 5e9, 4e9), plain, "보드 제외 (star)"},
		{"st name", row("600221", 12, 5e9, 4e9), st, "ST 종목"},
		{"no close", row("600000", 0, 5e9, 4e9), plain, "종가 없음"},
		{"cheap", row("600000", 9.99, 5e9, 4e9), plain, "가격 미달 (9.99)"},
		{"no cap", row("600000", 12, 5e9, 0), plain, "시가총액 없음"},
		{"small cap", row("600000", 12, 5e9, 5e8), plain, "시가총액 미달 (5.0亿)"},
		{"price exactly at floor", row("000001", 10, 5e9, 1e9), plain, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.reason, cfg.CheckExclusion(tt.row, tt.meta))
			assert.Equal(t, tt.reason == "", cfg.Eligible(tt.row, tt.meta))
		})
	}
}

func TestConfig_RiskFlagKept(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExcludeRiskFlag = false

	assert.True(t, cfg.Eligible(row("600221", 3, 5e9, 4e9), contracts.Instrument{Name: "ST 海航"}))
}

func TestConfig_CapBasis(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinMarketCap = 1e10
	r := row("600000", 12, 2e10, 5e9)

	cfg.CapBasis = contracts.CapFloat
	assert.False(t, cfg.Eligible(r, contracts.Instrument{}))

	cfg.CapBasis = contracts.CapTotal
	assert.True(t, cfg.Eligible(r, contracts.Instrument{}))
}

func TestConfig_MinListingDays(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinListingDays = 60
	r := row("603999", 12, 5e9, 4e9)

	recent := contracts.Instrument{ListingDate: day.AddDate(0, 0, -30)}
	seasoned := contracts.Instrument{ListingDate: day.AddDate(-1, 0, 0)}

	assert.Equal(t, "상장일수 미달 (30일)", cfg.CheckExclusion(r, recent))
	assert.True(t, cfg.Eligible(r, seasoned))
	assert.True(t, cfg.Eligible(r, contracts.Instrument{}), "unknown listing date passes")
}

func TestConfig_AllBoards(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Prefixes = nil
	assert.True(t, cfg.Eligible(row("688001", 12, 5e9, 4e9), contracts.Instrument{}))
}

func TestBuilder_Build(t *testing.T) {
	store := memstore.New()
	store.AddInstrument(contracts.Instrument{Code: "600000", Name: "浦发银行"})
	store.AddInstrument(contracts.Instrument{Code: "600221", Name: "ST海航"})

	cfg := DefaultConfig()
	cfg.MinPrice = 5
	builder, err := NewBuilder(store, cfg, nil)
	require.NoError(t, err)

	snapshot := &contracts.MarketSnapshot{
		AsOf: day,
		Date: day,
		Rows: []contracts.MarketRow{
			row("000002", 8, 5e10, 4e10), // no metadata, still eligible
			row("300750", 150, 5e11, 4e11),
			row("600000", 7, 2e11, 2e11),
			row("600221", 6, 5e9, 4e9),
			row("601988", 3, 1e12, 9e11),
		},
	}

	universe, err := builder.Build(context.Background(), snapshot)
	require.NoError(t, err)

	assert.Equal(t, day, universe.Date)
	assert.Equal(t, []string{"000002", "600000"}, universe.Stocks)
	assert.Equal(t, 5, universe.TotalCount)
	assert.Len(t, universe.Excluded, 3)

	excluded, reason := universe.IsExcluded("600221")
	assert.True(t, excluded)
	assert.Equal(t, "ST 종목", reason)

	assert.Equal(t, map[string]int{"보드 제외": 1, "ST 종목": 1, "가격 미달": 1}, universe.ExclusionCounts())
}

func TestBuilder_EmptySnapshot(t *testing.T) {
	builder, err := NewBuilder(memstore.New(), DefaultConfig(), nil)
	require.NoError(t, err)

	universe, err := builder.Build(context.Background(), &contracts.MarketSnapshot{AsOf: day})
	require.NoError(t, err)
	assert.Equal(t, 0, universe.Count())
}

func TestNewBuilder_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinPrice = -1
	_, err := NewBuilder(memstore.New(), cfg, nil)
	assert.ErrorIs(t, err, contracts.ErrConfiguration)
}

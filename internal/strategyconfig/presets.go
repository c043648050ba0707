package strategyconfig

import (
	"fmt"
	"sort"

	"github.com/wonny/ashare-rotation/internal/calendar"
	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/internal/portfolio"
	"github.com/wonny/ashare-rotation/internal/s1_universe"
	"github.com/wonny/ashare-rotation/internal/selection"
)

// Preset names
const (
	PresetSmallCap = "small_cap"
	PresetLowPrice = "low_price"
	PresetLowTTMPE = "low_ttm_pe"
)

// Defaults returns the values every strategy file starts from
func Defaults() *Config {
	return &Config{
		Meta: Meta{
			Version:           "v1",
			Timezone:          "Asia/Shanghai",
			DecisionTimeLocal: "15:30",
		},
		Backtest: Backtest{
			InitialCapital: 1_000_000,
		},
		Universe:  s1_universe.DefaultConfig(),
		Selection: selection.Config{Direction: selection.Ascending, Count: 10, CapBasis: contracts.CapFloat},
		Portfolio: portfolio.DefaultConstraints(),
		Calendar:  calendar.DefaultConfig(),
	}
}

var presets = map[string]func() *Config{
	// 小市值轮动: 主板, 10元 이상, ST 제외, 유통시가총액 오름차순 10종목
	PresetSmallCap: func() *Config {
		cfg := Defaults()
		cfg.Meta.StrategyID = PresetSmallCap
		cfg.Meta.Name = "小市值轮动策略"
		cfg.Backtest.StartDate = "2023-01-01"
		cfg.Backtest.EndDate = "2024-12-31"
		cfg.Universe.Prefixes = []string{"600", "601", "603", "000", "001", "002", "003"}
		cfg.Universe.MinPrice = 10
		cfg.Universe.CapBasis = contracts.CapFloat
		cfg.Selection.Metric = selection.MetricMarketCap
		cfg.Selection.CapBasis = contracts.CapFloat
		cfg.Selection.Count = 10
		return cfg
	},
	// 低价股: 2元 이상 전 종목, 종가 오름차순 50종목
	PresetLowPrice: func() *Config {
		cfg := Defaults()
		cfg.Meta.StrategyID = PresetLowPrice
		cfg.Meta.Name = "低价股策略"
		cfg.Backtest.StartDate = "2023-01-01"
		cfg.Backtest.EndDate = "2024-12-31"
		cfg.Backtest.InitialCapital = 100_000
		cfg.Universe.Prefixes = []string{}
		cfg.Universe.MinPrice = 2
		cfg.Universe.ExcludeRiskFlag = false
		cfg.Selection.Metric = selection.MetricPrice
		cfg.Selection.Count = 50
		return cfg
	},
	// 主板低TTM PE: 총시가총액 100亿 이상, TTM PE 오름차순 10종목, 수수료 万1
	PresetLowTTMPE: func() *Config {
		cfg := Defaults()
		cfg.Meta.StrategyID = PresetLowTTMPE
		cfg.Meta.Name = "主板低TTM PE轮动策略"
		cfg.Backtest.StartDate = "2020-01-01"
		cfg.Backtest.EndDate = "2025-06-30"
		cfg.Backtest.TransactionCost = 0.0001
		cfg.Universe.Prefixes = []string{"6", "0"}
		cfg.Universe.MinPrice = 0
		cfg.Universe.MinMarketCap = 1e10
		cfg.Universe.CapBasis = contracts.CapTotal
		cfg.Universe.ExcludeRiskFlag = false
		cfg.Selection.Metric = selection.MetricTTMPE
		cfg.Selection.CapBasis = contracts.CapTotal
		cfg.Selection.Indicator = contracts.IndicatorBasicEPS
		cfg.Selection.Count = 10
		return cfg
	},
}

// Preset returns a fresh copy of a built-in strategy
func Preset(name string) (*Config, error) {
	build, ok := presets[name]
	if !ok {
		return nil, ValidationError{"meta.strategy_id", fmt.Sprintf("unknown preset %q", name)}
	}
	cfg := build()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PresetNames lists the built-in strategies in name order
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

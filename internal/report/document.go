// Package report renders a backtest result into files for people and tools
package report

import (
	"github.com/wonny/ashare-rotation/internal/backtest"
	"github.com/wonny/ashare-rotation/internal/contracts"
)

// Parameters are the strategy knobs shown in every report
type Parameters struct {
	StartDate       string   `json:"start_date"`
	EndDate         string   `json:"end_date"`
	InitialCapital  float64  `json:"initial_capital"`
	TransactionCost float64  `json:"transaction_cost"`
	Metric          string   `json:"metric"`
	Direction       string   `json:"direction"`
	Count           int      `json:"count"`
	Prefixes        []string `json:"prefixes"`
	MinPrice        float64  `json:"min_price"`
	MinMarketCap    float64  `json:"min_market_cap"`
	CapBasis        string   `json:"cap_basis"`
	ExcludeRiskFlag bool     `json:"exclude_risk_flag"`
	LotSize         int64    `json:"lot_size"`
}

// Document is the serializable form of one run
type Document struct {
	RunID        string                   `json:"run_id,omitempty"`
	Strategy     string                   `json:"strategy"`
	Parameters   Parameters               `json:"parameters"`
	Summary      contracts.Summary        `json:"summary"`
	NAV          []contracts.NAVPoint     `json:"nav"`
	Periods      []contracts.PeriodRecord `json:"periods"`
	Liquidation  *contracts.Liquidation   `json:"liquidation,omitempty"`
	Degradations []contracts.Degradation  `json:"degradations"`
	Aborted      bool                     `json:"aborted"`
}

// NewDocument flattens a result
func NewDocument(runID string, result *backtest.Result) *Document {
	cfg := result.Config
	return &Document{
		RunID:        runID,
		Strategy:     cfg.Strategy,
		Parameters:   ParametersOf(cfg),
		Summary:      result.Summary,
		NAV:          result.NAV,
		Periods:      result.Periods,
		Liquidation:  result.Liquidation,
		Degradations: result.Degradations,
		Aborted:      result.Aborted,
	}
}

// ParametersOf extracts the displayed parameters of an engine configuration
func ParametersOf(cfg backtest.Config) Parameters {
	return Parameters{
		StartDate:       cfg.StartDate.Format(contracts.DateLayout),
		EndDate:         cfg.EndDate.Format(contracts.DateLayout),
		InitialCapital:  cfg.InitialCapital,
		TransactionCost: cfg.TransactionCost,
		Metric:          string(cfg.Selection.Metric),
		Direction:       string(cfg.Selection.Direction),
		Count:           cfg.Selection.Count,
		Prefixes:        cfg.Universe.Prefixes,
		MinPrice:        cfg.Universe.MinPrice,
		MinMarketCap:    cfg.Universe.MinMarketCap,
		CapBasis:        string(cfg.Universe.CapBasis),
		ExcludeRiskFlag: cfg.Universe.ExcludeRiskFlag,
		LotSize:         cfg.Constraints.LotSize,
	}
}

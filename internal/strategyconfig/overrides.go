package strategyconfig

import "fmt"

// Overrides adjust a loaded strategy from flags or an API request; zero values keep the strategy's own
type Overrides struct {
	StartDate       string   `json:"start_date,omitempty"`
	EndDate         string   `json:"end_date,omitempty"`
	Count           int      `json:"count,omitempty"`
	MinPrice        *float64 `json:"min_price,omitempty"`
	MinMarketCap    *float64 `json:"min_market_cap,omitempty"`
	InitialCapital  float64  `json:"initial_capital,omitempty"`
	TransactionCost *float64 `json:"transaction_cost,omitempty"`
}

// Apply writes the overrides into cfg and validates the result
func (o Overrides) Apply(cfg *Config) error {
	if o.StartDate != "" {
		cfg.Backtest.StartDate = o.StartDate
	}
	if o.EndDate != "" {
		cfg.Backtest.EndDate = o.EndDate
	}
	if o.Count != 0 {
		cfg.Selection.Count = o.Count
	}
	if o.MinPrice != nil {
		cfg.Universe.MinPrice = *o.MinPrice
	}
	if o.MinMarketCap != nil {
		cfg.Universe.MinMarketCap = *o.MinMarketCap
	}
	if o.InitialCapital != 0 {
		cfg.Backtest.InitialCapital = o.InitialCapital
	}
	if o.TransactionCost != nil {
		cfg.Backtest.TransactionCost = *o.TransactionCost
	}
	return Validate(cfg)
}

// Resolve loads a strategy from a YAML file when path is set, else from a preset.
// The returned bytes are the YAML form that produced the config.
func Resolve(preset, path string) (*Config, []byte, error) {
	if path != "" {
		return Load(path)
	}
	if preset == "" {
		return nil, nil, fmt.Errorf("either a preset or a strategy file is required: %w", ValidationError{"meta.strategy_id", "empty"})
	}
	cfg, err := Preset(preset)
	if err != nil {
		return nil, nil, err
	}
	data, err := Marshal(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, data, nil
}

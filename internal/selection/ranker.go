package selection

import (
	"context"
	"fmt"
	"sort"

	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/pkg/logger"
)

// Select ranks candidates by fn and keeps the first n.
// Ties break by code so the order is total; fewer than n qualifying
// candidates are returned as they are, never padded.
func Select(candidates []Candidate, fn MetricFunc, n int, direction Direction) []contracts.SelectedStock {
	scored, _ := Screen(candidates, fn)
	return rank(scored, n, direction)
}

func rank(scored []Scored, n int, direction Direction) []contracts.SelectedStock {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Value != scored[j].Value {
			if direction == Descending {
				return scored[i].Value > scored[j].Value
			}
			return scored[i].Value < scored[j].Value
		}
		return scored[i].Row.Code < scored[j].Row.Code
	})

	if n < len(scored) {
		scored = scored[:n]
	}

	selected := make([]contracts.SelectedStock, len(scored))
	for i, s := range scored {
		selected[i] = contracts.SelectedStock{
			Code:        s.Row.Code,
			Name:        s.Instrument.Name,
			Rank:        i + 1,
			MetricValue: s.Value,
			Inputs:      s.Inputs,
		}
	}
	return selected
}

// Config defines what the ranker sorts on and how many it keeps
type Config struct {
	Metric    MetricKind         `yaml:"metric" json:"metric"`
	Direction Direction          `yaml:"direction" json:"direction"`
	Count     int                `yaml:"count" json:"count"`
	CapBasis  contracts.CapBasis `yaml:"cap_basis" json:"cap_basis"`
	Indicator string             `yaml:"indicator" json:"indicator,omitempty"`
}

// Validate checks the ranking parameters
func (c Config) Validate() error {
	if c.Count < 1 {
		return &contracts.ConfigurationError{Field: "selection.count", Message: "must be >= 1"}
	}
	if c.Direction != Ascending && c.Direction != Descending {
		return &contracts.ConfigurationError{Field: "selection.direction", Message: fmt.Sprintf("unknown direction %q", c.Direction)}
	}
	switch c.Metric {
	case MetricPrice, MetricMarketCap, MetricTTMPE:
	default:
		return &contracts.ConfigurationError{Field: "selection.metric", Message: fmt.Sprintf("unknown metric %q", c.Metric)}
	}
	return nil
}

// Ranker implements the metric and selection stages
// ⭐ SSOT: S3 랭킹 로직은 여기서만
type Ranker struct {
	metric      Metric
	config      Config
	instruments contracts.InstrumentStore
	logger      *logger.Logger
}

var _ contracts.StockSelector = (*Ranker)(nil)

// NewRanker creates a new ranker
func NewRanker(config Config, metric Metric, instruments contracts.InstrumentStore, log *logger.Logger) (*Ranker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if metric == nil || metric.Kind() != config.Metric {
		return nil, &contracts.ConfigurationError{Field: "selection.metric", Message: "metric does not match config"}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Ranker{metric: metric, config: config, instruments: instruments, logger: log}, nil
}

// Select ranks the eligible rows of the snapshot
func (r *Ranker) Select(ctx context.Context, snapshot *contracts.MarketSnapshot, universe *contracts.Universe) (*contracts.SelectionRecord, []error, error) {
	record := &contracts.SelectionRecord{
		Date:   snapshot.Date,
		Metric: string(r.config.Metric),
		Stocks: []contracts.SelectedStock{},
	}
	if universe.Count() == 0 {
		return record, nil, nil
	}

	instruments, err := r.instruments.Instruments(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("get instruments: %w", err)
	}

	candidates := Candidates(snapshot, universe, instruments)

	fn, degradations, err := r.metric.Bind(ctx, snapshot.Date, candidates)
	if err != nil {
		return nil, nil, fmt.Errorf("bind %s: %w", r.config.Metric, err)
	}

	scored, dropped := Screen(candidates, fn)
	record.Stocks = rank(scored, r.config.Count, r.config.Direction)

	fields := map[string]interface{}{
		"stage":      contracts.StageSelection.ShortName(),
		"date":       snapshot.Date.Format(contracts.DateLayout),
		"metric":     r.config.Metric,
		"candidates": len(candidates),
		"scored":     len(scored),
		"dropped":    len(dropped),
		"selected":   len(record.Stocks),
	}
	if len(record.Stocks) < r.config.Count {
		r.logger.WithFields(fields).Warnf("Only %d of %d stocks qualified", len(record.Stocks), r.config.Count)
	} else {
		r.logger.WithFields(fields).Debug("Selection completed")
	}

	return record, degradations, nil
}

// Candidates pairs eligible codes with their rows and metadata, in universe order
func Candidates(snapshot *contracts.MarketSnapshot, universe *contracts.Universe, instruments map[string]contracts.Instrument) []Candidate {
	rows := make(map[string]contracts.MarketRow, len(snapshot.Rows))
	for _, row := range snapshot.Rows {
		rows[row.Code] = row
	}

	candidates := make([]Candidate, 0, universe.Count())
	for _, code := range universe.Stocks {
		row, ok := rows[code]
		if !ok {
			continue
		}
		meta, ok := instruments[code]
		if !ok {
			meta = contracts.Instrument{Code: code, Board: contracts.BoardOf(code)}
		}
		candidates = append(candidates, Candidate{Instrument: meta, Row: row})
	}
	return candidates
}

// Package sweep runs one backtest per point of a parameter grid
package sweep

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/ashare-rotation/internal/backtest"
	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/internal/s0_data/throttle"
	"github.com/wonny/ashare-rotation/pkg/logger"
)

// Grid lists the values tried per parameter; an empty axis keeps the base value
type Grid struct {
	Counts        []int     `yaml:"counts" json:"counts"`
	MinPrices     []float64 `yaml:"min_prices" json:"min_prices"`
	MinMarketCaps []float64 `yaml:"min_market_caps" json:"min_market_caps"`
}

// DefaultGrid compares holding counts and price floors
func DefaultGrid() Grid {
	return Grid{
		Counts:    []int{5, 10, 20},
		MinPrices: []float64{2, 5, 10},
	}
}

// Variant is one grid point
type Variant struct {
	Index        int     `json:"index"`
	Count        int     `json:"count"`
	MinPrice     float64 `json:"min_price"`
	MinMarketCap float64 `json:"min_market_cap"`
}

// Label names the variant in logs and strategy ids
func (v Variant) Label() string {
	return fmt.Sprintf("n%d_p%g_c%g", v.Count, v.MinPrice, v.MinMarketCap)
}

// Apply returns base with the variant's parameters
func (v Variant) Apply(base backtest.Config) backtest.Config {
	cfg := base
	cfg.Strategy = base.Strategy + "#" + v.Label()
	cfg.Selection.Count = v.Count
	cfg.Universe.MinPrice = v.MinPrice
	cfg.Universe.MinMarketCap = v.MinMarketCap
	return cfg
}

// Variants expands the grid around base in count, price, cap order
func (g Grid) Variants(base backtest.Config) []Variant {
	counts := g.Counts
	if len(counts) == 0 {
		counts = []int{base.Selection.Count}
	}
	prices := g.MinPrices
	if len(prices) == 0 {
		prices = []float64{base.Universe.MinPrice}
	}
	caps := g.MinMarketCaps
	if len(caps) == 0 {
		caps = []float64{base.Universe.MinMarketCap}
	}

	variants := make([]Variant, 0, len(counts)*len(prices)*len(caps))
	for _, n := range counts {
		for _, p := range prices {
			for _, c := range caps {
				variants = append(variants, Variant{Index: len(variants), Count: n, MinPrice: p, MinMarketCap: c})
			}
		}
	}
	return variants
}

// Outcome is the result of one variant
type Outcome struct {
	Variant
	Strategy string            `json:"strategy"`
	Summary  contracts.Summary `json:"summary"`
	Error    string            `json:"error,omitempty"`
	Result   *backtest.Result  `json:"-"`
}

// Runner executes grids against one shared store
type Runner struct {
	store       contracts.DataStore
	concurrency int
	logger      *logger.Logger
}

// Option configures a Runner
type Option func(*Runner)

// WithConcurrency bounds the number of engines running at once
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithRateLimit paces every store call of every engine through one limiter
func WithRateLimit(rps float64, burst int) Option {
	return func(r *Runner) {
		if rps > 0 {
			r.store = throttle.New(r.store, rps, burst)
		}
	}
}

// NewRunner creates a sweep runner
func NewRunner(store contracts.DataStore, log *logger.Logger, opts ...Option) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	r := &Runner{store: store, concurrency: runtime.NumCPU(), logger: log}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run backtests every variant and returns the outcomes in grid order.
// A variant with an invalid configuration is reported in its outcome; only
// cancellation and store failures abort the sweep.
func (r *Runner) Run(ctx context.Context, base backtest.Config, grid Grid) ([]Outcome, error) {
	variants := grid.Variants(base)
	outcomes := make([]Outcome, len(variants))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, v := range variants {
		v := v
		g.Go(func() error {
			cfg := v.Apply(base)
			outcome := Outcome{Variant: v, Strategy: cfg.Strategy}
			log := r.logger.WithField("variant", v.Label())

			engine, err := backtest.NewEngine(cfg, r.store, log)
			if err != nil {
				if errors.Is(err, contracts.ErrConfiguration) {
					outcome.Error = err.Error()
					outcomes[v.Index] = outcome
					return nil
				}
				return fmt.Errorf("variant %s: %w", v.Label(), err)
			}

			result, err := engine.Run(gctx)
			if err != nil {
				return fmt.Errorf("variant %s: %w", v.Label(), err)
			}
			outcome.Summary = result.Summary
			outcome.Result = result
			outcomes[v.Index] = outcome

			log.WithFields(map[string]interface{}{
				"total_return": result.Summary.TotalReturn,
				"sharpe":       result.Summary.SharpeRatio,
			}).Info("Variant completed")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.logger.WithField("variants", len(outcomes)).Info("Sweep completed")
	return outcomes, nil
}

// Ranked returns the successful outcomes by total return, best first
func Ranked(outcomes []Outcome) []Outcome {
	ranked := make([]Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Error == "" {
			ranked = append(ranked, o)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Summary.TotalReturn > ranked[j].Summary.TotalReturn
	})
	return ranked
}

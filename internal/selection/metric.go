package selection

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/internal/fundamentals"
)

// MetricKind names a ranking metric
type MetricKind string

const (
	MetricPrice     MetricKind = "price"      // 종가
	MetricMarketCap MetricKind = "market_cap" // 시가총액 (cap basis)
	MetricTTMPE     MetricKind = "ttm_pe"     // close / TTM EPS
)

// Direction orders metric values
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// Candidate is one eligible row with its metadata
type Candidate struct {
	Instrument contracts.Instrument
	Row        contracts.MarketRow
}

// MetricFunc computes a candidate's metric and the inputs behind it.
// ok=false drops the candidate from ranking.
type MetricFunc func(c Candidate) (value float64, inputs map[string]float64, ok bool)

// Metric binds a MetricFunc to one selection date.
// Binding may batch-load what the date needs; the []error lists
// candidates that could not be evaluated for data reasons.
type Metric interface {
	Kind() MetricKind
	Bind(ctx context.Context, asOf time.Time, candidates []Candidate) (MetricFunc, []error, error)
}

// PriceMetric ranks by close
type PriceMetric struct{}

func (PriceMetric) Kind() MetricKind { return MetricPrice }

func (PriceMetric) Bind(_ context.Context, _ time.Time, _ []Candidate) (MetricFunc, []error, error) {
	return func(c Candidate) (float64, map[string]float64, bool) {
		if c.Row.Close <= 0 {
			return 0, nil, false
		}
		return c.Row.Close, map[string]float64{"close": c.Row.Close}, true
	}, nil, nil
}

// MarketCapMetric ranks by market capitalization on the configured basis
type MarketCapMetric struct {
	Basis contracts.CapBasis
}

func (MarketCapMetric) Kind() MetricKind { return MetricMarketCap }

func (m MarketCapMetric) Bind(_ context.Context, _ time.Time, _ []Candidate) (MetricFunc, []error, error) {
	return func(c Candidate) (float64, map[string]float64, bool) {
		mcap := c.Row.MarketCap(m.Basis)
		if mcap <= 0 {
			return 0, nil, false
		}
		return mcap, map[string]float64{"close": c.Row.Close, "market_cap": mcap}, true
	}, nil, nil
}

// TTMPEMetric ranks by close over trailing-twelve-month EPS
type TTMPEMetric struct {
	Resolver  *fundamentals.Resolver
	Indicator string
}

func (TTMPEMetric) Kind() MetricKind { return MetricTTMPE }

// Bind loads TTM EPS for every candidate with one store call
func (m TTMPEMetric) Bind(ctx context.Context, asOf time.Time, candidates []Candidate) (MetricFunc, []error, error) {
	codes := make([]string, len(candidates))
	for i, c := range candidates {
		codes[i] = c.Row.Code
	}

	ttm, err := m.Resolver.TTMMetrics(ctx, codes, asOf, m.indicator())
	if err != nil {
		return nil, nil, err
	}

	return func(c Candidate) (float64, map[string]float64, bool) {
		eps, ok := ttm.Values[c.Row.Code]
		if !ok || c.Row.Close <= 0 {
			return 0, nil, false
		}
		pe := c.Row.Close / eps
		return pe, map[string]float64{"close": c.Row.Close, "ttm_eps": eps, "ttm_pe": pe}, true
	}, ttm.MissingErrors(), nil
}

func (m TTMPEMetric) indicator() string {
	if m.Indicator == "" {
		return contracts.IndicatorBasicEPS
	}
	return m.Indicator
}

// NewMetric builds a metric by kind
func NewMetric(kind MetricKind, basis contracts.CapBasis, resolver *fundamentals.Resolver, indicator string) (Metric, error) {
	switch kind {
	case MetricPrice:
		return PriceMetric{}, nil
	case MetricMarketCap:
		if basis != contracts.CapTotal && basis != contracts.CapFloat {
			return nil, &contracts.ConfigurationError{Field: "selection.cap_basis", Message: fmt.Sprintf("unknown basis %q", basis)}
		}
		return MarketCapMetric{Basis: basis}, nil
	case MetricTTMPE:
		if resolver == nil {
			return nil, &contracts.ConfigurationError{Field: "selection.metric", Message: "ttm_pe needs a fundamentals resolver"}
		}
		return TTMPEMetric{Resolver: resolver, Indicator: indicator}, nil
	default:
		return nil, &contracts.ConfigurationError{Field: "selection.metric", Message: fmt.Sprintf("unknown metric %q", kind)}
	}
}

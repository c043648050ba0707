package fundamentals

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/pkg/logger"
)

// WindowTag names the disclosure window a base date falls in
type WindowTag string

const (
	WindowOctDec WindowTag = "oct_dec"
	WindowJulSep WindowTag = "jul_sep"
	WindowAprJun WindowTag = "apr_jun"
	WindowJanMar WindowTag = "jan_mar"
)

// RequiredDisclosurePeriods returns the three periods a TTM figure combines
// as of base: [latest cumulative, prior annual, prior-year same period].
// Only periods whose reports are due by base are ever named.
// ⭐ SSOT: look-ahead 방지 규칙은 여기서만
func RequiredDisclosurePeriods(base time.Time) ([3]contracts.ReportPeriod, WindowTag) {
	y := base.Year()
	period := func(year int, kind contracts.PeriodKind) contracts.ReportPeriod {
		return contracts.ReportPeriod{Year: year, Kind: kind}
	}

	switch m := base.Month(); {
	case m >= time.October:
		return [3]contracts.ReportPeriod{
			period(y, contracts.PeriodQ3),
			period(y-1, contracts.PeriodAnnual),
			period(y-1, contracts.PeriodQ3),
		}, WindowOctDec
	case m >= time.July:
		return [3]contracts.ReportPeriod{
			period(y, contracts.PeriodInterim),
			period(y-1, contracts.PeriodAnnual),
			period(y-1, contracts.PeriodInterim),
		}, WindowJulSep
	case m >= time.April:
		return [3]contracts.ReportPeriod{
			period(y, contracts.PeriodQ1),
			period(y-1, contracts.PeriodAnnual),
			period(y-1, contracts.PeriodQ1),
		}, WindowAprJun
	default:
		return [3]contracts.ReportPeriod{
			period(y-1, contracts.PeriodQ3),
			period(y-2, contracts.PeriodAnnual),
			period(y-2, contracts.PeriodQ3),
		}, WindowJanMar
	}
}

// TTM combines cumulative figures: p0 + (p1 - p2)
func TTM(p0, p1, p2 float64) float64 {
	return p0 + (p1 - p2)
}

// Resolver computes trailing-twelve-month figures from disclosed periods
// ⭐ SSOT: TTM 계산은 여기서만
type Resolver struct {
	store  contracts.FundamentalsStore
	logger *logger.Logger
}

// NewResolver creates a resolver over store
func NewResolver(store contracts.FundamentalsStore, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.Nop()
	}
	return &Resolver{store: store, logger: log}
}

// TTMMetric returns the TTM value of indicator for code as of base.
// A missing period or a non-positive result is (0, false, nil).
func (r *Resolver) TTMMetric(ctx context.Context, code string, base time.Time, indicator string) (float64, bool, error) {
	periods, _ := RequiredDisclosurePeriods(base)

	var values [3]float64
	for i, p := range periods {
		v, ok, err := r.store.Value(ctx, code, p, indicator)
		if err != nil {
			return 0, false, fmt.Errorf("fundamental %s %s: %w", code, p, err)
		}
		if !ok {
			return 0, false, nil
		}
		values[i] = v
	}

	ttm := TTM(values[0], values[1], values[2])
	if ttm <= 0 {
		return 0, false, nil
	}
	return ttm, true, nil
}

// TTMResult is the batch outcome for one base date
type TTMResult struct {
	Base        time.Time
	Window      WindowTag
	Periods     [3]contracts.ReportPeriod
	Values      map[string]float64 // code → TTM, positive only
	Missing     []string           // at least one period absent, sorted
	NonPositive []string           // TTM <= 0, sorted
}

// MissingErrors returns one MissingFundamentalError per missing code
func (r *TTMResult) MissingErrors() []error {
	errs := make([]error, 0, len(r.Missing))
	for _, code := range r.Missing {
		errs = append(errs, &contracts.MissingFundamentalError{
			Code:    code,
			AsOf:    r.Base,
			Periods: r.Periods[:],
		})
	}
	return errs
}

// TTMMetrics resolves every code with one store call
func (r *Resolver) TTMMetrics(ctx context.Context, codes []string, base time.Time, indicator string) (*TTMResult, error) {
	periods, window := RequiredDisclosurePeriods(base)
	result := &TTMResult{
		Base:    contracts.Day(base),
		Window:  window,
		Periods: periods,
		Values:  make(map[string]float64, len(codes)),
	}
	if len(codes) == 0 {
		return result, nil
	}

	raw, err := r.store.Values(ctx, codes, periods[:], indicator)
	if err != nil {
		return nil, fmt.Errorf("fundamentals %s: %w", window, err)
	}

	for _, code := range codes {
		byPeriod := raw[code]
		p0, ok0 := byPeriod[periods[0].String()]
		p1, ok1 := byPeriod[periods[1].String()]
		p2, ok2 := byPeriod[periods[2].String()]
		if !ok0 || !ok1 || !ok2 {
			result.Missing = append(result.Missing, code)
			continue
		}
		ttm := TTM(p0, p1, p2)
		if ttm <= 0 {
			result.NonPositive = append(result.NonPositive, code)
			continue
		}
		result.Values[code] = ttm
	}
	sort.Strings(result.Missing)
	sort.Strings(result.NonPositive)

	r.logger.WithFields(map[string]interface{}{
		"base":         result.Base.Format(contracts.DateLayout),
		"window":       window,
		"resolved":     len(result.Values),
		"missing":      len(result.Missing),
		"non_positive": len(result.NonPositive),
	}).Debug("TTM resolved")

	return result, nil
}

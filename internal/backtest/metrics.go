package backtest

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/ashare-rotation/internal/contracts"
)

// periodsPerYear is the rebalancing frequency used for annualizing volatility
const periodsPerYear = 12.0

// ComputeSummary derives the named performance statistics of a result
func ComputeSummary(result *Result) contracts.Summary {
	s := contracts.Summary{FinalNAV: 1.0}
	if result == nil {
		return s
	}

	s.Periods = len(result.Periods)
	s.FinalNAV = result.FinalNAV()
	s.FinalValue = s.FinalNAV * result.Config.InitialCapital
	s.TotalReturn = s.FinalNAV - 1

	returns := RealizedReturns(result)
	s.RealizedPeriods = len(returns)

	days := contracts.Day(result.Config.EndDate).Sub(contracts.Day(result.Config.StartDate)).Hours() / 24
	s.AnnualizedReturn = annualize(s.FinalNAV, days)

	if len(returns) > 0 {
		wins := 0
		s.BestPeriod, s.WorstPeriod = returns[0], returns[0]
		for _, r := range returns {
			if r > 0 {
				wins++
			}
			s.BestPeriod = math.Max(s.BestPeriod, r)
			s.WorstPeriod = math.Min(s.WorstPeriod, r)
		}
		s.WinRate = float64(wins) / float64(len(returns))
	}

	if len(returns) > 1 {
		s.Volatility = stat.StdDev(returns, nil) * math.Sqrt(periodsPerYear)
	}
	if s.Volatility > 0 {
		s.SharpeRatio = (s.AnnualizedReturn - result.Config.RiskFreeRate) / s.Volatility
	}
	if dd := DownsideDeviation(returns); dd > 0 {
		s.SortinoRatio = (s.AnnualizedReturn - result.Config.RiskFreeRate) / dd
	}

	s.MaxDrawdown = MaxDrawdown(result.NAV)

	for _, p := range result.Periods {
		if p.Degraded {
			s.DegradedPeriods++
		}
	}
	for _, d := range result.Degradations {
		switch d.Kind {
		case contracts.DegradeMissingFundamental:
			s.MissingFundamentals++
		case contracts.DegradeMissingPrice:
			s.MissingPrices++
		}
	}

	return s
}

// RealizedReturns lists the net return of every realized period, liquidation included
func RealizedReturns(result *Result) []float64 {
	returns := make([]float64, 0, len(result.Periods)+1)
	for _, p := range result.Periods {
		if p.Realized {
			returns = append(returns, p.RealizedReturn)
		}
	}
	if result.Liquidation != nil {
		returns = append(returns, result.Liquidation.RealizedReturn)
	}
	return returns
}

// DownsideDeviation is the annualized root mean square of negative period returns
func DownsideDeviation(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	squares := make([]float64, len(returns))
	for i, r := range returns {
		if r < 0 {
			squares[i] = r * r
		}
	}
	return math.Sqrt(stat.Mean(squares, nil)) * math.Sqrt(periodsPerYear)
}

// MaxDrawdown returns the largest peak-to-trough decline of the NAV series
func MaxDrawdown(nav []contracts.NAVPoint) float64 {
	if len(nav) == 0 {
		return 0
	}

	maxDrawdown := 0.0
	peak := nav[0].NAV
	for _, point := range nav {
		if point.NAV > peak {
			peak = point.NAV
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - point.NAV) / peak; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	return maxDrawdown
}

func annualize(finalNAV, days float64) float64 {
	if days <= 0 {
		return 0
	}
	if finalNAV <= 0 {
		return -1
	}
	return math.Pow(finalNAV, 365.25/days) - 1
}

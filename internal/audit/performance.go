package audit

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/wonny/ashare-rotation/internal/backtest"
	"github.com/wonny/ashare-rotation/pkg/logger"
)

// Analyzer breaks a stored run down by calendar month and year
// ⭐ SSOT: 저장된 실행의 기간별 성과 분석은 여기서만
type Analyzer struct {
	store  RunStore
	logger *logger.Logger
}

// NewAnalyzer creates a new performance analyzer
func NewAnalyzer(store RunStore, log *logger.Logger) *Analyzer {
	if log == nil {
		log = logger.Nop()
	}
	return &Analyzer{store: store, logger: log}
}

// CalendarReturn is the NAV change over one calendar bucket
type CalendarReturn struct {
	Label  string  `json:"label"` // "2024" or "2024-02"
	Return float64 `json:"return"`
}

// PerformanceReport represents the breakdown of one run
type PerformanceReport struct {
	RunID    uuid.UUID `json:"run_id"`
	Strategy string    `json:"strategy"`

	Monthly []CalendarReturn `json:"monthly"`
	Yearly  []CalendarReturn `json:"yearly"`

	// 실현 기간 기준
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	ProfitFactor float64 `json:"profit_factor"`
}

// Analyze loads the run and computes its breakdown
func (a *Analyzer) Analyze(ctx context.Context, id uuid.UUID) (*PerformanceReport, error) {
	run, err := a.store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(run.NAV) == 0 {
		return nil, fmt.Errorf("run %s has no NAV series", id)
	}

	report := AnalyzeRun(run)

	a.logger.WithFields(map[string]interface{}{
		"run_id":        id.String(),
		"months":        len(report.Monthly),
		"years":         len(report.Yearly),
		"profit_factor": report.ProfitFactor,
	}).Info("Performance analysis completed")

	return report, nil
}

// AnalyzeRun computes the breakdown of a loaded run
func AnalyzeRun(run *Run) *PerformanceReport {
	report := &PerformanceReport{
		RunID:    run.ID,
		Strategy: run.Strategy,
		Monthly:  bucketReturns(run, "2006-01"),
		Yearly:   bucketReturns(run, "2006"),
	}

	returns := backtest.RealizedReturns(&backtest.Result{Periods: run.Periods, Liquidation: run.Liquidation})
	report.AvgWin, report.AvgLoss = avgWinLoss(returns)
	report.ProfitFactor = profitFactor(returns)
	return report
}

// bucketReturns chains the last NAV of each bucket to the last NAV of the previous one
func bucketReturns(run *Run, layout string) []CalendarReturn {
	out := make([]CalendarReturn, 0)
	if len(run.NAV) == 0 {
		return out
	}

	base := run.NAV[0].NAV
	label := run.NAV[0].Date.Format(layout)
	last := base
	for _, p := range run.NAV[1:] {
		l := p.Date.Format(layout)
		if l != label {
			out = append(out, CalendarReturn{Label: label, Return: change(base, last)})
			base, label = last, l
		}
		last = p.NAV
	}
	return append(out, CalendarReturn{Label: label, Return: change(base, last)})
}

func change(from, to float64) float64 {
	if from <= 0 {
		return 0
	}
	return to/from - 1
}

func avgWinLoss(returns []float64) (float64, float64) {
	var sumWin, sumLoss float64
	var countWin, countLoss int
	for _, r := range returns {
		if r > 0 {
			sumWin += r
			countWin++
		} else if r < 0 {
			sumLoss += r
			countLoss++
		}
	}

	avgWin, avgLoss := 0.0, 0.0
	if countWin > 0 {
		avgWin = sumWin / float64(countWin)
	}
	if countLoss > 0 {
		avgLoss = sumLoss / float64(countLoss)
	}
	return avgWin, avgLoss
}

func profitFactor(returns []float64) float64 {
	var totalWin, totalLoss float64
	for _, r := range returns {
		if r > 0 {
			totalWin += r
		} else if r < 0 {
			totalLoss += math.Abs(r)
		}
	}
	if totalLoss == 0 {
		return 0
	}
	return totalWin / totalLoss
}

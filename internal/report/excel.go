package report

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/wonny/ashare-rotation/internal/contracts"
)

// Sheet names of the workbook
const (
	SheetOverview    = "Overview"
	SheetPerformance = "Performance"
	SheetSelections  = "Selections"
	SheetPositions   = "Positions"
	SheetNAV         = "NAV"
)

// WriteExcel writes the five-sheet workbook
func WriteExcel(path string, doc *Document) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetOverview); err != nil {
		return err
	}
	for _, name := range []string{SheetPerformance, SheetSelections, SheetPositions, SheetNAV} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}

	writers := []func(*excelize.File, *Document) error{
		writeOverview,
		writePerformance,
		writeSelections,
		writePositions,
		writeNAV,
	}
	for _, w := range writers {
		if err := w(f, doc); err != nil {
			return err
		}
	}

	return f.SaveAs(path)
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func writeOverview(f *excelize.File, doc *Document) error {
	p, s := doc.Parameters, doc.Summary
	universe := "全市场"
	if len(p.Prefixes) > 0 {
		universe = strings.Join(p.Prefixes, ",")
	}
	rows := [][]interface{}{
		{"=== 策略基本信息 ==="},
		{"策略名称", doc.Strategy},
		{"回测期间", fmt.Sprintf("%s 至 %s", p.StartDate, p.EndDate)},
		{"调仓频率", "月度调仓"},
		{"初始资金", p.InitialCapital},
		{},
		{"=== 关键参数 ==="},
		{"选股指标", p.Metric},
		{"排序方向", p.Direction},
		{"选股数量", p.Count},
		{"股票池范围", universe},
		{"最低价格", p.MinPrice},
		{"最低市值", p.MinMarketCap},
		{"市值口径", p.CapBasis},
		{"排除ST", p.ExcludeRiskFlag},
		{"手续费率", p.TransactionCost},
		{"每手股数", p.LotSize},
		{},
		{"=== 业绩指标 ==="},
		{"总收益率", percent(s.TotalReturn)},
		{"最终净值", fmt.Sprintf("%.4f", s.FinalNAV)},
		{"年化收益率", percent(s.AnnualizedReturn)},
		{"最大回撤", percent(s.MaxDrawdown)},
		{"调仓次数", s.Periods},
		{"降级期数", s.DegradedPeriods},
	}
	return writeRows(f, SheetOverview, rows)
}

func writePerformance(f *excelize.File, doc *Document) error {
	s := doc.Summary
	rows := [][]interface{}{
		{"metric", "value"},
		{"periods", s.Periods},
		{"realized_periods", s.RealizedPeriods},
		{"total_return", s.TotalReturn},
		{"annualized_return", s.AnnualizedReturn},
		{"volatility", s.Volatility},
		{"sharpe_ratio", s.SharpeRatio},
		{"sortino_ratio", s.SortinoRatio},
		{"max_drawdown", s.MaxDrawdown},
		{"win_rate", s.WinRate},
		{"best_period", s.BestPeriod},
		{"worst_period", s.WorstPeriod},
		{"final_nav", s.FinalNAV},
		{"final_value", s.FinalValue},
		{"degraded_periods", s.DegradedPeriods},
		{"missing_fundamentals", s.MissingFundamentals},
		{"missing_prices", s.MissingPrices},
	}
	return writeRows(f, SheetPerformance, rows)
}

func writeSelections(f *excelize.File, doc *Document) error {
	rows := [][]interface{}{{"期数", "选股日期", "排名", "股票代码", "股票名称", "指标", "指标值", "收盘价"}}
	for _, p := range doc.Periods {
		if p.Selection == nil {
			continue
		}
		for _, s := range p.Selection.Stocks {
			rows = append(rows, []interface{}{
				p.PeriodIndex + 1,
				p.SelectionDate.Format(contracts.DateLayout),
				s.Rank,
				s.Code,
				s.Name,
				p.Selection.Metric,
				s.MetricValue,
				s.Inputs["close"],
			})
		}
	}
	return writeRows(f, SheetSelections, rows)
}

func writePositions(f *excelize.File, doc *Document) error {
	rows := [][]interface{}{{"期数", "选股日期", "调仓日期", "股票代码", "股票名称", "股数", "买入价", "投入资金", "期间收益", "期末净值"}}
	for _, p := range doc.Periods {
		trade := ""
		if p.TradeDate != nil {
			trade = p.TradeDate.Format(contracts.DateLayout)
		}
		for _, h := range p.Instruments {
			rows = append(rows, []interface{}{
				p.PeriodIndex + 1,
				p.SelectionDate.Format(contracts.DateLayout),
				trade,
				h.Code,
				h.Name,
				h.Shares,
				h.EntryPrice,
				h.InvestedCapital,
				p.RealizedReturn,
				p.NAVAfter,
			})
		}
	}
	return writeRows(f, SheetPositions, rows)
}

func writeNAV(f *excelize.File, doc *Document) error {
	rows := [][]interface{}{{"date", "nav"}}
	for _, p := range doc.NAV {
		rows = append(rows, []interface{}{p.Date.Format(contracts.DateLayout), p.NAV})
	}
	return writeRows(f, SheetNAV, rows)
}

func percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

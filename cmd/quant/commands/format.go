package commands

import (
	"fmt"
	"strings"

	"github.com/wonny/ashare-rotation/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

// PrintHeader prints a titled block
func PrintHeader(title string) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", title)
	PrintSeparator()
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Printf("⚠️  %s\n", message)
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Println(strings.Repeat("─", totalWidth))
}

// PrintTableRow prints a table row
func PrintTableRow(values []string, widths []int) {
	for i, val := range values {
		fmt.Printf("%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

func pct(v float64) string {
	return fmt.Sprintf("%+.2f%%", v*100)
}

// PrintSummary prints the named summary metrics
func PrintSummary(s contracts.Summary) {
	PrintKeyValue("Periods", fmt.Sprintf("%d (realized %d, degraded %d)", s.Periods, s.RealizedPeriods, s.DegradedPeriods), 18)
	PrintKeyValue("Total Return", pct(s.TotalReturn), 18)
	PrintKeyValue("Annualized Return", pct(s.AnnualizedReturn), 18)
	PrintKeyValue("Volatility", fmt.Sprintf("%.2f%%", s.Volatility*100), 18)
	PrintKeyValue("Sharpe Ratio", fmt.Sprintf("%.2f", s.SharpeRatio), 18)
	PrintKeyValue("Sortino Ratio", fmt.Sprintf("%.2f", s.SortinoRatio), 18)
	PrintKeyValue("Max Drawdown", fmt.Sprintf("%.2f%%", s.MaxDrawdown*100), 18)
	PrintKeyValue("Win Rate", fmt.Sprintf("%.1f%%", s.WinRate*100), 18)
	PrintKeyValue("Best / Worst", pct(s.BestPeriod)+" / "+pct(s.WorstPeriod), 18)
	PrintKeyValue("Final NAV", fmt.Sprintf("%.4f", s.FinalNAV), 18)
	PrintKeyValue("Final Value", fmt.Sprintf("%.2f", s.FinalValue), 18)
	if s.MissingFundamentals > 0 || s.MissingPrices > 0 {
		PrintKeyValue("Missing data", fmt.Sprintf("fundamentals %d, prices %d", s.MissingFundamentals, s.MissingPrices), 18)
	}
}

// PrintSelection prints a ranked selection as a table
func PrintSelection(record *contracts.SelectionRecord) {
	widths := []int{4, 8, 12, 14, 10}
	PrintTableHeader([]string{"#", "Code", "Name", record.Metric, "Close"}, widths)
	for _, s := range record.Stocks {
		PrintTableRow([]string{
			fmt.Sprintf("%d", s.Rank),
			s.Code,
			s.Name,
			fmt.Sprintf("%.4f", s.MetricValue),
			fmt.Sprintf("%.2f", s.Inputs["close"]),
		}, widths)
	}
}

package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wonny/ashare-rotation/internal/strategyconfig"
	"github.com/wonny/ashare-rotation/internal/sweep"
)

var (
	backtestSweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "파라미터 그리드 비교",
		Long: `선정 종목 수 / 최저가 / 최저 시가총액 조합을 병렬로 실행하고 총수익률 순으로 비교합니다.
각 조합은 독립된 엔진으로 실행되며 저장소 조회는 --rps로 제한할 수 있습니다.

Example:
  go run ./cmd/quant backtest sweep --preset low_price --source demo
  go run ./cmd/quant backtest sweep --preset small_cap --counts 5,10,20 --min-prices 5,10
  go run ./cmd/quant backtest sweep --preset low_ttm_pe --grid configs/grids/pe.yaml --workers 8`,
		RunE: runSweep,
	}

	sweepFlags     strategyFlags
	sweepGridFile  string
	sweepCounts    []int
	sweepMinPrices []float64
	sweepMinCaps   []float64
	sweepWorkers   int
	sweepRPS       float64
)

func init() {
	backtestCmd.AddCommand(backtestSweepCmd)

	sweepFlags.register(backtestSweepCmd, strategyconfig.PresetLowPrice)
	backtestSweepCmd.Flags().StringVar(&sweepGridFile, "grid", "", "grid YAML (counts, min_prices, min_market_caps)")
	backtestSweepCmd.Flags().IntSliceVar(&sweepCounts, "counts", nil, "선정 종목 수 후보")
	backtestSweepCmd.Flags().Float64SliceVar(&sweepMinPrices, "min-prices", nil, "최저가 후보")
	backtestSweepCmd.Flags().Float64SliceVar(&sweepMinCaps, "min-caps", nil, "최저 시가총액 후보")
	backtestSweepCmd.Flags().IntVar(&sweepWorkers, "workers", 0, "동시 실행 수 (기본: SWEEP_WORKERS)")
	backtestSweepCmd.Flags().Float64Var(&sweepRPS, "rps", 0, "저장소 조회 초당 한도 (0 = 무제한)")
}

// sweepGrid merges the grid file and the axis flags; flags win per axis
func sweepGrid() (sweep.Grid, error) {
	grid := sweep.DefaultGrid()
	if sweepGridFile != "" {
		data, err := os.ReadFile(sweepGridFile)
		if err != nil {
			return grid, fmt.Errorf("read grid: %w", err)
		}
		grid = sweep.Grid{}
		if err := yaml.Unmarshal(data, &grid); err != nil {
			return grid, fmt.Errorf("decode grid: %w", err)
		}
	}
	if len(sweepCounts) > 0 {
		grid.Counts = sweepCounts
	}
	if len(sweepMinPrices) > 0 {
		grid.MinPrices = sweepMinPrices
	}
	if len(sweepMinCaps) > 0 {
		grid.MinMarketCaps = sweepMinCaps
	}
	return grid, nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, _, err := sweepFlags.resolve(cmd)
	if err != nil {
		return err
	}
	base, err := strategyconfig.ToBacktest(cfg)
	if err != nil {
		return err
	}
	grid, err := sweepGrid()
	if err != nil {
		return err
	}

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	workers := sweepWorkers
	if workers <= 0 {
		workers = rt.cfg.SweepWorkers
	}
	opts := []sweep.Option{sweep.WithConcurrency(workers)}
	if sweepRPS > 0 {
		opts = append(opts, sweep.WithRateLimit(sweepRPS, rt.cfg.StoreBurst))
	}

	variants := grid.Variants(base)
	PrintHeader(fmt.Sprintf("Sweep %s: %d variants, %d workers", base.Strategy, len(variants), workers))

	outcomes, err := sweep.NewRunner(rt.store, rt.log, opts...).Run(ctx, base, grid)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	widths := []int{22, 10, 10, 10, 8, 8}
	PrintTableHeader([]string{"Variant", "Total", "Annual", "MaxDD", "Sharpe", "NAV"}, widths)
	for _, o := range sweep.Ranked(outcomes) {
		s := o.Summary
		PrintTableRow([]string{
			o.Label(),
			pct(s.TotalReturn),
			pct(s.AnnualizedReturn),
			fmt.Sprintf("%.2f%%", s.MaxDrawdown*100),
			fmt.Sprintf("%.2f", s.SharpeRatio),
			fmt.Sprintf("%.4f", s.FinalNAV),
		}, widths)
	}
	for _, o := range outcomes {
		if o.Error != "" {
			PrintWarning(fmt.Sprintf("%s: %s", o.Label(), o.Error))
		}
	}
	return nil
}

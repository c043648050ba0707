package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/wonny/ashare-rotation/internal/audit"
	"github.com/wonny/ashare-rotation/internal/backtest"
	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/internal/report"
	"github.com/wonny/ashare-rotation/internal/strategyconfig"
	"github.com/wonny/ashare-rotation/pkg/config"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "월간 로테이션 백테스트",
	Long: `월말 선정 → 익월 첫 거래일 시가 매수 → 다음 월말 종가 평가를 반복합니다.

Subcommands:
  run     - 프리셋 또는 YAML 전략 실행
  demo    - 합성 시장 데이터로 실행 (DB 불필요)
  sweep   - 파라미터 그리드 비교`,
}

// strategyFlags are shared by run, demo, sweep and select
type strategyFlags struct {
	preset    string
	file      string
	overrides strategyconfig.Overrides
	minPrice  float64
	minCap    float64
	cost      float64
}

func (f *strategyFlags) register(cmd *cobra.Command, defaultPreset string) {
	cmd.Flags().StringVar(&f.preset, "preset", defaultPreset, "built-in strategy (small_cap|low_price|low_ttm_pe)")
	cmd.Flags().StringVar(&f.file, "strategy", "", "strategy YAML file (preset보다 우선)")
	cmd.Flags().StringVar(&f.overrides.StartDate, "start", "", "시작 날짜 (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.overrides.EndDate, "end", "", "종료 날짜 (YYYY-MM-DD)")
	cmd.Flags().IntVar(&f.overrides.Count, "count", 0, "선정 종목 수")
	cmd.Flags().Float64Var(&f.minPrice, "min-price", 0, "최저 종가")
	cmd.Flags().Float64Var(&f.minCap, "min-cap", 0, "최저 시가총액")
	cmd.Flags().Float64Var(&f.overrides.InitialCapital, "capital", 0, "초기 자본")
	cmd.Flags().Float64Var(&f.cost, "cost", 0, "기간당 거래비용 (수익률에서 차감)")
}

// resolve loads the strategy and applies the flags that were set
func (f *strategyFlags) resolve(cmd *cobra.Command) (*strategyconfig.Config, []byte, error) {
	cfg, data, err := strategyconfig.Resolve(f.preset, f.file)
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Changed("min-price") {
		f.overrides.MinPrice = &f.minPrice
	}
	if cmd.Flags().Changed("min-cap") {
		f.overrides.MinMarketCap = &f.minCap
	}
	if cmd.Flags().Changed("cost") {
		f.overrides.TransactionCost = &f.cost
	}
	if err := f.overrides.Apply(cfg); err != nil {
		return nil, nil, err
	}
	for _, w := range strategyconfig.Warn(cfg) {
		PrintWarning(fmt.Sprintf("%s: %s", w.Code, w.Message))
	}
	return cfg, data, nil
}

var (
	backtestRunCmd = &cobra.Command{
		Use:   "run",
		Short: "백테스트 실행",
		Long: `프리셋 또는 YAML 전략으로 백테스트를 실행합니다.
데이터 소스는 DATA_SOURCE (postgres|sqlite|demo) 또는 --source로 지정합니다.

Example:
  go run ./cmd/quant backtest run --preset small_cap
  go run ./cmd/quant backtest run --preset low_ttm_pe --start 2023-01-01 --end 2024-06-30 --report
  go run ./cmd/quant backtest run --strategy configs/strategies/low_price.yaml --count 30 --persist`,
		RunE: runBacktest,
	}

	backtestDemoCmd = &cobra.Command{
		Use:   "demo",
		Short: "합성 시장으로 백테스트 실행",
		Long: `메모리에 생성한 합성 시장(2023-2024, 120종목)으로 실행합니다.

Example:
  go run ./cmd/quant backtest demo
  go run ./cmd/quant backtest demo --preset low_ttm_pe --report`,
		RunE: runBacktestDemo,
	}

	runFlags    strategyFlags
	demoFlags   strategyFlags
	writeReport bool
	persistRun  bool
	printJSON   bool
	demoReport  bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.AddCommand(backtestRunCmd)
	backtestCmd.AddCommand(backtestDemoCmd)

	runFlags.register(backtestRunCmd, "")
	backtestRunCmd.Flags().BoolVar(&writeReport, "report", false, "REPORT_DIR에 xlsx/html/parquet/json 리포트 작성")
	backtestRunCmd.Flags().BoolVar(&persistRun, "persist", false, "결과를 Postgres(backtest.*)에 저장")
	backtestRunCmd.Flags().BoolVar(&printJSON, "json", false, "요약을 JSON으로 출력")

	demoFlags.register(backtestDemoCmd, strategyconfig.PresetSmallCap)
	backtestDemoCmd.Flags().BoolVar(&demoReport, "report", false, "REPORT_DIR에 리포트 작성")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	return executeBacktest(cmd, &runFlags, backtestOutput{report: writeReport, persist: persistRun, json: printJSON})
}

func runBacktestDemo(cmd *cobra.Command, args []string) error {
	dataSource = config.SourceDemo
	return executeBacktest(cmd, &demoFlags, backtestOutput{report: demoReport})
}

type backtestOutput struct {
	report  bool
	persist bool
	json    bool
}

func executeBacktest(cmd *cobra.Command, flags *strategyFlags, out backtestOutput) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, yamlData, err := flags.resolve(cmd)
	if err != nil {
		return err
	}
	hash, err := strategyconfig.Hash(cfg)
	if err != nil {
		return err
	}
	btCfg, err := strategyconfig.ToBacktest(cfg)
	if err != nil {
		return err
	}

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	run := audit.NewRun(btCfg, hash, time.Now())
	log := rt.log.WithRun(run.ID.String(), btCfg.Strategy)

	if !out.json {
		PrintHeader(fmt.Sprintf("%s  (%s ~ %s)", btCfg.Strategy,
			btCfg.StartDate.Format(contracts.DateLayout), btCfg.EndDate.Format(contracts.DateLayout)))
		PrintKeyValue("Run ID", run.ID.String(), 12)
		PrintKeyValue("Config Hash", hash[:12], 12)
		PrintKeyValue("Source", rt.cfg.DataSource, 12)
		PrintSeparator()
	}

	engine, err := backtest.NewEngine(btCfg, rt.store, log, backtest.WithObserver(func(rec contracts.PeriodRecord) {
		if !out.json {
			printPeriod(rec)
		}
	}))
	if err != nil {
		return err
	}

	result, runErr := engine.Run(ctx)
	if result == nil {
		return fmt.Errorf("backtest failed: %w", runErr)
	}
	run.Finish(result, runErr, time.Now())

	// 중단된 경우에도 부분 결과는 출력/저장
	saveCtx := context.WithoutCancel(ctx)

	if out.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(run.Info()); err != nil {
			return err
		}
	} else {
		PrintSeparator()
		PrintSummary(result.Summary)
		if result.Aborted {
			PrintWarning("backtest interrupted, summary covers completed periods only")
		}
	}

	if out.report {
		art, err := report.New(rt.cfg.ReportDir, log).Write(saveCtx, run.ID.String(), result)
		if err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		if err := writeDecisionSnapshot(art.Dir, cfg, yamlData, rt.cfg.DataSource); err != nil {
			return err
		}
		PrintSuccess("Report written to " + art.Dir)
	}

	if out.persist {
		db, err := rt.database(saveCtx)
		if err != nil {
			return err
		}
		if err := audit.NewRepository(db.Pool).SaveRun(saveCtx, run); err != nil {
			return fmt.Errorf("persist run: %w", err)
		}
		PrintSuccess("Run stored as " + run.ID.String())
	}

	return runErr
}

func printPeriod(rec contracts.PeriodRecord) {
	status := "OK"
	if rec.Degraded {
		status = "DEGRADED: " + rec.DegradeReason
	}
	fmt.Printf("[%02d] %s  held %-3d  ret %8s  nav %.4f  %s\n",
		rec.PeriodIndex+1,
		rec.SelectionDate.Format(contracts.DateLayout),
		len(rec.Instruments),
		pct(rec.RealizedReturn),
		rec.NAVAfter,
		status)
}

// writeDecisionSnapshot stores the exact strategy text next to the report
func writeDecisionSnapshot(dir string, cfg *strategyconfig.Config, yamlData []byte, source string) error {
	snapshot, err := strategyconfig.NewDecisionSnapshot(cfg, yamlData, source)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "decision_snapshot.json"), data, 0o644)
}

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/ashare-rotation/internal/backtest"
	"github.com/wonny/ashare-rotation/internal/calendar"
	"github.com/wonny/ashare-rotation/internal/s0_data/quality"
	"github.com/wonny/ashare-rotation/internal/s1_universe"
	"github.com/wonny/ashare-rotation/internal/scheduler"
	"github.com/wonny/ashare-rotation/internal/scheduler/jobs"
	"github.com/wonny/ashare-rotation/internal/selection"
	"github.com/wonny/ashare-rotation/internal/strategyconfig"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `월말 선정 작업을 스케줄합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록될 작업 목록
  run     - 특정 작업 즉시 실행

Example:
  go run ./cmd/quant scheduler start --presets small_cap,low_ttm_pe
  go run ./cmd/quant scheduler run month_end_selection:small_cap`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- month_end_selection:<preset>: 평일 17:30 (월말 마지막 거래일이면 선정 저장, 놓친 월말 보충)
- data_quality: 평일 17:00 (커버리지 점검 저장)

스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록될 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	schedulerPresets       []string
	schedulerSelectionCron string
	schedulerQualityCron   string
	schedulerNoUniverse    bool
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)

	schedulerCmd.PersistentFlags().StringSliceVar(&schedulerPresets, "presets", []string{strategyconfig.PresetSmallCap}, "선정을 기록할 프리셋 (STRATEGY_DIR/<name>.yaml 우선)")
	schedulerCmd.PersistentFlags().StringVar(&schedulerSelectionCron, "selection-cron", jobs.DefaultMonthEndSchedule, "월말 선정 cron (초 포함)")
	schedulerCmd.PersistentFlags().StringVar(&schedulerQualityCron, "quality-cron", "0 0 17 * * 1-5", "품질 점검 cron (초 포함)")
	schedulerCmd.PersistentFlags().BoolVar(&schedulerNoUniverse, "no-universe", false, "universe_snapshots 저장 생략")
}

// initScheduler registers one selection job per preset plus the quality job
func initScheduler(ctx context.Context) (*scheduler.Scheduler, *runtime, error) {
	rt, err := setup(ctx)
	if err != nil {
		return nil, nil, err
	}
	db, err := rt.database(ctx)
	if err != nil {
		rt.Close()
		return nil, nil, err
	}

	selections := selection.NewRepository(db.Pool)
	universes := s1_universe.NewRepository(db.Pool)

	var sched *scheduler.Scheduler
	for _, name := range schedulerPresets {
		cfg, _, err := strategyconfig.Lookup(rt.cfg.StrategyDir, name)
		if err != nil {
			rt.Close()
			return nil, nil, err
		}
		btCfg, err := strategyconfig.ToBacktest(cfg)
		if err != nil {
			rt.Close()
			return nil, nil, err
		}
		if sched == nil {
			sched = scheduler.New(rt.log, scheduler.WithLocation(cfg.Meta.Location()))
		}

		cal, err := calendar.New(rt.store, btCfg.Calendar, rt.log)
		if err != nil {
			rt.Close()
			return nil, nil, err
		}
		engine, err := backtest.NewEngine(btCfg, rt.store, rt.log, backtest.WithCalendar(cal))
		if err != nil {
			rt.Close()
			return nil, nil, err
		}

		opts := []jobs.MonthEndOption{jobs.WithSchedule(schedulerSelectionCron)}
		if !schedulerNoUniverse {
			opts = append(opts, jobs.WithUniverseStore(universes))
		}
		job := jobs.NewMonthEndSelectionJob(btCfg.Strategy, engine, cal, selections, rt.log, opts...)
		if err := sched.AddJob(job); err != nil {
			rt.Close()
			return nil, nil, err
		}
	}
	if sched == nil {
		sched = scheduler.New(rt.log)
	}

	gate := quality.NewQualityGate(rt.store, quality.DefaultConfig(calendar.DefaultConfig().Benchmarks))
	if err := sched.AddJob(jobs.NewQualityCheckJob(gate, quality.NewRepository(db.Pool), schedulerQualityCron, rt.log)); err != nil {
		rt.Close()
		return nil, nil, err
	}
	return sched, rt, nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched, rt, err := initScheduler(ctx)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer rt.Close()

	sched.Start()
	PrintSuccess("Scheduler started")
	printJobStats(sched)
	fmt.Println("\nPress Ctrl+C to stop")

	<-ctx.Done()

	sched.Stop()
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	sched, rt, err := initScheduler(cmd.Context())
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer rt.Close()

	printJobStats(sched)
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	sched, rt, err := initScheduler(cmd.Context())
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer rt.Close()

	result, err := sched.RunJob(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("job %s failed after %d attempts: %s", result.JobName, result.Attempts, result.Error)
	}
	PrintSuccess(fmt.Sprintf("%s completed in %s", result.JobName, result.Duration.Round(time.Millisecond)))
	return nil
}

func printJobStats(sched *scheduler.Scheduler) {
	widths := []int{34, 18, 20}
	PrintTableHeader([]string{"Job", "Schedule", "Next run"}, widths)
	for _, st := range sched.Stats() {
		next := "-"
		if st.NextRun != nil {
			next = st.NextRun.Format("2006-01-02 15:04")
		}
		PrintTableRow([]string{st.JobName, st.Schedule, next}, widths)
	}
}

package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/ashare-rotation/internal/backtest"
	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/internal/s1_universe"
	"github.com/wonny/ashare-rotation/internal/selection"
	"github.com/wonny/ashare-rotation/internal/strategyconfig"
)

var (
	selectCmd = &cobra.Command{
		Use:   "select",
		Short: "특정 날짜의 종목 선정",
		Long: `전략의 선정 파이프라인(스냅샷 → 필터 → 지표 → 정렬)을 한 날짜에 실행합니다.
결과는 다음 달 보유 후보 목록이며 주문이 아닙니다.

Example:
  go run ./cmd/quant select --preset small_cap
  go run ./cmd/quant select --preset low_ttm_pe --date 2024-05-31 --persist`,
		RunE: runSelect,
	}

	selectFlags   strategyFlags
	selectDate    string
	selectPersist bool
)

func init() {
	rootCmd.AddCommand(selectCmd)

	selectFlags.register(selectCmd, strategyconfig.PresetSmallCap)
	selectCmd.Flags().StringVar(&selectDate, "date", "", "선정 기준일 (YYYY-MM-DD, 기본: 오늘)")
	selectCmd.Flags().BoolVar(&selectPersist, "persist", false, "backtest.selections / universe_snapshots에 저장")
}

func runSelect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	date := contracts.Day(time.Now())
	if selectDate != "" {
		parsed, err := time.Parse(contracts.DateLayout, selectDate)
		if err != nil {
			return fmt.Errorf("invalid date: %w", err)
		}
		date = parsed
	}

	cfg, _, err := selectFlags.resolve(cmd)
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

	engine, err := backtest.NewEngine(btCfg, rt.store, rt.log)
	if err != nil {
		return err
	}
	decision, err := engine.Decide(ctx, date)
	if err != nil {
		return err
	}

	PrintHeader(fmt.Sprintf("%s selection as of %s", btCfg.Strategy, date.Format(contracts.DateLayout)))
	if decision.GapReason != "" {
		PrintWarning("no selection: " + decision.GapReason)
		return nil
	}

	PrintKeyValue("Trading day", decision.TradingDay.Format(contracts.DateLayout), 12)
	if decision.TradeDate != nil {
		PrintKeyValue("Trade date", decision.TradeDate.Format(contracts.DateLayout), 12)
	}
	PrintKeyValue("Eligible", fmt.Sprintf("%d / %d", decision.Universe.Count(), decision.Universe.TotalCount), 12)
	if verbose {
		counts := decision.Universe.ExclusionCounts()
		reasons := make([]string, 0, len(counts))
		for reason := range counts {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			PrintKeyValue("  "+reason, fmt.Sprintf("%d", counts[reason]), 12)
		}
	}
	PrintSeparator()
	PrintSelection(decision.Selection)
	for _, d := range decision.Degradations {
		PrintWarning(fmt.Sprintf("%s %s: %s", d.Kind, d.Code, d.Reason))
	}

	if selectPersist {
		db, err := rt.database(ctx)
		if err != nil {
			return err
		}
		if err := s1_universe.NewRepository(db.Pool).SaveUniverse(ctx, btCfg.Strategy, decision.Universe); err != nil {
			return err
		}
		if err := selection.NewRepository(db.Pool).SaveSelection(ctx, btCfg.Strategy, decision.Selection); err != nil {
			return err
		}
		PrintSuccess("Selection stored")
	}
	return nil
}

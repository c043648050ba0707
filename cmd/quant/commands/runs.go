package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wonny/ashare-rotation/internal/audit"
	"github.com/wonny/ashare-rotation/internal/contracts"
)

var (
	runsCmd = &cobra.Command{
		Use:   "runs",
		Short: "저장된 백테스트 실행 조회",
		Long: `backtest run --persist 또는 API로 저장된 실행을 조회합니다.

Example:
  go run ./cmd/quant runs list --limit 20
  go run ./cmd/quant runs show 3f1c...`,
	}

	runsListCmd = &cobra.Command{
		Use:   "list",
		Short: "최근 실행 목록",
		RunE:  runRunsList,
	}

	runsShowCmd = &cobra.Command{
		Use:   "show [run_id]",
		Short: "실행 상세 및 월/연 수익률",
		Args:  cobra.ExactArgs(1),
		RunE:  runRunsShow,
	}

	runsLimit int
)

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)

	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "최대 개수")
}

func openRunStore(cmd *cobra.Command) (*runtime, *audit.Repository, error) {
	rt, err := loadRuntime()
	if err != nil {
		return nil, nil, err
	}
	db, err := rt.database(cmd.Context())
	if err != nil {
		rt.Close()
		return nil, nil, err
	}
	return rt, audit.NewRepository(db.Pool), nil
}

func runRunsList(cmd *cobra.Command, args []string) error {
	rt, repo, err := openRunStore(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	infos, err := repo.ListRuns(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}

	PrintHeader(fmt.Sprintf("Runs (%d)", len(infos)))
	widths := []int{36, 14, 10, 23, 10, 8}
	PrintTableHeader([]string{"ID", "Strategy", "Status", "Period", "Total", "NAV"}, widths)
	for _, info := range infos {
		PrintTableRow([]string{
			info.ID.String(),
			info.Strategy,
			string(info.Status),
			info.StartDate + "~" + info.EndDate,
			pct(info.Summary.TotalReturn),
			fmt.Sprintf("%.4f", info.Summary.FinalNAV),
		}, widths)
	}
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid run id: %w", err)
	}

	rt, repo, err := openRunStore(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	run, err := repo.GetRun(cmd.Context(), id)
	if err != nil {
		return err
	}

	PrintHeader(fmt.Sprintf("%s  %s", run.Strategy, run.ID))
	PrintKeyValue("Status", string(run.Status), 12)
	PrintKeyValue("Period", run.Parameters.StartDate+" ~ "+run.Parameters.EndDate, 12)
	PrintKeyValue("Metric", fmt.Sprintf("%s %s, n=%d", run.Parameters.Metric, run.Parameters.Direction, run.Parameters.Count), 12)
	PrintKeyValue("Config Hash", run.ConfigHash, 12)
	if run.Error != "" {
		PrintKeyValue("Error", run.Error, 12)
	}
	PrintSeparator()
	PrintSummary(run.Summary)

	if len(run.NAV) == 0 {
		return nil
	}
	perf := audit.AnalyzeRun(run)

	PrintSeparator()
	widths := []int{8, 10}
	PrintTableHeader([]string{"Year", "Return"}, widths)
	for _, r := range perf.Yearly {
		PrintTableRow([]string{r.Label, pct(r.Return)}, widths)
	}
	fmt.Println()
	PrintTableHeader([]string{"Month", "Return"}, widths)
	for _, r := range perf.Monthly {
		PrintTableRow([]string{r.Label, pct(r.Return)}, widths)
	}
	fmt.Println()
	PrintKeyValue("Avg win / loss", pct(perf.AvgWin)+" / "+pct(perf.AvgLoss), 14)
	PrintKeyValue("Profit factor", fmt.Sprintf("%.2f", perf.ProfitFactor), 14)

	for _, d := range run.Degradations {
		PrintWarning(fmt.Sprintf("%s %s %s: %s", d.Date.Format(contracts.DateLayout), d.Kind, d.Code, d.Reason))
	}
	return nil
}

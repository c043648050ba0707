package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/ashare-rotation/internal/calendar"
	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/internal/s0_data"
	"github.com/wonny/ashare-rotation/internal/s0_data/quality"
	"github.com/wonny/ashare-rotation/internal/s0_data/sqlite"
)

var (
	dataCmd = &cobra.Command{
		Use:   "data",
		Short: "시장 데이터 관리",
		Long: `시장 데이터 저장소를 점검하고 SQLite → Postgres로 복사합니다.
원격 데이터 수집은 이 도구의 범위가 아닙니다.

Subcommands:
  check        - 날짜별 커버리지 품질 점검
  import       - SQLite DB를 Postgres로 복사
  init-sqlite  - 빈 SQLite DB 스키마 생성`,
	}

	dataCheckCmd = &cobra.Command{
		Use:   "check",
		Short: "데이터 품질 점검",
		Long: `가격/시가총액/재무/벤치마크 커버리지를 계산합니다.

Example:
  go run ./cmd/quant data check --date 2024-05-31
  go run ./cmd/quant data check --save`,
		RunE: runDataCheck,
	}

	dataImportCmd = &cobra.Command{
		Use:   "import",
		Short: "SQLite → Postgres 복사",
		Long: `원본 SQLite DB(stock_basic_info / stock_daily_kline / stock_financial_abstract)를
market.* 테이블로 복사합니다. 재무 지표는 기간 시작 2년 전 보고기부터 복사합니다.

Example:
  go run ./cmd/quant data import --sqlite data/a_stock_data.db --start 2022-01-01 --end 2024-12-31`,
		RunE: runDataImport,
	}

	dataInitSQLiteCmd = &cobra.Command{
		Use:   "init-sqlite",
		Short: "SQLite 스키마 생성",
		RunE:  runDataInitSQLite,
	}

	checkDate       string
	checkSave       bool
	importSQLite    string
	importStart     string
	importEnd       string
	importIndicator string
)

func init() {
	rootCmd.AddCommand(dataCmd)
	dataCmd.AddCommand(dataCheckCmd)
	dataCmd.AddCommand(dataImportCmd)
	dataCmd.AddCommand(dataInitSQLiteCmd)

	dataCheckCmd.Flags().StringVar(&checkDate, "date", "", "점검 날짜 (YYYY-MM-DD, 기본: 오늘)")
	dataCheckCmd.Flags().BoolVar(&checkSave, "save", false, "market.quality_snapshots에 저장")

	dataImportCmd.Flags().StringVar(&importSQLite, "sqlite", "", "원본 SQLite 경로 (기본: SQLITE_PATH)")
	dataImportCmd.Flags().StringVar(&importStart, "start", "", "시작 날짜 (YYYY-MM-DD, 필수)")
	dataImportCmd.Flags().StringVar(&importEnd, "end", "", "종료 날짜 (YYYY-MM-DD, 기본: 오늘)")
	dataImportCmd.Flags().StringVar(&importIndicator, "indicator", contracts.IndicatorBasicEPS, "복사할 재무 지표")
	dataImportCmd.MarkFlagRequired("start") //nolint:errcheck
}

func runDataCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	date := contracts.Day(time.Now())
	if checkDate != "" {
		parsed, err := time.Parse(contracts.DateLayout, checkDate)
		if err != nil {
			return fmt.Errorf("invalid date: %w", err)
		}
		date = parsed
	}

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	gate := quality.NewQualityGate(rt.store, quality.DefaultConfig(calendar.DefaultConfig().Benchmarks))
	snapshot, err := gate.Check(ctx, date)
	if err != nil {
		return err
	}

	PrintHeader("Data quality " + snapshot.Date.Format(contracts.DateLayout))
	PrintKeyValue("Instruments", fmt.Sprintf("%d (valid %d)", snapshot.TotalStocks, snapshot.ValidStocks), 14)
	keys := make([]string, 0, len(snapshot.Coverage))
	for k := range snapshot.Coverage {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		PrintKeyValue(k, fmt.Sprintf("%.1f%%", snapshot.Coverage[k]*100), 14)
	}
	PrintKeyValue("Score", fmt.Sprintf("%.3f", snapshot.QualityScore), 14)
	if snapshot.Passed {
		PrintSuccess("Quality gate passed")
	} else {
		PrintWarning("Quality gate failed")
	}

	if checkSave {
		db, err := rt.database(ctx)
		if err != nil {
			return err
		}
		if err := quality.NewRepository(db.Pool).SaveSnapshot(ctx, snapshot); err != nil {
			return err
		}
		PrintSuccess("Snapshot stored")
	}
	return nil
}

func runDataImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	start, err := time.Parse(contracts.DateLayout, importStart)
	if err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}
	end := contracts.Day(time.Now())
	if importEnd != "" {
		if end, err = time.Parse(contracts.DateLayout, importEnd); err != nil {
			return fmt.Errorf("invalid end date: %w", err)
		}
	}

	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	path := importSQLite
	if path == "" {
		path = rt.cfg.SQLitePath
	}
	src, err := sqlite.Open(ctx, path)
	if err != nil {
		return err
	}
	defer src.Close()

	db, err := rt.database(ctx)
	if err != nil {
		return err
	}

	PrintHeader(fmt.Sprintf("Import %s → Postgres (%s ~ %s)", path, importStart, end.Format(contracts.DateLayout)))
	began := time.Now()
	stats, err := s0_data.NewRepository(db.Pool).Import(ctx, src, start, end, importIndicator, reportPeriods(start.Year()-2, end.Year()), rt.log)
	if err != nil {
		return err
	}

	PrintKeyValue("Instruments", fmt.Sprintf("%d", stats.Instruments), 14)
	PrintKeyValue("Trading days", fmt.Sprintf("%d", stats.TradingDays), 14)
	PrintKeyValue("Rows", fmt.Sprintf("%d", stats.Rows), 14)
	PrintKeyValue("Fundamentals", fmt.Sprintf("%d", stats.Fundamentals), 14)
	PrintSuccess(fmt.Sprintf("Import completed in %.1fs", time.Since(began).Seconds()))
	return nil
}

// reportPeriods lists every quarterly period of the years [from, to]
func reportPeriods(from, to int) []contracts.ReportPeriod {
	periods := make([]contracts.ReportPeriod, 0, (to-from+1)*4)
	for y := from; y <= to; y++ {
		for _, kind := range []contracts.PeriodKind{contracts.PeriodQ1, contracts.PeriodInterim, contracts.PeriodQ3, contracts.PeriodAnnual} {
			periods = append(periods, contracts.ReportPeriod{Year: y, Kind: kind})
		}
	}
	return periods
}

func runDataInitSQLite(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	st, err := sqlite.Open(cmd.Context(), rt.cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.InitSchema(cmd.Context()); err != nil {
		return err
	}
	PrintSuccess("SQLite schema ready at " + rt.cfg.SQLitePath)
	return nil
}

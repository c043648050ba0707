package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/ashare-rotation/internal/calendar"
	"github.com/wonny/ashare-rotation/internal/contracts"
)

var (
	calendarCmd = &cobra.Command{
		Use:   "calendar",
		Short: "거래일 캘린더 조회",
	}

	calendarMonthEndsCmd = &cobra.Command{
		Use:   "month-ends",
		Short: "기간 내 월말 거래일 목록",
		Long: `벤치마크 쿼럼(5종목 중 60%)으로 판정한 각 월의 마지막 거래일과
다음 거래일(리밸런싱일)을 출력합니다.

Example:
  go run ./cmd/quant calendar month-ends --start 2024-01-01 --end 2024-12-31`,
		RunE: runMonthEnds,
	}

	calendarStart string
	calendarEnd   string
)

func init() {
	rootCmd.AddCommand(calendarCmd)
	calendarCmd.AddCommand(calendarMonthEndsCmd)

	calendarMonthEndsCmd.Flags().StringVar(&calendarStart, "start", "", "시작 날짜 (YYYY-MM-DD, 필수)")
	calendarMonthEndsCmd.Flags().StringVar(&calendarEnd, "end", "", "종료 날짜 (YYYY-MM-DD, 기본: 오늘)")
	calendarMonthEndsCmd.MarkFlagRequired("start") //nolint:errcheck
}

func runMonthEnds(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	start, err := time.Parse(contracts.DateLayout, calendarStart)
	if err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}
	end := contracts.Day(time.Now())
	if calendarEnd != "" {
		if end, err = time.Parse(contracts.DateLayout, calendarEnd); err != nil {
			return fmt.Errorf("invalid end date: %w", err)
		}
	}

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	cal, err := calendar.New(rt.store, calendar.DefaultConfig(), rt.log)
	if err != nil {
		return err
	}
	dates, gaps, err := cal.MonthEndDates(ctx, start, end)
	if err != nil {
		return err
	}
	for _, gap := range gaps {
		PrintWarning(gap.Error())
	}

	PrintHeader(fmt.Sprintf("Month-ends %s ~ %s (quorum %d)", calendarStart, end.Format(contracts.DateLayout), cal.RequiredCount()))
	widths := []int{12, 12}
	PrintTableHeader([]string{"Month-end", "Rebalance"}, widths)
	for _, d := range dates {
		next := "-"
		if day, ok, err := cal.FirstTradingDayAfter(ctx, d); err != nil {
			return err
		} else if ok {
			next = day.Format(contracts.DateLayout)
		}
		PrintTableRow([]string{d.Format(contracts.DateLayout), next}, widths)
	}
	return nil
}

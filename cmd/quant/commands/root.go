package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	dataSource string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "A股 월간 로테이션 백테스트",
	Long: `A-share monthly rotation backtester

월말 마지막 거래일에 종목을 선정하고 다음 달 첫 거래일 시가로 리밸런싱합니다.
전략: small_cap (소형주), low_price (저가주), low_ttm_pe (저PE).

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant backtest demo
  go run ./cmd/quant backtest run --preset low_ttm_pe --start 2023-01-01 --end 2024-12-31 --report
  go run ./cmd/quant select --preset small_cap --date 2024-05-31
  go run ./cmd/quant api
  go run ./cmd/quant test-db`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataSource, "source", "", "data source override (postgres|sqlite|demo, 기본: DATA_SOURCE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/ashare-rotation/internal/api"
	"github.com/wonny/ashare-rotation/internal/api/handlers"
	"github.com/wonny/ashare-rotation/internal/audit"
	"github.com/wonny/ashare-rotation/internal/calendar"
	"github.com/wonny/ashare-rotation/internal/s0_data/quality"
	"github.com/wonny/ashare-rotation/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST + WebSocket API 서버를 시작합니다.

DATABASE_URL이 있으면 실행 결과를 backtest.* 테이블에, 없으면 메모리에 보관합니다.
REDIS_ENABLED=true이면 백테스트 제출에 레이트 리밋이 적용됩니다.

Endpoints:
  GET  /health
  GET  /api/strategies              - 프리셋 목록
  POST /api/backtests               - 비동기 백테스트 제출
  GET  /api/runs[/{id}[/nav|/periods|/performance]]
  GET  /api/data/quality?date=
  GET  /api/selections/{strategy}?date=
  WS   /ws/runs/{id}                - 기간별 진행 스트림

Example:
  go run ./cmd/quant api
  go run ./cmd/quant api --port 8080 --source demo`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	if apiPort != "" {
		rt.cfg.Port = apiPort
	}
	log := rt.log

	var runs audit.RunStore = audit.NewMemoryRepository()
	if rt.cfg.Database.URL != "" {
		db, err := rt.database(ctx)
		if err != nil {
			return err
		}
		runs = audit.NewRepository(db.Pool)
		log.Info("Runs are stored in Postgres")
	} else {
		log.Warn("DATABASE_URL not set, runs are kept in memory")
	}

	var limiter *redis.RateLimiter
	if client := rt.redisClient(); client != nil && client.Enabled() {
		limiter = redis.NewRateLimiter(client, "ashare:ratelimit")
	}

	hub := handlers.NewHub()
	runHandler := handlers.NewRunHandler(ctx, rt.store, runs, hub, log)
	gate := quality.NewQualityGate(rt.store, quality.DefaultConfig(calendar.DefaultConfig().Benchmarks))

	router := api.NewRouter(api.Handlers{
		Runs:       runHandler,
		Strategies: handlers.NewStrategyHandler(log),
		Data:       handlers.NewDataHandler(rt.store, gate, log),
		Stream:     handlers.NewStreamHandler(hub, runs, log),
	}, limiter, log)

	server := api.New(rt.cfg, log, router)
	fmt.Printf("\n✅ Server running on http://localhost:%s (source: %s)\n", rt.cfg.Port, rt.cfg.DataSource)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Run(ctx, 30*time.Second); err != nil {
		return err
	}

	// 진행 중인 실행은 ctx 취소로 중단되고 부분 결과가 저장됨
	runHandler.Wait()
	log.Info("Server stopped")
	return nil
}

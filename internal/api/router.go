package api

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/wonny/ashare-rotation/internal/api/handlers"
	"github.com/wonny/ashare-rotation/pkg/logger"
	"github.com/wonny/ashare-rotation/pkg/redis"
)

// Handlers groups the endpoint handlers wired by NewRouter
type Handlers struct {
	Runs       *handlers.RunHandler
	Strategies *handlers.StrategyHandler
	Data       *handlers.DataHandler
	Stream     *handlers.StreamHandler
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, limiter *redis.RateLimiter, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Strategy presets
	api.HandleFunc("/strategies", h.Strategies.List).Methods("GET")
	api.HandleFunc("/strategies/{name}", h.Strategies.Get).Methods("GET")

	// Backtest runs
	submit := api.PathPrefix("/backtests").Subrouter()
	submit.Use(rateLimitMiddleware(limiter, redis.BacktestSubmitLimit, log))
	submit.HandleFunc("", h.Runs.Submit).Methods("POST")

	api.HandleFunc("/runs", h.Runs.List).Methods("GET")
	api.HandleFunc("/runs/{id}", h.Runs.Get).Methods("GET")
	api.HandleFunc("/runs/{id}/nav", h.Runs.NAV).Methods("GET")
	api.HandleFunc("/runs/{id}/periods", h.Runs.Periods).Methods("GET")
	api.HandleFunc("/runs/{id}/performance", h.Runs.Performance).Methods("GET")

	// Data endpoints
	api.HandleFunc("/data/quality", h.Data.GetQuality).Methods("GET")
	api.HandleFunc("/selections/{strategy}", h.Data.GetSelection).Methods("GET")

	// Progress stream
	r.HandleFunc("/ws/runs/{id}", h.Stream.ServeRun).Methods("GET")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck
		"status":  "ok",
		"service": "ashare-rotation-api",
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Call next handler
			next.ServeHTTP(w, r)

			// Log request
			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{ //nolint:errcheck
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitMiddleware limits expensive submissions per client address
func rateLimitMiddleware(limiter *redis.RateLimiter, limit redis.RateLimitConfig, log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			allowed, remaining, err := limiter.Allow(r.Context(), limit.For(clientAddr(r)))
			if err != nil {
				// Redis 장애 시 요청은 통과
				log.WithError(err).Warn("Rate limit check failed")
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !allowed {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(int(limit.Window.Seconds())))
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{ //nolint:errcheck
					"error": "rate limit exceeded",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

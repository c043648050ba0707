package strategyconfig

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/internal/selection"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap makes every validation failure a configuration error
func (e ValidationError) Unwrap() error { return contracts.ErrConfiguration }

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var hhmm = regexp.MustCompile(`^\d{2}:\d{2}$`)

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cfg *Config) error {
	// === Meta ===
	if cfg.Meta.StrategyID == "" {
		return ValidationError{"meta.strategy_id", "required"}
	}
	if cfg.Meta.DecisionTimeLocal != "" {
		if err := validateHHMM(cfg.Meta.DecisionTimeLocal); err != nil {
			return ValidationError{"meta.decision_time_local", err.Error()}
		}
	}

	// === Backtest ===
	b := cfg.Backtest
	start, err := b.Start()
	if err != nil {
		return ValidationError{"backtest.start_date", "must be YYYY-MM-DD"}
	}
	end, err := b.End()
	if err != nil {
		return ValidationError{"backtest.end_date", "must be YYYY-MM-DD"}
	}
	if start.After(end) {
		return ValidationError{"backtest", "start_date must be <= end_date"}
	}
	if b.InitialCapital <= 0 {
		return ValidationError{"backtest.initial_capital", "must be > 0"}
	}
	if b.TransactionCost < 0 || b.TransactionCost >= 1 {
		return ValidationError{"backtest.transaction_cost", "must be in [0, 1)"}
	}

	// === Stages ===
	for _, check := range []func() error{
		cfg.Universe.Validate,
		cfg.Selection.Validate,
		cfg.Portfolio.Validate,
	} {
		if err := asValidationError(check()); err != nil {
			return err
		}
	}
	if cfg.Selection.Metric == selection.MetricMarketCap && cfg.Selection.CapBasis != cfg.Universe.CapBasis {
		return ValidationError{"selection.cap_basis", "must match universe.cap_basis"}
	}

	// === Calendar ===
	c := cfg.Calendar
	if len(c.Benchmarks) == 0 {
		return ValidationError{"calendar.benchmarks", "required"}
	}
	if c.Quorum <= 0 || c.Quorum > 1 {
		return ValidationError{"calendar.quorum", "must be in (0, 1]"}
	}
	if c.LookbackDays <= 0 {
		return ValidationError{"calendar.lookback_days", "must be > 0"}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	// 종목당 예산 < 1 lot 가능성
	if cfg.Universe.MinPrice > 0 && cfg.Selection.Count > 0 {
		perStock := cfg.Backtest.InitialCapital / float64(cfg.Selection.Count)
		if perStock < cfg.Universe.MinPrice*float64(cfg.Portfolio.LotSize) {
			warnings = append(warnings, Warning{
				Code:    "FORCED_LOT",
				Message: "종목당 예산 < 최저가 1 lot: 강제 1 lot 매수로 예산 초과 가능",
			})
		}
	}

	// 비용 0 가정
	if cfg.Backtest.TransactionCost == 0 {
		warnings = append(warnings, Warning{
			Code:    "ZERO_COST",
			Message: "거래비용 0: 수익률이 낙관적일 수 있음",
		})
	}

	// TTM PE + 시총 하한 없음
	if cfg.Selection.Metric == selection.MetricTTMPE && cfg.Universe.MinMarketCap == 0 {
		warnings = append(warnings, Warning{
			Code:    "TTM_PE_NO_CAP_FLOOR",
			Message: "TTM PE 전략에 시가총액 하한 없음: 소형 저PE 종목 쏠림",
		})
	}

	return warnings
}

// === Helper Functions ===

func validateHHMM(s string) error {
	if !hhmm.MatchString(s) {
		return errors.New("must be HH:MM format")
	}
	_, err := time.Parse("15:04", s)
	return err
}

// asValidationError converts stage configuration errors into ValidationError
func asValidationError(err error) error {
	if err == nil {
		return nil
	}
	var ce *contracts.ConfigurationError
	if errors.As(err, &ce) {
		return ValidationError{ce.Field, ce.Message}
	}
	return ValidationError{"config", err.Error()}
}

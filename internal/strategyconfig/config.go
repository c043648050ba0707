package strategyconfig

import (
	"time"

	"github.com/wonny/ashare-rotation/internal/calendar"
	"github.com/wonny/ashare-rotation/internal/portfolio"
	"github.com/wonny/ashare-rotation/internal/s1_universe"
	"github.com/wonny/ashare-rotation/internal/selection"
)

// Config는 월간 로테이션 전략의 전체 설정
type Config struct {
	Meta      Meta                  `yaml:"meta" json:"meta"`
	Backtest  Backtest              `yaml:"backtest" json:"backtest"`
	Universe  s1_universe.Config    `yaml:"universe" json:"universe"`
	Selection selection.Config      `yaml:"selection" json:"selection"`
	Portfolio portfolio.Constraints `yaml:"portfolio" json:"portfolio"`
	Calendar  calendar.Config       `yaml:"calendar" json:"calendar"`
}

// Meta 메타 정보
type Meta struct {
	StrategyID        string `yaml:"strategy_id" json:"strategy_id"`
	Name              string `yaml:"name" json:"name"`
	Version           string `yaml:"version" json:"version"`
	Timezone          string `yaml:"timezone" json:"timezone"`
	DecisionTimeLocal string `yaml:"decision_time_local" json:"decision_time_local"` // HH:MM, 월말 선정 스케줄
}

// Backtest 기간/자금/비용
type Backtest struct {
	StartDate       string  `yaml:"start_date" json:"start_date"` // YYYY-MM-DD
	EndDate         string  `yaml:"end_date" json:"end_date"`     // YYYY-MM-DD
	InitialCapital  float64 `yaml:"initial_capital" json:"initial_capital"`
	TransactionCost float64 `yaml:"transaction_cost" json:"transaction_cost"` // 왕복 비용률, 기간당 1회
	RiskFreeRate    float64 `yaml:"risk_free_rate" json:"risk_free_rate"`
}

// Start parses StartDate
func (b Backtest) Start() (time.Time, error) {
	return time.Parse(dateLayout, b.StartDate)
}

// End parses EndDate
func (b Backtest) End() (time.Time, error) {
	return time.Parse(dateLayout, b.EndDate)
}

// Location returns the configured timezone, Asia/Shanghai by default
func (m Meta) Location() *time.Location {
	name := m.Timezone
	if name == "" {
		name = "Asia/Shanghai"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("CST", 8*60*60)
	}
	return loc
}

// DecisionSnapshot 실행 스냅샷 (재현성용)
type DecisionSnapshot struct {
	ConfigHash     string    `json:"config_hash"`
	ConfigYAML     string    `json:"config_yaml"`
	StrategyID     string    `json:"strategy_id"`
	DataSnapshotID string    `json:"data_snapshot_id"`
	CreatedAt      time.Time `json:"created_at"`
}

package contracts

import (
	"errors"
	"time"
)

// Pipeline Stage 정의 (SSOT)
// 모든 로그, degradation 기록, DB row에서 이 상수를 사용해야 함
//
// 리밸런싱 1회 흐름:
//   S0 → S1 → S2 → S3 → S4 → S5
//   Snapshot  Universe  Metric  Selection  Allocation  Realization

// Stage represents a pipeline stage
type Stage string

const (
	// StageSnapshot S0: 거래일 해석 + 시장 스냅샷
	// 위치: internal/calendar/, internal/marketview/
	StageSnapshot Stage = "S0_SNAPSHOT"

	// StageUniverse S1: 보드/가격/시총/ST 필터
	// 위치: internal/s1_universe/
	StageUniverse Stage = "S1_UNIVERSE"

	// StageMetric S2: 랭킹 지표 계산 (price, market_cap, ttm_pe)
	// 위치: internal/fundamentals/, internal/selection/metric.go
	StageMetric Stage = "S2_METRIC"

	// StageSelection S3: 정렬 후 Top N
	// 위치: internal/selection/
	StageSelection Stage = "S3_SELECTION"

	// StageAllocation S4: 동일 비중 + lot 반올림
	// 위치: internal/portfolio/
	StageAllocation Stage = "S4_ALLOCATION"

	// StageRealization S5: 기간 수익률 실현, NAV 갱신
	// 위치: internal/backtest/
	StageRealization Stage = "S5_REALIZATION"
)

// String returns the stage name
func (s Stage) String() string {
	return string(s)
}

// ShortName returns abbreviated stage name (e.g., "S0", "S1")
func (s Stage) ShortName() string {
	switch s {
	case StageSnapshot:
		return "S0"
	case StageUniverse:
		return "S1"
	case StageMetric:
		return "S2"
	case StageSelection:
		return "S3"
	case StageAllocation:
		return "S4"
	case StageRealization:
		return "S5"
	default:
		return "UNKNOWN"
	}
}

// Degradation records one recoverable data problem met during a run.
// Degradations never abort a run; they are counted in the summary.
type Degradation struct {
	Stage  Stage           `json:"stage"`
	Kind   DegradationKind `json:"kind"`
	Date   time.Time       `json:"date"`
	Code   string          `json:"code,omitempty"`
	Reason string          `json:"reason"`
}

// DegradationKind classifies a degradation by the error it came from
type DegradationKind string

const (
	DegradeDataGap            DegradationKind = "data_gap"
	DegradeMissingFundamental DegradationKind = "missing_fundamental"
	DegradeMissingPrice       DegradationKind = "missing_price"
	DegradeOther              DegradationKind = "other"
)

// NewDegradation classifies err and extracts the instrument code when it has one
func NewDegradation(stage Stage, date time.Time, err error) Degradation {
	d := Degradation{Stage: stage, Kind: DegradeOther, Date: date, Reason: err.Error()}

	var fundamental *MissingFundamentalError
	var price *MissingPriceError
	switch {
	case errors.As(err, &fundamental):
		d.Kind, d.Code = DegradeMissingFundamental, fundamental.Code
	case errors.As(err, &price):
		d.Kind, d.Code = DegradeMissingPrice, price.Code
	case errors.Is(err, ErrDataGap):
		d.Kind = DegradeDataGap
	}
	return d
}

package contracts

import (
	"fmt"
	"strconv"
	"time"
)

// PeriodKind is a fiscal reporting period within a year
type PeriodKind int

const (
	PeriodQ1      PeriodKind = iota + 1 // 一季报 0331
	PeriodInterim                       // 中报 0630
	PeriodQ3                            // 三季报 0930
	PeriodAnnual                        // 年报 1231
)

var periodSuffix = map[PeriodKind]string{
	PeriodQ1:      "0331",
	PeriodInterim: "0630",
	PeriodQ3:      "0930",
	PeriodAnnual:  "1231",
}

// ReportPeriod identifies a fixed fiscal reporting date
type ReportPeriod struct {
	Year int        `json:"year"`
	Kind PeriodKind `json:"kind"`
}

// String returns the YYYYMMDD key used by the fundamentals stores
func (p ReportPeriod) String() string {
	return fmt.Sprintf("%04d%s", p.Year, periodSuffix[p.Kind])
}

// EndDate returns the calendar date the period closes on
func (p ReportPeriod) EndDate() time.Time {
	switch p.Kind {
	case PeriodQ1:
		return time.Date(p.Year, time.March, 31, 0, 0, 0, 0, time.UTC)
	case PeriodInterim:
		return time.Date(p.Year, time.June, 30, 0, 0, 0, 0, time.UTC)
	case PeriodQ3:
		return time.Date(p.Year, time.September, 30, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(p.Year, time.December, 31, 0, 0, 0, 0, time.UTC)
	}
}

// ParseReportPeriod parses a YYYYMMDD period key
func ParseReportPeriod(s string) (ReportPeriod, error) {
	if len(s) != 8 {
		return ReportPeriod{}, fmt.Errorf("invalid report period %q", s)
	}
	year, err := strconv.Atoi(s[:4])
	if err != nil {
		return ReportPeriod{}, fmt.Errorf("invalid report period %q: %w", s, err)
	}
	for kind, suffix := range periodSuffix {
		if s[4:] == suffix {
			return ReportPeriod{Year: year, Kind: kind}, nil
		}
	}
	return ReportPeriod{}, fmt.Errorf("invalid report period %q: not a quarter end", s)
}

// FundamentalRecord is one disclosed indicator value
type FundamentalRecord struct {
	Code      string       `json:"code"`
	Period    ReportPeriod `json:"period"`
	Indicator string       `json:"indicator"`
	Category  string       `json:"category,omitempty"`
	Value     float64      `json:"value"`
}

// IndicatorBasicEPS is the indicator name of basic earnings per share in the financial abstract
const IndicatorBasicEPS = "基本每股收益"

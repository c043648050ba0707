package report

import (
	"github.com/parquet-go/parquet-go"

	"github.com/wonny/ashare-rotation/internal/contracts"
)

// NAVRecord is the Parquet schema of the NAV series
type NAVRecord struct {
	Date int64   `parquet:"date,timestamp(millisecond)"` // Unix ms
	NAV  float64 `parquet:"nav"`
}

// HoldingRecord is the Parquet schema of one held instrument per period
type HoldingRecord struct {
	Period          int32   `parquet:"period"`
	SelectionDate   int64   `parquet:"selection_date,timestamp(millisecond)"`
	Code            string  `parquet:"code"`
	Name            string  `parquet:"name"`
	RankMetric      float64 `parquet:"rank_metric"`
	Shares          int64   `parquet:"shares"`
	EntryPrice      float64 `parquet:"entry_price"`
	InvestedCapital float64 `parquet:"invested_capital"`
}

// WriteNAVParquet writes the NAV series
func WriteNAVParquet(path string, nav []contracts.NAVPoint) error {
	records := make([]NAVRecord, len(nav))
	for i, p := range nav {
		records[i] = NAVRecord{Date: p.Date.UnixMilli(), NAV: p.NAV}
	}
	return parquet.WriteFile(path, records)
}

// WriteHoldingsParquet writes every held instrument of every period
func WriteHoldingsParquet(path string, periods []contracts.PeriodRecord) error {
	records := make([]HoldingRecord, 0)
	for _, p := range periods {
		for _, h := range p.Instruments {
			records = append(records, HoldingRecord{
				Period:          int32(p.PeriodIndex),
				SelectionDate:   p.SelectionDate.UnixMilli(),
				Code:            h.Code,
				Name:            h.Name,
				RankMetric:      h.RankMetric,
				Shares:          h.Shares,
				EntryPrice:      h.EntryPrice,
				InvestedCapital: h.InvestedCapital,
			})
		}
	}
	return parquet.WriteFile(path, records)
}

// ReadNAVParquet loads a NAV series written by WriteNAVParquet
func ReadNAVParquet(path string) ([]NAVRecord, error) {
	return parquet.ReadFile[NAVRecord](path)
}

// ReadHoldingsParquet loads holdings written by WriteHoldingsParquet
func ReadHoldingsParquet(path string) ([]HoldingRecord, error) {
	return parquet.ReadFile[HoldingRecord](path)
}

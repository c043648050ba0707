package contracts

import (
	"strings"
	"time"
)

// DateLayout is the ISO-8601 date format used across stores, reports and the API
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC so dates compare by calendar day only
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Board is an exchange/board classification derived from the code prefix
type Board string

const (
	BoardSHMain  Board = "sh_main" // 沪市主板
	BoardSZMain  Board = "sz_main" // 深市主板
	BoardChiNext Board = "chinext" // 创业板
	BoardSTAR    Board = "star"    // 科创板
	BoardBSE     Board = "bse"     // 北交所
	BoardUnknown Board = "unknown"
)

// boardPrefixes lists code prefixes per board, longest first where it matters
var boardPrefixes = map[Board][]string{
	BoardSHMain:  {"600", "601", "603", "605"},
	BoardSZMain:  {"000", "001", "002", "003"},
	BoardChiNext: {"300", "301"},
	BoardSTAR:    {"688", "689"},
	BoardBSE:     {"920", "43", "83", "87", "88"},
}

// Prefixes returns the code prefixes belonging to the board
func (b Board) Prefixes() []string {
	prefixes := boardPrefixes[b]
	out := make([]string, len(prefixes))
	copy(out, prefixes)
	return out
}

// BoardOf classifies a 6-digit instrument code
func BoardOf(code string) Board {
	for _, board := range []Board{BoardSHMain, BoardSZMain, BoardChiNext, BoardSTAR, BoardBSE} {
		for _, prefix := range boardPrefixes[board] {
			if strings.HasPrefix(code, prefix) {
				return board
			}
		}
	}
	return BoardUnknown
}

// Instrument is an exchange-listed equity
// ⭐ SSOT: 종목 메타데이터는 이 구조체로만 전달
type Instrument struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Board       Board     `json:"board"`
	ListingDate time.Time `json:"listing_date,omitempty"`
}

// HasRiskFlag reports whether the display name carries the risk marker (e.g. "ST")
func (i Instrument) HasRiskFlag(marker string) bool {
	if marker == "" {
		return false
	}
	return strings.Contains(strings.ToUpper(i.Name), strings.ToUpper(marker))
}

// CapBasis selects which market capitalization a strategy reads
type CapBasis string

const (
	CapTotal CapBasis = "total"
	CapFloat CapBasis = "float" // 流通市值
)

// MarketRow is one (instrument, trading day) fact
type MarketRow struct {
	Code           string    `json:"code"`
	TradeDate      time.Time `json:"trade_date"`
	Open           float64   `json:"open"`
	Close          float64   `json:"close"`
	TotalMarketCap float64   `json:"total_market_cap"`
	FloatMarketCap float64   `json:"float_market_cap"`
}

// MarketCap returns the capitalization for the given basis
func (r MarketRow) MarketCap(basis CapBasis) float64 {
	if basis == CapFloat {
		return r.FloatMarketCap
	}
	return r.TotalMarketCap
}

package s1_universe

import (
	"context"
	"fmt"
	"strings"

	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/pkg/logger"
)

// Config holds universe filter criteria
type Config struct {
	Prefixes        []string           `yaml:"prefixes" json:"prefixes"`                   // 허용 코드 prefix (비어 있으면 전체)
	MinPrice        float64            `yaml:"min_price" json:"min_price"`                 // 최소 종가 (元)
	MinMarketCap    float64            `yaml:"min_market_cap" json:"min_market_cap"`       // 최소 시가총액 (元), 0 = 제한 없음
	CapBasis        contracts.CapBasis `yaml:"cap_basis" json:"cap_basis"`                 // total | float
	ExcludeRiskFlag bool               `yaml:"exclude_risk_flag" json:"exclude_risk_flag"` // ST 제외
	RiskFlagMarker  string             `yaml:"risk_flag_marker" json:"risk_flag_marker"`   // 기본 "ST"
	MinListingDays  int                `yaml:"min_listing_days" json:"min_listing_days"`   // 최소 상장일수, 0 = 제한 없음
}

// MainBoardPrefixes are the Shanghai and Shenzhen main-board code prefixes
var MainBoardPrefixes = []string{"600", "601", "603", "605", "000", "001", "002", "003"}

// DefaultConfig returns the main-board, ST-excluded filter
func DefaultConfig() Config {
	return Config{
		Prefixes:        append([]string(nil), MainBoardPrefixes...),
		MinPrice:        0,
		MinMarketCap:    0,
		CapBasis:        contracts.CapFloat,
		ExcludeRiskFlag: true,
		RiskFlagMarker:  "ST",
	}
}

// Validate checks the filter parameters
func (c Config) Validate() error {
	if c.MinPrice < 0 {
		return &contracts.ConfigurationError{Field: "universe.min_price", Message: "must be >= 0"}
	}
	if c.MinMarketCap < 0 {
		return &contracts.ConfigurationError{Field: "universe.min_market_cap", Message: "must be >= 0"}
	}
	if c.CapBasis != contracts.CapTotal && c.CapBasis != contracts.CapFloat {
		return &contracts.ConfigurationError{Field: "universe.cap_basis", Message: fmt.Sprintf("unknown basis %q", c.CapBasis)}
	}
	if c.MinListingDays < 0 {
		return &contracts.ConfigurationError{Field: "universe.min_listing_days", Message: "must be >= 0"}
	}
	for _, p := range c.Prefixes {
		if p == "" {
			return &contracts.ConfigurationError{Field: "universe.prefixes", Message: "empty prefix"}
		}
	}
	return nil
}

func (c Config) marker() string {
	if c.RiskFlagMarker == "" {
		return "ST"
	}
	return c.RiskFlagMarker
}

// CheckExclusion returns why a row is not eligible, or "" when it is.
// meta may be the zero Instrument when the store has no metadata.
func (c Config) CheckExclusion(row contracts.MarketRow, meta contracts.Instrument) string {
	// 우선순위 순서로 체크

	// 1. 보드
	if len(c.Prefixes) > 0 && !hasAnyPrefix(row.Code, c.Prefixes) {
		return fmt.Sprintf("보드 제외 (%s)", contracts.BoardOf(row.Code))
	}

	// 2. ST
	if c.ExcludeRiskFlag && meta.HasRiskFlag(c.marker()) {
		return "ST 종목"
	}

	// 3. 가격
	if row.Close <= 0 {
		return "종가 없음"
	}
	if row.Close < c.MinPrice {
		return fmt.Sprintf("가격 미달 (%.2f)", row.Close)
	}

	// 4. 시가총액
	mcap := row.MarketCap(c.CapBasis)
	if mcap <= 0 {
		return "시가총액 없음"
	}
	if mcap < c.MinMarketCap {
		return fmt.Sprintf("시가총액 미달 (%.1f亿)", mcap/1e8)
	}

	// 5. 상장일수 (상장일 미상은 통과)
	if c.MinListingDays > 0 && !meta.ListingDate.IsZero() {
		days := int(contracts.Day(row.TradeDate).Sub(contracts.Day(meta.ListingDate)).Hours() / 24)
		if days < c.MinListingDays {
			return fmt.Sprintf("상장일수 미달 (%d일)", days)
		}
	}

	return "" // 통과
}

// Eligible is the pure filter predicate
func (c Config) Eligible(row contracts.MarketRow, meta contracts.Instrument) bool {
	return c.CheckExclusion(row, meta) == ""
}

func hasAnyPrefix(code string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(code, p) {
			return true
		}
	}
	return false
}

// Builder constructs the eligible universe of a snapshot
type Builder struct {
	instruments contracts.InstrumentStore
	config      Config
	logger      *logger.Logger
}

var _ contracts.UniverseBuilder = (*Builder)(nil)

// NewBuilder creates a new Universe Builder
func NewBuilder(instruments contracts.InstrumentStore, config Config, log *logger.Logger) (*Builder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Builder{instruments: instruments, config: config, logger: log}, nil
}

// Config returns the filter parameters
func (b *Builder) Config() Config {
	return b.config
}

// Build filters every row of the snapshot
// ⭐ SSOT: S1 유니버스 생성
func (b *Builder) Build(ctx context.Context, snapshot *contracts.MarketSnapshot) (*contracts.Universe, error) {
	instruments, err := b.instruments.Instruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("get instruments: %w", err)
	}

	universe := Apply(b.config, snapshot, instruments)

	b.logger.WithFields(map[string]interface{}{
		"stage":    contracts.StageUniverse.ShortName(),
		"date":     universe.Date.Format(contracts.DateLayout),
		"rows":     universe.TotalCount,
		"eligible": universe.Count(),
		"excluded": len(universe.Excluded),
	}).Debug("Universe built")

	return universe, nil
}

// Apply filters snapshot rows against instrument metadata, keeping row order
func Apply(config Config, snapshot *contracts.MarketSnapshot, instruments map[string]contracts.Instrument) *contracts.Universe {
	universe := &contracts.Universe{
		Stocks:   make([]string, 0),
		Excluded: make(map[string]string),
	}
	if snapshot == nil {
		return universe
	}
	universe.Date = snapshot.Date
	universe.TotalCount = len(snapshot.Rows)

	for _, row := range snapshot.Rows {
		meta, ok := instruments[row.Code]
		if !ok {
			meta = contracts.Instrument{Code: row.Code, Board: contracts.BoardOf(row.Code)}
		}
		if reason := config.CheckExclusion(row, meta); reason != "" {
			universe.Excluded[row.Code] = reason
			continue
		}
		universe.Stocks = append(universe.Stocks, row.Code)
	}

	return universe
}

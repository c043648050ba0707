package contracts

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy shared by every stage.
// Only ErrConfiguration is fatal; the rest are recorded as degradations.
var (
	ErrDataGap            = errors.New("data gap")
	ErrMissingFundamental = errors.New("missing fundamental")
	ErrMissingPrice       = errors.New("missing price")
	ErrConfiguration      = errors.New("invalid configuration")
	ErrNoData             = errors.New("no data")
)

// DataGapError marks a period that could not be evaluated
type DataGapError struct {
	Date   time.Time
	Reason string
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("data gap on %s: %s", e.Date.Format(DateLayout), e.Reason)
}

func (e *DataGapError) Unwrap() error { return ErrDataGap }

// MissingFundamentalError marks an instrument dropped from ranking
type MissingFundamentalError struct {
	Code    string
	AsOf    time.Time
	Periods []ReportPeriod
}

func (e *MissingFundamentalError) Error() string {
	return fmt.Sprintf("missing fundamentals for %s as of %s %v", e.Code, e.AsOf.Format(DateLayout), e.Periods)
}

func (e *MissingFundamentalError) Unwrap() error { return ErrMissingFundamental }

// PriceSide tells whether an entry or exit price was missing
type PriceSide string

const (
	PriceEntry PriceSide = "entry"
	PriceExit  PriceSide = "exit"
)

// MissingPriceError marks an instrument skipped for sizing or weighting
type MissingPriceError struct {
	Code string
	Date time.Time
	Side PriceSide
}

func (e *MissingPriceError) Error() string {
	return fmt.Sprintf("missing %s price for %s on %s", e.Side, e.Code, e.Date.Format(DateLayout))
}

func (e *MissingPriceError) Unwrap() error { return ErrMissingPrice }

// ConfigurationError is raised before any period is processed
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ashare-rotation/internal/contracts"
)

type fixedCloses struct {
	closes map[string]float64
	day    time.Time
	ok     bool
	err    error
}

func (f fixedCloses) ClosePricesAsOf(_ context.Context, _ []string, _ time.Time) (map[string]float64, time.Time, bool, error) {
	return f.closes, f.day, f.ok, f.err
}

func position(code string, shares int64, entry float64) contracts.PositionAllocation {
	return contracts.PositionAllocation{Code: code, Shares: shares, EntryPrice: entry, InvestedCapital: float64(shares) * entry}
}

func TestWeightedReturn_CapitalWeighted(t *testing.T) {
	// invested 1000 at +10%, invested 3000 at -2%
	positions := []contracts.PositionAllocation{
		position("600001", 100, 10),
		position("600002", 300, 10),
	}
	gross, invested, missing := WeightedReturn(positions, map[string]float64{"600001": 11, "600002": 9.8})

	assert.InDelta(t, 0.01, gross, 1e-12)
	assert.InDelta(t, 4000, invested, 1e-12)
	assert.Empty(t, missing)
}

func TestPeriodReturn(t *testing.T) {
	start, end := d("2024-01-31"), d("2024-02-29")
	positions := []contracts.PositionAllocation{
		position("600001", 100, 10),
		position("600002", 300, 10),
		position("600003", 500, 4),
	}

	t.Run("missing exit price excluded from both sides", func(t *testing.T) {
		calc := NewReturnCalculator(fixedCloses{
			closes: map[string]float64{"600001": 11, "600002": 9.8},
			day:    end,
			ok:     true,
		}, nil)

		pr, errs, err := calc.PeriodReturn(context.Background(), positions, start, end, 0.002)
		require.NoError(t, err)
		assert.True(t, pr.Realized)
		assert.InDelta(t, 0.01, pr.Gross, 1e-12)
		assert.InDelta(t, 0.008, pr.Net, 1e-12)
		assert.Equal(t, 2, pr.Priced)
		assert.Equal(t, 1, pr.Missing)
		assert.Equal(t, end, pr.End)

		require.Len(t, errs, 1)
		var mp *contracts.MissingPriceError
		require.True(t, errors.As(errs[0], &mp))
		assert.Equal(t, "600003", mp.Code)
		assert.Equal(t, contracts.PriceExit, mp.Side)
	})

	t.Run("end resolved backward", func(t *testing.T) {
		calc := NewReturnCalculator(fixedCloses{
			closes: map[string]float64{"600001": 12, "600002": 12, "600003": 4.8},
			day:    d("2024-02-28"),
			ok:     true,
		}, nil)

		pr, errs, err := calc.PeriodReturn(context.Background(), positions, start, end, 0)
		require.NoError(t, err)
		assert.Empty(t, errs)
		assert.Equal(t, d("2024-02-28"), pr.End)
		assert.InDelta(t, 0.2, pr.Gross, 1e-12)
		assert.Equal(t, pr.Gross, pr.Net)
	})

	t.Run("nothing priced", func(t *testing.T) {
		calc := NewReturnCalculator(fixedCloses{closes: map[string]float64{}}, nil)

		pr, errs, err := calc.PeriodReturn(context.Background(), positions, start, end, 0.001)
		require.NoError(t, err)
		assert.False(t, pr.Realized)
		assert.Zero(t, pr.Gross)
		assert.Zero(t, pr.Net)
		assert.True(t, pr.End.IsZero())
		assert.Len(t, errs, 3)
	})

	t.Run("no positions", func(t *testing.T) {
		calc := NewReturnCalculator(fixedCloses{}, nil)
		pr, errs, err := calc.PeriodReturn(context.Background(), nil, start, end, 0.001)
		require.NoError(t, err)
		assert.Empty(t, errs)
		assert.False(t, pr.Realized)
	})

	t.Run("store failure", func(t *testing.T) {
		calc := NewReturnCalculator(fixedCloses{err: errors.New("connection reset")}, nil)
		_, _, err := calc.PeriodReturn(context.Background(), positions, start, end, 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")
	})
}

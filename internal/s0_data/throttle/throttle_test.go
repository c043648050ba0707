package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/wonny/ashare-rotation/internal/s0_data/memstore"
)

func TestNew_DisabledPacing(t *testing.T) {
	s := New(memstore.New(), 0, 0)
	assert.Equal(t, rate.Inf, s.Limiter().Limit())
	assert.Equal(t, 1, s.Limiter().Burst())

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		_, err := s.RowsForDate(ctx, time.Now())
		require.NoError(t, err)
	}
}

func TestStore_CancelledContext(t *testing.T) {
	s := New(memstore.New(), 0.001, 1)
	ctx, cancel := context.WithCancel(context.Background())

	// the single burst token is consumed here
	_, err := s.Instruments(ctx)
	require.NoError(t, err)

	cancel()
	_, err = s.Instruments(ctx)
	assert.Error(t, err)
}

func TestStore_Paces(t *testing.T) {
	s := New(memstore.New(), 50, 1)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, _, err := s.FirstDateAfter(ctx, time.Now())
		require.NoError(t, err)
	}
	// two waits of ~20ms after the burst token
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

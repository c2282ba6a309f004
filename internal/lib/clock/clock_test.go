package clock_test

import (
	"context"
	"testing"
	"time"

	"github.com/linemk/lookbox-ledger/internal/lib/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDay_UsesLocation(t *testing.T) {
	saoPaulo, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	// 01:30 UTC - в Сан-Паулу ещё предыдущий день
	moment := time.Date(2025, 3, 10, 1, 30, 0, 0, time.UTC)

	assert.Equal(t, "2025-03-10", clock.Day(moment, time.UTC))
	assert.Equal(t, "2025-03-09", clock.Day(moment, saoPaulo))
	assert.Equal(t, "2025-03-10", clock.Day(moment, nil))
}

func TestManual_Advance(t *testing.T) {
	start := time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC)
	c := clock.NewManual(start)
	assert.Equal(t, start, c.Now())

	c.Advance(2 * time.Hour)
	assert.Equal(t, "2025-01-02", clock.Day(c.Now(), time.UTC))

	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestLocationFrom(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	ctx := context.Background()
	assert.Equal(t, time.UTC, clock.LocationFrom(ctx, nil))
	assert.Equal(t, tokyo, clock.LocationFrom(ctx, tokyo))

	ctx = clock.WithLocation(ctx, tokyo)
	assert.Equal(t, tokyo, clock.LocationFrom(ctx, time.UTC))
}

package sweeper

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingVisitSweep struct {
	calls atomic.Int32
}

func (c *countingVisitSweep) ExpireOverdue(ctx context.Context, grace time.Duration, limit int) (int, error) {
	c.calls.Add(1)
	return 1, nil
}

type countingBanSweep struct {
	calls atomic.Int32
}

func (c *countingBanSweep) ExpireDueBans(ctx context.Context) (int, error) {
	c.calls.Add(1)
	return 0, nil
}

func TestSweeperRunsBothSweeps(t *testing.T) {
	visits := &countingVisitSweep{}
	bans := &countingBanSweep{}
	s := New(visits, bans, slog.Default(), 10*time.Millisecond, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// One immediate sweep plus at least one tick.
	assert.GreaterOrEqual(t, visits.calls.Load(), int32(2))
	assert.GreaterOrEqual(t, bans.calls.Load(), int32(2))
}

func TestSweeperStopsOnCancel(t *testing.T) {
	visits := &countingVisitSweep{}
	bans := &countingBanSweep{}
	s := New(visits, bans, slog.Default(), time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), visits.calls.Load())
}

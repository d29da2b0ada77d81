package app

import (
	"context"
	"testing"
	"time"

	"github.com/letroapp/letro_server/internal/letro_service/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairingSweeper_SweepOnce(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	require.NoError(t, env.store.Upsert(ctx, &domain.PairingRequest{
		RequesterID: "alice@x.com", TargetID: "bob@y.com", RequesterEndpointID: "0alice", CreatedAt: testNow,
	}))
	env.clock.Advance(30 * 24 * time.Hour)
	require.NoError(t, env.store.Upsert(ctx, &domain.PairingRequest{
		RequesterID: "carol@x.com", TargetID: "bob@y.com", RequesterEndpointID: "0carol", CreatedAt: env.clock.Now(),
	}))

	sweeper := NewPairingSweeper(env.store, env.clock, time.Hour, discardLogger())

	deleted, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)

	env.clock.Advance(60 * 24 * time.Hour)
	deleted, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Equal(t, 1, env.store.Len())
}

func TestPairingSweeper_RunStopsOnCancel(t *testing.T) {
	env := newTestEnv(nil)
	sweeper := NewPairingSweeper(env.store, env.clock, time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestPairingSweeper_SweepOnceDropsExpiredCompletions(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	require.NoError(t, env.store.MarkCompleted(ctx, []string{"parcel-alice"}, env.clock.Now()))

	sweeper := NewPairingSweeper(env.store, env.clock, time.Hour, discardLogger())
	env.clock.Advance(domain.PairingRequestTTL + time.Second)
	_, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)

	env.clock.Set(testNow)
	completed, err := env.store.IsCompleted(ctx, "parcel-alice")
	require.NoError(t, err)
	assert.False(t, completed)
}

func TestNewPairingSweeper_NonPositiveInterval(t *testing.T) {
	env := newTestEnv(nil)
	for _, interval := range []time.Duration{0, -time.Minute} {
		sweeper := NewPairingSweeper(env.store, env.clock, interval, discardLogger())
		assert.Equal(t, DefaultPairingSweepInterval, sweeper.interval)
	}
}

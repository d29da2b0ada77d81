package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/letroapp/letro_server/internal/letro_service/domain"
	"github.com/letroapp/letro_server/internal/platform/clock"
)

// PairingSweeper deletes pairing requests that outlived their retention window.
// Finds already ignore expired requests; the sweeper only reclaims storage.
type PairingSweeper struct {
	store    domain.PairingRequestRepository
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger
}

// DefaultPairingSweepInterval is used when NewPairingSweeper gets a non-positive interval.
const DefaultPairingSweepInterval = time.Hour

func NewPairingSweeper(store domain.PairingRequestRepository, clk clock.Clock, interval time.Duration, logger *slog.Logger) *PairingSweeper {
	if interval <= 0 {
		interval = DefaultPairingSweepInterval
	}
	return &PairingSweeper{store: store, clock: clk, interval: interval, logger: logger}
}

// SweepOnce deletes every expired request and matched-parcel record, and returns how many
// requests were removed.
func (s *PairingSweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-domain.PairingRequestTTL)
	deleted, err := s.store.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired pairing requests: %w", err)
	}
	if deleted > 0 {
		expiredPairingRequestsCounter.Add(float64(deleted))
		s.logger.InfoContext(ctx, "Deleted expired pairing requests", "count", deleted, "cutoff", cutoff.UTC().Format(time.RFC3339))
	}
	completions, err := s.store.DeleteExpiredCompletions(ctx, cutoff)
	if err != nil {
		return deleted, fmt.Errorf("failed to delete expired pairing completions: %w", err)
	}
	if completions > 0 {
		s.logger.DebugContext(ctx, "Deleted expired pairing completions", "count", completions)
	}
	return deleted, nil
}

// Run sweeps every interval until ctx is cancelled.
func (s *PairingSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "Pairing request sweeper started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Pairing request sweeper stopping")
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Pairing request sweep failed", "error", err)
			}
		}
	}
}

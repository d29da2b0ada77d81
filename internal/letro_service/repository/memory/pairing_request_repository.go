// Package memory keeps pairing requests in process memory. It backs local development
// and tests; requests do not survive a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/letroapp/letro_server/internal/letro_service/domain"
	"github.com/letroapp/letro_server/internal/platform/clock"
)

type PairingRequestRepository struct {
	mu        sync.Mutex
	requests  map[domain.PairingKey]domain.PairingRequest
	completed map[string]time.Time
	clock     clock.Clock
}

func NewPairingRequestRepository(clk clock.Clock) *PairingRequestRepository {
	return &PairingRequestRepository{
		requests:  make(map[domain.PairingKey]domain.PairingRequest),
		completed: make(map[string]time.Time),
		clock:     clk,
	}
}

func (r *PairingRequestRepository) Upsert(_ context.Context, req *domain.PairingRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *req
	stored.RequesterIDKey = append([]byte(nil), req.RequesterIDKey...)
	stored.SignatureBundle = append([]byte(nil), req.SignatureBundle...)
	if existing, ok := r.requests[req.Key()]; ok && !existing.IsExpired(r.clock.Now()) {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.clock.Now()
	}
	r.requests[req.Key()] = stored
	return nil
}

func (r *PairingRequestRepository) FindOne(_ context.Context, key domain.PairingKey) (*domain.PairingRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[key]
	if !ok || req.IsExpired(r.clock.Now()) {
		return nil, domain.ErrNotFound
	}
	return &req, nil
}

func (r *PairingRequestRepository) Delete(_ context.Context, key domain.PairingKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.requests, key)
	return nil
}

func (r *PairingRequestRepository) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for key, req := range r.requests {
		if !req.CreatedAt.After(cutoff) {
			delete(r.requests, key)
			deleted++
		}
	}
	return deleted, nil
}

func (r *PairingRequestRepository) MarkCompleted(_ context.Context, parcelIDs []string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, parcelID := range parcelIDs {
		if _, ok := r.completed[parcelID]; !ok {
			r.completed[parcelID] = at
		}
	}
	return nil
}

func (r *PairingRequestRepository) IsCompleted(_ context.Context, parcelID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	completedAt, ok := r.completed[parcelID]
	return ok && completedAt.After(r.clock.Now().Add(-domain.PairingRequestTTL)), nil
}

func (r *PairingRequestRepository) DeleteExpiredCompletions(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for parcelID, completedAt := range r.completed {
		if !completedAt.After(cutoff) {
			delete(r.completed, parcelID)
			deleted++
		}
	}
	return deleted, nil
}

func (r *PairingRequestRepository) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored requests, expired ones included.
func (r *PairingRequestRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

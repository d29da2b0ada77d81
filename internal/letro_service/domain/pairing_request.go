package domain

import (
	"context"
	"time"
)

// PairingRequestTTL is how long a one-sided pairing request waits for its counterpart.
const PairingRequestTTL = 90 * 24 * time.Hour

// PairingKey identifies a pairing request by who asked and whom they asked for.
type PairingKey struct {
	RequesterID string
	TargetID    string
}

// Mirror returns the key of the counterpart request.
func (k PairingKey) Mirror() PairingKey {
	return PairingKey{RequesterID: k.TargetID, TargetID: k.RequesterID}
}

// PairingRequest is one half of a pending contact pairing.
type PairingRequest struct {
	// ParcelID is the parcel that carried the latest version of the request.
	ParcelID            string
	RequesterID         string
	TargetID            string
	RequesterEndpointID string
	RequesterIDKey      []byte
	SignatureBundle     []byte
	CreatedAt           time.Time
}

// Key returns the unique key of the request.
func (r *PairingRequest) Key() PairingKey {
	return PairingKey{RequesterID: r.RequesterID, TargetID: r.TargetID}
}

// IsExpired reports whether the request is past its retention window at now.
func (r *PairingRequest) IsExpired(now time.Time) bool {
	return !r.CreatedAt.After(now.Add(-PairingRequestTTL))
}

// PairingRequestRepository stores pending pairing requests.
type PairingRequestRepository interface {
	// Upsert creates the request or replaces the mutable fields of an existing one
	// with the same key. The original creation time is kept.
	Upsert(ctx context.Context, req *PairingRequest) error

	// FindOne returns ErrNotFound if no unexpired request exists for key.
	FindOne(ctx context.Context, key PairingKey) (*PairingRequest, error)

	// Delete is a no-op if the request does not exist.
	Delete(ctx context.Context, key PairingKey) error

	// DeleteExpired removes requests created at or before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)

	// MarkCompleted records the parcels whose requests were matched, so that their
	// redelivery does not open a new pending request.
	MarkCompleted(ctx context.Context, parcelIDs []string, at time.Time) error

	// IsCompleted reports whether parcelID was matched within the retention window.
	IsCompleted(ctx context.Context, parcelID string) (bool, error)

	// DeleteExpiredCompletions removes completion records made at or before cutoff.
	DeleteExpiredCompletions(ctx context.Context, cutoff time.Time) (int64, error)

	Ping(ctx context.Context) error
}

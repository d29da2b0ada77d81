package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/letroapp/letro_server/internal/letro_service/domain"
	"github.com/letroapp/letro_server/internal/platform/clock"
	"github.com/letroapp/letro_server/internal/platform/database"
)

const createPairingRequestsTable = `
CREATE TABLE IF NOT EXISTS contact_pairing_requests (
	requester_id          TEXT        NOT NULL,
	target_id             TEXT        NOT NULL,
	parcel_id             TEXT        NOT NULL DEFAULT '',
	requester_endpoint_id TEXT        NOT NULL,
	requester_id_key      BYTEA       NOT NULL,
	signature_bundle      BYTEA,
	creation_date         TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (requester_id, target_id)
);
CREATE INDEX IF NOT EXISTS contact_pairing_requests_creation_date_idx
	ON contact_pairing_requests (creation_date);
CREATE TABLE IF NOT EXISTS completed_pairing_parcels (
	parcel_id       TEXT        PRIMARY KEY,
	completion_date TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS completed_pairing_parcels_completion_date_idx
	ON completed_pairing_parcels (completion_date);
`

type PgPairingRequestRepository struct {
	db     database.PgxPoolIface
	clock  clock.Clock
	logger *slog.Logger
}

// NewPgPairingRequestRepository creates a PostgreSQL implementation of PairingRequestRepository.
func NewPgPairingRequestRepository(db database.PgxPoolIface, clk clock.Clock, logger *slog.Logger) *PgPairingRequestRepository {
	return &PgPairingRequestRepository{db: db, clock: clk, logger: logger}
}

// EnsureSchema creates the contact_pairing_requests and completed_pairing_parcels tables
// with their expiry indexes.
func (r *PgPairingRequestRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, createPairingRequestsTable); err != nil {
		return fmt.Errorf("failed to create contact_pairing_requests table: %w", err)
	}
	return nil
}

// Upsert keeps the creation date of an existing unexpired row, so re-requests do not extend
// the retention window. An expired row that was not swept yet is treated as absent.
func (r *PgPairingRequestRepository) Upsert(ctx context.Context, req *domain.PairingRequest) error {
	query := `
		INSERT INTO contact_pairing_requests (
			requester_id, target_id, parcel_id, requester_endpoint_id, requester_id_key, signature_bundle, creation_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (requester_id, target_id) DO UPDATE SET
			parcel_id = EXCLUDED.parcel_id,
			requester_endpoint_id = EXCLUDED.requester_endpoint_id,
			requester_id_key = EXCLUDED.requester_id_key,
			signature_bundle = EXCLUDED.signature_bundle,
			creation_date = CASE
				WHEN contact_pairing_requests.creation_date > $8 THEN contact_pairing_requests.creation_date
				ELSE EXCLUDED.creation_date
			END
	`
	now := r.clock.Now()
	createdAt := req.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := r.db.Exec(ctx, query,
		req.RequesterID,
		req.TargetID,
		req.ParcelID,
		req.RequesterEndpointID,
		req.RequesterIDKey,
		req.SignatureBundle,
		createdAt,
		now.Add(-domain.PairingRequestTTL),
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error upserting contact pairing request",
			"error", err,
			"requester_id", req.RequesterID,
			"target_id", req.TargetID,
		)
		return fmt.Errorf("upsert contact pairing request: %w", err)
	}
	return nil
}

func (r *PgPairingRequestRepository) FindOne(ctx context.Context, key domain.PairingKey) (*domain.PairingRequest, error) {
	query := `SELECT requester_id, target_id, parcel_id, requester_endpoint_id, requester_id_key, signature_bundle, creation_date
		FROM contact_pairing_requests
		WHERE requester_id = $1 AND target_id = $2 AND creation_date > $3`

	var req domain.PairingRequest
	err := r.db.QueryRow(ctx, query, key.RequesterID, key.TargetID, r.clock.Now().Add(-domain.PairingRequestTTL)).Scan(
		&req.RequesterID,
		&req.TargetID,
		&req.ParcelID,
		&req.RequesterEndpointID,
		&req.RequesterIDKey,
		&req.SignatureBundle,
		&req.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error finding contact pairing request", "error", err, "requester_id", key.RequesterID, "target_id", key.TargetID)
		return nil, fmt.Errorf("find contact pairing request: %w", err)
	}
	return &req, nil
}

func (r *PgPairingRequestRepository) Delete(ctx context.Context, key domain.PairingKey) error {
	query := `DELETE FROM contact_pairing_requests WHERE requester_id = $1 AND target_id = $2`
	if _, err := r.db.Exec(ctx, query, key.RequesterID, key.TargetID); err != nil {
		r.logger.ErrorContext(ctx, "Error deleting contact pairing request", "error", err, "requester_id", key.RequesterID, "target_id", key.TargetID)
		return fmt.Errorf("delete contact pairing request: %w", err)
	}
	return nil
}

func (r *PgPairingRequestRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM contact_pairing_requests WHERE creation_date <= $1`
	tag, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired contact pairing requests: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgPairingRequestRepository) MarkCompleted(ctx context.Context, parcelIDs []string, at time.Time) error {
	query := `INSERT INTO completed_pairing_parcels (parcel_id, completion_date)
		SELECT unnest($1::text[]), $2
		ON CONFLICT (parcel_id) DO NOTHING`
	if _, err := r.db.Exec(ctx, query, parcelIDs, at); err != nil {
		r.logger.ErrorContext(ctx, "Error recording completed pairing parcels", "error", err, "parcel_ids", parcelIDs)
		return fmt.Errorf("mark pairing parcels completed: %w", err)
	}
	return nil
}

func (r *PgPairingRequestRepository) IsCompleted(ctx context.Context, parcelID string) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM completed_pairing_parcels WHERE parcel_id = $1 AND completion_date > $2
	)`
	var completed bool
	if err := r.db.QueryRow(ctx, query, parcelID, r.clock.Now().Add(-domain.PairingRequestTTL)).Scan(&completed); err != nil {
		return false, fmt.Errorf("check completed pairing parcel: %w", err)
	}
	return completed, nil
}

func (r *PgPairingRequestRepository) DeleteExpiredCompletions(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM completed_pairing_parcels WHERE completion_date <= $1`
	tag, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired pairing completions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgPairingRequestRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

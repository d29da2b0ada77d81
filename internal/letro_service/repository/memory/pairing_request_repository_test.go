package memory

import (
	"context"
	"testing"
	"time"

	"github.com/letroapp/letro_server/internal/letro_service/domain"
	"github.com/letroapp/letro_server/internal/platform/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newRequest(requester, target, endpoint string, createdAt time.Time) *domain.PairingRequest {
	return &domain.PairingRequest{
		RequesterID:         requester,
		TargetID:            target,
		RequesterEndpointID: endpoint,
		RequesterIDKey:      []byte("key-" + endpoint),
		SignatureBundle:     []byte("bundle-" + endpoint),
		CreatedAt:           createdAt,
	}
}

func TestUpsert_ReplacesWithoutDuplicating(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(start)
	repo := NewPairingRequestRepository(clk)

	require.NoError(t, repo.Upsert(ctx, newRequest("alice@x", "bob@y", "0old", start)))
	clk.Advance(time.Hour)
	require.NoError(t, repo.Upsert(ctx, newRequest("alice@x", "bob@y", "0new", clk.Now())))

	assert.Equal(t, 1, repo.Len())
	req, err := repo.FindOne(ctx, domain.PairingKey{RequesterID: "alice@x", TargetID: "bob@y"})
	require.NoError(t, err)
	assert.Equal(t, "0new", req.RequesterEndpointID)
	assert.Equal(t, []byte("bundle-0new"), req.SignatureBundle)
	assert.Equal(t, start, req.CreatedAt, "creation date must be kept")
}

func TestFindOne_IgnoresExpired(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(start)
	repo := NewPairingRequestRepository(clk)
	key := domain.PairingKey{RequesterID: "alice@x", TargetID: "bob@y"}

	require.NoError(t, repo.Upsert(ctx, newRequest("alice@x", "bob@y", "0alice", start)))

	clk.Advance(domain.PairingRequestTTL - time.Second)
	_, err := repo.FindOne(ctx, key)
	require.NoError(t, err)

	clk.Advance(time.Second)
	_, err = repo.FindOne(ctx, key)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpsert_RefreshesExpiredRow(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(start)
	repo := NewPairingRequestRepository(clk)

	require.NoError(t, repo.Upsert(ctx, newRequest("alice@x", "bob@y", "0alice", start)))
	clk.Advance(domain.PairingRequestTTL + time.Hour)
	require.NoError(t, repo.Upsert(ctx, newRequest("alice@x", "bob@y", "0alice", clk.Now())))

	req, err := repo.FindOne(ctx, domain.PairingKey{RequesterID: "alice@x", TargetID: "bob@y"})
	require.NoError(t, err)
	assert.Equal(t, clk.Now(), req.CreatedAt)
}

func TestDeleteExpired(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(start)
	repo := NewPairingRequestRepository(clk)

	require.NoError(t, repo.Upsert(ctx, newRequest("alice@x", "bob@y", "0alice", start)))
	require.NoError(t, repo.Upsert(ctx, newRequest("carol@x", "bob@y", "0carol", start.Add(48*time.Hour))))

	deleted, err := repo.DeleteExpired(ctx, start.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Equal(t, 1, repo.Len())
}

func TestDelete_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewPairingRequestRepository(clock.NewFake(start))
	key := domain.PairingKey{RequesterID: "alice@x", TargetID: "bob@y"}

	require.NoError(t, repo.Upsert(ctx, newRequest("alice@x", "bob@y", "0alice", start)))
	require.NoError(t, repo.Delete(ctx, key))
	require.NoError(t, repo.Delete(ctx, key))
	assert.Equal(t, 0, repo.Len())
}

func TestCompletedParcels(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(start)
	repo := NewPairingRequestRepository(clk)

	completed, err := repo.IsCompleted(ctx, "parcel-alice")
	require.NoError(t, err)
	assert.False(t, completed)

	require.NoError(t, repo.MarkCompleted(ctx, []string{"parcel-alice", "parcel-bob"}, start))
	for _, parcelID := range []string{"parcel-alice", "parcel-bob"} {
		completed, err = repo.IsCompleted(ctx, parcelID)
		require.NoError(t, err)
		assert.True(t, completed, parcelID)
	}

	clk.Advance(domain.PairingRequestTTL)
	completed, err = repo.IsCompleted(ctx, "parcel-alice")
	require.NoError(t, err)
	assert.False(t, completed, "completion records expire with the retention window")

	deleted, err := repo.DeleteExpiredCompletions(ctx, clk.Now().Add(-domain.PairingRequestTTL))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}

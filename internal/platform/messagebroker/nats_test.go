package messagebroker

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/letroapp/letro_server/internal/platform/messagebroker/natstest"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *NatsClient {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := NewNatsClient(natstest.RunJetStreamServer(t), "letro_server_test", logger)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestNatsClient_PublishMsgIsStored(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, client.EnsureStream(ctx, "AWALA_OUTGOING", "awala.outgoing"))

	msg := nats.NewMsg("awala.outgoing")
	msg.Header.Set("ce-id", "parcel-1")
	msg.Data = []byte("content")
	require.NoError(t, client.PublishMsg(ctx, msg))

	stream, err := client.JS.Stream(ctx, "AWALA_OUTGOING")
	require.NoError(t, err)
	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.State.Msgs)

	stored, err := stream.GetMsg(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), stored.Data)
	assert.Equal(t, "parcel-1", stored.Header.Get("ce-id"))
}

func TestNatsClient_PublishMsgWithoutStreamFails(t *testing.T) {
	client := newTestClient(t)

	err := client.PublishMsg(context.Background(), nats.NewMsg("awala.unbound"))

	assert.ErrorContains(t, err, "awala.unbound")
}

func TestNatsClient_EnsureStreamIsIdempotent(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.EnsureStream(ctx, "AWALA_OUTGOING", "awala.outgoing"))
	require.NoError(t, client.EnsureStream(ctx, "AWALA_OUTGOING", "awala.outgoing"))

	stream, err := client.JS.Stream(ctx, "AWALA_OUTGOING")
	require.NoError(t, err)
	assert.Equal(t, []string{"awala.outgoing"}, stream.CachedInfo().Config.Subjects)
}

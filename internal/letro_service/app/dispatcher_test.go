package app

import (
	"context"
	"testing"

	"github.com/letroapp/letro_server/internal/letro_service/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContentType = "application/vnd.example.test"

func TestDispatch_MalformedEnvelope(t *testing.T) {
	testCases := map[string]Envelope{
		"wrong type": {
			Type: "com.example.other", ID: "p1", Source: "0alice", Subject: serverEndpointID, DataContentType: testContentType,
		},
		"missing id":           {Type: domain.IncomingServiceMessageType, Source: "0alice", Subject: serverEndpointID, DataContentType: testContentType},
		"missing source":       {Type: domain.IncomingServiceMessageType, ID: "p1", Subject: serverEndpointID, DataContentType: testContentType},
		"missing subject":      {Type: domain.IncomingServiceMessageType, ID: "p1", Source: "0alice", DataContentType: testContentType},
		"missing content type": {Type: domain.IncomingServiceMessageType, ID: "p1", Source: "0alice", Subject: serverEndpointID},
		"empty":                {},
	}

	for name, env := range testCases {
		t.Run(name, func(t *testing.T) {
			te := newTestEnv(nil)
			called := false
			te.dispatcher.Register(testContentType, HandlerFunc(func(context.Context, *domain.IncomingMessage, *HandlerContext) Outcome {
				called = true
				return Acknowledge()
			}))

			instruction := te.dispatcher.Dispatch(context.Background(), env)

			assert.Equal(t, InstructionReject, instruction.Kind)
			assert.False(t, instruction.Redeliver())
			assert.Equal(t, "Invalid incoming service message", instruction.Message)
			assert.False(t, called)
			assert.Equal(t, 0, te.store.Len())
			assert.Empty(t, te.emitter.Messages())
		})
	}
}

func TestDispatch_UnsupportedContentType(t *testing.T) {
	te := newTestEnv(nil)

	instruction := te.dispatcher.Dispatch(context.Background(), incomingEnvelope("0alice", "text/plain", nil))

	assert.Equal(t, InstructionReject, instruction.Kind)
	assert.False(t, instruction.Redeliver())
	assert.Equal(t, "Unsupported service message content type", instruction.Message)
}

func TestDispatch_HandlerReceivesDecodedMessage(t *testing.T) {
	te := newTestEnv(nil)
	var received *domain.IncomingMessage
	var hasLogger, hasStore bool
	te.dispatcher.Register(testContentType, HandlerFunc(func(_ context.Context, msg *domain.IncomingMessage, hc *HandlerContext) Outcome {
		received = msg
		hasLogger = hc.Logger != nil
		hasStore = hc.Store != nil
		return Acknowledge()
	}))

	instruction := te.dispatcher.Dispatch(context.Background(), incomingEnvelope("0alice", testContentType, []byte("hi")))

	assert.Equal(t, InstructionAcknowledge, instruction.Kind)
	require.NotNil(t, received)
	assert.Equal(t, "parcel-0alice", received.ParcelID)
	assert.Equal(t, "0alice", received.SenderID)
	assert.Equal(t, serverEndpointID, received.RecipientID)
	assert.Equal(t, []byte("hi"), received.Content)
	assert.True(t, hasLogger)
	assert.True(t, hasStore)
}

func TestDispatch_OutcomeTranslation(t *testing.T) {
	reply := domain.NewOutgoingMessage(serverEndpointID, "0alice", testContentType, []byte("why"), testNow)

	testCases := []struct {
		name        string
		outcome     Outcome
		emitErr     error
		instruction InstructionKind
		emitted     int
	}{
		{"acknowledge", Acknowledge(), nil, InstructionAcknowledge, 0},
		{"retry", Retry("store"), nil, InstructionRetry, 0},
		{"reject with reply", RejectWithReply("invalid", reply), nil, InstructionAcknowledge, 1},
		{"reject with failed reply", RejectWithReply("invalid", reply), errBoom, InstructionRetry, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			te := newTestEnv(nil)
			te.emitter.err = tc.emitErr
			te.dispatcher.Register(testContentType, HandlerFunc(func(context.Context, *domain.IncomingMessage, *HandlerContext) Outcome {
				return tc.outcome
			}))

			instruction := te.dispatcher.Dispatch(context.Background(), incomingEnvelope("0alice", testContentType, nil))

			assert.Equal(t, tc.instruction, instruction.Kind)
			assert.Equal(t, tc.instruction == InstructionRetry, instruction.Redeliver())
			assert.Len(t, te.emitter.Messages(), tc.emitted)
		})
	}
}

func TestDecideFailure(t *testing.T) {
	reply := domain.NewOutgoingMessage(serverEndpointID, "0alice", testContentType, nil, testNow)

	testCases := []struct {
		class domain.FailureClass
		kind  OutcomeKind
	}{
		{domain.FailureTransientInfra, OutcomeRetry},
		{domain.FailurePermanentAbsent, OutcomeRejectWithReply},
		{domain.FailurePermanentMalformed, OutcomeRejectWithReply},
		{domain.FailureTransientServer, OutcomeRetry},
	}
	for _, tc := range testCases {
		t.Run(tc.class.String(), func(t *testing.T) {
			outcome := DecideFailure(retrievalError{class: tc.class}, reply)
			assert.Equal(t, tc.kind, outcome.Kind)
			assert.Equal(t, tc.class.String(), outcome.Reason)
			if tc.kind == OutcomeRejectWithReply {
				assert.Same(t, reply, outcome.Reply)
			}
		})
	}

	t.Run("unclassified errors are retried", func(t *testing.T) {
		assert.Equal(t, OutcomeRetry, DecideFailure(errBoom, reply).Kind)
	})

	t.Run("permanent without reply is acknowledged", func(t *testing.T) {
		assert.Equal(t, OutcomeAcknowledge, DecideFailure(domain.ErrInvalidSignature, nil).Kind)
	})
}

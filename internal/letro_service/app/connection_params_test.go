package app

import (
	"context"
	"strings"
	"testing"

	"github.com/letroapp/letro_server/internal/letro_service/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newConnectionParamsFixture() (*testEnv, *MockRetriever) {
	env := newTestEnv(nil)
	retriever := &MockRetriever{}
	RegisterLetroHandlers(env.dispatcher, Handlers{Retriever: retriever})
	return env, retriever
}

func requestConnectionParams(env *testEnv, address string) TransportInstruction {
	return env.dispatcher.Dispatch(context.Background(),
		incomingEnvelope("0alice", domain.ContentTypeConnParamsReq, []byte(address)))
}

func TestConnectionParams_Success(t *testing.T) {
	env, retriever := newConnectionParamsFixture()
	retriever.On("Retrieve", mock.Anything, "example.com").Return([]byte("params"), nil)

	instruction := requestConnectionParams(env, "example.com")

	assert.Equal(t, InstructionAcknowledge, instruction.Kind)
	messages := env.emitter.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, domain.ContentTypeConnParams, messages[0].ContentType)
	assert.Equal(t, []byte("params"), messages[0].Content)
	assert.Equal(t, "0alice", messages[0].RecipientID)
	assert.Equal(t, serverEndpointID, messages[0].SenderID)
}

func TestConnectionParams_UnicodeDomain(t *testing.T) {
	env, retriever := newConnectionParamsFixture()
	retriever.On("Retrieve", mock.Anything, "bücher.example").Return([]byte("params"), nil)

	assert.Equal(t, InstructionAcknowledge, requestConnectionParams(env, "bücher.example").Kind)
	assert.Len(t, env.emitter.Messages(), 1)
}

func TestConnectionParams_InvalidAddressIsAcknowledged(t *testing.T) {
	for name, address := range map[string]string{
		"too long":  strings.Repeat("a", 125) + ".com",
		"malformed": "not a domain",
		"empty":     "",
	} {
		t.Run(name, func(t *testing.T) {
			env, retriever := newConnectionParamsFixture()

			instruction := requestConnectionParams(env, address)

			assert.Equal(t, InstructionAcknowledge, instruction.Kind)
			assert.Empty(t, env.emitter.Messages())
			retriever.AssertNotCalled(t, "Retrieve", mock.Anything, mock.Anything)
		})
	}
}

func TestConnectionParams_FailureClasses(t *testing.T) {
	testCases := []struct {
		class        domain.FailureClass
		redeliver    bool
		misconfigure bool
	}{
		{domain.FailureTransientInfra, true, false},
		{domain.FailurePermanentAbsent, false, true},
		{domain.FailurePermanentMalformed, false, true},
		{domain.FailureTransientServer, true, false},
	}

	for _, tc := range testCases {
		t.Run(tc.class.String(), func(t *testing.T) {
			env, retriever := newConnectionParamsFixture()
			retriever.On("Retrieve", mock.Anything, "example.com").Return(nil, retrievalError{class: tc.class})

			instruction := requestConnectionParams(env, "example.com")

			assert.Equal(t, tc.redeliver, instruction.Redeliver())
			messages := env.emitter.Messages()
			if !tc.misconfigure {
				assert.Empty(t, messages)
				return
			}
			require.Len(t, messages, 1)
			assert.Equal(t, domain.ContentTypeMisconfiguredIE, messages[0].ContentType)
			assert.Equal(t, []byte("example.com"), messages[0].Content)
			assert.Equal(t, "0alice", messages[0].RecipientID)
		})
	}
}

func TestConnectionParams_TransientDNSFailure(t *testing.T) {
	env, retriever := newConnectionParamsFixture()
	retriever.On("Retrieve", mock.Anything, "example.com").Return(nil, retrievalError{class: domain.FailureTransientInfra})

	handler := NewConnectionParamsHandler(retriever)
	msg := &domain.IncomingMessage{
		ParcelID:    "p1",
		SenderID:    "0alice",
		RecipientID: serverEndpointID,
		ContentType: domain.ContentTypeConnParamsReq,
		Content:     []byte("example.com"),
	}
	outcome := handler.Handle(context.Background(), msg, env.handlerContext())

	assert.Equal(t, OutcomeRetry, outcome.Kind)
	assert.Empty(t, env.emitter.Messages())
}

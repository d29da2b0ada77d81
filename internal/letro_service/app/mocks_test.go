package app

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/letroapp/letro_server/internal/letro_service/domain"
	"github.com/letroapp/letro_server/internal/letro_service/repository/memory"
	"github.com/letroapp/letro_server/internal/platform/clock"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type MockEmitter struct {
	mu       sync.Mutex
	messages []*domain.OutgoingMessage
	err      error
}

func (m *MockEmitter) Emit(_ context.Context, msg *domain.OutgoingMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *MockEmitter) Messages() []*domain.OutgoingMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.OutgoingMessage(nil), m.messages...)
}

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, bundle []byte, serviceOID string, start, end time.Time) (*domain.VerifiedSignature, error) {
	args := m.Called(ctx, bundle, serviceOID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VerifiedSignature), args.Error(1)
}

type MockAuthorityClient struct {
	mock.Mock
}

func (m *MockAuthorityClient) CreateMember(ctx context.Context, endpoint, name string, role domain.MemberRole) (*domain.MemberCreation, error) {
	args := m.Called(ctx, endpoint, name, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MemberCreation), args.Error(1)
}

func (m *MockAuthorityClient) ImportMemberPublicKey(ctx context.Context, endpoint string, publicKeyDER []byte, serviceOID string) (*domain.MemberPublicKeyImport, error) {
	args := m.Called(ctx, endpoint, publicKeyDER, serviceOID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MemberPublicKeyImport), args.Error(1)
}

func (m *MockAuthorityClient) RetrieveRaw(ctx context.Context, endpoint string) ([]byte, error) {
	args := m.Called(ctx, endpoint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockAuthorityClient) Delete(ctx context.Context, endpoint string) error {
	args := m.Called(ctx, endpoint)
	return args.Error(0)
}

type staticAuthorityMaker struct {
	client domain.AuthorityClient
	err    error
}

func (s staticAuthorityMaker) Make(context.Context) (domain.AuthorityClient, error) {
	return s.client, s.err
}

type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) Retrieve(ctx context.Context, internetAddress string) ([]byte, error) {
	args := m.Called(ctx, internetAddress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// conflictError mimics the Authority client error for taken names.
type conflictError struct{}

func (conflictError) Error() string        { return "409 Conflict" }
func (conflictError) Is(target error) bool { return target == domain.ErrConflict }

// retrievalError carries an explicit failure class.
type retrievalError struct {
	class domain.FailureClass
}

func (e retrievalError) Error() string                     { return "retrieval failed: " + e.class.String() }
func (e retrievalError) FailureClass() domain.FailureClass { return e.class }

var errBoom = errors.New("boom")

// --- Fixtures ---

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const serverEndpointID = "0server"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	rsaKeysMu sync.Mutex
	rsaKeys   = map[string]*rsa.PrivateKey{}
)

// testRSAKey returns a cached RSA key for name.
func testRSAKey(t *testing.T, name string) *rsa.PrivateKey {
	t.Helper()
	rsaKeysMu.Lock()
	defer rsaKeysMu.Unlock()
	if key, ok := rsaKeys[name]; ok {
		return key
	}
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	rsaKeys[name] = key
	return key
}

func publicKeyDER(t *testing.T, key *rsa.PrivateKey) []byte {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return der
}

func awalaID(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	id, err := domain.AwalaIDFromPublicKeyDER(publicKeyDER(t, key))
	require.NoError(t, err)
	return id
}

type testEnv struct {
	dispatcher *Dispatcher
	emitter    *MockEmitter
	store      *memory.PairingRequestRepository
	clock      *clock.Fake
}

func newTestEnv(authority domain.AuthorityClientMaker) *testEnv {
	clk := clock.NewFake(testNow)
	store := memory.NewPairingRequestRepository(clk)
	emitter := &MockEmitter{}
	return &testEnv{
		dispatcher: NewDispatcher(emitter, store, authority, clk, discardLogger()),
		emitter:    emitter,
		store:      store,
		clock:      clk,
	}
}

func (e *testEnv) handlerContext() *HandlerContext {
	return &HandlerContext{
		Logger:  discardLogger(),
		Emitter: e.emitter,
		Store:   e.store,
		Clock:   e.clock,
	}
}

func incomingEnvelope(senderID, contentType string, content []byte) Envelope {
	return Envelope{
		Type:            domain.IncomingServiceMessageType,
		ID:              "parcel-" + senderID,
		Source:          senderID,
		Subject:         serverEndpointID,
		DataContentType: contentType,
		Data:            content,
	}
}

package veraid

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/letroapp/letro_server/internal/letro_service/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	periodStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
)

func newTestVerifier(t *testing.T, handler http.HandlerFunc) *Verifier {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewVerifier(server.URL, server.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestVerifier_Verify_User(t *testing.T) {
	verifier := newTestVerifier(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/verify", r.URL.Path)
		assert.Equal(t, domain.LetroServiceOID, r.URL.Query().Get("service"))
		assert.Equal(t, "2024-01-01T00:00:00Z", r.URL.Query().Get("start"))
		assert.Equal(t, "2024-03-31T00:00:00Z", r.URL.Query().Get("end"))
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "bundle", string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"signerId":"alice@example.com","signerName":"alice","plaintext":"` +
			base64.StdEncoding.EncodeToString([]byte("hello")) + `"}`))
	})

	verified, err := verifier.Verify(context.Background(), []byte("bundle"), domain.LetroServiceOID, periodStart, periodEnd)

	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", verified.SignerID)
	assert.Equal(t, "alice", verified.SignerName)
	assert.False(t, verified.IsBot())
	assert.Equal(t, []byte("hello"), verified.Plaintext)
}

func TestVerifier_Verify_Bot(t *testing.T) {
	verifier := newTestVerifier(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"signerId":"example.com","plaintext":""}`))
	})

	verified, err := verifier.Verify(context.Background(), []byte("bundle"), domain.LetroServiceOID, periodStart, periodEnd)

	require.NoError(t, err)
	assert.True(t, verified.IsBot())
}

func TestVerifier_Verify_Errors(t *testing.T) {
	testCases := []struct {
		name             string
		status           int
		body             string
		invalidSignature bool
	}{
		{"invalid bundle", http.StatusBadRequest, `{"message":"expired"}`, true},
		{"unprocessable", http.StatusUnprocessableEntity, ``, true},
		{"server error", http.StatusInternalServerError, ``, false},
		{"unavailable", http.StatusServiceUnavailable, ``, false},
		{"garbage success", http.StatusOK, `not json`, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			verifier := newTestVerifier(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			_, err := verifier.Verify(context.Background(), []byte("bundle"), domain.LetroServiceOID, periodStart, periodEnd)

			require.Error(t, err)
			assert.Equal(t, tc.invalidSignature, errors.Is(err, domain.ErrInvalidSignature))
		})
	}
}

func TestVerifier_Verify_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()
	verifier := NewVerifier(server.URL, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := verifier.Verify(context.Background(), []byte("bundle"), domain.LetroServiceOID, periodStart, periodEnd)

	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrInvalidSignature)
	assert.Equal(t, domain.FailureTransientInfra, domain.ClassifyFailure(err))
}

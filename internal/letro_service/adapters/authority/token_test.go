package authority

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/letroapp/letro_server/internal/platform/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tokenNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func signedToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Audience:  jwt.ClaimStrings{"https://veraid.example"},
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	signed, err := token.SignedString([]byte("key"))
	require.NoError(t, err)
	return signed
}

func newMetadataServer(t *testing.T, tokens func() string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Google", r.Header.Get("Metadata-Flavor"))
		assert.Equal(t, "https://veraid.example", r.URL.Query().Get("audience"))
		_, _ = w.Write([]byte(tokens()))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestTokenSource_CachesUntilExpiry(t *testing.T) {
	var calls atomic.Int32
	token := signedToken(t, tokenNow.Add(time.Hour))
	server := newMetadataServer(t, func() string { return token }, &calls)
	clk := clock.NewFake(tokenNow)
	source := NewTokenSource(server.URL, "https://veraid.example", server.Client(), clk, discardLogger())

	first, err := source.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, token, first)

	clk.Advance(58 * time.Minute)
	_, err = source.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	clk.Advance(time.Minute)
	_, err = source.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "token is refreshed a minute before it expires")
}

func TestTokenSource_OpaqueTokenUsesFallbackTTL(t *testing.T) {
	var calls atomic.Int32
	server := newMetadataServer(t, func() string { return "opaque-token\n" }, &calls)
	clk := clock.NewFake(tokenNow)
	source := NewTokenSource(server.URL, "https://veraid.example", server.Client(), clk, discardLogger())

	token, err := source.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "opaque-token", token)

	clk.Advance(13 * time.Minute)
	_, _ = source.Token(context.Background())
	assert.Equal(t, int32(1), calls.Load())

	clk.Advance(2 * time.Minute)
	_, _ = source.Token(context.Background())
	assert.Equal(t, int32(2), calls.Load())
}

func TestTokenSource_MetadataError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()
	source := NewTokenSource(server.URL, "aud", server.Client(), clock.NewFake(tokenNow), discardLogger())

	_, err := source.Token(context.Background())

	assert.Error(t, err)
}

func TestMaker_Make(t *testing.T) {
	var calls atomic.Int32
	token := signedToken(t, tokenNow.Add(time.Hour))
	metadata := newMetadataServer(t, func() string { return token }, &calls)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+token, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer api.Close()

	source := NewTokenSource(metadata.URL, "https://veraid.example", metadata.Client(), clock.NewFake(tokenNow), discardLogger())
	maker := NewMaker(api.URL, source, 10, api.Client(), discardLogger())

	client, err := maker.Make(context.Background())
	require.NoError(t, err)
	require.NoError(t, client.Delete(context.Background(), "/orgs/nautilus.ink/members/1"))
}

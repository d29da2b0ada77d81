package authority

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/letroapp/letro_server/internal/platform/clock"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	// Used when the identity token carries no usable expiry.
	fallbackTokenTTL  = 15 * time.Minute
	tokenExpiryLeeway = time.Minute
)

// TokenSource fetches OIDC identity tokens for the Authority audience from the
// instance metadata server and caches them until shortly before they expire.
type TokenSource struct {
	tokenURL   string
	audience   string
	httpClient *http.Client
	clock      clock.Clock
	logger     *slog.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewTokenSource(tokenURL, audience string, httpClient *http.Client, clk clock.Clock, logger *slog.Logger) *TokenSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &TokenSource{
		tokenURL:   tokenURL,
		audience:   audience,
		httpClient: httpClient,
		clock:      clk,
		logger:     logger.With("component", "veraid_authority_token_source"),
	}
}

// Token returns a cached token or fetches a new one.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if s.token != "" && now.Before(s.expiresAt) {
		return s.token, nil
	}

	token, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}
	s.token = token
	s.expiresAt = tokenExpiry(token, now).Add(-tokenExpiryLeeway)
	s.logger.DebugContext(ctx, "Fetched VeraId Authority access token", "expires_at", s.expiresAt)
	return token, nil
}

func (s *TokenSource) fetch(ctx context.Context) (string, error) {
	query := url.Values{}
	query.Set("audience", s.audience)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.tokenURL+"?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Metadata-Flavor", "Google")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch identity token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read identity token: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("metadata server returned status %d", resp.StatusCode)
	}
	token := strings.TrimSpace(string(body))
	if token == "" {
		return "", fmt.Errorf("metadata server returned an empty identity token")
	}
	return token, nil
}

// tokenExpiry reads the exp claim without verifying the token; the issuer is trusted.
func tokenExpiry(token string, now time.Time) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return now.Add(fallbackTokenTTL)
	}
	return claims.ExpiresAt.Time
}

package authority

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/letroapp/letro_server/internal/letro_service/domain"
	"golang.org/x/time/rate"
)

// Maker builds Authority clients authenticated with the current identity token.
// All clients share one rate limiter and HTTP client.
type Maker struct {
	apiURL     string
	tokens     *TokenSource
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

func NewMaker(apiURL string, tokens *TokenSource, requestsPerSecond float64, httpClient *http.Client, logger *slog.Logger) *Maker {
	limit := rate.Inf
	burst := 0
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
		burst = max(1, int(requestsPerSecond))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Maker{
		apiURL:     apiURL,
		tokens:     tokens,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
	}
}

func (m *Maker) Make(ctx context.Context) (domain.AuthorityClient, error) {
	token, err := m.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get VeraId Authority access token: %w", err)
	}
	return NewClient(m.apiURL, token, m.httpClient, m.limiter, m.logger), nil
}

// Package veraid verifies VeraId signature bundles through a verification sidecar.
package veraid

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/letroapp/letro_server/internal/letro_service/domain"
)

type Verifier struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewVerifier(baseURL string, httpClient *http.Client, logger *slog.Logger) *Verifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Verifier{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger.With("component", "veraid_verifier"),
	}
}

type verificationResponse struct {
	SignerID   string `json:"signerId"`
	SignerName string `json:"signerName,omitempty"`
	Plaintext  string `json:"plaintext"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Verify posts bundle to the sidecar. Client errors mean the bundle is invalid;
// everything else is reported as a transient failure.
func (v *Verifier) Verify(ctx context.Context, bundle []byte, serviceOID string, start, end time.Time) (*domain.VerifiedSignature, error) {
	query := url.Values{}
	query.Set("service", serviceOID)
	query.Set("start", start.UTC().Format(time.RFC3339))
	query.Set("end", end.UTC().Format(time.RFC3339))
	endpoint := v.baseURL + "/verify?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bundle))
	if err != nil {
		return nil, fmt.Errorf("failed to create verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach VeraId verifier: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read VeraId verifier response (status %d): %w", resp.StatusCode, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var errResp errorResponse
		_ = json.Unmarshal(body, &errResp)
		v.logger.DebugContext(ctx, "VeraId signature bundle refused", "status_code", resp.StatusCode, "reason", errResp.Message)
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidSignature, errResp.Message)
	default:
		return nil, fmt.Errorf("VeraId verifier error: status %d", resp.StatusCode)
	}

	var verification verificationResponse
	if err := json.Unmarshal(body, &verification); err != nil {
		return nil, fmt.Errorf("failed to parse VeraId verifier response: %w", err)
	}
	plaintext, err := base64.StdEncoding.DecodeString(verification.Plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to decode verified plaintext: %w", err)
	}
	if verification.SignerID == "" {
		return nil, fmt.Errorf("VeraId verifier response has no signer id")
	}

	return &domain.VerifiedSignature{
		SignerID:   verification.SignerID,
		SignerName: verification.SignerName,
		Plaintext:  plaintext,
	}, nil
}

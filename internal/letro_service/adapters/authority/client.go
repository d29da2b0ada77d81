// Package authority is a client for the VeraId Authority API.
package authority

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/letroapp/letro_server/internal/letro_service/domain"
	"golang.org/x/time/rate"
)

// ClientError is returned when the Authority answers with a non-2xx status.
type ClientError struct {
	StatusCode int
	Message    string
}

func (e *ClientError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("VeraId Authority returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("VeraId Authority returned status %d: %s", e.StatusCode, e.Message)
}

// IsConflict reports whether the resource already exists.
func (e *ClientError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict
}

// Is makes errors.Is(err, domain.ErrConflict) hold for 409 responses.
func (e *ClientError) Is(target error) bool {
	return target == domain.ErrConflict && e.IsConflict()
}

// FailureClass lets callers tell bad requests apart from Authority outages.
func (e *ClientError) FailureClass() domain.FailureClass {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return domain.FailurePermanentAbsent
	case e.StatusCode >= 500:
		return domain.FailureTransientServer
	default:
		return domain.FailurePermanentMalformed
	}
}

// Client calls the Authority API on behalf of a single access token.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *slog.Logger
}

func NewClient(baseURL, accessToken string, httpClient *http.Client, limiter *rate.Limiter, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		accessToken: accessToken,
		httpClient:  httpClient,
		limiter:     limiter,
		logger:      logger.With("component", "veraid_authority_client"),
	}
}

type memberCreationRequest struct {
	Name string            `json:"name"`
	Role domain.MemberRole `json:"role"`
}

type publicKeyImportRequest struct {
	PublicKey  string `json:"publicKey"`
	ServiceOID string `json:"serviceOid"`
}

type errorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (c *Client) CreateMember(ctx context.Context, endpoint, name string, role domain.MemberRole) (*domain.MemberCreation, error) {
	payload := memberCreationRequest{Name: name, Role: role}
	var creation domain.MemberCreation
	if err := c.doJSON(ctx, http.MethodPost, endpoint, payload, &creation); err != nil {
		return nil, err
	}
	return &creation, nil
}

func (c *Client) ImportMemberPublicKey(ctx context.Context, endpoint string, publicKeyDER []byte, serviceOID string) (*domain.MemberPublicKeyImport, error) {
	payload := publicKeyImportRequest{
		PublicKey:  base64.StdEncoding.EncodeToString(publicKeyDER),
		ServiceOID: serviceOID,
	}
	var imported domain.MemberPublicKeyImport
	if err := c.doJSON(ctx, http.MethodPost, endpoint, payload, &imported); err != nil {
		return nil, err
	}
	return &imported, nil
}

func (c *Client) RetrieveRaw(ctx context.Context, endpoint string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, endpoint, nil, "", "application/vnd.veraid.member-bundle")
}

func (c *Client) Delete(ctx context.Context, endpoint string) error {
	_, err := c.do(ctx, http.MethodDelete, endpoint, nil, "", "")
	return err
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request to %s: %w", endpoint, err)
	}
	respBody, err := c.do(ctx, method, endpoint, body, "application/json", "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", endpoint, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, contentType, accept string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request to %s: %w", method, endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s request to %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s (status %d): %w", endpoint, resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		clientErr := &ClientError{StatusCode: resp.StatusCode}
		var errResp errorBody
		if json.Unmarshal(respBody, &errResp) == nil {
			clientErr.Message = errResp.Message
		}
		if !clientErr.IsConflict() {
			c.logger.WarnContext(ctx, "VeraId Authority request failed",
				"method", method,
				"endpoint", endpoint,
				"status_code", resp.StatusCode,
				"error", clientErr.Message)
		}
		return nil, clientErr
	}
	return respBody, nil
}

// IsClientError reports whether err came from an Authority response.
func IsClientError(err error) bool {
	var clientErr *ClientError
	return errors.As(err, &clientErr)
}

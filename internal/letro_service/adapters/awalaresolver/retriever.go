// Package awalaresolver resolves Awala Internet addresses and fetches the
// connection parameters published by their gateways.
package awalaresolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/letroapp/letro_server/internal/letro_service/domain"
)

const (
	srvService = "awala-pdc"
	srvProto   = "tcp"

	connectionParamsPath = "/connection-params.der"
	maxConnectionParams  = 64 * 1024
)

// RetrievalError carries the failure class of a connection params retrieval.
type RetrievalError struct {
	Class domain.FailureClass
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("connection params retrieval failed (%s): %v", e.Class, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

func (e *RetrievalError) FailureClass() domain.FailureClass { return e.Class }

// SRVResolver is satisfied by *net.Resolver.
type SRVResolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
}

// Retriever implements domain.ConnectionParamsRetriever.
type Retriever struct {
	resolver   SRVResolver
	httpClient *http.Client
	userAgent  string
	scheme     string
	logger     *slog.Logger
}

type Option func(*Retriever)

// WithHTTPClient replaces the default client; its timeout bounds every fetch.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Retriever) { r.httpClient = client }
}

// WithResolver replaces net.DefaultResolver.
func WithResolver(resolver SRVResolver) Option {
	return func(r *Retriever) { r.resolver = resolver }
}

func NewRetriever(timeout time.Duration, version string, logger *slog.Logger, opts ...Option) *Retriever {
	r := &Retriever{
		resolver:   net.DefaultResolver,
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  "Letro-Server/" + version,
		scheme:     "https",
		logger:     logger.With("component", "connection_params_retriever"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Retriever) Retrieve(ctx context.Context, internetAddress string) ([]byte, error) {
	url, err := r.resolveURL(ctx, internetAddress)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &RetrievalError{Class: domain.FailurePermanentMalformed, Err: err}
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to retrieve connection params", "internet_address", internetAddress, "error", err)
		return nil, &RetrievalError{Class: domain.FailureTransientInfra, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		r.logger.InfoContext(ctx, "Failed to retrieve connection params due to server error",
			"internet_address", internetAddress, "status_code", resp.StatusCode)
		return nil, &RetrievalError{
			Class: domain.FailureTransientServer,
			Err:   fmt.Errorf("gateway returned status %d", resp.StatusCode),
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		r.logger.InfoContext(ctx, "Failed to retrieve connection params from non-PoHTTP-compatible server",
			"internet_address", internetAddress, "status_code", resp.StatusCode)
		return nil, &RetrievalError{
			Class: domain.FailurePermanentMalformed,
			Err:   fmt.Errorf("gateway returned status %d", resp.StatusCode),
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if mediaType, _, _ := mime.ParseMediaType(contentType); mediaType != domain.AwalaConnectionParamsContentType {
		r.logger.InfoContext(ctx, "Received invalid content type for connection params",
			"internet_address", internetAddress, "content_type", contentType)
		return nil, &RetrievalError{
			Class: domain.FailurePermanentMalformed,
			Err:   fmt.Errorf("unexpected content type %q", contentType),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxConnectionParams+1))
	if err != nil {
		return nil, &RetrievalError{Class: domain.FailureTransientInfra, Err: err}
	}
	if len(body) > maxConnectionParams {
		r.logger.InfoContext(ctx, "Refused oversized connection params", "internet_address", internetAddress)
		return nil, &RetrievalError{
			Class: domain.FailurePermanentMalformed,
			Err:   fmt.Errorf("connection params exceed %d bytes", maxConnectionParams),
		}
	}
	return body, nil
}

func (r *Retriever) resolveURL(ctx context.Context, internetAddress string) (string, error) {
	_, records, err := r.resolver.LookupSRV(ctx, srvService, srvProto, internetAddress)
	if err != nil {
		return "", r.classifyLookupError(ctx, internetAddress, err)
	}

	// A single "." target means the service is explicitly unavailable.
	var record *net.SRV
	for _, candidate := range records {
		if candidate.Target != "." && candidate.Target != "" {
			record = candidate
			break
		}
	}
	if record == nil {
		r.logger.InfoContext(ctx, "Awala endpoint record not found", "internet_address", internetAddress)
		return "", &RetrievalError{
			Class: domain.FailurePermanentAbsent,
			Err:   fmt.Errorf("no SRV record for %s", internetAddress),
		}
	}

	host := strings.TrimSuffix(record.Target, ".")
	r.logger.DebugContext(ctx, "Awala endpoint record found", "internet_address", internetAddress, "endpoint_host", host)
	return r.scheme + "://" + net.JoinHostPort(host, strconv.Itoa(int(record.Port))) + connectionParamsPath, nil
}

func (r *Retriever) classifyLookupError(ctx context.Context, internetAddress string, err error) error {
	var dnsErr *net.DNSError
	if !errors.As(err, &dnsErr) || dnsErr.IsTimeout || dnsErr.IsTemporary {
		r.logger.ErrorContext(ctx, "Failed to use DNS resolver", "internet_address", internetAddress, "error", err)
		return &RetrievalError{Class: domain.FailureTransientInfra, Err: err}
	}
	if dnsErr.IsNotFound {
		r.logger.InfoContext(ctx, "Awala endpoint record not found", "internet_address", internetAddress)
		return &RetrievalError{Class: domain.FailurePermanentAbsent, Err: err}
	}
	r.logger.InfoContext(ctx, "Invalid Awala DNS configuration", "internet_address", internetAddress, "error", err)
	return &RetrievalError{Class: domain.FailurePermanentMalformed, Err: err}
}

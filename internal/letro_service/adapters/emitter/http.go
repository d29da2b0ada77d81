package emitter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/letroapp/letro_server/internal/letro_service/domain"
)

// HTTPEmitter posts outgoing messages to a CloudEvents sink (K_SINK).
type HTTPEmitter struct {
	sinkURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPEmitter(sinkURL string, httpClient *http.Client, logger *slog.Logger) *HTTPEmitter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPEmitter{
		sinkURL:    sinkURL,
		httpClient: httpClient,
		logger:     logger.With("component", "http_emitter"),
	}
}

func (e *HTTPEmitter) Emit(ctx context.Context, msg *domain.OutgoingMessage) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.sinkURL, bytes.NewReader(msg.Content))
	if err != nil {
		return fmt.Errorf("failed to create CloudEvent request: %w", err)
	}
	for _, attr := range cloudEventAttributes(msg) {
		req.Header.Set("Ce-"+attr.name, attr.value)
	}
	req.Header.Set("Content-Type", msg.ContentType)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to emit message %s: %w", msg.ParcelID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e.logger.ErrorContext(ctx, "CloudEvent sink rejected outgoing message",
			"parcel_id", msg.ParcelID,
			"status_code", resp.StatusCode)
		return fmt.Errorf("CloudEvent sink returned status %d for message %s", resp.StatusCode, msg.ParcelID)
	}
	return nil
}

// Package http exposes the service message dispatcher as the CloudEvents sink
// of the Awala Internet Endpoint.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/letroapp/letro_server/internal/letro_service/app"
)

// Incoming parcels are capped well below this by the Awala network.
const maxRequestBodyBytes = 10 << 20

const healthcheckBody = "Success! It works."

// Dispatcher is satisfied by *app.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, env app.Envelope) app.TransportInstruction
}

// ErrorResponse is the body of 400 responses.
type ErrorResponse struct {
	Message string `json:"message"`
}

// ServiceMessageHandler receives binary-mode CloudEvents.
type ServiceMessageHandler struct {
	dispatcher Dispatcher
	logger     *slog.Logger
}

func NewServiceMessageHandler(dispatcher Dispatcher, logger *slog.Logger) *ServiceMessageHandler {
	return &ServiceMessageHandler{
		dispatcher: dispatcher,
		logger:     logger.With("handler", "service_message"),
	}
}

// RegisterRoutes registers the healthcheck and the CloudEvents sink.
func (h *ServiceMessageHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleHealthcheck)
	r.Post("/", h.handleServiceMessage)
}

// NewRouter builds the chi router of the Letro server.
func NewRouter(h *ServiceMessageHandler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(PrometheusMetricsMiddleware)
	h.RegisterRoutes(r)
	return r
}

func (h *ServiceMessageHandler) handleHealthcheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, healthcheckBody)
}

func (h *ServiceMessageHandler) handleServiceMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.jsonError(w, "Service message is too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.logger.WarnContext(r.Context(), "Failed to read service message body", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	instruction := h.dispatcher.Dispatch(r.Context(), envelopeFromRequest(r, body))
	switch instruction.Kind {
	case app.InstructionAcknowledge:
		w.WriteHeader(http.StatusNoContent)
	case app.InstructionReject:
		// A rejection is final: the Awala sink does not redeliver a 4xx.
		h.jsonError(w, instruction.Message, http.StatusBadRequest)
	default:
		w.WriteHeader(http.StatusServiceUnavailable)
	}
}

func envelopeFromRequest(r *http.Request, body []byte) app.Envelope {
	return app.Envelope{
		Type:            r.Header.Get("Ce-Type"),
		ID:              r.Header.Get("Ce-Id"),
		Source:          r.Header.Get("Ce-Source"),
		Subject:         r.Header.Get("Ce-Subject"),
		DataContentType: r.Header.Get("Content-Type"),
		Data:            body,
	}
}

func (h *ServiceMessageHandler) jsonError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Message: message})
}

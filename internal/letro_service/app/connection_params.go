package app

import (
	"context"

	"github.com/letroapp/letro_server/internal/letro_service/domain"
)

const maxInternetAddressLength = 128

// ConnectionParamsHandler relays the connection params of an Awala Internet gateway to the
// private endpoint that asked for them.
type ConnectionParamsHandler struct {
	retriever domain.ConnectionParamsRetriever
}

func NewConnectionParamsHandler(retriever domain.ConnectionParamsRetriever) *ConnectionParamsHandler {
	return &ConnectionParamsHandler{retriever: retriever}
}

func (h *ConnectionParamsHandler) Handle(ctx context.Context, msg *domain.IncomingMessage, hc *HandlerContext) Outcome {
	if len(msg.Content) > maxInternetAddressLength {
		hc.Logger.InfoContext(ctx, "Requested domain name is too long", "domain_name_length", len(msg.Content))
		return Acknowledge()
	}
	internetAddress := string(msg.Content)
	if !domain.IsValidDomainName(internetAddress) {
		hc.Logger.InfoContext(ctx, "Requested domain name is malformed", "domain_name", internetAddress)
		return Acknowledge()
	}
	logger := hc.Logger.With("internet_address", internetAddress)

	params, err := h.retriever.Retrieve(ctx, internetAddress)
	if err != nil {
		misconfigured := domain.ReplyTo(msg, domain.ContentTypeMisconfiguredIE, msg.Content, hc.Clock.Now())
		outcome := DecideFailure(err, misconfigured)
		if outcome.Kind == OutcomeRetry {
			logger.ErrorContext(ctx, "Failed to retrieve connection params; will retry", "error", err, "failure", outcome.Reason)
		} else {
			logger.InfoContext(ctx, "Internet endpoint is misconfigured", "error", err, "failure", outcome.Reason)
		}
		connectionParamsCounter.WithLabelValues(outcome.Reason).Inc()
		return outcome
	}

	reply := domain.ReplyTo(msg, domain.ContentTypeConnParams, params, hc.Clock.Now())
	if err := hc.Emitter.Emit(ctx, reply); err != nil {
		logger.ErrorContext(ctx, "Failed to emit connection params", "error", err)
		return Retry("emit")
	}

	logger.InfoContext(ctx, "Connection parameters sent")
	connectionParamsCounter.WithLabelValues("sent").Inc()
	return Acknowledge()
}

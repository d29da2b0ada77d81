package app

import (
	"context"

	"github.com/letroapp/letro_server/internal/letro_service/domain"
)

// PairingAuthorisationHandler forwards the connection params of a paired contact to the
// endpoint they authorise.
type PairingAuthorisationHandler struct{}

func NewPairingAuthorisationHandler() *PairingAuthorisationHandler {
	return &PairingAuthorisationHandler{}
}

func (h *PairingAuthorisationHandler) Handle(ctx context.Context, msg *domain.IncomingMessage, hc *HandlerContext) Outcome {
	params, err := domain.ParsePrivateEndpointConnParams(msg.Content)
	if err != nil {
		hc.Logger.InfoContext(ctx, "Refused malformed connection params", "error", err)
		return Acknowledge()
	}

	granterID := params.GranterID()
	if granterID != msg.SenderID {
		hc.Logger.InfoContext(ctx, "Refused connection params not issued by sender", "granter_id", granterID)
		return Acknowledge()
	}

	granteeID := params.GranteeID()
	forward := domain.NewOutgoingMessage(msg.RecipientID, granteeID, msg.ContentType, msg.Content, hc.Clock.Now())
	if err := hc.Emitter.Emit(ctx, forward); err != nil {
		hc.Logger.ErrorContext(ctx, "Failed to forward connection params to contact", "error", err, "grantee_id", granteeID)
		return Retry("emit")
	}

	hc.Logger.InfoContext(ctx, "Forwarded connection params to contact", "granter_id", granterID, "grantee_id", granteeID)
	return Acknowledge()
}

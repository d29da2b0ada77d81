package app

import (
	"context"
	"log/slog"

	"github.com/letroapp/letro_server/internal/letro_service/domain"
	"github.com/letroapp/letro_server/internal/platform/clock"
)

// HandlerContext exposes the process-wide collaborators to a MessageHandler.
type HandlerContext struct {
	// Logger is scoped with the identifying fields of the message being handled.
	Logger           *slog.Logger
	Emitter          domain.MessageEmitter
	Store            domain.PairingRequestRepository
	AuthorityClients domain.AuthorityClientMaker
	Clock            clock.Clock
}

// MessageHandler processes messages of one content type.
//
// Handlers must be idempotent: a message may be delivered more than once even after
// it was acknowledged.
type MessageHandler interface {
	Handle(ctx context.Context, msg *domain.IncomingMessage, hc *HandlerContext) Outcome
}

// HandlerFunc adapts a function to MessageHandler.
type HandlerFunc func(ctx context.Context, msg *domain.IncomingMessage, hc *HandlerContext) Outcome

func (f HandlerFunc) Handle(ctx context.Context, msg *domain.IncomingMessage, hc *HandlerContext) Outcome {
	return f(ctx, msg, hc)
}

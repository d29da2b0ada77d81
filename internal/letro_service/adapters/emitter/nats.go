package emitter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/letroapp/letro_server/internal/letro_service/domain"
	"github.com/nats-io/nats.go"
)

// Publisher is satisfied by *messagebroker.NatsClient.
type Publisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg) error
}

// NatsEmitter publishes outgoing messages to a NATS subject using the
// CloudEvents NATS binding.
type NatsEmitter struct {
	publisher Publisher
	subject   string
	logger    *slog.Logger
}

func NewNatsEmitter(publisher Publisher, subject string, logger *slog.Logger) *NatsEmitter {
	return &NatsEmitter{
		publisher: publisher,
		subject:   subject,
		logger:    logger.With("component", "nats_emitter"),
	}
}

func (e *NatsEmitter) Emit(ctx context.Context, msg *domain.OutgoingMessage) error {
	natsMsg := nats.NewMsg(e.subject)
	for _, attr := range cloudEventAttributes(msg) {
		natsMsg.Header.Set("ce-"+attr.name, attr.value)
	}
	natsMsg.Header.Set("content-type", msg.ContentType)
	natsMsg.Data = msg.Content

	if err := e.publisher.PublishMsg(ctx, natsMsg); err != nil {
		return fmt.Errorf("failed to emit message %s: %w", msg.ParcelID, err)
	}
	e.logger.DebugContext(ctx, "Outgoing service message published",
		"parcel_id", msg.ParcelID,
		"recipient_id", msg.RecipientID,
		"content_type", msg.ContentType)
	return nil
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/letroapp/letro_server/internal/letro_service/domain"
	"github.com/letroapp/letro_server/internal/platform/clock"
	"github.com/prometheus/client_golang/prometheus"
)

// Envelope carries the CloudEvent attributes of an incoming service message.
type Envelope struct {
	Type            string
	ID              string
	Source          string
	Subject         string
	DataContentType string
	Data            []byte
}

// InstructionKind tells the transport what to do with a delivery.
type InstructionKind int

const (
	InstructionAcknowledge InstructionKind = iota
	InstructionRetry
	InstructionReject
)

func (k InstructionKind) String() string {
	switch k {
	case InstructionAcknowledge:
		return "acknowledge"
	case InstructionRetry:
		return "retry"
	case InstructionReject:
		return "reject"
	default:
		return "unknown"
	}
}

// TransportInstruction is the result of dispatching one envelope.
type TransportInstruction struct {
	Kind InstructionKind
	// Message describes a rejection.
	Message string
}

// Redeliver reports whether the transport should deliver the envelope again later.
func (i TransportInstruction) Redeliver() bool {
	return i.Kind == InstructionRetry
}

// Dispatcher decodes incoming envelopes and routes them to the handler registered for
// their content type. It has no retry loop: redelivery is left to the transport.
type Dispatcher struct {
	handlers  map[string]MessageHandler
	emitter   domain.MessageEmitter
	store     domain.PairingRequestRepository
	authority domain.AuthorityClientMaker
	clock     clock.Clock
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher with no handlers registered.
func NewDispatcher(
	emitter domain.MessageEmitter,
	store domain.PairingRequestRepository,
	authority domain.AuthorityClientMaker,
	clk clock.Clock,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		handlers:  make(map[string]MessageHandler),
		emitter:   emitter,
		store:     store,
		authority: authority,
		clock:     clk,
		validate:  validator.New(),
		logger:    logger,
	}
}

// Register binds handler to contentType, replacing any previous registration.
func (d *Dispatcher) Register(contentType string, handler MessageHandler) {
	d.handlers[contentType] = handler
}

// ContentTypes lists the registered content types.
func (d *Dispatcher) ContentTypes() []string {
	types := make([]string, 0, len(d.handlers))
	for contentType := range d.handlers {
		types = append(types, contentType)
	}
	return types
}

// DecodeEnvelope converts an envelope into an IncomingMessage.
func (d *Dispatcher) DecodeEnvelope(env Envelope) (*domain.IncomingMessage, error) {
	if env.Type != domain.IncomingServiceMessageType {
		return nil, fmt.Errorf("%w: unexpected type %q", domain.ErrMalformedEnvelope, env.Type)
	}
	msg := &domain.IncomingMessage{
		ParcelID:    env.ID,
		SenderID:    env.Source,
		RecipientID: env.Subject,
		ContentType: env.DataContentType,
		Content:     env.Data,
	}
	if err := d.validate.Struct(msg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedEnvelope, err)
	}
	return msg, nil
}

// Dispatch processes one delivery of env.
func (d *Dispatcher) Dispatch(ctx context.Context, env Envelope) TransportInstruction {
	start := time.Now()

	msg, err := d.DecodeEnvelope(env)
	if err != nil {
		d.logger.InfoContext(ctx, "Refused invalid incoming service message", "error", err, "ce_id", env.ID)
		dispatchedMessagesCounter.WithLabelValues("", InstructionReject.String()).Inc()
		return TransportInstruction{Kind: InstructionReject, Message: "Invalid incoming service message"}
	}

	logger := d.logger.With(
		"parcel_id", msg.ParcelID,
		"sender_id", msg.SenderID,
		"recipient_id", msg.RecipientID,
		"content_type", msg.ContentType,
	)

	handler, ok := d.handlers[msg.ContentType]
	if !ok {
		logger.WarnContext(ctx, "Unsupported service message content type")
		dispatchedMessagesCounter.WithLabelValues(unsupportedContentTypeLabel, InstructionReject.String()).Inc()
		return TransportInstruction{Kind: InstructionReject, Message: "Unsupported service message content type"}
	}

	timer := prometheus.NewTimer(dispatchDurationHist.WithLabelValues(msg.ContentType))
	defer timer.ObserveDuration()

	hc := &HandlerContext{
		Logger:           logger,
		Emitter:          d.emitter,
		Store:            d.store,
		AuthorityClients: d.authority,
		Clock:            d.clock,
	}
	outcome := handler.Handle(ctx, msg, hc)
	instruction := d.settle(ctx, outcome, hc)

	dispatchedMessagesCounter.WithLabelValues(msg.ContentType, instruction.Kind.String()).Inc()
	logger.DebugContext(ctx, "Service message processed",
		"outcome", outcome.Kind.String(),
		"reason", outcome.Reason,
		"instruction", instruction.Kind.String(),
		"duration", time.Since(start),
	)
	return instruction
}

// settle flattens a handler outcome into a transport instruction, emitting the reply of a
// rejection first.
func (d *Dispatcher) settle(ctx context.Context, outcome Outcome, hc *HandlerContext) TransportInstruction {
	switch outcome.Kind {
	case OutcomeAcknowledge:
		return TransportInstruction{Kind: InstructionAcknowledge}
	case OutcomeRejectWithReply:
		if outcome.Reply != nil {
			if err := hc.Emitter.Emit(ctx, outcome.Reply); err != nil {
				hc.Logger.ErrorContext(ctx, "Failed to emit rejection reply", "error", err, "reason", outcome.Reason)
				return TransportInstruction{Kind: InstructionRetry}
			}
		}
		return TransportInstruction{Kind: InstructionAcknowledge}
	case OutcomeRetry:
		return TransportInstruction{Kind: InstructionRetry}
	default:
		hc.Logger.ErrorContext(ctx, "Unknown handler outcome", "outcome", int(outcome.Kind))
		return TransportInstruction{Kind: InstructionRetry}
	}
}

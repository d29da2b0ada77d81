// Package nats consumes incoming service messages from a JetStream stream.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/letroapp/letro_server/internal/letro_service/app"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const redeliveryDelay = 5 * time.Second

// Dispatcher is satisfied by *app.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, env app.Envelope) app.TransportInstruction
}

// Delivery is the subset of jetstream.Msg the consumer needs.
type Delivery interface {
	Headers() nats.Header
	Data() []byte
	Ack() error
	NakWithDelay(delay time.Duration) error
	Term() error
}

type ConsumerConfig struct {
	Stream       string
	Subject      string
	ConsumerName string
}

// Consumer feeds JetStream deliveries to the dispatcher and settles them with
// Ack, Nak or Term according to the transport instruction.
type Consumer struct {
	js         jetstream.JetStream
	dispatcher Dispatcher
	cfg        ConsumerConfig
	logger     *slog.Logger
}

func NewConsumer(js jetstream.JetStream, dispatcher Dispatcher, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	return &Consumer{
		js:         js,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger.With("component", "nats_consumer", "stream", cfg.Stream),
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ensureStream(ctx); err != nil {
		return err
	}

	consumer, err := c.js.CreateOrUpdateConsumer(ctx, c.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       c.cfg.ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: c.cfg.Subject,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", c.cfg.ConsumerName, err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		c.HandleDelivery(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming %s: %w", c.cfg.Subject, err)
	}
	c.logger.InfoContext(ctx, "NATS consumer started", "subject", c.cfg.Subject, "consumer", c.cfg.ConsumerName)

	<-ctx.Done()
	consumeCtx.Stop()
	c.logger.Info("NATS consumer stopped")
	return nil
}

func (c *Consumer) ensureStream(ctx context.Context) error {
	_, err := c.js.Stream(ctx, c.cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", c.cfg.Stream, err)
	}
	_, err = c.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:     c.cfg.Stream,
		Subjects: []string{c.cfg.Subject},
	})
	if err != nil && !errors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create stream %s: %w", c.cfg.Stream, err)
	}
	return nil
}

// HandleDelivery dispatches one delivery and settles it.
func (c *Consumer) HandleDelivery(ctx context.Context, msg Delivery) {
	instruction := c.dispatcher.Dispatch(ctx, envelopeFromHeaders(msg.Headers(), msg.Data()))

	var err error
	switch instruction.Kind {
	case app.InstructionAcknowledge:
		err = msg.Ack()
	case app.InstructionReject:
		c.logger.InfoContext(ctx, "Terminating rejected delivery", "reason", instruction.Message)
		err = msg.Term()
	default:
		err = msg.NakWithDelay(redeliveryDelay)
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to settle NATS delivery", "instruction", instruction.Kind.String(), "error", err)
	}
}

func envelopeFromHeaders(headers nats.Header, data []byte) app.Envelope {
	return app.Envelope{
		Type:            header(headers, "ce-type"),
		ID:              header(headers, "ce-id"),
		Source:          header(headers, "ce-source"),
		Subject:         header(headers, "ce-subject"),
		DataContentType: header(headers, "content-type"),
		Data:            data,
	}
}

// header tolerates publishers that canonicalise header names.
func header(headers nats.Header, key string) string {
	if value := headers.Get(key); value != "" {
		return value
	}
	return headers.Get(http.CanonicalHeaderKey(key))
}

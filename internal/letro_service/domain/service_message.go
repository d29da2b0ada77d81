package domain

import (
	"time"

	"github.com/google/uuid"
)

// CloudEvent types used by the Awala Internet Endpoint.
const (
	IncomingServiceMessageType = "tech.relaycorp.awala.endpoint-internet.incoming-service-message"
	OutgoingServiceMessageType = "tech.relaycorp.awala.endpoint-internet.outgoing-service-message"
)

// DefaultOutgoingMessageTTL is how long an outgoing parcel stays valid when no expiry is given.
const DefaultOutgoingMessageTTL = 3 * 30 * 24 * time.Hour

// IncomingMessage is a service message delivered to this server.
type IncomingMessage struct {
	ParcelID    string `validate:"required"`
	SenderID    string `validate:"required"`
	RecipientID string `validate:"required"`
	ContentType string `validate:"required"`
	Content     []byte
}

// OutgoingMessage is a service message to be handed to the Awala endpoint.
type OutgoingMessage struct {
	ParcelID    string
	SenderID    string
	RecipientID string
	ContentType string
	Content     []byte
	Expiry      time.Time
}

// OutgoingMessageOption customises NewOutgoingMessage.
type OutgoingMessageOption func(*OutgoingMessage)

// WithParcelID overrides the generated parcel id.
func WithParcelID(parcelID string) OutgoingMessageOption {
	return func(m *OutgoingMessage) { m.ParcelID = parcelID }
}

// WithExpiry overrides the default expiry.
func WithExpiry(expiry time.Time) OutgoingMessageOption {
	return func(m *OutgoingMessage) { m.Expiry = expiry }
}

// NewOutgoingMessage builds an OutgoingMessage with a fresh parcel id and the default expiry.
func NewOutgoingMessage(senderID, recipientID, contentType string, content []byte, now time.Time, opts ...OutgoingMessageOption) *OutgoingMessage {
	msg := &OutgoingMessage{
		ParcelID:    uuid.NewString(),
		SenderID:    senderID,
		RecipientID: recipientID,
		ContentType: contentType,
		Content:     content,
		Expiry:      now.Add(DefaultOutgoingMessageTTL),
	}
	for _, opt := range opts {
		opt(msg)
	}
	return msg
}

// ReplyTo builds a message from the recipient of incoming back to its sender.
func ReplyTo(incoming *IncomingMessage, contentType string, content []byte, now time.Time) *OutgoingMessage {
	return NewOutgoingMessage(incoming.RecipientID, incoming.SenderID, contentType, content, now)
}

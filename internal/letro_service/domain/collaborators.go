package domain

import (
	"context"
	"time"
)

// MessageEmitter hands outgoing service messages to the Awala Internet Endpoint.
type MessageEmitter interface {
	Emit(ctx context.Context, msg *OutgoingMessage) error
}

// VerifiedSignature is the outcome of a successful VeraId signature verification.
type VerifiedSignature struct {
	// SignerID is "user@org" for users or "org" for organisation bots.
	SignerID string
	// SignerName is empty when the signer is an organisation bot.
	SignerName string
	Plaintext  []byte
}

// IsBot reports whether the signature was produced by an organisation bot.
func (v *VerifiedSignature) IsBot() bool {
	return v.SignerName == ""
}

// SignatureVerifier verifies VeraId signature bundles.
// Invalid bundles yield ErrInvalidSignature; any other error is transient.
type SignatureVerifier interface {
	Verify(ctx context.Context, bundle []byte, serviceOID string, start, end time.Time) (*VerifiedSignature, error)
}

// ConnectionParamsRetriever fetches the connection params of the Internet gateway
// published under an Awala Internet address. Errors implement ClassifiedError.
type ConnectionParamsRetriever interface {
	Retrieve(ctx context.Context, internetAddress string) ([]byte, error)
}

package domain

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrMalformedEnvelope      = errors.New("malformed envelope")
	ErrUnsupportedContentType = errors.New("unsupported content type")
	ErrMalformedContent       = errors.New("malformed content")
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrUnsupportedKey         = errors.New("unsupported public key")
	ErrAllNamesTaken          = errors.New("all user names considered were taken")
)

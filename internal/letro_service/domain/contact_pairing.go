package domain

import (
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// PairingFailureReason explains why a pairing request was refused.
type PairingFailureReason int64

const (
	PairingFailureInvalidRequesterVeraid   PairingFailureReason = 0
	PairingFailureInvalidTargetVeraid      PairingFailureReason = 1
	PairingFailureInvalidRequesterAwalaKey PairingFailureReason = 2
)

func (r PairingFailureReason) String() string {
	switch r {
	case PairingFailureInvalidRequesterVeraid:
		return "INVALID_REQUESTER_VERAID"
	case PairingFailureInvalidTargetVeraid:
		return "INVALID_TARGET_VERAID"
	case PairingFailureInvalidRequesterAwalaKey:
		return "INVALID_REQUESTER_AWALA_KEY"
	default:
		return "UNKNOWN"
	}
}

// ContactPairingRequest is the plaintext signed by the requester's VeraId member key.
type ContactPairingRequest struct {
	// RequesterAwalaEndpointPublicKey is a DER SubjectPublicKeyInfo.
	RequesterAwalaEndpointPublicKey []byte
	TargetVeraidID                  string
}

// ParseContactPairingRequest decodes the DER serialisation of a ContactPairingRequest.
func ParseContactPairingRequest(der []byte) (*ContactPairingRequest, error) {
	input := cryptobyte.String(der)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cbasn1.SEQUENCE) || !input.Empty() {
		return nil, malformed("ContactPairingRequest")
	}

	publicKey, ok := readImplicitSequence(&seq, 0)
	if !ok {
		return nil, malformed("requester Awala endpoint public key")
	}
	target, ok := readImplicitString(&seq, 1)
	if !ok || !seq.Empty() {
		return nil, malformed("target VeraId id")
	}
	return &ContactPairingRequest{
		RequesterAwalaEndpointPublicKey: publicKey,
		TargetVeraidID:                  target,
	}, nil
}

// Marshal returns the DER serialisation of the request.
func (r *ContactPairingRequest) Marshal() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		addImplicitSequence(b, 0, r.RequesterAwalaEndpointPublicKey)
		addImplicitString(b, 1, r.TargetVeraidID)
	})
	return b.Bytes()
}

// ContactPairingFailure is sent back to a requester whose pairing request was refused.
type ContactPairingFailure struct {
	TargetContactVeraid string
	Reason              PairingFailureReason
}

// Marshal returns the DER serialisation of the failure.
func (f *ContactPairingFailure) Marshal() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		addImplicitString(b, 0, f.TargetContactVeraid)
		addImplicitInt64(b, 1, int64(f.Reason))
	})
	return b.Bytes()
}

// ParseContactPairingFailure decodes the DER serialisation of a ContactPairingFailure.
func ParseContactPairingFailure(der []byte) (*ContactPairingFailure, error) {
	input := cryptobyte.String(der)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cbasn1.SEQUENCE) || !input.Empty() {
		return nil, malformed("ContactPairingFailure")
	}
	target, ok := readImplicitString(&seq, 0)
	if !ok {
		return nil, malformed("target contact VeraId id")
	}
	reason, ok := readImplicitInt64(&seq, 1)
	if !ok || !seq.Empty() {
		return nil, malformed("failure reason")
	}
	return &ContactPairingFailure{TargetContactVeraid: target, Reason: PairingFailureReason(reason)}, nil
}

package domain

import (
	"crypto/x509"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// PrivateEndpointConnParams are the Awala parameters a private endpoint shares so that a
// contact can reach it through its Internet gateway.
//
// Only the fields the server needs are decoded; the session key is skipped.
type PrivateEndpointConnParams struct {
	InternetGatewayAddress string
	// IdentityKey is a DER SubjectPublicKeyInfo.
	IdentityKey []byte
	// DeliveryAuth is the leaf Parcel Delivery Authorisation of the certification path.
	DeliveryAuth *x509.Certificate
}

// GranterID is the Awala id of the endpoint that issued the delivery authorisation.
func (p *PrivateEndpointConnParams) GranterID() string {
	return p.DeliveryAuth.Issuer.CommonName
}

// GranteeID is the Awala id of the endpoint authorised to deliver parcels.
func (p *PrivateEndpointConnParams) GranteeID() string {
	return awalaIDFromDER(p.DeliveryAuth.RawSubjectPublicKeyInfo)
}

// ParsePrivateEndpointConnParams decodes the DER serialisation of connection params.
func ParsePrivateEndpointConnParams(der []byte) (*PrivateEndpointConnParams, error) {
	input := cryptobyte.String(der)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cbasn1.SEQUENCE) || !input.Empty() {
		return nil, malformed("PrivateEndpointConnParams")
	}

	address, ok := readImplicitString(&seq, 0)
	if !ok {
		return nil, malformed("Internet gateway address")
	}
	identityKey, ok := readImplicitSequence(&seq, 1)
	if !ok {
		return nil, malformed("identity key")
	}

	var path cryptobyte.String
	if !seq.ReadASN1(&path, constructedContextTag(2)) {
		return nil, malformed("delivery authorisation")
	}
	leafDER, ok := readImplicitSequence(&path, 0)
	if !ok {
		return nil, malformed("delivery authorisation leaf")
	}
	leaf, err := x509.ParseCertificate(leafDER)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid delivery authorisation: %v", ErrMalformedContent, err)
	}

	return &PrivateEndpointConnParams{
		InternetGatewayAddress: address,
		IdentityKey:            identityKey,
		DeliveryAuth:           leaf,
	}, nil
}

// MarshalPrivateEndpointConnParams serialises connection params with an empty CA chain and
// the given session key id and session public key (DER SubjectPublicKeyInfo).
func MarshalPrivateEndpointConnParams(p *PrivateEndpointConnParams, sessionKeyID, sessionPublicKey []byte) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		addImplicitString(b, 0, p.InternetGatewayAddress)
		addImplicitSequence(b, 1, p.IdentityKey)
		b.AddASN1(constructedContextTag(2), func(b *cryptobyte.Builder) {
			addImplicitSequence(b, 0, p.DeliveryAuth.Raw)
			b.AddASN1(constructedContextTag(1), func(*cryptobyte.Builder) {})
		})
		b.AddASN1(constructedContextTag(3), func(b *cryptobyte.Builder) {
			b.AddASN1(contextTag(0), func(b *cryptobyte.Builder) {
				b.AddBytes(sessionKeyID)
			})
			addImplicitSequence(b, 1, sessionPublicKey)
		})
	})
	return b.Bytes()
}

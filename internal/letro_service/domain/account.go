package domain

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// AccountRequest asks the server to create a VeraId member for the given key.
type AccountRequest struct {
	UserName string `validate:"required"`
	Locale   string
	// PublicKey is a DER SubjectPublicKeyInfo.
	PublicKey []byte `validate:"required"`
}

func (r *AccountRequest) marshal() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		addImplicitString(b, 0, r.UserName)
		addImplicitString(b, 1, r.Locale)
		addImplicitSequence(b, 2, r.PublicKey)
	})
	return b.Bytes()
}

func parseAccountRequestContents(seq cryptobyte.String) (*AccountRequest, error) {
	userName, ok := readImplicitString(&seq, 0)
	if !ok {
		return nil, malformed("user name")
	}
	locale, ok := readImplicitString(&seq, 1)
	if !ok {
		return nil, malformed("locale")
	}
	publicKey, ok := readImplicitSequence(&seq, 2)
	if !ok || !seq.Empty() {
		return nil, malformed("public key")
	}
	return &AccountRequest{UserName: userName, Locale: locale, PublicKey: publicKey}, nil
}

// AccountRequestSignature is an AccountRequest signed with its own key.
type AccountRequestSignature struct {
	Request   *AccountRequest
	Signature []byte
}

// SignAccountRequest signs req with signer, whose public key must be req.PublicKey.
func SignAccountRequest(req *AccountRequest, signer crypto.Signer) (*AccountRequestSignature, error) {
	plaintext, err := req.marshal()
	if err != nil {
		return nil, err
	}
	var signature []byte
	switch signer.Public().(type) {
	case *rsa.PublicKey:
		digest := sha256.Sum256(plaintext)
		signature, err = signer.Sign(rand.Reader, digest[:], &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthEqualsHash,
			Hash:       crypto.SHA256,
		})
	case ed25519.PublicKey:
		signature, err = signer.Sign(rand.Reader, plaintext, crypto.Hash(0))
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, signer.Public())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to sign account request: %w", err)
	}
	return &AccountRequestSignature{Request: req, Signature: signature}, nil
}

// ParseAccountRequestSignature decodes the DER serialisation of an AccountRequestSignature.
func ParseAccountRequestSignature(der []byte) (*AccountRequestSignature, error) {
	input := cryptobyte.String(der)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cbasn1.SEQUENCE) || !input.Empty() {
		return nil, malformed("AccountRequestSignature")
	}
	var requestContents cryptobyte.String
	if !seq.ReadASN1(&requestContents, constructedContextTag(0)) {
		return nil, malformed("account request")
	}
	req, err := parseAccountRequestContents(requestContents)
	if err != nil {
		return nil, err
	}
	signature, ok := readImplicitBitString(&seq, 1)
	if !ok || !seq.Empty() {
		return nil, malformed("signature")
	}
	return &AccountRequestSignature{Request: req, Signature: signature}, nil
}

// Marshal returns the DER serialisation of the signed request.
func (s *AccountRequestSignature) Marshal() ([]byte, error) {
	requestDER, err := s.Request.marshal()
	if err != nil {
		return nil, err
	}
	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		addImplicitSequence(b, 0, requestDER)
		addImplicitBitString(b, 1, s.Signature)
	})
	return b.Bytes()
}

// Verify checks the signature against the public key in the request.
// RSA keys use RSA-PSS with SHA-256; Ed25519 keys use pure Ed25519.
func (s *AccountRequestSignature) Verify() error {
	plaintext, err := s.Request.marshal()
	if err != nil {
		return err
	}
	key, err := x509.ParsePKIXPublicKey(s.Request.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedKey, err)
	}
	switch key := key.(type) {
	case *rsa.PublicKey:
		digest := sha256.Sum256(plaintext)
		if err := rsa.VerifyPSS(key, crypto.SHA256, digest[:], s.Signature, nil); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
	case ed25519.PublicKey:
		if !ed25519.Verify(key, plaintext, s.Signature) {
			return ErrInvalidSignature
		}
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}
	return nil
}

// AccountCreation tells the requester which VeraId id was assigned and carries its bundle.
type AccountCreation struct {
	RequestedUserName string
	Locale            string
	AssignedUserID    string
	VeraidBundle      []byte
}

// Marshal returns the DER serialisation of the account creation.
func (c *AccountCreation) Marshal() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		addImplicitString(b, 0, c.RequestedUserName)
		addImplicitString(b, 1, c.Locale)
		addImplicitString(b, 2, c.AssignedUserID)
		b.AddASN1(contextTag(3), func(b *cryptobyte.Builder) {
			b.AddBytes(c.VeraidBundle)
		})
	})
	return b.Bytes()
}

// ParseAccountCreation decodes the DER serialisation of an AccountCreation.
func ParseAccountCreation(der []byte) (*AccountCreation, error) {
	input := cryptobyte.String(der)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cbasn1.SEQUENCE) || !input.Empty() {
		return nil, malformed("AccountCreation")
	}
	var c AccountCreation
	var ok bool
	if c.RequestedUserName, ok = readImplicitString(&seq, 0); !ok {
		return nil, malformed("requested user name")
	}
	if c.Locale, ok = readImplicitString(&seq, 1); !ok {
		return nil, malformed("locale")
	}
	if c.AssignedUserID, ok = readImplicitString(&seq, 2); !ok {
		return nil, malformed("assigned user id")
	}
	if c.VeraidBundle, ok = readImplicitOctetString(&seq, 3); !ok || !seq.Empty() {
		return nil, malformed("VeraId bundle")
	}
	return &c, nil
}

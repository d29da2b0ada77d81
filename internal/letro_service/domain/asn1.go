package domain

import (
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// Letro schemas are SEQUENCEs whose fields use IMPLICIT context-specific tags.

func contextTag(n uint8) cbasn1.Tag {
	return cbasn1.Tag(n).ContextSpecific()
}

func constructedContextTag(n uint8) cbasn1.Tag {
	return cbasn1.Tag(n).ContextSpecific().Constructed()
}

func malformed(what string) error {
	return fmt.Errorf("%w: invalid %s", ErrMalformedContent, what)
}

// readImplicitSequence reads a [n] IMPLICIT SEQUENCE field and returns it re-tagged as a
// universal SEQUENCE, for use with parsers such as x509.ParsePKIXPublicKey.
func readImplicitSequence(s *cryptobyte.String, n uint8) ([]byte, bool) {
	var contents cryptobyte.String
	if !s.ReadASN1(&contents, constructedContextTag(n)) {
		return nil, false
	}
	return retagAsSequence(contents)
}

func retagAsSequence(contents []byte) ([]byte, bool) {
	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddBytes(contents)
	})
	out, err := b.Bytes()
	return out, err == nil
}

// addImplicitSequence adds a DER SEQUENCE under [n] IMPLICIT.
func addImplicitSequence(b *cryptobyte.Builder, n uint8, sequenceDER []byte) {
	input := cryptobyte.String(sequenceDER)
	var contents cryptobyte.String
	if !input.ReadASN1(&contents, cbasn1.SEQUENCE) || !input.Empty() {
		b.SetError(malformed("SEQUENCE"))
		return
	}
	b.AddASN1(constructedContextTag(n), func(b *cryptobyte.Builder) {
		b.AddBytes(contents)
	})
}

func readImplicitString(s *cryptobyte.String, n uint8) (string, bool) {
	var contents cryptobyte.String
	if !s.ReadASN1(&contents, contextTag(n)) {
		return "", false
	}
	return string(contents), true
}

func addImplicitString(b *cryptobyte.Builder, n uint8, value string) {
	b.AddASN1(contextTag(n), func(b *cryptobyte.Builder) {
		b.AddBytes([]byte(value))
	})
}

func readImplicitOctetString(s *cryptobyte.String, n uint8) ([]byte, bool) {
	var contents cryptobyte.String
	if !s.ReadASN1(&contents, contextTag(n)) {
		return nil, false
	}
	return append([]byte(nil), contents...), true
}

func readImplicitInt64(s *cryptobyte.String, n uint8) (int64, bool) {
	var contents cryptobyte.String
	if !s.ReadASN1(&contents, contextTag(n)) {
		return 0, false
	}
	var b cryptobyte.Builder
	b.AddASN1(cbasn1.INTEGER, func(b *cryptobyte.Builder) {
		b.AddBytes(contents)
	})
	der, err := b.Bytes()
	if err != nil {
		return 0, false
	}
	input := cryptobyte.String(der)
	var value int64
	return value, input.ReadASN1Integer(&value)
}

func addImplicitInt64(b *cryptobyte.Builder, n uint8, value int64) {
	var inner cryptobyte.Builder
	inner.AddASN1Int64(value)
	der, err := inner.Bytes()
	if err != nil {
		b.SetError(err)
		return
	}
	input := cryptobyte.String(der)
	var contents cryptobyte.String
	input.ReadASN1(&contents, cbasn1.INTEGER)
	b.AddASN1(contextTag(n), func(b *cryptobyte.Builder) {
		b.AddBytes(contents)
	})
}

// readImplicitBitString returns the bytes of a [n] IMPLICIT BIT STRING with no unused bits.
func readImplicitBitString(s *cryptobyte.String, n uint8) ([]byte, bool) {
	var contents cryptobyte.String
	if !s.ReadASN1(&contents, contextTag(n)) {
		return nil, false
	}
	var unusedBits uint8
	if !contents.ReadUint8(&unusedBits) || unusedBits != 0 {
		return nil, false
	}
	return append([]byte(nil), contents...), true
}

func addImplicitBitString(b *cryptobyte.Builder, n uint8, value []byte) {
	b.AddASN1(contextTag(n), func(b *cryptobyte.Builder) {
		b.AddUint8(0)
		b.AddBytes(value)
	})
}

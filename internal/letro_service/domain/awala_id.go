package domain

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
)

// AwalaIDFromPublicKeyDER computes the Awala id of a DER-encoded SubjectPublicKeyInfo.
// Only RSA identity keys are accepted.
func AwalaIDFromPublicKeyDER(spkiDER []byte) (string, error) {
	key, err := x509.ParsePKIXPublicKey(spkiDER)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedKey, err)
	}
	if _, ok := key.(*rsa.PublicKey); !ok {
		return "", fmt.Errorf("%w: %T is not an RSA key", ErrUnsupportedKey, key)
	}
	return awalaIDFromDER(spkiDER), nil
}

func awalaIDFromDER(spkiDER []byte) string {
	digest := sha256.Sum256(spkiDER)
	return "0" + hex.EncodeToString(digest[:])
}

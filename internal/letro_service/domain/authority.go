package domain

import (
	"context"
	"errors"
)

// ErrConflict is matched by Authority errors caused by a resource that already exists.
var ErrConflict = errors.New("conflict")

// MemberRole of a VeraId organisation member.
type MemberRole string

const (
	MemberRoleRegular MemberRole = "REGULAR"
	MemberRoleAdmin   MemberRole = "ORG_ADMIN"
)

// MemberCreation is returned by the Authority when a member is created.
type MemberCreation struct {
	Self                  string `json:"self"`
	PublicKeys            string `json:"public-keys"`
	PublicKeyImportTokens string `json:"public-key-import-tokens"`
}

// MemberPublicKeyImport is returned by the Authority when a member key is imported.
type MemberPublicKeyImport struct {
	Self   string `json:"self"`
	Bundle string `json:"bundle"`
}

// AuthorityClient talks to the VeraId Authority API. Endpoints are paths relative to the API root.
type AuthorityClient interface {
	CreateMember(ctx context.Context, endpoint, name string, role MemberRole) (*MemberCreation, error)
	ImportMemberPublicKey(ctx context.Context, endpoint string, publicKeyDER []byte, serviceOID string) (*MemberPublicKeyImport, error)
	RetrieveRaw(ctx context.Context, endpoint string) ([]byte, error)
	Delete(ctx context.Context, endpoint string) error
}

// AuthorityClientMaker builds authenticated Authority clients.
type AuthorityClientMaker interface {
	Make(ctx context.Context) (AuthorityClient, error)
}

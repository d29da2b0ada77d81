package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"

	"github.com/letroapp/letro_server/internal/letro_service/domain"
)

const (
	maxUserCreationAttempts = 3
	maxUserNameSuffixBytes  = 3
)

var publicKeyPathRegex = regexp.MustCompile(`^/orgs/[^/]+/members/[^/]+/public-keys/(?P<publicKeyID>.+)$`)

// UserCreation is the result of a successful VeraId user creation.
type UserCreation struct {
	UserName    string
	Bundle      []byte
	PublicKeyID string
}

// UserCreator creates VeraId members in three steps: member creation, key import and
// bundle retrieval. If a later step fails, the member is deleted again.
type UserCreator struct {
	client domain.AuthorityClient
	logger *slog.Logger
}

func NewUserCreator(client domain.AuthorityClient, logger *slog.Logger) *UserCreator {
	return &UserCreator{client: client, logger: logger}
}

// CreateUser creates preferredName in org, or a suffixed variant of it if the name is taken.
func (c *UserCreator) CreateUser(ctx context.Context, preferredName, org string, publicKeyDER []byte) (*UserCreation, error) {
	userName, member, err := c.createMemberWithRetries(ctx, preferredName, org)
	if err != nil {
		return nil, err
	}

	publicKeyID, bundle, err := c.issueBundle(ctx, member, publicKeyDER)
	if err != nil {
		if deleteErr := c.client.Delete(ctx, member.Self); deleteErr != nil {
			c.logger.ErrorContext(ctx, "Failed to delete incomplete VeraId user",
				"error", deleteErr,
				"member_endpoint", member.Self,
			)
		}
		return nil, fmt.Errorf("failed to complete user creation: %w", err)
	}

	return &UserCreation{UserName: userName, Bundle: bundle, PublicKeyID: publicKeyID}, nil
}

func (c *UserCreator) createMemberWithRetries(ctx context.Context, preferredName, org string) (string, *domain.MemberCreation, error) {
	endpoint := orgMembersEndpoint(org)
	for attempt := 1; attempt <= maxUserCreationAttempts; attempt++ {
		userName := preferredName
		if attempt > 1 {
			userName = addUserNameSuffix(preferredName)
		}

		member, err := c.client.CreateMember(ctx, endpoint, userName, domain.MemberRoleRegular)
		if err == nil {
			c.logger.DebugContext(ctx, "User created in VeraId Authority", "user_name", userName)
			return userName, member, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return "", nil, fmt.Errorf("failed to create user: %w", err)
		}

		userNameConflictsCounter.Inc()
		c.logger.DebugContext(ctx, "User name taken; will try adding a random suffix", "user_name", userName)
	}
	return "", nil, domain.ErrAllNamesTaken
}

func (c *UserCreator) issueBundle(ctx context.Context, member *domain.MemberCreation, publicKeyDER []byte) (string, []byte, error) {
	keyImport, err := c.client.ImportMemberPublicKey(ctx, member.PublicKeys, publicKeyDER, domain.LetroServiceOID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to import public key: %w", err)
	}

	match := publicKeyPathRegex.FindStringSubmatch(keyImport.Self)
	if match == nil {
		c.logger.ErrorContext(ctx, "Failed to extract public key id", "public_key_path", keyImport.Self)
		return "", nil, fmt.Errorf("failed to extract public key id from %q", keyImport.Self)
	}
	c.logger.DebugContext(ctx, "Public key imported in VeraId Authority")

	bundle, err := c.client.RetrieveRaw(ctx, keyImport.Bundle)
	if err != nil {
		return "", nil, fmt.Errorf("failed to retrieve bundle: %w", err)
	}
	return match[1], bundle, nil
}

// addUserNameSuffix appends 1 to 3 random bytes in hex.
func addUserNameSuffix(name string) string {
	length := 1
	if n, err := rand.Int(rand.Reader, big.NewInt(maxUserNameSuffixBytes)); err == nil {
		length += int(n.Int64())
	}
	suffix := make([]byte, length)
	_, _ = rand.Read(suffix)
	return name + "-" + hex.EncodeToString(suffix)
}

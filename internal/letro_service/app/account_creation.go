package app

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/letroapp/letro_server/internal/letro_service/domain"
)

// AccountCreationHandler creates a VeraId user for a signed account request and replies
// with the assigned id and its member bundle.
type AccountCreationHandler struct {
	orgs     *OrgDirectory
	validate *validator.Validate
}

func NewAccountCreationHandler(orgs *OrgDirectory) *AccountCreationHandler {
	return &AccountCreationHandler{orgs: orgs, validate: validator.New()}
}

func (h *AccountCreationHandler) Handle(ctx context.Context, msg *domain.IncomingMessage, hc *HandlerContext) Outcome {
	signed, err := domain.ParseAccountRequestSignature(msg.Content)
	if err == nil {
		err = h.validate.Struct(signed.Request)
	}
	if err != nil {
		hc.Logger.InfoContext(ctx, "Refused malformed account creation request", "error", err)
		accountCreationsCounter.WithLabelValues("malformed").Inc()
		return Acknowledge()
	}
	if err := signed.Verify(); err != nil {
		hc.Logger.InfoContext(ctx, "Refused account creation request with invalid signature", "error", err)
		accountCreationsCounter.WithLabelValues("invalid_signature").Inc()
		return Acknowledge()
	}

	request := signed.Request
	userName := SanitiseUserName(request.UserName)
	org := h.orgs.DomainForLocale(request.Locale)
	logger := hc.Logger.With("requested_user_name", request.UserName, "org", org)

	client, err := hc.AuthorityClients.Make(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialise VeraId Authority client", "error", err)
		accountCreationsCounter.WithLabelValues("error").Inc()
		return Retry("authority_client")
	}

	creation, err := NewUserCreator(client, logger).CreateUser(ctx, userName, org, request.PublicKey)
	if err != nil {
		// A later attempt may pick different suffixes, so even exhausted names are retried.
		if errors.Is(err, domain.ErrAllNamesTaken) {
			logger.WarnContext(ctx, "Failed to find an available user name", "user_name", userName)
		} else {
			logger.ErrorContext(ctx, "Failed to create VeraId user", "error", err)
		}
		accountCreationsCounter.WithLabelValues("error").Inc()
		return Retry("user_creation")
	}

	assignedUserID := creation.UserName + "@" + org
	content, err := (&domain.AccountCreation{
		RequestedUserName: request.UserName,
		Locale:            request.Locale,
		AssignedUserID:    assignedUserID,
		VeraidBundle:      creation.Bundle,
	}).Marshal()
	if err != nil {
		logger.ErrorContext(ctx, "Failed to serialise account creation", "error", err)
		return Retry("serialisation")
	}

	reply := domain.ReplyTo(msg, domain.ContentTypeAccountCreated, content, hc.Clock.Now())
	if err := hc.Emitter.Emit(ctx, reply); err != nil {
		logger.ErrorContext(ctx, "Failed to emit account creation", "error", err, "assigned_user_id", assignedUserID)
		return Retry("emit")
	}

	logger.InfoContext(ctx, "Account created", "assigned_user_id", assignedUserID, "public_key_id", creation.PublicKeyID)
	accountCreationsCounter.WithLabelValues("created").Inc()
	return Acknowledge()
}

package app

import (
	"context"
	"errors"

	"github.com/letroapp/letro_server/internal/letro_service/domain"
)

// ContactPairingHandler matches mutual contact pairing requests.
//
// The request is always stored before looking for its counterpart, so two halves that
// arrive at the same time cannot both miss each other.
type ContactPairingHandler struct {
	verifier domain.SignatureVerifier
}

func NewContactPairingHandler(verifier domain.SignatureVerifier) *ContactPairingHandler {
	return &ContactPairingHandler{verifier: verifier}
}

type signedPairingRequest struct {
	requesterID    string
	requesterName  string
	requesterIDKey []byte
	targetID       string
}

func (h *ContactPairingHandler) Handle(ctx context.Context, msg *domain.IncomingMessage, hc *HandlerContext) Outcome {
	now := hc.Clock.Now()
	verification, err := h.verifier.Verify(ctx, msg.Content, domain.LetroServiceOID, now.Add(-domain.PairingRequestTTL), now)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSignature) {
			hc.Logger.InfoContext(ctx, "Refused invalid VeraId signature bundle for contact pairing request", "error", err)
			return Acknowledge()
		}
		hc.Logger.ErrorContext(ctx, "Failed to verify VeraId signature bundle", "error", err)
		return DecideFailure(err, nil)
	}

	request, err := domain.ParseContactPairingRequest(verification.Plaintext)
	if err != nil {
		hc.Logger.InfoContext(ctx, "Refused malformed contact pairing request", "error", err)
		return Acknowledge()
	}
	signed := signedPairingRequest{
		requesterID:    verification.SignerID,
		requesterName:  verification.SignerName,
		requesterIDKey: request.RequesterAwalaEndpointPublicKey,
		targetID:       request.TargetVeraidID,
	}

	if outcome, ok := h.validate(ctx, signed, msg, hc); !ok {
		pairingEventsCounter.WithLabelValues("refused").Inc()
		return outcome
	}

	logger := hc.Logger.With("requester_veraid_id", signed.requesterID, "target_veraid_id", signed.targetID)
	key := domain.PairingKey{RequesterID: signed.requesterID, TargetID: signed.targetID}

	completed, err := h.isCompleted(ctx, hc, msg.ParcelID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to check whether the pairing request was already matched", "error", err)
		return Retry("store_completed")
	}
	if completed {
		if err := h.clearCompleted(ctx, hc, key, key.Mirror()); err != nil {
			logger.ErrorContext(ctx, "Failed to clear matched contact pairing requests", "error", err)
			return Retry("store_delete")
		}
		logger.DebugContext(ctx, "Ignored redelivery of an already matched contact request", "parcel_id", msg.ParcelID)
		return Acknowledge()
	}

	if err := hc.Store.Upsert(ctx, &domain.PairingRequest{
		RequesterID:         signed.requesterID,
		TargetID:            signed.targetID,
		ParcelID:            msg.ParcelID,
		RequesterEndpointID: msg.SenderID,
		RequesterIDKey:      signed.requesterIDKey,
		SignatureBundle:     msg.Content,
		CreatedAt:           now,
	}); err != nil {
		logger.ErrorContext(ctx, "Failed to store contact pairing request", "error", err)
		return Retry("store_upsert")
	}

	counterpart, err := hc.Store.FindOne(ctx, key.Mirror())
	if errors.Is(err, domain.ErrNotFound) {
		logger.DebugContext(ctx, "Contact request created or updated")
		pairingEventsCounter.WithLabelValues("stored").Inc()
		return Acknowledge()
	}
	if err != nil {
		logger.ErrorContext(ctx, "Failed to look up matching contact pairing request", "error", err)
		return Retry("store_find")
	}

	// Each party gets the other's signed request. Both parcels are recorded as matched
	// before the pending rows are deleted.
	if err := h.sendMatch(ctx, hc, msg.SenderID, counterpart.SignatureBundle, msg.RecipientID); err != nil {
		logger.ErrorContext(ctx, "Failed to complete contact pairing for requester", "error", err)
		return Retry("match_requester")
	}
	if err := h.sendMatch(ctx, hc, counterpart.RequesterEndpointID, msg.Content, msg.RecipientID); err != nil {
		logger.ErrorContext(ctx, "Failed to complete contact pairing for counterpart", "error", err)
		return Retry("match_counterpart")
	}
	if parcelIDs := nonEmpty(msg.ParcelID, counterpart.ParcelID); len(parcelIDs) > 0 {
		if err := hc.Store.MarkCompleted(ctx, parcelIDs, now); err != nil {
			logger.ErrorContext(ctx, "Failed to record matched contact pairing parcels", "error", err)
			return Retry("store_completed")
		}
	}
	for _, k := range []domain.PairingKey{key, key.Mirror()} {
		if err := hc.Store.Delete(ctx, k); err != nil {
			logger.ErrorContext(ctx, "Failed to delete matched contact pairing request", "error", err)
			return Retry("store_delete")
		}
	}

	logger.InfoContext(ctx, "Contact request matched", "counterpart_endpoint_id", counterpart.RequesterEndpointID)
	pairingEventsCounter.WithLabelValues("matched").Inc()
	return Acknowledge()
}

func (h *ContactPairingHandler) sendMatch(ctx context.Context, hc *HandlerContext, peerEndpointID string, counterpartBundle []byte, ownEndpointID string) error {
	reply := domain.NewOutgoingMessage(ownEndpointID, peerEndpointID, domain.ContentTypePairingRequest, counterpartBundle, hc.Clock.Now())
	if err := hc.Emitter.Emit(ctx, reply); err != nil {
		return err
	}
	hc.Logger.DebugContext(ctx, "Pairing match sent", "peer_id", peerEndpointID, "reply_parcel_id", reply.ParcelID)
	return nil
}

func (h *ContactPairingHandler) isCompleted(ctx context.Context, hc *HandlerContext, parcelID string) (bool, error) {
	if parcelID == "" {
		return false, nil
	}
	return hc.Store.IsCompleted(ctx, parcelID)
}

// clearCompleted deletes pending rows left behind by an interrupted match. Rows stored
// by a newer parcel are kept.
func (h *ContactPairingHandler) clearCompleted(ctx context.Context, hc *HandlerContext, keys ...domain.PairingKey) error {
	for _, key := range keys {
		row, err := hc.Store.FindOne(ctx, key)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		completed, err := h.isCompleted(ctx, hc, row.ParcelID)
		if err != nil {
			return err
		}
		if !completed {
			continue
		}
		if err := hc.Store.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (h *ContactPairingHandler) validate(ctx context.Context, signed signedPairingRequest, msg *domain.IncomingMessage, hc *HandlerContext) (Outcome, bool) {
	if signed.requesterName == "" {
		hc.Logger.InfoContext(ctx, "Refused contact pairing request from a VeraId org bot", "requester_veraid_id", signed.requesterID)
		return h.refuse(ctx, signed.targetID, domain.PairingFailureInvalidRequesterVeraid, msg, hc), false
	}

	logger := hc.Logger.With("requester_veraid_id", signed.requesterID, "target_veraid_id", signed.targetID)

	expectedSenderID, err := domain.AwalaIDFromPublicKeyDER(signed.requesterIDKey)
	if err != nil || expectedSenderID != msg.SenderID {
		logger.InfoContext(ctx, "Refused pairing request due to mismatching Awala endpoint key from sender", "error", err)
		return h.refuse(ctx, signed.targetID, domain.PairingFailureInvalidRequesterAwalaKey, msg, hc), false
	}

	if !domain.IsValidVeraidUserID(signed.targetID) {
		logger.InfoContext(ctx, "Refused pairing request because the target is not a VeraId user id")
		return h.refuse(ctx, signed.targetID, domain.PairingFailureInvalidTargetVeraid, msg, hc), false
	}

	return Outcome{}, true
}

func (h *ContactPairingHandler) refuse(ctx context.Context, targetID string, reason domain.PairingFailureReason, msg *domain.IncomingMessage, hc *HandlerContext) Outcome {
	failure := &domain.ContactPairingFailure{TargetContactVeraid: targetID, Reason: reason}
	content, err := failure.Marshal()
	if err != nil {
		hc.Logger.ErrorContext(ctx, "Failed to serialise contact pairing failure", "error", err)
		return Acknowledge()
	}
	reply := domain.ReplyTo(msg, domain.ContentTypePairingFailure, content, hc.Clock.Now())
	return RejectWithReply(reason.String(), reply)
}

// Package emitter hands outgoing service messages to the Awala Internet Endpoint
// as binary-mode CloudEvents.
package emitter

import (
	"time"

	"github.com/letroapp/letro_server/internal/letro_service/domain"
)

const cloudEventsSpecVersion = "1.0"

// Attribute names shared by every binding; each binding adds its own prefix.
const (
	attrSpecVersion = "specversion"
	attrType        = "type"
	attrID          = "id"
	attrSource      = "source"
	attrSubject     = "subject"
	attrExpiry      = "expiry"
)

type attribute struct {
	name  string
	value string
}

func cloudEventAttributes(msg *domain.OutgoingMessage) []attribute {
	return []attribute{
		{attrSpecVersion, cloudEventsSpecVersion},
		{attrType, domain.OutgoingServiceMessageType},
		{attrID, msg.ParcelID},
		{attrSource, msg.SenderID},
		{attrSubject, msg.RecipientID},
		{attrExpiry, msg.Expiry.UTC().Format(time.RFC3339)},
	}
}

package app

import (
	"github.com/letroapp/letro_server/internal/letro_service/domain"
)

// OutcomeKind is the result of handling one incoming message.
type OutcomeKind int

const (
	// OutcomeAcknowledge means processing is complete, whether or not anything useful happened.
	OutcomeAcknowledge OutcomeKind = iota
	// OutcomeRetry means a transient condition prevented completion.
	OutcomeRetry
	// OutcomeRejectWithReply means the message was refused permanently and the sender is told why.
	OutcomeRejectWithReply
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAcknowledge:
		return "acknowledge"
	case OutcomeRetry:
		return "retry"
	case OutcomeRejectWithReply:
		return "reject_with_reply"
	default:
		return "unknown"
	}
}

// Outcome is returned by every MessageHandler.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
	// Reply is emitted by the dispatcher for OutcomeRejectWithReply.
	Reply *domain.OutgoingMessage
}

func Acknowledge() Outcome {
	return Outcome{Kind: OutcomeAcknowledge}
}

func Retry(reason string) Outcome {
	return Outcome{Kind: OutcomeRetry, Reason: reason}
}

func RejectWithReply(reason string, reply *domain.OutgoingMessage) Outcome {
	return Outcome{Kind: OutcomeRejectWithReply, Reason: reason, Reply: reply}
}

// DecideFailure is the shared decision table for failed external calls.
//
//	transient infra         -> retry
//	permanent absent        -> reject with reply
//	permanent malformed     -> reject with reply
//	transient server error  -> retry
//
// A permanent failure without a reply is acknowledged.
func DecideFailure(err error, reply *domain.OutgoingMessage) Outcome {
	class := domain.ClassifyFailure(err)
	if class.IsTransient() {
		return Retry(class.String())
	}
	if reply == nil {
		return Outcome{Kind: OutcomeAcknowledge, Reason: class.String()}
	}
	return RejectWithReply(class.String(), reply)
}

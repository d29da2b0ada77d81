package domain

import "errors"

// FailureClass classifies the failure of a call to an external collaborator.
type FailureClass int

const (
	// FailureTransientInfra covers unreachable resolvers, connection errors and timeouts.
	FailureTransientInfra FailureClass = iota
	// FailurePermanentAbsent means the external record does not exist.
	FailurePermanentAbsent
	// FailurePermanentMalformed means the peer answered with something we can never use.
	FailurePermanentMalformed
	// FailureTransientServer means the peer answered with a server error.
	FailureTransientServer
)

func (c FailureClass) String() string {
	switch c {
	case FailureTransientInfra:
		return "transient_infra"
	case FailurePermanentAbsent:
		return "permanent_absent"
	case FailurePermanentMalformed:
		return "permanent_malformed"
	case FailureTransientServer:
		return "transient_server_error"
	default:
		return "unknown"
	}
}

// IsTransient reports whether the same call may succeed later.
func (c FailureClass) IsTransient() bool {
	return c == FailureTransientInfra || c == FailureTransientServer
}

// ClassifiedError is implemented by errors that know their FailureClass.
type ClassifiedError interface {
	error
	FailureClass() FailureClass
}

// ClassifyFailure returns the class of err. Unclassified errors are treated as
// transient infrastructure failures so that they are retried rather than dropped.
func ClassifyFailure(err error) FailureClass {
	var classified ClassifiedError
	if errors.As(err, &classified) {
		return classified.FailureClass()
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return FailurePermanentAbsent
	case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrMalformedContent):
		return FailurePermanentMalformed
	default:
		return FailureTransientInfra
	}
}

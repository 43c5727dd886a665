// Package errors provides the structured error type shared by the backend and relay.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Request shape
	CodeValidationFailed Code = "VALIDATION_FAILED"
	CodeUnknownCommand   Code = "UNKNOWN_COMMAND"

	// Ordering and versioning
	CodeOrderingStale  Code = "ORDERING_STALE"
	CodeOutdatedClient Code = "OUTDATED_CLIENT"

	// Trust
	CodePermissionDenied      Code = "PERMISSION_DENIED"
	CodePermissionRateLimited Code = "PERMISSION_RATE_LIMITED"

	// Execution
	CodePlayerBusy    Code = "PLAYER_BUSY"
	CodeCommandFailed Code = "COMMAND_FAILED"
	CodeNotFound      Code = "NOT_FOUND"

	// Relay-side soft failures
	CodeNoConsensus     Code = "NO_CONSENSUS"
	CodeTransportFailed Code = "TRANSPORT_FAILED"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeValidationFailed,
		CodeUnknownCommand:
		return codes.InvalidArgument

	case CodeOrderingStale,
		CodeOutdatedClient,
		CodeNoConsensus:
		return codes.FailedPrecondition

	case CodePermissionDenied:
		return codes.PermissionDenied

	case CodePermissionRateLimited:
		return codes.ResourceExhausted

	case CodePlayerBusy,
		CodeTransportFailed:
		return codes.Unavailable

	case CodeNotFound:
		return codes.NotFound

	default:
		return codes.Internal
	}
}

// Retryable reports whether a caller may retry the same request unchanged.
// Ordering failures are never retryable: the same timestamp always fails again.
func (c Code) Retryable() bool {
	switch c {
	case CodePlayerBusy, CodeTransportFailed:
		return true
	default:
		return false
	}
}

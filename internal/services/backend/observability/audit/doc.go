// Package audit writes one durable audit event per backend command invocation.
//
// Audit events are for security posture and incident analysis; tracing still goes
// through package internal/platform/otel.
package audit

// Event names.
const (
	// EventCommandRun is recorded for every RunCommand call, successful or not.
	EventCommandRun = "command.run"
)

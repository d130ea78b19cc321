package dispatch

import "errors"

// Error taxonomy. WorkerTransportError is defined in internal/transport
// (TransportError) and handled in internal/session, since the core dispatch
// engine never touches the wire; the two kinds below belong to the engine.
var (
	// ErrPreconditionViolation marks a call that violates a documented
	// precondition of the dispatch engine. JobManager.Submit returns it,
	// wrapped with more context via fmt.Errorf("%w: ..."), when called after
	// Close. A getJob with no job available panics instead, and a result or
	// return for a set that is already done is dropped silently.
	ErrPreconditionViolation = errors.New("dispatch: precondition violation")

	// ErrManagerClosed names the condition of an operation arriving after
	// the JobManager has closed. No JobManager method returns it:
	// RequestJob, ReportResult and Requeue drop such calls silently, and
	// Submit returns ErrPreconditionViolation.
	ErrManagerClosed = errors.New("dispatch: manager closed")
)

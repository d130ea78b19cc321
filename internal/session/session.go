// Package session implements the per-connection worker state machine: one
// goroutine per accepted TCP connection, driving that worker through
// request-job / write-call / read-response / report-result in a loop until
// the connection closes or the manager shuts down.
//
// This mirrors the teacher's one-goroutine-per-worker design in
// internal/worker.Worker.Run, adapted from a local task channel fed by a
// JobSource to a remote line-JSON round trip fed by dispatch.JobManager.
package session

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ChuLiYu/beaver-queue/internal/dispatch"
	"github.com/ChuLiYu/beaver-queue/internal/transport"
	"github.com/google/uuid"
)

// metricsSink is the subset of metrics.Collector a session reports to.
// Declared locally so internal/session does not import internal/metrics
// just to accept an optional observer — any value satisfying this
// interface works, including a nil *metrics.Collector handled by callers.
type metricsSink interface {
	RecordDispatch()
	RecordCompleted(latencySeconds float64)
	RecordRequeued()
}

// State is the worker session's position in the state table from spec.md's
// WorkerSession description.
type State int

const (
	// Idle: no outstanding request_job call and no job in hand.
	Idle State = iota
	// RequestingJob: request_job has been called, waiting on the callback.
	RequestingJob
	// AwaitingResponse: a job was handed to this session and its call
	// payload is in flight to the worker; waiting on the response line.
	AwaitingResponse
	// Closed: terminal. No further transitions.
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case RequestingJob:
		return "requesting_job"
	case AwaitingResponse:
		return "awaiting_response"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session drives one worker connection. jobCh carries a job handed to this
// session by JobManager.RequestJob's callback across to the Run loop's
// goroutine; the callback itself must never block or touch the network, so
// it only performs a buffered, non-blocking send here.
type Session struct {
	ID      string
	conn    *transport.Conn
	manager *dispatch.JobManager
	logger  *slog.Logger
	metrics metricsSink

	jobCh chan dispatch.Job

	mu          sync.Mutex
	state       State
	onHand      dispatch.Job
	dispatchedAt time.Time
}

// New wraps an accepted connection as a Session ready to Run. The session
// has no metrics sink until WithMetrics attaches one; without it,
// dispatch/completion/requeue events are not recorded.
func New(conn *transport.Conn, manager *dispatch.JobManager, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Session{
		ID:      id,
		conn:    conn,
		manager: manager,
		logger:  logger.With("session_id", id, "remote_addr", conn.RemoteAddr().String()),
		jobCh:   make(chan dispatch.Job, 1),
		state:   Idle,
	}
}

// WithMetrics attaches a metrics sink, returning the session for chaining.
// Must be called before Run.
func (s *Session) WithMetrics(m metricsSink) *Session {
	s.metrics = m
	return s
}

// Run drives the session's full lifecycle: request a job, send its call
// payload, wait for the response, report the result, and repeat — until
// the connection fails or Close is called from another goroutine. Run
// returns once the session reaches Closed.
func (s *Session) Run() {
	defer s.finish()
	for {
		job, ok := s.awaitJob()
		if !ok {
			return
		}

		s.setOnHand(job)
		if s.metrics != nil {
			s.metrics.RecordDispatch()
		}

		if err := s.conn.WriteLine(job.Call()); err != nil {
			s.logger.Warn("write call payload failed, requeuing", "error", err)
			s.requeueOnHand()
			return
		}

		var raw json.RawMessage
		if err := s.conn.ReadLine(&raw); err != nil {
			s.logger.Warn("read response failed, requeuing", "error", err)
			s.requeueOnHand()
			return
		}

		result := job.Result(raw)
		latency := s.clearOnHand()
		if s.metrics != nil {
			s.metrics.RecordCompleted(latency.Seconds())
		}
		s.manager.ReportResult(job, result)
	}
}

// awaitJob transitions Idle -> RequestingJob, calls RequestJob, and blocks
// for either the job arriving on jobCh or the session having been closed
// out from under it in the meantime.
func (s *Session) awaitJob() (dispatch.Job, bool) {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return nil, false
	}
	s.state = RequestingJob
	s.mu.Unlock()

	s.manager.RequestJob(func(j dispatch.Job) {
		// Runs on JobManager's run-loop goroutine: must not block. If the
		// session already closed, send would have no receiver waiting
		// forever, so fall back to requeuing the job instead. Requeue is
		// issued from a new goroutine because calling it here, on the
		// manager's own goroutine, would wait on itself.
		s.mu.Lock()
		closed := s.state == Closed
		s.mu.Unlock()
		if closed {
			go s.manager.Requeue(j)
			return
		}
		select {
		case s.jobCh <- j:
		default:
			go s.manager.Requeue(j)
		}
	})

	job := <-s.jobCh
	if job == nil {
		// Close's wake-up sentinel: no job was ever handed to this
		// session on this round, so there is nothing to requeue.
		return nil, false
	}

	s.mu.Lock()
	closed := s.state == Closed
	s.mu.Unlock()
	if closed {
		// Close ran after the callback already sent us a job but before
		// we observed it here; the job is real and must go back into
		// circulation.
		s.manager.Requeue(job)
		return nil, false
	}
	return job, true
}

func (s *Session) setOnHand(job dispatch.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = AwaitingResponse
	s.onHand = job
	s.dispatchedAt = time.Now()
}

// clearOnHand retires the in-hand job and returns how long it was
// outstanding, for the caller to report as dispatch latency.
func (s *Session) clearOnHand() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Idle
	s.onHand = nil
	return time.Since(s.dispatchedAt)
}

func (s *Session) requeueOnHand() {
	s.mu.Lock()
	job := s.onHand
	s.onHand = nil
	s.mu.Unlock()
	if job != nil {
		if s.metrics != nil {
			s.metrics.RecordRequeued()
		}
		s.manager.Requeue(job)
	}
}

// Close transitions the session to Closed. If a job is on hand it is
// requeued here, before the manager can ever observe the disconnect any
// other way — this is what keeps job_to_set accurate without the manager
// needing to notice a closed session on its own.
func (s *Session) Close() {
	s.mu.Lock()
	job := s.onHand
	s.onHand = nil
	wasClosed := s.state == Closed
	s.state = Closed
	s.mu.Unlock()

	if wasClosed {
		return
	}
	if job != nil {
		if s.metrics != nil {
			s.metrics.RecordRequeued()
		}
		s.manager.Requeue(job)
	}
	_ = s.conn.Close()

	select {
	case s.jobCh <- nil:
	default:
	}
}

func (s *Session) finish() {
	s.mu.Lock()
	s.state = Closed
	s.mu.Unlock()
	_ = s.conn.Close()
	s.logger.Info("session ended")
}

// StateOf reports the session's current state, for tests and diagnostics.
func (s *Session) StateOf() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Package master wires the dispatch engine to the network: it owns the
// worker-facing TCP listener, spawns a session per accepted connection, and
// exposes the language-neutral Master/Handle surface spec.md describes in
// its external-interfaces section.
package master

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ChuLiYu/beaver-queue/internal/dispatch"
	"github.com/ChuLiYu/beaver-queue/internal/metrics"
	"github.com/ChuLiYu/beaver-queue/internal/session"
	"github.com/ChuLiYu/beaver-queue/internal/transport"
)

// Handle re-exports dispatch.Handle so callers of this package never need
// to import internal/dispatch directly.
type Handle = dispatch.Handle

// JobIterator re-exports dispatch.JobIterator for the same reason.
type JobIterator = dispatch.JobIterator

// Job re-exports dispatch.Job for the same reason.
type Job = dispatch.Job

// Master owns one worker-facing TCP listener and the JobManager behind it.
// Its lifetime is: StartMaster binds the listener and starts accepting;
// Submit feeds work in; Close stops accepting and cancels outstanding work;
// AwaitClosed blocks until every accepted session has wound down.
type Master struct {
	manager  *dispatch.JobManager
	listener *transport.Listener
	logger   *slog.Logger
	metrics  *metrics.Collector

	runCtx    context.Context
	runCancel context.CancelFunc

	mu       sync.Mutex
	sessions map[*session.Session]struct{}
	closed   bool
	closedCh chan struct{}
	wg       sync.WaitGroup
}

// StartMaster binds a TCP listener at host:port, starts the dispatch
// engine's run loop, and begins accepting worker connections in the
// background. Pass port 0 to let the OS choose an ephemeral port; inspect
// the returned Master's Addr to discover it.
func StartMaster(ctx context.Context, host string, port int, opts ...Option) (*Master, error) {
	ln, err := transport.Listen(host, port)
	if err != nil {
		return nil, fmt.Errorf("master: start: %w", err)
	}

	runCtx, runCancel := context.WithCancel(ctx)
	m := &Master{
		manager:   dispatch.NewJobManager(),
		listener:  ln,
		logger:    slog.Default().With("component", "master"),
		runCtx:    runCtx,
		runCancel: runCancel,
		sessions:  make(map[*session.Session]struct{}),
		closedCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	go m.manager.Run(runCtx)
	m.wg.Add(1)
	go m.acceptLoop()
	if m.metrics != nil {
		go m.pollStats(runCtx)
	}

	m.logger.Info("master started", "addr", ln.Addr().String())
	return m, nil
}

// pollStats keeps the metrics gauges for queue depth current. There is no
// event to hang this on precisely — job sets and queue depth change on
// every dispatch/requeue/submit — so it samples on a short ticker instead,
// matching the teacher's snapshotLoop/timeoutLoop ticker-driven style.
func (m *Master) pollStats(ctx context.Context) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			stats := m.manager.Stats()
			m.metrics.SetJobSetsActive(stats.ActiveJobSets)
			m.metrics.SetJobsPending(stats.PendingJobs)
		case <-ctx.Done():
			return
		}
	}
}

// Addr returns the worker-facing listener's bound address.
func (m *Master) Addr() string {
	return m.listener.Addr().String()
}

func (m *Master) acceptLoop() {
	defer m.wg.Done()
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			m.logger.Info("accept loop stopped", "error", err)
			return
		}
		sess := session.New(conn, m.manager, m.logger)
		if m.metrics != nil {
			sess.WithMetrics(m.metrics)
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			sess.Close()
			continue
		}
		m.sessions[sess] = struct{}{}
		workerCount := len(m.sessions)
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.SetWorkersConnected(workerCount)
		}

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			sess.Run()
			m.mu.Lock()
			delete(m.sessions, sess)
			workerCount := len(m.sessions)
			m.mu.Unlock()
			if m.metrics != nil {
				m.metrics.SetWorkersConnected(workerCount)
			}
		}()
	}
}

// Submit installs jobs as a new job set on the dispatch engine. See
// dispatch.JobManager.Submit for the full contract, including the
// ErrPreconditionViolation returned after Close.
func (m *Master) Submit(it JobIterator) (*Handle, error) {
	return m.manager.Submit(it)
}

// Stats reports current queue depth. Satisfies adminapi.Backend.
func (m *Master) Stats() dispatch.Stats {
	return m.manager.Stats()
}

// WorkersConnected reports how many worker sessions are currently attached.
// Satisfies adminapi.Backend.
func (m *Master) WorkersConnected() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops accepting new worker connections, cancels every job set, and
// closes every session currently attached. The manager is closed before the
// sessions, so their in-flight jobs are dropped rather than requeued. It
// returns once the listener is closed and every session
// goroutine has been asked to stop; it does not wait for them to finish —
// use AwaitClosed for that.
func (m *Master) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	sessions := make([]*session.Session, 0, len(m.sessions))
	for s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	_ = m.listener.Close()
	m.manager.Close()
	for _, s := range sessions {
		s.Close()
	}

	go func() {
		m.wg.Wait()
		m.runCancel()
		close(m.closedCh)
	}()
}

// AwaitClosed blocks until Close has fully drained — the listener is shut
// down and every session goroutine has returned — or ctx is done first.
func (m *Master) AwaitClosed(ctx context.Context) error {
	select {
	case <-m.closedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

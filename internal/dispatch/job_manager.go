package dispatch

import (
	"context"
	"fmt"
)

// JobManager is the dispatch engine: a FIFO queue of job sets, a FIFO pool
// of pending worker-ready callbacks, and the job→job-set reverse index that
// lets a failed or completed call be routed back to its owner.
//
// Every exported method enqueues a closure onto the manager's run loop and
// blocks for its reply, so JobManager looks and behaves like an ordinary
// mutex-guarded type to callers — but internally there is exactly one
// goroutine, started by Run, that ever touches activeSet, pendingSets,
// ready, or jobToSet. That goroutine is the "single serial execution
// context" the dispatch model calls for; a mutex would protect the same
// invariants at a higher cost and without the synchronous-callback fast
// path Requeue depends on.
type JobManager struct {
	cmds   chan func()
	closed chan struct{}

	activeSet   *JobSet
	pendingSets []*JobSet
	ready       []func(Job)
	jobToSet    map[Job]*JobSet
	isClosed    bool
}

// NewJobManager constructs a JobManager. Call Run in its own goroutine
// before issuing any other call.
func NewJobManager() *JobManager {
	return &JobManager{
		cmds:     make(chan func(), 64),
		closed:   make(chan struct{}),
		jobToSet: make(map[Job]*JobSet),
	}
}

// Run is the manager's single serializing goroutine. It returns only when
// ctx is cancelled; Close does not stop it. Callers normally run it with
// `go manager.Run(ctx)` immediately after construction.
func (m *JobManager) Run(ctx context.Context) {
	for {
		select {
		case fn := <-m.cmds:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// exec runs fn on the manager goroutine and blocks until it has completed.
// All exported methods are built on exec so that, from any caller's point
// of view, JobManager calls are synchronous and atomic with respect to one
// another.
func (m *JobManager) exec(fn func()) {
	done := make(chan struct{})
	m.cmds <- func() {
		fn()
		close(done)
	}
	<-done
}

// Submit installs jobs as a new job set: active immediately if the manager
// has no active set, otherwise appended to the pending queue. Returns a
// Handle for observing results, awaiting completion, and cancelling.
//
// Submit after Close returns ErrPreconditionViolation — spec.md resolves
// this Open Question in favor of raising rather than returning a
// pre-cancelled handle, and that resolution is load-bearing: callers must
// not treat a nil-ish Handle as a legitimate (if useless) submission.
func (m *JobManager) Submit(it JobIterator) (*Handle, error) {
	var set *JobSet
	var err error
	m.exec(func() {
		if m.isClosed {
			err = fmt.Errorf("%w: submit called after manager close", ErrPreconditionViolation)
			return
		}
		set = newJobSet(m, it)
		set.loadNext()
		if m.activeSet == nil {
			m.activeSet = set
		} else {
			m.pendingSets = append(m.pendingSets, set)
		}
		m.distribute()
		// A set whose source was empty on the first pull may already be
		// done; newJobSet loads the first job but does not run checkDone,
		// since a done set would call back into the manager before it is
		// installed above, so the initial done-check happens here instead.
		set.checkDone()
	})
	if err != nil {
		return nil, err
	}
	return &Handle{manager: m, set: set}, nil
}

// RequestJob is how a worker session asks for work. If a job is available
// right now, callback is invoked synchronously with it, before RequestJob
// returns. Otherwise callback is queued and will be invoked later, from
// inside Requeue or ReportResult-triggered distribution, on the manager's
// run-loop goroutine — callback must not block or perform I/O itself; it
// should only hand the job off to the session's own goroutine.
//
// If the manager is already closed, RequestJob is a silent no-op: callback
// is simply never invoked, matching spec.md's contract that a worker
// discovers shutdown through its transport rather than through this call.
func (m *JobManager) RequestJob(callback func(Job)) {
	m.exec(func() {
		if m.isClosed {
			return
		}
		if m.activeSet != nil && m.activeSet.jobAvailable() {
			job := m.activeSet.getJob()
			callback(job)
			return
		}
		m.ready = append(m.ready, callback)
	})
}

// ReportResult records a successful call: job's owning set receives result
// via its Result method's already-computed value, and the job leaves the
// reverse index. If the manager is closed, the report is silently dropped.
func (m *JobManager) ReportResult(job Job, result any) {
	m.exec(func() {
		if m.isClosed {
			return
		}
		set, ok := m.jobToSet[job]
		if !ok {
			return
		}
		set.addResult(job, result)
	})
}

// Requeue returns a job to circulation after its worker failed or
// disconnected before delivering a result. If a worker callback is already
// waiting, the job is handed to it directly and synchronously, before
// Requeue returns, without ever touching the owning set's requeue list or
// the reverse index — this is the fast path spec.md calls load-bearing,
// and it is the only place a job moves worker-to-worker without passing
// through JobSet.getJob.
func (m *JobManager) Requeue(job Job) {
	m.exec(func() {
		if m.isClosed {
			return
		}
		set, ok := m.jobToSet[job]
		if !ok {
			return
		}
		if len(m.ready) > 0 {
			cb := m.ready[0]
			m.ready = m.ready[1:]
			cb(job)
			return
		}
		delete(m.jobToSet, job)
		set.returnJob(job)
	})
}

// Close is sticky: it cancels the active set and every pending set, then
// marks the manager closed so every subsequent Submit/RequestJob/
// ReportResult/Requeue becomes a no-op (Submit instead errors). It does not
// wait for outstanding worker calls; their eventual replies arrive to find
// isClosed true and are dropped by ReportResult/Requeue.
func (m *JobManager) Close() {
	m.exec(func() {
		if m.isClosed {
			return
		}
		m.isClosed = true
		if m.activeSet != nil {
			m.activeSet.cancel()
		}
		for _, s := range m.pendingSets {
			s.cancel()
		}
		m.pendingSets = nil
		m.ready = nil
	})
}

// distribute hands jobs to waiting callbacks until either the active set
// runs dry or the ready queue empties. Called after any event that could
// newly satisfy a pending request_job: Submit installing a set, and
// onJobSetDone advancing to the next active set.
func (m *JobManager) distribute() {
	for m.activeSet != nil && len(m.ready) > 0 && m.activeSet.jobAvailable() {
		cb := m.ready[0]
		m.ready = m.ready[1:]
		job := m.activeSet.getJob()
		cb(job)
	}
}

// Stats is a point-in-time snapshot of queue depth, read synchronously off
// the manager's run-loop goroutine like every other call.
type Stats struct {
	ActiveJobSets int
	PendingJobs   int
}

// Stats reports how many job sets are currently live and how many jobs
// across all of them are queued (on-deck or requeued) but not yet
// dispatched to a worker.
func (m *JobManager) Stats() Stats {
	var s Stats
	m.exec(func() {
		if m.activeSet != nil {
			s.ActiveJobSets = 1 + len(m.pendingSets)
			for _, set := range append([]*JobSet{m.activeSet}, m.pendingSets...) {
				if set.hasOnDeck {
					s.PendingJobs++
				}
				s.PendingJobs += len(set.requeue)
			}
		}
	})
	return s
}

// onJobDispatched implements jobSetOwner.
func (m *JobManager) onJobDispatched(set *JobSet, job Job) {
	m.jobToSet[job] = set
}

// onJobSettled implements jobSetOwner.
func (m *JobManager) onJobSettled(job Job) {
	delete(m.jobToSet, job)
}

// onJobSetDone implements jobSetOwner: advance activeSet past any
// already-done entries at the head of pendingSets (a set submitted with an
// empty source finishes immediately and must not briefly become active),
// then redistribute against the new head.
func (m *JobManager) onJobSetDone(set *JobSet) {
	if set != m.activeSet {
		// A pending (not-yet-active) set can only reach done via cancel,
		// which Close already applies uniformly; nothing further to do.
		return
	}
	m.activeSet = nil
	for len(m.pendingSets) > 0 {
		next := m.pendingSets[0]
		m.pendingSets = m.pendingSets[1:]
		next.loadNext()
		next.checkDone()
		if next.isDone() {
			continue
		}
		m.activeSet = next
		break
	}
	m.distribute()
}

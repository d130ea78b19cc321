package dispatch

// jobSetOwner is the back-reference a JobSet uses to tell its JobManager
// about state transitions that affect shared structures the JobSet does not
// own directly: the reverse dispatch index and the pending job-set queue.
// JobManager implements this; JobSet never reaches into JobManager fields
// directly, so the two files can be read independently.
type jobSetOwner interface {
	// onJobDispatched records that job now belongs to set in the reverse
	// index (job_to_set).
	onJobDispatched(set *JobSet, job Job)

	// onJobSettled removes job from the reverse index, whether it finished
	// normally or was handed back via returnJob.
	onJobSettled(job Job)

	// onJobSetDone is called exactly once, the moment a JobSet transitions
	// to done: either exhausted iterator, no onDeck or requeued job, and
	// nothing in flight, or cancel.
	onJobSetDone(set *JobSet)
}

// JobSet is the state machine for one submitted batch of work: a lazy job
// iterator, the results produced so far, and the bookkeeping needed to
// satisfy at-least-once delivery — jobs handed to a worker move to "in
// flight" and leave that state when their result arrives; failure
// (including a session dying mid-call) moves them from in flight to the
// requeue list, ahead of fresh work.
//
// A JobSet is only ever touched from the owning JobManager's run-loop
// goroutine. It holds no lock of its own.
type JobSet struct {
	owner jobSetOwner
	it    JobIterator

	// requeue holds jobs returned by returnJob, in the order they were
	// returned. They are redistributed before onDeck or the iterator is
	// consulted again, so a failed job is retried ahead of fresh work —
	// this is what keeps a perpetually-failing job from starving behind
	// an infinite iterator instead of surfacing as a stuck job set.
	requeue []Job

	// onDeck is a single job pulled ahead of time from it, so jobAvailable
	// can answer without risking a second pull (Next must be called at
	// most once per job actually dispatched).
	onDeck   Job
	hasOnDeck bool
	exhausted bool

	inFlight int
	results  *ResultStream
	cancelled bool
	doneFired bool
}

func newJobSet(owner jobSetOwner, it JobIterator) *JobSet {
	s := &JobSet{
		owner:   owner,
		it:      it,
		results: newResultStream(),
	}
	s.loadNext()
	return s
}

// loadNext ensures onDeck is populated if the iterator has more to give and
// the set has not been cancelled. Cancellation stops new pulls but never
// rewinds a job already on deck or in flight.
func (s *JobSet) loadNext() {
	if s.hasOnDeck || s.exhausted || s.cancelled {
		return
	}
	job, ok := s.it.Next()
	if !ok {
		s.exhausted = true
		return
	}
	s.onDeck = job
	s.hasOnDeck = true
}

// jobAvailable reports whether getJob would currently succeed: a requeued
// job always wins, otherwise an on-deck job if one has been loaded.
func (s *JobSet) jobAvailable() bool {
	if s.cancelled {
		return false
	}
	if len(s.requeue) > 0 {
		return true
	}
	s.loadNext()
	return s.hasOnDeck
}

// getJob hands out the next job for dispatch: requeued jobs first (FIFO
// within the requeue slice), then the on-deck job. The caller must already
// have confirmed jobAvailable, or getJob panics — this is a precondition
// bug in JobManager, not a runtime condition.
func (s *JobSet) getJob() Job {
	var job Job
	if len(s.requeue) > 0 {
		job = s.requeue[0]
		s.requeue = s.requeue[1:]
	} else {
		if !s.hasOnDeck {
			panic("dispatch: getJob called with no job available")
		}
		job = s.onDeck
		s.onDeck = nil
		s.hasOnDeck = false
	}
	s.inFlight++
	s.owner.onJobDispatched(s, job)
	return job
}

// returnJob puts job at the back of the requeue line: a worker connection
// died or reported transport failure before a result arrived. The job goes
// behind jobs already requeued but ahead of fresh jobs from the iterator,
// per the at-least-once delivery contract.
//
// If the set is already done — most commonly because cancel forced it done
// while this job was still in flight — the return is silently dropped per
// spec.md §4.2 ("a job returned after its set is done is silently
// dropped"); only the reverse-index cleanup still happens.
func (s *JobSet) returnJob(job Job) {
	if s.doneFired {
		s.owner.onJobSettled(job)
		return
	}
	s.inFlight--
	s.requeue = append(s.requeue, job)
	s.owner.onJobSettled(job)
	s.checkDone()
}

// addResult records a successful call's result and retires the job from
// in-flight bookkeeping.
//
// If the set is already done — most commonly because cancel forced it done
// while this job was still in flight — the result is silently dropped per
// spec.md §4.2; only the reverse-index cleanup still happens. A result that
// arrives before cancel always gets recorded, since addResult runs before
// checkDone can observe anything cancel changed.
func (s *JobSet) addResult(job Job, value any) {
	if s.doneFired {
		s.owner.onJobSettled(job)
		return
	}
	s.inFlight--
	s.results.append(value)
	s.owner.onJobSettled(job)
	s.checkDone()
}

// cancel stops the set from offering any more jobs — queued-but-undispatched
// work (onDeck and requeue) is dropped — and, per spec.md §4.2 and §5,
// completes the set immediately: it zeros inFlight and fires done()
// unconditionally, synchronously within this call, rather than waiting for
// whatever calls are still outstanding to settle on their own. Those calls'
// eventual ReportResult/Requeue arrive to find the set already done and are
// silently dropped by addResult/returnJob above. Results already buffered
// in the stream before cancel are not cleared.
func (s *JobSet) cancel() {
	if s.cancelled {
		return
	}
	s.cancelled = true
	s.onDeck = nil
	s.hasOnDeck = false
	s.requeue = nil
	s.inFlight = 0
	s.fireDone()
}

// isDone reports whether the set has nothing left to give and nothing in
// flight: either the iterator is exhausted with no pending requeue, or the
// set was cancelled, and in both cases no call is still outstanding.
func (s *JobSet) isDone() bool {
	if s.inFlight > 0 {
		return false
	}
	if s.cancelled {
		return true
	}
	return s.exhausted && len(s.requeue) == 0 && !s.hasOnDeck
}

// checkDone fires done() the first time isDone becomes true on its own —
// iterator exhausted with nothing queued or in flight. cancel() does not go
// through here: it forces done() unconditionally instead of waiting for
// isDone() to agree.
func (s *JobSet) checkDone() {
	if s.doneFired {
		return
	}
	if s.inFlight == 0 && !s.cancelled {
		// Refresh exhausted/onDeck before judging isDone: the iterator may
		// not have been polled again since the last job went in flight, so
		// exhaustion would otherwise go undetected forever.
		s.loadNext()
	}
	if !s.isDone() {
		return
	}
	s.fireDone()
}

// fireDone marks the set done, completes its result stream, and notifies
// the owner — exactly once, however done was reached (natural exhaustion
// via checkDone, or forced immediately by cancel).
func (s *JobSet) fireDone() {
	if s.doneFired {
		return
	}
	s.doneFired = true
	s.results.markComplete()
	s.owner.onJobSetDone(s)
}

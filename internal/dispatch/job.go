// Package dispatch implements the job-set queue, the per-job-set state
// machine, the asynchronous result stream, and the worker-ready contract
// that together form the dispatch engine at the center of beaver-queue.
//
// All state-mutating operations run on a single goroutine (the JobManager's
// run loop) so that the invariants below are always true between calls,
// without a mutex protecting JobSet or JobManager state. Only ResultStream,
// which is read by arbitrary consumer goroutines, needs its own lock.
package dispatch

import "encoding/json"

// Job is a single unit of work. It is opaque to the dispatch engine beyond
// these two operations: Call produces the payload sent to a worker, and
// Result turns the worker's raw response into the value appended to the
// owning job set's result stream.
//
// A Job carries no identity beyond its own value; implementations should be
// pointer types so that JobManager can use a Job as a map key and expect
// stable identity across requeues.
type Job interface {
	// Call returns the value serialized onto the wire as the call payload.
	Call() any

	// Result turns a worker's response payload into the job's result value.
	Result(response json.RawMessage) any
}

// JobIterator is a one-shot, lazily-advanced source of Jobs. It is pulled
// from exactly once per job actually handed to a worker, never materialized
// in full; an infinite iterator is legal. Next must return promptly — it
// runs on the JobManager's single serializing goroutine, and a slow or
// blocking Next stalls dispatch for every other job set and worker.
type JobIterator interface {
	// Next returns the next job, or ok == false if the source is exhausted.
	Next() (job Job, ok bool)
}

// sliceIterator adapts a fixed slice of Jobs to JobIterator.
type sliceIterator struct {
	jobs []Job
	pos  int
}

// NewSliceIterator returns a JobIterator that yields jobs in slice order and
// then reports exhaustion.
func NewSliceIterator(jobs []Job) JobIterator {
	return &sliceIterator{jobs: jobs}
}

func (s *sliceIterator) Next() (Job, bool) {
	if s.pos >= len(s.jobs) {
		return nil, false
	}
	job := s.jobs[s.pos]
	s.pos++
	return job, true
}

// funcIterator adapts a pull function to JobIterator.
type funcIterator struct {
	pull func() (Job, bool)
}

// NewFuncIterator returns a JobIterator backed by a user-supplied pull
// function, for generator-style or infinite job sources.
func NewFuncIterator(pull func() (Job, bool)) JobIterator {
	return &funcIterator{pull: pull}
}

func (f *funcIterator) Next() (Job, bool) {
	return f.pull()
}

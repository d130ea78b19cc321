package dispatch

import (
	"context"
	"sync"
)

// ResultStream is an append-only, single-producer, multi-consumer sequence
// of result values for one job set, plus a monotonic completion marker.
//
// The producer side (append, markComplete) is only ever called from the
// JobManager's single run-loop goroutine, by the owning JobSet. The consumer
// side (Subscribe and the returned iterators) is called from arbitrary user
// goroutines, so ResultStream protects its own state with a mutex and
// broadcasts mutations by closing and replacing a channel — the same
// notify-all-then-recheck-the-predicate idiom the teacher's WAL batch writer
// uses to wake flush waiters.
type ResultStream struct {
	mu       sync.Mutex
	values   []any
	complete bool
	changed  chan struct{}
}

func newResultStream() *ResultStream {
	return &ResultStream{changed: make(chan struct{})}
}

// append adds v to the stream. Precondition: !complete. Only ever called by
// the owning JobSet, which enforces the precondition itself.
func (r *ResultStream) append(v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
	r.notifyLocked()
}

// markComplete flips the completion flag. Idempotent.
func (r *ResultStream) markComplete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.complete {
		return
	}
	r.complete = true
	r.notifyLocked()
}

func (r *ResultStream) notifyLocked() {
	close(r.changed)
	r.changed = make(chan struct{})
}

// Len returns the number of results appended so far.
func (r *ResultStream) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// Get returns the i'th appended result.
func (r *ResultStream) Get(i int) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.values[i]
}

// awaitComplete blocks until the stream is marked complete or ctx is done.
func (r *ResultStream) awaitComplete(ctx context.Context) error {
	for {
		r.mu.Lock()
		if r.complete {
			r.mu.Unlock()
			return nil
		}
		ch := r.changed
		r.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Subscribe returns a new ResultIterator starting at index 0. Each call
// returns an independent iterator; multiple iterators over the same stream
// each see every appended value.
func (r *ResultStream) Subscribe() *ResultIterator {
	return &ResultIterator{stream: r}
}

// ResultIterator walks a ResultStream from position 0, suspending on Next
// until a value is available or the stream completes.
type ResultIterator struct {
	stream *ResultStream
	pos    int
}

// Next returns the next result in the stream, or ok == false once the
// stream is complete and fully drained, or if ctx is done first.
func (it *ResultIterator) Next(ctx context.Context) (value any, ok bool) {
	for {
		it.stream.mu.Lock()
		if it.pos < len(it.stream.values) {
			v := it.stream.values[it.pos]
			it.pos++
			it.stream.mu.Unlock()
			return v, true
		}
		if it.stream.complete {
			it.stream.mu.Unlock()
			return nil, false
		}
		ch := it.stream.changed
		it.stream.mu.Unlock()

		select {
		case <-ch:
			continue
		case <-ctx.Done():
			return nil, false
		}
	}
}

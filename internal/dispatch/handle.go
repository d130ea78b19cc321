package dispatch

import "context"

// Handle is what Submit returns: the caller's view of one job set, giving
// access to its results as they arrive, its eventual completion, and the
// ability to cancel remaining work early. A Handle holds no lock; Results
// and AwaitDone are safe to call from any number of goroutines concurrently
// because they delegate to ResultStream, which is the one piece of the
// dispatch engine built to be touched off the manager's run-loop goroutine.
type Handle struct {
	manager *JobManager
	set     *JobSet
}

// Results returns a fresh ResultIterator over this job set's results,
// starting at index 0. Independent calls to Results return independent
// iterators; each sees every result appended to the set, including ones
// appended before Results was called.
func (h *Handle) Results() *ResultIterator {
	return h.set.results.Subscribe()
}

// Cancel stops the job set from being offered any further work. It is
// instantaneous and idempotent. Jobs already dispatched to a worker are not
// recalled; their eventual results, if any arrive, are silently dropped.
// Results already buffered before Cancel remain available through Results.
func (h *Handle) Cancel() {
	h.manager.exec(func() {
		h.set.cancel()
	})
}

// AwaitDone blocks until the job set is done — exhausted and fully
// resulted, or cancelled, which completes it immediately regardless of any
// calls still outstanding — or until ctx is done, whichever comes first.
func (h *Handle) AwaitDone(ctx context.Context) error {
	return h.set.results.awaitComplete(ctx)
}

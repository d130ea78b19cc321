package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startManager(t *testing.T) (*JobManager, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	m := NewJobManager()
	go m.Run(ctx)
	t.Cleanup(cancel)
	return m, cancel
}

func TestJobManagerSubmitDispatchesToWaitingWorker(t *testing.T) {
	m, _ := startManager(t)

	got := make(chan Job, 1)
	m.RequestJob(func(j Job) { got <- j })

	_, err := m.Submit(NewSliceIterator([]Job{intJob(7)}))
	require.NoError(t, err)

	select {
	case j := <-got:
		assert.Equal(t, intJob(7), j)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatch")
	}
}

func TestJobManagerRequestJobSynchronousWhenJobAlreadyAvailable(t *testing.T) {
	m, _ := startManager(t)

	_, err := m.Submit(NewSliceIterator([]Job{intJob(1)}))
	require.NoError(t, err)

	var got Job
	m.RequestJob(func(j Job) { got = j })
	assert.Equal(t, intJob(1), got)
}

func TestJobManagerReportResultFlowsToHandle(t *testing.T) {
	m, _ := startManager(t)

	h, err := m.Submit(NewSliceIterator([]Job{intJob(1), intJob(2)}))
	require.NoError(t, err)

	var j1, j2 Job
	m.RequestJob(func(j Job) { j1 = j })
	m.RequestJob(func(j Job) { j2 = j })
	require.NotNil(t, j1)
	require.NotNil(t, j2)

	m.ReportResult(j1, 10)
	m.ReportResult(j2, 20)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.AwaitDone(ctx))

	it := h.Results()
	seen := map[any]bool{}
	for {
		v, ok := it.Next(ctx)
		if !ok {
			break
		}
		seen[v] = true
	}
	assert.True(t, seen[10])
	assert.True(t, seen[20])
	assert.Len(t, seen, 2)
}

func TestJobManagerRequeueFastPathHandsJobDirectlyToWaitingCallback(t *testing.T) {
	m, _ := startManager(t)

	_, err := m.Submit(NewSliceIterator([]Job{intJob(1)}))
	require.NoError(t, err)

	var first Job
	m.RequestJob(func(j Job) { first = j })
	require.Equal(t, intJob(1), first)

	retried := make(chan Job, 1)
	m.RequestJob(func(j Job) { retried <- j })

	m.Requeue(first)

	select {
	case j := <-retried:
		assert.Equal(t, intJob(1), j)
	case <-time.After(time.Second):
		t.Fatal("requeue did not fast-path to waiting callback")
	}
}

func TestJobManagerRequeueWithoutWaitingCallbackReturnsToSet(t *testing.T) {
	m, _ := startManager(t)

	h, err := m.Submit(NewSliceIterator([]Job{intJob(1)}))
	require.NoError(t, err)

	var j Job
	m.RequestJob(func(got Job) { j = got })
	require.Equal(t, intJob(1), j)

	m.Requeue(j)

	var redispatched Job
	m.RequestJob(func(got Job) { redispatched = got })
	assert.Equal(t, intJob(1), redispatched)

	m.ReportResult(redispatched, 99)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.AwaitDone(ctx))
}

func TestJobManagerPendingSetsAreFIFOAcrossSets(t *testing.T) {
	m, _ := startManager(t)

	h1, err := m.Submit(NewSliceIterator([]Job{intJob(1)}))
	require.NoError(t, err)
	h2, err := m.Submit(NewSliceIterator([]Job{intJob(2)}))
	require.NoError(t, err)

	var got Job
	m.RequestJob(func(j Job) { got = j })
	assert.Equal(t, intJob(1), got, "set 1 must be served before set 2")

	m.ReportResult(got, "r1")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h1.AwaitDone(ctx))

	var got2 Job
	m.RequestJob(func(j Job) { got2 = j })
	assert.Equal(t, intJob(2), got2, "set 2 becomes active only after set 1 is done")

	m.ReportResult(got2, "r2")
	require.NoError(t, h2.AwaitDone(ctx))
}

func TestJobManagerCloseCancelsEverythingAndRejectsFurtherSubmit(t *testing.T) {
	m, _ := startManager(t)

	h, err := m.Submit(NewSliceIterator([]Job{intJob(1), intJob(2)}))
	require.NoError(t, err)

	m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.AwaitDone(ctx))

	_, err = m.Submit(NewSliceIterator([]Job{intJob(3)}))
	assert.ErrorIs(t, err, ErrPreconditionViolation)
}

func TestJobManagerHandleCancelStopsFutureDispatchButKeepsBuffered(t *testing.T) {
	m, _ := startManager(t)

	h, err := m.Submit(NewSliceIterator([]Job{intJob(1), intJob(2), intJob(3)}))
	require.NoError(t, err)

	var j1 Job
	m.RequestJob(func(j Job) { j1 = j })
	m.ReportResult(j1, "first")

	h.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.AwaitDone(ctx))

	it := h.Results()
	v, ok := it.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, "first", v)

	_, ok = it.Next(ctx)
	assert.False(t, ok)
}

package master

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ChuLiYu/beaver-queue/internal/dispatch"
	"github.com/ChuLiYu/beaver-queue/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sumJob mirrors S1's `[a, b] -> a+b` payload, as the simplest Job that
// needs a real worker round trip to resolve.
type sumJob struct {
	A, B int
}

func (j *sumJob) Call() any { return [2]int{j.A, j.B} }
func (j *sumJob) Result(response json.RawMessage) any {
	var sum int
	_ = json.Unmarshal(response, &sum)
	return sum
}

// echoWorker dials addr and answers every call with handle(call), looping
// until the connection closes.
func echoWorker(t *testing.T, addr string, handle func(call json.RawMessage) any) {
	t.Helper()
	conn, err := transport.Dial(addr)
	require.NoError(t, err)
	go func() {
		defer conn.Close()
		for {
			var call json.RawMessage
			if err := conn.ReadLine(&call); err != nil {
				return
			}
			if err := conn.WriteLine(handle(call)); err != nil {
				return
			}
		}
	}()
}

func sumHandler(call json.RawMessage) any {
	var pair [2]int
	_ = json.Unmarshal(call, &pair)
	return pair[0] + pair[1]
}

func startTestMaster(t *testing.T) *Master {
	t.Helper()
	m, err := StartMaster(context.Background(), "127.0.0.1", 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		m.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.AwaitClosed(ctx)
	})
	return m
}

// S1 — happy path.
func TestS1HappyPath(t *testing.T) {
	m := startTestMaster(t)
	echoWorker(t, m.Addr(), sumHandler)

	h, err := m.Submit(dispatch.NewSliceIterator([]dispatch.Job{
		&sumJob{1, 1}, &sumJob{2, 2}, &sumJob{3, 3},
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.AwaitDone(ctx))

	it := h.Results()
	got := map[int]bool{}
	for {
		v, ok := it.Next(ctx)
		if !ok {
			break
		}
		got[v.(int)] = true
	}
	assert.Equal(t, map[int]bool{2: true, 4: true, 6: true}, got)
}

// S2 — worker crash mid-job.
func TestS2WorkerCrashMidJob(t *testing.T) {
	m := startTestMaster(t)

	mk := func(n int) *Payload { return &Payload{N: n} }

	h, err := m.Submit(dispatch.NewSliceIterator([]dispatch.Job{mk(0), mk(1), mk(2)}))
	require.NoError(t, err)

	conn1, err := transport.Dial(m.Addr())
	require.NoError(t, err)

	var firstCall json.RawMessage
	require.NoError(t, conn1.ReadLine(&firstCall))
	var n int
	require.NoError(t, json.Unmarshal(firstCall, &n))
	assert.Equal(t, 0, n) // first on-deck job

	// W1 stalls without responding, then vanishes.
	require.NoError(t, conn1.Close())

	echoWorker(t, m.Addr(), func(call json.RawMessage) any {
		var n int
		_ = json.Unmarshal(call, &n)
		return n * 10
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.AwaitDone(ctx))

	it := h.Results()
	got := map[int]bool{}
	for {
		v, ok := it.Next(ctx)
		if !ok {
			break
		}
		got[v.(int)] = true
	}
	assert.Equal(t, map[int]bool{0: true, 10: true, 20: true}, got)
}

// Payload is a tiny test-local Job carrying one int, distinct from
// pkg/jobs.Payload, so master's tests have no dependency on that package.
type Payload struct{ N int }

func (p *Payload) Call() any { return p.N }
func (p *Payload) Result(response json.RawMessage) any {
	var n int
	_ = json.Unmarshal(response, &n)
	return n
}

// S3 — cancel during iteration.
func TestS3CancelDuringIteration(t *testing.T) {
	m := startTestMaster(t)
	echoWorker(t, m.Addr(), func(call json.RawMessage) any {
		var n int
		_ = json.Unmarshal(call, &n)
		return n
	})

	jobs := make([]dispatch.Job, 1000)
	for i := range jobs {
		jobs[i] = &Payload{N: i}
	}
	h, err := m.Submit(dispatch.NewSliceIterator(jobs))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	it := h.Results()
	found42 := false
	for {
		v, ok := it.Next(ctx)
		if !ok {
			break
		}
		if v.(int) == 42 {
			found42 = true
			h.Cancel()
		}
	}
	assert.True(t, found42)
	require.NoError(t, h.AwaitDone(ctx))

	h2, err := m.Submit(dispatch.NewSliceIterator([]dispatch.Job{&Payload{N: 7}}))
	require.NoError(t, err)
	require.NoError(t, h2.AwaitDone(ctx))
}

// S4 — queued sets.
func TestS4QueuedSets(t *testing.T) {
	m := startTestMaster(t)
	echoWorker(t, m.Addr(), func(call json.RawMessage) any {
		var n int
		_ = json.Unmarshal(call, &n)
		return n
	})

	hA, err := m.Submit(dispatch.NewSliceIterator([]dispatch.Job{&Payload{N: 1}, &Payload{N: 2}}))
	require.NoError(t, err)
	hB, err := m.Submit(dispatch.NewSliceIterator([]dispatch.Job{&Payload{N: 3}, &Payload{N: 4}}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	itA := hA.Results()
	aCount := 0
	for {
		_, ok := itA.Next(ctx)
		if !ok {
			break
		}
		aCount++
	}
	assert.Equal(t, 2, aCount)
	require.NoError(t, hA.AwaitDone(ctx))

	itB := hB.Results()
	bCount := 0
	for {
		_, ok := itB.Next(ctx)
		if !ok {
			break
		}
		bCount++
	}
	assert.Equal(t, 2, bCount)
}

// S5 — empty source.
func TestS5EmptySource(t *testing.T) {
	m := startTestMaster(t)

	h, err := m.Submit(dispatch.NewSliceIterator(nil))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.AwaitDone(ctx))

	_, ok := h.Results().Next(ctx)
	assert.False(t, ok)
}

// S6 — requeue fast-path: the job W1 fails on must be handed to the second
// worker W2, which dialed in before W1 failed. The test checks that W2
// receives the same payload (99) and that the set then completes; it does
// not inspect the set's requeue buffer.
func TestS6RequeueFastPath(t *testing.T) {
	m := startTestMaster(t)

	h, err := m.Submit(dispatch.NewSliceIterator([]dispatch.Job{&Payload{N: 99}}))
	require.NoError(t, err)

	conn1, err := transport.Dial(m.Addr())
	require.NoError(t, err)
	var firstCall json.RawMessage
	require.NoError(t, conn1.ReadLine(&firstCall))

	conn2, err := transport.Dial(m.Addr())
	require.NoError(t, err)

	resultCh := make(chan int, 1)
	go func() {
		var call json.RawMessage
		if err := conn2.ReadLine(&call); err != nil {
			return
		}
		var n int
		_ = json.Unmarshal(call, &n)
		resultCh <- n
		_ = conn2.WriteLine(n)
	}()

	require.NoError(t, conn1.Close()) // W1 fails before responding

	select {
	case n := <-resultCh:
		assert.Equal(t, 99, n)
	case <-time.After(5 * time.Second):
		t.Fatal("W2 never received the requeued job")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.AwaitDone(ctx))
}

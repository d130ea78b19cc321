package dispatch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// intJob is a trivial Job used across dispatch package tests: Call echoes
// its own value, Result just returns it unchanged.
type intJob int

func (j intJob) Call() any                          { return int(j) }
func (j intJob) Result(response json.RawMessage) any { return int(j) }

// fakeOwner records the calls a JobSet makes into its owner, for assertions
// that don't need a full JobManager.
type fakeOwner struct {
	dispatched []Job
	settled    []Job
	doneSets   []*JobSet
}

func (f *fakeOwner) onJobDispatched(set *JobSet, job Job) { f.dispatched = append(f.dispatched, job) }
func (f *fakeOwner) onJobSettled(job Job)                 { f.settled = append(f.settled, job) }
func (f *fakeOwner) onJobSetDone(set *JobSet)             { f.doneSets = append(f.doneSets, set) }

func TestJobSetEmptySourceIsDoneImmediately(t *testing.T) {
	owner := &fakeOwner{}
	set := newJobSet(owner, NewSliceIterator(nil))
	set.loadNext()
	set.checkDone()

	assert.True(t, set.isDone())
	assert.Len(t, owner.doneSets, 1)
	assert.Equal(t, 0, set.results.Len())
}

func TestJobSetDispatchAndResult(t *testing.T) {
	owner := &fakeOwner{}
	set := newJobSet(owner, NewSliceIterator([]Job{intJob(1), intJob(2)}))

	require.True(t, set.jobAvailable())
	j1 := set.getJob()
	assert.Equal(t, intJob(1), j1)
	assert.Len(t, owner.dispatched, 1)

	require.True(t, set.jobAvailable())
	j2 := set.getJob()
	assert.Equal(t, intJob(2), j2)

	assert.False(t, set.jobAvailable())

	set.addResult(j1, 10)
	assert.False(t, set.isDone())
	set.addResult(j2, 20)
	assert.True(t, set.isDone())
	assert.Len(t, owner.doneSets, 1)
	assert.Equal(t, 2, set.results.Len())
}

func TestJobSetRequeuePrecedesFreshJobs(t *testing.T) {
	owner := &fakeOwner{}
	set := newJobSet(owner, NewSliceIterator([]Job{intJob(1), intJob(2)}))

	j1 := set.getJob()
	set.returnJob(j1)

	// Next getJob must return the requeued job, not intJob(2).
	require.True(t, set.jobAvailable())
	next := set.getJob()
	assert.Equal(t, intJob(1), next)
}

func TestJobSetCancelZeroesInFlightAndFiresDoneImmediately(t *testing.T) {
	owner := &fakeOwner{}
	set := newJobSet(owner, NewSliceIterator([]Job{intJob(1), intJob(2), intJob(3)}))

	j1 := set.getJob()
	set.addResult(j1, 100)

	j2 := set.getJob()

	set.cancel()
	assert.False(t, set.jobAvailable())
	// cancel completes the set synchronously, even with j2 still
	// outstanding: it does not wait for j2's call to settle on its own.
	assert.True(t, set.isDone())
	assert.Len(t, owner.doneSets, 1)
	assert.Equal(t, 1, set.results.Len()) // only j1's result landed before cancel

	// j2's eventual result arrives to find the set already done: it is
	// silently dropped, not appended, and does not double-fire done.
	set.addResult(j2, 200)
	assert.Equal(t, 1, set.results.Len())
	assert.Len(t, owner.doneSets, 1)
	assert.Len(t, owner.settled, 2) // reverse-index cleanup still runs for the late result
}

func TestJobSetGetJobPanicsWithoutAvailability(t *testing.T) {
	owner := &fakeOwner{}
	set := newJobSet(owner, NewSliceIterator(nil))
	assert.Panics(t, func() { set.getJob() })
}

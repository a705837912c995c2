package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchboardhq/supervisor/internal/core/engine"
	"github.com/switchboardhq/supervisor/internal/core/intent"
	"github.com/switchboardhq/supervisor/internal/core/patch"
	"github.com/switchboardhq/supervisor/internal/core/state"
)

func fixedClock() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

func newEngine() *engine.Engine {
	return engine.New(state.New(), 0, engine.Config{Clock: fixedClock})
}

func TestDispatchAdvancesRevisionOnlyWhenOpsNonEmpty(t *testing.T) {
	e := newEngine()

	p, err := e.Dispatch(intent.UiReady("1.0"))
	require.NoError(t, err)
	assert.EqualValues(t, 0, p.FromRevision)
	assert.EqualValues(t, 0, p.ToRevision)
	assert.EqualValues(t, 0, e.Revision())

	p, err = e.Dispatch(intent.NewProfile("Default"))
	require.NoError(t, err)
	assert.EqualValues(t, 0, p.FromRevision)
	assert.EqualValues(t, 1, p.ToRevision)
	assert.EqualValues(t, 1, e.Revision())
}

func TestDispatchRejectionLeavesStateUntouched(t *testing.T) {
	e := newEngine()
	_, err := e.Dispatch(intent.NewProfile("Default"))
	require.NoError(t, err)

	before := e.Snapshot()

	_, err = e.Dispatch(intent.DeleteProfile(1))
	require.Error(t, err)

	after := e.Snapshot()
	assert.Equal(t, before.Revision, after.Revision)
	assert.Len(t, after.State.Profiles, 1)
}

type alwaysFailCommitter struct{}

func (alwaysFailCommitter) Commit([]patch.Op) error { return errors.New("disk full") }

func TestCommitFailureLeavesRevisionUnchanged(t *testing.T) {
	e := engine.New(state.New(), 0, engine.Config{
		Clock:   fixedClock,
		Persist: alwaysFailCommitter{},
	})

	_, err := e.Dispatch(intent.NewProfile("Default"))
	require.Error(t, err)
	assert.EqualValues(t, 0, e.Revision())

	var commitErr *engine.CommitError
	require.True(t, errors.As(err, &commitErr))
}

func TestPatchesSinceReturnsChainWithinRingBuffer(t *testing.T) {
	e := newEngine()
	_, err := e.Dispatch(intent.NewProfile("Default"))
	require.NoError(t, err)
	_, err = e.Dispatch(intent.NewWorkspace(1, "Home"))
	require.NoError(t, err)
	_, err = e.Dispatch(intent.NewTab(1, "https://a.example", true))
	require.NoError(t, err)

	patches, ok := e.PatchesSince(0)
	require.True(t, ok)
	require.Len(t, patches, 3)
	assert.EqualValues(t, 0, patches[0].FromRevision)
	assert.EqualValues(t, 3, patches[len(patches)-1].ToRevision)
}

func TestPatchesSinceSignalsResyncWhenAheadOfRevision(t *testing.T) {
	e := newEngine()
	_, ok := e.PatchesSince(5)
	assert.False(t, ok)
}

func TestPatchesSinceEvictedFromRingSignalsResync(t *testing.T) {
	e := engine.New(state.New(), 0, engine.Config{Clock: fixedClock, RingCapacity: 1})
	_, err := e.Dispatch(intent.NewProfile("Default"))
	require.NoError(t, err)
	_, err = e.Dispatch(intent.NewWorkspace(1, "Home"))
	require.NoError(t, err)

	_, ok := e.PatchesSince(0)
	assert.False(t, ok, "revision 0's patch was evicted by the ring's capacity of 1")
}

func TestPublishRuntimeOpsWithNoOpsLeavesRevisionUnchanged(t *testing.T) {
	e := newEngine()
	_, err := e.Dispatch(intent.NewProfile("Default"))
	require.NoError(t, err)

	before := e.Snapshot()
	p := e.PublishRuntimeOps(nil)
	assert.Equal(t, before.Revision, p.ToRevision)
}

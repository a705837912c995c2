package lifecycle_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchboardhq/supervisor/internal/core/ids"
	"github.com/switchboardhq/supervisor/internal/core/patch"
	"github.com/switchboardhq/supervisor/internal/core/state"
	"github.com/switchboardhq/supervisor/internal/lifecycle"
)

// fakeEngine records calls without doing any real work, so scheduler
// tests never touch an actual browser engine.
type fakeEngine struct {
	mu       sync.Mutex
	handles  map[ids.TabID]string
	created  []ids.TabID
	destroyed []string
	nextHandle int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{handles: make(map[ids.TabID]string)}
}

func (f *fakeEngine) CreateContentView(ctx context.Context, partition string, tabID ids.TabID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextHandle++
	h := fmt.Sprintf("handle-%d", f.nextHandle)
	f.handles[tabID] = h
	f.created = append(f.created, tabID)
	return h, nil
}

func (f *fakeEngine) Navigate(ctx context.Context, handle, url string) error { return nil }
func (f *fakeEngine) SetVisible(ctx context.Context, handle string, visible bool) {}
func (f *fakeEngine) CaptureThumbnail(ctx context.Context, handle string) (string, error) {
	return "thumb", nil
}
func (f *fakeEngine) Destroy(ctx context.Context, handle string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, handle)
}

func (f *fakeEngine) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// fakePublisher stands in for the engine's revision counter, letting
// scheduler tests run without wiring the full engine.Engine.
type fakePublisher struct {
	mu  sync.Mutex
	rev uint64
}

func (p *fakePublisher) PublishRuntimeOps(ops []patch.Op) patch.Patch {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(ops) == 0 {
		return patch.Patch{FromRevision: p.rev, ToRevision: p.rev}
	}
	from := p.rev
	p.rev++
	return patch.Patch{Ops: ops, FromRevision: from, ToRevision: p.rev}
}

func (p *fakePublisher) revision() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rev
}

func TestS3WarmEvictionUnderBudget(t *testing.T) {
	eng := newFakeEngine()
	pub := &fakePublisher{}
	sched := lifecycle.New(eng, pub, 5)

	const profile = ids.ProfileID(1)
	const workspace = ids.WorkspaceID(1)

	for i := 1; i <= 8; i++ {
		tabID := ids.TabID(i)
		sched.Track(tabID, profile, workspace, false)
		sched.ActivateTab(context.Background(), profile, tabID, "partition")
		sched.FrameCommitted(context.Background(), pub.revision(),
			func(ids.TabID) string { return "partition" },
			func(ids.TabID) string { return "https://example.com" })
	}

	var active, warm, discarded int
	for i := 1; i <= 8; i++ {
		rt, ok := sched.Snapshot(ids.TabID(i))
		require.True(t, ok)
		switch rt.Lifecycle {
		case state.RuntimeActive:
			active++
		case state.RuntimeWarm:
			warm++
		case state.RuntimeDiscarded:
			discarded++
		}
	}

	assert.Equal(t, 1, active)
	assert.Equal(t, 5, warm)
	assert.Equal(t, 2, discarded)
	assert.LessOrEqual(t, sched.WarmCount(profile), 5)
}

func TestS4DeferredRestore(t *testing.T) {
	eng := newFakeEngine()
	pub := &fakePublisher{}
	sched := lifecycle.New(eng, pub, 5)

	const profile = ids.ProfileID(1)
	const workspace = ids.WorkspaceID(1)

	sched.Track(1, profile, workspace, false)
	sched.Track(2, profile, workspace, false)

	sched.ActivateTab(context.Background(), profile, 1, "partition")
	sched.FrameCommitted(context.Background(), pub.revision(),
		func(ids.TabID) string { return "partition" },
		func(ids.TabID) string { return "https://a.example" })

	rtA, _ := sched.Snapshot(1)
	require.Equal(t, state.RuntimeActive, rtA.Lifecycle)

	before := eng.createdCount()
	published := sched.ActivateTab(context.Background(), profile, 2, "partition")

	rtB, _ := sched.Snapshot(2)
	assert.Equal(t, state.RuntimeRestoring, rtB.Lifecycle)
	assert.Equal(t, before, eng.createdCount(), "no engine call before frame commit")

	sched.FrameCommitted(context.Background(), published.ToRevision,
		func(ids.TabID) string { return "partition" },
		func(ids.TabID) string { return "https://b.example" })

	rtB, _ = sched.Snapshot(2)
	assert.Equal(t, state.RuntimeActive, rtB.Lifecycle)
	assert.Greater(t, eng.createdCount(), before)

	rtA, _ = sched.Snapshot(1)
	assert.Equal(t, state.RuntimeWarm, rtA.Lifecycle)
}

func TestS5CancellationBeforeFrameCommit(t *testing.T) {
	eng := newFakeEngine()
	pub := &fakePublisher{}
	sched := lifecycle.New(eng, pub, 5)

	const profile = ids.ProfileID(1)
	const workspace = ids.WorkspaceID(1)

	sched.Track(1, profile, workspace, false)
	sched.Track(2, profile, workspace, false)
	sched.Track(3, profile, workspace, false)

	sched.ActivateTab(context.Background(), profile, 1, "partition")
	sched.FrameCommitted(context.Background(), pub.revision(),
		func(ids.TabID) string { return "partition" },
		func(ids.TabID) string { return "https://a.example" })

	restoreB := sched.ActivateTab(context.Background(), profile, 2, "partition")
	// C activates before B's frame commit: B's restore is canceled.
	restoreC := sched.ActivateTab(context.Background(), profile, 3, "partition")

	before := eng.createdCount()
	sched.FrameCommitted(context.Background(), restoreB.ToRevision,
		func(ids.TabID) string { return "partition" },
		func(ids.TabID) string { return "https://b.example" })
	assert.Equal(t, before, eng.createdCount(), "canceled restore must not call the engine")

	rtB, _ := sched.Snapshot(2)
	assert.NotEqual(t, state.RuntimeActive, rtB.Lifecycle)

	sched.FrameCommitted(context.Background(), restoreC.ToRevision,
		func(ids.TabID) string { return "partition" },
		func(ids.TabID) string { return "https://c.example" })
	rtC, _ := sched.Snapshot(3)
	assert.Equal(t, state.RuntimeActive, rtC.Lifecycle)
}

func TestActiveUniquenessPerProfile(t *testing.T) {
	eng := newFakeEngine()
	pub := &fakePublisher{}
	sched := lifecycle.New(eng, pub, 5)

	const profile = ids.ProfileID(1)
	const workspace = ids.WorkspaceID(1)

	for i := 1; i <= 4; i++ {
		tabID := ids.TabID(i)
		sched.Track(tabID, profile, workspace, false)
		sched.ActivateTab(context.Background(), profile, tabID, "partition")
		sched.FrameCommitted(context.Background(), pub.revision(),
			func(ids.TabID) string { return "partition" },
			func(ids.TabID) string { return "https://example.com" })
	}

	activeCount := 0
	for i := 1; i <= 4; i++ {
		rt, _ := sched.Snapshot(ids.TabID(i))
		if rt.Lifecycle == state.RuntimeActive {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestPinnedTabsRetainedUntilAllUnpinnedEvicted(t *testing.T) {
	eng := newFakeEngine()
	pub := &fakePublisher{}
	sched := lifecycle.New(eng, pub, 5)

	const profile = ids.ProfileID(1)
	const workspace = ids.WorkspaceID(1)

	// Tab 1 is pinned and warmed first (least recently used), tabs 2-6
	// unpinned and warmed after it.
	sched.Track(1, profile, workspace, true)
	sched.ActivateTab(context.Background(), profile, 1, "partition")
	sched.FrameCommitted(context.Background(), pub.revision(),
		func(ids.TabID) string { return "partition" },
		func(ids.TabID) string { return "https://example.com" })

	for i := 2; i <= 7; i++ {
		tabID := ids.TabID(i)
		sched.Track(tabID, profile, workspace, false)
		sched.ActivateTab(context.Background(), profile, tabID, "partition")
		sched.FrameCommitted(context.Background(), pub.revision(),
			func(ids.TabID) string { return "partition" },
			func(ids.TabID) string { return "https://example.com" })
	}

	rt1, _ := sched.Snapshot(1)
	assert.Equal(t, state.RuntimeWarm, rt1.Lifecycle, "pinned tab survives while unpinned warm tabs remain")
}

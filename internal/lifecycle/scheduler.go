// Package lifecycle implements the tab lifecycle scheduler: the
// per-profile Discarded/Restoring/Warm/Active state machine, the
// budget-bounded warm LRU, and the frame-commit gate that defers engine
// view creation until the chrome has painted a placeholder.
package lifecycle

import (
	"container/list"
	"context"
	"sync"

	"github.com/switchboardhq/supervisor/internal/core/ids"
	"github.com/switchboardhq/supervisor/internal/core/patch"
	"github.com/switchboardhq/supervisor/internal/core/state"
)

// DefaultWarmBudget is the configured warm budget's default; MinWarmBudget
// is the floor New raises any smaller budget to.
const (
	DefaultWarmBudget = 8
	MinWarmBudget     = 5
)

// EngineManager is the subset of the engine resource manager (C5) the
// scheduler drives directly. It is invoked only from the mutation thread.
type EngineManager interface {
	CreateContentView(ctx context.Context, profilePartition string, tabID ids.TabID) (handle string, err error)
	Navigate(ctx context.Context, handle, url string) error
	SetVisible(ctx context.Context, handle string, visible bool)
	CaptureThumbnail(ctx context.Context, handle string) (ref string, err error)
	Destroy(ctx context.Context, handle string)
}

// RevisionPublisher lets the scheduler stamp its own runtime-only patches
// with a revision, independent of the reducer/persistence path.
type RevisionPublisher interface {
	PublishRuntimeOps(ops []patch.Op) patch.Patch
}

type tabEntry struct {
	runtime     state.Runtime
	profileID   ids.ProfileID
	workspaceID ids.WorkspaceID
	pinned      bool
	elem        *list.Element // position in that profile's warm LRU, nil unless Warm
}

// profileLRU tracks warm-tab recency for one profile.
type profileLRU struct {
	order *list.List // list.Element.Value is ids.TabID, front = most recently warmed
	active *ids.TabID
}

// Scheduler owns all per-tab runtime state. It is not safe for concurrent
// use; callers serialize access through the single mutation thread.
type Scheduler struct {
	mu      sync.Mutex
	engine  EngineManager
	pub     RevisionPublisher
	budget  int
	tabs    map[ids.TabID]*tabEntry
	byProfile map[ids.ProfileID]*profileLRU

	// pendingRestore maps a tab awaiting FrameCommitted to the revision
	// that must be observed before its restore may be committed.
	pendingRestore map[ids.TabID]uint64
}

// New creates a Scheduler with the given warm budget, clamped to
// MinWarmBudget, driving engine through mgr and stamping runtime patches
// through pub.
func New(mgr EngineManager, pub RevisionPublisher, budget int) *Scheduler {
	if budget < MinWarmBudget {
		budget = MinWarmBudget
	}
	return &Scheduler{
		engine:         mgr,
		pub:            pub,
		budget:         budget,
		tabs:           make(map[ids.TabID]*tabEntry),
		byProfile:      make(map[ids.ProfileID]*profileLRU),
		pendingRestore: make(map[ids.TabID]uint64),
	}
}

// Track registers a tab the scheduler doesn't yet know about, starting it
// Discarded. Called whenever the reducer creates a tab, and at boot for
// every tab already in canonical state.
func (s *Scheduler) Track(tabID ids.TabID, profileID ids.ProfileID, workspaceID ids.WorkspaceID, pinned bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tabs[tabID]; ok {
		return
	}
	s.tabs[tabID] = &tabEntry{
		runtime:    state.Runtime{TabID: tabID, Lifecycle: state.RuntimeDiscarded},
		profileID:  profileID,
		workspaceID: workspaceID,
		pinned:     pinned,
	}
}

// Untrack removes a tab from all scheduler bookkeeping and destroys any
// live engine view. Called when the reducer removes a tab (CloseTab or a
// cascade delete).
func (s *Scheduler) Untrack(ctx context.Context, tabID ids.TabID) {
	s.mu.Lock()
	entry, ok := s.tabs[tabID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.tabs, tabID)
	delete(s.pendingRestore, tabID)
	s.removeFromLRU(entry)
	handle := entry.runtime.ContentViewHandle
	s.mu.Unlock()

	if handle != "" {
		s.engine.Destroy(ctx, handle)
	}
}

// SetPinned updates the pinned flag the eviction policy consults.
func (s *Scheduler) SetPinned(tabID ids.TabID, pinned bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.tabs[tabID]; ok {
		e.pinned = pinned
	}
}

// Snapshot returns a copy of a tab's runtime projection, for assembling
// the wire snapshot alongside canonical state.
func (s *Scheduler) Snapshot(tabID ids.TabID) (state.Runtime, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tabs[tabID]
	if !ok {
		return state.Runtime{}, false
	}
	return e.runtime, true
}

// ActivateTab begins the deferred-restore flow for tabID: it publishes a
// Restoring runtime patch immediately, warms the previously active tab in
// the same profile, and returns the published patch. Its ToRevision is the
// revision a later FrameCommitted call must reach before the restore is
// committed and the tab becomes Active.
func (s *Scheduler) ActivateTab(ctx context.Context, profileID ids.ProfileID, tabID ids.TabID, profilePartition string) patch.Patch {
	s.mu.Lock()

	entry, ok := s.tabs[tabID]
	if !ok {
		s.mu.Unlock()
		return patch.Patch{}
	}

	lru := s.lruFor(profileID)
	hasPrev := lru.active != nil && *lru.active != tabID
	var prevID ids.TabID
	var prevHandle string
	if hasPrev {
		prevID = *lru.active
		delete(s.pendingRestore, prevID) // cancel any restore still in flight for it
		if prev, ok := s.tabs[prevID]; ok {
			prevHandle = prev.runtime.ContentViewHandle
		}
	}

	s.mu.Unlock()

	// Capture a last-seen thumbnail for the outgoing tab before it's hidden,
	// so the warm pool has something to render in its place.
	var prevThumb *string
	if hasPrev && prevHandle != "" {
		if ref, err := s.engine.CaptureThumbnail(ctx, prevHandle); err == nil {
			prevThumb = &ref
		}
	}

	s.mu.Lock()

	var ops []patch.Op
	if hasPrev {
		if prev, ok := s.tabs[prevID]; ok {
			prev.runtime.Lifecycle = state.RuntimeWarm
			if prevThumb != nil {
				prev.runtime.ThumbnailRef = *prevThumb
			}
			s.addToLRU(lru, prev, prevID)
			ops = append(ops, patch.SetTabRuntime(prevID, state.RuntimeWarm, prevThumb, nil, nil))
		}
	}

	s.removeFromLRU(entry)
	entry.runtime.Lifecycle = state.RuntimeRestoring
	entry.runtime.Error = ""
	lru.active = &tabID
	ops = append(ops, patch.SetTabRuntime(tabID, state.RuntimeRestoring, nil, nil, nil))

	s.mu.Unlock()

	published := s.pub.PublishRuntimeOps(ops)

	s.mu.Lock()
	s.pendingRestore[tabID] = published.ToRevision
	s.mu.Unlock()

	// Warm eviction is evaluated after the new Warm tab (if any) lands, not
	// after Restoring: a Restoring tab does not count against the budget.
	s.enforceWarmBudget(ctx, profileID)

	return published
}

// FrameCommitted advances every tab whose pending restore's target
// revision has been reached: it creates/attaches the engine content view,
// starts navigation, and transitions the tab to Active.
func (s *Scheduler) FrameCommitted(ctx context.Context, revision uint64, profilePartitionOf func(ids.TabID) string, urlOf func(ids.TabID) string) []patch.Patch {
	s.mu.Lock()
	var ready []ids.TabID
	for tabID, sinceRevision := range s.pendingRestore {
		if revision >= sinceRevision {
			ready = append(ready, tabID)
		}
	}
	for _, tabID := range ready {
		delete(s.pendingRestore, tabID)
	}
	s.mu.Unlock()

	var published []patch.Patch
	for _, tabID := range ready {
		published = append(published, s.commitRestore(ctx, tabID, profilePartitionOf(tabID), urlOf(tabID))...)
	}
	return published
}

func (s *Scheduler) commitRestore(ctx context.Context, tabID ids.TabID, profilePartition, url string) []patch.Patch {
	s.mu.Lock()
	entry, ok := s.tabs[tabID]
	if !ok || entry.runtime.Lifecycle != state.RuntimeRestoring {
		s.mu.Unlock()
		// Canceled by a later ActivateTab, or the tab is gone.
		return nil
	}
	handle := entry.runtime.ContentViewHandle
	s.mu.Unlock()

	if handle == "" {
		created, err := s.engine.CreateContentView(ctx, profilePartition, tabID)
		if err != nil {
			return []patch.Patch{s.rollbackToDiscarded(tabID, err.Error())}
		}
		handle = created
	}

	loading := true
	if err := s.engine.Navigate(ctx, handle, url); err != nil {
		loading = false
	}

	s.mu.Lock()
	entry, ok = s.tabs[tabID]
	if !ok || entry.runtime.Lifecycle != state.RuntimeRestoring {
		s.mu.Unlock()
		s.engine.Destroy(ctx, handle)
		return nil
	}
	entry.runtime.ContentViewHandle = handle
	entry.runtime.Lifecycle = state.RuntimeActive
	entry.runtime.Loading = loading
	s.mu.Unlock()

	s.engine.SetVisible(ctx, handle, true)

	p := s.pub.PublishRuntimeOps([]patch.Op{
		patch.SetTabRuntime(tabID, state.RuntimeActive, nil, &loading, nil),
	})
	return []patch.Patch{p}
}

func (s *Scheduler) rollbackToDiscarded(tabID ids.TabID, errMsg string) patch.Patch {
	s.mu.Lock()
	if entry, ok := s.tabs[tabID]; ok {
		entry.runtime.Lifecycle = state.RuntimeDiscarded
		entry.runtime.Error = errMsg
		entry.runtime.ContentViewHandle = ""
	}
	s.mu.Unlock()
	return s.pub.PublishRuntimeOps([]patch.Op{
		patch.SetTabRuntime(tabID, state.RuntimeDiscarded, nil, nil, &errMsg),
	})
}

// Discard evicts tabID from warm (or cancels a pending restore),
// destroying its engine view and preserving its most recent thumbnail.
func (s *Scheduler) Discard(ctx context.Context, tabID ids.TabID) patch.Patch {
	s.mu.Lock()
	entry, ok := s.tabs[tabID]
	if !ok {
		s.mu.Unlock()
		return patch.Patch{}
	}
	delete(s.pendingRestore, tabID)
	s.removeFromLRU(entry)
	handle := entry.runtime.ContentViewHandle
	entry.runtime.ContentViewHandle = ""
	entry.runtime.Lifecycle = state.RuntimeDiscarded
	thumb := entry.runtime.ThumbnailRef
	s.mu.Unlock()

	if handle != "" {
		s.engine.Destroy(ctx, handle)
	}

	var thumbPtr *string
	if thumb != "" {
		thumbPtr = &thumb
	}
	return s.pub.PublishRuntimeOps([]patch.Op{
		patch.SetTabRuntime(tabID, state.RuntimeDiscarded, thumbPtr, nil, nil),
	})
}

// ThumbnailCaptured records an engine-origin thumbnail update on the
// runtime projection. It does not publish a patch.
func (s *Scheduler) ThumbnailCaptured(tabID ids.TabID, ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.tabs[tabID]; ok {
		e.runtime.ThumbnailRef = ref
	}
}

// LoadingChanged records an engine-origin loading-flag update.
func (s *Scheduler) LoadingChanged(tabID ids.TabID, loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.tabs[tabID]; ok {
		e.runtime.Loading = loading
	}
}

// WarmCount returns the number of tabs currently Warm for a profile, for
// tests verifying the budget property.
func (s *Scheduler) WarmCount(profileID ids.ProfileID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	lru, ok := s.byProfile[profileID]
	if !ok {
		return 0
	}
	return lru.order.Len()
}

// enforceWarmBudget evicts least-recently-used warm tabs for profileID
// until the count is within budget, preferring to evict unpinned tabs
// first.
func (s *Scheduler) enforceWarmBudget(ctx context.Context, profileID ids.ProfileID) {
	for {
		s.mu.Lock()
		lru, ok := s.byProfile[profileID]
		if !ok || lru.order.Len() <= s.budget {
			s.mu.Unlock()
			return
		}
		victim := s.pickEvictionVictim(lru)
		if victim == nil {
			s.mu.Unlock()
			return
		}
		tabID := *victim
		entry := s.tabs[tabID]
		s.removeFromLRU(entry)
		handle := entry.runtime.ContentViewHandle
		entry.runtime.ContentViewHandle = ""
		entry.runtime.Lifecycle = state.RuntimeDiscarded
		s.mu.Unlock()

		if handle != "" {
			s.engine.Destroy(ctx, handle)
		}
		s.pub.PublishRuntimeOps([]patch.Op{
			patch.SetTabRuntime(tabID, state.RuntimeDiscarded, nil, nil, nil),
		})
	}
}

// pickEvictionVictim walks the LRU from the back (least recently used),
// preferring an unpinned tab; a pinned tab is only evicted once every
// unpinned warm tab has already been evicted. Caller holds s.mu.
func (s *Scheduler) pickEvictionVictim(lru *profileLRU) *ids.TabID {
	var pinnedFallback *ids.TabID
	for e := lru.order.Back(); e != nil; e = e.Prev() {
		tabID := e.Value.(ids.TabID)
		entry := s.tabs[tabID]
		if !entry.pinned {
			id := tabID
			return &id
		}
		if pinnedFallback == nil {
			id := tabID
			pinnedFallback = &id
		}
	}
	return pinnedFallback
}

// lruFor returns (creating if needed) the warm LRU for a profile. Caller
// holds s.mu.
func (s *Scheduler) lruFor(profileID ids.ProfileID) *profileLRU {
	lru, ok := s.byProfile[profileID]
	if !ok {
		lru = &profileLRU{order: list.New()}
		s.byProfile[profileID] = lru
	}
	return lru
}

// addToLRU pushes tabID to the front (most recently used) of its
// profile's warm list. Caller holds s.mu.
func (s *Scheduler) addToLRU(lru *profileLRU, entry *tabEntry, tabID ids.TabID) {
	entry.elem = lru.order.PushFront(tabID)
}

// removeFromLRU removes entry from whatever warm LRU it's in, if any.
// Caller holds s.mu.
func (s *Scheduler) removeFromLRU(entry *tabEntry) {
	if entry.elem == nil {
		return
	}
	lru := s.byProfile[entry.profileID]
	if lru != nil {
		lru.order.Remove(entry.elem)
	}
	entry.elem = nil
}

// Package engine holds the revision counter and patch ring buffer that
// turn reducer output and lifecycle-scheduler output into a single
// publishable stream: full snapshots and minimal patches, both addressed
// by revision number.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/switchboardhq/supervisor/internal/core/intent"
	"github.com/switchboardhq/supervisor/internal/core/patch"
	"github.com/switchboardhq/supervisor/internal/core/reducer"
	"github.com/switchboardhq/supervisor/internal/core/state"
)

// Committer persists the ops of an accepted intent before the engine
// advances its revision. A failure here is a CommitFailure: the revision
// does not advance and no patch is published.
type Committer interface {
	Commit(ops []patch.Op) error
}

// NopCommitter discards ops; useful for tests and for runtime-only
// publishes that never touch the persistence layer.
type NopCommitter struct{}

func (NopCommitter) Commit([]patch.Op) error { return nil }

// Engine is the single owner of canonical state, the revision counter,
// and the patch history ring buffer. All methods assume the caller has
// already serialized access through the single mutation thread; Engine
// itself does not spawn goroutines or lock internally beyond what's
// needed to let read-only observers (bridge queries) run concurrently
// with the mutation thread taking a new Dispatch.
type Engine struct {
	mu       sync.RWMutex
	state    *state.BrowserState
	revision uint64
	ring     []patch.Patch
	ringCap  int
	persist  Committer
	clock    reducer.Clock
}

// Config controls ring buffer depth and the persistence/clock dependencies.
type Config struct {
	RingCapacity int
	Persist      Committer
	Clock        func() time.Time
}

// New creates an Engine over an existing canonical state (e.g. loaded
// from storage at startup) at the given starting revision.
func New(initial *state.BrowserState, startRevision uint64, cfg Config) *Engine {
	if cfg.RingCapacity <= 0 {
		cfg.RingCapacity = 256
	}
	if cfg.Persist == nil {
		cfg.Persist = NopCommitter{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		state:    initial,
		revision: startRevision,
		ring:     make([]patch.Patch, 0, cfg.RingCapacity),
		ringCap:  cfg.RingCapacity,
		persist:  cfg.Persist,
		clock:    reducer.Clock(clock),
	}
}

// Revision returns the current revision number.
func (e *Engine) Revision() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.revision
}

// Snapshot returns a full, independently-owned copy of canonical state at
// the current revision.
func (e *Engine) Snapshot() patch.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return patch.Snapshot{State: e.state.Clone(), Revision: e.revision}
}

// Dispatch runs an intent through the reducer against a clone of the
// current state. On success, it commits the resulting ops, advances the
// revision (only if the ops are non-empty), replaces the live state with
// the mutated clone, and records the patch in the ring buffer.
//
// A rejected intent (MalformedIntent, InvariantViolation) or a failed
// commit (CommitFailure) leaves revision and state exactly as they were.
func (e *Engine) Dispatch(in intent.Intent) (patch.Patch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	candidate := e.state.Clone()
	ops, err := reducer.Apply(candidate, in, e.clock)
	if err != nil {
		return patch.Patch{}, err
	}

	if len(ops) == 0 {
		return patch.Patch{FromRevision: e.revision, ToRevision: e.revision}, nil
	}

	if err := e.persist.Commit(ops); err != nil {
		return patch.Patch{}, &CommitError{Cause: err}
	}

	from := e.revision
	e.revision++
	e.state = candidate

	p := patch.Patch{Ops: ops, FromRevision: from, ToRevision: e.revision}
	e.appendRing(p)
	return p, nil
}

// PublishRuntimeOps advances the revision for ops produced outside the
// reducer (lifecycle scheduler runtime transitions). These never touch
// canonical state or persistence: runtime status is never persisted.
func (e *Engine) PublishRuntimeOps(ops []patch.Op) patch.Patch {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(ops) == 0 {
		return patch.Patch{FromRevision: e.revision, ToRevision: e.revision}
	}
	from := e.revision
	e.revision++
	p := patch.Patch{Ops: ops, FromRevision: from, ToRevision: e.revision}
	e.appendRing(p)
	return p
}

func (e *Engine) appendRing(p patch.Patch) {
	if len(e.ring) == e.ringCap {
		e.ring = e.ring[1:]
	}
	e.ring = append(e.ring, p)
}

// PatchesSince returns the patch chain covering (fromRevision, current],
// and true, if the full chain is still held in the ring buffer. It
// returns false when the requested revision has already been evicted or
// is ahead of the current revision, signaling ResyncNeeded: the caller
// should fall back to Snapshot.
func (e *Engine) PatchesSince(fromRevision uint64) ([]patch.Patch, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if fromRevision > e.revision {
		return nil, false
	}
	if fromRevision == e.revision {
		return nil, true
	}
	if len(e.ring) == 0 {
		return nil, false
	}
	oldest := e.ring[0].FromRevision
	if fromRevision < oldest {
		return nil, false
	}

	var out []patch.Patch
	for _, p := range e.ring {
		if p.FromRevision >= fromRevision {
			out = append(out, p)
		}
	}
	return out, true
}

// CommitError wraps a persistence failure: the revision did not advance
// and no patch was published.
type CommitError struct {
	Cause error
}

func (e *CommitError) Error() string { return fmt.Sprintf("commit failed: %v", e.Cause) }
func (e *CommitError) Unwrap() error { return e.Cause }

// Package persistence implements the transactional store the engine
// commits every accepted intent's ops to before its revision advances, plus
// the boot-time load that reconstructs canonical state.
//
// Runtime-only facts — lifecycle state, content-view handles, the warm
// LRU — are never persisted: only what state.BrowserState itself carries.
package persistence

import (
	"context"
	"fmt"

	"github.com/switchboardhq/supervisor/internal/core/ids"
	"github.com/switchboardhq/supervisor/internal/core/patch"
	"github.com/switchboardhq/supervisor/internal/core/state"
)

// SchemaVersion is the current persisted schema. Bump when adding
// migrations to migrate in sqlite.go.
const SchemaVersion = 1

// Store is the transactional commit target the engine.Committer interface
// requires, plus the boot-time load path. Commit's ops correspond 1:1 with
// the engine's own revision advance: the engine only calls Commit with a
// non-empty op slice immediately before incrementing its revision by
// exactly one, so a Store tracks its own last-committed revision purely by
// counting successful Commit calls from the value Load returned — no
// revision number is threaded through Commit itself.
type Store interface {
	// Load reconstructs canonical state and the revision it was last
	// committed at. An empty store (first boot) returns a fresh
	// state.New() and revision zero.
	Load(ctx context.Context) (*state.BrowserState, uint64, error)

	// Commit applies every row-level change implied by ops in a single
	// transaction. A failure leaves persisted state exactly as it was;
	// the caller (engine.Dispatch) does not advance its revision or
	// publish a patch when Commit returns an error.
	Commit(ops []patch.Op) error

	Close() error
}

// applyToState mutates a state.BrowserState in place per op, the same
// row-level semantics a SQL UPSERT/DELETE would express, kept in one place
// so MemoryStore and the boot-time reconstruction agree on op semantics.
func applyToState(s *state.BrowserState, op patch.Op) error {
	switch op.Kind {
	case patch.OpUpsertProfile:
		s.Profiles[op.Profile.ID] = op.Profile.Clone()
	case patch.OpRemoveProfile:
		delete(s.Profiles, op.ProfileID)
	case patch.OpUpsertWorkspace:
		s.Workspaces[op.Workspace.ID] = op.Workspace.Clone()
	case patch.OpRemoveWorkspace:
		delete(s.Workspaces, op.WorkspaceID)
	case patch.OpUpsertTab:
		s.Tabs[op.Tab.ID] = op.Tab.Clone()
	case patch.OpRemoveTab:
		delete(s.Tabs, op.TabID)
	case patch.OpSetActiveProfile:
		s.ActiveProfileID = clonePtr(op.ActiveProfileID)
	case patch.OpSetWorkspaceOrder:
		if p, ok := s.Profiles[op.ProfileID]; ok {
			p.WorkspaceOrder = append([]ids.WorkspaceID(nil), op.WorkspaceOrder...)
		}
	case patch.OpSetTabOrder:
		if w, ok := s.Workspaces[op.WorkspaceID]; ok {
			w.TabOrder = append([]ids.TabID(nil), op.TabOrder...)
		}
	case patch.OpSetActiveWorkspace:
		if p, ok := s.Profiles[op.ProfileID]; ok {
			p.ActiveWorkspaceID = clonePtr(op.ActiveWorkspaceID)
		}
	case patch.OpSetActiveTab:
		if w, ok := s.Workspaces[op.WorkspaceID]; ok {
			w.ActiveTabID = clonePtr(op.ActiveTabID)
		}
	case patch.OpSetSetting:
		s.Settings[op.SettingKey] = op.SettingValue
	case patch.OpSetTabRuntime:
		// Runtime facts are never persisted.
	default:
		return fmt.Errorf("persistence: unrecognized op kind %q", op.Kind)
	}
	return nil
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// seedGenerators advances s.Generators past every id actually present in
// s, so ids issued after a reload never collide with persisted ones even
// though the counters themselves are never persisted directly.
func seedGenerators(s *state.BrowserState) {
	for id := range s.Profiles {
		s.Generators.Profiles.Seed(uint64(id))
	}
	for id := range s.Workspaces {
		s.Generators.Workspaces.Seed(uint64(id))
	}
	for id := range s.Tabs {
		s.Generators.Tabs.Seed(uint64(id))
	}
}

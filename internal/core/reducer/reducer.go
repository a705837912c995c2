// Package reducer implements the pure state transition function at the
// heart of the supervisor: given a canonical state and an intent, it
// either produces a minimal set of patch ops describing the change, or
// rejects the intent outright. It performs no I/O and never partially
// mutates its input.
package reducer

import (
	"time"

	"github.com/switchboardhq/supervisor/internal/core/ids"
	"github.com/switchboardhq/supervisor/internal/core/intent"
	"github.com/switchboardhq/supervisor/internal/core/patch"
	"github.com/switchboardhq/supervisor/internal/core/state"
)

// Clock returns the current time; tests substitute a fixed clock so
// reducer output is fully deterministic.
type Clock func() time.Time

// Apply validates and applies one intent against s, a state the caller
// owns exclusively (typically the result of BrowserState.Clone). On
// success it mutates s in place and returns the minimal ops describing
// the change (possibly empty, for intents like FrameCommitted that never
// touch persistent state). On failure s is left exactly as it entered:
// the caller must discard it rather than reuse it.
func Apply(s *state.BrowserState, in intent.Intent, now Clock) ([]patch.Op, error) {
	switch in.Kind {
	case intent.KindUiReady:
		return nil, nil
	case intent.KindFrameCommitted:
		return nil, nil
	case intent.KindNavigate:
		return applyNavigate(s, in, now)
	case intent.KindNewTab:
		return applyNewTab(s, in, now)
	case intent.KindCloseTab:
		return applyCloseTab(s, in)
	case intent.KindActivateTab:
		return applyActivateTab(s, in)
	case intent.KindMoveTab:
		return applyMoveTab(s, in, now)
	case intent.KindNewWorkspace:
		return applyNewWorkspace(s, in, now)
	case intent.KindRenameWorkspace:
		return applyRenameWorkspace(s, in, now)
	case intent.KindSwitchWorkspace:
		return applySwitchWorkspace(s, in)
	case intent.KindDeleteWorkspace:
		return applyDeleteWorkspace(s, in)
	case intent.KindNewProfile:
		return applyNewProfile(s, in, now)
	case intent.KindRenameProfile:
		return applyRenameProfile(s, in, now)
	case intent.KindSwitchProfile:
		return applySwitchProfile(s, in)
	case intent.KindDeleteProfile:
		return applyDeleteProfile(s, in)
	case intent.KindPinTab:
		return applyPinTab(s, in, now)
	case intent.KindDiscardTab:
		return applyDiscardTab(s, in)
	case intent.KindSettingSetText:
		return applySettingSetText(s, in)
	case intent.KindTitleChanged:
		return applyTitleChanged(s, in, now)
	case intent.KindUrlChanged:
		return applyUrlChanged(s, in, now)
	case intent.KindFaviconChanged:
		return applyFaviconChanged(s, in, now)
	case intent.KindLoadingChanged:
		return nil, nil
	case intent.KindThumbnailCaptured:
		return nil, nil
	default:
		return nil, malformed("unrecognized intent kind %q", in.Kind)
	}
}

func applyNavigate(s *state.BrowserState, in intent.Intent, now Clock) ([]patch.Op, error) {
	t, ok := s.Tabs[in.TabID]
	if !ok {
		return nil, errTabNotFound(in.TabID)
	}
	if in.URL == "" {
		return nil, malformed("navigate requires a non-empty url")
	}
	t.URL = in.URL
	t.UpdatedAt = now()
	return []patch.Op{patch.UpsertTab(t)}, nil
}

func applyNewTab(s *state.BrowserState, in intent.Intent, now Clock) ([]patch.Op, error) {
	ws, ok := s.Workspaces[in.WorkspaceID]
	if !ok {
		return nil, errWorkspaceNotFound(in.WorkspaceID)
	}
	url := in.URL
	if url == "" {
		url = "about:blank"
	}
	ts := now()
	id := s.Generators.NextTab()
	t := &state.Tab{
		ID:          id,
		ProfileID:   ws.ProfileID,
		WorkspaceID: ws.ID,
		URL:         url,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	s.Tabs[id] = t
	ws.TabOrder = append(ws.TabOrder, id)

	ops := []patch.Op{patch.UpsertTab(t), patch.SetTabOrder(ws.ID, ws.TabOrder)}

	if in.MakeActive {
		ops = append(ops, activatePointers(s, t)...)
	}
	return ops, nil
}

func applyCloseTab(s *state.BrowserState, in intent.Intent) ([]patch.Op, error) {
	t, ok := s.Tabs[in.TabID]
	if !ok {
		return nil, errTabNotFound(in.TabID)
	}
	ws, ok := s.Workspaces[t.WorkspaceID]
	if !ok {
		return nil, errWorkspaceNotFound(t.WorkspaceID)
	}

	idx := indexOfTab(ws.TabOrder, in.TabID)
	newOrder := removeTab(ws.TabOrder, in.TabID)
	ws.TabOrder = newOrder
	delete(s.Tabs, in.TabID)

	ops := []patch.Op{patch.RemoveTab(in.TabID), patch.SetTabOrder(ws.ID, ws.TabOrder)}

	if ws.ActiveTabID != nil && *ws.ActiveTabID == in.TabID {
		var successor *ids.TabID
		if idx >= 0 {
			if idx < len(newOrder) {
				successor = &newOrder[idx]
			} else if len(newOrder) > 0 {
				successor = &newOrder[len(newOrder)-1]
			}
		}
		ws.ActiveTabID = successor
		ops = append(ops, patch.SetActiveTab(ws.ID, successor))
	}
	return ops, nil
}

func applyActivateTab(s *state.BrowserState, in intent.Intent) ([]patch.Op, error) {
	t, ok := s.Tabs[in.TabID]
	if !ok {
		return nil, errTabNotFound(in.TabID)
	}
	return activatePointers(s, t), nil
}

// activatePointers sets the active-tab, active-workspace, and
// active-profile pointers needed to make t the active tab, emitting an op
// only for each pointer that actually changes so patches stay minimal.
func activatePointers(s *state.BrowserState, t *state.Tab) []patch.Op {
	var ops []patch.Op

	ws := s.Workspaces[t.WorkspaceID]
	if ws.ActiveTabID == nil || *ws.ActiveTabID != t.ID {
		id := t.ID
		ws.ActiveTabID = &id
		ops = append(ops, patch.SetActiveTab(ws.ID, &id))
	}

	p := s.Profiles[t.ProfileID]
	if p.ActiveWorkspaceID == nil || *p.ActiveWorkspaceID != ws.ID {
		id := ws.ID
		p.ActiveWorkspaceID = &id
		ops = append(ops, patch.SetActiveWorkspace(p.ID, &id))
	}

	if s.ActiveProfileID == nil || *s.ActiveProfileID != p.ID {
		id := p.ID
		s.ActiveProfileID = &id
		ops = append(ops, patch.SetActiveProfile(&id))
	}

	return ops
}

func applyMoveTab(s *state.BrowserState, in intent.Intent, now Clock) ([]patch.Op, error) {
	t, ok := s.Tabs[in.TabID]
	if !ok {
		return nil, errTabNotFound(in.TabID)
	}
	target, ok := s.Workspaces[in.WorkspaceID]
	if !ok {
		return nil, errWorkspaceNotFound(in.WorkspaceID)
	}
	if target.ProfileID != t.ProfileID {
		return nil, invariant("cannot move tab %s across profiles", in.TabID)
	}

	source := s.Workspaces[t.WorkspaceID]
	index := in.Index
	if index < 0 {
		index = 0
	}

	if source.ID == target.ID {
		order := removeTab(source.TabOrder, in.TabID)
		if index > len(order) {
			index = len(order)
		}
		order = insertTab(order, index, in.TabID)
		source.TabOrder = order
		return []patch.Op{patch.SetTabOrder(source.ID, order)}, nil
	}

	srcIdx := indexOfTab(source.TabOrder, in.TabID)
	srcOrder := removeTab(source.TabOrder, in.TabID)
	source.TabOrder = srcOrder

	if index > len(target.TabOrder) {
		index = len(target.TabOrder)
	}
	tgtOrder := insertTab(append([]ids.TabID(nil), target.TabOrder...), index, in.TabID)
	target.TabOrder = tgtOrder

	t.WorkspaceID = target.ID
	t.UpdatedAt = now()

	ops := []patch.Op{
		patch.UpsertTab(t),
		patch.SetTabOrder(source.ID, srcOrder),
		patch.SetTabOrder(target.ID, tgtOrder),
	}

	if source.ActiveTabID != nil && *source.ActiveTabID == in.TabID {
		var successor *ids.TabID
		if srcIdx >= 0 {
			if srcIdx < len(srcOrder) {
				successor = &srcOrder[srcIdx]
			} else if len(srcOrder) > 0 {
				successor = &srcOrder[len(srcOrder)-1]
			}
		}
		source.ActiveTabID = successor
		ops = append(ops, patch.SetActiveTab(source.ID, successor))
	}

	return ops, nil
}

func applyNewWorkspace(s *state.BrowserState, in intent.Intent, now Clock) ([]patch.Op, error) {
	p, ok := s.Profiles[in.ProfileID]
	if !ok {
		return nil, errProfileNotFound(in.ProfileID)
	}
	if in.Name == "" {
		return nil, malformed("workspace name must not be empty")
	}
	ts := now()
	id := s.Generators.NextWorkspace()
	ws := &state.Workspace{
		ID:        id,
		ProfileID: p.ID,
		Name:      in.Name,
		SortIndex: len(p.WorkspaceOrder),
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	s.Workspaces[id] = ws
	p.WorkspaceOrder = append(p.WorkspaceOrder, id)

	ops := []patch.Op{patch.UpsertWorkspace(ws), patch.SetWorkspaceOrder(p.ID, p.WorkspaceOrder)}

	if p.ActiveWorkspaceID == nil {
		wid := id
		p.ActiveWorkspaceID = &wid
		ops = append(ops, patch.SetActiveWorkspace(p.ID, &wid))
	}
	return ops, nil
}

func applyRenameWorkspace(s *state.BrowserState, in intent.Intent, now Clock) ([]patch.Op, error) {
	ws, ok := s.Workspaces[in.WorkspaceID]
	if !ok {
		return nil, errWorkspaceNotFound(in.WorkspaceID)
	}
	if in.Name == "" {
		return nil, malformed("workspace name must not be empty")
	}
	ws.Name = in.Name
	ws.UpdatedAt = now()
	return []patch.Op{patch.UpsertWorkspace(ws)}, nil
}

func applySwitchWorkspace(s *state.BrowserState, in intent.Intent) ([]patch.Op, error) {
	ws, ok := s.Workspaces[in.WorkspaceID]
	if !ok {
		return nil, errWorkspaceNotFound(in.WorkspaceID)
	}
	var ops []patch.Op
	p := s.Profiles[ws.ProfileID]
	if p.ActiveWorkspaceID == nil || *p.ActiveWorkspaceID != ws.ID {
		id := ws.ID
		p.ActiveWorkspaceID = &id
		ops = append(ops, patch.SetActiveWorkspace(p.ID, &id))
	}
	if s.ActiveProfileID == nil || *s.ActiveProfileID != p.ID {
		id := p.ID
		s.ActiveProfileID = &id
		ops = append(ops, patch.SetActiveProfile(&id))
	}
	return ops, nil
}

// deleteWorkspaceTabs removes every tab owned by ws from s.Tabs and
// returns RemoveTab ops for each, in order.
func deleteWorkspaceTabs(s *state.BrowserState, ws *state.Workspace) []patch.Op {
	ops := make([]patch.Op, 0, len(ws.TabOrder))
	for _, tid := range ws.TabOrder {
		delete(s.Tabs, tid)
		ops = append(ops, patch.RemoveTab(tid))
	}
	ws.TabOrder = nil
	return ops
}

func applyDeleteWorkspace(s *state.BrowserState, in intent.Intent) ([]patch.Op, error) {
	ws, ok := s.Workspaces[in.WorkspaceID]
	if !ok {
		return nil, errWorkspaceNotFound(in.WorkspaceID)
	}
	p := s.Profiles[ws.ProfileID]
	if len(p.WorkspaceOrder) <= 1 {
		return nil, invariant("cannot delete the last workspace in profile %s", p.ID)
	}

	ops := deleteWorkspaceTabs(s, ws)
	delete(s.Workspaces, ws.ID)

	idx := indexOfWorkspace(p.WorkspaceOrder, ws.ID)
	newOrder := removeWorkspace(p.WorkspaceOrder, ws.ID)
	p.WorkspaceOrder = newOrder
	ops = append(ops, patch.RemoveWorkspace(ws.ID), patch.SetWorkspaceOrder(p.ID, newOrder))

	if p.ActiveWorkspaceID != nil && *p.ActiveWorkspaceID == ws.ID {
		var successor *ids.WorkspaceID
		if idx >= 0 {
			if idx < len(newOrder) {
				successor = &newOrder[idx]
			} else if len(newOrder) > 0 {
				successor = &newOrder[len(newOrder)-1]
			}
		}
		p.ActiveWorkspaceID = successor
		ops = append(ops, patch.SetActiveWorkspace(p.ID, successor))
	}
	return ops, nil
}

func applyNewProfile(s *state.BrowserState, in intent.Intent, now Clock) ([]patch.Op, error) {
	if in.Name == "" {
		return nil, malformed("profile name must not be empty")
	}
	ts := now()
	id := s.Generators.NextProfile()
	p := &state.Profile{
		ID:               id,
		Name:             in.Name,
		CreatedAt:        ts,
		LastActiveAt:     ts,
		ContentPartition: id.String(),
	}
	s.Profiles[id] = p

	ops := []patch.Op{patch.UpsertProfile(p)}
	if s.ActiveProfileID == nil {
		pid := id
		s.ActiveProfileID = &pid
		ops = append(ops, patch.SetActiveProfile(&pid))
	}
	return ops, nil
}

func applyRenameProfile(s *state.BrowserState, in intent.Intent, now Clock) ([]patch.Op, error) {
	p, ok := s.Profiles[in.ProfileID]
	if !ok {
		return nil, errProfileNotFound(in.ProfileID)
	}
	if in.Name == "" {
		return nil, malformed("profile name must not be empty")
	}
	p.Name = in.Name
	p.LastActiveAt = now()
	return []patch.Op{patch.UpsertProfile(p)}, nil
}

func applySwitchProfile(s *state.BrowserState, in intent.Intent) ([]patch.Op, error) {
	p, ok := s.Profiles[in.ProfileID]
	if !ok {
		return nil, errProfileNotFound(in.ProfileID)
	}
	if s.ActiveProfileID != nil && *s.ActiveProfileID == p.ID {
		return nil, nil
	}
	id := p.ID
	s.ActiveProfileID = &id
	return []patch.Op{patch.SetActiveProfile(&id)}, nil
}

func applyDeleteProfile(s *state.BrowserState, in intent.Intent) ([]patch.Op, error) {
	p, ok := s.Profiles[in.ProfileID]
	if !ok {
		return nil, errProfileNotFound(in.ProfileID)
	}
	if len(s.Profiles) <= 1 {
		return nil, invariant("cannot delete the only remaining profile")
	}

	var ops []patch.Op
	for _, wid := range append([]ids.WorkspaceID(nil), p.WorkspaceOrder...) {
		ws := s.Workspaces[wid]
		ops = append(ops, deleteWorkspaceTabs(s, ws)...)
		delete(s.Workspaces, wid)
		ops = append(ops, patch.RemoveWorkspace(wid))
	}
	delete(s.Profiles, p.ID)
	ops = append(ops, patch.RemoveProfile(p.ID))

	if s.ActiveProfileID != nil && *s.ActiveProfileID == p.ID {
		successor := nextProfile(s, p.ID)
		s.ActiveProfileID = successor
		ops = append(ops, patch.SetActiveProfile(successor))
	}
	return ops, nil
}

// nextProfile picks the profile to promote after the active profile is
// deleted: the next profile in creation (id) order, or the previous one
// when the deleted profile was the last.
func nextProfile(s *state.BrowserState, excluding ids.ProfileID) *ids.ProfileID {
	var next, prev *ids.ProfileID
	for id := range s.Profiles {
		id := id
		if id > excluding && (next == nil || id < *next) {
			next = &id
		}
		if id < excluding && (prev == nil || id > *prev) {
			prev = &id
		}
	}
	if next != nil {
		return next
	}
	return prev
}

func applyPinTab(s *state.BrowserState, in intent.Intent, now Clock) ([]patch.Op, error) {
	t, ok := s.Tabs[in.TabID]
	if !ok {
		return nil, errTabNotFound(in.TabID)
	}
	if t.Pinned == in.Pinned {
		return nil, nil
	}
	t.Pinned = in.Pinned
	t.UpdatedAt = now()
	return []patch.Op{patch.UpsertTab(t)}, nil
}

// applyDiscardTab validates the target tab exists but produces no
// canonical ops: discard is a runtime-lifecycle transition owned by the
// lifecycle scheduler, not a canonical state change.
func applyDiscardTab(s *state.BrowserState, in intent.Intent) ([]patch.Op, error) {
	if _, ok := s.Tabs[in.TabID]; !ok {
		return nil, errTabNotFound(in.TabID)
	}
	return nil, nil
}

func applySettingSetText(s *state.BrowserState, in intent.Intent) ([]patch.Op, error) {
	validate, recognized := intent.RecognizedSettingKeys[in.SettingKey]
	if !recognized {
		return nil, malformed("unrecognized setting key %q", in.SettingKey)
	}
	if !validate(in.SettingValue) {
		return nil, malformed("invalid value %q for setting %q", in.SettingValue, in.SettingKey)
	}
	if s.Settings[in.SettingKey] == in.SettingValue {
		return nil, nil
	}
	s.Settings[in.SettingKey] = in.SettingValue
	return []patch.Op{patch.SetSetting(in.SettingKey, in.SettingValue)}, nil
}

// applyTitleChanged, applyUrlChanged, and applyFaviconChanged are
// engine-origin events: they update the referenced tab if still present,
// and are silently dropped otherwise (the tab may have closed in a race
// with the event).
func applyTitleChanged(s *state.BrowserState, in intent.Intent, now Clock) ([]patch.Op, error) {
	t, ok := s.Tabs[in.TabID]
	if !ok {
		return nil, nil
	}
	t.Title = in.Title
	t.UpdatedAt = now()
	return []patch.Op{patch.UpsertTab(t)}, nil
}

func applyUrlChanged(s *state.BrowserState, in intent.Intent, now Clock) ([]patch.Op, error) {
	t, ok := s.Tabs[in.TabID]
	if !ok {
		return nil, nil
	}
	t.URL = in.URL
	t.UpdatedAt = now()
	return []patch.Op{patch.UpsertTab(t)}, nil
}

func applyFaviconChanged(s *state.BrowserState, in intent.Intent, now Clock) ([]patch.Op, error) {
	t, ok := s.Tabs[in.TabID]
	if !ok {
		return nil, nil
	}
	t.FaviconRef = in.FaviconRef
	t.UpdatedAt = now()
	return []patch.Op{patch.UpsertTab(t)}, nil
}

func indexOfTab(order []ids.TabID, id ids.TabID) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}

func removeTab(order []ids.TabID, id ids.TabID) []ids.TabID {
	out := make([]ids.TabID, 0, len(order))
	for _, v := range order {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func insertTab(order []ids.TabID, index int, id ids.TabID) []ids.TabID {
	out := make([]ids.TabID, 0, len(order)+1)
	out = append(out, order[:index]...)
	out = append(out, id)
	out = append(out, order[index:]...)
	return out
}

func indexOfWorkspace(order []ids.WorkspaceID, id ids.WorkspaceID) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}

func removeWorkspace(order []ids.WorkspaceID, id ids.WorkspaceID) []ids.WorkspaceID {
	out := make([]ids.WorkspaceID, 0, len(order))
	for _, v := range order {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

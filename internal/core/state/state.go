// Package state holds the canonical, persisted product state of the
// browser: profiles, workspaces, tabs, and the settings map. The
// runtime-only lifecycle projection (see Runtime below) is kept in a
// separate, non-persisted structure so that canonical state can be
// serialized, diffed, and restored without ever touching lifecycle status.
package state

import (
	"time"

	"github.com/switchboardhq/supervisor/internal/core/ids"
)

// RuntimeState is a tab's lifecycle status, tracked outside canonical state.
type RuntimeState string

const (
	RuntimeDiscarded RuntimeState = "discarded"
	RuntimeRestoring RuntimeState = "restoring"
	RuntimeWarm      RuntimeState = "warm"
	RuntimeActive    RuntimeState = "active"
)

// Profile is the hard storage-isolation boundary between independent
// browsing identities: each profile owns its own content partition and
// workspace ordering.
type Profile struct {
	ID                ids.ProfileID   `json:"id"`
	Name              string          `json:"name"`
	CreatedAt         time.Time       `json:"created_at"`
	LastActiveAt      time.Time       `json:"last_active_at"`
	ContentPartition  string          `json:"content_partition"`
	WorkspaceOrder    []ids.WorkspaceID `json:"workspace_order"`
	ActiveWorkspaceID *ids.WorkspaceID  `json:"active_workspace_id,omitempty"`
}

// Clone returns a deep copy safe to hand to callers outside the mutation
// thread: no caller can mutate canonical state through a returned pointer.
func (p *Profile) Clone() *Profile {
	cp := *p
	cp.WorkspaceOrder = append([]ids.WorkspaceID(nil), p.WorkspaceOrder...)
	if p.ActiveWorkspaceID != nil {
		id := *p.ActiveWorkspaceID
		cp.ActiveWorkspaceID = &id
	}
	return &cp
}

// Workspace is the soft organizational grouping of tabs within a profile.
type Workspace struct {
	ID           ids.WorkspaceID `json:"id"`
	ProfileID    ids.ProfileID   `json:"profile_id"`
	Name         string          `json:"name"`
	SortIndex    int             `json:"sort_index"`
	TabOrder     []ids.TabID     `json:"tab_order"`
	ActiveTabID  *ids.TabID      `json:"active_tab_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Clone returns a deep copy.
func (w *Workspace) Clone() *Workspace {
	cp := *w
	cp.TabOrder = append([]ids.TabID(nil), w.TabOrder...)
	if w.ActiveTabID != nil {
		id := *w.ActiveTabID
		cp.ActiveTabID = &id
	}
	return &cp
}

// Tab is the metadata-only persistent record. Lifecycle state, thumbnail,
// loading flag, and content-view handle live in Runtime, not here.
type Tab struct {
	ID          ids.TabID       `json:"id"`
	ProfileID   ids.ProfileID   `json:"profile_id"`
	WorkspaceID ids.WorkspaceID `json:"workspace_id"`
	URL         string          `json:"url"`
	Title       string          `json:"title"`
	FaviconRef  string          `json:"favicon_ref,omitempty"`
	Pinned      bool            `json:"pinned"`
	Muted       bool            `json:"muted"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Clone returns a shallow copy (Tab has no slice/map fields).
func (t *Tab) Clone() *Tab {
	cp := *t
	return &cp
}

// Runtime is the non-persisted per-tab lifecycle projection: discarded,
// restoring, warm, or active, plus the transient loading flag, thumbnail
// reference, and engine content-view handle. It is owned exclusively by
// the lifecycle scheduler and never written to the persistence layer.
type Runtime struct {
	TabID            ids.TabID    `json:"tab_id"`
	Lifecycle        RuntimeState `json:"lifecycle"`
	Loading          bool         `json:"loading"`
	ThumbnailRef      string       `json:"thumbnail_ref,omitempty"`
	ContentViewHandle string       `json:"-"`
	Error            string       `json:"error,omitempty"`
}

// Settings is the process-wide keyed textual settings map.
type Settings map[string]string

// Clone returns a copy of the settings map.
func (s Settings) Clone() Settings {
	cp := make(Settings, len(s))
	for k, v := range s {
		cp[k] = v
	}
	return cp
}

// BrowserState is the canonical state snapshot: all profiles, workspaces,
// tabs (metadata only), the active profile, and the settings map. The
// revision counter lives alongside it in patch.Snapshot, not here, so
// BrowserState stays a pure value the reducer can clone cheaply.
type BrowserState struct {
	Profiles       map[ids.ProfileID]*Profile     `json:"profiles"`
	Workspaces     map[ids.WorkspaceID]*Workspace `json:"workspaces"`
	Tabs           map[ids.TabID]*Tab             `json:"tabs"`
	Settings       Settings                       `json:"settings"`
	ActiveProfileID *ids.ProfileID                `json:"active_profile_id,omitempty"`
	Generators     *ids.Generators                `json:"-"`
}

// New returns an empty canonical state with fresh id generators.
func New() *BrowserState {
	return &BrowserState{
		Profiles:   make(map[ids.ProfileID]*Profile),
		Workspaces: make(map[ids.WorkspaceID]*Workspace),
		Tabs:       make(map[ids.TabID]*Tab),
		Settings:   make(Settings),
		Generators: ids.NewGenerators(),
	}
}

// Clone returns a deep copy of the entire state, used by the reducer to
// produce a candidate next-state it can discard on rejection without
// partially mutating the original: a rejected intent never leaves a
// half-applied trace in canonical state.
func (s *BrowserState) Clone() *BrowserState {
	cp := &BrowserState{
		Profiles:   make(map[ids.ProfileID]*Profile, len(s.Profiles)),
		Workspaces: make(map[ids.WorkspaceID]*Workspace, len(s.Workspaces)),
		Tabs:       make(map[ids.TabID]*Tab, len(s.Tabs)),
		Settings:   s.Settings.Clone(),
		Generators: s.Generators,
	}
	for id, p := range s.Profiles {
		cp.Profiles[id] = p.Clone()
	}
	for id, w := range s.Workspaces {
		cp.Workspaces[id] = w.Clone()
	}
	for id, t := range s.Tabs {
		cp.Tabs[id] = t.Clone()
	}
	if s.ActiveProfileID != nil {
		id := *s.ActiveProfileID
		cp.ActiveProfileID = &id
	}
	return cp
}

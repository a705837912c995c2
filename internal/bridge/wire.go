package bridge

import (
	"sort"

	"github.com/switchboardhq/supervisor/internal/core/ids"
	"github.com/switchboardhq/supervisor/internal/core/patch"
	"github.com/switchboardhq/supervisor/internal/core/state"
)

// wireProfile is the chrome-facing JSON shape of a profile.
type wireProfile struct {
	ID                ids.ProfileID     `json:"id"`
	Name              string            `json:"name"`
	WorkspaceOrder    []ids.WorkspaceID `json:"workspace_order"`
	ActiveWorkspaceID *ids.WorkspaceID  `json:"active_workspace_id,omitempty"`
}

// wireWorkspace is the chrome-facing JSON shape of a workspace.
type wireWorkspace struct {
	ID          ids.WorkspaceID `json:"id"`
	ProfileID   ids.ProfileID   `json:"profile_id"`
	Name        string          `json:"name"`
	TabOrder    []ids.TabID     `json:"tab_order"`
	ActiveTabID *ids.TabID      `json:"active_tab_id,omitempty"`
}

// wireTab is the chrome-facing JSON shape of a tab: persistent metadata
// merged with its current runtime projection.
type wireTab struct {
	ID                ids.TabID `json:"id"`
	URL               string    `json:"url"`
	Title             string    `json:"title"`
	Loading           bool      `json:"loading"`
	ThumbnailDataURL  string    `json:"thumbnail_data_url,omitempty"`
}

// wireSnapshot is the exact record shape the bridge returns for
// query_shell_state.
type wireSnapshot struct {
	Revision        uint64                    `json:"revision"`
	ActiveProfileID *ids.ProfileID            `json:"active_profile_id,omitempty"`
	Profiles        []wireProfile             `json:"profiles"`
	Workspaces      []wireWorkspace           `json:"workspaces"`
	Tabs            []wireTab                 `json:"tabs"`
	Settings        map[string]string         `json:"settings"`
}

// runtimeLookup resolves a tab's lifecycle projection; the scheduler is the
// only source of truth for it.
type runtimeLookup func(ids.TabID) (state.Runtime, bool)

// thumbnailResolver turns an opaque thumbnail reference into a data URL the
// chrome can render directly, e.g. "data:image/webp;base64,...". A tab with
// no captured thumbnail yet resolves to an empty string.
type thumbnailResolver func(ref string) string

// buildSnapshot converts canonical state plus per-tab runtime into the wire
// shape defined for query_shell_state.
func buildSnapshot(snap patch.Snapshot, runtimeOf runtimeLookup, thumbOf thumbnailResolver) wireSnapshot {
	s := snap.State

	profiles := make([]wireProfile, 0, len(s.Profiles))
	for _, p := range s.Profiles {
		profiles = append(profiles, wireProfile{
			ID:                p.ID,
			Name:              p.Name,
			WorkspaceOrder:    p.WorkspaceOrder,
			ActiveWorkspaceID: p.ActiveWorkspaceID,
		})
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].ID < profiles[j].ID })

	workspaces := make([]wireWorkspace, 0, len(s.Workspaces))
	for _, w := range s.Workspaces {
		workspaces = append(workspaces, wireWorkspace{
			ID:          w.ID,
			ProfileID:   w.ProfileID,
			Name:        w.Name,
			TabOrder:    w.TabOrder,
			ActiveTabID: w.ActiveTabID,
		})
	}
	sort.Slice(workspaces, func(i, j int) bool { return workspaces[i].ID < workspaces[j].ID })

	tabs := make([]wireTab, 0, len(s.Tabs))
	for _, t := range s.Tabs {
		wt := wireTab{ID: t.ID, URL: t.URL, Title: t.Title}
		if rt, ok := runtimeOf(t.ID); ok {
			wt.Loading = rt.Loading
			if rt.ThumbnailRef != "" && thumbOf != nil {
				wt.ThumbnailDataURL = thumbOf(rt.ThumbnailRef)
			}
		}
		tabs = append(tabs, wt)
	}
	sort.Slice(tabs, func(i, j int) bool { return tabs[i].ID < tabs[j].ID })

	return wireSnapshot{
		Revision:        snap.Revision,
		ActiveProfileID: s.ActiveProfileID,
		Profiles:        profiles,
		Workspaces:      workspaces,
		Tabs:            tabs,
		Settings:        s.Settings,
	}
}

// activeTabID resolves the globally active tab: the active profile's active
// workspace's active tab. Returns false if any link in that chain is unset,
// e.g. before the very first profile/workspace/tab exists.
func activeTabID(s *state.BrowserState) (ids.TabID, bool) {
	if s.ActiveProfileID == nil {
		return 0, false
	}
	profile, ok := s.Profiles[*s.ActiveProfileID]
	if !ok || profile.ActiveWorkspaceID == nil {
		return 0, false
	}
	workspace, ok := s.Workspaces[*profile.ActiveWorkspaceID]
	if !ok || workspace.ActiveTabID == nil {
		return 0, false
	}
	return *workspace.ActiveTabID, true
}

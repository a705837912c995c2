package bridge

import (
	"testing"

	"github.com/switchboardhq/supervisor/internal/core/ids"
	"github.com/switchboardhq/supervisor/internal/core/patch"
	"github.com/switchboardhq/supervisor/internal/core/state"
)

func TestBuildSnapshotProjectsRuntimeAndThumbnail(t *testing.T) {
	s := state.New()
	profileID := ids.ProfileID(1)
	workspaceID := ids.WorkspaceID(1)
	tabID := ids.TabID(1)

	s.Profiles[profileID] = &state.Profile{ID: profileID, Name: "Work", WorkspaceOrder: []ids.WorkspaceID{workspaceID}}
	s.Workspaces[workspaceID] = &state.Workspace{ID: workspaceID, ProfileID: profileID, Name: "Main", TabOrder: []ids.TabID{tabID}}
	s.Tabs[tabID] = &state.Tab{ID: tabID, ProfileID: profileID, WorkspaceID: workspaceID, URL: "https://example.com", Title: "Example"}
	s.ActiveProfileID = &profileID

	runtimeOf := func(id ids.TabID) (state.Runtime, bool) {
		if id != tabID {
			return state.Runtime{}, false
		}
		return state.Runtime{TabID: tabID, Lifecycle: state.RuntimeActive, Loading: true, ThumbnailRef: "ref-1"}, true
	}
	thumbOf := func(ref string) string {
		if ref == "ref-1" {
			return "data:image/png;base64,AAAA"
		}
		return ""
	}

	snap := buildSnapshot(patch.Snapshot{State: s, Revision: 7}, runtimeOf, thumbOf)

	if snap.Revision != 7 {
		t.Fatalf("revision = %d, want 7", snap.Revision)
	}
	if len(snap.Tabs) != 1 {
		t.Fatalf("expected 1 tab, got %d", len(snap.Tabs))
	}
	tab := snap.Tabs[0]
	if !tab.Loading {
		t.Fatal("expected loading=true")
	}
	if tab.ThumbnailDataURL != "data:image/png;base64,AAAA" {
		t.Fatalf("unexpected thumbnail data url: %q", tab.ThumbnailDataURL)
	}
}

func TestBuildSnapshotTabWithoutRuntimeHasNoThumbnail(t *testing.T) {
	s := state.New()
	tabID := ids.TabID(1)
	s.Tabs[tabID] = &state.Tab{ID: tabID, URL: "https://example.com"}

	runtimeOf := func(ids.TabID) (state.Runtime, bool) { return state.Runtime{}, false }

	snap := buildSnapshot(patch.Snapshot{State: s, Revision: 0}, runtimeOf, nil)
	if snap.Tabs[0].ThumbnailDataURL != "" {
		t.Fatal("expected empty thumbnail data url when tab has no runtime entry")
	}
}

func TestActiveTabIDResolvesFullChain(t *testing.T) {
	s := state.New()
	profileID := ids.ProfileID(1)
	workspaceID := ids.WorkspaceID(1)
	tabID := ids.TabID(1)

	s.ActiveProfileID = &profileID
	s.Profiles[profileID] = &state.Profile{ID: profileID, ActiveWorkspaceID: &workspaceID}
	s.Workspaces[workspaceID] = &state.Workspace{ID: workspaceID, ActiveTabID: &tabID}

	got, ok := activeTabID(s)
	if !ok || got != tabID {
		t.Fatalf("activeTabID() = %v, %v; want %v, true", got, ok, tabID)
	}
}

func TestActiveTabIDFalseWhenNoActiveProfile(t *testing.T) {
	s := state.New()
	if _, ok := activeTabID(s); ok {
		t.Fatal("expected ok=false with no active profile")
	}
}

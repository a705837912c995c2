// Package patch defines the revisioned snapshot/patch wire model that the
// reducer and lifecycle scheduler publish and that the bridge relays to
// the chrome.
package patch

import (
	"github.com/switchboardhq/supervisor/internal/core/ids"
	"github.com/switchboardhq/supervisor/internal/core/state"
)

// OpKind discriminates a PatchOp variant.
type OpKind string

const (
	OpUpsertProfile      OpKind = "upsert_profile"
	OpRemoveProfile      OpKind = "remove_profile"
	OpUpsertWorkspace    OpKind = "upsert_workspace"
	OpRemoveWorkspace    OpKind = "remove_workspace"
	OpUpsertTab          OpKind = "upsert_tab"
	OpRemoveTab          OpKind = "remove_tab"
	OpSetActiveProfile   OpKind = "set_active_profile"
	OpSetWorkspaceOrder  OpKind = "set_workspace_order"
	OpSetTabOrder        OpKind = "set_tab_order"
	OpSetActiveWorkspace OpKind = "set_active_workspace"
	OpSetActiveTab       OpKind = "set_active_tab"
	OpSetSetting         OpKind = "set_setting"
	OpSetTabRuntime      OpKind = "set_tab_runtime"
)

// Op is one minimal state-transition operation. Only the fields relevant to
// Kind are populated. The reducer and lifecycle scheduler are the only
// producers of ops; the engine never diffs state to derive them.
type Op struct {
	Kind OpKind

	Profile   *state.Profile   `json:"profile,omitempty"`
	Workspace *state.Workspace `json:"workspace,omitempty"`
	Tab       *state.Tab       `json:"tab,omitempty"`

	ProfileID   ids.ProfileID   `json:"profile_id,omitempty"`
	WorkspaceID ids.WorkspaceID `json:"workspace_id,omitempty"`
	TabID       ids.TabID       `json:"tab_id,omitempty"`

	ActiveProfileID   *ids.ProfileID   `json:"active_profile_id,omitempty"`
	ActiveWorkspaceID *ids.WorkspaceID `json:"active_workspace_id,omitempty"`
	ActiveTabID       *ids.TabID       `json:"active_tab_id,omitempty"`

	WorkspaceOrder []ids.WorkspaceID `json:"workspace_order,omitempty"`
	TabOrder       []ids.TabID       `json:"tab_order,omitempty"`

	SettingKey   string `json:"setting_key,omitempty"`
	SettingValue string `json:"setting_value,omitempty"`

	// SetTabRuntime fields
	RuntimeStatus state.RuntimeState `json:"runtime_status,omitempty"`
	ThumbnailRef  *string            `json:"thumbnail_ref,omitempty"`
	Loading       *bool              `json:"loading,omitempty"`
	Error         *string            `json:"error,omitempty"`
}

// UpsertProfile builds an UpsertProfile op from a profile snapshot.
func UpsertProfile(p *state.Profile) Op { return Op{Kind: OpUpsertProfile, Profile: p.Clone()} }

// RemoveProfile builds a RemoveProfile op.
func RemoveProfile(id ids.ProfileID) Op { return Op{Kind: OpRemoveProfile, ProfileID: id} }

// UpsertWorkspace builds an UpsertWorkspace op from a workspace snapshot.
func UpsertWorkspace(w *state.Workspace) Op {
	return Op{Kind: OpUpsertWorkspace, Workspace: w.Clone()}
}

// RemoveWorkspace builds a RemoveWorkspace op.
func RemoveWorkspace(id ids.WorkspaceID) Op { return Op{Kind: OpRemoveWorkspace, WorkspaceID: id} }

// UpsertTab builds an UpsertTab op from a tab snapshot.
func UpsertTab(t *state.Tab) Op { return Op{Kind: OpUpsertTab, Tab: t.Clone()} }

// RemoveTab builds a RemoveTab op.
func RemoveTab(id ids.TabID) Op { return Op{Kind: OpRemoveTab, TabID: id} }

// SetActiveProfile builds a SetActiveProfile op.
func SetActiveProfile(id *ids.ProfileID) Op {
	return Op{Kind: OpSetActiveProfile, ActiveProfileID: id}
}

// SetWorkspaceOrder builds a SetWorkspaceOrder op.
func SetWorkspaceOrder(profileID ids.ProfileID, order []ids.WorkspaceID) Op {
	return Op{Kind: OpSetWorkspaceOrder, ProfileID: profileID, WorkspaceOrder: append([]ids.WorkspaceID(nil), order...)}
}

// SetTabOrder builds a SetTabOrder op.
func SetTabOrder(workspaceID ids.WorkspaceID, order []ids.TabID) Op {
	return Op{Kind: OpSetTabOrder, WorkspaceID: workspaceID, TabOrder: append([]ids.TabID(nil), order...)}
}

// SetActiveWorkspace builds a SetActiveWorkspace op.
func SetActiveWorkspace(profileID ids.ProfileID, id *ids.WorkspaceID) Op {
	return Op{Kind: OpSetActiveWorkspace, ProfileID: profileID, ActiveWorkspaceID: id}
}

// SetActiveTab builds a SetActiveTab op.
func SetActiveTab(workspaceID ids.WorkspaceID, id *ids.TabID) Op {
	return Op{Kind: OpSetActiveTab, WorkspaceID: workspaceID, ActiveTabID: id}
}

// SetSetting builds a SetSetting op.
func SetSetting(key, value string) Op {
	return Op{Kind: OpSetSetting, SettingKey: key, SettingValue: value}
}

// SetTabRuntime builds a SetTabRuntime op.
func SetTabRuntime(tabID ids.TabID, status state.RuntimeState, thumbnailRef *string, loading *bool, errMsg *string) Op {
	return Op{
		Kind:          OpSetTabRuntime,
		TabID:         tabID,
		RuntimeStatus: status,
		ThumbnailRef:  thumbnailRef,
		Loading:       loading,
		Error:         errMsg,
	}
}

// Patch is an ordered list of ops carrying state from FromRevision to
// ToRevision. A no-op intent yields an empty-ops patch with
// FromRevision == ToRevision (see engine.Engine.Dispatch).
type Patch struct {
	Ops          []Op   `json:"ops"`
	FromRevision uint64 `json:"from_revision"`
	ToRevision   uint64 `json:"to_revision"`
}

// Snapshot is the full serializable canonical-state view plus revision,
// published on UiReady, bridge reconnect, and resync.
type Snapshot struct {
	State    *state.BrowserState `json:"state"`
	Revision uint64              `json:"revision"`
}

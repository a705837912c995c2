// Package intent defines the closed set of commands the reducer accepts.
// Intents are a closed tagged variant discriminated by Kind; dispatch is a
// switch over the tag, never an open-ended handler table.
package intent

import (
	"github.com/switchboardhq/supervisor/internal/core/ids"
)

// Kind discriminates the Intent variant.
type Kind string

const (
	KindUiReady           Kind = "ui_ready"
	KindFrameCommitted    Kind = "frame_committed"
	KindNavigate          Kind = "navigate"
	KindNewTab            Kind = "new_tab"
	KindCloseTab          Kind = "close_tab"
	KindActivateTab       Kind = "activate_tab"
	KindMoveTab           Kind = "move_tab"
	KindNewWorkspace      Kind = "new_workspace"
	KindRenameWorkspace   Kind = "rename_workspace"
	KindSwitchWorkspace   Kind = "switch_workspace"
	KindDeleteWorkspace   Kind = "delete_workspace"
	KindNewProfile        Kind = "new_profile"
	KindRenameProfile     Kind = "rename_profile"
	KindSwitchProfile     Kind = "switch_profile"
	KindDeleteProfile     Kind = "delete_profile"
	KindPinTab            Kind = "pin_tab"
	KindDiscardTab        Kind = "discard_tab"
	KindSettingSetText    Kind = "setting_set_text"
	KindTitleChanged      Kind = "title_changed"
	KindUrlChanged        Kind = "url_changed"
	KindFaviconChanged    Kind = "favicon_changed"
	KindLoadingChanged    Kind = "loading_changed"
	KindThumbnailCaptured Kind = "thumbnail_captured"
)

// Intent is a single typed command from the chrome or from an engine-origin
// event. Only the fields relevant to Kind are populated; the reducer
// switches on Kind and reads only the matching fields.
type Intent struct {
	Kind Kind

	// UiReady
	UiVersion string

	// FrameCommitted
	Revision uint64

	// Navigate, TitleChanged, UrlChanged, FaviconChanged, LoadingChanged,
	// ThumbnailCaptured, PinTab, CloseTab, ActivateTab, DiscardTab
	TabID ids.TabID
	URL   string
	Title string
	FaviconRef string
	Loading    bool
	ThumbnailRef string

	// NewTab, MoveTab, RenameWorkspace, SwitchWorkspace, DeleteWorkspace
	// (MakeActive: NewTab; Index: MoveTab)
	WorkspaceID ids.WorkspaceID
	MakeActive  bool
	Index       int

	// NewWorkspace, RenameWorkspace, NewProfile, RenameProfile
	Name string

	// NewWorkspace, RenameProfile, SwitchProfile, DeleteProfile
	ProfileID ids.ProfileID

	// PinTab
	Pinned bool

	// SettingSetText
	SettingKey   string
	SettingValue string
}

// UiReady constructs the idempotent chrome-ready signal.
func UiReady(version string) Intent { return Intent{Kind: KindUiReady, UiVersion: version} }

// FrameCommitted constructs the scheduler-gating frame-commit signal.
func FrameCommitted(revision uint64) Intent {
	return Intent{Kind: KindFrameCommitted, Revision: revision}
}

// Navigate constructs a URL-change request for a tab.
func Navigate(tabID ids.TabID, url string) Intent {
	return Intent{Kind: KindNavigate, TabID: tabID, URL: url}
}

// NewTab constructs a tab-creation request.
func NewTab(workspaceID ids.WorkspaceID, url string, makeActive bool) Intent {
	return Intent{Kind: KindNewTab, WorkspaceID: workspaceID, URL: url, MakeActive: makeActive}
}

// CloseTab constructs a tab-close request.
func CloseTab(tabID ids.TabID) Intent { return Intent{Kind: KindCloseTab, TabID: tabID} }

// ActivateTab constructs an activation request.
func ActivateTab(tabID ids.TabID) Intent { return Intent{Kind: KindActivateTab, TabID: tabID} }

// MoveTab constructs a re-parent + reorder request.
func MoveTab(tabID ids.TabID, workspaceID ids.WorkspaceID, index int) Intent {
	return Intent{Kind: KindMoveTab, TabID: tabID, WorkspaceID: workspaceID, Index: index}
}

// NewWorkspace constructs a workspace-creation request.
func NewWorkspace(profileID ids.ProfileID, name string) Intent {
	return Intent{Kind: KindNewWorkspace, ProfileID: profileID, Name: name}
}

// RenameWorkspace constructs a workspace rename request.
func RenameWorkspace(workspaceID ids.WorkspaceID, name string) Intent {
	return Intent{Kind: KindRenameWorkspace, WorkspaceID: workspaceID, Name: name}
}

// SwitchWorkspace constructs a workspace-switch request.
func SwitchWorkspace(workspaceID ids.WorkspaceID) Intent {
	return Intent{Kind: KindSwitchWorkspace, WorkspaceID: workspaceID}
}

// DeleteWorkspace constructs a cascade-deleting workspace request.
func DeleteWorkspace(workspaceID ids.WorkspaceID) Intent {
	return Intent{Kind: KindDeleteWorkspace, WorkspaceID: workspaceID}
}

// NewProfile constructs a profile-creation request.
func NewProfile(name string) Intent { return Intent{Kind: KindNewProfile, Name: name} }

// RenameProfile constructs a profile rename request.
func RenameProfile(profileID ids.ProfileID, name string) Intent {
	return Intent{Kind: KindRenameProfile, ProfileID: profileID, Name: name}
}

// SwitchProfile constructs a profile-switch request.
func SwitchProfile(profileID ids.ProfileID) Intent {
	return Intent{Kind: KindSwitchProfile, ProfileID: profileID}
}

// DeleteProfile constructs a cascade-deleting profile request.
func DeleteProfile(profileID ids.ProfileID) Intent {
	return Intent{Kind: KindDeleteProfile, ProfileID: profileID}
}

// PinTab constructs a pin/unpin request.
func PinTab(tabID ids.TabID, pinned bool) Intent {
	return Intent{Kind: KindPinTab, TabID: tabID, Pinned: pinned}
}

// DiscardTab constructs an explicit discard request.
func DiscardTab(tabID ids.TabID) Intent { return Intent{Kind: KindDiscardTab, TabID: tabID} }

// SettingSetText constructs a settings-map upsert request.
func SettingSetText(key, value string) Intent {
	return Intent{Kind: KindSettingSetText, SettingKey: key, SettingValue: value}
}

// TitleChanged constructs an engine-origin title update.
func TitleChanged(tabID ids.TabID, title string) Intent {
	return Intent{Kind: KindTitleChanged, TabID: tabID, Title: title}
}

// UrlChanged constructs an engine-origin URL update.
func UrlChanged(tabID ids.TabID, url string) Intent {
	return Intent{Kind: KindUrlChanged, TabID: tabID, URL: url}
}

// FaviconChanged constructs an engine-origin favicon update.
func FaviconChanged(tabID ids.TabID, faviconRef string) Intent {
	return Intent{Kind: KindFaviconChanged, TabID: tabID, FaviconRef: faviconRef}
}

// LoadingChanged constructs an engine-origin loading-flag update.
func LoadingChanged(tabID ids.TabID, loading bool) Intent {
	return Intent{Kind: KindLoadingChanged, TabID: tabID, Loading: loading}
}

// ThumbnailCaptured constructs an engine-origin thumbnail update.
func ThumbnailCaptured(tabID ids.TabID, ref string) Intent {
	return Intent{Kind: KindThumbnailCaptured, TabID: tabID, ThumbnailRef: ref}
}

// RecognizedSettingKeys enumerates the settings keys SettingSetText may
// target, each paired with a validator for its value. SettingSetText for
// any other key, or a value its validator rejects, is a MalformedIntent.
var RecognizedSettingKeys = map[string]func(string) bool{
	"search_engine": func(v string) bool {
		switch v {
		case "google", "duckduckgo", "bing", "brave", "kagi", "startpage":
			return true
		}
		return false
	},
	"homepage":             func(string) bool { return true },
	"new_tab_behavior": func(v string) bool {
		switch v {
		case "blank", "homepage", "custom", "workspace_default":
			return true
		}
		return false
	},
	"new_tab_custom_url":               func(string) bool { return true },
	"keybinding_close_tab":             func(string) bool { return true },
	"keybinding_command_palette":       func(string) bool { return true },
	"keybinding_focus_navigation":      func(string) bool { return true },
	"keybinding_toggle_devtools":       func(string) bool { return true },
	"window_width":                     func(string) bool { return true },
	"window_height":                    func(string) bool { return true },
	"password_manager_default_provider":    func(string) bool { return true },
	"password_manager_default_autofill":    func(string) bool { return true },
	"password_manager_default_save_prompt": func(string) bool { return true },
	"password_manager_default_fallback":    func(string) bool { return true },
}

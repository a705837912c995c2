// Package bridge implements the half-duplex chrome⇄supervisor wire
// protocol: a capability-gated, text-line verb dispatcher plus the HTTP and
// WebSocket transports that carry it. Dispatch itself performs no I/O; it
// only parses, allowlists, and routes into the reducer/scheduler.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/switchboardhq/supervisor/internal/core/engine"
	"github.com/switchboardhq/supervisor/internal/core/ids"
	"github.com/switchboardhq/supervisor/internal/core/intent"
	"github.com/switchboardhq/supervisor/internal/core/patch"
	"github.com/switchboardhq/supervisor/internal/core/state"
	"github.com/switchboardhq/supervisor/internal/lifecycle"
)

// PrivilegedOrigin is the only origin value the capability allowlist
// accepts. It is set on requests by the embedder integration that hosts
// the privileged chrome document, never by chrome-controlled script.
const PrivilegedOrigin = "chrome://switchboard-shell"

// ErrForbiddenOrigin is returned when a request's origin is not the
// privileged chrome origin. Transports must reject the connection outright
// rather than surface this as response text.
var ErrForbiddenOrigin = errors.New("bridge: origin is not the privileged chrome shell")

// ErrQueueFull is returned when the bounded mutation queue is saturated.
// It is retryable: the caller's intent was rejected outright rather than
// left to queue behind an unbounded backlog.
var ErrQueueFull = errors.New("bridge: mutation queue full, retry")

// DefaultQueueCapacity is used when a caller configures a non-positive
// queue capacity.
const DefaultQueueCapacity = 256

type dispatchRequest struct {
	ctx    context.Context
	origin string
	raw    string
	respCh chan dispatchResponse
}

type dispatchResponse struct {
	resp string
	err  error
}

// Dispatcher owns capability enforcement and verb routing over a single
// engine/scheduler pair, serialized onto one mutation goroutine via a
// bounded queue. It holds no canonical state of its own beyond the
// overlay flag; canonical and runtime state live in the engine and
// scheduler, both touched only from that goroutine.
type Dispatcher struct {
	engine    *engine.Engine
	scheduler *lifecycle.Scheduler
	logger    *zap.Logger
	thumbOf   thumbnailResolver
	queue     chan dispatchRequest

	overlay boolFlag
	notify  func(patch.Patch)
}

// New creates a Dispatcher over an engine/scheduler pair already wired
// together (the scheduler publishes runtime patches through the same
// engine's revision counter). Run must be started on its own goroutine
// before any Dispatch call can complete.
func New(eng *engine.Engine, sched *lifecycle.Scheduler, logger *zap.Logger, thumbOf thumbnailResolver, queueCapacity int) *Dispatcher {
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	return &Dispatcher{
		engine:    eng,
		scheduler: sched,
		logger:    logger,
		thumbOf:   thumbOf,
		queue:     make(chan dispatchRequest, queueCapacity),
	}
}

// SetNotifier registers a hook invoked with every patch produced by a
// Dispatch call, in revision order. The bridge event stream uses this to
// push patches to connected clients without Dispatch itself depending on
// the stream package.
func (d *Dispatcher) SetNotifier(fn func(patch.Patch)) {
	d.notify = fn
}

// Overlay reports whether the chrome has most recently signaled its modal
// overlay is visible. No other component in this tree reads it; content
// view visibility does not depend on it.
func (d *Dispatcher) Overlay() bool { return d.overlay.get() }

// Run drains the mutation queue on the calling goroutine until ctx is
// canceled. Exactly one goroutine must call Run for a given Dispatcher:
// it is the supervisor's single mutation thread, and every Dispatch call
// — bridge transport or otherwise — is processed here in FIFO order.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.queue:
			resp, err := d.process(req.ctx, req.origin, req.raw)
			req.respCh <- dispatchResponse{resp: resp, err: err}
		}
	}
}

// Dispatch enqueues one verb line for processing on the mutation thread
// and blocks for its result or for ctx cancellation. A full queue is
// rejected immediately with ErrQueueFull rather than adding to an
// unbounded backlog.
func (d *Dispatcher) Dispatch(ctx context.Context, origin, raw string) (string, error) {
	respCh := make(chan dispatchResponse, 1)
	select {
	case d.queue <- dispatchRequest{ctx: ctx, origin: origin, raw: raw, respCh: respCh}:
	default:
		return "", ErrQueueFull
	}

	select {
	case res := <-respCh:
		return res.resp, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// process runs the capability check, verb parse, and route on the
// mutation thread itself.
func (d *Dispatcher) process(ctx context.Context, origin, raw string) (string, error) {
	if origin != PrivilegedOrigin {
		return "", ErrForbiddenOrigin
	}

	l := parseLine(raw)
	if l.verb == "" {
		return "", fmt.Errorf("empty request line")
	}

	before := d.engine.Revision()
	resp, err := d.route(ctx, l)
	d.notifySince(before)
	return resp, err
}

// notifySince pushes every patch committed since before to the registered
// notifier, if any. A miss (ring eviction, nothing changed) is silent:
// the stream is additive, never the only path to current state.
func (d *Dispatcher) notifySince(before uint64) {
	if d.notify == nil {
		return
	}
	patches, ok := d.engine.PatchesSince(before)
	if !ok {
		return
	}
	for _, p := range patches {
		d.notify(p)
	}
}

func (d *Dispatcher) route(ctx context.Context, l line) (string, error) {
	switch l.verb {
	case "ui_ready":
		return d.handleUiReady(l)
	case "query_shell_state":
		return d.handleQueryShellState()
	case "query_active_uri":
		return d.handleQueryActiveURI()
	case "navigate":
		return d.handleNavigate(ctx, l)
	case "new_tab":
		return d.handleNewTab(l)
	case "close_tab":
		return d.handleCloseTab(ctx, l)
	case "activate_tab":
		return d.handleActivateTab(ctx, l)
	case "new_workspace":
		return d.handleNewWorkspace(l)
	case "rename_workspace":
		return d.handleRenameWorkspace(l)
	case "delete_workspace":
		return d.handleDeleteWorkspace(ctx, l)
	case "switch_workspace":
		return d.handleSwitchWorkspace(ctx, l)
	case "new_profile":
		return d.handleNewProfile(l)
	case "rename_profile":
		return d.handleRenameProfile(l)
	case "delete_profile":
		return d.handleDeleteProfile(ctx, l)
	case "switch_profile":
		return d.handleSwitchProfile(ctx, l)
	case "setting_set_text":
		return d.handleSettingSetText(l)
	case "ui_overlay":
		return d.handleUiOverlay(l)
	case "frame_committed":
		return d.handleFrameCommitted(ctx, l)
	default:
		return "", fmt.Errorf("unrecognized verb %q", l.verb)
	}
}

func (d *Dispatcher) handleUiReady(l line) (string, error) {
	version := l.rest
	if _, err := d.engine.Dispatch(intent.UiReady(version)); err != nil {
		return "", err
	}
	return "", nil
}

func (d *Dispatcher) handleQueryShellState() (string, error) {
	snap := d.engine.Snapshot()
	wire := buildSnapshot(snap, d.scheduler.Snapshot, d.thumbOf)
	body, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("marshal shell state: %w", err)
	}
	return string(body), nil
}

func (d *Dispatcher) handleQueryActiveURI() (string, error) {
	snap := d.engine.Snapshot()
	tabID, ok := activeTabID(snap.State)
	if !ok {
		return "", nil
	}
	tab, ok := snap.State.Tabs[tabID]
	if !ok {
		return "", nil
	}
	return tab.URL, nil
}

// handleNavigate applies to the globally active tab; the chrome performs
// URL-vs-search-term heuristics locally and only ever sends already
// normalized http/https URLs.
func (d *Dispatcher) handleNavigate(ctx context.Context, l line) (string, error) {
	url := l.rest
	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") {
		return "", fmt.Errorf("navigate: url must be http or https, got %q", url)
	}
	snap := d.engine.Snapshot()
	tabID, ok := activeTabID(snap.State)
	if !ok {
		return "", fmt.Errorf("navigate: no globally active tab")
	}
	if _, err := d.engine.Dispatch(intent.Navigate(tabID, url)); err != nil {
		return "", err
	}
	return "", d.ensureActivated(ctx, tabID)
}

// ensureActivated triggers the scheduler's activation flow for tabID if it
// is not already Active: navigating a backgrounded tab also brings it to
// the foreground. This lives outside the reducer, which never touches
// runtime state or calls the scheduler.
func (d *Dispatcher) ensureActivated(ctx context.Context, tabID ids.TabID) error {
	rt, ok := d.scheduler.Snapshot(tabID)
	if ok && rt.Lifecycle == state.RuntimeActive {
		return nil
	}
	snap := d.engine.Snapshot()
	tab, ok := snap.State.Tabs[tabID]
	if !ok {
		return nil
	}
	profile, ok := snap.State.Profiles[tab.ProfileID]
	if !ok {
		return nil
	}
	if _, err := d.engine.Dispatch(intent.ActivateTab(tabID)); err != nil {
		return err
	}
	d.scheduler.ActivateTab(ctx, tab.ProfileID, tabID, profile.ContentPartition)
	return nil
}

func (d *Dispatcher) handleNewTab(l line) (string, error) {
	args, err := l.fields(1)
	if err != nil {
		return "", err
	}
	workspaceID, err := parseWorkspaceID(args[0])
	if err != nil {
		return "", fmt.Errorf("new_tab: %w", err)
	}
	// new_tab carries only a workspace id; the created tab is blank and
	// immediately made active.
	p, err := d.engine.Dispatch(intent.NewTab(workspaceID, "", true))
	if err != nil {
		return "", err
	}
	d.trackNewTabs(p)
	return "", nil
}

// trackNewTabs registers every tab an UpsertTab op introduces with the
// scheduler so it enters LRU/warm-budget accounting from the moment it
// exists. The reducer itself never touches the scheduler.
func (d *Dispatcher) trackNewTabs(p patch.Patch) {
	for _, op := range p.Ops {
		if op.Kind == patch.OpUpsertTab && op.Tab != nil {
			if _, known := d.scheduler.Snapshot(op.Tab.ID); !known {
				d.scheduler.Track(op.Tab.ID, op.Tab.ProfileID, op.Tab.WorkspaceID, op.Tab.Pinned)
			}
		}
	}
}

func (d *Dispatcher) handleCloseTab(ctx context.Context, l line) (string, error) {
	tabID, err := parseTabID(l.rest)
	if err != nil {
		return "", fmt.Errorf("close_tab: %w", err)
	}
	if _, err := d.engine.Dispatch(intent.CloseTab(tabID)); err != nil {
		return "", err
	}
	d.scheduler.Untrack(ctx, tabID)
	return "", nil
}

func (d *Dispatcher) handleActivateTab(ctx context.Context, l line) (string, error) {
	tabID, err := parseTabID(l.rest)
	if err != nil {
		return "", fmt.Errorf("activate_tab: %w", err)
	}
	snapBefore := d.engine.Snapshot()
	tab, ok := snapBefore.State.Tabs[tabID]
	if !ok {
		return "", fmt.Errorf("activate_tab: tab %s not found", tabID)
	}
	if _, err := d.engine.Dispatch(intent.ActivateTab(tabID)); err != nil {
		return "", err
	}
	profile, ok := snapBefore.State.Profiles[tab.ProfileID]
	if !ok {
		return "", fmt.Errorf("activate_tab: profile %s not found", tab.ProfileID)
	}
	d.scheduler.ActivateTab(ctx, tab.ProfileID, tabID, profile.ContentPartition)
	return "", nil
}

func (d *Dispatcher) handleNewWorkspace(l line) (string, error) {
	name := l.rest
	if name == "" {
		name = "New Workspace"
	}
	snap := d.engine.Snapshot()
	if snap.State.ActiveProfileID == nil {
		return "", fmt.Errorf("new_workspace: no active profile")
	}
	if _, err := d.engine.Dispatch(intent.NewWorkspace(*snap.State.ActiveProfileID, name)); err != nil {
		return "", err
	}
	return "", nil
}

func (d *Dispatcher) handleRenameWorkspace(l line) (string, error) {
	args, err := l.fields(2)
	if err != nil {
		return "", err
	}
	workspaceID, err := parseWorkspaceID(args[0])
	if err != nil {
		return "", fmt.Errorf("rename_workspace: %w", err)
	}
	if _, err := d.engine.Dispatch(intent.RenameWorkspace(workspaceID, args[1])); err != nil {
		return "", err
	}
	return "", nil
}

func (d *Dispatcher) handleDeleteWorkspace(ctx context.Context, l line) (string, error) {
	workspaceID, err := parseWorkspaceID(l.rest)
	if err != nil {
		return "", fmt.Errorf("delete_workspace: %w", err)
	}
	snap := d.engine.Snapshot()
	ws, ok := snap.State.Workspaces[workspaceID]
	if !ok {
		return "", fmt.Errorf("delete_workspace: workspace %s not found", workspaceID)
	}
	tabIDs := append([]ids.TabID(nil), ws.TabOrder...)
	if _, err := d.engine.Dispatch(intent.DeleteWorkspace(workspaceID)); err != nil {
		return "", err
	}
	for _, tabID := range tabIDs {
		d.scheduler.Untrack(ctx, tabID)
	}
	return "", nil
}

func (d *Dispatcher) handleSwitchWorkspace(ctx context.Context, l line) (string, error) {
	workspaceID, err := parseWorkspaceID(l.rest)
	if err != nil {
		return "", fmt.Errorf("switch_workspace: %w", err)
	}
	if _, err := d.engine.Dispatch(intent.SwitchWorkspace(workspaceID)); err != nil {
		return "", err
	}
	snap := d.engine.Snapshot()
	ws, ok := snap.State.Workspaces[workspaceID]
	if !ok || ws.ActiveTabID == nil {
		return "", nil
	}
	profile, ok := snap.State.Profiles[ws.ProfileID]
	if !ok {
		return "", nil
	}
	return "", d.activateIfNotActive(ctx, *ws.ActiveTabID, ws.ProfileID, profile.ContentPartition)
}

func (d *Dispatcher) activateIfNotActive(ctx context.Context, tabID ids.TabID, profileID ids.ProfileID, partition string) error {
	rt, ok := d.scheduler.Snapshot(tabID)
	if ok && rt.Lifecycle == state.RuntimeActive {
		return nil
	}
	d.scheduler.ActivateTab(ctx, profileID, tabID, partition)
	return nil
}

func (d *Dispatcher) handleNewProfile(l line) (string, error) {
	name := l.rest
	if name == "" {
		return "", fmt.Errorf("new_profile: name is required")
	}
	if _, err := d.engine.Dispatch(intent.NewProfile(name)); err != nil {
		return "", err
	}
	return "", nil
}

func (d *Dispatcher) handleRenameProfile(l line) (string, error) {
	args, err := l.fields(2)
	if err != nil {
		return "", err
	}
	profileID, err := parseProfileID(args[0])
	if err != nil {
		return "", fmt.Errorf("rename_profile: %w", err)
	}
	if _, err := d.engine.Dispatch(intent.RenameProfile(profileID, args[1])); err != nil {
		return "", err
	}
	return "", nil
}

func (d *Dispatcher) handleDeleteProfile(ctx context.Context, l line) (string, error) {
	profileID, err := parseProfileID(l.rest)
	if err != nil {
		return "", fmt.Errorf("delete_profile: %w", err)
	}
	snap := d.engine.Snapshot()
	var tabIDs []ids.TabID
	for _, w := range snap.State.Workspaces {
		if w.ProfileID == profileID {
			tabIDs = append(tabIDs, w.TabOrder...)
		}
	}
	if _, err := d.engine.Dispatch(intent.DeleteProfile(profileID)); err != nil {
		return "", err
	}
	for _, tabID := range tabIDs {
		d.scheduler.Untrack(ctx, tabID)
	}
	return "", nil
}

func (d *Dispatcher) handleSwitchProfile(ctx context.Context, l line) (string, error) {
	profileID, err := parseProfileID(l.rest)
	if err != nil {
		return "", fmt.Errorf("switch_profile: %w", err)
	}
	if _, err := d.engine.Dispatch(intent.SwitchProfile(profileID)); err != nil {
		return "", err
	}
	snap := d.engine.Snapshot()
	profile, ok := snap.State.Profiles[profileID]
	if !ok || profile.ActiveWorkspaceID == nil {
		return "", nil
	}
	ws, ok := snap.State.Workspaces[*profile.ActiveWorkspaceID]
	if !ok || ws.ActiveTabID == nil {
		return "", nil
	}
	return "", d.activateIfNotActive(ctx, *ws.ActiveTabID, profileID, profile.ContentPartition)
}

func (d *Dispatcher) handleSettingSetText(l line) (string, error) {
	args, err := l.fields(2)
	if err != nil {
		return "", err
	}
	key, value := args[0], args[1]
	validate, recognized := intent.RecognizedSettingKeys[key]
	if !recognized || !validate(value) {
		return "", fmt.Errorf("setting_set_text: %q is not a recognized settings key or value", key)
	}
	if _, err := d.engine.Dispatch(intent.SettingSetText(key, value)); err != nil {
		return "", err
	}
	return "", nil
}

func (d *Dispatcher) handleUiOverlay(l line) (string, error) {
	on, err := parseBool(l.rest)
	if err != nil {
		return "", fmt.Errorf("ui_overlay: %w", err)
	}
	d.overlay.set(on)
	return "", nil
}

func (d *Dispatcher) handleFrameCommitted(ctx context.Context, l line) (string, error) {
	revision, err := parseID(l.rest)
	if err != nil {
		return "", fmt.Errorf("frame_committed: %w", err)
	}
	snap := d.engine.Snapshot()
	partitionOf := func(tabID ids.TabID) string {
		tab, ok := snap.State.Tabs[tabID]
		if !ok {
			return ""
		}
		profile, ok := snap.State.Profiles[tab.ProfileID]
		if !ok {
			return ""
		}
		return profile.ContentPartition
	}
	urlOf := func(tabID ids.TabID) string {
		if tab, ok := snap.State.Tabs[tabID]; ok {
			return tab.URL
		}
		return ""
	}
	d.scheduler.FrameCommitted(ctx, revision, partitionOf, urlOf)
	return "", nil
}

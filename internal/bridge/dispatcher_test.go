package bridge_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/switchboardhq/supervisor/internal/bridge"
	"github.com/switchboardhq/supervisor/internal/core/engine"
	"github.com/switchboardhq/supervisor/internal/core/state"
	"github.com/switchboardhq/supervisor/internal/enginemgr"
	"github.com/switchboardhq/supervisor/internal/infrastructure/monitoring"
	"github.com/switchboardhq/supervisor/internal/lifecycle"
)

// testMetrics is shared by every test: monitoring.New registers its
// collectors with the default Prometheus registry and may run only once.
var testMetrics = monitoring.New()

func newTestDispatcher(t *testing.T) *bridge.Dispatcher {
	t.Helper()
	eng := engine.New(state.New(), 0, engine.Config{})
	mgr := enginemgr.New(enginemgr.NewSimHost(), zap.NewNop(), testMetrics)
	sched := lifecycle.New(mgr, eng, lifecycle.DefaultWarmBudget)
	return bridge.New(eng, sched, zap.NewNop(), mgr.ResolveThumbnail, 16)
}

func runDispatcher(t *testing.T, d *bridge.Dispatcher) (context.Context, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	t.Cleanup(cancel)
	return ctx, cancel
}

func TestDispatchRejectsUnprivilegedOrigin(t *testing.T) {
	d := newTestDispatcher(t)
	ctx, _ := runDispatcher(t, d)

	_, err := d.Dispatch(ctx, "https://evil.example", "ui_ready 1.0")
	assert.ErrorIs(t, err, bridge.ErrForbiddenOrigin)
}

func TestDispatchRejectsEmptyLine(t *testing.T) {
	d := newTestDispatcher(t)
	ctx, _ := runDispatcher(t, d)

	_, err := d.Dispatch(ctx, bridge.PrivilegedOrigin, "   ")
	assert.Error(t, err)
}

func TestDispatchRejectsUnrecognizedVerb(t *testing.T) {
	d := newTestDispatcher(t)
	ctx, _ := runDispatcher(t, d)

	_, err := d.Dispatch(ctx, bridge.PrivilegedOrigin, "not_a_real_verb foo")
	assert.Error(t, err)
}

func TestNewProfileWorkspaceTabFlowAppearsInShellState(t *testing.T) {
	d := newTestDispatcher(t)
	ctx, _ := runDispatcher(t, d)

	_, err := d.Dispatch(ctx, bridge.PrivilegedOrigin, "new_profile Personal")
	require.NoError(t, err)

	_, err = d.Dispatch(ctx, bridge.PrivilegedOrigin, "new_workspace Main")
	require.NoError(t, err)

	resp, err := d.Dispatch(ctx, bridge.PrivilegedOrigin, "query_shell_state")
	require.NoError(t, err)

	var snap struct {
		Profiles []struct {
			ID             uint64   `json:"id"`
			WorkspaceOrder []uint64 `json:"workspace_order"`
		} `json:"profiles"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp), &snap))
	require.Len(t, snap.Profiles, 1)
	require.Len(t, snap.Profiles[0].WorkspaceOrder, 1)
	workspaceID := snap.Profiles[0].WorkspaceOrder[0]

	_, err = d.Dispatch(ctx, bridge.PrivilegedOrigin, fmt.Sprintf("new_tab %d", workspaceID))
	require.NoError(t, err)

	resp, err = d.Dispatch(ctx, bridge.PrivilegedOrigin, "query_shell_state")
	require.NoError(t, err)

	var afterTab struct {
		Tabs []struct {
			ID uint64 `json:"id"`
		} `json:"tabs"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp), &afterTab))
	require.Len(t, afterTab.Tabs, 1)
}

func TestNavigateRejectsNonHTTPScheme(t *testing.T) {
	d := newTestDispatcher(t)
	ctx, _ := runDispatcher(t, d)

	_, err := d.Dispatch(ctx, bridge.PrivilegedOrigin, "navigate javascript:alert(1)")
	assert.Error(t, err)
}

func TestNavigateWithNoActiveTabFails(t *testing.T) {
	d := newTestDispatcher(t)
	ctx, _ := runDispatcher(t, d)

	_, err := d.Dispatch(ctx, bridge.PrivilegedOrigin, "navigate https://example.com")
	assert.Error(t, err)
}

func TestDispatchQueueFullReturnsRetryableError(t *testing.T) {
	eng := engine.New(state.New(), 0, engine.Config{})
	mgr := enginemgr.New(enginemgr.NewSimHost(), zap.NewNop(), testMetrics)
	sched := lifecycle.New(mgr, eng, lifecycle.DefaultWarmBudget)
	d := bridge.New(eng, sched, zap.NewNop(), mgr.ResolveThumbnail, 1)

	// No Run goroutine is started, so the first Dispatch call fills the
	// single-slot queue and blocks waiting for a response that never comes.
	go func() { _, _ = d.Dispatch(context.Background(), bridge.PrivilegedOrigin, "ui_ready 1.0") }()
	time.Sleep(20 * time.Millisecond)

	_, err := d.Dispatch(context.Background(), bridge.PrivilegedOrigin, "ui_ready 1.0")
	assert.ErrorIs(t, err, bridge.ErrQueueFull)
}

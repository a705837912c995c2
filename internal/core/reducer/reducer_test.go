package reducer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchboardhq/supervisor/internal/core/ids"
	"github.com/switchboardhq/supervisor/internal/core/intent"
	"github.com/switchboardhq/supervisor/internal/core/patch"
	"github.com/switchboardhq/supervisor/internal/core/reducer"
	"github.com/switchboardhq/supervisor/internal/core/state"
)

func fixedClock() reducer.Clock {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

// bootstrap replays the cold-boot sequence from S1: one profile, one
// workspace, one tab, all made active in turn.
func bootstrap(t *testing.T) (*state.BrowserState, uint64) {
	t.Helper()
	s := state.New()
	clock := fixedClock()
	var rev uint64

	_, err := reducer.Apply(s, intent.NewProfile("Default"), clock)
	require.NoError(t, err)
	rev++

	_, err = reducer.Apply(s, intent.NewWorkspace(1, "Home"), clock)
	require.NoError(t, err)
	rev++

	_, err = reducer.Apply(s, intent.NewTab(1, "https://youtube.com", true), clock)
	require.NoError(t, err)
	rev++

	return s, rev
}

func TestS1ColdBoot(t *testing.T) {
	s, rev := bootstrap(t)
	require.EqualValues(t, 3, rev)

	require.NotNil(t, s.ActiveProfileID)
	assert.EqualValues(t, 1, *s.ActiveProfileID)

	p := s.Profiles[1]
	require.NotNil(t, p.ActiveWorkspaceID)
	assert.EqualValues(t, 1, *p.ActiveWorkspaceID)

	ws := s.Workspaces[1]
	require.NotNil(t, ws.ActiveTabID)
	assert.EqualValues(t, 1, *ws.ActiveTabID)

	tab := s.Tabs[1]
	assert.Equal(t, "https://youtube.com", tab.URL)
}

func TestS2NavigateOnActiveTab(t *testing.T) {
	s, _ := bootstrap(t)

	ops, err := reducer.Apply(s, intent.Navigate(1, "https://example.com"), fixedClock())
	require.NoError(t, err)

	require.Len(t, ops, 1)
	assert.Equal(t, patch.OpUpsertTab, ops[0].Kind)
	assert.Equal(t, "https://example.com", ops[0].Tab.URL)
	assert.Equal(t, "https://example.com", s.Tabs[1].URL)
}

func TestS6LastProfileProtection(t *testing.T) {
	s, _ := bootstrap(t)

	_, err := reducer.Apply(s, intent.DeleteProfile(1), fixedClock())
	require.Error(t, err)

	kind, ok := reducer.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, reducer.KindInvariantViolation, kind)

	// State unchanged: the only profile is still there.
	assert.Len(t, s.Profiles, 1)
	assert.Contains(t, s.Profiles, s.Profiles[1].ID)
}

func TestCloseTabSelectsSuccessorAtSameIndex(t *testing.T) {
	s := state.New()
	clock := fixedClock()
	mustApply(t, s, intent.NewProfile("Default"), clock)
	mustApply(t, s, intent.NewWorkspace(1, "Home"), clock)
	mustApply(t, s, intent.NewTab(1, "https://a.example", true), clock)
	mustApply(t, s, intent.NewTab(1, "https://b.example", false), clock)
	mustApply(t, s, intent.NewTab(1, "https://c.example", false), clock)

	// order: [1, 2, 3], activate tab 2 (middle)
	mustApply(t, s, intent.ActivateTab(2), clock)

	ops, err := reducer.Apply(s, intent.CloseTab(2), clock)
	require.NoError(t, err)

	ws := s.Workspaces[1]
	require.NotNil(t, ws.ActiveTabID)
	// after removing id=2 from [1,2,3] -> [1,3]; successor at same index (1) is id=3
	assert.EqualValues(t, 3, *ws.ActiveTabID)

	foundSetActiveTab := false
	for _, op := range ops {
		if op.Kind == patch.OpSetActiveTab {
			foundSetActiveTab = true
			require.NotNil(t, op.ActiveTabID)
			assert.EqualValues(t, 3, *op.ActiveTabID)
		}
	}
	assert.True(t, foundSetActiveTab)
}

func TestCloseLastTabInWorkspaceClearsActive(t *testing.T) {
	s := state.New()
	clock := fixedClock()
	mustApply(t, s, intent.NewProfile("Default"), clock)
	mustApply(t, s, intent.NewWorkspace(1, "Home"), clock)
	mustApply(t, s, intent.NewTab(1, "https://a.example", true), clock)

	_, err := reducer.Apply(s, intent.CloseTab(1), clock)
	require.NoError(t, err)

	assert.Nil(t, s.Workspaces[1].ActiveTabID)
	assert.Empty(t, s.Tabs)
}

func TestActivateAlreadyActiveTabIsNoop(t *testing.T) {
	s, _ := bootstrap(t)

	ops, err := reducer.Apply(s, intent.ActivateTab(1), fixedClock())
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestMoveTabAcrossWorkspacesReparents(t *testing.T) {
	s := state.New()
	clock := fixedClock()
	mustApply(t, s, intent.NewProfile("Default"), clock)
	mustApply(t, s, intent.NewWorkspace(1, "Home"), clock)
	mustApply(t, s, intent.NewWorkspace(1, "Work"), clock)
	mustApply(t, s, intent.NewTab(1, "https://a.example", true), clock)

	_, err := reducer.Apply(s, intent.MoveTab(1, 2, 0), clock)
	require.NoError(t, err)

	assert.EqualValues(t, 2, s.Tabs[1].WorkspaceID)
	assert.Empty(t, s.Workspaces[1].TabOrder)
	require.Len(t, s.Workspaces[2].TabOrder, 1)
	assert.EqualValues(t, 1, s.Workspaces[2].TabOrder[0])
	// source workspace's active tab pointer cleared since its only tab moved away
	assert.Nil(t, s.Workspaces[1].ActiveTabID)
}

func TestMoveTabRejectsCrossProfile(t *testing.T) {
	s := state.New()
	clock := fixedClock()
	mustApply(t, s, intent.NewProfile("Default"), clock)
	mustApply(t, s, intent.NewProfile("Work"), clock)
	mustApply(t, s, intent.NewWorkspace(1, "Home"), clock)
	mustApply(t, s, intent.NewWorkspace(2, "Other"), clock)
	mustApply(t, s, intent.NewTab(1, "https://a.example", true), clock)

	_, err := reducer.Apply(s, intent.MoveTab(1, 2, 0), clock)
	require.Error(t, err)
	kind, ok := reducer.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, reducer.KindInvariantViolation, kind)
}

func TestDeleteWorkspaceCascadesTabsAndRejectsLastOne(t *testing.T) {
	s := state.New()
	clock := fixedClock()
	mustApply(t, s, intent.NewProfile("Default"), clock)
	mustApply(t, s, intent.NewWorkspace(1, "Home"), clock)
	mustApply(t, s, intent.NewWorkspace(1, "Work"), clock)
	mustApply(t, s, intent.NewTab(1, "https://a.example", true), clock)
	mustApply(t, s, intent.NewTab(1, "https://b.example", false), clock)

	_, err := reducer.Apply(s, intent.DeleteWorkspace(1), clock)
	require.NoError(t, err)
	assert.NotContains(t, s.Workspaces, ids.WorkspaceID(1))
	assert.Empty(t, s.Tabs)

	_, err = reducer.Apply(s, intent.DeleteWorkspace(2), clock)
	require.Error(t, err)
	kind, ok := reducer.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, reducer.KindInvariantViolation, kind)
}

func TestDeleteProfileCascadesAndPromotesSuccessor(t *testing.T) {
	s := state.New()
	clock := fixedClock()
	mustApply(t, s, intent.NewProfile("Default"), clock)
	mustApply(t, s, intent.NewProfile("Work"), clock)
	mustApply(t, s, intent.NewWorkspace(1, "Home"), clock)
	mustApply(t, s, intent.NewTab(1, "https://a.example", true), clock)

	_, err := reducer.Apply(s, intent.DeleteProfile(1), clock)
	require.NoError(t, err)

	assert.Empty(t, s.Workspaces)
	assert.Empty(t, s.Tabs)
	require.NotNil(t, s.ActiveProfileID)
	assert.EqualValues(t, 2, *s.ActiveProfileID)
}

func TestSettingSetTextRejectsUnrecognizedKey(t *testing.T) {
	s := state.New()
	_, err := reducer.Apply(s, intent.SettingSetText("not_a_real_key", "x"), fixedClock())
	require.Error(t, err)
	kind, ok := reducer.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, reducer.KindMalformedIntent, kind)
}

func TestSettingSetTextRejectsInvalidEnumValue(t *testing.T) {
	s := state.New()
	_, err := reducer.Apply(s, intent.SettingSetText("search_engine", "altavista"), fixedClock())
	require.Error(t, err)
	kind, ok := reducer.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, reducer.KindMalformedIntent, kind)
}

func TestSettingSetTextAcceptsRecognizedKey(t *testing.T) {
	s := state.New()
	ops, err := reducer.Apply(s, intent.SettingSetText("search_engine", "duckduckgo"), fixedClock())
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "duckduckgo", s.Settings["search_engine"])
}

func TestFrameCommittedAndUiReadyNeverMutate(t *testing.T) {
	s, _ := bootstrap(t)
	before := s.Clone()

	ops, err := reducer.Apply(s, intent.FrameCommitted(3), fixedClock())
	require.NoError(t, err)
	assert.Empty(t, ops)
	assert.Equal(t, before.Tabs[1].URL, s.Tabs[1].URL)

	ops, err = reducer.Apply(s, intent.UiReady("1.0"), fixedClock())
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestEngineOriginEventsIgnoreMissingTab(t *testing.T) {
	s := state.New()
	ops, err := reducer.Apply(s, intent.TitleChanged(999, "gone"), fixedClock())
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestDiscardTabProducesNoCanonicalOps(t *testing.T) {
	s, _ := bootstrap(t)
	ops, err := reducer.Apply(s, intent.DiscardTab(1), fixedClock())
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestIdsAreMonotonicAndNeverReused(t *testing.T) {
	s := state.New()
	clock := fixedClock()
	mustApply(t, s, intent.NewProfile("Default"), clock)
	mustApply(t, s, intent.NewWorkspace(1, "Home"), clock)
	mustApply(t, s, intent.NewTab(1, "https://a.example", false), clock)
	mustApply(t, s, intent.NewTab(1, "https://b.example", false), clock)

	_, err := reducer.Apply(s, intent.CloseTab(1), clock)
	require.NoError(t, err)

	mustApply(t, s, intent.NewTab(1, "https://c.example", false), clock)
	assert.NotContains(t, s.Tabs, ids.TabID(1))
	_, ok := s.Tabs[3]
	assert.True(t, ok, "newly issued id must continue past the closed id, never reuse it")
}

func mustApply(t *testing.T, s *state.BrowserState, in intent.Intent, clock reducer.Clock) []patch.Op {
	t.Helper()
	ops, err := reducer.Apply(s, in, clock)
	require.NoError(t, err)
	return ops
}


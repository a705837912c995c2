package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchboardhq/supervisor/internal/core/ids"
	"github.com/switchboardhq/supervisor/internal/core/patch"
	"github.com/switchboardhq/supervisor/internal/core/state"
)

func testProfile(id ids.ProfileID, workspaceID ids.WorkspaceID) *state.Profile {
	return &state.Profile{
		ID:               id,
		Name:             "Default",
		CreatedAt:        time.Unix(1700000000, 0),
		LastActiveAt:     time.Unix(1700000000, 0),
		ContentPartition: "partition-1",
		WorkspaceOrder:   []ids.WorkspaceID{workspaceID},
	}
}

func testWorkspace(id ids.WorkspaceID, profileID ids.ProfileID) *state.Workspace {
	return &state.Workspace{
		ID:        id,
		ProfileID: profileID,
		Name:      "Main",
		SortIndex: 0,
		CreatedAt: time.Unix(1700000000, 0),
		UpdatedAt: time.Unix(1700000000, 0),
	}
}

func testTab(id ids.TabID, profileID ids.ProfileID, workspaceID ids.WorkspaceID) *state.Tab {
	return &state.Tab{
		ID:          id,
		ProfileID:   profileID,
		WorkspaceID: workspaceID,
		URL:         "https://example.com",
		Title:       "Example",
		CreatedAt:   time.Unix(1700000000, 0),
		UpdatedAt:   time.Unix(1700000000, 0),
	}
}

func runStoreRoundTrip(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	profileID, workspaceID, tabID := ids.ProfileID(1), ids.WorkspaceID(1), ids.TabID(1)

	ops := []patch.Op{
		patch.UpsertProfile(testProfile(profileID, workspaceID)),
		patch.UpsertWorkspace(testWorkspace(workspaceID, profileID)),
		patch.UpsertTab(testTab(tabID, profileID, workspaceID)),
		patch.SetTabOrder(workspaceID, []ids.TabID{tabID}),
		patch.SetActiveWorkspace(profileID, &workspaceID),
		patch.SetActiveTab(workspaceID, &tabID),
		patch.SetActiveProfile(&profileID),
		patch.SetSetting("search_engine", "https://example.com/search?q="),
	}
	require.NoError(t, store.Commit(ops))

	loaded, revision, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), revision)

	require.Contains(t, loaded.Profiles, profileID)
	assert.Equal(t, []ids.WorkspaceID{workspaceID}, loaded.Profiles[profileID].WorkspaceOrder)
	require.NotNil(t, loaded.ActiveProfileID)
	assert.Equal(t, profileID, *loaded.ActiveProfileID)

	require.Contains(t, loaded.Workspaces, workspaceID)
	require.NotNil(t, loaded.Workspaces[workspaceID].ActiveTabID)
	assert.Equal(t, tabID, *loaded.Workspaces[workspaceID].ActiveTabID)
	assert.Equal(t, []ids.TabID{tabID}, loaded.Workspaces[workspaceID].TabOrder)

	require.Contains(t, loaded.Tabs, tabID)
	assert.Equal(t, "https://example.com", loaded.Tabs[tabID].URL)
	assert.Equal(t, "https://example.com/search?q=", loaded.Settings["search_engine"])

	// A second commit that removes the tab should clear its ordering row too.
	require.NoError(t, store.Commit([]patch.Op{
		patch.RemoveTab(tabID),
		patch.SetTabOrder(workspaceID, nil),
	}))
	loaded, revision, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), revision)
	assert.NotContains(t, loaded.Tabs, tabID)
	assert.Empty(t, loaded.Workspaces[workspaceID].TabOrder)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	runStoreRoundTrip(t, NewMemoryStore())
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "supervisor.db")
	store, err := OpenSQLite(path)
	require.NoError(t, err)
	defer store.Close()

	runStoreRoundTrip(t, store)
}

func TestSQLiteStoreThumbnailCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "supervisor.db")
	store, err := OpenSQLite(path)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.PutThumbnail("ref-1", "image/png", []byte{0x01, 0x02, 0x03}))
	mime, data, ok, err := store.GetThumbnail("ref-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, data)

	_, _, ok, err = store.GetThumbnail("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEmptyStoreLoadsFreshState(t *testing.T) {
	store := NewMemoryStore()
	loaded, revision, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), revision)
	assert.Empty(t, loaded.Profiles)
}

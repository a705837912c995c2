package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/switchboardhq/supervisor/internal/core/ids"
	"github.com/switchboardhq/supervisor/internal/core/patch"
	"github.com/switchboardhq/supervisor/internal/core/state"
)

// SQLiteStore is the concrete C7 persistence adapter: profiles, workspaces,
// tabs, workspace_tabs ordering, settings, and thumbnails in a local
// modernc.org/sqlite database. It never touches runtime-only fields.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if absent) the database at path, applies
// pending migrations, and returns a ready Store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("persistence: create data dir: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // single mutation thread; avoid WAL writer contention

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	version, err := userVersion(db)
	if err != nil {
		return err
	}
	if version >= SchemaVersion {
		return nil
	}

	schema := `
	CREATE TABLE IF NOT EXISTS meta (
	  key   TEXT PRIMARY KEY,
	  value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS profiles (
	  id                  INTEGER PRIMARY KEY,
	  name                TEXT NOT NULL,
	  created_at          INTEGER NOT NULL,
	  last_active_at      INTEGER NOT NULL,
	  content_partition   TEXT NOT NULL,
	  workspace_order     TEXT NOT NULL DEFAULT '[]',
	  active_workspace_id INTEGER
	);

	CREATE TABLE IF NOT EXISTS workspaces (
	  id             INTEGER PRIMARY KEY,
	  profile_id     INTEGER NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
	  name           TEXT NOT NULL,
	  sort_index     INTEGER NOT NULL,
	  active_tab_id  INTEGER,
	  created_at     INTEGER NOT NULL,
	  updated_at     INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_workspaces_profile ON workspaces(profile_id);

	CREATE TABLE IF NOT EXISTS tabs (
	  id           INTEGER PRIMARY KEY,
	  profile_id   INTEGER NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
	  workspace_id INTEGER NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
	  url          TEXT NOT NULL DEFAULT '',
	  title        TEXT NOT NULL DEFAULT '',
	  favicon_ref  TEXT NOT NULL DEFAULT '',
	  pinned       INTEGER NOT NULL DEFAULT 0,
	  muted        INTEGER NOT NULL DEFAULT 0,
	  created_at   INTEGER NOT NULL,
	  updated_at   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tabs_workspace ON tabs(workspace_id);

	CREATE TABLE IF NOT EXISTS workspace_tabs (
	  workspace_id INTEGER NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
	  tab_id       INTEGER NOT NULL REFERENCES tabs(id) ON DELETE CASCADE,
	  sort_index   INTEGER NOT NULL,
	  PRIMARY KEY (workspace_id, tab_id)
	);

	CREATE TABLE IF NOT EXISTS settings (
	  key   TEXT PRIMARY KEY,
	  value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS thumbnails (
	  ref        TEXT PRIMARY KEY,
	  mime       TEXT NOT NULL,
	  data       BLOB NOT NULL,
	  created_at INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("persistence: migrate: %w", err)
	}
	return setUserVersion(db, SchemaVersion)
}

func userVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&v); err != nil {
		return 0, fmt.Errorf("persistence: read user_version: %w", err)
	}
	return v, nil
}

func setUserVersion(db *sql.DB, v int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", v)); err != nil {
		return fmt.Errorf("persistence: set user_version: %w", err)
	}
	return nil
}

// Load reconstructs canonical state from the tables above. The revision
// stored in meta reflects the last successful Commit, per the Store
// interface's counting contract.
func (s *SQLiteStore) Load(ctx context.Context) (*state.BrowserState, uint64, error) {
	out := state.New()

	profileRows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at, last_active_at, content_partition, workspace_order, active_workspace_id FROM profiles`)
	if err != nil {
		return nil, 0, fmt.Errorf("persistence: load profiles: %w", err)
	}
	for profileRows.Next() {
		var (
			id, createdAt, lastActiveAt int64
			name, partition, orderJSON  string
			activeWorkspaceID           sql.NullInt64
		)
		if err := profileRows.Scan(&id, &name, &createdAt, &lastActiveAt, &partition, &orderJSON, &activeWorkspaceID); err != nil {
			profileRows.Close()
			return nil, 0, fmt.Errorf("persistence: scan profile: %w", err)
		}
		p := &state.Profile{
			ID:               ids.ProfileID(id),
			Name:             name,
			CreatedAt:        time.Unix(0, createdAt),
			LastActiveAt:     time.Unix(0, lastActiveAt),
			ContentPartition: partition,
			WorkspaceOrder:   decodeIDList[ids.WorkspaceID](orderJSON),
		}
		if activeWorkspaceID.Valid {
			w := ids.WorkspaceID(activeWorkspaceID.Int64)
			p.ActiveWorkspaceID = &w
		}
		out.Profiles[p.ID] = p
	}
	profileRows.Close()
	if err := profileRows.Err(); err != nil {
		return nil, 0, fmt.Errorf("persistence: iterate profiles: %w", err)
	}

	workspaceRows, err := s.db.QueryContext(ctx, `SELECT id, profile_id, name, sort_index, active_tab_id, created_at, updated_at FROM workspaces`)
	if err != nil {
		return nil, 0, fmt.Errorf("persistence: load workspaces: %w", err)
	}
	for workspaceRows.Next() {
		var (
			id, profileID, sortIndex, createdAt, updatedAt int64
			name                                           string
			activeTabID                                    sql.NullInt64
		)
		if err := workspaceRows.Scan(&id, &profileID, &name, &sortIndex, &activeTabID, &createdAt, &updatedAt); err != nil {
			workspaceRows.Close()
			return nil, 0, fmt.Errorf("persistence: scan workspace: %w", err)
		}
		w := &state.Workspace{
			ID:        ids.WorkspaceID(id),
			ProfileID: ids.ProfileID(profileID),
			Name:      name,
			SortIndex: int(sortIndex),
			CreatedAt: time.Unix(0, createdAt),
			UpdatedAt: time.Unix(0, updatedAt),
		}
		if activeTabID.Valid {
			t := ids.TabID(activeTabID.Int64)
			w.ActiveTabID = &t
		}
		out.Workspaces[w.ID] = w
	}
	workspaceRows.Close()
	if err := workspaceRows.Err(); err != nil {
		return nil, 0, fmt.Errorf("persistence: iterate workspaces: %w", err)
	}

	tabRows, err := s.db.QueryContext(ctx, `SELECT id, profile_id, workspace_id, url, title, favicon_ref, pinned, muted, created_at, updated_at FROM tabs`)
	if err != nil {
		return nil, 0, fmt.Errorf("persistence: load tabs: %w", err)
	}
	for tabRows.Next() {
		var (
			id, profileID, workspaceID, createdAt, updatedAt int64
			url, title, faviconRef                           string
			pinned, muted                                    bool
		)
		if err := tabRows.Scan(&id, &profileID, &workspaceID, &url, &title, &faviconRef, &pinned, &muted, &createdAt, &updatedAt); err != nil {
			tabRows.Close()
			return nil, 0, fmt.Errorf("persistence: scan tab: %w", err)
		}
		out.Tabs[ids.TabID(id)] = &state.Tab{
			ID:          ids.TabID(id),
			ProfileID:   ids.ProfileID(profileID),
			WorkspaceID: ids.WorkspaceID(workspaceID),
			URL:         url,
			Title:       title,
			FaviconRef:  faviconRef,
			Pinned:      pinned,
			Muted:       muted,
			CreatedAt:   time.Unix(0, createdAt),
			UpdatedAt:   time.Unix(0, updatedAt),
		}
	}
	tabRows.Close()
	if err := tabRows.Err(); err != nil {
		return nil, 0, fmt.Errorf("persistence: iterate tabs: %w", err)
	}

	workspaceTabRows, err := s.db.QueryContext(ctx, `SELECT workspace_id, tab_id FROM workspace_tabs ORDER BY workspace_id, sort_index`)
	if err != nil {
		return nil, 0, fmt.Errorf("persistence: load workspace_tabs: %w", err)
	}
	for workspaceTabRows.Next() {
		var workspaceID, tabID int64
		if err := workspaceTabRows.Scan(&workspaceID, &tabID); err != nil {
			workspaceTabRows.Close()
			return nil, 0, fmt.Errorf("persistence: scan workspace_tabs: %w", err)
		}
		if w, ok := out.Workspaces[ids.WorkspaceID(workspaceID)]; ok {
			w.TabOrder = append(w.TabOrder, ids.TabID(tabID))
		}
	}
	workspaceTabRows.Close()
	if err := workspaceTabRows.Err(); err != nil {
		return nil, 0, fmt.Errorf("persistence: iterate workspace_tabs: %w", err)
	}

	settingRows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, 0, fmt.Errorf("persistence: load settings: %w", err)
	}
	for settingRows.Next() {
		var key, value string
		if err := settingRows.Scan(&key, &value); err != nil {
			settingRows.Close()
			return nil, 0, fmt.Errorf("persistence: scan setting: %w", err)
		}
		out.Settings[key] = value
	}
	settingRows.Close()
	if err := settingRows.Err(); err != nil {
		return nil, 0, fmt.Errorf("persistence: iterate settings: %w", err)
	}

	var activeProfileIDStr, revisionStr sql.NullString
	_ = s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'active_profile_id'`).Scan(&activeProfileIDStr)
	if activeProfileIDStr.Valid {
		var id uint64
		if _, err := fmt.Sscanf(activeProfileIDStr.String, "%d", &id); err == nil {
			p := ids.ProfileID(id)
			out.ActiveProfileID = &p
		}
	}

	var revision uint64
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'last_revision'`).Scan(&revisionStr); err == nil && revisionStr.Valid {
		fmt.Sscanf(revisionStr.String, "%d", &revision)
	}

	seedGenerators(out)
	return out, revision, nil
}

// Commit applies every op in one transaction, then bumps meta.last_revision
// by one to track the engine's own per-Commit revision advance.
func (s *SQLiteStore) Commit(ops []patch.Op) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("persistence: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, op := range ops {
		if err := applyOpTx(tx, op); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO meta (key, value) VALUES ('last_revision', COALESCE((SELECT CAST(value AS INTEGER) FROM meta WHERE key = 'last_revision'), 0) + 1)
		ON CONFLICT(key) DO UPDATE SET value = CAST(value AS INTEGER) + 1
	`); err != nil {
		return fmt.Errorf("persistence: bump revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persistence: commit tx: %w", err)
	}
	return nil
}

func applyOpTx(tx *sql.Tx, op patch.Op) error {
	switch op.Kind {
	case patch.OpUpsertProfile:
		p := op.Profile
		var activeWorkspaceID interface{}
		if p.ActiveWorkspaceID != nil {
			activeWorkspaceID = int64(*p.ActiveWorkspaceID)
		}
		_, err := tx.Exec(`
			INSERT INTO profiles (id, name, created_at, last_active_at, content_partition, workspace_order, active_workspace_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				last_active_at = excluded.last_active_at,
				content_partition = excluded.content_partition,
				workspace_order = excluded.workspace_order,
				active_workspace_id = excluded.active_workspace_id
		`, int64(p.ID), p.Name, p.CreatedAt.UnixNano(), p.LastActiveAt.UnixNano(), p.ContentPartition, encodeIDList(p.WorkspaceOrder), activeWorkspaceID)
		return wrapExec("upsert profile", err)

	case patch.OpRemoveProfile:
		_, err := tx.Exec(`DELETE FROM profiles WHERE id = ?`, int64(op.ProfileID))
		return wrapExec("remove profile", err)

	case patch.OpUpsertWorkspace:
		w := op.Workspace
		var activeTabID interface{}
		if w.ActiveTabID != nil {
			activeTabID = int64(*w.ActiveTabID)
		}
		_, err := tx.Exec(`
			INSERT INTO workspaces (id, profile_id, name, sort_index, active_tab_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				sort_index = excluded.sort_index,
				active_tab_id = excluded.active_tab_id,
				updated_at = excluded.updated_at
		`, int64(w.ID), int64(w.ProfileID), w.Name, w.SortIndex, activeTabID, w.CreatedAt.UnixNano(), w.UpdatedAt.UnixNano())
		if err != nil {
			return wrapExec("upsert workspace", err)
		}
		return syncWorkspaceTabs(tx, w.ID, w.TabOrder)

	case patch.OpRemoveWorkspace:
		_, err := tx.Exec(`DELETE FROM workspaces WHERE id = ?`, int64(op.WorkspaceID))
		return wrapExec("remove workspace", err)

	case patch.OpUpsertTab:
		t := op.Tab
		_, err := tx.Exec(`
			INSERT INTO tabs (id, profile_id, workspace_id, url, title, favicon_ref, pinned, muted, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				profile_id = excluded.profile_id,
				workspace_id = excluded.workspace_id,
				url = excluded.url,
				title = excluded.title,
				favicon_ref = excluded.favicon_ref,
				pinned = excluded.pinned,
				muted = excluded.muted,
				updated_at = excluded.updated_at
		`, int64(t.ID), int64(t.ProfileID), int64(t.WorkspaceID), t.URL, t.Title, t.FaviconRef, t.Pinned, t.Muted, t.CreatedAt.UnixNano(), t.UpdatedAt.UnixNano())
		return wrapExec("upsert tab", err)

	case patch.OpRemoveTab:
		_, err := tx.Exec(`DELETE FROM tabs WHERE id = ?`, int64(op.TabID))
		return wrapExec("remove tab", err)

	case patch.OpSetActiveProfile:
		var value interface{}
		if op.ActiveProfileID != nil {
			value = fmt.Sprintf("%d", uint64(*op.ActiveProfileID))
		}
		_, err := tx.Exec(`
			INSERT INTO meta (key, value) VALUES ('active_profile_id', ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, value)
		return wrapExec("set active profile", err)

	case patch.OpSetWorkspaceOrder:
		_, err := tx.Exec(`UPDATE profiles SET workspace_order = ? WHERE id = ?`, encodeIDList(op.WorkspaceOrder), int64(op.ProfileID))
		return wrapExec("set workspace order", err)

	case patch.OpSetTabOrder:
		return syncWorkspaceTabs(tx, op.WorkspaceID, op.TabOrder)

	case patch.OpSetActiveWorkspace:
		var value interface{}
		if op.ActiveWorkspaceID != nil {
			value = int64(*op.ActiveWorkspaceID)
		}
		_, err := tx.Exec(`UPDATE profiles SET active_workspace_id = ? WHERE id = ?`, value, int64(op.ProfileID))
		return wrapExec("set active workspace", err)

	case patch.OpSetActiveTab:
		var value interface{}
		if op.ActiveTabID != nil {
			value = int64(*op.ActiveTabID)
		}
		_, err := tx.Exec(`UPDATE workspaces SET active_tab_id = ? WHERE id = ?`, value, int64(op.WorkspaceID))
		return wrapExec("set active tab", err)

	case patch.OpSetSetting:
		_, err := tx.Exec(`
			INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, op.SettingKey, op.SettingValue)
		return wrapExec("set setting", err)

	case patch.OpSetTabRuntime:
		return nil // runtime facts are never persisted

	default:
		return fmt.Errorf("persistence: unrecognized op kind %q", op.Kind)
	}
}

// syncWorkspaceTabs rewrites a workspace's ordering row set to match order:
// a full delete-and-reinsert rather than gap-based index reassignment.
func syncWorkspaceTabs(tx *sql.Tx, workspaceID ids.WorkspaceID, order []ids.TabID) error {
	if _, err := tx.Exec(`DELETE FROM workspace_tabs WHERE workspace_id = ?`, int64(workspaceID)); err != nil {
		return wrapExec("clear workspace_tabs", err)
	}
	for i, tabID := range order {
		if _, err := tx.Exec(`INSERT INTO workspace_tabs (workspace_id, tab_id, sort_index) VALUES (?, ?, ?)`, int64(workspaceID), int64(tabID), i); err != nil {
			return wrapExec("insert workspace_tabs", err)
		}
	}
	return nil
}

func wrapExec(op string, err error) error {
	if err != nil {
		return fmt.Errorf("persistence: %s: %w", op, err)
	}
	return nil
}

// PutThumbnail caches a thumbnail's compressed bytes under its ref. The
// engine resource manager keeps its captures in memory and does not call
// it.
func (s *SQLiteStore) PutThumbnail(ref, mime string, data []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO thumbnails (ref, mime, data, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(ref) DO UPDATE SET mime = excluded.mime, data = excluded.data
	`, ref, mime, data, time.Now().UnixNano())
	return wrapExec("put thumbnail", err)
}

// GetThumbnail returns a cached thumbnail's mime type and compressed bytes.
func (s *SQLiteStore) GetThumbnail(ref string) (mime string, data []byte, ok bool, err error) {
	row := s.db.QueryRow(`SELECT mime, data FROM thumbnails WHERE ref = ?`, ref)
	if err := row.Scan(&mime, &data); err != nil {
		if err == sql.ErrNoRows {
			return "", nil, false, nil
		}
		return "", nil, false, fmt.Errorf("persistence: get thumbnail: %w", err)
	}
	return mime, data, true, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

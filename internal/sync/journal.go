package sync

import (
	"database/sql"
	"fmt"
	"path/filepath"
	gosync "sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/peersync/peersync/internal/utils"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS baseline (
    profile     TEXT NOT NULL,
    endpoint    TEXT NOT NULL,
    path        TEXT NOT NULL,
    kind        INTEGER NOT NULL,
    size        INTEGER NOT NULL,
    mtime       TEXT NOT NULL, -- RFC3339Nano
    hash        TEXT NOT NULL DEFAULT '',
    link_target TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (profile, endpoint, path)
);

CREATE TABLE IF NOT EXISTS conflicts (
    profile     TEXT NOT NULL,
    path        TEXT NOT NULL,
    reason      TEXT NOT NULL,
    policy      TEXT NOT NULL,
    resolution  TEXT NOT NULL,
    detected_at TEXT NOT NULL,
    PRIMARY KEY (profile, path)
);

-- last-synced content of small text files, keyed by fingerprint; gives the
-- merge engine a real base version instead of an empty one
CREATE TABLE IF NOT EXISTS blobs (
    hash TEXT PRIMARY KEY,
    data BLOB NOT NULL
);
`

// MaxBlobSize caps content retained for future merge bases.
const MaxBlobSize = 1 << 20

// Journal is the persistent state store: the baseline snapshot pair from
// the last successful run, unresolved conflicts, and merge-base blobs.
// Backed by SQLite in WAL mode, one database per profile.
type Journal struct {
	db     *sql.DB
	mu     gosync.RWMutex
	dbPath string
}

// OpenJournal creates or opens the journal database at dbPath.
func OpenJournal(dbPath string) (*Journal, error) {
	if err := utils.EnsureDir(filepath.Dir(dbPath)); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=rwc&_journal_mode=WAL&_foreign_keys=1&_synchronous=NORMAL&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal db at %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // SQLite best practice for WAL mode

	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize journal schema: %w", err)
	}
	return &Journal{db: db, dbPath: dbPath}, nil
}

func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Baseline loads the stored snapshot for one endpoint of a profile. An
// empty map is the valid first-run state.
func (j *Journal) Baseline(profile, endpoint string) (map[string]*Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.db.Query(
		"SELECT path, kind, size, mtime, hash, link_target FROM baseline WHERE profile = ? AND endpoint = ?",
		profile, endpoint,
	)
	if err != nil {
		return nil, fmt.Errorf("query baseline: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]*Entry)
	for rows.Next() {
		var e Entry
		var kind int
		var mtimeStr string
		if err := rows.Scan(&e.Path, &kind, &e.Size, &mtimeStr, &e.Hash, &e.LinkTarget); err != nil {
			return nil, fmt.Errorf("scan baseline row: %w", err)
		}
		e.Kind = Kind(kind)
		e.Mtime, err = time.Parse(time.RFC3339Nano, mtimeStr)
		if err != nil {
			return nil, fmt.Errorf("parse stored mtime for %s: %w", e.Path, err)
		}
		entries[e.Path] = &e
	}
	return entries, rows.Err()
}

// ReplaceBaseline atomically swaps a profile's baseline pair and conflict
// list, stores merge-base blobs, and prunes blobs nothing references.
func (j *Journal) ReplaceBaseline(profile string, endpoints [2]string, baselines [2]map[string]*Entry, conflicts []ConflictRecord, blobs map[string][]byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("begin baseline update: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM baseline WHERE profile = ?", profile); err != nil {
		return err
	}
	for i, endpoint := range endpoints {
		for _, e := range baselines[i] {
			_, err := tx.Exec(
				"INSERT INTO baseline (profile, endpoint, path, kind, size, mtime, hash, link_target) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
				profile, endpoint, e.Path, int(e.Kind), e.Size, e.Mtime.Format(time.RFC3339Nano), e.Hash, e.LinkTarget,
			)
			if err != nil {
				return fmt.Errorf("insert baseline %s/%s: %w", endpoint, e.Path, err)
			}
		}
	}

	if _, err := tx.Exec("DELETE FROM conflicts WHERE profile = ?", profile); err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for _, c := range conflicts {
		_, err := tx.Exec(
			"INSERT OR REPLACE INTO conflicts (profile, path, reason, policy, resolution, detected_at) VALUES (?, ?, ?, ?, ?, ?)",
			profile, c.Path, c.Reason, c.Policy, c.Resolution, now,
		)
		if err != nil {
			return fmt.Errorf("insert conflict %s: %w", c.Path, err)
		}
	}

	for hash, data := range blobs {
		if len(data) > MaxBlobSize {
			continue
		}
		if _, err := tx.Exec("INSERT OR IGNORE INTO blobs (hash, data) VALUES (?, ?)", hash, data); err != nil {
			return fmt.Errorf("insert blob: %w", err)
		}
	}
	if _, err := tx.Exec("DELETE FROM blobs WHERE hash NOT IN (SELECT hash FROM baseline)"); err != nil {
		return err
	}

	return tx.Commit()
}

// Blob returns the retained content for a fingerprint, or nil if absent.
func (j *Journal) Blob(hash string) ([]byte, error) {
	if hash == "" {
		return nil, nil
	}
	j.mu.RLock()
	defer j.mu.RUnlock()

	var data []byte
	err := j.db.QueryRow("SELECT data FROM blobs WHERE hash = ?", hash).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query blob: %w", err)
	}
	return data, nil
}

// StoredConflict is a persisted unresolved conflict, surfaced by `status`.
type StoredConflict struct {
	Path       string
	Reason     string
	Policy     string
	Resolution string
	DetectedAt time.Time
}

func (j *Journal) Conflicts(profile string) ([]StoredConflict, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.db.Query(
		"SELECT path, reason, policy, resolution, detected_at FROM conflicts WHERE profile = ? ORDER BY path",
		profile,
	)
	if err != nil {
		return nil, fmt.Errorf("query conflicts: %w", err)
	}
	defer rows.Close()

	var out []StoredConflict
	for rows.Next() {
		var c StoredConflict
		var detected string
		if err := rows.Scan(&c.Path, &c.Reason, &c.Policy, &c.Resolution, &detected); err != nil {
			return nil, err
		}
		c.DetectedAt, _ = time.Parse(time.RFC3339, detected)
		out = append(out, c)
	}
	return out, rows.Err()
}

// BaselineCount returns the number of tracked paths for a profile endpoint.
func (j *Journal) BaselineCount(profile, endpoint string) (int, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var count int
	err := j.db.QueryRow("SELECT COUNT(*) FROM baseline WHERE profile = ? AND endpoint = ?", profile, endpoint).Scan(&count)
	return count, err
}

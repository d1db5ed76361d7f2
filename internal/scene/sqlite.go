package scene

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var _ Scene = (*SQLiteScene)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS refs (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	node       TEXT NOT NULL UNIQUE,
	path       TEXT NOT NULL,
	namespace  TEXT NOT NULL UNIQUE,
	loaded     INTEGER NOT NULL DEFAULT 1,
	depth      TEXT NOT NULL DEFAULT 'all',
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_refs_path ON refs(path, seq);
`

// SQLiteScene persists the reference table in a SQLite file so a scene
// survives between CLI invocations.
type SQLiteScene struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the scene table at dbPath.
// ":memory:" is accepted.
func OpenSQLite(dbPath string) (*SQLiteScene, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// One connection: the batch is sequential, and :memory: databases are
	// per-connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 10000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set synchronous: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteScene{db: db}, nil
}

// Close closes the database.
func (s *SQLiteScene) Close() error {
	return s.db.Close()
}

// CreateReference implements Importer.
func (s *SQLiteScene) CreateReference(path, namespace string, depth Depth) (Reference, error) {
	ns, err := uniqueNamespace(namespace, func(ns string) (bool, error) {
		var n int
		err := s.db.QueryRow("SELECT count(*) FROM refs WHERE namespace = ? OR node = ?", ns, nodeName(ns)).Scan(&n)
		return n > 0, err
	})
	if err != nil {
		return Reference{}, fmt.Errorf("allocate namespace: %w", err)
	}
	r := Reference{
		Node:      nodeName(ns),
		Path:      cleanPath(path),
		Namespace: ns,
		Loaded:    depth.Loads(),
		Depth:     depth,
	}
	_, err = s.db.Exec(
		"INSERT INTO refs (node, path, namespace, loaded, depth, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		r.Node, r.Path, r.Namespace, boolInt(r.Loaded), string(r.Depth), time.Now().Unix(),
	)
	if err != nil {
		return Reference{}, fmt.Errorf("insert reference %s: %w", r.Node, err)
	}
	return r, nil
}

// ListLoadedReferenceFiles implements Host, in node creation order.
func (s *SQLiteScene) ListLoadedReferenceFiles() ([]string, error) {
	rows, err := s.db.Query("SELECT path FROM refs WHERE loaded = 1 ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("query loaded references: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// IsReferenceLoaded implements Host.
func (s *SQLiteScene) IsReferenceLoaded(path string) (bool, error) {
	var n int
	err := s.db.QueryRow("SELECT count(*) FROM refs WHERE path = ? AND loaded = 1", cleanPath(path)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query %s: %w", path, err)
	}
	return n > 0, nil
}

// ResolveReferenceNode implements Host. Loaded nodes win over unloaded
// ones, then the oldest node bound to path.
func (s *SQLiteScene) ResolveReferenceNode(path string) (Reference, error) {
	row := s.db.QueryRow(
		"SELECT node, path, namespace, loaded, depth FROM refs WHERE path = ? ORDER BY loaded DESC, seq LIMIT 1",
		cleanPath(path),
	)
	r, err := scanReference(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Reference{}, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return r, err
}

// ReloadReferenceSource implements Host. The loaded flag is kept.
func (s *SQLiteScene) ReloadReferenceSource(node, newPath string, depth Depth) error {
	res, err := s.db.Exec(
		"UPDATE refs SET path = ?, depth = ?, updated_at = ? WHERE node = ?",
		cleanPath(newPath), string(depth), time.Now().Unix(), node,
	)
	if err != nil {
		return fmt.Errorf("reload %s: %w", node, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("node %s: %w", node, ErrNotFound)
	}
	return nil
}

// References implements Table.
func (s *SQLiteScene) References() ([]Reference, error) {
	rows, err := s.db.Query("SELECT node, path, namespace, loaded, depth FROM refs ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("query references: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []Reference{}
	for rows.Next() {
		r, err := scanReference(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RemoveReference implements Table.
func (s *SQLiteScene) RemoveReference(node string) error {
	res, err := s.db.Exec("DELETE FROM refs WHERE node = ?", node)
	if err != nil {
		return fmt.Errorf("remove %s: %w", node, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("node %s: %w", node, ErrNotFound)
	}
	return nil
}

// Rename implements Editor.
func (s *SQLiteScene) Rename(node, newPath string) error {
	res, err := s.db.Exec("UPDATE refs SET path = ?, updated_at = ? WHERE node = ?",
		cleanPath(newPath), time.Now().Unix(), node)
	if err != nil {
		return fmt.Errorf("rename %s: %w", node, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("node %s: %w", node, ErrNotFound)
	}
	return nil
}

// SetLoaded implements Editor.
func (s *SQLiteScene) SetLoaded(node string, loaded bool) error {
	res, err := s.db.Exec("UPDATE refs SET loaded = ?, updated_at = ? WHERE node = ?",
		boolInt(loaded), time.Now().Unix(), node)
	if err != nil {
		return fmt.Errorf("update %s: %w", node, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("node %s: %w", node, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReference(row rowScanner) (Reference, error) {
	var (
		r      Reference
		loaded int
		depth  string
	)
	if err := row.Scan(&r.Node, &r.Path, &r.Namespace, &loaded, &depth); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Reference{}, err
		}
		return Reference{}, fmt.Errorf("scan reference: %w", err)
	}
	r.Loaded = loaded != 0
	r.Depth = Depth(depth)
	return r, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package snapshot

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Catalog is a local inventory of produced archives. It is bookkeeping
// only: losing the catalog never affects the archives themselves, and an
// archive deleted from disk simply goes stale here until pruned.
type Catalog struct {
	db *sql.DB
}

// Entry is one cataloged archive.
type Entry struct {
	Path string
	Metadata
}

// OpenCatalog opens or creates the catalog database at path.
func OpenCatalog(path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set catalog db journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set catalog db busy timeout: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS snapshots (
	path TEXT PRIMARY KEY,
	environment TEXT NOT NULL,
	format_version TEXT NOT NULL,
	engine_version TEXT NOT NULL,
	node_count INTEGER NOT NULL,
	relationship_count INTEGER NOT NULL,
	data_size_bytes INTEGER NOT NULL,
	exported_at TEXT NOT NULL
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize snapshots schema: %w", err)
	}

	return &Catalog{db: db}, nil
}

// Close releases the database handle.
func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Record upserts the archive at path with its metadata.
func (c *Catalog) Record(path string, meta Metadata) error {
	_, err := c.db.Exec(
		`INSERT INTO snapshots (path, environment, format_version, engine_version,
		 node_count, relationship_count, data_size_bytes, exported_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		 environment = excluded.environment,
		 format_version = excluded.format_version,
		 engine_version = excluded.engine_version,
		 node_count = excluded.node_count,
		 relationship_count = excluded.relationship_count,
		 data_size_bytes = excluded.data_size_bytes,
		 exported_at = excluded.exported_at`,
		path,
		meta.Environment,
		meta.FormatVersion,
		meta.EngineVersion,
		meta.NodeCount,
		meta.RelationshipCount,
		meta.DataSizeBytes,
		meta.ExportedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record snapshot %q: %w", path, err)
	}
	return nil
}

// List returns cataloged archives, newest first. A non-empty environment
// restricts the listing to that environment.
func (c *Catalog) List(environment string) ([]Entry, error) {
	query := `SELECT path, environment, format_version, engine_version,
		node_count, relationship_count, data_size_bytes, exported_at
		FROM snapshots`
	args := []any{}
	if environment != "" {
		query += ` WHERE environment = ?`
		args = append(args, environment)
	}
	query += ` ORDER BY exported_at DESC, path`

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		var entry Entry
		var exportedAt string
		if err := rows.Scan(&entry.Path, &entry.Environment, &entry.FormatVersion,
			&entry.EngineVersion, &entry.NodeCount, &entry.RelationshipCount,
			&entry.DataSizeBytes, &exportedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		at, err := time.Parse(time.RFC3339, exportedAt)
		if err != nil {
			return nil, fmt.Errorf("parse snapshot timestamp %q: %w", exportedAt, err)
		}
		entry.ExportedAt = at
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return out, nil
}

// Delete drops the catalog entry for path. The archive file is untouched.
func (c *Catalog) Delete(path string) error {
	if _, err := c.db.Exec(`DELETE FROM snapshots WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete snapshot %q: %w", path, err)
	}
	return nil
}

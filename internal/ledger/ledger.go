// Package ledger records reassembled documents and received snapshots in SQLite.
//
// The ledger is an audit trail next to the output directory and the CSV
// config log; the relay never reads it back to make decisions.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/arloliu/scanrelay/internal/ledger/migrations"
	"github.com/arloliu/scanrelay/types"
)

// DocumentRecord is one reassembled document.
type DocumentRecord struct {
	DocumentID string
	Path       string
	Size       int
	Chunks     int
	Digest     uint64
	Violations int
	WrittenAt  time.Time
}

// SnapshotRecord is one received status snapshot.
type SnapshotRecord struct {
	types.Snapshot
	ReceivedAt time.Time
}

// Ledger is a SQLite-backed record store. It is safe for concurrent use.
type Ledger struct {
	db   *sql.DB
	path string
}

// Open opens or creates the ledger database at path and applies migrations.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	// WAL lets the reassembler and the recorder write without blocking each other
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	l := &Ledger{db: db, path: path}
	if err := l.migrate(migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return l, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Path returns the database file path.
func (l *Ledger) Path() string {
	return l.path
}

func (l *Ledger) migrate(fsys fs.FS) error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := l.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := l.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := l.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// RecordDocument appends a document record.
func (l *Ledger) RecordDocument(ctx context.Context, rec DocumentRecord) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO documents (document_id, path, size_bytes, chunks, digest, violations, written_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.DocumentID, rec.Path, rec.Size, rec.Chunks, formatDigest(rec.Digest), rec.Violations, rec.WrittenAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording document %s: %w", rec.DocumentID, err)
	}

	return nil
}

// RecordSnapshot appends a snapshot record.
func (l *Ledger) RecordSnapshot(ctx context.Context, snap types.Snapshot, receivedAt time.Time) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO snapshots (taken_at, status, timeout_ms, received_at)
		VALUES (?, ?, ?, ?)`,
		snap.Timestamp, snap.Status, snap.TimeoutMillis, receivedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording snapshot: %w", err)
	}

	return nil
}

// Documents returns the most recent document records, newest first.
func (l *Ledger) Documents(ctx context.Context, limit int) ([]DocumentRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT document_id, path, size_bytes, chunks, digest, violations, written_at
		FROM documents ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentRecord
	for rows.Next() {
		var rec DocumentRecord
		var digest string
		if err := rows.Scan(&rec.DocumentID, &rec.Path, &rec.Size, &rec.Chunks, &digest, &rec.Violations, &rec.WrittenAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		if rec.Digest, err = strconv.ParseUint(digest, 16, 64); err != nil {
			return nil, fmt.Errorf("parsing digest %q: %w", digest, err)
		}
		out = append(out, rec)
	}

	return out, rows.Err()
}

// Snapshots returns the most recent snapshot records, newest first.
func (l *Ledger) Snapshots(ctx context.Context, limit int) ([]SnapshotRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT taken_at, status, timeout_ms, received_at
		FROM snapshots ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotRecord
	for rows.Next() {
		var rec SnapshotRecord
		if err := rows.Scan(&rec.Timestamp, &rec.Status, &rec.TimeoutMillis, &rec.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		out = append(out, rec)
	}

	return out, rows.Err()
}

func formatDigest(d uint64) string {
	return fmt.Sprintf("%016x", d)
}

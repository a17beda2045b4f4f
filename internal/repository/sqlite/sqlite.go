package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"fractalnote/internal/domain"
	"fractalnote/internal/repository"
)

// DBTX is the query surface shared by *sql.DB and *sql.Tx. Repositories are
// bound to one of them at construction, so a transaction is just a different
// handle passed to the same constructors.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ repository.NodeRepository                       = (*NodeRepository)(nil)
	_ repository.RelationRepository                   = (*RelationRepository)(nil)
	_ repository.AttachmentRepository[domain.Image]   = (*ImageRepository)(nil)
	_ repository.AttachmentRepository[domain.Codebox] = (*CodeboxRepository)(nil)
	_ repository.AttachmentRepository[domain.Grid]    = (*GridRepository)(nil)
	_ repository.BookmarkRepository                   = (*BookmarkRepository)(nil)
)

// DefaultBusyTimeout is how long SQLite waits on a locked database file
const DefaultBusyTimeout = 5 * time.Second

// Open opens the SQLite file at path and migrates the schema.
// ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string, busyTimeout time.Duration) (*sql.DB, error) {
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}

	// Rollback journal rather than WAL: the store is a single document file
	// and its mtime is the version token, so every commit must land in it.
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_txlock=immediate",
		path, busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: the store has a single writer, and an in-memory
	// database only exists on the connection that created it.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// Migrate creates the tree store tables when they do not exist yet
func Migrate(ctx context.Context, db DBTX) error {
	schema := `
	CREATE TABLE IF NOT EXISTS node (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		syntax TEXT NOT NULL DEFAULT 'plain-text',
		is_rich INTEGER NOT NULL DEFAULT 0,
		is_read_only INTEGER NOT NULL DEFAULT 0,
		level INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS relation (
		node_id INTEGER PRIMARY KEY,
		father_id INTEGER NOT NULL DEFAULT 0,
		sequence INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (node_id) REFERENCES node(id)
	);

	CREATE TABLE IF NOT EXISTS image (
		node_id INTEGER NOT NULL,
		"offset" INTEGER NOT NULL,
		justification TEXT,
		anchor TEXT,
		png BLOB,
		filename TEXT,
		link TEXT,
		PRIMARY KEY (node_id, "offset"),
		FOREIGN KEY (node_id) REFERENCES node(id)
	);

	CREATE TABLE IF NOT EXISTS codebox (
		node_id INTEGER NOT NULL,
		"offset" INTEGER NOT NULL,
		justification TEXT,
		body TEXT NOT NULL DEFAULT '',
		syntax TEXT NOT NULL DEFAULT 'plain-text',
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (node_id, "offset"),
		FOREIGN KEY (node_id) REFERENCES node(id)
	);

	CREATE TABLE IF NOT EXISTS grid (
		node_id INTEGER NOT NULL,
		"offset" INTEGER NOT NULL,
		justification TEXT,
		body TEXT NOT NULL DEFAULT '',
		col_min INTEGER NOT NULL DEFAULT 0,
		col_max INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (node_id, "offset"),
		FOREIGN KEY (node_id) REFERENCES node(id)
	);

	CREATE TABLE IF NOT EXISTS bookmark (
		node_id INTEGER PRIMARY KEY,
		sequence INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (node_id) REFERENCES node(id)
	);

	CREATE INDEX IF NOT EXISTS idx_relation_father ON relation(father_id, sequence);
	`

	_, err := db.ExecContext(ctx, schema)
	return err
}

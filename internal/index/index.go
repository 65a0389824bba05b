// Package index implements the Shadow Index: a durable mapping from
// (root, parent directory, name) to last-known modification time, used to
// reconstruct the set of filesystem changes that happened while the
// process was not running.
package index

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
	// Pure-Go SQLite driver (no cgo).
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DirMtime is the sentinel mtime value stored for directory rows.
// Directories never participate in mtime-based modification detection.
const DirMtime = -1

// Row is one shadow index entry: the last-observed state of a single
// filesystem entry under a monitored root.
type Row struct {
	Root   string
	Parent string
	Name   string
	Mtime  int64
}

// Key identifies a row within a root by its (parent, name) pair.
type Key struct {
	Parent string
	Name   string
}

// IsDir reports whether r represents a directory entry.
func (r Row) IsDir() bool { return r.Mtime == DirMtime }

const sqlListSubtree = `SELECT root, parent, name, mtime FROM shadow_index WHERE root = ?`

// Index is the durable Shadow Index. It owns a single *sql.DB opened in
// sole-writer mode (SetMaxOpenConns(1)) so that every bulk call is
// serialized without an additional application-level mutex.
type Index struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if necessary) the Shadow Index database at dbPath
// and applies any pending migrations.
func Open(dbPath string, logger *slog.Logger) (*Index, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"+
			"&_pragma=journal_size_limit(67108864)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("index: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: only one connection writes at a time, so bulk
	// calls are serialized by the driver without an extra mutex.
	db.SetMaxOpenConns(1)

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()

		return nil, err
	}

	logger.Info("shadow index opened", slog.String("db_path", dbPath))

	return &Index{db: db, logger: logger}, nil
}

func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("index: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("index: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("index: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Close closes the underlying database connection.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// AddFiles bulk-inserts rows. A row whose (root, parent, name) already
// exists is left unchanged — callers that re-assert a known entry (e.g.
// re-running an initial scan) get idempotent behavior rather than an error.
func (idx *Index) AddFiles(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	return idx.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR IGNORE INTO shadow_index (root, parent, name, mtime) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: preparing add: %w", err)
		}
		defer stmt.Close()

		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, r.Root, r.Parent, r.Name, r.Mtime); err != nil {
				return fmt.Errorf("index: adding %s/%s under %s: %w", r.Parent, r.Name, r.Root, err)
			}
		}

		return nil
	})
}

// UpdateFiles bulk-upserts the mtime of each row, inserting it if absent.
func (idx *Index) UpdateFiles(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	return idx.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO shadow_index (root, parent, name, mtime) VALUES (?, ?, ?, ?)
			 ON CONFLICT(root, parent, name) DO UPDATE SET mtime = excluded.mtime`)
		if err != nil {
			return fmt.Errorf("index: preparing update: %w", err)
		}
		defer stmt.Close()

		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, r.Root, r.Parent, r.Name, r.Mtime); err != nil {
				return fmt.Errorf("index: updating %s/%s under %s: %w", r.Parent, r.Name, r.Root, err)
			}
		}

		return nil
	})
}

// DeleteFiles bulk-deletes rows identified by (root, parent, name).
func (idx *Index) DeleteFiles(ctx context.Context, root string, keys []Key) error {
	if len(keys) == 0 {
		return nil
	}

	return idx.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`DELETE FROM shadow_index WHERE root = ? AND parent = ? AND name = ?`)
		if err != nil {
			return fmt.Errorf("index: preparing delete: %w", err)
		}
		defer stmt.Close()

		for _, k := range keys {
			if _, err := stmt.ExecContext(ctx, root, k.Parent, k.Name); err != nil {
				return fmt.Errorf("index: deleting %s/%s under %s: %w", k.Parent, k.Name, root, err)
			}
		}

		return nil
	})
}

// ListSubtree enumerates every row stored under root.
func (idx *Index) ListSubtree(ctx context.Context, root string) ([]Row, error) {
	rows, err := idx.db.QueryContext(ctx, sqlListSubtree, root)
	if err != nil {
		return nil, fmt.Errorf("index: listing subtree %s: %w", root, err)
	}
	defer rows.Close()

	var out []Row

	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Root, &r.Parent, &r.Name, &r.Mtime); err != nil {
			return nil, fmt.Errorf("index: scanning row under %s: %w", root, err)
		}

		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: iterating subtree %s: %w", root, err)
	}

	return out, nil
}

// IsEmpty reports whether the Shadow Index has no rows for root.
func (idx *Index) IsEmpty(ctx context.Context, root string) (bool, error) {
	var count int

	err := idx.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM shadow_index WHERE root = ?`, root).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("index: counting rows under %s: %w", root, err)
	}

	return count == 0, nil
}

// inTx runs fn inside a transaction, committing on success and rolling back
// on any error — each bulk call is atomic and durable on return.
func (idx *Index) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: committing transaction: %w", err)
	}

	return nil
}

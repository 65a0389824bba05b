// Package queue implements an infinite durable FIFO with stable per-item
// keys: in-place update, key-addressed lookup and removal, and a bounded
// in-memory prefetch window for cheap Peek/Get.
package queue

import (
	"context"
	"crypto/md5" //nolint:gosec // used only as a stable key-hash digest, not for security
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	// Pure-Go SQLite driver (no cgo).
	_ "modernc.org/sqlite"
)

const (
	defaultMinInMemory = 100
	defaultMaxInMemory = 1000
)

var validQueueName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Queue is a durable, infinite, keyed FIFO backed by a dedicated SQLite
// table (one table per named queue, per the on-disk contract). All
// mutating and window-reading operations are serialized by mu — the
// persistent queue has its own independent lock, distinct from any lock
// held by other components sharing the process.
type Queue struct {
	db     *sql.DB
	table  string
	logger *slog.Logger

	mu sync.Mutex
	w  *window
}

// Option configures a Queue at Open time.
type Option func(*Queue)

// WithWindowBounds overrides the default prefetch window bounds.
func WithWindowBounds(minInMemory, maxInMemory int) Option {
	return func(q *Queue) { q.w = newWindow(minInMemory, maxInMemory) }
}

// Open opens (creating if necessary) a named durable queue at dbPath. The
// queue's table is created directly (not via versioned migrations): a
// table-per-queue-name schema is inherently parameterized by name, which
// does not fit a static migration file, so name is validated against an
// identifier allowlist before being interpolated into DDL.
func Open(dbPath, name string, logger *slog.Logger, opts ...Option) (*Queue, error) {
	if !validQueueName.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"+
			"&_pragma=journal_size_limit(67108864)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("queue: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: one connection, serializing every call at the
	// driver level in addition to the queue's own mutex.
	db.SetMaxOpenConns(1)

	table := "queue_" + name

	q := &Queue{db: db, table: table, logger: logger, w: newWindow(defaultMinInMemory, defaultMaxInMemory)}
	for _, opt := range opts {
		opt(q)
	}

	if err := q.createTable(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("queue opened", slog.String("db_path", dbPath), slog.String("name", name))

	return q, nil
}

func (q *Queue) createTable() error {
	stmt := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
			id   INTEGER PRIMARY KEY AUTOINCREMENT,
			item BLOB NOT NULL,
			key  CHAR(32) NOT NULL
		)`, q.table)

	if _, err := q.db.Exec(stmt); err != nil {
		return fmt.Errorf("queue: creating table %s: %w", q.table, err)
	}

	idxStmt := fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_key ON %s (key)`, q.table, q.table)
	if _, err := q.db.Exec(idxStmt); err != nil {
		return fmt.Errorf("queue: creating key index on %s: %w", q.table, err)
	}

	return nil
}

// Close closes the underlying database connection.
func (q *Queue) Close() error {
	return q.db.Close()
}

func keyHash(key string) string {
	sum := md5.Sum([]byte(key)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// Put inserts item at the tail of the queue. If key is nil, it is derived
// from item itself. Fails with ErrAlreadyExists if the derived key hash
// collides with an existing entry.
func (q *Queue) Put(ctx context.Context, item any, key any) error {
	if key == nil {
		key = item
	}

	hash := keyHash(stringify(key))

	payload, err := encode(item)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	insertStmt := fmt.Sprintf(`INSERT INTO %s (item, key) VALUES (?, ?)`, q.table)

	if _, err := q.db.ExecContext(ctx, insertStmt, payload, hash); err != nil {
		if isUniqueConstraintErr(err) {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, hash)
		}

		return fmt.Errorf("queue: inserting item: %w", err)
	}

	q.w.markDirty()

	return nil
}

// Peek refills the window if needed and returns the head item's value
// without removing it. Fails with ErrEmpty if the queue is empty.
func (q *Queue) Peek(ctx context.Context) (any, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.w.refill(q.fetchAfter(ctx)); err != nil {
		return nil, err
	}

	head, ok := q.w.head()
	if !ok {
		return nil, ErrEmpty
	}

	return decode(head.payload)
}

// Get refills the window if needed, removes the head item, and deletes its
// durable row. Fails with ErrEmpty if the queue is empty.
func (q *Queue) Get(ctx context.Context) (any, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.w.refill(q.fetchAfter(ctx)); err != nil {
		return nil, err
	}

	head, ok := q.w.head()
	if !ok {
		return nil, ErrEmpty
	}

	deleteStmt := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, q.table)
	if _, err := q.db.ExecContext(ctx, deleteStmt, head.id); err != nil {
		return nil, fmt.Errorf("queue: deleting id %d: %w", head.id, err)
	}

	q.w.popHead()

	return decode(head.payload)
}

// GetItemForKey looks up an item directly by key, with no ordering effect
// and no window change. The second return value is false if no entry
// exists for key.
func (q *Queue) GetItemForKey(ctx context.Context, key any) (any, bool, error) {
	hash := keyHash(stringify(key))

	selectStmt := fmt.Sprintf(`SELECT item FROM %s WHERE key = ?`, q.table)

	var payload []byte

	err := q.db.QueryRowContext(ctx, selectStmt, hash).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("queue: looking up key %s: %w", hash, err)
	}

	item, err := decode(payload)
	if err != nil {
		return nil, false, err
	}

	return item, true, nil
}

// RemoveItemForKey deletes the entry for key. If the deleted id lies
// within the current window, the window is rebuilt (refresh mode).
func (q *Queue) RemoveItemForKey(ctx context.Context, key any) error {
	hash := keyHash(stringify(key))

	q.mu.Lock()
	defer q.mu.Unlock()

	id, found, err := q.idForHash(ctx, hash)
	if err != nil {
		return err
	}

	if !found {
		return nil
	}

	deleteStmt := fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, q.table)
	if _, err := q.db.ExecContext(ctx, deleteStmt, hash); err != nil {
		return fmt.Errorf("queue: removing key %s: %w", hash, err)
	}

	if q.w.inRange(id) {
		return q.w.refresh(q.fetchAfter(ctx))
	}

	return nil
}

// Update replaces the payload stored for key, preserving its position
// (the row's id, and thus FIFO order, is unchanged). Fails with
// ErrNoSuchKey if key does not exist. If the updated id lies within the
// window, the window is rebuilt (refresh mode) so a subsequent Peek
// observing that id returns the new payload, not a stale one.
func (q *Queue) Update(ctx context.Context, item any, key any) error {
	hash := keyHash(stringify(key))

	payload, err := encode(item)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	id, found, err := q.idForHash(ctx, hash)
	if err != nil {
		return err
	}

	if !found {
		return fmt.Errorf("%w: %s", ErrNoSuchKey, hash)
	}

	updateStmt := fmt.Sprintf(`UPDATE %s SET item = ? WHERE key = ?`, q.table)
	if _, err := q.db.ExecContext(ctx, updateStmt, payload, hash); err != nil {
		return fmt.Errorf("queue: updating key %s: %w", hash, err)
	}

	if q.w.inRange(id) {
		return q.w.refresh(q.fetchAfter(ctx))
	}

	return nil
}

// QSize returns the number of rows currently in storage.
func (q *Queue) QSize(ctx context.Context) (int, error) {
	var n int

	countStmt := fmt.Sprintf(`SELECT COUNT(1) FROM %s`, q.table)
	if err := q.db.QueryRowContext(ctx, countStmt).Scan(&n); err != nil {
		return 0, fmt.Errorf("queue: counting rows: %w", err)
	}

	return n, nil
}

// Empty reports whether the queue currently has no entries.
func (q *Queue) Empty(ctx context.Context) (bool, error) {
	n, err := q.QSize(ctx)
	if err != nil {
		return false, err
	}

	return n == 0, nil
}

// Full always returns false: the queue is, by contract, infinite.
func (q *Queue) Full() bool { return false }

// Contains reports whether an entry exists whose key hash equals the hash
// of key. Containment is defined by key hash, not payload equality — a
// robustness fix over the naive "compare by serialized payload" approach,
// which is sensitive to codec stability across versions.
func (q *Queue) Contains(ctx context.Context, key any) (bool, error) {
	_, found, err := q.GetItemForKey(ctx, key)
	return found, err
}

func (q *Queue) idForHash(ctx context.Context, hash string) (int64, bool, error) {
	selectStmt := fmt.Sprintf(`SELECT id FROM %s WHERE key = ?`, q.table)

	var id int64

	err := q.db.QueryRowContext(ctx, selectStmt, hash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, fmt.Errorf("queue: looking up id for key %s: %w", hash, err)
	}

	return id, true, nil
}

// fetchAfter returns a fetchFunc bound to ctx, used by the window to pull
// rows with id strictly greater than afterID, ascending, limited to limit.
func (q *Queue) fetchAfter(ctx context.Context) fetchFunc {
	return func(afterID int64, limit int) ([]entry, error) {
		selectStmt := fmt.Sprintf(
			`SELECT id, item FROM %s WHERE id > ? ORDER BY id ASC LIMIT ?`, q.table)

		rows, err := q.db.QueryContext(ctx, selectStmt, afterID, limit)
		if err != nil {
			return nil, fmt.Errorf("queue: fetching window rows: %w", err)
		}
		defer rows.Close()

		var out []entry

		for rows.Next() {
			var e entry
			if err := rows.Scan(&e.id, &e.payload); err != nil {
				return nil, fmt.Errorf("queue: scanning window row: %w", err)
			}

			out = append(out, e)
		}

		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("queue: iterating window rows: %w", err)
		}

		return out, nil
	}
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}

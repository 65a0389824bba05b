// Package scanner walks a monitored subtree and diffs it against the
// Shadow Index, producing the created/modified/deleted sets that drive
// both the initial scan (non-persistent mode) and offline-gap
// reconciliation (persistent mode).
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tonimelisma/fstrackd/internal/index"
)

// IgnoreFunc reports whether a directory path should be excluded from
// scanning entirely — its contents are never added to the Shadow Index
// and never produce events.
type IgnoreFunc func(dir string) bool

// Scanner walks a monitored root and classifies entries against an Index.
type Scanner struct {
	idx    *index.Index
	ignore IgnoreFunc
	logger *slog.Logger
}

// New creates a Scanner. ignore may be nil, meaning nothing is ignored.
func New(idx *index.Index, ignore IgnoreFunc, logger *slog.Logger) *Scanner {
	if ignore == nil {
		ignore = func(string) bool { return false }
	}

	return &Scanner{idx: idx, ignore: ignore, logger: logger}
}

// InitialScan seeds the Shadow Index for root if it is currently empty, by
// walking the live subtree and inserting every file and directory. No
// events are emitted — future diffs become meaningful once this seed
// exists. If the index already has rows for root, InitialScan returns
// immediately.
func (s *Scanner) InitialScan(ctx context.Context, root string) error {
	empty, err := s.idx.IsEmpty(ctx, root)
	if err != nil {
		return fmt.Errorf("scanner: checking index for %s: %w", root, err)
	}

	if !empty {
		return nil
	}

	var rows []index.Row

	walkErr := s.walk(ctx, root, func(parent, name string, mtime int64, _ os.FileInfo) {
		rows = append(rows, index.Row{Root: root, Parent: parent, Name: name, Mtime: mtime})
	})
	if walkErr != nil {
		return fmt.Errorf("scanner: initial scan of %s: %w", root, walkErr)
	}

	if err := s.idx.AddFiles(ctx, rows); err != nil {
		return fmt.Errorf("scanner: seeding index for %s: %w", root, err)
	}

	s.logger.Info("initial scan seeded shadow index",
		slog.String("root", root), slog.Int("entries", len(rows)))

	return nil
}

// Delta is the result of a DiffScan: the three disjoint sets of rows that
// changed between the last Shadow Index snapshot and the live subtree.
// Created and Modified rows carry the current (live) mtime; Deleted rows
// carry the last-known Shadow Index mtime.
type Delta struct {
	Created  []index.Row
	Modified []index.Row
	Deleted  []index.Row
}

// Empty reports whether the delta has no changes in any set.
func (d Delta) Empty() bool {
	return len(d.Created) == 0 && len(d.Modified) == 0 && len(d.Deleted) == 0
}

// DiffScan walks the live subtree under root and compares every entry to
// the Shadow Index snapshot, returning the created/modified/deleted sets.
// Directory mtimes are never compared for modification — a directory is
// only ever created or deleted. Symlinks are not followed. An unreadable
// subdirectory is treated as deleted since the last scan: it is logged and
// the walk continues rather than aborting.
func (s *Scanner) DiffScan(ctx context.Context, root string) (Delta, error) {
	snapshot, err := s.idx.ListSubtree(ctx, root)
	if err != nil {
		return Delta{}, fmt.Errorf("scanner: loading snapshot for %s: %w", root, err)
	}

	known := make(map[index.Key]index.Row, len(snapshot))
	for _, r := range snapshot {
		known[index.Key{Parent: r.Parent, Name: r.Name}] = r
	}

	var delta Delta

	observed := make(map[index.Key]bool, len(snapshot))

	walkErr := s.walk(ctx, root, func(parent, name string, mtime int64, _ os.FileInfo) {
		key := index.Key{Parent: parent, Name: name}
		observed[key] = true

		prior, existed := known[key]
		if !existed {
			delta.Created = append(delta.Created, index.Row{Root: root, Parent: parent, Name: name, Mtime: mtime})
			return
		}

		isDir := mtime == index.DirMtime
		if isDir {
			// Directory mtimes are noise (e.g. adding a child file bumps
			// it); directories are only ever created or deleted.
			return
		}

		if prior.Mtime != mtime {
			delta.Modified = append(delta.Modified, index.Row{Root: root, Parent: parent, Name: name, Mtime: mtime})
		}
	})
	if walkErr != nil {
		return Delta{}, fmt.Errorf("scanner: diff scan of %s: %w", root, walkErr)
	}

	for key, row := range known {
		if !observed[key] {
			delta.Deleted = append(delta.Deleted, row)
		}
	}

	return delta, nil
}

// walk performs a non-symlink-following traversal of root, invoking visit
// for every file and directory encountered (not including root itself).
// mtime passed to visit is the live modification time in seconds, or
// index.DirMtime for directories.
func (s *Scanner) walk(ctx context.Context, root string, visit func(parent, name string, mtime int64, info os.FileInfo)) error {
	return s.walkDir(ctx, root, root, visit)
}

func (s *Scanner) walkDir(ctx context.Context, root, dir string, visit func(parent, name string, mtime int64, info os.FileInfo)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if dir == root {
			return fmt.Errorf("scanner: reading root %s: %w", dir, err)
		}

		// Unreadable subdirectory: treated as deleted since last scan.
		// Logged, walk continues rather than aborting (spec §4.B).
		s.logger.Warn("unreadable subdirectory treated as deleted",
			slog.String("path", dir), slog.String("error", err.Error()))

		return nil
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		fullPath := filepath.Join(dir, entry.Name())

		if entry.Type()&os.ModeSymlink != 0 {
			continue
		}

		if entry.IsDir() {
			if s.ignore(fullPath) {
				continue
			}

			visit(dir, entry.Name(), index.DirMtime, nil)

			if err := s.walkDir(ctx, root, fullPath, visit); err != nil {
				return err
			}

			continue
		}

		info, err := entry.Info()
		if err != nil {
			// File disappeared between readdir and stat; skip silently,
			// the next diff will reconcile it as a deletion.
			s.logger.Debug("stat failed during walk, skipping",
				slog.String("path", fullPath), slog.String("error", err.Error()))

			continue
		}

		visit(dir, entry.Name(), info.ModTime().Unix(), info)
	}

	return nil
}

// ErrNotDirectory is returned when root exists but is not a directory.
var ErrNotDirectory = errors.New("scanner: root is not a directory")

// CheckRoot verifies that root exists and is a directory.
func CheckRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("scanner: stat %s: %w", root, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	return nil
}

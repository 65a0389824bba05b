package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// validQueueName matches internal/queue's table-name allowlist — kept in
// sync so an invalid name is rejected here rather than surfacing later as
// an opaque sqlite error.
var validQueueName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

var validLogFormats = map[string]bool{"auto": true, "text": true, "json": true}

// Validate checks all configuration values and returns every problem found,
// joined into one error — users see the complete report in one pass rather
// than fixing issues one at a time.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateRoots(cfg.Roots)...)
	errs = append(errs, validateIndex(&cfg.Index)...)
	errs = append(errs, validateQueue(&cfg.Queue)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

func validateRoots(roots []RootConfig) []error {
	var errs []error

	if len(roots) == 0 {
		errs = append(errs, errors.New("root: at least one monitored root is required"))
	}

	seen := make(map[string]bool, len(roots))

	for _, r := range roots {
		if !filepath.IsAbs(r.Path) {
			errs = append(errs, fmt.Errorf("root %q: path must be absolute", r.Path))
			continue
		}

		clean := filepath.Clean(r.Path)

		if seen[clean] {
			errs = append(errs, fmt.Errorf("root %q: duplicate root", r.Path))
		}
		seen[clean] = true

		if _, err := r.EventMask(); err != nil {
			errs = append(errs, err)
		}
	}

	errs = append(errs, validateNoOverlap(roots)...)

	return errs
}

// validateNoOverlap rejects any pair of roots where one is an ancestor
// directory of the other — a descendant root would be reconciled and
// watched twice, once as its own root and once as part of its ancestor.
func validateNoOverlap(roots []RootConfig) []error {
	var errs []error

	for i := range roots {
		for j := range roots {
			if i == j {
				continue
			}

			a := filepath.Clean(roots[i].Path)
			b := filepath.Clean(roots[j].Path)

			if a == b {
				continue
			}

			if strings.HasPrefix(b, a+string(filepath.Separator)) {
				errs = append(errs, fmt.Errorf("root %q: overlaps with root %q", b, a))
			}
		}
	}

	return errs
}

func validateIndex(idx *IndexConfig) []error {
	if idx.DBPath == "" {
		return []error{errors.New("index.db_path: must not be empty")}
	}

	return nil
}

func validateQueue(q *QueueConfig) []error {
	var errs []error

	if q.DBPath == "" {
		errs = append(errs, errors.New("queue.db_path: must not be empty"))
	}

	if !validQueueName.MatchString(q.Name) {
		errs = append(errs, fmt.Errorf("queue.name: %q must match %s", q.Name, validQueueName.String()))
	}

	if q.MinInMemory <= 0 {
		errs = append(errs, fmt.Errorf("queue.min_in_memory: must be > 0, got %d", q.MinInMemory))
	}

	if q.MaxInMemory <= 0 {
		errs = append(errs, fmt.Errorf("queue.max_in_memory: must be > 0, got %d", q.MaxInMemory))
	}

	if q.MinInMemory > 0 && q.MaxInMemory > 0 && q.MinInMemory > q.MaxInMemory {
		errs = append(errs, fmt.Errorf("queue: min_in_memory (%d) must be <= max_in_memory (%d)",
			q.MinInMemory, q.MaxInMemory))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.Level] {
		errs = append(errs, fmt.Errorf("logging.level: must be one of debug, info, warn, error; got %q", l.Level))
	}

	if !validLogFormats[l.Format] {
		errs = append(errs, fmt.Errorf("logging.format: must be one of auto, text, json; got %q", l.Format))
	}

	return errs
}

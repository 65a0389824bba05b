package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/fstrackd/internal/config"
	"github.com/tonimelisma/fstrackd/internal/fsmonitor"
	"github.com/tonimelisma/fstrackd/internal/index"
	"github.com/tonimelisma/fstrackd/internal/queue"
	"github.com/tonimelisma/fstrackd/internal/scanner"
)

var flagPIDFile string

// newWatchCmd builds the `watch` command: the daemon loop that wires the
// Shadow Index, Path Scanner and FS Monitor Core together, registers every
// configured root, enqueues every dispatched event into the persistent
// queue, and runs until a signal is received.
func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "watch configured roots and enqueue canonical change events",
		RunE:  runWatch,
	}

	cmd.Flags().StringVar(&flagPIDFile, "pid-file", "", "PID file path (default: <data dir>/fstrackd.pid)")

	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadOrDefault(resolveConfigPath(), buildLogger(nil))
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	logger := buildLogger(&cfg.Logging)

	pidPath := flagPIDFile
	if pidPath == "" {
		pidPath = defaultPIDPath()
	}

	cleanup, err := writePIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer cleanup()

	idx, err := index.Open(cfg.Index.DBPath, logger)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer idx.Close()

	q, err := queue.Open(cfg.Queue.DBPath, cfg.Queue.Name, logger,
		queue.WithWindowBounds(cfg.Queue.MinInMemory, cfg.Queue.MaxInMemory))
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer q.Close()

	colorEnabled := isTerminal(os.Stdout.Fd())

	consumer := func(ev fsmonitor.Event) {
		invocationID := uuid.NewString()

		if err := q.Put(cmd.Context(), ev, nil); err != nil {
			logger.Error("failed to enqueue event",
				slog.String("invocation_id", invocationID),
				slog.String("root", ev.MonitoredRoot),
				slog.String("path", ev.Path),
				slog.Any("error", err),
			)

			return
		}

		printEvent(os.Stdout, ev, colorEnabled)
	}

	sc := scanner.New(idx, ignoreFuncFor(cfg), logger)
	core := fsmonitor.New(idx, sc, consumer, logger, fsmonitor.WithIgnoredPrefixes(ignoredPrefixesFor(cfg)))

	ctx := shutdownContext(cmd.Context(), logger)

	if err := core.Start(ctx); err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	statusf(flagQuiet, "watching %d root(s), press Ctrl-C to stop\n", len(cfg.Roots))

	for _, r := range cfg.Roots {
		mask, err := r.EventMask()
		if err != nil {
			return fmt.Errorf("watch: %w", err)
		}

		if err := scanner.CheckRoot(r.Path); err != nil {
			return fmt.Errorf("watch: %w", err)
		}

		if err := core.Add(ctx, r.Path, mask, r.Persistent); err != nil {
			return fmt.Errorf("watch: registering root %s: %w", r.Path, err)
		}

		logger.Info("registered root", slog.String("path", r.Path), slog.Bool("persistent", r.Persistent))
	}

	<-ctx.Done()

	logger.Info("shutting down")

	return core.Stop()
}

// ignoredPrefixesFor flattens every root's configured ignored prefixes into
// the single global list the Core's WithIgnoredPrefixes option expects —
// the Core has no per-root notion of ignored prefixes, unlike the scanner's
// IgnoreFunc built by ignoreFuncFor.
func ignoredPrefixesFor(cfg *config.Config) []string {
	var prefixes []string

	for _, r := range cfg.Roots {
		prefixes = append(prefixes, r.IgnoredPrefixes...)
	}

	return prefixes
}

// ignoreFuncFor builds a scanner.IgnoreFunc from every root's configured
// ignored prefixes.
func ignoreFuncFor(cfg *config.Config) scanner.IgnoreFunc {
	return func(dir string) bool {
		for _, r := range cfg.Roots {
			for _, prefix := range r.IgnoredPrefixes {
				if dir == prefix || strings.HasPrefix(dir, prefix+"/") {
					return true
				}
			}
		}

		return false
	}
}

func defaultPIDPath() string {
	dir := config.DefaultDataDir()
	if dir == "" {
		return "fstrackd.pid"
	}

	return dir + "/fstrackd.pid"
}

func printEvent(w *os.File, ev fsmonitor.Event, colorEnabled bool) {
	kind := ev.Kind.String()
	line := fmt.Sprintf("%-20s %s  %s", colorize(kind, eventColor(kind), colorEnabled), ev.Path, ev.SourceTag)
	fmt.Fprintln(w, line)
}

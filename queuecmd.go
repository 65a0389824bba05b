package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/fstrackd/internal/config"
	"github.com/tonimelisma/fstrackd/internal/queue"
)

var (
	flagQueueDBPath string
	flagQueueName   string
)

// newQueueCmd builds the `queue` command tree: put/get/peek/size,
// operating directly on a named persistent queue for operational
// inspection and scripting.
func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "inspect and manipulate a persistent queue",
	}

	cmd.PersistentFlags().StringVar(&flagQueueDBPath, "db", "", "queue database path (default: from config)")
	cmd.PersistentFlags().StringVar(&flagQueueName, "name", "", "queue name (default: from config)")

	cmd.AddCommand(newQueuePutCmd())
	cmd.AddCommand(newQueueGetCmd())
	cmd.AddCommand(newQueuePeekCmd())
	cmd.AddCommand(newQueueSizeCmd())

	return cmd
}

func newQueuePutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <value>",
		Short: "append a string item to the tail of the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, logger, err := openQueueForCLI()
			if err != nil {
				return err
			}
			defer q.Close()

			if err := q.Put(cmd.Context(), args[0], nil); err != nil {
				return fmt.Errorf("queue put: %w", err)
			}

			logger.Debug("item enqueued", slog.String("value", args[0]))
			fmt.Fprintln(cmd.OutOrStdout(), "ok")

			return nil
		},
	}
}

func newQueueGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "remove and print the item at the head of the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, _, err := openQueueForCLI()
			if err != nil {
				return err
			}
			defer q.Close()

			item, err := q.Get(cmd.Context())
			if err != nil {
				return fmt.Errorf("queue get: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), item)

			return nil
		},
	}
}

func newQueuePeekCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "peek",
		Short: "print the item at the head of the queue without removing it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, _, err := openQueueForCLI()
			if err != nil {
				return err
			}
			defer q.Close()

			item, err := q.Peek(cmd.Context())
			if err != nil {
				return fmt.Errorf("queue peek: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), item)

			return nil
		},
	}
}

func newQueueSizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "size",
		Short: "print the number of items currently in the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, _, err := openQueueForCLI()
			if err != nil {
				return err
			}
			defer q.Close()

			n, err := q.QSize(cmd.Context())
			if err != nil {
				return fmt.Errorf("queue size: %w", err)
			}

			name := flagQueueName
			if name == "" {
				name = "default"
			}

			printTable(cmd.OutOrStdout(),
				[]string{"NAME", "COUNT"},
				[][]string{{name, fmt.Sprintf("%d", n)}},
			)

			return nil
		},
	}
}

// openQueueForCLI resolves the queue database path and name from flags,
// falling back to the config file when a flag is unset, and opens it.
func openQueueForCLI() (*queue.Queue, *slog.Logger, error) {
	logger := buildLogger(nil)

	dbPath := flagQueueDBPath
	name := flagQueueName

	if dbPath == "" || name == "" {
		cfg, err := config.LoadOrDefault(resolveConfigPath(), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("queue: %w", err)
		}

		if dbPath == "" {
			dbPath = cfg.Queue.DBPath
		}

		if name == "" {
			name = cfg.Queue.Name
		}
	}

	if dbPath == "" {
		return nil, nil, fmt.Errorf("queue: no database path (pass --db or set queue.db_path in config)")
	}

	q, err := queue.Open(dbPath, name, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("queue: %w", err)
	}

	return q, logger, nil
}

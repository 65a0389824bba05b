package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// runQueueCLI executes the queue command tree against --db/--name flags
// pointed at a fresh temp-directory sqlite file, returning stdout.
func runQueueCLI(t *testing.T, dbPath string, args ...string) string {
	t.Helper()

	cmd := newQueueCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--db", dbPath, "--name", "test"}, args...))

	require.NoError(t, cmd.Execute())

	return out.String()
}

func TestQueuePutGetRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "queue.db")

	out := runQueueCLI(t, dbPath, "put", "hello")
	require.Contains(t, out, "ok")

	out = runQueueCLI(t, dbPath, "get")
	require.Contains(t, out, "hello")
}

func TestQueuePeekDoesNotRemove(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "queue.db")

	runQueueCLI(t, dbPath, "put", "first")

	peeked := runQueueCLI(t, dbPath, "peek")
	require.Contains(t, peeked, "first")

	sizeOut := runQueueCLI(t, dbPath, "size")
	require.Contains(t, sizeOut, "1")
}

func TestQueueSizeReflectsPuts(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "queue.db")

	runQueueCLI(t, dbPath, "put", "a")
	runQueueCLI(t, dbPath, "put", "b")
	runQueueCLI(t, dbPath, "put", "c")

	out := runQueueCLI(t, dbPath, "size")
	require.Contains(t, out, "3")
}

func TestQueueGetOnEmptyQueueFails(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "queue.db")

	cmd := newQueueCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--db", dbPath, "--name", "test", "get"})

	err := cmd.Execute()
	require.Error(t, err)
}

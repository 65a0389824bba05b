// Package testutil provides small shared test helpers used across package
// test suites: a t.Log-backed slog.Logger so activity shows up in CI output.
package testutil

import (
	"log/slog"
	"testing"
)

// Logger returns a debug-level logger that writes to t.Log.
func Logger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&logWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// logWriter adapts testing.T to io.Writer for slog.
type logWriter struct {
	t *testing.T
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

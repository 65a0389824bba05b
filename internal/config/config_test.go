package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/fstrackd/testutil"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadValidFullConfig(t *testing.T) {
	content := `
[[root]]
path = "/home/alice/projects"
persistent = true
events = ["created", "modified", "deleted"]
ignored_prefixes = ["/home/alice/projects/.git"]

[[root]]
path = "/home/alice/notes"
persistent = false

[index]
db_path = "/var/lib/fstrackd/index.db"

[queue]
db_path = "/var/lib/fstrackd/queue.db"
name = "changes"
min_in_memory = 50
max_in_memory = 500

[logging]
level = "debug"
format = "json"
`
	path := writeTestConfig(t, content)

	cfg, err := Load(path, testutil.Logger(t))
	require.NoError(t, err)

	require.Len(t, cfg.Roots, 2)
	require.Equal(t, "/home/alice/projects", cfg.Roots[0].Path)
	require.True(t, cfg.Roots[0].Persistent)
	require.False(t, cfg.Roots[1].Persistent)
	require.Equal(t, "changes", cfg.Queue.Name)
	require.Equal(t, 50, cfg.Queue.MinInMemory)
	require.Equal(t, 500, cfg.Queue.MaxInMemory)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadAppliesDefaultsForUnsetSections(t *testing.T) {
	content := `
[[root]]
path = "/home/alice/projects"

[index]
db_path = "/var/lib/fstrackd/index.db"

[queue]
db_path = "/var/lib/fstrackd/queue.db"
`
	path := writeTestConfig(t, content)

	cfg, err := Load(path, testutil.Logger(t))
	require.NoError(t, err)

	require.Equal(t, defaultQueueName, cfg.Queue.Name)
	require.Equal(t, defaultMinInMemory, cfg.Queue.MinInMemory)
	require.Equal(t, defaultMaxInMemory, cfg.Queue.MaxInMemory)
	require.Equal(t, defaultLogLevel, cfg.Logging.Level)
	require.Equal(t, defaultLogFormat, cfg.Logging.Format)
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	content := `
[[root]]
path = "/home/alice/projects"

[index]
db_path = "/var/lib/fstrackd/index.db"

[queue]
db_path = "/var/lib/fstrackd/queue.db"

typo_field = true
`
	path := writeTestConfig(t, content)

	_, err := Load(path, testutil.Logger(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "typo_field")
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	content := `
[[root]]
path = "relative/not/absolute"

[index]
db_path = "/var/lib/fstrackd/index.db"

[queue]
db_path = "/var/lib/fstrackd/queue.db"
`
	path := writeTestConfig(t, content)

	_, err := Load(path, testutil.Logger(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "must be absolute")
}

func TestLoadOrDefaultReturnsDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"), testutil.Logger(t))
	require.NoError(t, err)
	require.Empty(t, cfg.Roots)
	require.Equal(t, defaultQueueName, cfg.Queue.Name)
}

func TestRootEventMaskDefaultsToAll(t *testing.T) {
	r := RootConfig{Path: "/x"}

	mask, err := r.EventMask()
	require.NoError(t, err)
	require.Equal(t, uint8(0x1f), uint8(mask))
}

func TestRootEventMaskRejectsUnknownKind(t *testing.T) {
	r := RootConfig{Path: "/x", Events: []string{"bogus"}}

	_, err := r.EventMask()
	require.Error(t, err)
}

// Package config implements TOML configuration loading and validation for
// the monitored roots, persistent queue, and logging settings.
package config

// Config is the top-level configuration structure.
type Config struct {
	Roots   []RootConfig  `toml:"root"`
	Index   IndexConfig   `toml:"index"`
	Queue   QueueConfig   `toml:"queue"`
	Logging LoggingConfig `toml:"logging"`
}

// RootConfig is one monitored directory subtree.
type RootConfig struct {
	Path            string   `toml:"path"`
	Persistent      bool     `toml:"persistent"`
	Events          []string `toml:"events"`
	IgnoredPrefixes []string `toml:"ignored_prefixes"`
}

// QueueConfig controls the persistent queue's storage and prefetch window.
type QueueConfig struct {
	DBPath      string `toml:"db_path"`
	Name        string `toml:"name"`
	MinInMemory int    `toml:"min_in_memory"`
	MaxInMemory int    `toml:"max_in_memory"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// IndexConfig controls the Shadow Index's storage. There is exactly one
// Shadow Index database per process, shared by every monitored root.
type IndexConfig struct {
	DBPath string `toml:"db_path"`
}

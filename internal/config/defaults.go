package config

// Default values — layer 0 of the override chain (config file is layer 1).
const (
	defaultMinInMemory = 100
	defaultMaxInMemory = 1000
	defaultQueueName   = "default"
	defaultLogLevel    = "info"
	defaultLogFormat   = "auto"
)

// DefaultConfig returns a Config populated with every default value. Used
// both as the decode target (so unset TOML fields keep their defaults) and
// as the result when no config file is supplied.
func DefaultConfig() *Config {
	return &Config{
		Queue: QueueConfig{
			Name:        defaultQueueName,
			MinInMemory: defaultMinInMemory,
			MaxInMemory: defaultMaxInMemory,
		},
		Logging: LoggingConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}

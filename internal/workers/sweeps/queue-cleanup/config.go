// internal/workers/sweeps/queue-cleanup/config.go
package queuecleanup

import "time"

type Config struct {
	Timeout       time.Duration
	RetentionDays int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:       5 * time.Minute,
		RetentionDays: 7,
	}
}

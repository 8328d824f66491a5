// internal/workers/sweeps/job-alerts/config.go
package jobalerts

import "time"

type Config struct {
	Timeout    time.Duration
	BatchLimit int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:    10 * time.Minute,
		BatchLimit: 10,
	}
}

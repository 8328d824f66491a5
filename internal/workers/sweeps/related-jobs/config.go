// internal/workers/sweeps/related-jobs/config.go
package relatedjobs

import "time"

type Config struct {
	Timeout       time.Duration
	LookbackDays  int // search history window
	JobWindowDays int // how recent a job must be to be recommended
	Limit         int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:       15 * time.Minute,
		LookbackDays:  7,
		JobWindowDays: 3,
		Limit:         5,
	}
}

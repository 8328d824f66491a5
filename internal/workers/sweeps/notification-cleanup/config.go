// internal/workers/sweeps/notification-cleanup/config.go
package notificationcleanup

import "time"

type Config struct {
	Timeout               time.Duration
	LogRetentionMonths    int
	SearchRetentionMonths int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:               5 * time.Minute,
		LogRetentionMonths:    3,
		SearchRetentionMonths: 6,
	}
}

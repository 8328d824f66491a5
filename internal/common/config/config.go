// internal/common/config/config.go
package config

import "fmt"

type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Server        ServerConfig            `mapstructure:"server"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Queue         QueueConfig             `mapstructure:"queue"`
	Scheduler     SchedulerConfig         `mapstructure:"scheduler"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Integrations  IntegrationConfig       `mapstructure:"integrations"`
	Ingest        IngestConfig            `mapstructure:"ingest"`
	Tracing       TracingConfig           `mapstructure:"tracing"`
	Logging       LoggingConfig           `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// GetURL returns the postgres:// form expected by the migration driver.
func (p PostgresConfig) GetURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses          []string `mapstructure:"addresses"`
	Username           string   `mapstructure:"username"`
	Password           string   `mapstructure:"password"`
	SSLEnabled         bool     `mapstructure:"ssl_enabled"`
	URL                string   `mapstructure:"url"` // Single URL for backwards compatibility
	SearchHistoryIndex string   `mapstructure:"search_history_index"`
}

func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig is keyed by task type (queue types and scheduled task names).
type WorkerConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	Timeout    int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries int  `mapstructure:"max_retries"` // used as max_attempts for queue types
}

type QueueConfig struct {
	Interval      int `mapstructure:"interval"` // milliseconds
	BatchSize     int `mapstructure:"batch_size"`
	MaxAttempts   int `mapstructure:"max_attempts"`
	RetentionDays int `mapstructure:"retention_days"`
	BackoffBase   int `mapstructure:"backoff_base"` // milliseconds, 0 disables backoff
	BackoffMax    int `mapstructure:"backoff_max"`  // milliseconds
	// BatchTimeout bounds one processing batch, FinalizeTimeout each result write.
	BatchTimeout    int `mapstructure:"batch_timeout"`    // milliseconds
	FinalizeTimeout int `mapstructure:"finalize_timeout"` // milliseconds
	StaleAfter      int `mapstructure:"stale_after"`      // milliseconds, 0 derives from the batch bounds
}

// SchedulerConfig holds cron specs; whether a task runs is decided by its Workers entry.
type SchedulerConfig struct {
	Timezone string            `mapstructure:"timezone"`
	Tasks    map[string]string `mapstructure:"tasks"` // task name -> cron spec
}

type NotificationConfig struct {
	Sink                  string `mapstructure:"sink"` // log, ses, sns, resend, webhook
	FromEmail             string `mapstructure:"from_email"`
	FrontendURL           string `mapstructure:"frontend_url"`
	DedupeEnabled         bool   `mapstructure:"dedupe_enabled"`
	DedupeTTL             int    `mapstructure:"dedupe_ttl"` // milliseconds
	MatchUnfilteredAlerts *bool  `mapstructure:"match_unfiltered_alerts"`
	AlertBatchLimit       int    `mapstructure:"alert_batch_limit"`
	RelatedBatchLimit     int    `mapstructure:"related_batch_limit"`
	LogRetentionMonths    int    `mapstructure:"log_retention_months"`
	SearchRetentionMonths int    `mapstructure:"search_retention_months"`
}

// MatchesUnfiltered reports whether alerts without any criteria match every job.
func (n NotificationConfig) MatchesUnfiltered() bool {
	if n.MatchUnfilteredAlerts == nil {
		return true
	}
	return *n.MatchUnfilteredAlerts
}

type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled   bool   `mapstructure:"enabled"`
			FromEmail string `mapstructure:"from_email"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled            bool   `mapstructure:"enabled"`
			DefaultSMSSenderID string `mapstructure:"default_sms_sender_id"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`

	Resend struct {
		APIKey    string `mapstructure:"api_key"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"resend"`

	Webhook struct {
		URL     string `mapstructure:"url"`
		Secret  string `mapstructure:"secret"`
		Timeout int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"webhook"`
}

type IngestConfig struct {
	Kafka struct {
		Enabled bool     `mapstructure:"enabled"`
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
		GroupID string   `mapstructure:"group_id"`
	} `mapstructure:"kafka"`
}

type TracingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

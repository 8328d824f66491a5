// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Default cron specs for the built-in scheduled tasks.
var DefaultTaskSpecs = map[string]string{
	"job-alerts":           "*/30 * * * *",
	"related-jobs":         "0 9 * * *",
	"notification-cleanup": "0 2 * * 0",
	"queue-cleanup":        "0 3 * * *",
}

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional per-environment overlay

	return finalize(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finalize(v)
}

func finalize(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env", // tests in test/e2e/
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// Direct override if secrets are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.Database.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Database.Redis.Password = val
		}
	}
	if cfg.Integrations.Resend.APIKey == "" {
		if val := os.Getenv("RESEND_API_KEY"); val != "" {
			cfg.Integrations.Resend.APIKey = val
		}
	}
	if cfg.Integrations.Webhook.Secret == "" {
		if val := os.Getenv("WEBHOOK_SECRET"); val != "" {
			cfg.Integrations.Webhook.Secret = val
		}
	}
	if cfg.Notifications.FrontendURL == "" {
		if val := os.Getenv("FRONTEND_URL"); val != "" {
			cfg.Notifications.FrontendURL = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "notification-worker"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}
	if len(cfg.Database.Elasticsearch.Addresses) == 0 && cfg.Database.Elasticsearch.URL != "" {
		cfg.Database.Elasticsearch.Addresses = []string{cfg.Database.Elasticsearch.URL}
	}
	if cfg.Database.Elasticsearch.SearchHistoryIndex == "" {
		cfg.Database.Elasticsearch.SearchHistoryIndex = "job_searches"
	}

	if cfg.Queue.Interval == 0 {
		cfg.Queue.Interval = 30000
	}
	if cfg.Queue.BatchSize == 0 {
		cfg.Queue.BatchSize = 10
	}
	if cfg.Queue.MaxAttempts == 0 {
		cfg.Queue.MaxAttempts = 3
	}
	if cfg.Queue.RetentionDays == 0 {
		cfg.Queue.RetentionDays = 7
	}
	if cfg.Queue.BackoffMax == 0 {
		cfg.Queue.BackoffMax = 600000
	}
	if cfg.Queue.BatchTimeout == 0 {
		cfg.Queue.BatchTimeout = 300000
	}
	if cfg.Queue.FinalizeTimeout == 0 {
		cfg.Queue.FinalizeTimeout = 10000
	}

	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "Europe/Istanbul"
	}
	if cfg.Scheduler.Tasks == nil {
		cfg.Scheduler.Tasks = make(map[string]string)
	}
	for name, spec := range DefaultTaskSpecs {
		if cfg.Scheduler.Tasks[name] == "" {
			cfg.Scheduler.Tasks[name] = spec
		}
	}

	if cfg.Notifications.Sink == "" {
		cfg.Notifications.Sink = "log"
	}
	if cfg.Notifications.DedupeTTL == 0 {
		cfg.Notifications.DedupeTTL = 24 * 60 * 60 * 1000
	}
	if cfg.Notifications.AlertBatchLimit == 0 {
		cfg.Notifications.AlertBatchLimit = 10
	}
	if cfg.Notifications.RelatedBatchLimit == 0 {
		cfg.Notifications.RelatedBatchLimit = 5
	}
	if cfg.Notifications.LogRetentionMonths == 0 {
		cfg.Notifications.LogRetentionMonths = 3
	}
	if cfg.Notifications.SearchRetentionMonths == 0 {
		cfg.Notifications.SearchRetentionMonths = 6
	}
	if cfg.Notifications.FromEmail == "" {
		cfg.Notifications.FromEmail = cfg.Integrations.AWS.SES.FromEmail
	}

	if cfg.Integrations.Webhook.Timeout == 0 {
		cfg.Integrations.Webhook.Timeout = 10000
	}

	if cfg.Ingest.Kafka.GroupID == "" {
		cfg.Ingest.Kafka.GroupID = cfg.App.Name
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	for key, worker := range cfg.Workers {
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = cfg.Queue.MaxAttempts
		}
		cfg.Workers[key] = worker
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if len(cfg.Database.Elasticsearch.Addresses) == 0 && cfg.Database.Elasticsearch.URL == "" {
		return fmt.Errorf("database.elasticsearch.addresses or url is required")
	}

	if cfg.Notifications.DedupeEnabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when notifications.dedupe_enabled is set")
	}

	if cfg.Queue.BatchSize < 0 || cfg.Queue.MaxAttempts < 0 {
		return fmt.Errorf("queue.batch_size and queue.max_attempts must be positive")
	}

	switch cfg.Notifications.Sink {
	case "log":
	case "ses":
		if cfg.Notifications.FromEmail == "" {
			return fmt.Errorf("notifications.from_email is required for the ses sink")
		}
	case "sns":
	case "resend":
		if cfg.Integrations.Resend.APIKey == "" {
			return fmt.Errorf("integrations.resend.api_key is required for the resend sink")
		}
	case "webhook":
		if cfg.Integrations.Webhook.URL == "" {
			return fmt.Errorf("integrations.webhook.url is required for the webhook sink")
		}
	default:
		return fmt.Errorf("unknown notifications.sink %q", cfg.Notifications.Sink)
	}

	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" {
			return fmt.Errorf("ingest.kafka.brokers and ingest.kafka.topic are required when kafka ingest is enabled")
		}
	}

	if cfg.Tracing.Enabled && cfg.Tracing.JaegerEndpoint == "" {
		return fmt.Errorf("tracing.jaeger_endpoint is required when tracing is enabled")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves task-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, taskType string) WorkerConfig {
	if worker, exists := cfg.Workers[taskType]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:    true,
		Timeout:    30000,
		MaxRetries: cfg.Queue.MaxAttempts,
	}
}

// IsWorkerEnabled checks if a specific task is enabled
func IsWorkerEnabled(cfg *Config, taskType string) bool {
	if worker, exists := cfg.Workers[taskType]; exists {
		return worker.Enabled
	}
	return true
}

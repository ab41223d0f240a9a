package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server        ServerConfig       `yaml:"server"`
	AWS           AWSConfig          `yaml:"aws"`
	Leads         LeadsConfig        `yaml:"leads"`
	Queues        QueuesConfig       `yaml:"queues"`
	Events        EventsConfig       `yaml:"events"`
	Redis         RedisConfig        `yaml:"redis"`
	Postgres      PostgresConfig     `yaml:"postgres"`
	Rules         RulesConfig        `yaml:"rules"`
	Flags         FlagsConfig        `yaml:"flags"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Snowflake     SnowflakeConfig    `yaml:"snowflake"`
	Worker        WorkerConfig       `yaml:"worker"`
	Auth          AuthConfig         `yaml:"auth"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container runtime detection
func (c ServerConfig) GetHost() string {
	// On ECS/Lambda, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// AWSConfig holds shared AWS client configuration
type AWSConfig struct {
	Region  string `yaml:"region"`
	Profile string `yaml:"profile"` // Empty string uses default credential chain (IAM role)
}

// GetProfile returns the AWS profile, with environment variable override
func (c AWSConfig) GetProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return "" // Use default credential chain (IAM role)
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.Profile
}

// LeadsConfig holds the lead store settings
type LeadsConfig struct {
	TableName         string `yaml:"table_name"`
	UnassignedTTLDays int    `yaml:"unassigned_ttl_days"`
}

// QueuesConfig holds the SQS queue URLs consumed by the pipeline
type QueuesConfig struct {
	AssignmentQueueURL   string `yaml:"assignment_queue_url"`
	NotificationQueueURL string `yaml:"notification_queue_url"`
	AnalyticsQueueURL    string `yaml:"analytics_queue_url"`
	WaitTimeSeconds      int    `yaml:"wait_time_seconds"`
	BatchSize            int    `yaml:"batch_size"`
}

// WaitTime returns the long-poll wait as a duration
func (c QueuesConfig) WaitTime() time.Duration {
	return time.Duration(c.WaitTimeSeconds) * time.Second
}

// EventsConfig holds the EventBridge publishing settings
type EventsConfig struct {
	BusName string `yaml:"bus_name"`
	Source  string `yaml:"source"`
}

// RedisConfig holds the cap counter store settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PostgresConfig holds the relational store settings (orgs, members, rules)
type PostgresConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

// RulesConfig holds the assignment rule source settings
type RulesConfig struct {
	Source          string `yaml:"source"` // "s3" or "postgres"
	S3Bucket        string `yaml:"s3_bucket"`
	S3Key           string `yaml:"s3_key"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

// CacheTTL returns the rule cache lifetime as a duration
func (c RulesConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// FlagsConfig holds the feature flag source settings
type FlagsConfig struct {
	S3Bucket        string `yaml:"s3_bucket"`
	S3Key           string `yaml:"s3_key"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

// CacheTTL returns the flag cache lifetime as a duration
func (c FlagsConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// NotificationsConfig holds outbound notification settings
type NotificationsConfig struct {
	FromAddress        string   `yaml:"from_address"`
	ReplyTo            string   `yaml:"reply_to"`
	InternalRecipients []string `yaml:"internal_recipients"`
	DashboardBaseURL   string   `yaml:"dashboard_base_url"`
	TimeoutSeconds     int      `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c NotificationsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SnowflakeConfig holds Snowflake configuration for the analytics export
type SnowflakeConfig struct {
	ConnectionString string `yaml:"connection_string"`
	Account          string `yaml:"account"`
	User             string `yaml:"user"`
	Password         string `yaml:"password"`
	Database         string `yaml:"database"`
	Schema           string `yaml:"schema"`
	Warehouse        string `yaml:"warehouse"`
	Enabled          bool   `yaml:"enabled"`
}

// WorkerConfig holds queue poller settings
type WorkerConfig struct {
	Concurrency         int `yaml:"concurrency"`
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
}

// PollInterval returns the idle backoff between empty polls
func (c WorkerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// AuthConfig holds ops API authentication configuration
type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "us-east-1"
	}
	if cfg.Leads.TableName == "" {
		cfg.Leads.TableName = "leads"
	}
	if cfg.Leads.UnassignedTTLDays == 0 {
		cfg.Leads.UnassignedTTLDays = 90
	}
	if cfg.Queues.WaitTimeSeconds == 0 {
		cfg.Queues.WaitTimeSeconds = 20
	}
	if cfg.Queues.BatchSize == 0 {
		cfg.Queues.BatchSize = 10
	}
	if cfg.Events.BusName == "" {
		cfg.Events.BusName = "lead-events"
	}
	if cfg.Events.Source == "" {
		cfg.Events.Source = "lead-router"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Rules.Source == "" {
		cfg.Rules.Source = "s3"
	}
	if cfg.Rules.S3Key == "" {
		cfg.Rules.S3Key = "config/assignment-rules.json"
	}
	if cfg.Rules.CacheTTLSeconds == 0 {
		cfg.Rules.CacheTTLSeconds = 60
	}
	if cfg.Flags.S3Key == "" {
		cfg.Flags.S3Key = "config/feature-flags.json"
	}
	if cfg.Flags.CacheTTLSeconds == 0 {
		cfg.Flags.CacheTTLSeconds = 60
	}
	if cfg.Notifications.TimeoutSeconds == 0 {
		cfg.Notifications.TimeoutSeconds = 30
	}
	if cfg.Snowflake.Database == "" {
		cfg.Snowflake.Database = "IGNITE_DATA_LAKE"
	}
	if cfg.Snowflake.Schema == "" {
		cfg.Snowflake.Schema = "LEADEVENTS"
	}
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = 4
	}
	if cfg.Worker.PollIntervalSeconds == 0 {
		cfg.Worker.PollIntervalSeconds = 5
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

// FromEnv builds a Config from environment variables alone. Lambda handlers
// have no config file baked into the image, so everything they need arrives
// through the function environment.
func FromEnv() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnv(cfg)
	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("LEADS_TABLE"); v != "" {
		cfg.Leads.TableName = v
	}
	if v := os.Getenv("UNASSIGNED_TTL_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.Leads.UnassignedTTLDays = days
		}
	}
	if v := os.Getenv("ASSIGNMENT_QUEUE_URL"); v != "" {
		cfg.Queues.AssignmentQueueURL = v
	}
	if v := os.Getenv("NOTIFICATION_QUEUE_URL"); v != "" {
		cfg.Queues.NotificationQueueURL = v
	}
	if v := os.Getenv("ANALYTICS_QUEUE_URL"); v != "" {
		cfg.Queues.AnalyticsQueueURL = v
	}
	if v := os.Getenv("EVENT_BUS_NAME"); v != "" {
		cfg.Events.BusName = v
	}
	if v := os.Getenv("EVENT_SOURCE"); v != "" {
		cfg.Events.Source = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.DatabaseURL = v
	}
	if v := os.Getenv("RULES_SOURCE"); v != "" {
		cfg.Rules.Source = v
	}
	if v := os.Getenv("RULES_S3_BUCKET"); v != "" {
		cfg.Rules.S3Bucket = v
	}
	if v := os.Getenv("RULES_S3_KEY"); v != "" {
		cfg.Rules.S3Key = v
	}
	if v := os.Getenv("FLAGS_S3_BUCKET"); v != "" {
		cfg.Flags.S3Bucket = v
	}
	if v := os.Getenv("FLAGS_S3_KEY"); v != "" {
		cfg.Flags.S3Key = v
	}
	if v := os.Getenv("NOTIFY_FROM_ADDRESS"); v != "" {
		cfg.Notifications.FromAddress = v
	}
	if v := os.Getenv("NOTIFY_REPLY_TO"); v != "" {
		cfg.Notifications.ReplyTo = v
	}
	if v := os.Getenv("INTERNAL_RECIPIENTS"); v != "" {
		cfg.Notifications.InternalRecipients = splitList(v)
	}
	if v := os.Getenv("DASHBOARD_BASE_URL"); v != "" {
		cfg.Notifications.DashboardBaseURL = v
	}
	if v := os.Getenv("SNOWFLAKE_CONNECTION_STRING"); v != "" {
		cfg.Snowflake.ConnectionString = v
		cfg.Snowflake.Enabled = true
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Auth.APIKey = v
		cfg.Auth.Enabled = true
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

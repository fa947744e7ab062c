package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerAddress string `yaml:"server_address"`
	LogLevel      string `yaml:"log_level"`
	LogJSON       bool   `yaml:"log_json"`

	JWTSecret       string   `yaml:"-"`
	AdminEmails     []string `yaml:"admin_emails"`
	FirebaseProject string   `yaml:"firebase_project_id"`
	FirebaseCreds   string   `yaml:"-"`

	MongoURI string `yaml:"-"`
	MongoDB  string `yaml:"mongo_db"`
	DataDir  string `yaml:"data_dir"`
	RedisURL string `yaml:"-"`

	SendGridAPIKey    string `yaml:"-"`
	NotifyFromEmail   string `yaml:"notify_from_email"`
	NotifyToEmail     string `yaml:"notify_to_email"`
	NotifyToName      string `yaml:"notify_to_name"`
	ArchiveBucket     string `yaml:"archive_bucket"`
	RunJobsInServer   bool   `yaml:"run_jobs_in_server"`
	RequestTimeoutSec int    `yaml:"request_timeout_seconds"`

	Consistency   ConsistencyConfig   `yaml:"consistency"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// ConsistencyConfig is the single source of truth for the suspension workflow constants.
type ConsistencyConfig struct {
	RequiredFields  []string      `yaml:"required_fields"`
	GracePeriodDays int           `yaml:"grace_period_days"`
	CheckInterval   time.Duration `yaml:"check_interval"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	// OwnedCollections hold documents keyed by user_id that are purged with the account.
	OwnedCollections []string `yaml:"owned_collections"`
}

func (c ConsistencyConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodDays) * 24 * time.Hour
}

type NotificationsConfig struct {
	Threshold     int64         `yaml:"threshold"`
	CheckInterval time.Duration `yaml:"check_interval"`
	Sections      []Section     `yaml:"sections"`
}

// Section maps a content collection to the name shown to the site owner.
type Section struct {
	Collection  string `yaml:"collection"`
	DisplayName string `yaml:"display_name"`
	// LocalCount stands in for the collection size when no database is configured.
	LocalCount int64 `yaml:"local_count"`
}

// LocalCounts returns the configured stand-in counts keyed by collection.
func (c NotificationsConfig) LocalCounts() map[string]int64 {
	out := make(map[string]int64, len(c.Sections))
	for _, s := range c.Sections {
		out[s.Collection] = s.LocalCount
	}
	return out
}

const (
	DefaultGracePeriodDays = 7
	DefaultThreshold       = 3
)

func Defaults() *Config {
	return &Config{
		ServerAddress:     ":8080",
		LogLevel:          "info",
		JWTSecret:         "your-secret-key-change-in-production",
		MongoDB:           "portfolio",
		DataDir:           "./data",
		NotifyToName:      "Site owner",
		RequestTimeoutSec: 15,
		Consistency: ConsistencyConfig{
			RequiredFields:   []string{"name", "email"},
			GracePeriodDays:  DefaultGracePeriodDays,
			CheckInterval:    time.Hour,
			SweepInterval:    time.Hour,
			OwnedCollections: []string{"chat_messages", "code_snippets"},
		},
		Notifications: NotificationsConfig{
			Threshold:     DefaultThreshold,
			CheckInterval: 24 * time.Hour,
			Sections: []Section{
				{Collection: "skills", DisplayName: "Skills"},
				{Collection: "projects", DisplayName: "Projects"},
				{Collection: "experiences", DisplayName: "Experience"},
			},
		},
	}
}

// Load applies defaults, then the optional YAML file named by CONFIG_FILE, then env vars.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) MergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return c.MergeYAML(b)
}

// MergeYAML overlays the document onto c; keys absent from the document keep their value.
func (c *Config) MergeYAML(b []byte) error {
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ServerAddress = getEnv("SERVER_ADDRESS", c.ServerAddress)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogJSON = getEnvBool("LOG_JSON", c.LogJSON)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.FirebaseProject = getEnv("FIREBASE_PROJECT_ID", c.FirebaseProject)
	c.FirebaseCreds = getEnv("FIREBASE_CREDENTIALS_JSON", c.FirebaseCreds)
	c.MongoURI = getEnv("MONGO_URI", c.MongoURI)
	c.MongoDB = getEnv("MONGO_DB", c.MongoDB)
	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.SendGridAPIKey = getEnv("SENDGRID_API_KEY", c.SendGridAPIKey)
	c.NotifyFromEmail = getEnv("NOTIFY_FROM_EMAIL", c.NotifyFromEmail)
	c.NotifyToEmail = getEnv("NOTIFY_TO_EMAIL", c.NotifyToEmail)
	c.ArchiveBucket = getEnv("ARCHIVE_BUCKET", c.ArchiveBucket)
	c.RunJobsInServer = getEnvBool("RUN_JOBS_IN_SERVER", c.RunJobsInServer)
	if v := getEnv("ADMIN_EMAILS", ""); v != "" {
		c.AdminEmails = splitList(v)
	}
	if v := getEnv("REQUIRED_FIELDS", ""); v != "" {
		c.Consistency.RequiredFields = splitList(v)
	}
	c.Consistency.GracePeriodDays = getEnvInt("GRACE_PERIOD_DAYS", c.Consistency.GracePeriodDays)
	c.Notifications.Threshold = int64(getEnvInt("CONTENT_THRESHOLD", int(c.Notifications.Threshold)))
}

func (c *Config) Validate() error {
	if c.Consistency.GracePeriodDays <= 0 {
		return fmt.Errorf("grace_period_days must be positive, got %d", c.Consistency.GracePeriodDays)
	}
	if len(c.Consistency.RequiredFields) == 0 {
		return fmt.Errorf("required_fields must not be empty")
	}
	if c.Notifications.Threshold <= 0 {
		return fmt.Errorf("notifications threshold must be positive, got %d", c.Notifications.Threshold)
	}
	for _, s := range c.Notifications.Sections {
		if s.Collection == "" || s.DisplayName == "" {
			return fmt.Errorf("notification sections need collection and display_name")
		}
	}
	if c.Consistency.CheckInterval <= 0 || c.Consistency.SweepInterval <= 0 || c.Notifications.CheckInterval <= 0 {
		return fmt.Errorf("job intervals must be positive")
	}
	return nil
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvInt(key string, defaultValue int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return defaultValue
	}
	return n
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

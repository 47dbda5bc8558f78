// Package config loads service configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Port            string        `yaml:"port"`
		APIToken        string        `yaml:"api_token"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	SeedFile string `yaml:"seed_file"`
	Gemini   struct {
		APIKey  string        `yaml:"api_key"`
		Model   string        `yaml:"model"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"gemini"`
	Sync struct {
		Latency          time.Duration   `yaml:"latency"`
		AlertThreshold   decimal.Decimal `yaml:"alert_threshold"`
		IncomeLimitRatio decimal.Decimal `yaml:"income_limit_ratio"`
		Schedule         string          `yaml:"schedule"`
		QueueSize        int             `yaml:"queue_size"`
		MaxRetries       int             `yaml:"max_retries"`
	} `yaml:"sync"`
	AMQP struct {
		URL        string `yaml:"url"`
		Exchange   string `yaml:"exchange"`
		RoutingKey string `yaml:"routing_key"`
	} `yaml:"amqp"`
	Discord struct {
		BotToken  string `yaml:"bot_token"`
		ChannelID string `yaml:"channel_id"`
	} `yaml:"discord"`
	Export struct {
		GCSBucket       string `yaml:"gcs_bucket"`
		GCSPrefix       string `yaml:"gcs_prefix"`
		BigQueryProject string `yaml:"bigquery_project"`
		BigQueryDataset string `yaml:"bigquery_dataset"`
		BigQueryTable   string `yaml:"bigquery_table"`
		NotionToken     string `yaml:"notion_token"`
		NotionTasksDB   string `yaml:"notion_tasks_db"`
	} `yaml:"export"`
	Backend struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"backend"`
}

// Defaults returns a configuration with every default applied.
func Defaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.Server.ShutdownTimeout = 30 * time.Second
	cfg.Log.Level = "info"
	cfg.Log.Format = "console"
	cfg.Gemini.Model = "gemini-2.5-flash"
	cfg.Gemini.Timeout = 30 * time.Second
	cfg.Sync.Latency = 2 * time.Second
	cfg.Sync.AlertThreshold = decimal.NewFromInt(200)
	cfg.Sync.IncomeLimitRatio = decimal.RequireFromString("0.1")
	cfg.Sync.QueueSize = 16
	cfg.Sync.MaxRetries = 2
	cfg.AMQP.Exchange = "align"
	cfg.AMQP.RoutingKey = "dashboard.events"
	cfg.Export.GCSPrefix = "snapshots"
	cfg.Export.BigQueryDataset = "align"
	cfg.Export.BigQueryTable = "transactions"
	cfg.Backend.BaseURL = "http://localhost:4000"
	cfg.Backend.Timeout = 10 * time.Second
	return cfg
}

// Load applies the YAML file at path (if it exists) over the defaults, then
// environment variable overrides, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []string

	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.APIToken = getEnv("API_TOKEN", c.Server.APIToken)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.SeedFile = getEnv("SEED_FILE", c.SeedFile)

	c.Gemini.APIKey = getEnv("GEMINI_API_KEY", getEnv("API_KEY", c.Gemini.APIKey))
	c.Gemini.Model = getEnv("GEMINI_MODEL", c.Gemini.Model)

	c.Sync.Schedule = getEnv("SYNC_SCHEDULE", c.Sync.Schedule)
	c.Sync.QueueSize = getEnvInt("SYNC_QUEUE_SIZE", c.Sync.QueueSize)
	c.Sync.MaxRetries = getEnvInt("SYNC_MAX_RETRIES", c.Sync.MaxRetries)

	c.AMQP.URL = getEnv("AMQP_URL", c.AMQP.URL)
	c.AMQP.Exchange = getEnv("AMQP_EXCHANGE", c.AMQP.Exchange)
	c.AMQP.RoutingKey = getEnv("AMQP_ROUTING_KEY", c.AMQP.RoutingKey)

	c.Discord.BotToken = getEnv("DISCORD_BOT_TOKEN", c.Discord.BotToken)
	c.Discord.ChannelID = getEnv("DISCORD_CHANNEL_ID", c.Discord.ChannelID)

	c.Export.GCSBucket = getEnv("GCS_BUCKET", c.Export.GCSBucket)
	c.Export.GCSPrefix = getEnv("GCS_PREFIX", c.Export.GCSPrefix)
	c.Export.BigQueryProject = getEnv("BQ_PROJECT_ID", c.Export.BigQueryProject)
	c.Export.BigQueryDataset = getEnv("BQ_DATASET", c.Export.BigQueryDataset)
	c.Export.BigQueryTable = getEnv("BQ_TABLE", c.Export.BigQueryTable)
	c.Export.NotionToken = getEnv("NOTION_TOKEN", c.Export.NotionToken)
	c.Export.NotionTasksDB = getEnv("NOTION_TASKS_DB_ID", c.Export.NotionTasksDB)

	c.Backend.BaseURL = getEnv("BACKEND_BASE_URL", c.Backend.BaseURL)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout},
		{"GEMINI_TIMEOUT", &c.Gemini.Timeout},
		{"SYNC_LATENCY", &c.Sync.Latency},
		{"BACKEND_TIMEOUT", &c.Backend.Timeout},
	}
	for _, d := range durations {
		v, err := getEnvDuration(d.key, *d.dst)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		*d.dst = v
	}

	decimals := []struct {
		key string
		dst *decimal.Decimal
	}{
		{"ALERT_THRESHOLD", &c.Sync.AlertThreshold},
		{"INCOME_LIMIT_RATIO", &c.Sync.IncomeLimitRatio},
	}
	for _, d := range decimals {
		v, err := getEnvDecimal(d.key, *d.dst)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		*d.dst = v
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration environment invalid:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// Validate validates the configuration and returns an error listing every problem.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Server.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Server.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.Sync.Latency < 0 {
		errors = append(errors, fmt.Sprintf("invalid sync latency %v: must not be negative", c.Sync.Latency))
	}
	if c.Sync.AlertThreshold.IsNegative() {
		errors = append(errors, "alert threshold must not be negative")
	}
	if c.Sync.IncomeLimitRatio.IsNegative() || c.Sync.IncomeLimitRatio.GreaterThan(decimal.NewFromInt(1)) {
		errors = append(errors, fmt.Sprintf("invalid income limit ratio %s: must be between 0 and 1", c.Sync.IncomeLimitRatio))
	}
	if c.Sync.QueueSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync queue size %d: must be at least 1", c.Sync.QueueSize))
	}
	if c.Sync.MaxRetries < 0 {
		errors = append(errors, fmt.Sprintf("invalid sync max retries %d: must not be negative", c.Sync.MaxRetries))
	}
	if c.Sync.Schedule != "" {
		parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(c.Sync.Schedule); err != nil {
			errors = append(errors, fmt.Sprintf("invalid sync schedule '%s': %v", c.Sync.Schedule, err))
		}
	}

	if c.AMQP.URL != "" {
		if parsedURL, err := url.Parse(c.AMQP.URL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQP.URL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQP.Exchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if (c.Discord.BotToken == "") != (c.Discord.ChannelID == "") {
		errors = append(errors, "Discord bot token and channel ID must be set together")
	}

	if c.Export.BigQueryProject != "" && (c.Export.BigQueryDataset == "" || c.Export.BigQueryTable == "") {
		errors = append(errors, "BigQuery dataset and table are required when a BigQuery project is set")
	}
	if (c.Export.NotionToken == "") != (c.Export.NotionTasksDB == "") {
		errors = append(errors, "Notion token and tasks database ID must be set together")
	}

	if c.Backend.BaseURL != "" {
		if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid backend base URL '%s'", c.Backend.BaseURL))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// GeminiEnabled reports whether a Gemini API key is configured.
func (c *Config) GeminiEnabled() bool { return c.Gemini.APIKey != "" }

// DiscordEnabled reports whether Harmony alerts should be sent to Discord.
func (c *Config) DiscordEnabled() bool { return c.Discord.BotToken != "" && c.Discord.ChannelID != "" }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: invalid duration '%s'", key, value)
	}
	return d, nil
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: invalid number '%s'", key, value)
	}
	return d, nil
}

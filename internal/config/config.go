package config

import (
	"errors"
	"fmt"
	"os"

	"courtbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig         `yaml:"app"`
	Database   DatabaseConfig    `yaml:"database"`
	Redis      RedisConfig       `yaml:"redis"`
	Backup     BackupConfig      `yaml:"backup"`
	Monitoring MonitoringConfig  `yaml:"monitoring"`
	Logging    LoggingConfig     `yaml:"logging"`
	API        APIConfig         `yaml:"api"`
	Trust      TrustConfig       `yaml:"trust"`
	Telegram   TelegramConfig    `yaml:"telegram"`
	Managers   []int64           `yaml:"managers"`
	Facilities []models.Facility `yaml:"facilities"`
	Exports    ExportConfig      `yaml:"exports"`
	Google     GoogleConfig      `yaml:"google"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	Cron      APICronConfig      `yaml:"cron"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// APIAuthConfig configures API-key auth. Auth is on by default; the
// zero value of Disabled keeps it that way, so only an explicit
// `disabled: true` turns it off.
type APIAuthConfig struct {
	Disabled     bool           `yaml:"disabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

// APICronConfig carries the shared secret for the batch endpoint. The
// secret is injected into the handler, never read from the environment
// at call time.
type APICronConfig struct {
	Secret string `yaml:"secret"`
}

// APIRateLimitConfig has two layers: rps/burst is the per-instance token
// bucket, per_minute is the shared counter enforced through the cache so
// several API instances see one budget.
type APIRateLimitConfig struct {
	RPS       float64 `yaml:"rps"`
	Burst     int     `yaml:"burst"`
	PerMinute int     `yaml:"per_minute"`
}

type TrustConfig struct {
	StrikeRetentionDays  int `yaml:"strike_retention_days"`
	CompletionGraceHours int `yaml:"completion_grace_hours"`
	BanStrikeThreshold   int `yaml:"ban_strike_threshold"`
	BanDurationDays      int `yaml:"ban_duration_days"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type GoogleConfig struct {
	GoogleCredentialsFile string `yaml:"credentials_file"`
	TrustSpreadSheetID    string `yaml:"trust_spreadsheet_id"`
}

func Load(configPath string) (*Config, error) {
	// .env дополняет окружение перед подстановкой переменных в YAML
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.API.Enabled && c.API.Cron.Secret == "" {
		return errors.New("api cron secret is required when the API is enabled")
	}

	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return errors.New("telegram bot token is required when telegram is enabled")
	}

	return ValidateFacilities(c.Facilities)
}

func ValidateFacilities(facilities []models.Facility) error {
	ids := make(map[int64]bool)
	for _, f := range facilities {
		if f.ID == 0 {
			return fmt.Errorf("facility '%s' has invalid ID 0", f.Name)
		}
		if ids[f.ID] {
			return fmt.Errorf("duplicate facility ID found: %d", f.ID)
		}
		if f.CourtCount <= 0 {
			return fmt.Errorf("facility '%s' must have at least one court", f.Name)
		}
		ids[f.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}

	// Trust defaults mirror the constants in models.
	if c.Trust.StrikeRetentionDays == 0 {
		c.Trust.StrikeRetentionDays = int(models.StrikeRetention.Hours()) / 24
	}
	if c.Trust.CompletionGraceHours == 0 {
		c.Trust.CompletionGraceHours = int(models.CompletionGrace.Hours())
	}
	if c.Trust.BanStrikeThreshold == 0 {
		c.Trust.BanStrikeThreshold = models.BanStrikeThreshold
	}
	if c.Trust.BanDurationDays == 0 {
		c.Trust.BanDurationDays = int(models.BanDuration.Hours()) / 24
	}
}

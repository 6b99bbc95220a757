package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"clinicbook/internal/models"
	"clinicbook/internal/scheduling"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Booking    BookingConfig    `yaml:"booking"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Exports    ExportConfig     `yaml:"exports"`
	Google     GoogleConfig     `yaml:"google"`
}

// BookingConfig holds the scheduling policy of the clinic.
type BookingConfig struct {
	GranularityMinutes int    `yaml:"granularity_minutes"`
	CancellationWindow string `yaml:"cancellation_window"`
	MaxBookingDays     int    `yaml:"max_booking_days"`
	Timezone           string `yaml:"timezone"`
	RateLimitAttempts  int    `yaml:"rate_limit_attempts"`
	RateLimitWindow    string `yaml:"rate_limit_window"`
	CacheTTL           string `yaml:"cache_ttl"`
	CompletionInterval string `yaml:"completion_interval"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

// APIAuthConfig configures both credentials the API accepts: bearer tokens
// for patients and API keys for staff integrations.
type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	JWT          JWTConfig      `yaml:"jwt"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type JWTConfig struct {
	Secret   string `yaml:"secret"`
	Issuer   string `yaml:"issuer"`
	TokenTTL string `yaml:"token_ttl"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type CatalogConfig struct {
	Path string `yaml:"path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
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

type GoogleConfig struct {
	CredentialsFile           string `yaml:"credentials_file"`
	AppointmentsSpreadsheetID string `yaml:"appointments_spreadsheet_id"`
	SheetName                 string `yaml:"sheet_name"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// expand ${VAR} references before parsing
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

	if c.API.Enabled && c.API.Auth.Enabled && c.API.Auth.JWT.Secret == "" {
		return errors.New("api.auth.jwt.secret is required when auth is enabled")
	}
	for _, k := range c.API.Auth.APIKeys {
		if k.Key == "" {
			return fmt.Errorf("api key %q has an empty key", k.Name)
		}
	}

	if c.Booking.GranularityMinutes <= 0 {
		return fmt.Errorf("booking.granularity_minutes must be positive, got %d", c.Booking.GranularityMinutes)
	}
	if _, err := c.Booking.Location(); err != nil {
		return err
	}
	for name, value := range map[string]string{
		"booking.cancellation_window": c.Booking.CancellationWindow,
		"booking.rate_limit_window":   c.Booking.RateLimitWindow,
		"booking.cache_ttl":           c.Booking.CacheTTL,
		"booking.completion_interval": c.Booking.CompletionInterval,
		"api.auth.jwt.token_ttl":      c.API.Auth.JWT.TokenTTL,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "clinicbook"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	// auth enabled by default when API is enabled
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.API.Auth.JWT.Issuer == "" {
		c.API.Auth.JWT.Issuer = c.App.Name
	}
	if c.API.Auth.JWT.TokenTTL == "" {
		c.API.Auth.JWT.TokenTTL = "720h"
	}

	if c.Booking.GranularityMinutes == 0 {
		c.Booking.GranularityMinutes = scheduling.DefaultGranularityMinutes
	}
	if c.Booking.CancellationWindow == "" {
		c.Booking.CancellationWindow = scheduling.DefaultCancellationWindow.String()
	}
	if c.Booking.MaxBookingDays == 0 {
		c.Booking.MaxBookingDays = models.DefaultMaxBookingDays
	}
	if c.Booking.Timezone == "" {
		c.Booking.Timezone = "Local"
	}
	if c.Booking.RateLimitAttempts == 0 {
		c.Booking.RateLimitAttempts = models.BookingRateLimitAttempts
	}
	if c.Booking.RateLimitWindow == "" {
		c.Booking.RateLimitWindow = models.BookingRateLimitWindow.String()
	}
	if c.Booking.CacheTTL == "" {
		c.Booking.CacheTTL = models.DefaultSlotCacheTTL.String()
	}
	if c.Booking.CompletionInterval == "" {
		c.Booking.CompletionInterval = "15m"
	}

	if c.Google.SheetName == "" {
		c.Google.SheetName = "Appointments"
	}
}

// Location returns the clinic time zone.
func (b BookingConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return nil, fmt.Errorf("booking.timezone %q: %w", b.Timezone, err)
	}
	return loc, nil
}

// The duration accessors return zero for malformed values; Validate rejects those.

func (b BookingConfig) CancellationWindowDuration() time.Duration {
	return parseDuration(b.CancellationWindow)
}

func (b BookingConfig) RateLimitWindowDuration() time.Duration {
	return parseDuration(b.RateLimitWindow)
}

func (b BookingConfig) CacheTTLDuration() time.Duration {
	return parseDuration(b.CacheTTL)
}

func (b BookingConfig) CompletionIntervalDuration() time.Duration {
	return parseDuration(b.CompletionInterval)
}

func (j JWTConfig) TokenTTLDuration() time.Duration {
	return parseDuration(j.TokenTTL)
}

func parseDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

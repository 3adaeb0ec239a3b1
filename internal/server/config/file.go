package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/fitcoach/internal/flagx"
	"github.com/dmitrijs2005/fitcoach/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the configuration. It is an
// intermediate DTO: durations go through timex.Duration so files may use
// "15m" or integer nanoseconds, and the values are then copied into Config.
//
// The DTO is pre-filled from the current Config before decoding, so keys
// missing from the file keep their earlier value.
type FileConfig struct {
	HTTPAddr      string `json:"http_addr" yaml:"http_addr"`
	HealthAddr    string `json:"health_addr" yaml:"health_addr"`
	DatabaseDSN   string `json:"database_dsn" yaml:"database_dsn"`
	RunMigrations bool   `json:"run_migrations" yaml:"run_migrations"`
	LogLevel      string `json:"log_level" yaml:"log_level"`
	BcryptCost    int    `json:"bcrypt_cost" yaml:"bcrypt_cost"`

	JWT struct {
		SecretKey                   string         `json:"secret_key" yaml:"secret_key"`
		Issuer                      string         `json:"issuer" yaml:"issuer"`
		Audience                    string         `json:"audience" yaml:"audience"`
		AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration" yaml:"access_token_validity_duration"`
	} `json:"jwt" yaml:"jwt"`

	Cookie struct {
		Name     string `json:"name" yaml:"name"`
		Domain   string `json:"domain" yaml:"domain"`
		Path     string `json:"path" yaml:"path"`
		Secure   bool   `json:"secure" yaml:"secure"`
		SameSite string `json:"same_site" yaml:"same_site"`
	} `json:"cookie" yaml:"cookie"`

	APIKey struct {
		Enabled        bool     `json:"enabled" yaml:"enabled"`
		HeaderName     string   `json:"header_name" yaml:"header_name"`
		Key            string   `json:"key" yaml:"key"`
		BypassPrefixes []string `json:"bypass_prefixes" yaml:"bypass_prefixes"`
	} `json:"api_key" yaml:"api_key"`

	RateLimit struct {
		Backend                 string         `json:"backend" yaml:"backend"`
		RedisURL                string         `json:"redis_url" yaml:"redis_url"`
		Window                  timex.Duration `json:"window" yaml:"window"`
		RegisterPerWindow       int            `json:"register_per_window" yaml:"register_per_window"`
		LoginPerWindow          int            `json:"login_per_window" yaml:"login_per_window"`
		ForgotPasswordPerWindow int            `json:"forgot_password_per_window" yaml:"forgot_password_per_window"`
	} `json:"rate_limit" yaml:"rate_limit"`

	SMTP struct {
		Host     string `json:"host" yaml:"host"`
		Port     int    `json:"port" yaml:"port"`
		Username string `json:"username" yaml:"username"`
		Password string `json:"password" yaml:"password"`
		From     string `json:"from" yaml:"from"`
	} `json:"smtp" yaml:"smtp"`

	PasswordReset struct {
		URL string         `json:"url" yaml:"url"`
		TTL timex.Duration `json:"ttl" yaml:"ttl"`
	} `json:"password_reset" yaml:"password_reset"`

	Outbox struct {
		Workers   int `json:"workers" yaml:"workers"`
		QueueSize int `json:"queue_size" yaml:"queue_size"`
	} `json:"outbox" yaml:"outbox"`

	Maintenance struct {
		PurgeResetTokensSchedule string `json:"purge_reset_tokens_schedule" yaml:"purge_reset_tokens_schedule"`
		LimiterCleanupSchedule   string `json:"limiter_cleanup_schedule" yaml:"limiter_cleanup_schedule"`
	} `json:"maintenance" yaml:"maintenance"`
}

// parseFile loads the config file named by -c/-config, if any. Files ending
// in .yaml or .yml are decoded as YAML, everything else as JSON.
func parseFile(config *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return decodeFile(config, path, data)
}

func decodeFile(config *Config, path string, data []byte) error {
	fc := toFileConfig(config)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, fc); err != nil {
			return fmt.Errorf("parse yaml %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, fc); err != nil {
			return fmt.Errorf("parse json %s: %w", path, err)
		}
	}

	fc.applyTo(config)
	return nil
}

func toFileConfig(c *Config) *FileConfig {
	fc := &FileConfig{
		HTTPAddr:      c.HTTPAddr,
		HealthAddr:    c.HealthAddr,
		DatabaseDSN:   c.DatabaseDSN,
		RunMigrations: c.RunMigrations,
		LogLevel:      c.LogLevel,
		BcryptCost:    c.BcryptCost,
	}

	fc.JWT.SecretKey = c.JWT.SecretKey
	fc.JWT.Issuer = c.JWT.Issuer
	fc.JWT.Audience = c.JWT.Audience
	fc.JWT.AccessTokenValidityDuration = timex.Duration{Duration: c.JWT.AccessTokenValidityDuration}

	fc.Cookie.Name = c.Cookie.Name
	fc.Cookie.Domain = c.Cookie.Domain
	fc.Cookie.Path = c.Cookie.Path
	fc.Cookie.Secure = c.Cookie.Secure
	fc.Cookie.SameSite = c.Cookie.SameSite

	fc.APIKey.Enabled = c.APIKey.Enabled
	fc.APIKey.HeaderName = c.APIKey.HeaderName
	fc.APIKey.Key = c.APIKey.Key
	fc.APIKey.BypassPrefixes = append([]string(nil), c.APIKey.BypassPrefixes...)

	fc.RateLimit.Backend = c.RateLimit.Backend
	fc.RateLimit.RedisURL = c.RateLimit.RedisURL
	fc.RateLimit.Window = timex.Duration{Duration: c.RateLimit.Window}
	fc.RateLimit.RegisterPerWindow = c.RateLimit.RegisterPerWindow
	fc.RateLimit.LoginPerWindow = c.RateLimit.LoginPerWindow
	fc.RateLimit.ForgotPasswordPerWindow = c.RateLimit.ForgotPasswordPerWindow

	fc.SMTP.Host = c.SMTP.Host
	fc.SMTP.Port = c.SMTP.Port
	fc.SMTP.Username = c.SMTP.Username
	fc.SMTP.Password = c.SMTP.Password
	fc.SMTP.From = c.SMTP.From

	fc.PasswordReset.URL = c.PasswordReset.URL
	fc.PasswordReset.TTL = timex.Duration{Duration: c.PasswordReset.TTL}

	fc.Outbox.Workers = c.Outbox.Workers
	fc.Outbox.QueueSize = c.Outbox.QueueSize

	fc.Maintenance.PurgeResetTokensSchedule = c.Maintenance.PurgeResetTokensSchedule
	fc.Maintenance.LimiterCleanupSchedule = c.Maintenance.LimiterCleanupSchedule

	return fc
}

func (fc *FileConfig) applyTo(c *Config) {
	c.HTTPAddr = fc.HTTPAddr
	c.HealthAddr = fc.HealthAddr
	c.DatabaseDSN = fc.DatabaseDSN
	c.RunMigrations = fc.RunMigrations
	c.LogLevel = fc.LogLevel
	c.BcryptCost = fc.BcryptCost

	c.JWT = JWTConfig{
		SecretKey:                   fc.JWT.SecretKey,
		Issuer:                      fc.JWT.Issuer,
		Audience:                    fc.JWT.Audience,
		AccessTokenValidityDuration: fc.JWT.AccessTokenValidityDuration.Duration,
	}
	c.Cookie = CookieConfig{
		Name:     fc.Cookie.Name,
		Domain:   fc.Cookie.Domain,
		Path:     fc.Cookie.Path,
		Secure:   fc.Cookie.Secure,
		SameSite: fc.Cookie.SameSite,
	}
	c.APIKey = APIKeyConfig{
		Enabled:        fc.APIKey.Enabled,
		HeaderName:     fc.APIKey.HeaderName,
		Key:            fc.APIKey.Key,
		BypassPrefixes: fc.APIKey.BypassPrefixes,
	}
	c.RateLimit = RateLimitConfig{
		Backend:                 fc.RateLimit.Backend,
		RedisURL:                fc.RateLimit.RedisURL,
		Window:                  fc.RateLimit.Window.Duration,
		RegisterPerWindow:       fc.RateLimit.RegisterPerWindow,
		LoginPerWindow:          fc.RateLimit.LoginPerWindow,
		ForgotPasswordPerWindow: fc.RateLimit.ForgotPasswordPerWindow,
	}
	c.SMTP = SMTPConfig{
		Host:     fc.SMTP.Host,
		Port:     fc.SMTP.Port,
		Username: fc.SMTP.Username,
		Password: fc.SMTP.Password,
		From:     fc.SMTP.From,
	}
	c.PasswordReset = PasswordResetConfig{
		URL: fc.PasswordReset.URL,
		TTL: fc.PasswordReset.TTL.Duration,
	}
	c.Outbox = OutboxConfig{
		Workers:   fc.Outbox.Workers,
		QueueSize: fc.Outbox.QueueSize,
	}
	c.Maintenance = MaintenanceConfig{
		PurgeResetTokensSchedule: fc.Maintenance.PurgeResetTokensSchedule,
		LimiterCleanupSchedule:   fc.Maintenance.LimiterCleanupSchedule,
	}
}

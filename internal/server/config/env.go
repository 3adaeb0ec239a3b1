package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment variable the server reads.
const EnvPrefix = "FITCOACH_"

type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (r *envReader) get(name string) (string, bool) {
	v, ok := r.lookup(EnvPrefix + name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (r *envReader) str(name string, dst *string) {
	if v, ok := r.get(name); ok {
		*dst = v
	}
}

func (r *envReader) integer(name string, dst *int) {
	v, ok := r.get(name)
	if !ok || r.err != nil {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.err = fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		return
	}
	*dst = n
}

func (r *envReader) boolean(name string, dst *bool) {
	v, ok := r.get(name)
	if !ok || r.err != nil {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.err = fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		return
	}
	*dst = b
}

func (r *envReader) duration(name string, dst *time.Duration) {
	v, ok := r.get(name)
	if !ok || r.err != nil {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.err = fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		return
	}
	*dst = d
}

func (r *envReader) list(name string, dst *[]string) {
	v, ok := r.get(name)
	if !ok {
		return
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

// parseEnv overrides config values from FITCOACH_* variables. Empty
// variables are treated as unset.
func parseEnv(config *Config, lookup func(string) (string, bool)) error {
	r := &envReader{lookup: lookup}

	r.str("HTTP_ADDR", &config.HTTPAddr)
	r.str("HEALTH_ADDR", &config.HealthAddr)
	r.str("DATABASE_DSN", &config.DatabaseDSN)
	r.boolean("RUN_MIGRATIONS", &config.RunMigrations)
	r.str("LOG_LEVEL", &config.LogLevel)
	r.integer("BCRYPT_COST", &config.BcryptCost)

	r.str("JWT_SECRET", &config.JWT.SecretKey)
	r.str("JWT_ISSUER", &config.JWT.Issuer)
	r.str("JWT_AUDIENCE", &config.JWT.Audience)
	r.duration("ACCESS_TOKEN_TTL", &config.JWT.AccessTokenValidityDuration)

	r.str("COOKIE_NAME", &config.Cookie.Name)
	r.str("COOKIE_DOMAIN", &config.Cookie.Domain)
	r.str("COOKIE_PATH", &config.Cookie.Path)
	r.boolean("COOKIE_SECURE", &config.Cookie.Secure)
	r.str("COOKIE_SAMESITE", &config.Cookie.SameSite)

	r.boolean("API_KEY_ENABLED", &config.APIKey.Enabled)
	r.str("API_KEY_HEADER", &config.APIKey.HeaderName)
	r.str("API_KEY", &config.APIKey.Key)
	r.list("API_KEY_BYPASS", &config.APIKey.BypassPrefixes)

	r.str("RATE_LIMIT_BACKEND", &config.RateLimit.Backend)
	r.str("REDIS_URL", &config.RateLimit.RedisURL)
	r.duration("RATE_LIMIT_WINDOW", &config.RateLimit.Window)
	r.integer("RATE_LIMIT_REGISTER", &config.RateLimit.RegisterPerWindow)
	r.integer("RATE_LIMIT_LOGIN", &config.RateLimit.LoginPerWindow)
	r.integer("RATE_LIMIT_FORGOT_PASSWORD", &config.RateLimit.ForgotPasswordPerWindow)

	r.str("SMTP_HOST", &config.SMTP.Host)
	r.integer("SMTP_PORT", &config.SMTP.Port)
	r.str("SMTP_USERNAME", &config.SMTP.Username)
	r.str("SMTP_PASSWORD", &config.SMTP.Password)
	r.str("SMTP_FROM", &config.SMTP.From)

	r.str("RESET_URL", &config.PasswordReset.URL)
	r.duration("RESET_TTL", &config.PasswordReset.TTL)

	r.integer("OUTBOX_WORKERS", &config.Outbox.Workers)
	r.integer("OUTBOX_QUEUE_SIZE", &config.Outbox.QueueSize)

	return r.err
}

package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/fitcoach/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g. ":8080")
//	-m string   health and metrics bind address (e.g. ":9090")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-k string   API key; setting it enables the gate
//	-r string   Redis URL; setting it selects the redis rate limit backend
//	-l string   log level
//	-migrate    run database migrations at startup
//
// Minute, key and Redis flags only apply when given explicitly.
// Only the flags listed here are kept from args (see flagx.FilterArgsWithBool),
// so -c/-config and unknown flags never reach this FlagSet.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgsWithBool(args,
		[]string{"-a", "-m", "-d", "-s", "-t", "-k", "-r", "-l"},
		[]string{"-migrate", "--migrate"})

	fs := flag.NewFlagSet("fitcoach", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.HealthAddr, "m", config.HealthAddr, "address and port for health and metrics")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.JWT.SecretKey, "s", config.JWT.SecretKey, "JWT secret key")
	accessTokenValidity := fs.Int("t", int(config.JWT.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	apiKey := fs.String("k", config.APIKey.Key, "API key")
	redisURL := fs.String("r", config.RateLimit.RedisURL, "Redis URL for rate limiting")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.BoolVar(&config.RunMigrations, "migrate", config.RunMigrations, "run database migrations")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.JWT.AccessTokenValidityDuration = time.Duration(*accessTokenValidity) * time.Minute
		case "k":
			config.APIKey.Key = *apiKey
			config.APIKey.Enabled = true
		case "r":
			config.RateLimit.RedisURL = *redisURL
			config.RateLimit.Backend = "redis"
		}
	})
	return nil
}

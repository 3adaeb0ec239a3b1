// Package server wires the API process together: database, repositories,
// services, rate limiters, the email outbox, housekeeping jobs and the two
// HTTP listeners (API and health/metrics). It also owns graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/fitcoach/internal/buildinfo"
	"github.com/dmitrijs2005/fitcoach/internal/logging"
	"github.com/dmitrijs2005/fitcoach/internal/server/auth"
	"github.com/dmitrijs2005/fitcoach/internal/server/config"
	"github.com/dmitrijs2005/fitcoach/internal/server/email"
	"github.com/dmitrijs2005/fitcoach/internal/server/maintenance"
	"github.com/dmitrijs2005/fitcoach/internal/server/middleware"
	"github.com/dmitrijs2005/fitcoach/internal/server/observability"
	"github.com/dmitrijs2005/fitcoach/internal/server/ratelimit"
	"github.com/dmitrijs2005/fitcoach/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/fitcoach/internal/server/rest"
	"github.com/dmitrijs2005/fitcoach/internal/server/services"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	dbConnectTimeout   = 10 * time.Second
	redisKeyPrefix     = "fitcoach:ratelimit"
	confirmEmailPolicy = "confirm_email"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	redis   *redis.Client
	metrics *observability.Metrics

	api       *rest.Server
	health    *rest.Server
	outbox    *email.Outbox
	scheduler *maintenance.Scheduler
}

// NewApp builds every component from c. It fails fast on anything that
// would leave the process running in a degraded security posture.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	issuer, err := auth.NewIssuer([]byte(c.JWT.SecretKey), c.JWT.Issuer, c.JWT.Audience, c.JWT.AccessTokenValidityDuration)
	if err != nil {
		return nil, fmt.Errorf("token issuer init error: %w", err)
	}

	sameSite, err := config.ParseSameSite(c.Cookie.SameSite)
	if err != nil {
		return nil, err
	}
	cookies := auth.CookieSettings{
		Name:     c.Cookie.Name,
		Domain:   c.Cookie.Domain,
		Path:     c.Cookie.Path,
		Secure:   c.Cookie.Secure,
		SameSite: sameSite,
	}

	db, err := repomanager.OpenDB(ctx, c.DatabaseDSN, dbConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app := &App{config: c, logger: logger, db: db, metrics: metrics}

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("repository manager init error: %w", err)
	}

	if c.RunMigrations {
		if err := rm.RunMigrations(ctx, db); err != nil {
			app.Close()
			return nil, fmt.Errorf("migrations error: %w", err)
		}
		logger.Info(ctx, "Migrations applied")
	}

	if c.RateLimit.Backend == "redis" {
		app.redis, err = ratelimit.NewRedisClient(ctx, c.RateLimit.RedisURL)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("redis init error: %w", err)
		}
	}

	var sender email.Sender
	if c.SMTP.Host != "" {
		sender = email.NewSMTPSender(c.SMTP.Host, c.SMTP.Port, c.SMTP.Username, c.SMTP.Password, c.SMTP.From)
	} else {
		logger.Warn(ctx, "SMTP host not configured, emails will only be logged")
		sender = email.NewLogSender(logger)
	}
	app.outbox = email.NewOutbox(sender, c.Outbox.Workers, c.Outbox.QueueSize, logger, metrics)

	authService := services.NewAuthService(db, rm, issuer, app.outbox, services.AuthOptions{
		BcryptCost:    c.BcryptCost,
		ResetTokenTTL: c.PasswordReset.TTL,
		ResetURL:      c.PasswordReset.URL,
	}, logger, metrics)
	adminService := services.NewAdminService(db, rm, sender, c.BcryptCost, logger, metrics)

	var memory []maintenance.Cleaner
	limiter := func(name string, limit int) ratelimit.Limiter {
		p := ratelimit.Policy{Name: name, Limit: limit, Window: c.RateLimit.Window}
		if app.redis != nil {
			return ratelimit.NewRedisLimiter(app.redis, p, redisKeyPrefix)
		}
		l := ratelimit.NewMemoryLimiter(p)
		memory = append(memory, l)
		return l
	}
	limiters := rest.Limiters{
		Register:       limiter("register", c.RateLimit.RegisterPerWindow),
		Login:          limiter("login", c.RateLimit.LoginPerWindow),
		ForgotPassword: limiter("forgot_password", c.RateLimit.ForgotPasswordPerWindow),
		ConfirmEmail:   limiter(confirmEmailPolicy, c.RateLimit.LoginPerWindow),
	}

	handler := rest.NewRouter(rest.NewHandler(authService, adminService, cookies, logger), rest.RouterOptions{
		APIKey: middleware.APIKeyOptions{
			Enabled:        c.APIKey.Enabled,
			HeaderName:     c.APIKey.HeaderName,
			Key:            c.APIKey.Key,
			BypassPrefixes: c.APIKey.BypassPrefixes,
		},
		Verifier: issuer,
		Limiters: limiters,
	}, logger, metrics)

	app.api = rest.NewServer("api_server", c.HTTPAddr, handler, logger)
	app.health = rest.NewServer("health_server", c.HealthAddr,
		observability.NewHealthMux(observability.NewHealthChecker(db, app.redis, buildinfo.Version), metrics), logger)

	app.scheduler = maintenance.NewScheduler(logger)
	if err := app.scheduler.Add("purge_reset_tokens", c.Maintenance.PurgeResetTokensSchedule,
		maintenance.PurgeResetTokens(adminService, logger)); err != nil {
		app.Close()
		return nil, err
	}
	if len(memory) > 0 {
		if err := app.scheduler.Add("limiter_cleanup", c.Maintenance.LimiterCleanupSchedule,
			maintenance.CleanupLimiters(memory...)); err != nil {
			app.Close()
			return nil, err
		}
	}

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startServer(ctx context.Context, cancelFunc context.CancelFunc, s *rest.Server) {
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until a signal arrives or a listener fails, then stops every
// component and releases the database and Redis connections.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "version", buildinfo.Version)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(4)
	go func() {
		defer wg.Done()
		app.startServer(ctx, cancelFunc, app.api)
	}()
	go func() {
		defer wg.Done()
		app.startServer(ctx, cancelFunc, app.health)
	}()
	go func() {
		defer wg.Done()
		app.outbox.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		app.scheduler.Run(ctx)
	}()

	wg.Wait()

	app.Close()
	app.logger.Info(context.Background(), "App stopped")
}

// Close releases external connections. It is safe to call more than once.
func (app *App) Close() {
	if app.redis != nil {
		_ = app.redis.Close()
		app.redis = nil
	}
	if app.db != nil {
		_ = app.db.Close()
		app.db = nil
	}
}

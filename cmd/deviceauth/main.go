package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	dbutils "github.com/tendant/db-utils/db"
	"github.com/tendant/simple-device-auth/pkg/account"
	"github.com/tendant/simple-device-auth/pkg/auth"
	authapi "github.com/tendant/simple-device-auth/pkg/auth/api"
	"github.com/tendant/simple-device-auth/pkg/config"
	"github.com/tendant/simple-device-auth/pkg/device"
	deviceapi "github.com/tendant/simple-device-auth/pkg/device/api"
	"github.com/tendant/simple-device-auth/pkg/metrics"
	"github.com/tendant/simple-device-auth/pkg/notification"
	"github.com/tendant/simple-device-auth/pkg/password"
	"github.com/tendant/simple-device-auth/pkg/ratelimit"
	"github.com/tendant/simple-device-auth/pkg/sessions"
	sessionsapi "github.com/tendant/simple-device-auth/pkg/sessions/api"
)

type Config struct {
	Persistence string `env:"PERSISTENCE" env-default:"postgres"`
	LogLevel    string `env:"LOG_LEVEL" env-default:"info"`

	AppConfig            app.AppConfig
	DatabaseConfig       config.DatabaseConfig
	TokenConfig          config.TokenConfig
	PasswordPolicyConfig config.PasswordPolicyConfig
	DeviceConfig         config.DeviceConfig
	RateLimitConfig      config.RateLimitConfig
	EmailConfig          config.EmailConfig
}

func (c *Config) validate() error {
	validators := []config.Validator{
		func() config.ValidationErrors { return c.TokenConfig.Validate(config.IsProduction()) },
		c.PasswordPolicyConfig.Validate,
		c.DeviceConfig.Validate,
	}
	if c.Persistence == "postgres" {
		validators = append(validators, c.DatabaseConfig.Validate)
	}
	if c.DeviceConfig.Notifier == "email" {
		validators = append(validators, c.EmailConfig.Validate)
	}
	return config.Validate(validators...)
}

// authEndpoints get the stricter per-IP brute force limit
var authEndpoints = []string{
	"POST /auth/register",
	"POST /auth/login",
	"POST /auth/device/confirm",
}

func main() {
	// Load .env file if it exists (before reading environment variables)
	loadEnvFile()

	cfg := Config{}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := cfg.validate(); err != nil {
		slog.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var pool *pgxpool.Pool
	if cfg.Persistence == "postgres" {
		dbConfig := cfg.DatabaseConfig.ToDbConfig()
		var err error
		pool, err = dbutils.NewDbPool(ctx, dbConfig)
		if err != nil {
			slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User)
			os.Exit(-1)
		}
		defer pool.Close()
	}

	accounts, devices, sessionRepo, err := newRepositories(cfg.Persistence, pool)
	if err != nil {
		slog.Error("Failed creating repositories", "persistence", cfg.Persistence, "err", err)
		os.Exit(1)
	}
	slog.Info("Repositories ready", "persistence", cfg.Persistence)

	m := metrics.New()

	deviceService := device.NewService(devices,
		device.WithTrustPolicy(device.NewTrustPolicy(cfg.DeviceConfig.TrustPolicy, cfg.DeviceConfig.LoginCountThreshold)),
		device.WithMaxFingerprintLength(cfg.DeviceConfig.MaxFingerprintLength),
		device.WithConfirmation(cfg.DeviceConfig.ConfirmationCodeTTL, cfg.DeviceConfig.ConfirmationAttempts),
	)

	sessionOpts := []sessions.Option{}
	if cfg.TokenConfig.HMACKey != "" {
		sessionOpts = append(sessionOpts, sessions.WithHMACKey([]byte(cfg.TokenConfig.HMACKey)))
	} else {
		slog.Warn("SESSION_TOKEN_HMAC_KEY not set, token digests are unkeyed")
	}
	sessionService := sessions.NewService(sessionRepo, sessionOpts...)

	hasher, err := password.NewHasher(cfg.PasswordPolicyConfig.Algorithm)
	if err != nil {
		slog.Error("Invalid password hash algorithm", "err", err)
		os.Exit(1)
	}

	notifier, err := newNotificationManager(cfg.DeviceConfig.Notifier, cfg.EmailConfig)
	if err != nil {
		slog.Error("Failed creating notifier", "notifier", cfg.DeviceConfig.Notifier, "err", err)
		os.Exit(1)
	}

	engine := auth.NewEngine(accounts, deviceService, sessionService,
		auth.WithHasher(hasher),
		auth.WithPolicyChecker(password.NewPolicyChecker(cfg.PasswordPolicyConfig.ToPasswordPolicy())),
		auth.WithNotifier(notifier),
		auth.WithUntrustedMode(auth.UntrustedMode(cfg.DeviceConfig.UntrustedMode)),
		auth.WithSessionTTL(cfg.TokenConfig.TTL, cfg.TokenConfig.RestrictedTTL),
		auth.WithMetrics(m),
	)

	limiter := ratelimit.NewMiddleware(
		cfg.RateLimitConfig.ToMiddlewareConfig(authEndpoints...),
		ratelimit.WithLimitedHook(m.ObserveRateLimited),
	)
	defer limiter.Close()
	slog.Info("Rate limiting configured", "enabled", cfg.RateLimitConfig.Enabled, "auth_endpoints", len(authEndpoints), "trust_proxy", cfg.RateLimitConfig.TrustProxy)

	// PeerAddr goes on the router before NewApp adds middleware.RealIP
	router := chi.NewRouter()
	router.Use(ratelimit.PeerAddr)
	server := app.NewApp(
		app.WithRouter(router),
		app.WithAppConfig(cfg.AppConfig),
		app.WithMetrics(true),
		app.WithCors(app.DefaultCorsOptions()),
		app.WithHttpin(true),
		app.WithReqLogger(app.DefaultHttpLogger()),
	)
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	server.R.Handle("/metrics", m.Handler())

	server.R.Group(func(r chi.Router) {
		r.Use(limiter.Handler)

		r.Mount("/auth", authapi.Handler(authapi.NewHandle(engine)))

		r.Group(func(r chi.Router) {
			r.Use(authapi.RequireSession(engine))
			r.Use(limiter.AccountHandler)
			r.Mount("/devices", deviceapi.Router(deviceapi.NewDeviceHandler(engine)))
			r.Route("/sessions", func(r chi.Router) {
				r.Use(authapi.RequireFullScope)
				r.Mount("/", sessionsapi.Router(sessionsapi.NewHandler(sessionService)))
			})
		})
	})

	go purgeLoop(ctx, cfg.TokenConfig.PurgeInterval, sessionService, deviceService)

	server.Run()

	cancel()
	// let in-flight LastSeenAt updates finish before the pool closes
	sessionService.Wait()
	slog.Info("Device auth service stopped")
}

// newRepositories builds the three stores. The pool is only handed to the
// factories when it is set, so an inmem deployment never sees a typed nil.
func newRepositories(persistence string, pool *pgxpool.Pool) (account.Repository, device.Repository, sessions.Repository, error) {
	var (
		accountDB account.DBTX
		deviceDB  device.DB
		sessionDB sessions.DBTX
	)
	if pool != nil {
		accountDB, deviceDB, sessionDB = pool, pool, pool
	}

	accounts, err := account.NewRepository(persistence, accountDB)
	if err != nil {
		return nil, nil, nil, err
	}
	devices, err := device.NewRepository(persistence, deviceDB)
	if err != nil {
		return nil, nil, nil, err
	}
	sessionRepo, err := sessions.NewRepository(persistence, sessionDB)
	if err != nil {
		return nil, nil, nil, err
	}
	return accounts, devices, sessionRepo, nil
}

func newNotificationManager(kind string, emailConfig config.EmailConfig) (*notification.NotificationManager, error) {
	manager := notification.NewNotificationManager()
	switch kind {
	case "email":
		emailNotifier, err := notification.NewEmailNotifier(emailConfig.ToSMTPConfig())
		if err != nil {
			return nil, err
		}
		manager.RegisterNotifier(notification.EmailSystem, emailNotifier)
	default:
		manager.RegisterNotifier(notification.LogSystem, notification.NewLogNotifier(slog.Default()))
	}
	return manager, nil
}

func purgeLoop(ctx context.Context, interval time.Duration, sessionService *sessions.Service, deviceService *device.Service) {
	if interval <= 0 {
		slog.Info("Background purge disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := sessionService.PurgeExpired(ctx); err != nil {
				slog.Error("Failed to purge expired sessions", "err", err)
			} else if n > 0 {
				slog.Info("Purged expired sessions", "count", n)
			}
			if n, err := deviceService.PurgeExpiredConfirmations(ctx); err != nil {
				slog.Error("Failed to purge expired confirmation codes", "err", err)
			} else if n > 0 {
				slog.Info("Purged expired confirmation codes", "count", n)
			}
		}
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadEnvFile loads .env from the executable's directory or the working directory
func loadEnvFile() {
	execPath, err := os.Executable()
	if err != nil {
		return
	}

	envFile := filepath.Join(filepath.Dir(execPath), ".env")
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		cwd, _ := os.Getwd()
		envFile = filepath.Join(cwd, ".env")
	}

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		slog.Debug("No .env file found (using environment variables or defaults)")
		return
	}

	slog.Info("Loading configuration from .env file", "path", envFile)
	if err := godotenv.Load(envFile); err != nil {
		slog.Warn("Failed to load .env file", "path", envFile, "err", err)
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/BTreeMap/ShopPipe/internal/api"
	"github.com/BTreeMap/ShopPipe/internal/cartrecovery"
	"github.com/BTreeMap/ShopPipe/internal/chat"
	"github.com/BTreeMap/ShopPipe/internal/genai"
	"github.com/BTreeMap/ShopPipe/internal/lock"
	"github.com/BTreeMap/ShopPipe/internal/messaging"
	"github.com/BTreeMap/ShopPipe/internal/metrics"
	"github.com/BTreeMap/ShopPipe/internal/scheduler"
	"github.com/BTreeMap/ShopPipe/internal/startup"
	"github.com/BTreeMap/ShopPipe/internal/store"
	"github.com/BTreeMap/ShopPipe/internal/storefront"
	"github.com/BTreeMap/ShopPipe/internal/twiliowhatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ShopPipe state data
	DefaultStateDir = "/var/lib/shoppipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "shoppipe.db"
	// AutomationOff disables the scheduled automation run.
	AutomationOff = "off"

	shutdownTimeout = 15 * time.Second
)

// Config holds environment configuration
type Config struct {
	StateDir           string        `envconfig:"SHOPPIPE_STATE_DIR" default:"/var/lib/shoppipe"`
	DBDSN              string        `envconfig:"SHOPPIPE_DB_DSN"`
	DatabaseURL        string        `envconfig:"DATABASE_URL"`
	APIAddr            string        `envconfig:"SHOPPIPE_API_ADDR" default:":8080"`
	LogLevel           string        `envconfig:"SHOPPIPE_LOG_LEVEL" default:"info"`
	OpenAIKey          string        `envconfig:"OPENAI_API_KEY"`
	OpenAIModel        string        `envconfig:"SHOPPIPE_OPENAI_MODEL"`
	GenAIDebug         bool          `envconfig:"SHOPPIPE_GENAI_DEBUG" default:"false"`
	AutomationCron     string        `envconfig:"SHOPPIPE_AUTOMATION_CRON" default:"*/15 * * * *"`
	RedisURL           string        `envconfig:"SHOPPIPE_REDIS_URL"`
	TwilioAccountSID   string        `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken    string        `envconfig:"TWILIO_AUTH_TOKEN"`
	TwilioFrom         string        `envconfig:"TWILIO_FROM_NUMBER"`
	OutboxPollInterval time.Duration `envconfig:"SHOPPIPE_OUTBOX_POLL_INTERVAL" default:"5s"`
	CatalogFile        string        `envconfig:"SHOPPIPE_CATALOG_FILE"`
}

func main() {
	config, err := loadEnvironmentConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}
	config, err = parseCommandLineFlags(config, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	initializeLogger(os.Stdout, config.LogLevel)

	if err := ensureDirectoriesExist(config); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping ShopPipe")
	slog.Debug("Final configuration", "state_dir", config.StateDir, "dsn_set", config.DBDSN != "", "api_addr", config.APIAddr,
		"automation_cron", config.AutomationCron, "redis_set", config.RedisURL != "", "openai_key_set", config.OpenAIKey != "")
	if err := run(ctx, config); err != nil {
		var lockErr *lock.LockError
		if errors.As(err, &lockErr) {
			slog.Error("ShopPipe is already running", "lock_path", lockErr.LockPath, "holder", lockErr.ExistingInfo)
		} else {
			slog.Error("ShopPipe failed to run", "error", err)
		}
		os.Exit(1)
	}
	slog.Info("ShopPipe exited successfully")
}

// initializeLogger installs a text handler at the given level. Unknown levels
// fall back to info.
func initializeLogger(w io.Writer, level string) {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

func parseLogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	// Fall back to DATABASE_URL, then to SQLite in the state directory
	if config.DBDSN == "" {
		config.DBDSN = config.DatabaseURL
	}
	if config.DBDSN == "" {
		config.DBDSN = filepath.Join(config.StateDir, DefaultDBFileName)
	}
	return config, nil
}

// parseCommandLineFlags applies command line overrides on top of config.
func parseCommandLineFlags(config Config, args []string) (Config, error) {
	defaultDSN := filepath.Join(config.StateDir, DefaultDBFileName)
	fs := flag.NewFlagSet("shoppipe", flag.ContinueOnError)
	stateDir := fs.String("state-dir", config.StateDir, "state directory for ShopPipe data (overrides $SHOPPIPE_STATE_DIR)")
	dbDSN := fs.String("db-dsn", config.DBDSN, "database DSN, SQLite path or Postgres URL (overrides $SHOPPIPE_DB_DSN or $DATABASE_URL)")
	apiAddr := fs.String("api-addr", config.APIAddr, "API server address (overrides $SHOPPIPE_API_ADDR)")
	logLevel := fs.String("log-level", config.LogLevel, "log level: debug, info, warn, error (overrides $SHOPPIPE_LOG_LEVEL)")
	openaiKey := fs.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	cronExpr := fs.String("automation-cron", config.AutomationCron, "cron schedule for cart recovery runs, or \"off\" (overrides $SHOPPIPE_AUTOMATION_CRON)")
	redisURL := fs.String("redis-url", config.RedisURL, "Redis URL for the shared automation lock (overrides $SHOPPIPE_REDIS_URL)")
	if err := fs.Parse(args); err != nil {
		return config, err
	}

	// Keep the default SQLite file inside an overridden state directory
	if *dbDSN == config.DBDSN && config.DBDSN == defaultDSN && *stateDir != config.StateDir {
		*dbDSN = filepath.Join(*stateDir, DefaultDBFileName)
	}

	config.StateDir = *stateDir
	config.DBDSN = *dbDSN
	config.APIAddr = *apiAddr
	config.LogLevel = *logLevel
	config.OpenAIKey = *openaiKey
	config.AutomationCron = strings.TrimSpace(*cronExpr)
	config.RedisURL = *redisURL
	return config, nil
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(config Config) error {
	if err := os.MkdirAll(config.StateDir, 0755); err != nil {
		return fmt.Errorf("create state dir %s: %w", config.StateDir, err)
	}
	if config.DBDSN != "" && store.DetectDSNType(config.DBDSN) == "sqlite" {
		dir := filepath.Dir(config.DBDSN)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create database dir %s: %w", dir, err)
		}
	}
	return nil
}

// run wires every component and serves until ctx is cancelled.
func run(ctx context.Context, config Config) error {
	instance, err := lock.AcquireInstanceLock(config.StateDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := instance.Release(); err != nil {
			slog.Warn("Failed to release instance lock", "error", err)
		}
	}()

	st, err := store.Open(buildStoreOptions(config)...)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	locker, closeLocker, err := buildAutomationLock(ctx, config)
	if err != nil {
		return err
	}
	defer closeLocker()

	pollInterval := config.OutboxPollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	sender := store.NewOutboxSender(st, messaging.NewDeliveryFunc(buildSMSSender(config)), pollInterval)

	runner := cartrecovery.NewRunner(st,
		cartrecovery.WithNotifier(messaging.NewOutboxNotifier(st)),
		cartrecovery.WithLocker(locker),
		cartrecovery.WithMetrics(metrics.NewAutomation(reg)),
	)
	storefrontSvc, err := buildStorefront(config)
	if err != nil {
		return err
	}
	chatSvc := chat.NewService(st,
		chat.WithLLM(buildGenAIClient(config)),
		chat.WithStorefront(storefrontSvc),
		chat.WithRecovery(runner.Builder(), runner.Ledger()),
	)

	recoveryMgr := startup.NewManager()
	recoveryMgr.Register("outbox", startup.OutboxRecovery(sender))
	if automationScheduled(config.AutomationCron) {
		recoveryMgr.Register("automation", startup.AutomationCatchUp(runner))
	}
	if err := recoveryMgr.RecoverAll(ctx); err != nil {
		// Not fatal: the next scheduled run retries.
		slog.Warn("Startup recovery incomplete", "error", err)
	}
	go sender.Run(ctx)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := scheduleAutomation(sched, runner, config.AutomationCron); err != nil {
		return err
	}

	srv := api.NewServer(st, runner, chatSvc, api.WithAddr(config.APIAddr), api.WithGatherer(reg))
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(config Config) []store.Option {
	switch {
	case config.DBDSN == "":
		return nil
	case store.DetectDSNType(config.DBDSN) == "postgres":
		return []store.Option{store.WithPostgresDSN(config.DBDSN)}
	default:
		return []store.Option{store.WithSQLiteDSN(config.DBDSN)}
	}
}

// buildAutomationLock picks the Redis lock when a URL is configured and the
// state directory file lock otherwise. The returned func closes any client.
func buildAutomationLock(ctx context.Context, config Config) (lock.Locker, func(), error) {
	if config.RedisURL == "" {
		slog.Debug("Using file automation lock", "state_dir", config.StateDir)
		return lock.NewFileLock(config.StateDir), func() {}, nil
	}
	rl, client, err := lock.NewRedisLockFromURL(ctx, config.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect automation lock: %w", err)
	}
	slog.Info("Using Redis automation lock")
	return rl, func() {
		if err := client.Close(); err != nil {
			slog.Warn("Failed to close Redis client", "error", err)
		}
	}, nil
}

// buildSMSSender returns the Twilio sender, or nil when Twilio is not configured.
func buildSMSSender(config Config) twiliowhatsapp.Sender {
	if config.TwilioAccountSID == "" || config.TwilioAuthToken == "" || config.TwilioFrom == "" {
		slog.Info("Twilio not configured, recovery messages will be logged only")
		return nil
	}
	client, err := twiliowhatsapp.NewClient(
		twiliowhatsapp.WithAccountSID(config.TwilioAccountSID),
		twiliowhatsapp.WithAuthToken(config.TwilioAuthToken),
		twiliowhatsapp.WithFrom(config.TwilioFrom),
	)
	if err != nil {
		slog.Warn("Twilio client unavailable, recovery messages will be logged only", "error", err)
		return nil
	}
	return client
}

// buildGenAIClient returns the OpenAI client, or nil when no key is set.
func buildGenAIClient(config Config) genai.ClientInterface {
	if config.OpenAIKey == "" {
		slog.Warn("OPENAI_API_KEY not set, chat replies will use fallbacks")
		return nil
	}
	opts := []genai.Option{genai.WithAPIKey(config.OpenAIKey)}
	if config.OpenAIModel != "" {
		opts = append(opts, genai.WithModel(config.OpenAIModel))
	}
	if config.GenAIDebug {
		opts = append(opts, genai.WithDebug(config.StateDir))
	}
	client, err := genai.NewClient(opts...)
	if err != nil {
		slog.Warn("GenAI client unavailable, chat replies will use fallbacks", "error", err)
		return nil
	}
	return client
}

// buildStorefront loads the static catalog file when one is configured.
func buildStorefront(config Config) (storefront.Service, error) {
	if config.CatalogFile == "" {
		return storefront.Unavailable{}, nil
	}
	catalog, err := storefront.LoadCatalog(config.CatalogFile)
	if err != nil {
		return nil, err
	}
	slog.Info("Loaded storefront catalog", "path", config.CatalogFile)
	return catalog, nil
}

func automationScheduled(expr string) bool {
	return expr != "" && !strings.EqualFold(expr, AutomationOff)
}

// scheduleAutomation registers the recovery run on expr unless it is empty or "off".
func scheduleAutomation(sched *scheduler.Scheduler, runner *cartrecovery.Runner, expr string) error {
	if !automationScheduled(expr) {
		slog.Info("Scheduled cart recovery disabled")
		return nil
	}
	err := sched.AddContextJob("cart-recovery", expr, func(ctx context.Context) error {
		result := runner.RunOnce(ctx)
		if !result.Success {
			return errors.New(result.Error)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalid automation cron %q: %w", expr, err)
	}
	slog.Info("Scheduled cart recovery", "cron", expr)
	return nil
}

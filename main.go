package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"admindash/internal/api"
	"admindash/internal/bridge"
	"admindash/internal/config"
	"admindash/internal/logging"
	"admindash/internal/ratelimit"
	"admindash/internal/redis"
	"admindash/internal/service/ai"
	"admindash/internal/service/notify"
	"admindash/internal/service/users"
	"admindash/internal/storage"
)

var (
	// Global flags
	cfgPath string
	dbType  string
	verbose bool
	// Seed flags
	seedFile string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "admindash",
	Short: "Admin dashboard backend: users, analytics, assistant and email",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger, err = logging.New(cfg.BasicConfig.LogLevel, verbose)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the users table",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer storage.Close(db)
		logger.Info("database migrated", zap.String("db", dbType))
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Import users from a JSON seed file",
	Long: `Reads {"users": [{"name", "email", "phone", "createdAt"?, "updatedAt"?, "deletedAt"?}]}
and inserts every entry whose email is not already present.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if seedFile == "" {
			return errors.New("--file is required")
		}
		f, err := os.Open(seedFile)
		if err != nil {
			return fmt.Errorf("open seed file: %w", err)
		}
		defer f.Close()
		seeds, err := users.DecodeSeed(f)
		if err != nil {
			return err
		}

		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer storage.Close(db)
		n, err := users.NewService(db).Import(cmd.Context(), seeds)
		if err != nil {
			return err
		}
		logger.Info("seed imported", zap.Int64("inserted", n), zap.Int("entries", len(seeds)))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", os.Getenv("ADMINDASH_CONFIG"), "path to config.json or config.yaml")
	rootCmd.PersistentFlags().StringVar(&dbType, "db", envOr("ADMINDASH_DB", "sqlite3"), "database driver: sqlite3, mysql or postgres")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "seed file to import")

	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func openDatabase() (*gorm.DB, error) {
	logger.Info("opening database", zap.String("db", dbType))
	db, err := storage.Open(dbType, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := storage.Migrate(db); err != nil {
		storage.Close(db)
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer storage.Close(db)

	// redis is optional; without it rate limits are kept per process
	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		rdb, err = redis.NewRedisClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("create redis client: %w", err)
		}
		defer rdb.Close()
	}
	aiLimiter, err := ratelimit.New(rdb, "admindash:ratelimit:ai", cfg.RateLimit.AIPerMinute)
	if err != nil {
		return fmt.Errorf("ai rate limiter: %w", err)
	}
	emailLimiter, err := ratelimit.New(rdb, "admindash:ratelimit:email", cfg.RateLimit.EmailPerMinute)
	if err != nil {
		return fmt.Errorf("email rate limiter: %w", err)
	}

	userService := users.NewService(db)

	var (
		mailer   bridge.Mailer
		notifier bridge.ChangeNotifier
	)
	sesMailer, err := notify.NewSESMailer(ctx, cfg.Email, logger.Named("email"))
	if err != nil {
		logger.Warn("email disabled", zap.Error(err))
	} else {
		mailer = sesMailer
		if cfg.Email.NotifyOnChange {
			notifier = sesMailer
		}
	}

	var assistant api.Completer
	provider := cfg.Assistant.Provider
	chatModel, err := ai.NewChatModel(ctx, provider, cfg.Providers[provider], cfg.Assistant.Model)
	if err != nil {
		logger.Warn("assistant disabled", zap.String("provider", provider), zap.Error(err))
	} else {
		assistant = ai.NewAssistant(chatModel, cfg.Assistant, cfg.AssistantTimeout(), logger.Named("assistant"))
	}

	// sendEmail actions still get a clean failure when SES is unavailable
	var dispatchMailer bridge.Mailer = noMailer{}
	if mailer != nil {
		dispatchMailer = mailer
	}
	dispatcher := bridge.NewDispatcher(userService, dispatchMailer,
		bridge.WithNotifier(notifier),
		bridge.WithLogger(logger.Named("bridge")))

	handlers := api.NewHandler(api.Deps{
		Users:        userService,
		Assistant:    assistant,
		Bridge:       bridge.New(dispatcher),
		Mailer:       mailer,
		Notifier:     notifier,
		Location:     cfg.Location(),
		AILimiter:    aiLimiter,
		EmailLimiter: emailLimiter,
		Logger:       logger.Named("api"),
	})

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestID(), api.RequestLogger(logger.Named("http")))
	handlers.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// noMailer answers sendEmail actions when SES could not be configured.
type noMailer struct{}

func (noMailer) Send(context.Context, string, string, string) (*notify.SendResult, error) {
	return nil, errors.New("email is not configured")
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bcnelson/agent-access-manager/internal/api"
	"github.com/bcnelson/agent-access-manager/internal/auth"
	"github.com/bcnelson/agent-access-manager/internal/config"
	"github.com/bcnelson/agent-access-manager/internal/service"
	"github.com/bcnelson/agent-access-manager/internal/storage/sql"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	envFile := pflag.String("env-file", "", "load environment variables from this dotenv file first")
	migrateOnly := pflag.Bool("migrate-only", false, "apply database migrations and exit")
	pflag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		logrus.Fatalf("Failed to load env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	logger := cfg.Log.NewLogger()

	// Create the data directory for file-backed SQLite databases.
	if cfg.Database.Driver == "sqlite3" {
		if dir := sqliteDir(cfg.Database.DSN); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				logger.Fatalf("Failed to create data directory: %v", err)
			}
		}
	}

	store, err := sql.New(cfg.Database.Driver, cfg.Database.DSN, logger.WithField("component", "migrations"))
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	if *migrateOnly {
		logger.Info("Migrations applied")
		return
	}

	services := service.New(store, logger, service.Options{
		Clock:         service.SystemClock,
		MaxExtendDays: cfg.Policy.MaxExtendDays,
	})

	opts := api.Options{
		Store:        store,
		Services:     services,
		Logger:       logger,
		BootstrapKey: cfg.Auth.BootstrapAPIKey,
	}
	if cfg.OIDC.Enabled {
		if err := setupOIDC(&opts, &cfg.OIDC); err != nil {
			logger.Fatalf("Failed to initialize OIDC: %v", err)
		}
		logger.WithField("issuer", cfg.OIDC.IssuerURL).Info("OIDC login enabled")
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	logger.Infof("Starting Agent Access Manager on http://%s", cfg.Server.Addr())

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server stopped")
}

func setupOIDC(opts *api.Options, cfg *config.OIDCConfig) error {
	key, err := cfg.GetSessionSecretBytes()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	provider, err := auth.NewOIDCProvider(ctx, auth.ProviderConfig{
		IssuerURL:      cfg.IssuerURL,
		ClientID:       cfg.ClientID,
		ClientSecret:   cfg.ClientSecret,
		RedirectURL:    cfg.RedirectURL,
		Scopes:         cfg.Scopes,
		AllowedDomains: cfg.GetAllowedDomains(),
	})
	if err != nil {
		return err
	}

	sessions, err := auth.NewSessionManager(key, cfg.SessionDuration, cfg.SecureCookies)
	if err != nil {
		return err
	}
	states, err := auth.NewStateStore(key, cfg.SecureCookies)
	if err != nil {
		return err
	}

	opts.Authenticator = provider
	opts.Sessions = sessions
	opts.States = states
	opts.LogoutURL = cfg.LogoutURL
	return nil
}

// sqliteDir returns the directory of a file DSN, or "" for in-memory databases.
func sqliteDir(dsn string) string {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == "" || path == ":memory:" {
		return ""
	}
	return filepath.Dir(path)
}

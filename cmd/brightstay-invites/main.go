// Package main is the entrypoint for the brightstay-invites server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brightstay/brightstay-invites/internal/cache"
	"github.com/brightstay/brightstay-invites/internal/config"
	"github.com/brightstay/brightstay-invites/internal/directory"
	"github.com/brightstay/brightstay-invites/internal/identity"
	"github.com/brightstay/brightstay-invites/internal/invites"
	"github.com/brightstay/brightstay-invites/internal/server"
	"github.com/brightstay/brightstay-invites/internal/store"

	// Register cache and store drivers
	_ "github.com/brightstay/brightstay-invites/internal/cache/loader"
	_ "github.com/brightstay/brightstay-invites/internal/store/json"
	_ "github.com/brightstay/brightstay-invites/internal/store/sqlite"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	modeFlag := flag.String("mode", "", "Operating mode: prod or dev (overrides config)")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	externalBasePath := flag.String("external-base-path", "", "External base path (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	tlsMode := flag.String("tls-mode", "", "TLS mode: off or static (overrides config)")
	storeDriver := flag.String("store-driver", "", "Store driver: json or sqlite (overrides config)")
	dataDir := flag.String("data-dir", "", "Data directory (overrides config)")
	cacheDriver := flag.String("cache-driver", "", "Cache driver: memory or valkey (overrides config)")
	adminUsername := flag.String("admin-username", "", "Bootstrap admin username (overrides config)")
	adminPassword := flag.String("admin-password", "", "Bootstrap admin password (overrides config)")
	flag.Parse()

	// Bootstrap logger for config loading errors (uses default level)
	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		ModeFlag:   *modeFlag,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:       listenAddr,
			ExternalBasePath: externalBasePath,
			LogLevel:         logLevel,
			TLSMode:          tlsMode,
			StoreDriver:      storeDriver,
			DataDir:          dataDir,
			CacheDriver:      cacheDriver,
			AdminUsername:    adminUsername,
			AdminPassword:    adminPassword,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("effective configuration", "config", cfg.Redacted())

	// Persistence driver
	driver, err := store.New(&store.DriverConfig{
		Driver:  cfg.Store.Driver,
		DataDir: cfg.Store.DataDir,
	})
	if err != nil {
		logger.Error("failed to create store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	if err := driver.Init(context.Background()); err != nil {
		logger.Error("failed to init store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer driver.Close()

	engineStore, ok := driver.(invites.Store)
	if !ok {
		logger.Error("store driver does not support invitations", "driver", cfg.Store.Driver)
		os.Exit(1)
	}

	// Cache for rate limiting (defaults to in-memory if not configured)
	cacheInstance, err := cache.NewFromConfig(&cache.Config{
		Driver:  cfg.Cache.Driver,
		Drivers: cfg.Cache.Drivers,
	})
	if err != nil {
		logger.Error("failed to create cache", "error", err)
		os.Exit(1)
	}
	defer cacheInstance.Close()

	// Identity components
	partyRepo := identity.NewMemoryPartyRepo()
	sessionRepo := identity.NewMemorySessionRepo()
	userAuth := identity.NewUserAuth(0) // default bcrypt cost

	admin := identity.SeededUser{
		Username: cfg.Server.BootstrapAdmin.Username,
		Password: cfg.Server.BootstrapAdmin.Password,
	}
	var seeded []identity.SeededUser
	if cfg.Mode == string(config.ModeDev) {
		seeded = devUsers()
	}

	bootstrap := identity.NewBootstrap(partyRepo, userAuth, logger)
	created, err := bootstrap.Run(context.Background(), admin, seeded)
	if err != nil {
		logger.Error("failed to bootstrap users", "error", err)
		os.Exit(1)
	}
	if created > 0 {
		logger.Info("bootstrapped users", "created", created)
	}

	// Tenant and resource directory. Dev mode gets seeded fixtures so the
	// API is usable out of the box.
	registry := directory.NewMemoryRegistry()
	if cfg.Mode == string(config.ModeDev) {
		directory.SeedDev(registry)
	}

	inviteSvc := invites.NewService(engineStore, registry, logger)

	srv, err := server.New(cfg, logger, &server.Deps{
		Invites:     inviteSvc,
		PartyRepo:   partyRepo,
		SessionRepo: sessionRepo,
		UserAuth:    userAuth,
		Cache:       cacheInstance,
		Version:     version,
	})
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("server started, press Ctrl+C to stop")

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// devUsers returns accounts matching the dev directory fixtures.
func devUsers() []identity.SeededUser {
	return []identity.SeededUser{
		{Username: "host", Password: "host", DisplayName: "Dev Host", Role: identity.RoleHost, TenantID: "tenant-dev"},
		{Username: "manager", Password: "manager", DisplayName: "Dev Manager", Role: identity.RoleManager, TenantID: "tenant-dev"},
		{Username: "cleaner", Password: "cleaner", DisplayName: "Dev Cleaner", Role: identity.RoleCleaner, TenantID: "tenant-dev"},
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wms-admin/gateway/internal/api"
	"github.com/wms-admin/gateway/internal/client"
	"github.com/wms-admin/gateway/internal/config"
	"github.com/wms-admin/gateway/internal/health"
	"github.com/wms-admin/gateway/internal/history"
	"github.com/wms-admin/gateway/internal/importcfg"
	"github.com/wms-admin/gateway/internal/importer"
	"github.com/wms-admin/gateway/internal/storage"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	// Load XML configuration
	configPath := filepath.Join(exeDir, "ImportGateway.config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg.Advanced.LogLevel)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Upstream API client: persisted token, per-request base URL
	tokens, err := client.NewFileTokenStore(cfg.Storage.TokenFile)
	if err != nil {
		log.Fatal("failed to initialize token store", zap.Error(err))
	}
	resolver := &client.Resolver{
		Deployed: cfg.Upstream.Deployed,
		Prefix:   cfg.Upstream.Prefix,
		Settings: client.NewSettingsStore(cfg.Upstream.SettingsFile),
	}
	apiClient := client.New(resolver, tokens, &client.LogNotifier{Log: log.Named("notify")}, log.Named("client"))

	// Entity import configs, with optional rule overrides
	registry := importcfg.NewRegistry(apiClient)
	if cfg.Import.RuleOverridesFile != "" {
		overrides, err := importcfg.LoadRuleOverrides(cfg.Import.RuleOverridesFile)
		if err != nil {
			log.Fatal("failed to load rule overrides", zap.Error(err))
		}
		if err := registry.Apply(overrides); err != nil {
			log.Fatal("failed to apply rule overrides", zap.Error(err))
		}
		log.Info("rule overrides applied", zap.String("file", cfg.Import.RuleOverridesFile))
	}

	// Staging storage for uploaded spreadsheets
	fileStore, err := storage.NewLocalStore(cfg.Storage.UploadsDirectory)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}

	// Draft persistence
	drafts, err := importer.NewDraftStore(cfg.Storage.DraftsDirectory)
	if err != nil {
		log.Fatal("failed to initialize draft store", zap.Error(err))
	}

	// Import history is best-effort: a failure here degrades to no
	// history, never to a dead gateway.
	var historyStore *history.Store
	if cfg.Import.EnableHistory {
		historyStore, err = history.Open(cfg.Storage.HistoryDatabase)
		if err != nil {
			log.Warn("import history disabled", zap.Error(err))
			historyStore = nil
		} else {
			defer historyStore.Close()
		}
	}

	var recorder importer.Recorder
	if historyStore != nil {
		recorder = historyStore
	}
	sessionMgr := importer.NewManager(registry, fileStore, drafts, recorder, log.Named("importer"))

	// Start background session cleanup
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Import.CleanupIntervalMinutes) * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			sessionMgr.CleanupOldSessions(time.Duration(cfg.Import.SessionTimeoutMinutes) * time.Minute)
		}
	}()

	// Peripheral session-store probe
	monitor := health.NewMonitor(apiClient, cfg.Advanced.SessionStoreStatusFile, log.Named("health"))
	go monitor.Run(context.Background(), time.Duration(cfg.Advanced.SessionStoreCheckMinutes)*time.Minute)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/progress") ||
				path == "/api/health"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.Contains(path, "/progress") ||
				strings.Contains(path, "/upload")
		},
		ErrorMessage: "Request timeout",
	}))

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}

	handlers := api.NewHandlers(&api.Dependencies{
		Registry:     registry,
		Manager:      sessionMgr,
		Store:        fileStore,
		Client:       apiClient,
		History:      historyStore,
		Health:       monitor,
		Version:      Version,
		PollInterval: time.Duration(cfg.Advanced.WebSocketPollMilliseconds) * time.Millisecond,
	})
	api.RegisterRoutes(e, handlers)

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	log.Info("import gateway starting",
		zap.String("version", Version),
		zap.String("buildTime", BuildTime),
		zap.String("listen", cfg.GetServerAddr()),
		zap.String("config", configPath),
		zap.Bool("deployed", cfg.Upstream.Deployed),
		zap.String("upstream", apiClient.BaseURL()))

	e.Logger.Fatal(e.StartServer(s))
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"streamfinder/api"
	"streamfinder/config"
	"streamfinder/handlers"
	"streamfinder/services/contentapi"
	"streamfinder/services/querycache"
	"streamfinder/services/sessions"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	configFlag := flag.String("config", "", "path to settings.json (default $STREAMFINDER_CONFIG or cache/settings.json)")
	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: could not load .env: %v", err)
	}

	fmt.Println("🚀 StreamFinder starting...")

	// Determine config path (flag, env or default)
	configPath := *configFlag
	if configPath == "" {
		configPath = os.Getenv("STREAMFINDER_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	// Init config manager and load settings (creates defaults if missing)
	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	setupLogging(settings.Log)

	// Apply port override if specified
	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	rootCtx, stopRoot := context.WithCancel(context.Background())
	defer stopRoot()

	store, err := newCacheStore(rootCtx, settings)
	if err != nil {
		log.Fatalf("failed to init request cache: %v", err)
	}
	cache := querycache.New(store)

	client, err := contentapi.New(settings.Upstream, &http.Client{
		Timeout: time.Duration(settings.Upstream.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		log.Fatalf("failed to init content client: %v", err)
	}
	content := contentapi.NewCachedClient(client, cache, contentapi.PoliciesFromSettings(settings.Cache))
	slog.Info("content backend configured",
		"base_url", settings.Upstream.BaseURL,
		"cache_backend", settings.Cache.Backend,
		"retry_attempts", settings.Upstream.RetryAttempts)

	sessionStore := sessions.NewService(rootCtx, content, settings.Sessions)

	waitTimeout := time.Duration(settings.Upstream.TimeoutSeconds*settings.Upstream.RetryAttempts)*time.Second + time.Second
	pagesHandler, err := handlers.NewPagesHandler(content, settings.UI, waitTimeout)
	if err != nil {
		log.Fatalf("failed to load page templates: %v", err)
	}
	searchHandler := handlers.NewSearchAPIHandler(content, sessionStore, waitTimeout)
	healthHandler := handlers.NewHealthHandler(content, sessionStore.Len)

	r := api.NewRouter()
	api.Register(r, settings.Server.FrontendOrigin, pagesHandler, searchHandler, healthHandler)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("Server starting on %s\n", addr)

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(settings.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(settings.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Setup graceful shutdown
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("🛑 Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	stopRoot()
	sessionStore.Close()
	if err := cache.Close(); err != nil {
		log.Printf("Cache close error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}

// setupLogging tees the standard logger into a rotating file and sets the
// slog level.
func setupLogging(cfg config.LogConfig) {
	slog.SetLogLoggerLevel(parseLevel(cfg.Level))
	if cfg.File == "" {
		return
	}

	logDir := filepath.Dir(cfg.File)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		return
	}
	fileWriter := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("Logging to file: %s", cfg.File)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newCacheStore(ctx context.Context, settings config.Settings) (querycache.Store, error) {
	retention := time.Duration(settings.Cache.RetentionMinutes) * time.Minute
	if settings.Cache.Backend == config.CacheBackendRedis {
		store, err := querycache.NewRedisStore(ctx, settings.Redis)
		if err != nil {
			return nil, err
		}
		log.Printf("[cache] using redis at %s", settings.Redis.Address)
		return store, nil
	}
	log.Printf("[cache] using in-memory store (%d entries)", settings.Cache.MaxEntries)
	return querycache.NewMemoryStore(settings.Cache.MaxEntries, retention), nil
}

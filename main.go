package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/raine/listing-studio/internal/clipboard"
	"github.com/raine/listing-studio/internal/config"
	"github.com/raine/listing-studio/internal/janitor"
	"github.com/raine/listing-studio/internal/llm"
	"github.com/raine/listing-studio/internal/media"
	"github.com/raine/listing-studio/internal/session"
	"github.com/raine/listing-studio/internal/storage"
	"github.com/raine/listing-studio/internal/web"
)

const (
	logFileName     = "listing-studio.log"
	shutdownTimeout = 10 * time.Second
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// Try to load existing .env file
	config.LoadEnvFile()

	if missing := config.MissingRequired(); len(missing) > 0 {
		if config.IsInteractiveTerminal() {
			if !config.RunSetupWizard() {
				config.WaitOnWindows()
				os.Exit(1)
			}
		} else {
			config.FatalWithWait("missing required config: %s", strings.Join(missing, ", "))
		}
	}

	// JOURNAL_STREAM is set by systemd when running as a service.
	// Skip file logging under systemd (journald handles it).
	if _, underSystemd := os.LookupEnv("JOURNAL_STREAM"); underSystemd {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			config.FatalWithWait("failed to open log file: %v", err)
		}
		defer logFile.Close()

		consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr}
		fileWriter := zerolog.ConsoleWriter{Out: logFile, NoColor: true}
		log.Logger = log.Output(io.MultiWriter(consoleWriter, fileWriter))

		log.Info().Str("logFile", logFileName).Msg("logging to file")
	}

	cfg, err := config.Load()
	if err != nil {
		config.FatalWithWait("invalid configuration: %v", err)
	}

	// Create context that cancels on SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		store *storage.SQLiteStore
		cache storage.GenerationCache
	)
	if cfg.DBPath != "" {
		store, err = storage.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			config.FatalWithWait("failed to initialize store: %v", err)
		}
		store.WithCacheTTL(cfg.CacheTTL)
		defer store.Close()
		cache = store
		log.Info().Str("dbPath", cfg.DBPath).Msg("generation store initialized")
	}
	if cfg.RedisURL != "" {
		redisCache, err := storage.NewRedisCache(ctx, cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			config.FatalWithWait("failed to connect to redis: %v", err)
		}
		defer redisCache.Close()
		cache = redisCache
		log.Info().Dur("ttl", cfg.CacheTTL).Msg("redis generation cache enabled")
	}

	gemini, err := llm.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		config.FatalWithWait("failed to initialize gemini generator: %v", err)
	}
	log.Info().Str("model", gemini.Model()).Msg("gemini generator initialized")

	var generator llm.Generator = gemini
	if cache != nil {
		generator = llm.NewCachedGenerator(gemini, cache)
		log.Info().Msg("generation caching enabled")
	}

	downloader := media.NewDownloader().
		WithMaxSize(cfg.ImageMaxBytes).
		WithTimeout(cfg.ImageFetchTimeout)

	workspace := session.NewWorkspace(generator, downloader)
	var history web.HistoryLister
	if store != nil {
		workspace.WithRecorder(store)
		history = store
	}

	copier := clipboard.NewCopier(clipboard.Detect(), cfg.CopyFeedbackDelay)
	defer copier.Stop()

	server, err := web.NewServer(web.Options{
		Workspace:      workspace,
		Copier:         copier,
		History:        history,
		MaxUploadBytes: cfg.ImageMaxBytes,
	})
	if err != nil {
		config.FatalWithWait("failed to initialize web server: %v", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", "http://"+cfg.Addr).Msg("listing studio listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Expire cached generations and trim the generation log
	if store != nil {
		janitorService := janitor.NewService(store, cfg.CacheTTL)
		g.Go(func() error {
			janitorService.Run(ctx)
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http server shutdown")
		}
		log.Info().Msg("waiting for active generations to finish")
		server.Wait()
		return ctx.Err()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/usefreetools/toolbox/internal/api/realtime"
	"github.com/usefreetools/toolbox/internal/api/rest"
	"github.com/usefreetools/toolbox/internal/auth"
	"github.com/usefreetools/toolbox/internal/config"
	"github.com/usefreetools/toolbox/internal/docgen"
	"github.com/usefreetools/toolbox/internal/logging"
	"github.com/usefreetools/toolbox/internal/ratelimit"
	"github.com/usefreetools/toolbox/internal/scan"
	"github.com/usefreetools/toolbox/internal/speech"
)

func main() {
	configPath := flag.String("config", "config.yml", "Path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := logging.Setup(cfg.Logging); err != nil {
		slog.Error("failed to initialize logging", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := logging.Close(); err != nil {
			slog.Error("failed to close log files", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := buildDeps(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	rest.NewHandler(deps).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("toolbox API listening", "addr", cfg.Server.Addr, "store", storeName(cfg))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
	slog.Info("server stopped")
}

func storeName(cfg *config.Config) string {
	if cfg.RateLimit.Store == "redis" {
		return "redis"
	}
	return "memory"
}

// buildDeps wires the rate limiter, upstream clients and admin surface from
// configuration. Unconfigured upstreams degrade at request time instead of
// failing startup.
func buildDeps(ctx context.Context, cfg *config.Config) (rest.Deps, error) {
	var store ratelimit.Store
	var inspector rest.MemoryStoreInspector

	switch cfg.RateLimit.Store {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RateLimit.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return rest.Deps{}, err
		}
		store = ratelimit.NewRedisStore(client, cfg.RateLimit.RedisPrefix)
	default:
		memory := ratelimit.NewMemoryStore()
		memory.StartJanitor(ctx, ratelimit.SystemClock{}, cfg.RateLimit.CleanupInterval)
		store = memory
		inspector = memory
	}

	deepgram := speech.NewDeepgramClient(speech.DeepgramOptions{
		APIKey:        cfg.Deepgram.APIKey,
		BaseURL:       cfg.Deepgram.BaseURL,
		Timeout:       cfg.Deepgram.Timeout,
		RatePerSecond: cfg.Deepgram.RatePerSecond,
		RateBurst:     cfg.Deepgram.RateBurst,
	})

	// Without credentials, transcription serves the fallback response
	// rather than an error.
	var transcriber speech.Transcriber = deepgram
	if !cfg.Deepgram.Enabled() {
		transcriber = speech.FallbackTranscriber{}
	}

	generator := docgen.NewGeminiClient(docgen.GeminiOptions{
		APIKey:        cfg.Gemini.APIKey,
		BaseURL:       cfg.Gemini.BaseURL,
		Timeout:       cfg.Gemini.Timeout,
		RatePerSecond: cfg.Gemini.RatePerSecond,
		RateBurst:     cfg.Gemini.RateBurst,
	})

	heuristics, err := scan.NewHeuristics(scan.DefaultRules())
	if err != nil {
		return rest.Deps{}, err
	}
	reputation := scan.NewVirusTotalClient(scan.VirusTotalOptions{
		APIKey:        cfg.VirusTotal.APIKey,
		BaseURL:       cfg.VirusTotal.BaseURL,
		Timeout:       cfg.VirusTotal.Timeout,
		RatePerSecond: cfg.VirusTotal.RatePerSecond,
		RateBurst:     cfg.VirusTotal.RateBurst,
	})

	return rest.Deps{
		Limiter:  ratelimit.NewLimiter(store, ratelimit.SystemClock{}),
		Policies: cfg.Policies(),
		CORS: rest.CORSConfig{
			AllowOrigin:  cfg.CORS.AllowOrigin,
			AllowHeaders: cfg.CORS.AllowHeaders,
		},
		Transcriber: transcriber,
		Synthesizer: deepgram,
		Voices:      speech.NewCachedCatalog(deepgram, 5*time.Minute),
		Converter:   docgen.TextConverter{},
		Generator:   generator,
		Scanner:     scan.NewScanner(heuristics, reputation, cfg.VirusTotal.Enabled()),
		Admin:       auth.NewService(cfg.Admin.KeyHash, cfg.Admin.JWTSecret, cfg.Admin.TokenTTL),
		Inspector:   inspector,
		Live:        realtime.NewServer(transcriber),
	}, nil
}

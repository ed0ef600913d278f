package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/spencerjireh/portfoliobridge/internal/breaker"
	"github.com/spencerjireh/portfoliobridge/internal/cache"
	"github.com/spencerjireh/portfoliobridge/internal/chatorch"
	"github.com/spencerjireh/portfoliobridge/internal/config"
	"github.com/spencerjireh/portfoliobridge/internal/content"
	"github.com/spencerjireh/portfoliobridge/internal/db"
	"github.com/spencerjireh/portfoliobridge/internal/eventbus"
	"github.com/spencerjireh/portfoliobridge/internal/httpapi"
	"github.com/spencerjireh/portfoliobridge/internal/llmclient"
	"github.com/spencerjireh/portfoliobridge/internal/mcpserver"
	"github.com/spencerjireh/portfoliobridge/internal/pii"
	"github.com/spencerjireh/portfoliobridge/internal/ratelimit"
	"github.com/spencerjireh/portfoliobridge/internal/tools"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "portfoliobridge").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if cfg.IsDev() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	ctx := context.Background()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	mem := cache.NewInProcess()

	bus := eventbus.New()
	bus.Subscribe(func(evt eventbus.Event) {
		log.Debug().Str("kind", string(evt.Kind)).Interface("payload", evt.Payload).Msg("event")
	})

	contentRepo := content.NewPGRepository(pool, bus)

	registry := tools.NewRegistry()
	tools.NewContentTools(contentRepo).RegisterAll(registry)

	limiter := ratelimit.New(mem, ratelimit.Config{
		Capacity:   float64(cfg.RateLimitCapacity),
		RefillRate: cfg.RateLimitRefillRate,
		TTL:        300 * time.Second,
	})

	obfuscator := pii.NewDefault()

	breakerCfg := breaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		Timeout:          cfg.BreakerTimeout,
	}
	llmBreaker := breaker.New("llm:"+cfg.LLMProvider, breakerCfg, bus)
	llmClient := llmclient.NewHTTPClient(llmProviderBaseURL(cfg.LLMProvider), cfg.LLMAPIKey, cfg.LLMProvider, cfg.LLMRequestTimeout)

	retryCfg := llmclient.DefaultRetryConfig
	retryCfg.MaxRetries = cfg.LLMMaxRetries

	chatStore := chatorch.NewPGStore(pool)
	orch := chatorch.New(chatStore, limiter, obfuscator, llmBreaker, llmClient, registry, bus, chatorch.Config{
		Model:         cfg.LLMModel,
		MaxTokens:     cfg.LLMMaxTokens,
		Temperature:   cfg.LLMTemperature,
		SystemPrompt:  cfg.ChatSystemPrompt,
		HistoryWindow: cfg.ChatHistoryWindow,
		RetryConfig:   retryCfg,
	})

	mcpCore := mcpserver.NewServer(registry, contentRepo)
	mcpSessions := mcpserver.NewSessionManager()
	defer mcpSessions.Stop()
	mcpHTTP := mcpserver.NewHTTPTransport(mcpCore, mcpSessions, cfg.AdminAPIKey, cfg.IsDev(), cfg.CORSOrigins)

	srv := &httpapi.Server{
		DB:          pool,
		Content:     contentRepo,
		Chat:        orch,
		MCP:         mcpHTTP,
		Cache:       mem,
		AdminSecret: cfg.AdminAPIKey,
		DevMode:     cfg.IsDev(),
		CORSOrigins: cfg.CORSOrigins,
	}

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.ChatTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("server stopped")
}

func llmProviderBaseURL(provider string) string {
	switch provider {
	case "openai":
		return "https://api.openai.com/v1"
	case "anthropic":
		return "https://api.anthropic.com/v1"
	default:
		return "https://api.openai.com/v1"
	}
}


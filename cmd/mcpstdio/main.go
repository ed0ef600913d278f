// Command mcpstdio runs the MCP server over stdio for a single local peer
// (spec.md §4.9). Only one stdio instance should own a given database at a
// time, so it takes an exclusive file lock before serving — the same
// cross-process locking pattern the example pack's session writer uses
// around its own file access (gofrs/flock), adapted here to guard the
// whole process instead of a single file write.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/spencerjireh/portfoliobridge/internal/config"
	"github.com/spencerjireh/portfoliobridge/internal/content"
	"github.com/spencerjireh/portfoliobridge/internal/db"
	"github.com/spencerjireh/portfoliobridge/internal/eventbus"
	"github.com/spencerjireh/portfoliobridge/internal/mcpserver"
	"github.com/spencerjireh/portfoliobridge/internal/tools"
)

const lockAcquireTimeout = 5 * time.Second

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "portfoliobridge-mcpstdio").Logger().Output(os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	lockPath := os.TempDir() + "/portfoliobridge-mcpstdio.lock"
	fl := flock.New(lockPath)
	lockCtx, cancel := context.WithTimeout(context.Background(), lockAcquireTimeout)
	locked, err := fl.TryLockContext(lockCtx, 100*time.Millisecond)
	cancel()
	if err != nil || !locked {
		log.Fatal().Str("lock", lockPath).Msg("another mcpstdio instance already holds the lock")
	}
	defer fl.Unlock()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	bus := eventbus.New()
	bus.Subscribe(func(evt eventbus.Event) {
		log.Debug().Str("kind", string(evt.Kind)).Interface("payload", evt.Payload).Msg("event")
	})

	contentRepo := content.NewPGRepository(pool, bus)
	registry := tools.NewRegistry()
	tools.NewContentTools(contentRepo).RegisterAll(registry)

	server := mcpserver.NewServer(registry, contentRepo)

	log.Info().Msg("mcpstdio: serving MCP over stdio")
	if err := mcpserver.RunStdio(ctx, server, os.Stdin, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("mcpstdio: transport error")
	}
}

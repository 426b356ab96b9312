package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"postbox/auth"
	"postbox/client"
	"postbox/internal"
	"postbox/moderation"
	"postbox/observability"
	"postbox/repositories"
	"postbox/runtime"
	"postbox/search"
	"postbox/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "postbox terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and drives the console until quit, end of input
// or a termination signal. Returning instead of exiting lets the deferred
// closes flush badger and bluge.
func run() (int, error) {
	// 1. Configuration & Logger
	// A missing .env file is fine, the environment may already be set.
	_ = godotenv.Load()
	config, err := internal.LoadConfig()
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Search index (Bluge), memory only when no path is configured
	index, err := search.NewBlugeIndex(config.BlugeFilepath, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = index.Close()
	}()

	moderator, err := moderation.NewModerator(config.CensoredWordList(), charReplacement, logger)
	if err != nil {
		return exitConfig, fmt.Errorf("moderation dictionary: %w", err)
	}

	// 4. Repositories & services
	participantRepository := repositories.NewParticipantRepository(db)
	messageRepository := repositories.NewMessageRepository(db, logger)
	hasher := auth.NewArgon2Hasher(auth.DefaultParams)
	tokens := auth.NewTokenIssuer([]byte(config.AuthSecret), config.AuthIssuer, config.AuthTokenDuration)
	registry := runtime.NewRegistry(nil)
	monitor := observability.NewMonitor(logger, registry)

	authService := services.NewAuthService(logger, participantRepository, messageRepository,
		hasher, tokens, registry, monitor)
	messagingService := services.NewMessagingService(logger, participantRepository, messageRepository,
		index, moderator, hasher, config.Policy(), monitor, config.SearchLimit)

	indexed, err := messagingService.Reindex(ctx)
	if err != nil {
		return exitRuntime, fmt.Errorf("search index rebuild failed: %w", err)
	}
	logger.Debug("Search index ready", "messages", indexed)

	// 5. Optional debug inspector
	if config.DebugPort > 0 {
		handler := internal.NewInspectHandler(db, internal.DescribeEntry, func() any {
			return monitor.Snapshot()
		})
		internal.StartDebugServer(ctx, config.DebugPort, handler, logger)
	}

	// 6. Console on stdin/stdout
	console := client.NewConsole(logger, authService, messagingService, os.Stdin, os.Stdout, !config.NoColour)
	if err = console.Run(ctx); err != nil {
		return exitRuntime, fmt.Errorf("console stopped: %w", err)
	}

	logger.Info("Bye")
	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}

	return options
}

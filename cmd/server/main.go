package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/avolkov/converse/internal/api"
	"github.com/avolkov/converse/internal/chat"
	"github.com/avolkov/converse/internal/config"
	"github.com/avolkov/converse/internal/database"
	"github.com/avolkov/converse/internal/files"
	"github.com/avolkov/converse/internal/message"
	"github.com/avolkov/converse/internal/metrics"
	"github.com/avolkov/converse/internal/server"
	"github.com/avolkov/converse/internal/token"
)

const (
	defaultAccessSecret  = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="
	defaultRefreshSecret = "c3VwZXItc2VjcmV0LXJlZnJlc2gta2V5LWNoYW5nZS1tZQ=="
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	accessSecret   string
	refreshSecret  string
	fileDir        string
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&accessSecret, "access-secret", defaultAccessSecret, "base64 encoded access token signing key")
	flag.StringVar(&refreshSecret, "refresh-secret", defaultRefreshSecret, "base64 encoded refresh token signing key")
	flag.StringVar(&fileDir, "file-dir", "uploads", "directory for uploaded files")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "converse").Logger()

	cfg, err := config.NewConfig(addr, dsn, accessSecret, refreshSecret, fileDir, allowedOrigins)
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}

	db, err := database.NewPgRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("db open")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("db close")
		}
	}()

	tokens := token.NewAuthority(logger, db, token.Options{
		AccessSecret:  cfg.AccessSecret,
		RefreshSecret: cfg.RefreshSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})
	tokens.StartSweeper(cfg.TokenSweep)
	defer tokens.StopSweeper()

	fileStore, err := files.NewDiskStore(logger, db, cfg.FileDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("file store")
	}

	chatSvc := chat.NewService(logger, db)
	msgSvc := message.NewService(logger, db, chatSvc)

	statsUpdater := metrics.NewPromUpdater()

	chatServer := server.NewChatServer(logger, tokens, chatSvc, msgSvc, statsUpdater)
	chatSvc.SetNotifier(chatServer)

	srv := api.NewApp(logger, cfg, db, tokens, chatSvc, msgSvc, fileStore, chatServer, statsUpdater.Handler())

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info().Str("signal", sig.String()).Msg("received signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server")
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatal().Err(err).Msg("HTTP server shutdown")
	}

	logger.Info().Msg("shutting down chat server")
	chatServer.Shutdown()

	logger.Info().Msg("shutdown complete")
}

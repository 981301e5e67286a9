package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
	zlog "github.com/rs/zerolog/log"

	"github.com/intity01/sakudoko-bot/internal/config"
	"github.com/intity01/sakudoko-bot/internal/dashboard"
	"github.com/intity01/sakudoko-bot/internal/discord"
	"github.com/intity01/sakudoko-bot/internal/logging"
	"github.com/intity01/sakudoko-bot/internal/repository"
	"github.com/intity01/sakudoko-bot/internal/resolver"
	"github.com/intity01/sakudoko-bot/internal/spotify"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	sink := dashboard.NewSink(dashboard.DefaultRetention)
	if err := logging.Init(logging.Config{
		Output: cfg.LogOutput,
		Level:  cfg.LogLevel,
		File:   cfg.LogFile,
	}, sink); err != nil {
		log.Fatal(err)
	}

	db, err := repository.OpenDB(cfg)
	if err != nil {
		zlog.Fatal().Err(err).Msg("database open failed")
	}
	defer db.Close()
	repo := repository.NewRepo(db)

	var sp *spotify.Client
	if cfg.SpotifyClientID != "" && cfg.SpotifyClientSecret != "" {
		sp, err = spotify.NewClientCredentials(cfg.SpotifyClientID, cfg.SpotifyClientSecret)
		if err != nil {
			zlog.Warn().Err(err).Msg("spotify disabled, client init failed")
		}
	}
	res := resolver.New(cfg.ResolveTimeout, sp)

	bot := discord.NewBot(cfg, repo, res)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		srv := dashboard.NewServer(cfg.DashboardAddr, sink, bot.Status)
		if err := srv.Run(ctx); err != nil {
			zlog.Error().Err(err).Msg("dashboard server stopped")
		}
	}()

	if err := bot.Run(ctx); err != nil {
		zlog.Fatal().Err(err).Msg("bot stopped")
	}
}

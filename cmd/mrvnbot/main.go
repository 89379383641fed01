// Command mrvnbot runs the command bot and every configured voice bot in
// one process, matching spec.md's "cluster/multi-process coordination" as
// an explicit Non-goal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/cpdt/mrvn-bot/internal/config"
	"github.com/cpdt/mrvn-bot/internal/coordinator"
	"github.com/cpdt/mrvn-bot/internal/discordfront"
	"github.com/cpdt/mrvn-bot/internal/extractor"
	"github.com/cpdt/mrvn-bot/internal/health"
	"github.com/cpdt/mrvn-bot/internal/mediapipeline"
	"github.com/cpdt/mrvn-bot/internal/speakerpool"
	voicediscord "github.com/cpdt/mrvn-bot/pkg/voice/discord"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.json", "path to the JSON configuration file")
	listenAddr := flag.String("listen-addr", ":8080", "address for the /healthz and /readyz endpoints")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "mrvnbot: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "mrvnbot: %v\n", err)
		}
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	commandSession, err := discordgo.New("Bot " + cfg.CommandBot.Token)
	if err != nil {
		slog.Error("failed to create command bot session", "err", err)
		return 1
	}

	rooms := discordfront.NewRoomResolver(commandSession)
	speakers := speakerpool.New()

	for idx, vb := range cfg.VoiceBots {
		voiceSession, err := discordgo.New("Bot " + vb.Token)
		if err != nil {
			slog.Error("failed to create voice bot session", "index", idx, "err", err)
			return 1
		}
		voiceSession.Identify.Intents = discordgo.IntentsGuildVoiceStates
		if err := voiceSession.Open(); err != nil {
			slog.Error("failed to open voice bot session", "index", idx, "err", err)
			return 1
		}
		defer voiceSession.Close()

		speaker := voicediscord.NewSpeaker(voiceSession, cfg.CommandBot.ServerID)
		speakers.Register(vb.AppID, speaker)
	}

	ext := extractor.New(extractor.Config{
		SearchPrefix:  cfg.Media.SearchPrefix,
		HostBlocklist: cfg.Media.HostBlocklist,
		YtdlName:      cfg.Media.YtdlName,
		YtdlArgs:      cfg.Media.YtdlArgs,
	})

	coord := coordinator.New(ext, rooms, speakers, coordinator.Config{
		SkipVotesRequired: cfg.Votes.SkipVotesRequired,
		StopVotesRequired: cfg.Votes.StopVotesRequired,
		Pipeline: mediapipeline.Config{
			BufferCapacityBytes: cfg.Pipeline.BufferCapacityKB * 1024,
			ScanTimeout:         time.Duration(cfg.Pipeline.ScanTimeoutSecs) * time.Second,
		},
	})

	sweeper := speakerpool.StartSweeper(ctx, speakers, rooms, speakerpool.SweeperConfig{
		Interval:      cfg.Inactivity.CheckInterval(),
		MinInactive:   cfg.Inactivity.MinInactive(),
		OnlyWhenAlone: cfg.Inactivity.OnlyDisconnectWhenAlone,
	})
	defer sweeper.Stop()

	front := discordfront.New(commandSession, coord, rooms, cfg.Progress, cfg.Messages)
	if err := front.Open(cfg.CommandBot.AppID, cfg.CommandBot.ServerID); err != nil {
		slog.Error("failed to open command bot", "err", err)
		return 1
	}

	healthHandler := health.New(health.Checker{
		Name: "command_bot_gateway",
		Check: func(_ context.Context) error {
			if commandSession.State == nil || commandSession.State.User == nil {
				return fmt.Errorf("gateway session not ready")
			}
			return nil
		},
	})
	mux := http.NewServeMux()
	healthHandler.Register(mux)
	httpServer := &http.Server{Addr: *listenAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("health server failed", "err", err)
		}
	}()

	slog.Info("mrvnbot ready", "voice_bots", len(cfg.VoiceBots), "listen_addr", *listenAddr)
	<-ctx.Done()

	slog.Info("shutdown signal received, stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("health server shutdown error", "err", err)
	}
	if err := front.Close(cfg.CommandBot.AppID, cfg.CommandBot.ServerID); err != nil {
		slog.Warn("command bot close error", "err", err)
	}

	slog.Info("goodbye")
	return 0
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

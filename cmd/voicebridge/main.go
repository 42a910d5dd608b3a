package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rojolang/voicebridge/internal/bot"
	"github.com/rojolang/voicebridge/internal/config"
	"github.com/rojolang/voicebridge/internal/logging"
	"github.com/rojolang/voicebridge/internal/metrics"
	"github.com/rojolang/voicebridge/internal/store"
	"github.com/rojolang/voicebridge/pkg/agent"
	"github.com/rojolang/voicebridge/pkg/audio"
	"github.com/rojolang/voicebridge/pkg/recognition"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "voicebridge",
		Short: "Telegram voice bot bridging Vosk recognition and an AI agent",
		Long: "voicebridge listens for Telegram voice messages, transcribes them " +
			"through a Vosk websocket server and forwards the transcript to a " +
			"conversational agent over a persistent websocket.",
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(checkCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
}

// checkCmd validates configuration without connecting anywhere.
func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if issues := cfg.Validate(); len(issues) > 0 {
				for _, issue := range issues {
					fmt.Fprintln(os.Stderr, "config:", issue)
				}
				return fmt.Errorf("%d configuration problem(s)", len(issues))
			}
			fmt.Println("configuration ok")
			return nil
		},
	}
}

func run() error {
	cfg := config.Load()
	if issues := cfg.Validate(); len(issues) > 0 {
		for _, issue := range issues {
			fmt.Fprintln(os.Stderr, "config:", issue)
		}
		return fmt.Errorf("%d configuration problem(s)", len(issues))
	}

	log := logging.Setup(cfg.LogLevel, cfg.LogPretty)
	log.Info().Str("agent", cfg.AgentWSURL).Str("vosk", cfg.VoskServerURL).Msg("starting voicebridge")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scratchDir, err := cfg.EnsureTempDir()
	if err != nil {
		return fmt.Errorf("scratch dir: %w", err)
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	if cfg.MetricsAddr != "" {
		metrics.Serve(cfg.MetricsAddr, log)
	}

	agentClient := agent.New(agent.Config{
		URL:            cfg.AgentWSURL,
		APIKey:         cfg.AgentAPIKey,
		ReconnectDelay: cfg.ReconnectDelay,
		AskTimeout:     cfg.AskTimeout,
		OnState: func(s agent.State) {
			if s == agent.StateConnecting {
				metrics.AgentReconnects.Inc()
			}
			log.Info().Stringer("state", s).Msg("agent connection state")
		},
	}, log)
	agentClient.Start(ctx)
	defer func() {
		if err := agentClient.Logout(); err != nil {
			log.Debug().Err(err).Msg("logout on shutdown")
		}
	}()

	recognizer := recognition.New(recognition.Config{
		URL: cfg.VoskServerURL,
	}, log)

	httpClient := &http.Client{Timeout: 2 * time.Minute}
	api := bot.NewTelegramAPI(httpClient, cfg.TelegramAPIURL, cfg.BotToken)

	b := &bot.Bot{
		API:   api,
		Store: db,
		Voice: &bot.VoiceHandler{
			Platform:   api,
			HTTP:       httpClient,
			Transcoder: audio.NewTranscoder(cfg.FFmpegPath, log),
			Transcribe: recognizer,
			Agent:      agentClient,
			Recorder:   db,
			ScratchDir: scratchDir,
			Log:        log.With().Str("component", "voice").Logger(),
		},
		PollTimeout: cfg.PollTimeout,
		Log:         log.With().Str("component", "bot").Logger(),
	}

	err = b.Run(ctx)
	if err != nil && ctx.Err() != nil {
		log.Info().Msg("shutting down")
		return nil
	}
	return err
}

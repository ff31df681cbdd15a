package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"drivel/pkg/bot"
	"drivel/pkg/bus"
	"drivel/pkg/channel"
	"drivel/pkg/channel/telegram"
	"drivel/pkg/channel/websocket"
	"drivel/pkg/config"
	"drivel/pkg/gateway"
	"drivel/pkg/logger"
	"drivel/pkg/transcript"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot on the configured channels",
	Long:  "Runs Drivel on every enabled channel with health and readiness endpoints.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, closeLog, err := logger.Open(cfg.Logging, nil)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		defer closeLog()
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.run")

		adapters, err := enabledAdapters(cfg, log)
		if err != nil {
			log.Error("Channel configuration invalid", "error", err)
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info("Drivel started", "nickname", cfg.Bot.Nickname, "channels", enabledChannelNames(adapters))
		if err := serve(runCtx, cfg, adapters, appLogger); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Drivel stopped with error", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// serve builds the bus, engine and gateway for adapters and runs them until
// ctx is canceled or every adapter has stopped.
func serve(ctx context.Context, cfg *config.Config, adapters []channel.Adapter, log *slog.Logger) error {
	messageBus := bus.NewMessageBusWithBuffer(cfg.Gateway.QueueSize)
	defer messageBus.Close()

	engine, err := bot.Build(cfg, messageBus, log)
	if err != nil {
		return fmt.Errorf("configure bot: %w", err)
	}

	if cfg.Transcript.Enabled {
		store, err := transcript.Open(cfg.Transcript.Path, log)
		if err != nil {
			return err
		}
		defer store.Close()

		followCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			store.Follow(followCtx, messageBus)
		}()
		defer func() {
			cancel()
			<-done
		}()
	}

	svc, err := gateway.NewService(cfg, engine, messageBus, adapters, log)
	if err != nil {
		return fmt.Errorf("initialize gateway: %w", err)
	}

	return svc.Run(ctx)
}

func enabledAdapters(cfg *config.Config, log *slog.Logger) ([]channel.Adapter, error) {
	adapters := make([]channel.Adapter, 0, 2)

	if cfg.Channels.Telegram.Enabled {
		adapter, err := telegram.NewAdapter(cfg.Channels.Telegram, log)
		if err != nil {
			return nil, fmt.Errorf("configure telegram channel: %w", err)
		}
		adapters = append(adapters, adapter)
	}

	if cfg.Channels.Websocket.Enabled {
		adapter, err := websocket.NewAdapter(cfg.Channels.Websocket, cfg.Bot.Nickname, log)
		if err != nil {
			return nil, fmt.Errorf("configure websocket channel: %w", err)
		}
		adapters = append(adapters, adapter)
	}

	if len(adapters) == 0 {
		return nil, errors.New("no channels are enabled")
	}

	return adapters, nil
}

func enabledChannelNames(adapters []channel.Adapter) string {
	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, adapter.Name())
	}

	return strings.Join(names, ",")
}

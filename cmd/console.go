package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"drivel/pkg/channel"
	"drivel/pkg/channel/console"
	"drivel/pkg/config"
	"drivel/pkg/logger"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Chat with the bot in the terminal",
	Long:  "Runs Drivel with only the terminal channel. Logs go to logging.file when set and are discarded otherwise.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadOrDefault()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, closeLog, err := logger.Open(cfg.Logging, io.Discard)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		defer closeLog()
		slog.SetDefault(appLogger)

		adapter, err := console.NewAdapter(cfg.Channels.Console, cfg.Bot.Nickname, appLogger)
		if err != nil {
			fmt.Printf("failed to configure console: %v\n", err)
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ctx, cancel := context.WithCancel(runCtx)
		defer cancel()
		go func() {
			select {
			case <-adapter.Done():
				cancel()
			case <-ctx.Done():
			}
		}()

		if err := serve(ctx, cfg, []channel.Adapter{adapter}, appLogger); err != nil {
			fmt.Printf("console stopped: %v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"docchat/internal/bootstrap"
	"docchat/internal/config"
	"docchat/internal/platform/logger"
)

var cfg *config.Config

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "docchat",
		Short:         "Chat with uploaded documents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config failed: %w", err)
			}
			cfg = loaded
			logger.Setup(cfg.App.LogLevel, cfg.App.LogFormat)
			return nil
		},
	}
	root.AddCommand(newServeCommand(), newProcessCommand(), newCleanupCommand())
	return root
}

// withApp builds the application for a one-shot command and closes it after.
func withApp(ctx context.Context, fn func(*bootstrap.App) error) error {
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{})
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	defer func() {
		if err := app.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("close resources failed")
		}
	}()
	return fn(app)
}

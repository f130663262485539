package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/agent-chat/internal/app"
	"github.com/zhouzirui/agent-chat/internal/config"
	"github.com/zhouzirui/agent-chat/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		provider string
		greeting string
		envFile  string
		verbose  bool
	)

	cmd := &cobra.Command{
		Use:           "chattester",
		Short:         "Talk to the configured agent from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load(envFile)

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if provider != "" {
				cfg.Gateway.Provider = config.Provider(provider)
			}
			if cmd.Flags().Changed("greeting") {
				cfg.Conversation.Greeting = greeting
			}

			level := "warn"
			if verbose {
				level = "debug"
			}
			l := logger.Configure(level, true)

			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			services, err := app.Build(ctx, cfg, l)
			if err != nil {
				return err
			}
			defer func() {
				endCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				services.Conversation.Exit(endCtx)
			}()

			return runREPL(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), services.Conversation)
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "override GATEWAY_PROVIDER (retell, backend, ark)")
	cmd.Flags().StringVar(&greeting, "greeting", "", "message sent when a conversation starts")
	cmd.Flags().StringVar(&envFile, "env", ".env", "dotenv file to load")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log gateway traffic")
	return cmd
}

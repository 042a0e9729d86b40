package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/drainkit/config"
	"github.com/vinayprograms/drainkit/logging"
)

// Set with -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "drainkit",
		Short: "Cluster event node with graceful shutdown",
		Long: `drainkit accepts cluster events, broadcasts them to every local consumer
and mirrors them to other nodes over NATS or Redis. Shutdown runs in two
phases: frontends and queues drain first, connections close after.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the node until it receives a termination signal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}

			lc := cfg.LoggingConfig()
			lc.Output = cmd.ErrOrStderr()
			logger, err := logging.New(lc)
			if err != nil {
				return err
			}
			logger = logger.With().
				Str("service", cfg.Service.Name).
				Str("version", version).
				Logger()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				logger.Error().Err(err).Msg("startup failed")
				return err
			}
			return a.run(ctx)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the TOML config file (default $"+config.PathEnv+" or "+config.DefaultPath+")")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "override logging.level")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "drainkit version %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/auto-dns/nodehostd/internal/app"
	"github.com/auto-dns/nodehostd/internal/config"
	"github.com/auto-dns/nodehostd/internal/logger"
)

type contextKey string

const configKey = contextKey("config")

var (
	v       = viper.New()
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "nodehostd",
	Short: "Per-node container hosting daemon",
	Long:  "Creates, starts, stops and destroys containers on this node and exposes their state and terminals over HTTP.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		if err := config.InitConfig(v, configFile); err != nil {
			return err
		}
		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		ctx := context.WithValue(cmd.Context(), configKey, cfg)
		cmd.SetContext(ctx)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := cmd.Context().Value(configKey).(*config.Config)

		logInstance := logger.SetupLogger(&cfg.Logging)
		if path := v.ConfigFileUsed(); path != "" {
			v.OnConfigChange(func(e fsnotify.Event) {
				level := logger.SetLevel(v.GetString("log.log_level"))
				logInstance.Info().Str("file", e.Name).Str("level", level.String()).Msg("Config file changed, log level reapplied")
			})
			v.WatchConfig()
		}

		var daemon application
		daemon, err := app.New(cfg, logInstance)
		if err != nil {
			return fmt.Errorf("failed to create app: %w", err)
		}
		defer func() {
			if err := daemon.Close(); err != nil {
				logInstance.Error().Err(err).Msg("Error during shutdown")
			}
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			select {
			case sig := <-sigCh:
				logInstance.Info().Msgf("Received signal: %v", sig)
				cancel()
			case <-ctx.Done():
			}
		}()

		if err := daemon.Run(ctx); err != nil {
			return fmt.Errorf("app run error: %w", err)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	// Overrides the root hook so that printing the version needs no config.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "nodehostd %s\n", version)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := cmd.Context().Value(configKey).(*config.Config)
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "INFO", "set log level (e.g. INFO, DEBUG, WARN)")
	rootCmd.PersistentFlags().String("listen", ":8080", "address the HTTP API listens on")
	rootCmd.PersistentFlags().String("driver", config.DriverLXC, "container runtime driver (lxc or docker)")
	v.BindPFlag("log.log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	v.BindPFlag("app.listen_addr", rootCmd.PersistentFlags().Lookup("listen"))
	v.BindPFlag("app.driver", rootCmd.PersistentFlags().Lookup("driver"))

	rootCmd.AddCommand(versionCmd, configCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Execution error: %v\n", err)
		os.Exit(1)
	}
}

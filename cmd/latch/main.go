package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/benaskins/latch/internal/config"
	"github.com/benaskins/latch/internal/device"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	backendFlag string
	cfg         *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "latch",
	Short:         "Passcode lock and sealed credential store",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if backendFlag != "" {
			loaded.Backend = backendFlag
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		level, _ := loaded.Level()
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		if loaded.InstallationID != "" {
			device.SetOverride(loaded.InstallationID)
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "config file")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "credential backend (system, keyring, sqlite, memory)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

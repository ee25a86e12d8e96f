// Package cli holds the rollcall cobra commands.
package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/rollcall/internal/config"
	"github.com/BrandonDHaskell/rollcall/internal/logger"
)

type rootOptions struct {
	configFile string
	envFile    string
}

func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "rollcall",
		Short:         "Rollcall - QR classroom attendance with device anti-fraud checks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", config.Getenv("ROLLCALL_CONFIG", ""), "Path to config file (default: ./configs/config.yaml if present)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")

	cmd.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newCleanupCommand(opts),
		newDeviceCommand(opts),
		newTokenCommand(opts),
	)
	return cmd
}

// load reads the configuration and builds the logger. Logs go to stderr
// when the command writes results to stdout.
func (o *rootOptions) load(stderr io.Writer) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(config.LoadOptions{File: o.configFile, DotEnv: o.envFile})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	out := cfg.Logger.OutputPath
	if stderr != nil && (out == "" || out == "stdout") {
		out = "stderr"
	}
	log, err := logger.New(logger.Options{Level: cfg.Logger.Level, Format: cfg.Logger.Format, OutputPath: out})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, log, nil
}

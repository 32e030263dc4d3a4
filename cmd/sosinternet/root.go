package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sosinternet/internal/config"
	"sosinternet/internal/logging"
)

func newRootCmd() *cobra.Command {
	var configPath string
	rootCmd := &cobra.Command{
		Use:   "sosinternet",
		Short: "Internet connectivity watchdog",
		Long: `sosinternet checks internet connectivity on a fixed interval and, when the
connection stays down, reboots the router and verifies that it came back.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file (YAML)")

	env := &cliEnv{configPath: &configPath}
	rootCmd.AddCommand(newRunCmd(env))
	rootCmd.AddCommand(newCheckCmd(env))
	rootCmd.AddCommand(newRebootCmd(env))
	rootCmd.AddCommand(newEncryptCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// cliEnv carries flags shared by the subcommands.
type cliEnv struct {
	configPath *string
}

// load reads the configuration and builds the logger it describes.
func (e *cliEnv) load() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(*e.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

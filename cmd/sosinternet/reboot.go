package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sosinternet/internal/actuator"
)

func newRebootCmd(env *cliEnv) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "reboot",
		Short: "Reboot the router once, without checking connectivity first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return errors.New("refusing to reboot the router without --yes")
			}
			cfg, logger, err := env.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if err := cfg.RequireRouter(); err != nil {
				return err
			}
			act, err := buildActuator(cfg.Router, logger)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Router.Timeout())
			defer cancel()

			if err := act.Reboot(ctx); err != nil {
				logger.Error("router reboot failed", zap.String("kind", actuator.Kind(err)), zap.Error(err))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "router reboot requested")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&confirmed, "yes", "y", false, "confirm the reboot")
	return cmd
}

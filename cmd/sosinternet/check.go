package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sosinternet/internal/policy"
)

var errDisconnected = errors.New("internet connection is not active")

func newCheckCmd(env *cliEnv) *cobra.Command {
	var (
		verbose  bool
		showPlan bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run a single connectivity check and print the verdict",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := env.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if showPlan {
				pol, err := policy.New(cfg.Connection.Policy())
				if err != nil {
					return err
				}
				printPlan(cmd, pol)
				return nil
			}

			checker, err := buildProbe(cfg.Connection, logger)
			if err != nil {
				return err
			}
			status := checker.Check(cmd.Context())

			out := cmd.OutOrStdout()
			if status.Connected {
				fmt.Fprintf(out, "connected via %s", status.Target)
				if ms := status.LatencyMs(); ms >= 0 {
					fmt.Fprintf(out, " (%.0f ms)", ms)
				}
				fmt.Fprintln(out)
			} else {
				fmt.Fprintf(out, "disconnected: %s\n", status.Error)
			}
			if verbose {
				fmt.Fprintln(out, status.Detail)
			}
			if !status.Connected {
				return errDisconnected
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print per-target results and network interfaces")
	cmd.Flags().BoolVar(&showPlan, "plan", false, "print the escalation steps for the configured policy instead of probing")
	return cmd
}

func printPlan(cmd *cobra.Command, pol policy.Policy) {
	out := cmd.OutOrStdout()
	var total time.Duration
	for i, step := range pol.Plan() {
		fmt.Fprintf(out, "%2d. %s\n", i+1, step)
		total += step.Wait
	}
	fmt.Fprintf(out, "worst case: %s of waiting from the first failed check to the final verdict\n", total)
}

package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sosinternet/internal/config"
	"sosinternet/internal/secret"
)

func newEncryptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encrypt [password]",
		Short: "Encrypt a router password for the configuration file",
		Long: `Encrypt a router password with the key from ` + config.EnvEncryptionKey + `.
Without an argument the password is read from the first line of stdin.
Put the output in router.password and set router.use_encryption to true.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("password must not be empty")
			}

			key, isDefault := secret.KeyFromEnv(config.EnvEncryptionKey)
			if isDefault {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s is not set, using the built-in key\n", config.EnvEncryptionKey)
			}
			sealed, err := secret.Encrypt(password, key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
	return cmd
}

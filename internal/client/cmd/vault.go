package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"immun/internal/client/vault"
)

func newVaultCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "vault", Short: "Manage the key that seals the stored session"}
	cmd.AddCommand(&cobra.Command{Use: "init", Short: "Generate the local vault key", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		v := c.store().Vault()
		if _, err := v.Generate(); err != nil {
			if errors.Is(err, vault.ErrKeyExists) {
				return fmt.Errorf("%w at %s", err, v.Path())
			}
			return err
		}
		printf(cmd.OutOrStdout(), "Vault key generated at %s\n", v.Path())
		return nil
	}})
	cmd.AddCommand(&cobra.Command{Use: "status", Short: "Show vault status", Args: cobra.NoArgs, Run: func(cmd *cobra.Command, args []string) {
		if c.store().Vault().Exists() {
			printf(cmd.OutOrStdout(), "Vault: ready\n")
		} else {
			printf(cmd.OutOrStdout(), "Vault: not initialized\n")
		}
	}})
	return cmd
}

package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"immun/internal/dashboard"
)

var errNotAdmin = errors.New("this command needs an admin account")

func newAdminCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "admin", Short: "Administrator views"}
	cmd.AddCommand(&cobra.Command{
		Use:   "records",
		Short: "List every user's records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			auth, err := c.authContext()
			if err != nil {
				return err
			}
			if !auth.IsAdmin() {
				return errNotAdmin
			}
			shell := dashboard.NewAdminDashboard(auth, c.apiClient(auth.Token), c.dashboardOptions()...)
			defer shell.Close()
			loadErr := shell.Mount(cmd.Context())
			renderView(cmd.OutOrStdout(), shell.View())
			return loadErr
		},
	})
	return cmd
}

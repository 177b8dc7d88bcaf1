package cmd

import (
	"github.com/spf13/cobra"
)

func newVersionCmd(version, buildDate string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			printf(cmd.OutOrStdout(), "immun %s (%s)\n", version, buildDate)
		},
	}
}

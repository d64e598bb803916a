package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"trawl/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		if verbose {
			fmt.Fprintln(cmd.OutOrStdout(), version.GetFullVersionInfo())
			return
		}
		fmt.Fprintln(cmd.OutOrStdout(), "trawl "+version.GetVersion())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/downlocal/downlocal/pkg/version"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information for downlocal",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Downlocal Version:", version.Version)
		fmt.Println("Downlocal GitCommit:", version.Commit)
	},
}

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/downlocal/downlocal/pkg/storage"
)

func init() {
	rootCmd.AddCommand(cleanCmd)
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove leftover temporary files from the storage scratch area",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := storage.New(storagePath)
		if err != nil {
			return err
		}
		return dir.CleanScratch(0)
	},
}

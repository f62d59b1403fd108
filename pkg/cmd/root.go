package cmd

import (
	"github.com/spf13/cobra"

	"github.com/downlocal/downlocal/pkg/config"
	"github.com/downlocal/downlocal/pkg/log"
)

var (
	storagePath string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&storagePath, "storage-path", config.DefaultStorageRoot(), "Directory where finished artifacts are stored, defaults to $REMOTE_PATH")
	rootCmd.PersistentFlags().BoolVarP(&log.Verbose, "verbose", "v", false, "Enable verbose logging")
}

var rootCmd = &cobra.Command{
	Use:   "downlocal",
	Short: "downlocal is a docker image archiving utility",
	Long: `
The downlocal command pulls container images through the local docker daemon and stores
them as portable archives, so a set of images can be staged for machines without network
access to the original registries.
`,
	SilenceUsage:      true,
	DisableAutoGenTag: true,
	SilenceErrors:     true,
}

// GetRootCommand returns the root downlocal command
func GetRootCommand() *cobra.Command { return rootCmd }

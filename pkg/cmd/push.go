package cmd

import (
	"fmt"
	"os"
	"os/user"
	"path"

	"github.com/spf13/cobra"

	"github.com/downlocal/downlocal/pkg/log"
	"github.com/downlocal/downlocal/pkg/node"
	"github.com/downlocal/downlocal/pkg/storage"
	"github.com/downlocal/downlocal/pkg/types"
)

var (
	pushSSHUser    string
	pushSSHPort    int
	pushSSHKeyFile string
	pushSSHPasswd  string
	pushRemoteDir  string
)

func init() {
	var defaultUser string
	if usr, err := user.Current(); err == nil {
		defaultUser = usr.Username
	}

	pushCmd.Flags().StringVarP(&pushSSHUser, "ssh-user", "u", defaultUser, "The remote user to use for SSH authentication")
	pushCmd.Flags().IntVarP(&pushSSHPort, "ssh-port", "p", 22, "The port to use when connecting to the remote instance")
	pushCmd.Flags().StringVarP(&pushSSHKeyFile, "private-key", "k", "", "A private key to use for SSH authentication, if not provided you will be prompted for a password")
	pushCmd.Flags().StringVar(&pushSSHPasswd, "ssh-password", "", "The password to use for SSH authentication")
	pushCmd.Flags().StringVarP(&pushRemoteDir, "remote-dir", "d", "", "The directory on the remote host to copy artifacts into, defaults to the local storage path")

	rootCmd.AddCommand(pushCmd)
}

var pushCmd = &cobra.Command{
	Use:   "push HOST",
	Short: "Copy stored artifacts to a remote host over SSH",
	Args:  cobra.ExactArgs(1),
	RunE:  runPush,
}

func runPush(cmd *cobra.Command, args []string) error {
	dir, err := storage.New(storagePath)
	if err != nil {
		return err
	}
	artifacts, err := dir.Artifacts()
	if err != nil {
		return err
	}
	if len(artifacts) == 0 {
		return fmt.Errorf("no artifacts found in %s, run `downlocal pull` first", dir.Root())
	}

	remoteDir := pushRemoteDir
	if remoteDir == "" {
		remoteDir = dir.Root()
	}

	target, err := node.Connect(&types.NodeConnectOptions{
		Address:     args[0],
		SSHUser:     pushSSHUser,
		SSHPassword: pushSSHPasswd,
		SSHKeyFile:  pushSSHKeyFile,
		SSHPort:     pushSSHPort,
	})
	if err != nil {
		return err
	}
	defer target.Close()

	if err := target.MkdirAll(remoteDir); err != nil {
		return err
	}
	for _, name := range artifacts {
		f, err := os.Open(dir.ArtifactPath(name))
		if err != nil {
			return err
		}
		stat, err := f.Stat()
		if err != nil {
			f.Close()
			return err
		}
		log.Infof("Copying %s to %s\n", name, args[0])
		if err := target.WriteFile(f, path.Join(remoteDir, name), "0644", stat.Size()); err != nil {
			return err
		}
	}

	log.Infof("Copied %d artifacts to %s:%s\n", len(artifacts), args[0], remoteDir)
	return nil
}

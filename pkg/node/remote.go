package node

import (
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"strconv"

	"github.com/bramvdbogaerde/go-scp"
	"golang.org/x/crypto/ssh"

	"github.com/downlocal/downlocal/pkg/log"
	"github.com/downlocal/downlocal/pkg/types"
)

// Connect opens an SSH connection to a remote node with the given options.
func Connect(opts *types.NodeConnectOptions) (types.Node, error) {
	var err error
	n := &remoteNode{remoteAddr: opts.Address}
	n.client, err = getSSHClient(opts)
	return n, err
}

type remoteNode struct {
	client     *ssh.Client
	remoteAddr string
}

func (n *remoteNode) scpClient() (*scp.Client, error) {
	scpClient, err := scp.NewClientBySSH(n.client)
	if err != nil {
		return nil, err
	}
	return &scpClient, nil
}

func (n *remoteNode) MkdirAll(dir string) error {
	sess, err := n.client.NewSession()
	if err != nil {
		return err
	}
	defer sess.Close()
	cmd := fmt.Sprintf("mkdir -p %q", dir)
	log.Debugf("Running command on %s: %s\n", n.remoteAddr, cmd)
	return sess.Run(cmd)
}

func (n *remoteNode) WriteFile(rdr io.ReadCloser, destination string, mode string, size int64) error {
	scpClient, err := n.scpClient()
	if err != nil {
		return err
	}
	defer scpClient.Close()
	defer rdr.Close()
	log.Debugf("Sending %d bytes to %q on %s with mode %s\n", size, destination, n.remoteAddr, mode)
	return scpClient.Copy(rdr, destination, mode, size)
}

func (n *remoteNode) Close() error { return n.client.Close() }

func getSSHClient(opts *types.NodeConnectOptions) (*ssh.Client, error) {
	log.Debug("Using SSH user:", opts.SSHUser)
	config := &ssh.ClientConfig{
		User:            opts.SSHUser,
		Auth:            make([]ssh.AuthMethod, 0),
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // TODO: allow a known_hosts file
	}
	if opts.SSHPassword != "" {
		log.Debug("Using SSH password authentication")
		config.Auth = append(config.Auth, ssh.Password(opts.SSHPassword))
	}
	if opts.SSHKeyFile != "" {
		log.Debug("Using SSH pubkey authentication")
		log.Debugf("Loading SSH key from %q\n", opts.SSHKeyFile)
		keyBytes, err := ioutil.ReadFile(opts.SSHKeyFile)
		if err != nil {
			return nil, err
		}
		key, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, err
		}
		config.Auth = append(config.Auth, ssh.PublicKeys(key))
	}

	addr := net.JoinHostPort(opts.Address, strconv.Itoa(opts.SSHPort))
	log.Debugf("Creating SSH connection with %s over TCP\n", addr)
	return ssh.Dial("tcp", addr, config)
}

package types

// PullOptions are the options for a single acquisition run.
type PullOptions struct {
	// The directory where finished artifacts are stored
	StoragePath string
	// The number of images to acquire in parallel. Zero or below selects
	// a default bounded by the CPU count.
	Concurrency int
	// Maximum pull attempts per image for transient failures
	Retries int
	// Compress exported archives with zip
	Compress bool
	// Replace artifacts that already exist in the storage directory
	OverwriteExisting bool
	// The platform to pull images for, e.g. "linux/arm64". Empty selects
	// the daemon default.
	Arch string
	// Mirror pulls images through the given registry mirror. Pulled images
	// are retagged back to their upstream reference afterwards, so artifact
	// names and daemon tags never carry the mirror host.
	Mirror string
	// KeepImages leaves pulled images in the engine after export
	KeepImages bool
	// Verify records the sha256 checksum of each exported archive
	Verify bool
}

// NodeConnectOptions are options for connecting to a remote node that will
// receive stored artifacts.
type NodeConnectOptions struct {
	// The address of the remote node
	Address string
	// The user to attempt to SSH into the remote node as
	SSHUser string
	// A password to use for SSH authentication
	SSHPassword string
	// The path to the key to use for SSH authentication
	SSHKeyFile string
	// The port to use for the SSH connection
	SSHPort int
}

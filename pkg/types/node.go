package types

import "io"

// Node is an interface for a machine that receives stored artifacts.
type Node interface {
	// MkdirAll should ensure the given directory on the node
	MkdirAll(dir string) error
	// WriteFile should write the contents of the given reader to destination
	// on the node, and set its mode and size accordingly.
	WriteFile(rdr io.ReadCloser, destination string, mode string, size int64) error
	// Close should close any open connections to the node
	Close() error
}

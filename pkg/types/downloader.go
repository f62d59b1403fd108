package types

import (
	"context"
	"io"
)

// ImageHandle represents an image present in the local engine after a
// successful pull.
type ImageHandle struct {
	// The reference the image was pulled for
	Ref *ImageRef
	// The engine-side identifier of the image
	ID string
	// PreExisting is true when the image was already present in the engine
	// before the pull. Such images are never removed after export.
	PreExisting bool
}

// ImageDownloader is an interface for pulling container images and exporting
// them to tar archives. It can be implemented by different runtimes such as
// docker, containerd, podman, etc.
type ImageDownloader interface {
	// Pull instructs the engine to fetch the image for the given reference.
	// Failures are returned as a PullError carrying the transient/permanent
	// classification. Pull has no side effects on the storage directory.
	Pull(ctx context.Context, ref *ImageRef) (*ImageHandle, error)
	// Export serializes the pulled image, all layers plus manifest, into a
	// single tar byte stream. Failures are returned as an ExportError.
	Export(ctx context.Context, handle *ImageHandle) (io.ReadCloser, error)
	// Remove deletes the engine-side copy of the image to bound local disk
	// use. It is best-effort, callers log failures but never fail the task.
	Remove(ctx context.Context, handle *ImageHandle) error
}

package engine

import (
	"context"
	"io"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"

	"github.com/downlocal/downlocal/pkg/log"
	"github.com/downlocal/downlocal/pkg/types"
)

// New returns an ImageDownloader backed by the local docker daemon. The
// daemon is reached through the environment-configured socket, the same way
// the docker CLI finds it. Platform selects the architecture to pull for
// and may be empty for the daemon default. A non-empty mirror routes pulls
// through that registry mirror, with images retagged back to their upstream
// reference after the pull.
func New(platform, mirror string) types.ImageDownloader {
	return &dockerDownloader{platform: platform, mirror: mirror}
}

type dockerDownloader struct {
	platform string
	mirror   string
}

func getDockerClient() (*client.Client, error) {
	return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
}

func filtersForImage(ref *types.ImageRef) filters.Args {
	return filters.NewArgs(filters.Arg("reference", ref.String()))
}

func (d *dockerDownloader) Pull(ctx context.Context, ref *types.ImageRef) (*types.ImageHandle, error) {
	cli, err := getDockerClient()
	if err != nil {
		return nil, &types.PullError{Ref: ref, Cause: err}
	}
	defer cli.Close()

	preExisting := imagePresent(ctx, cli, ref)

	pullRef := ref.PullReference(d.mirror)
	if pullRef != ref.String() {
		log.Infof("Pulling image for %s through mirror %s\n", ref, d.mirror)
	} else {
		log.Infof("Pulling image for %s\n", ref)
	}
	rdr, err := cli.ImagePull(ctx, pullRef, dockertypes.ImagePullOptions{Platform: d.platform})
	if err != nil {
		return nil, &types.PullError{Ref: ref, Cause: err, Permanent: permanentPullFailure(err)}
	}
	defer rdr.Close()
	// The pull only completes once the progress stream is drained.
	log.DebugReader(rdr)

	if pullRef != ref.String() {
		// Retag the mirrored pull under its upstream name so exports,
		// artifact names and the eventual docker load see the original
		// reference, then drop the mirror tag.
		if err := cli.ImageTag(ctx, pullRef, ref.String()); err != nil {
			return nil, &types.PullError{Ref: ref, Cause: err, Permanent: permanentPullFailure(err)}
		}
		if _, err := cli.ImageRemove(ctx, pullRef, dockertypes.ImageRemoveOptions{}); err != nil {
			log.Warningf("Could not remove mirror tag %s: %s\n", pullRef, err)
		}
	}

	inspect, _, err := cli.ImageInspectWithRaw(ctx, ref.String())
	if err != nil {
		return nil, &types.PullError{Ref: ref, Cause: err, Permanent: permanentPullFailure(err)}
	}
	return &types.ImageHandle{Ref: ref, ID: inspect.ID, PreExisting: preExisting}, nil
}

func (d *dockerDownloader) Export(ctx context.Context, handle *types.ImageHandle) (io.ReadCloser, error) {
	cli, err := getDockerClient()
	if err != nil {
		return nil, &types.ExportError{Ref: handle.Ref, Cause: err}
	}
	log.Debug("Saving image:", handle.Ref)
	rdr, err := cli.ImageSave(ctx, []string{handle.Ref.String()})
	if err != nil {
		cli.Close()
		return nil, &types.ExportError{Ref: handle.Ref, Cause: err}
	}
	return &clientReadCloser{ReadCloser: rdr, cli: cli}, nil
}

func (d *dockerDownloader) Remove(ctx context.Context, handle *types.ImageHandle) error {
	if handle.PreExisting {
		log.Debugf("Image %s was present before the run, leaving it in place\n", handle.Ref)
		return nil
	}
	cli, err := getDockerClient()
	if err != nil {
		return err
	}
	defer cli.Close()
	log.Debug("Removing local engine copy of", handle.Ref)
	_, err = cli.ImageRemove(ctx, handle.Ref.String(), dockertypes.ImageRemoveOptions{PruneChildren: true})
	return err
}

// clientReadCloser keeps the docker client alive for the lifetime of an
// export stream and releases it when the stream is closed.
type clientReadCloser struct {
	io.ReadCloser
	cli *client.Client
}

func (c *clientReadCloser) Close() error {
	err := c.ReadCloser.Close()
	if cerr := c.cli.Close(); err == nil {
		err = cerr
	}
	return err
}

func imagePresent(ctx context.Context, cli *client.Client, ref *types.ImageRef) bool {
	imgs, err := cli.ImageList(ctx, dockertypes.ImageListOptions{Filters: filtersForImage(ref)})
	if err != nil {
		log.Debugf("Error trying to list images for %s: %s\n", ref, err.Error())
		return false
	}
	return len(imgs) > 0
}

// permanentPullFailure classifies daemon errors that retrying cannot fix:
// unknown references, rejected credentials and malformed input. Everything
// else, timeouts, rate limits, 5xx responses, is considered transient.
func permanentPullFailure(err error) bool {
	return errdefs.IsNotFound(err) ||
		errdefs.IsUnauthorized(err) ||
		errdefs.IsForbidden(err) ||
		errdefs.IsInvalidParameter(err)
}

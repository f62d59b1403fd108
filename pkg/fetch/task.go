package fetch

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/downlocal/downlocal/pkg/archive"
	"github.com/downlocal/downlocal/pkg/log"
	"github.com/downlocal/downlocal/pkg/storage"
	"github.com/downlocal/downlocal/pkg/types"
	"github.com/downlocal/downlocal/pkg/util"
)

// task acquires one image reference end to end: pull with retry, export to
// a scratch temp file, optionally compress, then promote into the storage
// root. Only the executing worker ever touches a task.
type task struct {
	ref        *types.ImageRef
	downloader types.ImageDownloader
	dir        *storage.Directory
	opts       *types.PullOptions
	retry      *RetryPolicy
}

func (t *task) run(ctx context.Context) *types.TaskResult {
	res := &types.TaskResult{Ref: t.ref, State: types.StatePending}
	name := t.ref.ArtifactName(t.opts.Compress)

	// Idempotence short-circuit, no engine calls are made.
	if !t.opts.OverwriteExisting && t.dir.Exists(name) {
		log.Infof("Artifact for %s is already present, skipping\n", t.ref)
		res.State = types.StateSkipped
		res.ArtifactPath = t.dir.ArtifactPath(name)
		return res
	}

	res.State = types.StatePulling
	var handle *types.ImageHandle
	attempts, err := t.retry.Do(ctx, func() error {
		h, pullErr := t.downloader.Pull(ctx, t.ref)
		if pullErr != nil {
			return pullErr
		}
		handle = h
		return nil
	})
	res.Attempts = attempts
	if err != nil {
		return t.fail(res, err)
	}

	res.State = types.StateExporting
	tmpPath, size, err := t.export(ctx, handle)
	if err != nil {
		return t.fail(res, err)
	}

	if t.opts.Compress {
		res.State = types.StateCompressing
		packed, compressErr := archive.Compress(tmpPath, t.ref.ArtifactName(false))
		// The raw export is no longer needed whether packaging worked or not.
		os.Remove(tmpPath)
		if compressErr != nil {
			return t.fail(res, compressErr)
		}
		tmpPath = packed
		if stat, statErr := os.Stat(packed); statErr == nil {
			size = stat.Size()
		}
	}

	if t.opts.Verify {
		sum, sumErr := util.CalculateFileSHA256Sum(tmpPath)
		if sumErr != nil {
			os.Remove(tmpPath)
			return t.fail(res, sumErr)
		}
		res.SHA256 = sum
	}

	res.State = types.StatePromoting
	final, err := t.dir.Promote(tmpPath, name)
	if err != nil {
		os.Remove(tmpPath)
		return t.fail(res, err)
	}

	if !t.opts.KeepImages {
		if removeErr := t.downloader.Remove(ctx, handle); removeErr != nil {
			log.Warningf("Could not remove local engine copy of %s: %s\n", t.ref, removeErr)
		}
	}

	log.Infof("Archived %s to %s\n", t.ref, final)
	res.State = types.StateSucceeded
	res.ArtifactPath = final
	res.Size = size
	return res
}

// export streams the image archive into a uniquely named scratch file and
// returns its path and size. The file is removed on every failure path.
func (t *task) export(ctx context.Context, handle *types.ImageHandle) (string, int64, error) {
	rdr, err := t.downloader.Export(ctx, handle)
	if err != nil {
		return "", 0, err
	}
	defer rdr.Close()

	tmp, err := t.dir.TempFile(t.ref.ArtifactName(false))
	if err != nil {
		return "", 0, err
	}
	tmpPath := tmp.Name()

	size, err := io.Copy(tmp, rdr)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", 0, &types.ExportError{Ref: t.ref, Cause: err}
	}
	return tmpPath, size, nil
}

func (t *task) fail(res *types.TaskResult, err error) *types.TaskResult {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = types.ErrCancelled
	}
	res.State = types.StateFailed
	res.Err = err
	return res
}

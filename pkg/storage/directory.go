package storage

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/downlocal/downlocal/pkg/log"
	"github.com/downlocal/downlocal/pkg/types"
	"github.com/downlocal/downlocal/pkg/util"
)

// scratchDirName is the subdirectory of the storage root holding in-progress
// temporary files. Nothing under it is ever a finished artifact.
const scratchDirName = ".scratch"

// Directory manages the local filesystem area holding finished artifacts.
// The invariant it maintains is that a path directly under the root is
// either absent or a fully written artifact, never a partial one. All
// writes happen in the scratch area and become visible through a single
// rename.
type Directory struct {
	root string
}

// New ensures the storage root and its scratch area exist and are writable.
// Failures here are fatal to the whole run, no task could succeed without
// a usable root.
func New(root string) (*Directory, error) {
	scratch := filepath.Join(root, scratchDirName)
	if err := os.MkdirAll(scratch, 0755); err != nil {
		return nil, &types.StorageError{Path: root, Cause: err}
	}
	probe, err := ioutil.TempFile(scratch, ".probe-")
	if err != nil {
		return nil, &types.StorageError{Path: root, Cause: err}
	}
	probe.Close()
	os.Remove(probe.Name())
	return &Directory{root: root}, nil
}

// Root returns the storage root path.
func (d *Directory) Root() string { return d.root }

func (d *Directory) scratch() string { return filepath.Join(d.root, scratchDirName) }

// TempFile returns a uniquely named file in the scratch area for an
// in-progress export. Callers own the file and must remove it on every
// failure path.
func (d *Directory) TempFile(prefix string) (*os.File, error) {
	f, err := ioutil.TempFile(d.scratch(), prefix+"-")
	if err != nil {
		return nil, &types.StorageError{Path: d.scratch(), Cause: err}
	}
	return f, nil
}

// ArtifactPath returns the final path for the given artifact name.
func (d *Directory) ArtifactPath(name string) string {
	return filepath.Join(d.root, name)
}

// Exists reports whether a finished artifact exists under the given name.
func (d *Directory) Exists(name string) bool {
	return util.FileExists(d.ArtifactPath(name))
}

// Promote renames a finished temporary file to its final artifact name.
// The rename is the single externally visible commit point, a crash before
// it leaves no trace under the final name and a crash after leaves a
// complete artifact.
func (d *Directory) Promote(tmpPath, name string) (string, error) {
	final := d.ArtifactPath(name)
	if err := os.Rename(tmpPath, final); err != nil {
		return "", &types.StorageError{Path: final, Cause: err}
	}
	return final, nil
}

// CleanScratch removes scratch entries older than the given duration. It is
// called at the start of each run to reap temp files orphaned by earlier
// crashed or killed runs, and with a zero duration after a cancelled run to
// remove everything.
func (d *Directory) CleanScratch(olderThan time.Duration) error {
	entries, err := ioutil.ReadDir(d.scratch())
	if err != nil {
		return &types.StorageError{Path: d.scratch(), Cause: err}
	}
	cutoff := time.Now().Add(-olderThan)
	for _, entry := range entries {
		if entry.ModTime().After(cutoff) {
			continue
		}
		stale := filepath.Join(d.scratch(), entry.Name())
		log.Debugf("Removing stale scratch entry %q\n", stale)
		if err := os.Remove(stale); err != nil {
			log.Warning("Could not remove stale scratch entry:", err)
		}
	}
	return nil
}

// Artifacts returns the names of all finished artifacts in the root,
// sorted for deterministic output.
func (d *Directory) Artifacts() ([]string, error) {
	entries, err := ioutil.ReadDir(d.root)
	if err != nil {
		return nil, &types.StorageError{Path: d.root, Cause: err}
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if entry.Name() == LoadScriptName {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

package archive

import (
	"archive/zip"
	"io"
	"os"
	"time"

	"github.com/downlocal/downlocal/pkg/types"
)

// Compress writes a zip archive next to src containing it as the single
// entry entryName, and returns the path of the packaged file. It knows
// nothing about image semantics, src is an opaque file. Any partially
// written output is removed on failure.
func Compress(src, entryName string) (string, error) {
	dst := src + ".zip"
	packed, err := compress(src, dst, entryName)
	if err != nil {
		os.Remove(dst)
		return "", &types.PackagingError{Cause: err}
	}
	return packed, nil
}

func compress(src, dst, entryName string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	hdr := &zip.FileHeader{
		Name:     entryName,
		Method:   zip.Deflate,
		Modified: time.Now(),
	}
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(w, in); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return dst, nil
}

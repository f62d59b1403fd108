package types

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultTag is applied to references that do not specify a tag.
const DefaultTag = "latest"

var (
	repositoryRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._:/-]*$`)
	tagRegex        = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9._-]*$`)
)

// ImageRef identifies a single container image by repository and tag. Once
// parsed from configuration it is never mutated.
type ImageRef struct {
	Repository string
	Tag        string
}

// ParseImageRef parses a "name[:tag]" string into an ImageRef. The tag
// defaults to "latest". A digest suffix and a leading docker.io prefix are
// stripped so that the reference matches what the daemon reports after a pull.
func ParseImageRef(image string) (*ImageRef, error) {
	image = strings.TrimSpace(image)
	image = strings.TrimPrefix(image, "docker.io/")
	if idx := strings.Index(image, "@"); idx >= 0 {
		image = image[:idx]
	}
	ref := &ImageRef{Repository: image, Tag: DefaultTag}
	if idx := strings.LastIndex(image, ":"); idx >= 0 && !strings.Contains(image[idx+1:], "/") {
		ref.Repository = image[:idx]
		ref.Tag = image[idx+1:]
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return ref, nil
}

// Validate returns a ConfigError if either field is empty or contains
// characters illegal in a registry reference.
func (r *ImageRef) Validate() error {
	if r.Repository == "" || !repositoryRegex.MatchString(r.Repository) {
		return &ConfigError{Err: fmt.Errorf("invalid image repository %q", r.Repository)}
	}
	if r.Tag == "" || !tagRegex.MatchString(r.Tag) {
		return &ConfigError{Err: fmt.Errorf("invalid image tag %q for repository %q", r.Tag, r.Repository)}
	}
	return nil
}

// String returns the repository:tag form used for daemon operations and as
// the uniqueness key when deduplicating a reference list.
func (r *ImageRef) String() string {
	return fmt.Sprintf("%s:%s", r.Repository, r.Tag)
}

// PullReference returns the reference used to pull this image through the
// given registry mirror. Official images live under the library/ namespace
// on mirrors, the same as on the hub itself. A scheme prefix or trailing
// slash on the mirror is tolerated and stripped. An empty mirror leaves the
// reference unchanged.
func (r *ImageRef) PullReference(mirror string) string {
	if mirror == "" {
		return r.String()
	}
	mirror = strings.TrimPrefix(mirror, "https://")
	mirror = strings.TrimPrefix(mirror, "http://")
	mirror = strings.TrimSuffix(mirror, "/")
	if !strings.Contains(r.Repository, "/") {
		return fmt.Sprintf("%s/library/%s:%s", mirror, r.Repository, r.Tag)
	}
	return fmt.Sprintf("%s/%s:%s", mirror, r.Repository, r.Tag)
}

// ArtifactName returns the deterministic file name for this reference in the
// storage directory. Path separators and port colons in the repository are
// replaced so that the name is a single path element.
func (r *ImageRef) ArtifactName(compressed bool) string {
	sanitized := strings.NewReplacer("/", "_", ":", "_").Replace(r.Repository)
	ext := "tar"
	if compressed {
		ext = "zip"
	}
	return fmt.Sprintf("%s__%s.%s", sanitized, r.Tag, ext)
}

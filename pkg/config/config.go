package config

import (
	"io/ioutil"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/downlocal/downlocal/pkg/types"
)

// RemotePathEnvVar is the environment variable that sets the default
// storage directory.
const RemotePathEnvVar = "REMOTE_PATH"

// DefaultStoragePath is used when REMOTE_PATH is not set and no flag or
// config value overrides it.
const DefaultStoragePath = "/tmp/docker-images"

// Config is the on-disk configuration for downlocal runs. All fields are
// optional, values given on the command line take precedence.
type Config struct {
	// The images to acquire, in "name[:tag]" form
	Images []string `yaml:"images"`
	// The directory where finished artifacts are stored
	StoragePath string `yaml:"storagePath"`
	// The number of images to acquire in parallel
	Concurrency int `yaml:"concurrency"`
	// Maximum pull attempts per image for transient failures
	Retries int `yaml:"retries"`
	// Compress exported archives with zip
	Compress bool `yaml:"compress"`
	// Replace artifacts that already exist in the storage directory
	OverwriteExisting bool `yaml:"overwriteExisting"`
	// The platform to pull images for
	Arch string `yaml:"arch"`
	// Registry mirrors to pull through, in preference order. The first
	// entry is used unless a mirror is given on the command line.
	RegistryMirrors []string `yaml:"registryMirrors"`
}

// DefaultStorageRoot returns the storage directory from the environment, or
// the built-in default.
func DefaultStorageRoot() string {
	if path := os.Getenv(RemotePathEnvVar); path != "" {
		return path
	}
	return DefaultStoragePath
}

// Load reads and parses the YAML configuration at the given path.
func Load(path string) (*Config, error) {
	body, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, &types.ConfigError{Err: err}
	}
	conf := &Config{}
	if err := yaml.Unmarshal(body, conf); err != nil {
		return nil, &types.ConfigError{Err: err}
	}
	return conf, nil
}

// ParseImageList converts raw image strings into validated references.
// Blank entries and comment lines are ignored, the way image-list files
// commonly mix both. Any invalid reference aborts the whole run.
func ParseImageList(images []string) ([]*types.ImageRef, error) {
	refs := make([]*types.ImageRef, 0, len(images))
	for _, image := range images {
		image = strings.TrimSpace(image)
		if image == "" || strings.HasPrefix(image, "#") {
			continue
		}
		ref, err := types.ParseImageRef(image)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

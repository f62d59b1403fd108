package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/downlocal/downlocal/pkg/config"
	"github.com/downlocal/downlocal/pkg/engine"
	"github.com/downlocal/downlocal/pkg/fetch"
	"github.com/downlocal/downlocal/pkg/log"
	"github.com/downlocal/downlocal/pkg/storage"
	"github.com/downlocal/downlocal/pkg/types"
)

var (
	pullConfigFile  string
	pullConcurrency int
	pullRetries     int
	pullCompress    bool
	pullOverwrite   bool
	pullArch        string
	pullMirror      string
	pullKeepImages  bool
	pullVerify      bool
)

func init() {
	pullCmd.Flags().StringVarP(&pullConfigFile, "config", "c", "", "Path to a YAML file providing images and options")
	pullCmd.Flags().IntVarP(&pullConcurrency, "concurrency", "j", fetch.DefaultConcurrency(), "Number of images to acquire in parallel")
	pullCmd.Flags().IntVar(&pullRetries, "retries", fetch.DefaultMaxAttempts, "Maximum pull attempts per image for transient failures")
	pullCmd.Flags().BoolVarP(&pullCompress, "compress", "z", false, "Compress exported archives with zip")
	pullCmd.Flags().BoolVar(&pullOverwrite, "overwrite", false, "Replace artifacts that already exist in the storage directory")
	pullCmd.Flags().StringVarP(&pullArch, "arch", "a", "", "The platform to pull images for (e.g. linux/arm64)")
	pullCmd.Flags().StringVarP(&pullMirror, "mirror", "m", "", "A registry mirror to pull through, images are retagged to their upstream reference")
	pullCmd.Flags().BoolVar(&pullKeepImages, "keep-images", false, "Keep pulled images in the local engine after export")
	pullCmd.Flags().BoolVar(&pullVerify, "verify", false, "Record the sha256 checksum of every exported archive in the report")

	rootCmd.AddCommand(pullCmd)
}

var pullCmd = &cobra.Command{
	Use:   "pull [IMAGE...]",
	Short: "Pull images and archive them into the storage directory",
	Long: `
Pull acquires every image given as an argument or listed in the configuration file,
exports it to a tar archive, and promotes the finished artifact into the storage
directory. Failures are isolated per image, the run always continues to completion
and exits non-zero if any image could not be archived.
`,
	RunE: runPull,
}

func runPull(cmd *cobra.Command, args []string) error {
	opts := &types.PullOptions{
		StoragePath:       storagePath,
		Concurrency:       pullConcurrency,
		Retries:           pullRetries,
		Compress:          pullCompress,
		OverwriteExisting: pullOverwrite,
		Arch:              pullArch,
		Mirror:            pullMirror,
		KeepImages:        pullKeepImages,
		Verify:            pullVerify,
	}

	images := args
	if pullConfigFile != "" {
		conf, err := config.Load(pullConfigFile)
		if err != nil {
			return err
		}
		images = append(conf.Images, images...)
		applyConfig(cmd, conf, opts)
	}
	if len(images) == 0 {
		return errors.New("no images provided, pass them as arguments or via --config")
	}
	refs, err := config.ParseImageList(images)
	if err != nil {
		return err
	}

	dir, err := storage.New(opts.StoragePath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupts)
	go func() {
		<-interrupts
		log.Warning("Interrupt received, cancelling the run")
		cancel()
	}()

	report := fetch.New(engine.New(opts.Arch, opts.Mirror), dir, opts).Run(ctx, refs)
	printReport(report)

	if report.HasFailures() {
		_, failed, _ := report.Counts()
		return fmt.Errorf("%d of %d images could not be archived", failed, len(report.Results))
	}

	if _, err := dir.WriteLoadScript(); err != nil {
		log.Warning("Could not write the load helper script:", err)
	} else {
		log.Infof("Run `sh %s` on the target machine to load the images\n", dir.ArtifactPath(storage.LoadScriptName))
	}
	return nil
}

// applyConfig fills opts from the configuration file for every option the
// user did not set explicitly on the command line.
func applyConfig(cmd *cobra.Command, conf *config.Config, opts *types.PullOptions) {
	flags := cmd.Flags()
	if conf.StoragePath != "" && !rootCmd.PersistentFlags().Changed("storage-path") {
		opts.StoragePath = conf.StoragePath
	}
	if conf.Concurrency > 0 && !flags.Changed("concurrency") {
		opts.Concurrency = conf.Concurrency
	}
	if conf.Retries > 0 && !flags.Changed("retries") {
		opts.Retries = conf.Retries
	}
	if !flags.Changed("compress") {
		opts.Compress = opts.Compress || conf.Compress
	}
	if !flags.Changed("overwrite") {
		opts.OverwriteExisting = opts.OverwriteExisting || conf.OverwriteExisting
	}
	if conf.Arch != "" && !flags.Changed("arch") {
		opts.Arch = conf.Arch
	}
	if len(conf.RegistryMirrors) > 0 && !flags.Changed("mirror") {
		opts.Mirror = conf.RegistryMirrors[0]
	}
}

func printReport(report *types.RunReport) {
	succeeded, failed, skipped := report.Counts()
	log.Infof("Run finished in %s: %d succeeded, %d failed, %d skipped\n",
		report.Duration.Round(time.Millisecond), succeeded, failed, skipped)
	for _, res := range report.Results {
		switch res.State {
		case types.StateSucceeded:
			if res.SHA256 != "" {
				log.Infof("  %s -> %s (%d bytes, %d attempts, sha256 %s)\n", res.Ref, res.ArtifactPath, res.Size, res.Attempts, res.SHA256)
			} else {
				log.Infof("  %s -> %s (%d bytes, %d attempts)\n", res.Ref, res.ArtifactPath, res.Size, res.Attempts)
			}
		case types.StateSkipped:
			log.Infof("  %s already archived at %s\n", res.Ref, res.ArtifactPath)
		case types.StateFailed:
			log.Errorf("  %s: %s\n", res.Ref, res.Err)
		}
	}
}

package fetch

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/downlocal/downlocal/pkg/storage"
	"github.com/downlocal/downlocal/pkg/types"
)

var _ = Describe("Orchestrator", func() {

	var (
		tmpDir     string
		dir        *storage.Directory
		downloader *fakeDownloader
		opts       *types.PullOptions
		refs       []*types.ImageRef
		report     *types.RunReport
		runCtx     context.Context
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = ioutil.TempDir("", "")
		Expect(err).ToNot(HaveOccurred())
		dir, err = storage.New(tmpDir)
		Expect(err).ToNot(HaveOccurred())
		downloader = newFakeDownloader()
		opts = &types.PullOptions{StoragePath: tmpDir, Concurrency: 2}
		refs = mustParseRefs("nginx:1.19", "library/redis:6")
		runCtx = context.Background()
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	JustBeforeEach(func() {
		o := New(downloader, dir, opts)
		o.retry = fastRetry(o.retry.MaxAttempts)
		report = o.Run(runCtx, refs)
	})

	Context("When every pull succeeds", func() {
		It("Should report every reference as succeeded", func() {
			Expect(report.Results).To(HaveLen(2))
			for _, res := range report.Results {
				Expect(res.State).To(Equal(types.StateSucceeded))
				Expect(res.Attempts).To(Equal(1))
			}
			Expect(report.HasFailures()).To(BeFalse())
		})
		It("Should promote a non-empty artifact under the deterministic name", func() {
			for _, res := range report.Results {
				Expect(res.ArtifactPath).To(Equal(filepath.Join(tmpDir, res.Ref.ArtifactName(false))))
				stat, err := os.Stat(res.ArtifactPath)
				Expect(err).ToNot(HaveOccurred())
				Expect(stat.Size()).To(BeNumerically(">", 0))
				Expect(res.Size).To(Equal(stat.Size()))
			}
		})
		It("Should keep results in input order", func() {
			Expect(report.Results[0].Ref.String()).To(Equal("nginx:1.19"))
			Expect(report.Results[1].Ref.String()).To(Equal("library/redis:6"))
		})
		It("Should remove the engine-side copies", func() {
			Expect(downloader.removed).To(ConsistOf("nginx:1.19", "library/redis:6"))
		})
		It("Should leave no temporary files behind", func() {
			entries, err := ioutil.ReadDir(filepath.Join(tmpDir, ".scratch"))
			Expect(err).ToNot(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})
	})

	Context("When the input contains duplicate references", func() {
		BeforeEach(func() {
			refs = mustParseRefs("nginx:1.19", "library/redis:6", "nginx:1.19", "docker.io/nginx:1.19")
		})
		It("Should report each unique reference exactly once", func() {
			Expect(report.Results).To(HaveLen(2))
			Expect(downloader.pullCalls["nginx:1.19"]).To(Equal(1))
		})
	})

	Context("When a pull fails transiently twice and then succeeds", func() {
		BeforeEach(func() {
			downloader.transientFailures["nginx:1.19"] = 2
		})
		It("Should succeed after exactly three attempts", func() {
			Expect(report.Results[0].State).To(Equal(types.StateSucceeded))
			Expect(report.Results[0].Attempts).To(Equal(3))
		})
		It("Should not affect the other reference", func() {
			Expect(report.Results[1].State).To(Equal(types.StateSucceeded))
			Expect(report.Results[1].Attempts).To(Equal(1))
		})
	})

	Context("When a pull fails permanently", func() {
		BeforeEach(func() {
			downloader.permanentFailures["nginx:1.19"] = true
		})
		It("Should fail after a single attempt without retrying", func() {
			Expect(report.Results[0].State).To(Equal(types.StateFailed))
			Expect(report.Results[0].Err).To(HaveOccurred())
			Expect(downloader.pullCalls["nginx:1.19"]).To(Equal(1))
		})
		It("Should leave no file under the final artifact name", func() {
			Expect(filepath.Join(tmpDir, refs[0].ArtifactName(false))).ToNot(BeAnExistingFile())
		})
		It("Should mark the run as failed while the other task succeeds", func() {
			Expect(report.HasFailures()).To(BeTrue())
			Expect(report.Results[1].State).To(Equal(types.StateSucceeded))
			Expect(report.Failures()).To(HaveLen(1))
		})
	})

	Context("When retries are exhausted by transient failures", func() {
		BeforeEach(func() {
			downloader.transientFailures["nginx:1.19"] = 10
			opts.Retries = 3
		})
		It("Should fail after the configured attempt budget", func() {
			Expect(report.Results[0].State).To(Equal(types.StateFailed))
			Expect(report.Results[0].Attempts).To(Equal(3))
		})
	})

	Context("When an export fails", func() {
		BeforeEach(func() {
			downloader.exportFailures["nginx:1.19"] = true
		})
		It("Should fail the task without retrying the export", func() {
			Expect(report.Results[0].State).To(Equal(types.StateFailed))
			Expect(downloader.exportCalls["nginx:1.19"]).To(Equal(1))
		})
		It("Should leave no file under the final artifact name", func() {
			Expect(filepath.Join(tmpDir, refs[0].ArtifactName(false))).ToNot(BeAnExistingFile())
		})
	})

	Context("When an artifact already exists and overwriting is off", func() {
		BeforeEach(func() {
			existing := filepath.Join(tmpDir, refs[0].ArtifactName(false))
			Expect(ioutil.WriteFile(existing, []byte("previous archive"), 0644)).To(Succeed())
		})
		It("Should skip the reference without contacting the engine", func() {
			Expect(report.Results[0].State).To(Equal(types.StateSkipped))
			Expect(downloader.pullCalls["nginx:1.19"]).To(BeZero())
			Expect(downloader.exportCalls["nginx:1.19"]).To(BeZero())
		})
		It("Should leave the existing artifact untouched", func() {
			body, err := ioutil.ReadFile(filepath.Join(tmpDir, refs[0].ArtifactName(false)))
			Expect(err).ToNot(HaveOccurred())
			Expect(string(body)).To(Equal("previous archive"))
		})
		It("Should not count the skip as a failure", func() {
			Expect(report.HasFailures()).To(BeFalse())
		})
	})

	Context("When an artifact already exists and overwriting is on", func() {
		BeforeEach(func() {
			opts.OverwriteExisting = true
			existing := filepath.Join(tmpDir, refs[0].ArtifactName(false))
			Expect(ioutil.WriteFile(existing, []byte("previous archive"), 0644)).To(Succeed())
		})
		It("Should replace the artifact with the fresh export", func() {
			Expect(report.Results[0].State).To(Equal(types.StateSucceeded))
			body, err := ioutil.ReadFile(filepath.Join(tmpDir, refs[0].ArtifactName(false)))
			Expect(err).ToNot(HaveOccurred())
			Expect(body).To(Equal(downloader.exportContents))
		})
	})

	Context("When compression is enabled", func() {
		BeforeEach(func() {
			opts.Compress = true
		})
		It("Should promote zip artifacts containing the raw export", func() {
			res := report.Results[0]
			Expect(res.State).To(Equal(types.StateSucceeded))
			Expect(res.ArtifactPath).To(HaveSuffix(".zip"))

			zr, err := zip.OpenReader(res.ArtifactPath)
			Expect(err).ToNot(HaveOccurred())
			defer zr.Close()
			Expect(zr.File).To(HaveLen(1))
			Expect(zr.File[0].Name).To(Equal(res.Ref.ArtifactName(false)))
		})
		It("Should discard the raw export from the scratch area", func() {
			entries, err := ioutil.ReadDir(filepath.Join(tmpDir, ".scratch"))
			Expect(err).ToNot(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})
	})

	Context("When verification is requested", func() {
		BeforeEach(func() {
			opts.Verify = true
		})
		It("Should record the sha256 of the artifact", func() {
			expected := fmt.Sprintf("%x", sha256.Sum256(downloader.exportContents))
			Expect(report.Results[0].SHA256).To(Equal(expected))
		})
	})

	Context("When keeping images is requested", func() {
		BeforeEach(func() {
			opts.KeepImages = true
		})
		It("Should not remove any engine-side copies", func() {
			Expect(downloader.removed).To(BeEmpty())
		})
	})

	Context("When the run is cancelled while a pull is still retrying", func() {
		BeforeEach(func() {
			// Keep the first reference stuck in transient retries until
			// the cancellation lands mid-run.
			downloader.transientFailures["nginx:1.19"] = 1000
			opts.Retries = 1000
			ctx, cancel := context.WithCancel(context.Background())
			time.AfterFunc(30*time.Millisecond, cancel)
			runCtx = ctx
		})
		It("Should report the in-flight reference as failed with the cancellation cause", func() {
			Expect(report.Results[0].State).To(Equal(types.StateFailed))
			Expect(report.Results[0].Err).To(MatchError(types.ErrCancelled))
		})
		It("Should leave the unaffected reference's promoted artifact intact", func() {
			Expect(report.Results[1].State).To(Equal(types.StateSucceeded))
			Expect(report.Results[1].ArtifactPath).To(BeAnExistingFile())
		})
		It("Should leave zero orphaned files in the scratch area", func() {
			entries, err := ioutil.ReadDir(filepath.Join(tmpDir, ".scratch"))
			Expect(err).ToNot(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})
	})

	Context("When the run is cancelled before it starts", func() {
		BeforeEach(func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			runCtx = ctx
		})
		It("Should report every reference as failed with the cancellation cause", func() {
			for _, res := range report.Results {
				Expect(res.State).To(Equal(types.StateFailed))
				Expect(res.Err).To(MatchError(types.ErrCancelled))
			}
		})
		It("Should leave zero orphaned files in the scratch area", func() {
			entries, err := ioutil.ReadDir(filepath.Join(tmpDir, ".scratch"))
			Expect(err).ToNot(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})
	})
})

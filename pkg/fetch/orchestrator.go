package fetch

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/downlocal/downlocal/pkg/log"
	"github.com/downlocal/downlocal/pkg/storage"
	"github.com/downlocal/downlocal/pkg/types"
)

// scratchMaxAge is how old an orphaned scratch entry must be before the
// pre-run cleanup reaps it. Entries younger than this may belong to a
// concurrently running instance.
const scratchMaxAge = time.Hour

// Orchestrator drives a bounded pool of acquisition workers over an image
// reference list and aggregates their terminal outcomes into a RunReport.
type Orchestrator struct {
	downloader types.ImageDownloader
	dir        *storage.Directory
	opts       *types.PullOptions
	retry      *RetryPolicy
}

// New returns an Orchestrator acquiring through the given downloader into
// the given storage directory.
func New(downloader types.ImageDownloader, dir *storage.Directory, opts *types.PullOptions) *Orchestrator {
	return &Orchestrator{
		downloader: downloader,
		dir:        dir,
		opts:       opts,
		retry:      NewRetryPolicy(opts.Retries),
	}
}

// DefaultConcurrency bounds the worker pool when no explicit concurrency is
// configured. It stays small to avoid overwhelming the daemon and network.
func DefaultConcurrency() int {
	if n := runtime.NumCPU(); n < 4 {
		return n
	}
	return 4
}

// Run acquires every reference in the list and returns the aggregated
// report, ordered by the deduplicated input order. One task failing never
// aborts or blocks the others, the run always continues to completion for
// all tasks. Cancelling the context abandons in-flight work, reports the
// unfinished references as failed, cleans the scratch area and leaves
// already promoted artifacts intact.
func (o *Orchestrator) Run(ctx context.Context, refs []*types.ImageRef) *types.RunReport {
	start := time.Now()
	refs = dedupeRefs(refs)

	if err := o.dir.CleanScratch(scratchMaxAge); err != nil {
		log.Warning("Could not clean the scratch area:", err)
	}

	concurrency := o.opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency()
	}
	if concurrency > len(refs) {
		concurrency = len(refs)
	}
	log.Debugf("Acquiring %d images with %d workers\n", len(refs), concurrency)

	queue := make(chan *types.ImageRef)
	results := make(chan *types.TaskResult, len(refs))

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ref := range queue {
				if ctx.Err() != nil {
					results <- &types.TaskResult{Ref: ref, State: types.StateFailed, Err: types.ErrCancelled}
					continue
				}
				t := &task{
					ref:        ref,
					downloader: o.downloader,
					dir:        o.dir,
					opts:       o.opts,
					retry:      o.retry,
				}
				results <- t.run(ctx)
			}
		}()
	}

	for _, ref := range refs {
		queue <- ref
	}
	close(queue)
	wg.Wait()
	close(results)

	byKey := make(map[string]*types.TaskResult, len(refs))
	for res := range results {
		byKey[res.Ref.String()] = res
	}

	if ctx.Err() != nil {
		if err := o.dir.CleanScratch(0); err != nil {
			log.Warning("Could not clean the scratch area after cancellation:", err)
		}
	}

	report := &types.RunReport{Duration: time.Since(start)}
	for _, ref := range refs {
		report.Results = append(report.Results, byKey[ref.String()])
	}
	return report
}

func dedupeRefs(refs []*types.ImageRef) []*types.ImageRef {
	seen := make(map[string]struct{}, len(refs))
	out := make([]*types.ImageRef, 0, len(refs))
	for _, ref := range refs {
		if _, ok := seen[ref.String()]; ok {
			log.Debugf("Skipping duplicate reference %s\n", ref)
			continue
		}
		seen[ref.String()] = struct{}{}
		out = append(out, ref)
	}
	return out
}

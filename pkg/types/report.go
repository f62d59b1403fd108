package types

import "time"

// TaskState represents the state of a single acquisition task.
type TaskState string

const (
	// StatePending is the state of a task that has not started yet.
	StatePending TaskState = "pending"
	// StatePulling is the state of a task fetching its image from the engine.
	StatePulling TaskState = "pulling"
	// StateExporting is the state of a task serializing its image to disk.
	StateExporting TaskState = "exporting"
	// StateCompressing is the state of a task packaging its raw export.
	StateCompressing TaskState = "compressing"
	// StatePromoting is the state of a task renaming its finished artifact
	// into place.
	StatePromoting TaskState = "promoting"
	// StateSucceeded is the terminal state of a task whose artifact was
	// promoted into the storage directory.
	StateSucceeded TaskState = "succeeded"
	// StateFailed is the terminal state of a task that could not produce
	// its artifact.
	StateFailed TaskState = "failed"
	// StateSkipped is the terminal state of a task whose artifact already
	// existed and overwriting was not requested.
	StateSkipped TaskState = "skipped"
)

// TaskResult is the terminal outcome of acquiring one image reference.
type TaskResult struct {
	// The reference the task acquired
	Ref *ImageRef
	// The terminal state, one of succeeded, failed or skipped
	State TaskState
	// The number of pull attempts that were made
	Attempts int
	// The path of the finished artifact, populated on success and skip
	ArtifactPath string
	// The size of the finished artifact in bytes, populated on success
	Size int64
	// The sha256 checksum of the artifact, populated when verification
	// was requested
	SHA256 string
	// The terminal error, populated on failure
	Err error
}

// RunReport is the aggregate result of an acquisition run. Results are
// ordered by the deduplicated input reference order, not completion order,
// so output stays deterministic.
type RunReport struct {
	Results  []*TaskResult
	Duration time.Duration
}

// Counts returns the number of succeeded, failed and skipped tasks.
func (r *RunReport) Counts() (succeeded, failed, skipped int) {
	for _, res := range r.Results {
		switch res.State {
		case StateSucceeded:
			succeeded++
		case StateFailed:
			failed++
		case StateSkipped:
			skipped++
		}
	}
	return
}

// HasFailures reports whether at least one task ended failed. The process
// exits non-zero if and only if this is true.
func (r *RunReport) HasFailures() bool {
	_, failed, _ := r.Counts()
	return failed > 0
}

// Failures returns the results of all failed tasks.
func (r *RunReport) Failures() []*TaskResult {
	out := make([]*TaskResult, 0)
	for _, res := range r.Results {
		if res.State == StateFailed {
			out = append(out, res)
		}
	}
	return out
}

package pipeline

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgnsrekt/batchtts/tts"
)

// taskCounter numbers generated task ids for the life of the process.
var taskCounter atomic.Uint64

func nextTaskID() string {
	return fmt.Sprintf("task-%d", taskCounter.Add(1))
}

// Task is one submitted chunk travelling through the stages. A task sits in
// exactly one queue at a time.
type Task struct {
	ID        string
	Chunk     tts.Chunk
	Submitted time.Time

	err    error // preprocess failure; the task skips the engine
	result tts.Result
}

// SubmitOption customizes a submission.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	id       string
	index    int
	hasIndex bool
	boundary string
}

// WithTaskID supplies the task id instead of generating one.
func WithTaskID(id string) SubmitOption {
	return func(o *submitOptions) { o.id = id }
}

// WithIndex sets the chunk index reported on the result.
func WithIndex(index int) SubmitOption {
	return func(o *submitOptions) {
		o.index = index
		o.hasIndex = true
	}
}

// WithBoundary records the chunk's boundary type.
func WithBoundary(boundary string) SubmitOption {
	return func(o *submitOptions) { o.boundary = boundary }
}

// ShutdownReport describes how a pipeline stopped.
type ShutdownReport struct {
	// Graceful is false when the join timeout expired and workers were
	// canceled.
	Graceful bool
	// Failed holds a result for every task that never completed. Each Err
	// wraps tts.ErrShutdown.
	Failed []tts.Result
	// Undelivered holds completed results that could not be handed to the
	// results queue before workers were canceled.
	Undelivered []tts.Result
	// Err is the first worker error, if any.
	Err     error
	Elapsed time.Duration
}

// Lost returns every result the caller did not receive through GetResult
// because of shutdown.
func (r ShutdownReport) Lost() int {
	return len(r.Failed) + len(r.Undelivered)
}

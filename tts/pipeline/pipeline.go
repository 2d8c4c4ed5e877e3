package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/batchtts/internal/queue"
	"github.com/dgnsrekt/batchtts/tts"
	"github.com/dgnsrekt/batchtts/tts/audio"
	"github.com/dgnsrekt/batchtts/tts/batch"
)

// Pipeline streams tasks through three stages. Only the synthesize stage
// touches the engine.
type Pipeline struct {
	opts       Options
	exec       *batch.Executor
	grouper    *batch.Grouper
	sampleRate int
	runID      string
	log        *log.Logger

	intake  *queue.Queue[*Task]
	synth   *queue.Queue[*Task]
	post    *queue.Queue[*Task]
	results *queue.Queue[tts.Result]

	// pending maps task id to *Task from submit until delivery. Removing
	// an entry is the right to deliver that task's result.
	pending sync.Map
	seq     atomic.Int64

	// startMu orders Start against Shutdown; cancel is set under it.
	startMu  sync.Mutex
	started  atomic.Bool
	stopping atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
	waitErr  error

	shutdownOnce sync.Once
	report       ShutdownReport

	strandedMu sync.Mutex
	stranded   []tts.Result

	stats counters
}

// New creates a pipeline that owns engine. The caller must not use engine
// directly while the pipeline runs.
func New(engine tts.Engine, opts Options) *Pipeline {
	opts = opts.normalized()
	runID := uuid.NewString()

	sr := engine.SampleRate()
	if sr <= 0 {
		sr = audio.DefaultSampleRate
	}

	return &Pipeline{
		opts:       opts,
		exec:       batch.NewExecutor(engine, batch.ExecutorOptions{Cache: opts.Cache, SampleRate: sr}),
		grouper:    batch.NewGrouper(opts.Grouping),
		sampleRate: sr,
		runID:      runID,
		log:        log.WithPrefix("pipeline").With("run", runID[:8]),
		intake:     queue.New[*Task](opts.QueueSize),
		synth:      queue.New[*Task](opts.QueueSize),
		post:       queue.New[*Task](opts.QueueSize),
		results:    queue.New[tts.Result](opts.QueueSize),
		done:       make(chan struct{}),
	}
}

// RunID identifies this pipeline in logs and metrics.
func (p *Pipeline) RunID() string { return p.runID }

// Options returns the effective options.
func (p *Pipeline) Options() Options { return p.opts }

// Start launches the stage workers. Canceling ctx stops them without
// draining; use Shutdown for an orderly stop.
func (p *Pipeline) Start(ctx context.Context) error {
	p.startMu.Lock()
	defer p.startMu.Unlock()

	if p.stopping.Load() {
		return tts.ErrShutdown
	}
	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("pipeline %s already started", p.runID)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return p.preprocessLoop(gctx) })
	g.Go(func() error { return p.synthesizeLoop(gctx) })
	g.Go(func() error { return p.postprocessLoop(gctx) })

	go func() {
		p.waitErr = g.Wait()
		close(p.done)
	}()

	p.log.Info("pipeline started",
		"queue", p.opts.QueueSize,
		"max_batch", p.opts.MaxBatch,
		"flush", p.opts.FlushTimeout,
		"engine", p.exec.Engine().Name())
	return nil
}

// Submit queues text for synthesis with params and returns the task id.
// Without WithIndex the result index is the submission sequence number.
func (p *Pipeline) Submit(ctx context.Context, text string, params tts.Parameters, opts ...SubmitOption) (string, error) {
	return p.submit(ctx, tts.NewChunk(0, text, params), false, opts)
}

// SubmitChunk queues a chunk, keeping its index and parameter mapping. A
// chunk with incomplete parameters is synthesized alone with defaults.
func (p *Pipeline) SubmitChunk(ctx context.Context, c tts.Chunk, opts ...SubmitOption) (string, error) {
	return p.submit(ctx, c, true, opts)
}

func (p *Pipeline) submit(ctx context.Context, c tts.Chunk, keepIndex bool, opts []SubmitOption) (string, error) {
	if !p.started.Load() {
		return "", tts.ErrNotStarted
	}
	if p.stopping.Load() {
		p.stats.rejected.Add(1)
		return "", tts.ErrShutdown
	}

	var so submitOptions
	for _, o := range opts {
		o(&so)
	}

	seq := p.seq.Add(1) - 1
	if !keepIndex {
		c.Index = int(seq)
	}
	if so.hasIndex {
		c.Index = so.index
	}
	if so.boundary != "" {
		c.Boundary = so.boundary
	}

	id := so.id
	if id == "" {
		id = nextTaskID()
	}

	t := &Task{ID: id, Chunk: c, Submitted: time.Now()}
	if _, loaded := p.pending.LoadOrStore(id, t); loaded {
		p.stats.rejected.Add(1)
		return "", fmt.Errorf("%w: %s", tts.ErrDuplicateTask, id)
	}

	if err := p.intake.Put(ctx, t, p.opts.SubmitTimeout); err != nil {
		p.pending.CompareAndDelete(id, t)
		p.stats.rejected.Add(1)
		if errors.Is(err, queue.ErrQueueClosed) {
			err = tts.ErrShutdown
		}
		p.log.Debug("submit rejected", "task", id, "error", err)
		return "", fmt.Errorf("submit %s: %w", id, err)
	}

	p.stats.submitted.Add(1)
	return id, nil
}

// GetResult returns the next delivered result, waiting up to timeout. A
// zero timeout polls and a negative one waits until a result arrives or the
// pipeline has shut down and drained. Results arrive in completion order.
func (p *Pipeline) GetResult(timeout time.Duration) (tts.Result, bool) {
	r, err := p.results.Get(context.Background(), timeout)
	return r, err == nil
}

// Shutdown stops intake, lets the stages drain for up to timeout (the
// configured JoinTimeout when timeout <= 0), then cancels whatever is left.
// Every task that did not complete is returned as a failed result. Repeated
// calls return the first report.
func (p *Pipeline) Shutdown(timeout time.Duration) ShutdownReport {
	p.shutdownOnce.Do(func() {
		if timeout <= 0 {
			timeout = p.opts.JoinTimeout
		}
		p.report = p.shutdown(timeout)
	})
	return p.report
}

func (p *Pipeline) shutdown(timeout time.Duration) ShutdownReport {
	start := time.Now()
	report := ShutdownReport{Graceful: true}

	p.stopping.Store(true)
	p.intake.Close()
	p.log.Debug("shutdown requested", "timeout", timeout, "queued", p.intake.Len())

	// Start either finished before this or sees stopping and refuses.
	p.startMu.Lock()
	started := p.started.Load()
	p.startMu.Unlock()

	if started {
		timer := time.NewTimer(timeout)
		select {
		case <-p.done:
		case <-timer.C:
			report.Graceful = false
			p.log.Warn("graceful shutdown timed out, canceling workers", "timeout", timeout)
			p.cancel()
			p.abortPending(&report)
			select {
			case <-p.done:
			case <-time.After(timeout):
				p.log.Error("pipeline workers did not exit")
			}
		}
		timer.Stop()
		p.cancel()

		select {
		case <-p.done:
			if p.waitErr != nil && !errors.Is(p.waitErr, context.Canceled) {
				report.Err = p.waitErr
			}
		default:
		}
	}

	p.synth.Close()
	p.post.Close()
	p.abortPending(&report)
	sort.SliceStable(report.Failed, func(i, j int) bool { return report.Failed[i].Index < report.Failed[j].Index })

	p.strandedMu.Lock()
	report.Undelivered = append([]tts.Result(nil), p.stranded...)
	p.strandedMu.Unlock()

	p.results.Close()
	report.Elapsed = time.Since(start)

	p.log.Info("pipeline stopped",
		"graceful", report.Graceful,
		"failed", len(report.Failed),
		"undelivered", len(report.Undelivered),
		"elapsed", report.Elapsed.Round(time.Millisecond))
	return report
}

// abortPending claims every undelivered task and reports it failed. Workers
// that finish a claimed task later find it gone and drop the result.
func (p *Pipeline) abortPending(report *ShutdownReport) {
	p.pending.Range(func(key, value any) bool {
		t := value.(*Task)
		if !p.pending.CompareAndDelete(key, t) {
			return true
		}
		err := fmt.Errorf("%w: task %s not completed", tts.ErrShutdown, t.ID)
		r := tts.FailedResult(t.ID, t.Chunk.Index, err, p.sampleRate)
		r.Meta.Tier = tts.TierNone
		report.Failed = append(report.Failed, r)
		p.stats.aborted.Add(1)
		_ = p.results.TryPut(r)
		return true
	})
}

func (p *Pipeline) preprocessLoop(ctx context.Context) error {
	defer p.synth.Close()

	for {
		t, err := p.intake.Get(ctx, p.opts.PollInterval)
		if err != nil {
			if errors.Is(err, queue.ErrTimeout) {
				continue
			}
			if errors.Is(err, queue.ErrQueueClosed) {
				p.log.Debug("preprocess stage drained")
				return nil
			}
			return err
		}

		start := time.Now()
		p.preprocess(t)
		p.stats.preprocessNanos.Add(int64(time.Since(start)))

		if err := p.synth.Put(ctx, t, queue.Forever); err != nil {
			return err
		}
	}
}

func (p *Pipeline) preprocess(t *Task) {
	c := t.Chunk
	c.Text = strings.TrimSpace(c.Text)
	if err := c.Validate(); err != nil {
		t.err = err
		return
	}
	if p.opts.Preprocessor != nil {
		out, err := p.opts.Preprocessor.Preprocess(c)
		if err != nil {
			t.err = tts.NewError(err, "pipeline", "preprocess").WithContext("task", t.ID)
			return
		}
		c = out
	}
	t.Chunk = c
}

// synthesizeLoop buffers tasks and flushes when the buffer is full, when
// its oldest task has waited FlushTimeout, or once intake is closed and
// nothing is left upstream.
func (p *Pipeline) synthesizeLoop(ctx context.Context) error {
	defer p.post.Close()

	var buf []*Task
	var oldest time.Time

	for {
		t, err := p.synth.Get(ctx, p.opts.PollInterval)
		switch {
		case err == nil:
			if len(buf) == 0 {
				oldest = time.Now()
			}
			buf = append(buf, t)
		case errors.Is(err, queue.ErrTimeout):
		case errors.Is(err, queue.ErrQueueClosed):
			if len(buf) > 0 {
				p.stats.drainFlushes.Add(1)
				if err := p.flush(ctx, buf); err != nil {
					return err
				}
			}
			p.log.Debug("synthesize stage drained")
			return nil
		default:
			return err
		}

		switch {
		case len(buf) >= p.opts.MaxBatch:
			p.stats.sizeFlushes.Add(1)
		case len(buf) > 0 && time.Since(oldest) >= p.opts.FlushTimeout:
			p.stats.timeoutFlushes.Add(1)
		case len(buf) > 0 && p.drained():
			p.stats.drainFlushes.Add(1)
		default:
			continue
		}

		if err := p.flush(ctx, buf); err != nil {
			return err
		}
		buf = nil
	}
}

// drained reports whether intake is closed and no task waits ahead of the
// synthesize buffer. A backlog keeps batching normally during shutdown.
func (p *Pipeline) drained() bool {
	return p.intake.Closed() && p.intake.Len() == 0 && p.synth.Len() == 0
}

// flush groups the buffer consecutively and runs each unit on the engine.
func (p *Pipeline) flush(ctx context.Context, buf []*Task) error {
	p.stats.flushes.Add(1)

	ready := make([]*Task, 0, len(buf))
	chunks := make([]tts.Chunk, 0, len(buf))
	for _, t := range buf {
		if t.err != nil {
			t.result = tts.FailedResult(t.ID, t.Chunk.Index, t.err, p.sampleRate)
			t.result.Meta.Tier = tts.TierNone
			if err := p.post.Put(ctx, t, queue.Forever); err != nil {
				return err
			}
			continue
		}
		ready = append(ready, t)
		chunks = append(chunks, t.Chunk)
	}

	plan := p.grouper.Group(chunks)
	p.log.Debug("flushing buffer",
		"tasks", len(buf),
		"groups", len(plan.Groups()),
		"individuals", len(plan.Individuals()))

	for _, u := range plan.Units() {
		start := time.Now()
		results := p.exec.ExecuteUnit(ctx, u)
		p.stats.synthesisNanos.Add(int64(time.Since(start)))

		for i, m := range u.Members() {
			t := ready[m.Position]
			t.result = results[i]
			t.result.TaskID = t.ID
			if err := p.post.Put(ctx, t, queue.Forever); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Pipeline) postprocessLoop(ctx context.Context) error {
	for {
		t, err := p.post.Get(ctx, p.opts.PollInterval)
		if err != nil {
			if errors.Is(err, queue.ErrTimeout) {
				continue
			}
			if errors.Is(err, queue.ErrQueueClosed) {
				p.log.Debug("postprocess stage drained")
				return nil
			}
			return err
		}

		start := time.Now()
		r := t.result
		if p.opts.Postprocessor != nil {
			r = p.opts.Postprocessor.Postprocess(r)
			r.TaskID = t.ID
		}
		p.stats.postprocessNanos.Add(int64(time.Since(start)))

		if err := p.deliver(ctx, t, r); err != nil {
			return err
		}
	}
}

// deliver hands r to the results queue unless shutdown already reported
// the task.
func (p *Pipeline) deliver(ctx context.Context, t *Task, r tts.Result) error {
	if !p.pending.CompareAndDelete(t.ID, t) {
		return nil
	}

	p.stats.latencyNanos.Add(int64(time.Since(t.Submitted)))
	if r.Failed() {
		p.stats.failed.Add(1)
	} else {
		p.stats.completed.Add(1)
	}

	if err := p.results.Put(ctx, r, queue.Forever); err != nil {
		p.strandedMu.Lock()
		p.stranded = append(p.stranded, r)
		p.strandedMu.Unlock()
		return err
	}
	return nil
}

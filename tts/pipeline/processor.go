package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/panjf2000/ants/v2"

	"github.com/dgnsrekt/batchtts/tts"
	"github.com/dgnsrekt/batchtts/tts/batch"
)

// ProcessorOptions configures a Processor.
type ProcessorOptions struct {
	Grouping      batch.GroupOptions
	Cache         batch.Cache
	Postprocessor tts.Postprocessor
	// Workers bounds concurrent postprocessing.
	Workers int
}

// ProcessorOptionsFromConfig builds options from validated configuration.
func ProcessorOptionsFromConfig(cfg tts.Config) (ProcessorOptions, error) {
	grouping, err := batch.OptionsFromConfig(cfg.Batching)
	if err != nil {
		return ProcessorOptions{}, err
	}
	return ProcessorOptions{Grouping: grouping, Workers: cfg.Pipeline.Workers}, nil
}

// Output is the outcome of one Process call.
type Output struct {
	// Collection is aligned with the input chunks.
	Collection
	Plan     *batch.Plan
	Analysis batch.Analysis
	Stats    batch.Snapshot
	Elapsed  time.Duration
}

// Processor synthesizes a finite chunk list. Grouping and execution run on
// the calling goroutine, so the engine has a single caller; only
// postprocessing fans out.
type Processor struct {
	mu      sync.Mutex
	exec    *batch.Executor
	grouper *batch.Grouper
	post    tts.Postprocessor
	workers int
}

// NewProcessor creates a processor that owns engine.
func NewProcessor(engine tts.Engine, opts ProcessorOptions) *Processor {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Processor{
		exec:    batch.NewExecutor(engine, batch.ExecutorOptions{Cache: opts.Cache}),
		grouper: batch.NewGrouper(opts.Grouping),
		post:    opts.Postprocessor,
		workers: opts.Workers,
	}
}

// Stats returns cumulative executor telemetry across Process calls.
func (p *Processor) Stats() batch.Snapshot { return p.exec.Stats() }

// Process synthesizes chunks and returns results in input order. Chunk and
// engine failures become placeholder results; the error is non-nil only
// when ctx ended before every chunk was attempted.
func (p *Processor) Process(ctx context.Context, chunks []tts.Chunk) (Output, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	sr := p.exec.Engine().SampleRate()

	ids := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = fmt.Sprintf("chunk-%d", i)
	}

	// Empty chunks never reach the grouper.
	var valid []tts.Chunk
	var validPos []int
	results := make([]tts.Result, 0, len(chunks))
	for i, c := range chunks {
		c.Text = strings.TrimSpace(c.Text)
		if err := c.Validate(); err != nil {
			r := tts.FailedResult(ids[i], c.Index, err, sr)
			r.Meta.Tier = tts.TierNone
			results = append(results, r)
			continue
		}
		valid = append(valid, c)
		validPos = append(validPos, i)
	}

	plan := p.grouper.Group(valid)
	analysis := batch.AnalyzePlan(plan)
	log.Debug("processing chunks", "chunks", len(chunks), "groups", analysis.Groups, "individuals", analysis.IndividualChunks)

	for pos, r := range p.exec.ExecutePlan(ctx, plan) {
		r.TaskID = ids[validPos[pos]]
		results = append(results, r)
	}

	if p.post != nil {
		p.postprocess(results)
	}

	out := Output{
		Collection: Order(ids, results),
		Plan:       plan,
		Analysis:   analysis,
		Stats:      p.exec.Stats(),
		Elapsed:    time.Since(start),
	}
	if err := ctx.Err(); err != nil {
		return out, fmt.Errorf("%w: %w", tts.ErrCanceled, err)
	}
	return out, nil
}

// postprocess applies the hook to every result on a bounded worker pool.
func (p *Processor) postprocess(results []tts.Result) {
	pool, err := ants.NewPool(p.workers)
	if err != nil {
		log.Warn("postprocess pool unavailable, running inline", "error", err)
		for i := range results {
			results[i] = p.apply(results[i])
		}
		return
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			results[i] = p.apply(results[i])
		}
		if err := pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()
}

func (p *Processor) apply(r tts.Result) tts.Result {
	id := r.TaskID
	r = p.post.Postprocess(r)
	r.TaskID = id
	return r
}

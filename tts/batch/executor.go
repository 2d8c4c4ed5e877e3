package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/batchtts/internal/cache"
	"github.com/dgnsrekt/batchtts/tts"
	"github.com/dgnsrekt/batchtts/tts/audio"
)

// Cache stores synthesized audio keyed by text and parameters.
// *cache.AudioCache satisfies it.
type Cache interface {
	Get(text string, params tts.Parameters) (*audio.Audio, cache.Level, bool)
	Put(text string, params tts.Parameters, a *audio.Audio) error
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	// Cache, when set, is consulted before the engine and filled with every
	// successful result.
	Cache Cache
	// SampleRate of failure placeholders. Zero uses the engine's rate.
	SampleRate int
}

// Executor runs groups and individuals against a single engine. Calls are
// serialized; an Executor never invokes its engine concurrently.
type Executor struct {
	mu sync.Mutex

	engine     tts.Engine
	batch      tts.BatchEngine
	cache      Cache
	sampleRate int

	// last is the signature of the previous unit that reached the engine;
	// applied is what the engine is known to hold. applied is cleared
	// whenever engine state is uncertain.
	last    *Signature
	applied *tts.Parameters

	stats Stats
}

// NewExecutor wraps engine. Native batching is used when engine implements
// tts.BatchEngine.
func NewExecutor(engine tts.Engine, opts ExecutorOptions) *Executor {
	x := &Executor{
		engine:     engine,
		cache:      opts.Cache,
		sampleRate: opts.SampleRate,
	}
	if be, ok := engine.(tts.BatchEngine); ok {
		x.batch = be
	}
	if x.sampleRate <= 0 {
		x.sampleRate = engine.SampleRate()
	}
	if x.sampleRate <= 0 {
		x.sampleRate = audio.DefaultSampleRate
	}
	return x
}

// Engine returns the wrapped engine.
func (x *Executor) Engine() tts.Engine { return x.engine }

// Stats returns a telemetry snapshot.
func (x *Executor) Stats() Snapshot { return x.stats.Snapshot() }

// Execute runs every member of g and returns one result per member in
// group order. It never returns fewer results than members: failures carry
// a placeholder instead of audio.
func (x *Executor) Execute(ctx context.Context, g *Group) []tts.Result {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.stats.groups.Add(1)
	x.stats.chunks.Add(int64(g.Len()))
	x.stats.batchedChunks.Add(int64(g.Len()))

	return x.run(ctx, g.Members, g.Params(), g.Signature, true)
}

// ExecuteIndividual runs a single ungrouped member through the serial path.
func (x *Executor) ExecuteIndividual(ctx context.Context, m Member) tts.Result {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.stats.chunks.Add(1)
	x.stats.individualChunks.Add(1)

	return x.run(ctx, []Member{m}, m.Params, m.Signature, false)[0]
}

// ExecuteUnit runs a plan unit.
func (x *Executor) ExecuteUnit(ctx context.Context, u Unit) []tts.Result {
	if u.Group != nil {
		return x.Execute(ctx, u.Group)
	}
	return []tts.Result{x.ExecuteIndividual(ctx, *u.Individual)}
}

// ExecutePlan runs every unit of plan in order and returns results indexed
// by input position.
func (x *Executor) ExecutePlan(ctx context.Context, plan *Plan) []tts.Result {
	out := make([]tts.Result, plan.Len())
	for _, u := range plan.Units() {
		members := u.Members()
		for i, r := range x.ExecuteUnit(ctx, u) {
			out[members[i].Position] = r
		}
	}
	return out
}

func (x *Executor) run(ctx context.Context, members []Member, params tts.Parameters, sig Signature, grouped bool) []tts.Result {
	results := make([]tts.Result, len(members))
	size := len(members)
	if !grouped {
		size = 1
	}

	pending := x.fromCache(members, results, size)
	if len(pending) == 0 {
		return results
	}

	if x.last == nil || *x.last != sig {
		x.stats.parameterSwitches.Add(1)
		log.Debug("parameter switch", "signature", sig.String(), "members", len(members))
	}
	x.last = &sig

	if err := ctx.Err(); err != nil {
		x.failAll(members, pending, results, fmt.Errorf("%w: %w", tts.ErrCanceled, err), size)
		return results
	}

	if grouped && x.batch != nil {
		if x.runBatch(ctx, members, pending, params, results) {
			return results
		}
	}

	x.runSerial(ctx, members, pending, params, results, size)
	return results
}

// fromCache fills results for cached members and returns the indices that
// still need the engine.
func (x *Executor) fromCache(members []Member, results []tts.Result, size int) []int {
	pending := make([]int, 0, len(members))
	for i, m := range members {
		if x.cache == nil {
			pending = append(pending, i)
			continue
		}
		a, level, ok := x.cache.Get(m.Chunk.Text, m.Params)
		if !ok {
			pending = append(pending, i)
			continue
		}
		x.stats.cacheHits.Add(1)
		log.Debug("cache hit", "index", m.Chunk.Index, "level", level)
		results[i] = x.success(m, a, tts.TierCache, size, 0)
	}
	return pending
}

// runBatch attempts one native call for all pending members. It reports
// whether the results were filled.
func (x *Executor) runBatch(ctx context.Context, members []Member, pending []int, params tts.Parameters, results []tts.Result) bool {
	texts := make([]string, len(pending))
	for i, idx := range pending {
		texts[i] = members[idx].Chunk.Text
	}

	start := time.Now()
	var out []*audio.Audio
	x.stats.batchCalls.Add(1)
	err := guard(func() error {
		var err error
		out, err = x.batch.GenerateBatch(ctx, texts, params)
		return err
	})
	elapsed := time.Since(start)
	x.stats.engineNanos.Add(int64(elapsed))

	if err == nil {
		err = checkBatch(out, len(texts))
	}
	if err != nil {
		x.applied = nil
		if errors.Is(err, tts.ErrBatchUnsupported) {
			log.Debug("native batch unavailable, running serially", "engine", x.engine.Name())
		} else {
			x.stats.batchFallbacks.Add(1)
			log.Warn("native batch failed, running serially", "engine", x.engine.Name(), "size", len(texts), "error", err)
		}
		return false
	}

	// GenerateBatch takes params per call and need not leave them active.
	x.applied = nil
	for i, idx := range pending {
		results[idx] = x.success(members[idx], out[i], tts.TierBatch, len(members), elapsed)
	}
	return true
}

// runSerial generates pending members one at a time, configuring the engine
// only when it does not already hold params. A failing member is isolated
// behind a placeholder and the rest continue.
func (x *Executor) runSerial(ctx context.Context, members []Member, pending []int, params tts.Parameters, results []tts.Result, size int) {
	for n, idx := range pending {
		m := members[idx]

		if err := ctx.Err(); err != nil {
			x.failAll(members, pending[n:], results, fmt.Errorf("%w: %w", tts.ErrCanceled, err), size)
			return
		}
		if err := x.ensure(params); err != nil {
			x.failAll(members, pending[n:], results, err, size)
			return
		}

		start := time.Now()
		var a *audio.Audio
		x.stats.serialCalls.Add(1)
		err := guard(func() error {
			var err error
			a, err = x.engine.Generate(ctx, m.Chunk.Text)
			return err
		})
		elapsed := time.Since(start)
		x.stats.engineNanos.Add(int64(elapsed))

		if err == nil && a == nil {
			err = fmt.Errorf("%w: engine returned no audio", tts.ErrGenerationFailed)
		}
		if err != nil {
			if errors.Is(err, errPanic) {
				x.applied = nil
			}
			results[idx] = x.isolate(m, err, size)
			continue
		}
		results[idx] = x.success(m, a, tts.TierSerial, size, elapsed)
	}
}

// ensure configures the engine unless it already holds params.
func (x *Executor) ensure(params tts.Parameters) error {
	if x.applied != nil && *x.applied == params {
		return nil
	}
	x.stats.configures.Add(1)
	err := guard(func() error { return x.engine.Configure(params) })
	if err != nil {
		x.applied = nil
		return tts.NewError(err, "executor", "configure").WithContext("params", params.String())
	}
	x.applied = &params
	return nil
}

func (x *Executor) success(m Member, a *audio.Audio, tier tts.Tier, size int, d time.Duration) tts.Result {
	x.stats.audioSamples.Add(int64(a.Len()))
	if x.cache != nil && tier != tts.TierCache {
		if err := x.cache.Put(m.Chunk.Text, m.Params, a); err != nil {
			log.Debug("cache store failed", "index", m.Chunk.Index, "error", err)
		}
	}
	return tts.Result{
		Index: m.Chunk.Index,
		Audio: a,
		Meta: tts.ResultMeta{
			Tier:      tier,
			GroupSize: size,
			Duration:  d,
			Boundary:  m.Chunk.Boundary,
		},
	}
}

func (x *Executor) isolate(m Member, err error, size int) tts.Result {
	x.stats.failures.Add(1)
	log.Warn("chunk synthesis failed, substituting silence", "index", m.Chunk.Index, "text", m.Chunk.Preview(), "error", err)

	r := tts.FailedResult("", m.Chunk.Index, err, x.sampleRate)
	r.Meta.GroupSize = size
	r.Meta.Boundary = m.Chunk.Boundary
	return r
}

func (x *Executor) failAll(members []Member, pending []int, results []tts.Result, err error, size int) {
	for _, idx := range pending {
		results[idx] = x.isolate(members[idx], err, size)
	}
}

var errPanic = errors.New("engine panic")

// guard converts an engine panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %w: %v", tts.ErrGenerationFailed, errPanic, r)
		}
	}()
	return fn()
}

func checkBatch(out []*audio.Audio, want int) error {
	if len(out) != want {
		return fmt.Errorf("%w: got %d waveforms for %d texts", tts.ErrBatchMismatch, len(out), want)
	}
	for i, a := range out {
		if a == nil {
			return fmt.Errorf("%w: no waveform for text %d", tts.ErrBatchMismatch, i)
		}
	}
	return nil
}

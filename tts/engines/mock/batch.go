package mock

import (
	"context"
	"fmt"

	"github.com/dgnsrekt/batchtts/tts"
	"github.com/dgnsrekt/batchtts/tts/audio"
)

// BatchEngine is a mock with a native multi-text entry point.
type BatchEngine struct {
	*Engine

	batchErr   error
	truncate   bool
	batchCalls int
	batchSizes []int
}

// NewBatch creates a mock engine implementing tts.BatchEngine.
func NewBatch(opts Options) *BatchEngine {
	e := New(opts)
	e.name = "mock"
	return &BatchEngine{Engine: e}
}

// GenerateBatch synthesizes all texts with params in one call. Any failing
// text fails the whole call. On success params remain the active set.
func (b *BatchEngine) GenerateBatch(ctx context.Context, texts []string, params tts.Parameters) ([]*audio.Audio, error) {
	b.enter()
	defer b.exit()

	b.mu.Lock()
	b.batchCalls++
	b.batchSizes = append(b.batchSizes, len(texts))
	batchErr, truncate := b.batchErr, b.truncate
	b.mu.Unlock()

	if batchErr != nil {
		return nil, batchErr
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := b.wait(ctx); err != nil {
		return nil, err
	}

	out := make([]*audio.Audio, 0, len(texts))
	for i, text := range texts {
		a, err := b.synthesize(text, params)
		if err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
		out = append(out, a)
	}

	b.mu.Lock()
	b.active = params
	b.configured = true
	b.mu.Unlock()

	if truncate && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

// SetBatchFailure makes every GenerateBatch call fail with err until
// cleared with nil.
func (b *BatchEngine) SetBatchFailure(err error) {
	b.mu.Lock()
	b.batchErr = err
	b.mu.Unlock()
}

// SetTruncate makes GenerateBatch drop its last waveform.
func (b *BatchEngine) SetTruncate(on bool) {
	b.mu.Lock()
	b.truncate = on
	b.mu.Unlock()
}

// BatchCalls returns the number of GenerateBatch calls.
func (b *BatchEngine) BatchCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.batchCalls
}

// BatchSizes returns the text count of every GenerateBatch call.
func (b *BatchEngine) BatchSizes() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.batchSizes...)
}

var (
	_ tts.Engine      = (*Engine)(nil)
	_ tts.BatchEngine = (*BatchEngine)(nil)
)

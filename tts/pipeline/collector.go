package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/dgnsrekt/batchtts/tts"
	"github.com/dgnsrekt/batchtts/tts/audio"
)

// ResultSource yields results as they complete. *Pipeline satisfies it.
type ResultSource interface {
	GetResult(timeout time.Duration) (tts.Result, bool)
}

// Collection is a result list aligned with the submitted task ids.
type Collection struct {
	// Results[i] is the result for the i-th id, or nil if it never arrived.
	Results []*tts.Result
	Missing int
	Failed  int
}

// Complete reports whether every position holds successful audio.
func (c Collection) Complete() bool {
	return c.Missing == 0 && c.Failed == 0
}

// Audio returns the aligned waveforms, nil where a result is missing or
// synthesis failed.
func (c Collection) Audio() []*audio.Audio {
	out := make([]*audio.Audio, len(c.Results))
	for i, r := range c.Results {
		if r != nil {
			out[i] = r.Audio
		}
	}
	return out
}

// Playable returns the aligned waveforms with gaps filled: a failed result
// contributes its placeholder and a missing one fresh silence at sampleRate.
func (c Collection) Playable(sampleRate int) []*audio.Audio {
	out := make([]*audio.Audio, len(c.Results))
	for i, r := range c.Results {
		if r != nil && r.Playable() != nil {
			out[i] = r.Playable()
			continue
		}
		out[i] = audio.Placeholder(sampleRate)
	}
	return out
}

// Collector restores submission order over an out-of-order result stream.
type Collector struct {
	mu        sync.Mutex
	ids       []string
	positions map[string][]int
	got       []*tts.Result
	remaining int
}

// NewCollector tracks ids in submission order.
func NewCollector(ids []string) *Collector {
	c := &Collector{
		ids:       append([]string(nil), ids...),
		positions: make(map[string][]int, len(ids)),
		got:       make([]*tts.Result, len(ids)),
		remaining: len(ids),
	}
	for i, id := range ids {
		c.positions[id] = append(c.positions[id], i)
	}
	return c
}

// Add records r. The first result for an id wins; results for unknown ids
// are ignored. Add reports whether r was recorded.
func (c *Collector) Add(r tts.Result) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	pos, ok := c.positions[r.TaskID]
	if !ok || c.got[pos[0]] != nil {
		return false
	}
	rr := r
	for _, i := range pos {
		c.got[i] = &rr
		c.remaining--
	}
	return true
}

// Done reports whether every id has a result.
func (c *Collector) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining == 0
}

// Collect reads from source until every id has a result, ctx is done, or
// timeout elapses, then returns the ordered collection. It never waits
// longer than timeout.
func (c *Collector) Collect(ctx context.Context, source ResultSource, timeout time.Duration) Collection {
	const slice = 50 * time.Millisecond
	deadline := time.Now().Add(timeout)

	for !c.Done() {
		if ctx.Err() != nil {
			break
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		wait := min(remaining, slice)
		start := time.Now()
		r, ok := source.GetResult(wait)
		if ok {
			c.Add(r)
			continue
		}
		// A drained source answers at once; wait out the slice anyway.
		if rest := wait - time.Since(start); rest > 0 {
			sleep(ctx, rest)
		}
	}
	return c.Ordered()
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Ordered returns the current aligned view. It does not consume anything,
// so repeated calls agree.
func (c *Collector) Ordered() Collection {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := Collection{Results: make([]*tts.Result, len(c.got))}
	for i, r := range c.got {
		switch {
		case r == nil:
			out.Missing++
		case r.Failed():
			out.Failed++
		}
		out.Results[i] = r
	}
	return out
}

// Order aligns results with ids. Duplicate results keep the first.
func Order(ids []string, results []tts.Result) Collection {
	c := NewCollector(ids)
	for _, r := range results {
		c.Add(r)
	}
	return c.Ordered()
}

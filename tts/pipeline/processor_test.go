package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/dgnsrekt/batchtts/tts"
	"github.com/dgnsrekt/batchtts/tts/audio"
	"github.com/dgnsrekt/batchtts/tts/engines/mock"
)

func scenario() []tts.Chunk {
	a, b := withExaggeration(0.5), withExaggeration(0.9)
	sets := []tts.Parameters{a, a, a, a, b, b, b, withExaggeration(0.1), withExaggeration(0.3), withExaggeration(0.7)}
	chunks := make([]tts.Chunk, len(sets))
	for i, p := range sets {
		chunks[i] = tts.NewChunk(i, fmt.Sprintf("chunk number %d", i), p)
	}
	return chunks
}

func TestProcessor_Scenario(t *testing.T) {
	engine := mock.NewBatch(mock.DefaultOptions())
	p := NewProcessor(engine, ProcessorOptions{Grouping: DefaultOptions().Grouping})

	out, err := p.Process(context.Background(), scenario())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !out.Complete() {
		t.Fatalf("missing %d failed %d", out.Missing, out.Failed)
	}
	for i, r := range out.Results {
		if r.Index != i || r.TaskID != fmt.Sprintf("chunk-%d", i) {
			t.Errorf("position %d holds index %d id %s", i, r.Index, r.TaskID)
		}
	}

	if out.Analysis.Groups != 2 || out.Analysis.BatchedChunks != 7 {
		t.Errorf("analysis = %+v, want 2 groups covering 7 chunks", out.Analysis)
	}
	if out.Stats.ParameterSwitches != 5 || out.Stats.BatchCalls != 2 {
		t.Errorf("switches/batch calls = %d/%d, want 5/2", out.Stats.ParameterSwitches, out.Stats.BatchCalls)
	}
	if out.Plan.Len() != 10 {
		t.Errorf("plan covers %d chunks, want 10", out.Plan.Len())
	}
}

func TestProcessor_GlobalPolicyKeepsOrder(t *testing.T) {
	a, b := withExaggeration(0.2), withExaggeration(0.8)
	var chunks []tts.Chunk
	for i, p := range []tts.Parameters{a, b, a, b, a, b} {
		chunks = append(chunks, tts.NewChunk(i, fmt.Sprintf("line %d", i), p))
	}

	opts := DefaultOptions().Grouping
	opts.PreserveOrder = false
	engine := mock.NewBatch(mock.DefaultOptions())

	out, err := NewProcessor(engine, ProcessorOptions{Grouping: opts}).Process(context.Background(), chunks)
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range out.Results {
		if r.Index != i {
			t.Errorf("position %d holds index %d", i, r.Index)
		}
	}
	if engine.BatchCalls() != 2 {
		t.Errorf("BatchCalls = %d, want 2", engine.BatchCalls())
	}
}

func TestProcessor_FailuresKeepPosition(t *testing.T) {
	engine := mock.New(mock.DefaultOptions())
	chunks := scenario()
	engine.FailOn(chunks[5].Text, nil)
	chunks[2].Text = "  "

	out, err := NewProcessor(engine, ProcessorOptions{Grouping: DefaultOptions().Grouping}).Process(context.Background(), chunks)
	if err != nil {
		t.Fatal(err)
	}
	if out.Missing != 0 || out.Failed != 2 {
		t.Fatalf("Missing/Failed = %d/%d, want 0/2", out.Missing, out.Failed)
	}

	tests := []struct {
		pos  int
		err  error
		tier tts.Tier
	}{
		{pos: 2, err: tts.ErrEmptyText, tier: tts.TierNone},
		{pos: 5, err: tts.ErrGenerationFailed, tier: tts.TierIsolated},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("position %d", tt.pos), func(t *testing.T) {
			r := out.Results[tt.pos]
			if !errors.Is(r.Err, tt.err) {
				t.Errorf("Err = %v, want %v", r.Err, tt.err)
			}
			if r.Meta.Tier != tt.tier {
				t.Errorf("Tier = %v, want %v", r.Meta.Tier, tt.tier)
			}
			if r.Placeholder.Duration() != audio.PlaceholderDuration {
				t.Errorf("placeholder lasts %v", r.Placeholder.Duration())
			}
		})
	}

	playable := out.Playable(engine.SampleRate())
	for i, a := range playable {
		if a == nil {
			t.Errorf("position %d has nothing to play", i)
		}
	}
}

func TestProcessor_Postprocess(t *testing.T) {
	var calls atomic.Int64
	post := tts.PostprocessFunc(func(r tts.Result) tts.Result {
		calls.Add(1)
		r.TaskID = "overwritten"
		r.Meta.Boundary = "paragraph"
		return r
	})

	p := NewProcessor(mock.NewBatch(mock.DefaultOptions()), ProcessorOptions{
		Grouping:      DefaultOptions().Grouping,
		Postprocessor: post,
		Workers:       3,
	})
	out, err := p.Process(context.Background(), scenario())
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 10 {
		t.Errorf("postprocessor ran %d times, want 10", calls.Load())
	}
	for i, r := range out.Results {
		if r == nil || r.Meta.Boundary != "paragraph" {
			t.Fatalf("position %d not postprocessed", i)
		}
		if r.TaskID != fmt.Sprintf("chunk-%d", i) {
			t.Errorf("postprocessor changed task id to %s", r.TaskID)
		}
	}
}

func TestProcessor_Empty(t *testing.T) {
	out, err := NewProcessor(mock.New(mock.DefaultOptions()), ProcessorOptions{}).Process(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 0 || out.Stats.Chunks != 0 {
		t.Errorf("output = %+v, want empty", out)
	}
}

func TestProcessor_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := mock.NewBatch(mock.DefaultOptions())
	out, err := NewProcessor(engine, ProcessorOptions{Grouping: DefaultOptions().Grouping}).Process(ctx, scenario())
	if !errors.Is(err, tts.ErrCanceled) {
		t.Fatalf("error = %v, want ErrCanceled", err)
	}
	if out.Missing != 0 || out.Failed != 10 {
		t.Errorf("Missing/Failed = %d/%d, want every chunk failed", out.Missing, out.Failed)
	}
	if engine.GenerateCalls() != 0 || engine.BatchCalls() != 0 {
		t.Error("engine used after cancellation")
	}
}

func TestProcessorOptionsFromConfig(t *testing.T) {
	cfg := tts.DefaultConfig()
	cfg.Batching.Match = "bogus"
	if _, err := ProcessorOptionsFromConfig(cfg); err == nil {
		t.Error("expected error for unknown match mode")
	}

	cfg = tts.DefaultConfig()
	opts, err := ProcessorOptionsFromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Workers != cfg.Pipeline.Workers || opts.Grouping.Tolerance != cfg.Batching.Tolerance {
		t.Errorf("opts = %+v", opts)
	}
}

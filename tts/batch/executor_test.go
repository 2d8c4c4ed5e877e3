package batch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/batchtts/internal/cache"
	"github.com/dgnsrekt/batchtts/tts"
	"github.com/dgnsrekt/batchtts/tts/audio"
	"github.com/dgnsrekt/batchtts/tts/engines/mock"
)

// groupOf builds a single group of n chunks sharing default parameters.
func groupOf(t *testing.T, n int) *Group {
	t.Helper()
	chunks := make([]tts.Chunk, n)
	for i := range chunks {
		chunks[i] = chunkAt(i, tts.DefaultParameters())
	}
	opts := DefaultGroupOptions()
	opts.MaxBatchSize = n
	plan := NewGrouper(opts).Group(chunks)
	if len(plan.Groups()) != 1 {
		t.Fatalf("expected one group, got %d", len(plan.Groups()))
	}
	return plan.Groups()[0]
}

func assertAllAudio(t *testing.T, results []tts.Result) {
	t.Helper()
	for i, r := range results {
		if r.Failed() {
			t.Errorf("result %d failed: %v", i, r.Err)
		}
	}
}

func TestExecutor_ScenarioSwitches(t *testing.T) {
	tests := []struct {
		name   string
		engine func() tts.Engine
		// configures is the number of real Configure calls on the engine.
		configures  int
		batchCalls  int64
		serialCalls int64
	}{
		{"native batch", func() tts.Engine { return mock.NewBatch(mock.DefaultOptions()) }, 3, 2, 3},
		{"serial only", func() tts.Engine { return mock.New(mock.DefaultOptions()) }, 5, 0, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := tt.engine()
			x := NewExecutor(engine, ExecutorOptions{})
			plan := NewGrouper(DefaultGroupOptions()).Group(scenarioChunks())

			results := x.ExecutePlan(context.Background(), plan)
			if len(results) != 10 {
				t.Fatalf("results = %d, want 10", len(results))
			}
			assertAllAudio(t, results)
			for i, r := range results {
				if r.Index != i {
					t.Errorf("results[%d].Index = %d", i, r.Index)
				}
			}

			stats := x.Stats()
			if stats.ParameterSwitches != 5 {
				t.Errorf("ParameterSwitches = %d, want 5", stats.ParameterSwitches)
			}
			if stats.Groups != 2 || stats.BatchedChunks != 7 || stats.IndividualChunks != 3 {
				t.Errorf("Groups/Batched/Individual = %d/%d/%d, want 2/7/3", stats.Groups, stats.BatchedChunks, stats.IndividualChunks)
			}
			if stats.BatchCalls != tt.batchCalls || stats.SerialCalls != tt.serialCalls {
				t.Errorf("BatchCalls/SerialCalls = %d/%d, want %d/%d", stats.BatchCalls, stats.SerialCalls, tt.batchCalls, tt.serialCalls)
			}

			var configured int
			switch e := engine.(type) {
			case *mock.BatchEngine:
				configured = e.ConfigureCount()
				if e.MaxConcurrency() != 1 {
					t.Errorf("MaxConcurrency = %d, want 1", e.MaxConcurrency())
				}
			case *mock.Engine:
				configured = e.ConfigureCount()
			}
			if configured != tt.configures {
				t.Errorf("engine configures = %d, want %d", configured, tt.configures)
			}
		})
	}
}

func TestExecutor_NativeBatchTier(t *testing.T) {
	engine := mock.NewBatch(mock.DefaultOptions())
	x := NewExecutor(engine, ExecutorOptions{})

	results := x.Execute(context.Background(), groupOf(t, 4))
	assertAllAudio(t, results)
	for _, r := range results {
		if r.Meta.Tier != tts.TierBatch || r.Meta.GroupSize != 4 {
			t.Errorf("meta = %+v, want batch tier with group size 4", r.Meta)
		}
	}
	if engine.BatchCalls() != 1 || engine.GenerateCalls() != 0 {
		t.Errorf("BatchCalls/GenerateCalls = %d/%d, want 1/0", engine.BatchCalls(), engine.GenerateCalls())
	}
	if p, ok := engine.ActiveParameters(); !ok || p != tts.DefaultParameters() {
		t.Error("batch call should leave the group parameters active")
	}
}

// statelessBatch has a native batch call that leaves engine state alone.
type statelessBatch struct{ *mock.Engine }

func (s statelessBatch) GenerateBatch(_ context.Context, texts []string, _ tts.Parameters) ([]*audio.Audio, error) {
	out := make([]*audio.Audio, len(texts))
	for i := range texts {
		out[i] = audio.Silence(100*time.Millisecond, s.SampleRate())
	}
	return out, nil
}

func TestExecutor_BatchDoesNotAssumeActiveParameters(t *testing.T) {
	engine := mock.New(mock.DefaultOptions())
	x := NewExecutor(statelessBatch{engine}, ExecutorOptions{})

	p := withExaggeration(0.9)
	opts := DefaultGroupOptions()
	opts.MaxBatchSize = 2
	plan := NewGrouper(opts).Group([]tts.Chunk{chunkAt(0, p), chunkAt(1, p), chunkAt(2, p)})

	results := x.ExecutePlan(context.Background(), plan)
	assertAllAudio(t, results)
	if results[0].Meta.Tier != tts.TierBatch || results[2].Meta.Tier != tts.TierSerial {
		t.Fatalf("tiers = %v/%v, want batch/serial", results[0].Meta.Tier, results[2].Meta.Tier)
	}
	if engine.ConfigureCount() != 1 {
		t.Errorf("ConfigureCount = %d, want 1", engine.ConfigureCount())
	}
	if active, ok := engine.ActiveParameters(); !ok || active != p {
		t.Errorf("active params = %v (configured %v), want %v", active, ok, p)
	}
	if x.Stats().ParameterSwitches != 1 {
		t.Errorf("ParameterSwitches = %d, want 1", x.Stats().ParameterSwitches)
	}
}

// splitRun returns 10 chunks in one signature at the default tolerance,
// where the member opening the second MaxBatchSize piece has jittered values.
func splitRun() []tts.Chunk {
	chunks := make([]tts.Chunk, 10)
	for i := range chunks {
		p := withExaggeration(0.50)
		if i == 8 {
			p = withExaggeration(0.51)
		}
		chunks[i] = chunkAt(i, p)
	}
	return chunks
}

func TestExecutor_SwitchesFollowSignatures(t *testing.T) {
	engine := mock.New(mock.DefaultOptions())
	x := NewExecutor(engine, ExecutorOptions{})
	plan := NewGrouper(DefaultGroupOptions()).Group(splitRun())
	if len(plan.Groups()) != 2 {
		t.Fatalf("groups = %d, want 2", len(plan.Groups()))
	}

	assertAllAudio(t, x.ExecutePlan(context.Background(), plan))
	if got := x.Stats().ParameterSwitches; got != 1 {
		t.Errorf("ParameterSwitches = %d, want 1", got)
	}
	// The second piece still runs with its own exact values.
	if active, _ := engine.ActiveParameters(); active != withExaggeration(0.51) {
		t.Errorf("active params = %v, want exaggeration 0.51", active)
	}
}

func TestExecutor_NoBatchSupport(t *testing.T) {
	engine := mock.New(mock.DefaultOptions())
	x := NewExecutor(engine, ExecutorOptions{})

	results := x.Execute(context.Background(), groupOf(t, 5))
	if len(results) != 5 {
		t.Fatalf("results = %d, want 5", len(results))
	}
	assertAllAudio(t, results)
	for _, r := range results {
		if r.Meta.Tier != tts.TierSerial {
			t.Errorf("tier = %v, want serial", r.Meta.Tier)
		}
	}
	if x.Stats().BatchFallbacks != 0 {
		t.Error("a missing batch entry point is not a batch failure")
	}
}

func TestExecutor_ConfigureAvoidance(t *testing.T) {
	engine := mock.New(mock.DefaultOptions())
	x := NewExecutor(engine, ExecutorOptions{})
	ctx := context.Background()

	x.Execute(ctx, groupOf(t, 5))
	x.Execute(ctx, groupOf(t, 3))

	if engine.ConfigureCount() != 1 {
		t.Errorf("ConfigureCount = %d, want 1", engine.ConfigureCount())
	}
	if engine.GenerateCalls() != 8 {
		t.Errorf("GenerateCalls = %d, want 8", engine.GenerateCalls())
	}
	if x.Stats().ParameterSwitches != 1 {
		t.Errorf("ParameterSwitches = %d, want 1", x.Stats().ParameterSwitches)
	}
}

func TestExecutor_IsolatesFailures(t *testing.T) {
	failing := "chunk number 2"

	tests := []struct {
		name     string
		setup    func() tts.Engine
		fallback int64
	}{
		{
			name: "serial engine",
			setup: func() tts.Engine {
				e := mock.New(mock.DefaultOptions())
				e.FailOn(failing, nil)
				return e
			},
		},
		{
			name: "batch engine falls back",
			setup: func() tts.Engine {
				e := mock.NewBatch(mock.DefaultOptions())
				e.FailOn(failing, nil)
				return e
			},
			fallback: 1,
		},
		{
			name: "engine panic",
			setup: func() tts.Engine {
				e := mock.New(mock.DefaultOptions())
				e.PanicOn(failing)
				return e
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := NewExecutor(tt.setup(), ExecutorOptions{})
			results := x.Execute(context.Background(), groupOf(t, 5))

			if len(results) != 5 {
				t.Fatalf("results = %d, want 5", len(results))
			}
			for i, r := range results {
				if i == 2 {
					if !r.Failed() {
						t.Fatal("result 2 should have failed")
					}
					if !errors.Is(r.Err, tts.ErrGenerationFailed) {
						t.Errorf("Err = %v, want ErrGenerationFailed", r.Err)
					}
					if r.Placeholder.Duration() != audio.PlaceholderDuration {
						t.Errorf("placeholder duration = %v, want %v", r.Placeholder.Duration(), audio.PlaceholderDuration)
					}
					if !r.Placeholder.IsSilent() {
						t.Error("placeholder should be silent")
					}
					if r.Meta.Tier != tts.TierIsolated {
						t.Errorf("tier = %v, want isolated", r.Meta.Tier)
					}
					continue
				}
				if r.Failed() {
					t.Errorf("result %d failed: %v", i, r.Err)
				}
			}

			stats := x.Stats()
			if stats.Failures != 1 {
				t.Errorf("Failures = %d, want 1", stats.Failures)
			}
			if stats.BatchFallbacks != tt.fallback {
				t.Errorf("BatchFallbacks = %d, want %d", stats.BatchFallbacks, tt.fallback)
			}
		})
	}
}

func TestExecutor_BatchMismatchFallsBack(t *testing.T) {
	engine := mock.NewBatch(mock.DefaultOptions())
	engine.SetTruncate(true)
	x := NewExecutor(engine, ExecutorOptions{})

	results := x.Execute(context.Background(), groupOf(t, 4))
	assertAllAudio(t, results)
	if engine.GenerateCalls() != 4 {
		t.Errorf("GenerateCalls = %d, want 4", engine.GenerateCalls())
	}
	// The failed batch call may have touched engine state.
	if engine.ConfigureCount() != 1 {
		t.Errorf("ConfigureCount = %d, want 1", engine.ConfigureCount())
	}
}

func TestExecutor_ConfigureFailure(t *testing.T) {
	engine := mock.New(mock.DefaultOptions())
	engine.SetConfigureError(errors.New("device lost"))
	x := NewExecutor(engine, ExecutorOptions{})

	results := x.Execute(context.Background(), groupOf(t, 3))
	for i, r := range results {
		if !r.Failed() || r.Placeholder == nil {
			t.Errorf("result %d should be a placeholder", i)
		}
	}
	if engine.GenerateCalls() != 0 {
		t.Errorf("GenerateCalls = %d, want 0", engine.GenerateCalls())
	}

	engine.SetConfigureError(nil)
	results = x.Execute(context.Background(), groupOf(t, 3))
	assertAllAudio(t, results)
}

func TestExecutor_Canceled(t *testing.T) {
	engine := mock.New(mock.DefaultOptions())
	x := NewExecutor(engine, ExecutorOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := x.Execute(ctx, groupOf(t, 3))
	for i, r := range results {
		if !errors.Is(r.Err, tts.ErrCanceled) {
			t.Errorf("result %d Err = %v, want ErrCanceled", i, r.Err)
		}
	}
	if engine.GenerateCalls() != 0 {
		t.Error("engine should not be called after cancellation")
	}
}

func TestExecutor_Cache(t *testing.T) {
	ac, err := cache.New(cache.Config{MemoryBytes: 1 << 20, MemoryEntries: 16})
	if err != nil {
		t.Fatal(err)
	}
	defer ac.Close() //nolint:errcheck

	engine := mock.NewBatch(mock.DefaultOptions())
	x := NewExecutor(engine, ExecutorOptions{Cache: ac})
	ctx := context.Background()

	x.Execute(ctx, groupOf(t, 3))
	results := x.Execute(ctx, groupOf(t, 3))

	assertAllAudio(t, results)
	for _, r := range results {
		if r.Meta.Tier != tts.TierCache {
			t.Errorf("tier = %v, want cache", r.Meta.Tier)
		}
	}
	if engine.BatchCalls() != 1 {
		t.Errorf("BatchCalls = %d, want 1", engine.BatchCalls())
	}
	stats := x.Stats()
	if stats.CacheHits != 3 {
		t.Errorf("CacheHits = %d, want 3", stats.CacheHits)
	}
	if stats.ParameterSwitches != 1 {
		t.Errorf("ParameterSwitches = %d, want 1", stats.ParameterSwitches)
	}
}

func TestExecutor_ForcedIndividualUsesDefaults(t *testing.T) {
	engine := mock.New(mock.DefaultOptions())
	x := NewExecutor(engine, ExecutorOptions{})

	c := tts.Chunk{Index: 42, Text: "no parameters here", Boundary: "paragraph"}
	plan := NewGrouper(DefaultGroupOptions()).Group([]tts.Chunk{c})
	results := x.ExecutePlan(context.Background(), plan)

	if len(results) != 1 || results[0].Failed() {
		t.Fatalf("unexpected results %+v", results)
	}
	if results[0].Index != 42 || results[0].Meta.Boundary != "paragraph" {
		t.Errorf("result = index %d boundary %q", results[0].Index, results[0].Meta.Boundary)
	}
	if p, _ := engine.ActiveParameters(); p != tts.DefaultParameters() {
		t.Errorf("active params = %v, want defaults", p)
	}
}

func TestExecutor_SerializesEngine(t *testing.T) {
	engine := mock.New(mock.DefaultOptions())
	engine.SetDelay(2 * time.Millisecond)
	x := NewExecutor(engine, ExecutorOptions{})

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		g := groupOf(t, 2)
		go func() {
			x.Execute(context.Background(), g)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	if engine.MaxConcurrency() != 1 {
		t.Errorf("MaxConcurrency = %d, want 1", engine.MaxConcurrency())
	}
}

func TestSnapshot_String(t *testing.T) {
	s := Snapshot{Chunks: 1200, BatchedChunks: 600, Groups: 100, IndividualChunks: 600, BatchCalls: 100, SerialCalls: 600}
	got := s.String()
	for _, want := range []string{"1,200 chunks", "100 groups", "700 engine calls"} {
		if !strings.Contains(got, want) {
			t.Errorf("String() = %q, missing %q", got, want)
		}
	}
}

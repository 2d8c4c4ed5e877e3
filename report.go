package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"

	"github.com/dgnsrekt/batchtts/tts/batch"
	"github.com/dgnsrekt/batchtts/tts/pipeline"
)

func printAnalysis(w io.Writer, a batch.Analysis) {
	fmt.Fprintln(w, styled(headingStyle, "Batching analysis"))
	row(w, "chunks", humanize.Comma(int64(a.TotalChunks)))
	row(w, "groups", fmt.Sprintf("%d %v", a.Groups, a.GroupSizes))
	row(w, "individual", humanize.Comma(int64(a.IndividualChunks)))
	row(w, "batched", humanize.FormatFloat("#.#", a.BatchPercentage)+"%")
	row(w, "avg group", humanize.FormatFloat("#.##", a.AverageGroupSize))
	row(w, "signatures", humanize.Comma(int64(a.UniqueSignatures)))
	row(w, "switches", humanize.Comma(int64(a.ParameterSwitches)))
	row(w, "speedup", "~"+humanize.FormatFloat("#.##", a.EstimatedSpeedup)+"x")
	if a.MissingParameters > 0 {
		row(w, "defaults", styled(failStyle, fmt.Sprintf("%d chunks without a full parameter set", a.MissingParameters)))
	}
}

const previewWidth = 32

// preview fits text into previewWidth terminal cells.
func preview(text string) string {
	return runewidth.FillRight(truncate.StringWithTail(text, previewWidth, "…"), previewWidth)
}

func printUnits(w io.Writer, plan *batch.Plan) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, styled(headingStyle, "Execution units"))
	for i, u := range plan.Units() {
		members := u.Members()
		idx := make([]string, len(members))
		for j, m := range members {
			idx[j] = fmt.Sprint(m.Chunk.Index)
		}
		kind := "single"
		if u.Group != nil {
			kind = fmt.Sprintf("group/%d", len(members))
		}
		fmt.Fprintf(w, "  %3d  %-9s %-20s %s %s\n", i+1, kind, "["+strings.Join(idx, " ")+"]",
			preview(members[0].Chunk.Text), styled(dimStyle, u.Params().String()))
	}
}

func printExecutor(w io.Writer, s batch.Snapshot) {
	row(w, "engine calls", fmt.Sprintf("%s (%s batch, %s serial)",
		humanize.Comma(s.EngineCalls()), humanize.Comma(s.BatchCalls), humanize.Comma(s.SerialCalls)))
	row(w, "batched", humanize.FormatFloat("#.#", s.BatchPercentage())+"%")
	row(w, "switches", fmt.Sprintf("%s (%s configures)", humanize.Comma(s.ParameterSwitches), humanize.Comma(s.Configures)))
	if s.BatchFallbacks > 0 {
		row(w, "fallbacks", humanize.Comma(s.BatchFallbacks))
	}
	if s.CacheHits > 0 {
		row(w, "cache hits", humanize.Comma(s.CacheHits))
	}
	row(w, "engine time", s.EngineTime.Round(time.Millisecond).String())
	row(w, "audio", humanize.Bytes(uint64(s.AudioSamples)*2)) //nolint:gosec
}

func printRunReport(w io.Writer, out pipeline.Output) {
	printAnalysis(w, out.Analysis)
	fmt.Fprintln(w)
	fmt.Fprintln(w, styled(headingStyle, "Synthesis"))
	printExecutor(w, out.Stats)
	row(w, "elapsed", out.Elapsed.Round(time.Millisecond).String())
	printOutcome(w, out.Collection)
}

func printStreamReport(w io.Writer, coll pipeline.Collection, s pipeline.Snapshot, report pipeline.ShutdownReport, elapsed time.Duration) {
	fmt.Fprintln(w, styled(headingStyle, "Streaming pipeline"))
	row(w, "run", s.RunID)
	row(w, "submitted", fmt.Sprintf("%s (%s rejected)", humanize.Comma(s.Submitted), humanize.Comma(s.Rejected)))
	row(w, "flushes", fmt.Sprintf("%s (%d size, %d timeout, %d drain), avg %s tasks",
		humanize.Comma(s.Flushes), s.SizeFlushes, s.TimeoutFlushes, s.DrainFlushes,
		humanize.FormatFloat("#.##", s.AverageFlushSize())))
	row(w, "latency", s.AverageLatency().Round(time.Millisecond).String()+" avg")
	row(w, "peak queue", fmt.Sprintf("intake %d, synth %d, post %d, results %d",
		s.Intake.PeakSize, s.Synthesis.PeakSize, s.Postprocess.PeakSize, s.Results.PeakSize))
	printExecutor(w, s.Executor)
	row(w, "elapsed", elapsed.Round(time.Millisecond).String())

	shutdown := "graceful"
	if !report.Graceful {
		shutdown = styled(failStyle, fmt.Sprintf("forced, %d aborted", len(report.Failed)))
	}
	if n := len(report.Undelivered); n > 0 {
		shutdown += fmt.Sprintf(", %d undelivered", n)
	}
	row(w, "shutdown", shutdown)
	printOutcome(w, coll)
}

func printOutcome(w io.Writer, c pipeline.Collection) {
	ok := len(c.Results) - c.Failed - c.Missing
	line := fmt.Sprintf("%d ok", ok)
	if c.Failed > 0 || c.Missing > 0 {
		line += styled(failStyle, fmt.Sprintf(", %d failed, %d missing", c.Failed, c.Missing))
	}
	row(w, "results", line)

	for i, r := range c.Results {
		if r != nil && r.Failed() {
			fmt.Fprintf(w, "  %s %s\n", styled(failStyle, fmt.Sprintf("chunk %d:", i)), r.Err)
		}
	}
}

func row(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %-13s %s\n", styled(dimStyle, label), value)
}

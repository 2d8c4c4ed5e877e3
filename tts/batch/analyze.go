package batch

import (
	"fmt"

	"github.com/dgnsrekt/batchtts/tts"
)

// Analysis summarizes how well a chunk sequence batches.
type Analysis struct {
	TotalChunks       int
	BatchedChunks     int
	IndividualChunks  int
	Groups            int
	GroupSizes        []int
	UniqueSignatures  int
	MissingParameters int // chunks analysed with defaults substituted
	BatchPercentage   float64
	AverageGroupSize  float64
	// EstimatedSpeedup models one engine round trip per unit:
	// total / (groups + individuals).
	EstimatedSpeedup float64
	// ParameterSwitches is the number of signature transitions between
	// consecutive units, counting the first unit.
	ParameterSwitches int
}

// Analyze reports achievable batching for chunks under opts. Chunks with
// missing parameters are analysed with defaults filled in; the input is
// neither reordered nor modified.
func Analyze(chunks []tts.Chunk, opts GroupOptions) Analysis {
	filled := make([]tts.Chunk, len(chunks))
	missing := 0
	for i, c := range chunks {
		filled[i] = c
		if !c.HasParameters() {
			missing++
			filled[i].Params = c.ParametersOrDefault().Map()
		}
	}

	a := AnalyzePlan(NewGrouper(opts).Group(filled))
	a.MissingParameters = missing
	return a
}

// AnalyzePlan summarizes an existing plan.
func AnalyzePlan(plan *Plan) Analysis {
	a := Analysis{
		TotalChunks:      plan.Len(),
		Groups:           len(plan.Groups()),
		IndividualChunks: len(plan.Individuals()),
	}

	sigs := make(map[Signature]struct{})
	for _, g := range plan.Groups() {
		a.BatchedChunks += g.Len()
		a.GroupSizes = append(a.GroupSizes, g.Len())
		sigs[g.Signature] = struct{}{}
	}
	for _, m := range plan.Individuals() {
		sigs[m.Signature] = struct{}{}
	}
	a.UniqueSignatures = len(sigs)

	var prev *Signature
	for _, u := range plan.Units() {
		sig := u.Signature()
		if prev == nil || *prev != sig {
			a.ParameterSwitches++
		}
		prev = &sig
	}

	if a.TotalChunks > 0 {
		a.BatchPercentage = float64(a.BatchedChunks) / float64(a.TotalChunks) * 100
		a.EstimatedSpeedup = float64(a.TotalChunks) / float64(a.Groups+a.IndividualChunks)
	}
	if a.Groups > 0 {
		a.AverageGroupSize = float64(a.BatchedChunks) / float64(a.Groups)
	}
	return a
}

// String renders a one-line summary.
func (a Analysis) String() string {
	return fmt.Sprintf("%d chunks: %d groups %v, %d individual, %.1f%% batched, ~%.2fx fewer engine calls, %d parameter switches",
		a.TotalChunks, a.Groups, a.GroupSizes, a.IndividualChunks, a.BatchPercentage, a.EstimatedSpeedup, a.ParameterSwitches)
}

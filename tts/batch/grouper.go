package batch

import (
	"sort"

	"github.com/dgnsrekt/batchtts/tts"
)

// GroupOptions configures a Grouper.
type GroupOptions struct {
	Tolerance    float64
	MinBatchSize int
	MaxBatchSize int
	// PreserveOrder selects consecutive grouping. When false, chunks are
	// bucketed across the whole sequence and results need reordering.
	PreserveOrder bool
	Match         MatchMode
}

// DefaultGroupOptions returns the consecutive policy with the default bounds.
func DefaultGroupOptions() GroupOptions {
	return GroupOptions{
		Tolerance:     0.05,
		MinBatchSize:  2,
		MaxBatchSize:  8,
		PreserveOrder: true,
		Match:         MatchQuantized,
	}
}

// OptionsFromConfig converts validated batching settings.
func OptionsFromConfig(c tts.BatchingConfig) (GroupOptions, error) {
	mode, err := ParseMatchMode(c.Match)
	if err != nil {
		return GroupOptions{}, err
	}
	return GroupOptions{
		Tolerance:     c.Tolerance,
		MinBatchSize:  c.MinBatchSize,
		MaxBatchSize:  c.MaxBatchSize,
		PreserveOrder: c.PreserveOrder,
		Match:         mode,
	}, nil
}

func (o GroupOptions) normalized() GroupOptions {
	if o.Tolerance < 0 {
		o.Tolerance = 0
	}
	if o.MinBatchSize < 1 {
		o.MinBatchSize = 1
	}
	if o.MaxBatchSize < o.MinBatchSize {
		o.MaxBatchSize = o.MinBatchSize
	}
	return o
}

// Member is one chunk placed in a plan.
type Member struct {
	// Position is the chunk's offset in the sequence passed to Group.
	Position int
	Chunk    tts.Chunk
	// Params is the resolved parameter set. For forced individuals it is
	// the chunk's partial set completed with defaults.
	Params tts.Parameters
	// Signature is Params quantized at the plan's tolerance.
	Signature Signature
	// Forced marks a chunk that lacked a complete parameter set and was
	// therefore excluded from grouping.
	Forced bool
}

// Group is an ordered run of batchable members.
type Group struct {
	Signature Signature
	Members   []Member
}

// Params returns the representative parameters used for the whole group:
// the first member's exact values.
func (g *Group) Params() tts.Parameters {
	return g.Members[0].Params
}

// Len returns the number of members.
func (g *Group) Len() int { return len(g.Members) }

// Texts returns the member texts in group order.
func (g *Group) Texts() []string {
	texts := make([]string, len(g.Members))
	for i, m := range g.Members {
		texts[i] = m.Chunk.Text
	}
	return texts
}

// Unit is one step of a plan: either a group or a single individual.
type Unit struct {
	Group      *Group
	Individual *Member
}

// Members returns the members covered by the unit.
func (u Unit) Members() []Member {
	if u.Group != nil {
		return u.Group.Members
	}
	return []Member{*u.Individual}
}

// Params returns the parameters the unit executes with.
func (u Unit) Params() tts.Parameters {
	if u.Group != nil {
		return u.Group.Params()
	}
	return u.Individual.Params
}

// Signature returns the unit's parameter signature. Two consecutive units
// with equal signatures involve no parameter switch.
func (u Unit) Signature() Signature {
	if u.Group != nil {
		return u.Group.Signature
	}
	return u.Individual.Signature
}

func (u Unit) first() int {
	return u.Members()[0].Position
}

// Plan is the outcome of grouping: every input chunk appears in exactly one
// unit.
type Plan struct {
	units       []Unit
	groups      []*Group
	individuals []Member
	total       int
	options     GroupOptions
}

// Units returns groups and individuals in execution order.
func (p *Plan) Units() []Unit { return p.units }

// Groups returns the batch groups in execution order.
func (p *Plan) Groups() []*Group { return p.groups }

// Individuals returns the ungrouped members ordered by position.
func (p *Plan) Individuals() []Member { return p.individuals }

// Len returns the number of chunks covered.
func (p *Plan) Len() int { return p.total }

// Options returns the options the plan was built with.
func (p *Plan) Options() GroupOptions { return p.options }

// Flatten returns every member in execution order.
func (p *Plan) Flatten() []Member {
	out := make([]Member, 0, p.total)
	for _, u := range p.units {
		out = append(out, u.Members()...)
	}
	return out
}

func (p *Plan) addGroup(g *Group) {
	p.groups = append(p.groups, g)
	p.units = append(p.units, Unit{Group: g})
}

func (p *Plan) addIndividual(m Member) {
	p.individuals = append(p.individuals, m)
	mm := m
	p.units = append(p.units, Unit{Individual: &mm})
}

// Grouper partitions chunk sequences into batch groups and individuals.
type Grouper struct {
	opts GroupOptions
}

// NewGrouper creates a grouper. Out-of-range bounds are clamped.
func NewGrouper(opts GroupOptions) *Grouper {
	return &Grouper{opts: opts.normalized()}
}

// Options returns the effective options.
func (g *Grouper) Options() GroupOptions { return g.opts }

// Group partitions chunks. The input slice is not modified.
func (g *Grouper) Group(chunks []tts.Chunk) *Plan {
	plan := &Plan{total: len(chunks), options: g.opts}
	if len(chunks) == 0 {
		return plan
	}
	if g.opts.PreserveOrder {
		g.consecutive(plan, chunks)
	} else {
		g.global(plan, chunks)
	}
	return plan
}

// consecutive starts a new run whenever a chunk does not match the running
// group's first member, or lacks parameters.
func (g *Grouper) consecutive(plan *Plan, chunks []tts.Chunk) {
	var run []Member

	flush := func() {
		if len(run) > 0 {
			g.emit(plan, run)
			run = nil
		}
	}

	for pos, c := range chunks {
		m, ok := resolve(pos, c, g.opts.Tolerance)
		if !ok {
			flush()
			plan.addIndividual(m)
			continue
		}
		if len(run) > 0 && !batchable(g.opts.Match, g.opts.Tolerance, run[0].Params, m.Params) {
			flush()
		}
		run = append(run, m)
	}
	flush()
}

// global buckets matching chunks regardless of position. Units execute in
// order of their first member, and individuals are sorted by position.
func (g *Grouper) global(plan *Plan, chunks []tts.Chunk) {
	var buckets [][]Member
	var forced []Member
	bySig := make(map[Signature]int)

	for pos, c := range chunks {
		m, ok := resolve(pos, c, g.opts.Tolerance)
		if !ok {
			forced = append(forced, m)
			continue
		}

		idx := -1
		if g.opts.Match == MatchQuantized {
			if i, found := bySig[m.Signature]; found {
				idx = i
			}
		} else {
			for i, b := range buckets {
				if batchable(MatchAbsolute, g.opts.Tolerance, b[0].Params, m.Params) {
					idx = i
					break
				}
			}
		}

		if idx < 0 {
			idx = len(buckets)
			buckets = append(buckets, nil)
			bySig[m.Signature] = idx
		}
		buckets[idx] = append(buckets[idx], m)
	}

	staged := &Plan{}
	for _, b := range buckets {
		g.emit(staged, b)
	}
	for _, m := range forced {
		staged.addIndividual(m)
	}

	units := staged.units
	sort.SliceStable(units, func(i, j int) bool { return units[i].first() < units[j].first() })
	for _, u := range units {
		if u.Group != nil {
			plan.addGroup(u.Group)
		} else {
			plan.addIndividual(*u.Individual)
		}
	}
}

// emit splits a run of matching members at MaxBatchSize. Pieces smaller
// than MinBatchSize become individuals.
func (g *Grouper) emit(plan *Plan, run []Member) {
	for start := 0; start < len(run); start += g.opts.MaxBatchSize {
		end := min(start+g.opts.MaxBatchSize, len(run))
		piece := run[start:end]

		if len(piece) < g.opts.MinBatchSize {
			for _, m := range piece {
				plan.addIndividual(m)
			}
			continue
		}

		members := make([]Member, len(piece))
		copy(members, piece)
		plan.addGroup(&Group{
			Signature: members[0].Signature,
			Members:   members,
		})
	}
}

// resolve builds a member, reporting false when the chunk must be a forced
// individual.
func resolve(pos int, c tts.Chunk, tol float64) (Member, bool) {
	p, err := c.Parameters()
	if err != nil {
		p = c.ParametersOrDefault()
		return Member{Position: pos, Chunk: c, Params: p, Signature: SignatureOf(p, tol), Forced: true}, false
	}
	return Member{Position: pos, Chunk: c, Params: p, Signature: SignatureOf(p, tol)}, true
}

package tts

import (
	"fmt"
	"math"
	"strings"
)

// Parameter keys as they appear in a chunk's parameter mapping.
const (
	ParamExaggeration      = "exaggeration"
	ParamCFGWeight         = "cfg_weight"
	ParamTemperature       = "temperature"
	ParamMinP              = "min_p"
	ParamTopP              = "top_p"
	ParamRepetitionPenalty = "repetition_penalty"
)

// ParameterKeys lists every required parameter key in signature order.
var ParameterKeys = []string{
	ParamExaggeration,
	ParamCFGWeight,
	ParamTemperature,
	ParamMinP,
	ParamTopP,
	ParamRepetitionPenalty,
}

// Default generation parameters.
const (
	DefaultExaggeration      = 0.5
	DefaultCFGWeight         = 0.5
	DefaultTemperature       = 0.8
	DefaultMinP              = 0.05
	DefaultTopP              = 1.0
	DefaultRepetitionPenalty = 1.2
)

// Parameters is the full set of per-chunk generation controls.
type Parameters struct {
	Exaggeration      float64 `json:"exaggeration" yaml:"exaggeration"`
	CFGWeight         float64 `json:"cfg_weight" yaml:"cfg_weight"`
	Temperature       float64 `json:"temperature" yaml:"temperature"`
	MinP              float64 `json:"min_p" yaml:"min_p"`
	TopP              float64 `json:"top_p" yaml:"top_p"`
	RepetitionPenalty float64 `json:"repetition_penalty" yaml:"repetition_penalty"`
}

// DefaultParameters returns the documented defaults.
func DefaultParameters() Parameters {
	return Parameters{
		Exaggeration:      DefaultExaggeration,
		CFGWeight:         DefaultCFGWeight,
		Temperature:       DefaultTemperature,
		MinP:              DefaultMinP,
		TopP:              DefaultTopP,
		RepetitionPenalty: DefaultRepetitionPenalty,
	}
}

// Values returns the parameters in ParameterKeys order.
func (p Parameters) Values() [6]float64 {
	return [6]float64{p.Exaggeration, p.CFGWeight, p.Temperature, p.MinP, p.TopP, p.RepetitionPenalty}
}

// Map returns the parameters as a keyed mapping.
func (p Parameters) Map() map[string]float64 {
	v := p.Values()
	m := make(map[string]float64, len(ParameterKeys))
	for i, k := range ParameterKeys {
		m[k] = v[i]
	}
	return m
}

// Equal reports exact equality of every parameter.
func (p Parameters) Equal(o Parameters) bool {
	return p == o
}

// Within reports whether every parameter differs from o by at most tol.
func (p Parameters) Within(o Parameters, tol float64) bool {
	a, b := p.Values(), o.Values()
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol+1e-12 {
			return false
		}
	}
	return true
}

// Validate checks that every parameter is finite and non-negative.
func (p Parameters) Validate() error {
	v := p.Values()
	for i, k := range ParameterKeys {
		if math.IsNaN(v[i]) || math.IsInf(v[i], 0) || v[i] < 0 {
			return fmt.Errorf("%w: %s=%v", ErrInvalidParameter, k, v[i])
		}
	}
	return nil
}

// String renders the parameters compactly for logs.
func (p Parameters) String() string {
	return fmt.Sprintf("exg=%.3f cfg=%.3f temp=%.3f min_p=%.3f top_p=%.3f rep=%.3f",
		p.Exaggeration, p.CFGWeight, p.Temperature, p.MinP, p.TopP, p.RepetitionPenalty)
}

// ParametersFromMap builds Parameters from a mapping. Every key in
// ParameterKeys must be present; ErrMissingParameters names the first gap.
func ParametersFromMap(m map[string]float64) (Parameters, error) {
	if len(m) == 0 {
		return Parameters{}, ErrMissingParameters
	}
	var missing []string
	for _, k := range ParameterKeys {
		if _, ok := m[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return Parameters{}, fmt.Errorf("%w: %s", ErrMissingParameters, strings.Join(missing, ", "))
	}
	p := Parameters{
		Exaggeration:      m[ParamExaggeration],
		CFGWeight:         m[ParamCFGWeight],
		Temperature:       m[ParamTemperature],
		MinP:              m[ParamMinP],
		TopP:              m[ParamTopP],
		RepetitionPenalty: m[ParamRepetitionPenalty],
	}
	if err := p.Validate(); err != nil {
		return Parameters{}, err
	}
	return p, nil
}

// ParametersWithDefaults fills any absent key with its default. It never
// fails and is meant for display and analysis, not grouping decisions.
func ParametersWithDefaults(m map[string]float64) Parameters {
	p := DefaultParameters()
	if v, ok := m[ParamExaggeration]; ok {
		p.Exaggeration = v
	}
	if v, ok := m[ParamCFGWeight]; ok {
		p.CFGWeight = v
	}
	if v, ok := m[ParamTemperature]; ok {
		p.Temperature = v
	}
	if v, ok := m[ParamMinP]; ok {
		p.MinP = v
	}
	if v, ok := m[ParamTopP]; ok {
		p.TopP = v
	}
	if v, ok := m[ParamRepetitionPenalty]; ok {
		p.RepetitionPenalty = v
	}
	return p
}

// Chunk is an immutable unit of work: one text plus its generation controls.
type Chunk struct {
	Index    int                `json:"index" yaml:"index"`
	Text     string             `json:"text" yaml:"text"`
	Params   map[string]float64 `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Boundary string             `json:"boundary_type,omitempty" yaml:"boundary_type,omitempty"`
}

// NewChunk builds a chunk carrying a complete parameter set.
func NewChunk(index int, text string, params Parameters) Chunk {
	return Chunk{Index: index, Text: text, Params: params.Map()}
}

// Parameters resolves the chunk's complete parameter set.
func (c Chunk) Parameters() (Parameters, error) {
	return ParametersFromMap(c.Params)
}

// HasParameters reports whether the chunk carries a complete, valid set.
func (c Chunk) HasParameters() bool {
	_, err := c.Parameters()
	return err == nil
}

// ParametersOrDefault resolves parameters, substituting defaults for gaps.
func (c Chunk) ParametersOrDefault() Parameters {
	if p, err := c.Parameters(); err == nil {
		return p
	}
	return ParametersWithDefaults(c.Params)
}

// Validate checks the chunk text.
func (c Chunk) Validate() error {
	if strings.TrimSpace(c.Text) == "" {
		return fmt.Errorf("chunk %d: %w", c.Index, ErrEmptyText)
	}
	return nil
}

// Preview returns a short prefix of the text for logging.
func (c Chunk) Preview() string {
	const n = 30
	r := []rune(c.Text)
	if len(r) <= n {
		return c.Text
	}
	return string(r[:n]) + "…"
}

package tuner

import (
	"fmt"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// NumParams is the size of the tunable vector.
const NumParams = 9

// Canonical parameter indices.
const (
	IdxCPuct = iota
	IdxFpuValue
	IdxPolicyTemp
	IdxDrawScoreSideToMove
	IdxDrawScoreOpponent
	IdxDrawScoreWhite
	IdxDrawScoreBlack
	IdxSelectionTemp
	IdxValueCutoff
)

// ParameterVector holds the nine search-control parameters in canonical
// order. Indices 0-6 map to engine options; 7-8 drive the selection model.
type ParameterVector [NumParams]float64

// ParamKind separates the update regimes of the two parameter families.
type ParamKind int

const (
	KindContinuous ParamKind = iota
	KindInteger
)

// ParamField describes one slot of the vector: its legal range, the
// finite-difference probe step, and the engine option it maps to (empty for
// the two selection-model parameters, which the engine never sees).
type ParamField struct {
	Name      string
	Min       float64
	Max       float64
	Delta     float64
	Kind      ParamKind
	UCIOption string
}

// Fields is the canonical field table. Delta is roughly 1% of each range
// (0.1% for FPU, which is sensitive at centipawn scale).
var Fields = [NumParams]ParamField{
	{Name: "cpuct", Min: 0, Max: 100, Delta: 1.0, Kind: KindContinuous, UCIOption: "CPuct"},
	{Name: "fpu_value", Min: -100, Max: 100, Delta: 0.2, Kind: KindContinuous, UCIOption: "FpuValue"},
	{Name: "policy_temp", Min: 0.1, Max: 10, Delta: 0.1, Kind: KindContinuous, UCIOption: "PolicySoftmaxTemp"},
	{Name: "draw_score_stm", Min: -50, Max: 50, Delta: 1.0, Kind: KindInteger, UCIOption: "DrawScoreSideToMove"},
	{Name: "draw_score_opp", Min: -50, Max: 50, Delta: 1.0, Kind: KindInteger, UCIOption: "DrawScoreOpponent"},
	{Name: "draw_score_white", Min: -50, Max: 50, Delta: 1.0, Kind: KindInteger, UCIOption: "DrawScoreWhite"},
	{Name: "draw_score_black", Min: -50, Max: 50, Delta: 1.0, Kind: KindInteger, UCIOption: "DrawScoreBlack"},
	{Name: "selection_temp", Min: 0.0001, Max: 100, Delta: 0.1, Kind: KindContinuous, UCIOption: ""},
	{Name: "value_cutoff", Min: 0, Max: 100, Delta: 1.0, Kind: KindContinuous, UCIOption: ""},
}

// DefaultParams returns a reasonable starting vector: lc0-ish defaults for
// the engine options and a neutral selection model.
func DefaultParams() ParameterVector {
	return ParameterVector{
		IdxCPuct:               1.75,
		IdxFpuValue:            0.33,
		IdxPolicyTemp:          1.36,
		IdxDrawScoreSideToMove: 0,
		IdxDrawScoreOpponent:   0,
		IdxDrawScoreWhite:      0,
		IdxDrawScoreBlack:      0,
		IdxSelectionTemp:       1.0,
		IdxValueCutoff:         50,
	}
}

// Validate clamps every field to its legal range. It is idempotent.
func Validate(p ParameterVector) ParameterVector {
	for i, f := range Fields {
		if p[i] < f.Min {
			p[i] = f.Min
		}
		if p[i] > f.Max {
			p[i] = f.Max
		}
	}
	return p
}

// CheckValid reports an ErrInvalidParameter if any field is outside its legal
// range. Out-of-range values indicate a bug in the validator or update rule,
// so callers treat this as fatal.
func CheckValid(p ParameterVector) error {
	for i, f := range Fields {
		if p[i] < f.Min || p[i] > f.Max {
			return fmt.Errorf("%w: %s=%v outside [%v, %v]",
				ErrInvalidParameter, f.Name, p[i], f.Min, f.Max)
		}
	}
	return nil
}

// ParamsFromYAML overlays named values from a YAML document onto base.
// Unknown keys are rejected so a typo in an override file fails loudly.
func ParamsFromYAML(data []byte, base ParameterVector) (ParameterVector, error) {
	var raw map[string]float64
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return base, fmt.Errorf("parse params yaml: %w", err)
	}
	index := make(map[string]int, NumParams)
	for i, f := range Fields {
		index[f.Name] = i
	}
	for k, v := range raw {
		i, ok := index[strings.TrimSpace(k)]
		if !ok {
			return base, fmt.Errorf("unknown parameter %q in overrides", k)
		}
		base[i] = v
	}
	if err := CheckValid(base); err != nil {
		return base, err
	}
	return base, nil
}

// String renders the vector as name=value pairs for logs and reports.
func (p ParameterVector) String() string {
	var sb strings.Builder
	for i, f := range Fields {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(f.Name)
		sb.WriteByte('=')
		sb.WriteString(strconv.FormatFloat(p[i], 'g', 6, 64))
	}
	return sb.String()
}

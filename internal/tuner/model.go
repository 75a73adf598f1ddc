package tuner

import "math"

// SelectionProbabilities converts the evaluator's per-move statistics into
// the probability the modelled player selects each move. Moves whose value
// estimate trails the most-visited move's by more than valueCutoff/50 are
// excluded; the rest are weighted by (visits/maxVisits)^(1/temperature) and
// normalized. Returns ErrEmptyDistribution when the cutoff excludes every
// move.
func SelectionProbabilities(params ParameterVector, stats []MoveStat) ([]float64, error) {
	if len(stats) == 0 {
		return nil, ErrEmptyDistribution
	}

	temperature := params[IdxSelectionTemp]
	cutoff := params[IdxValueCutoff]

	maxN := stats[0].Visits
	refQ := stats[0].Q
	for _, s := range stats[1:] {
		if s.Visits > maxN {
			maxN = s.Visits
			refQ = s.Q
		}
	}
	minValue := refQ - cutoff/50

	weights := make([]float64, len(stats))
	sum := 0.0
	for i, s := range stats {
		if s.Q < minValue {
			continue
		}
		var w float64
		if maxN > 0 {
			w = math.Pow(float64(s.Visits)/float64(maxN), 1/temperature)
		}
		weights[i] = w
		sum += w
	}
	if sum == 0 {
		return nil, ErrEmptyDistribution
	}

	for i := range weights {
		weights[i] /= sum
	}
	return weights, nil
}

// Indicator builds the one-hot vector over stats marking the human move, or
// all zeros when the engine never considered it.
func Indicator(stats []MoveStat, humanMove string) []float64 {
	ind := make([]float64, len(stats))
	for i, s := range stats {
		if s.Move == humanMove {
			ind[i] = 1
			break
		}
	}
	return ind
}

// BestMoveIndex returns the index of the single highest-probability move, or
// -1 when the maximum is shared. A tied maximum never counts as a prediction.
func BestMoveIndex(probs []float64) int {
	if len(probs) == 0 {
		return -1
	}
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	for i, p := range probs {
		if i != best && p == probs[best] {
			return -1
		}
	}
	return best
}

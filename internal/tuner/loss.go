package tuner

import "math"

// LossCap bounds the divergence of a single example. Without it an example
// the engine never considers (or one excluded by the cutoff) contributes an
// infinite loss.
const LossCap = 5.0

// CrossEntropy computes the capped categorical cross-entropy between the
// one-hot indicator and the selection distribution, aligned by move index:
// -sum(ind_i * log2(prob_i)), with 0*log2(0) taken as 0. An indicator entry
// on a zero-probability move, or an all-zero indicator (the human move was
// never considered), yields the cap rather than infinity.
func CrossEntropy(indicator, probs []float64) float64 {
	loss := 0.0
	hit := false
	for i, ind := range indicator {
		if ind == 0 {
			continue
		}
		hit = true
		if i >= len(probs) || probs[i] <= 0 {
			return LossCap
		}
		loss += -ind * math.Log2(probs[i])
	}
	if !hit {
		return LossCap
	}
	if loss > LossCap {
		return LossCap
	}
	return loss
}

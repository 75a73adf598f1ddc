package tuner

// ApplyUpdate produces the next parameter vector from the estimated
// gradient. Continuous parameters descend by learningRate*gradient. The
// draw-score family is integer-valued engine state where fractional descent
// is meaningless, so those step by exactly one in the loss-reducing
// direction and ignore the gradient magnitude. The result is clamped to the
// legal ranges.
func ApplyUpdate(params ParameterVector, grad GradientVector, learningRate float64) ParameterVector {
	for i, f := range Fields {
		switch f.Kind {
		case KindInteger:
			if grad[i] < 0 {
				params[i] += 1
			} else if grad[i] > 0 {
				params[i] -= 1
			}
		default:
			params[i] -= learningRate * grad[i]
		}
	}
	return Validate(params)
}

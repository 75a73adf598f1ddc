package tuner

import (
	"context"
	"errors"
	"math"

	"golang.org/x/sync/errgroup"
)

// GradientVector mirrors the parameter layout; entry i is the estimated
// partial derivative of the example loss with respect to parameter i.
type GradientVector [NumParams]float64

// GradientEstimator computes one-sided finite-difference gradients by
// re-querying the evaluator once per parameter. With Workers > 1 the probes
// run concurrently; that is only safe when the evaluator multiplexes over
// independent engine sessions, since concurrent queries against a single
// engine with different configurations corrupt each other.
type GradientEstimator struct {
	Evaluator Evaluator
	Workers   int
}

// Estimate returns the gradient for one example given its unperturbed loss.
// The input vector is never mutated: each probe perturbs a copy, validates
// it, and queries the evaluator, so the caller's parameters are exactly as
// they were on entry.
func (g *GradientEstimator) Estimate(ctx context.Context, params ParameterVector, fen, humanMove string, baseLoss float64) (GradientVector, error) {
	var grad GradientVector

	if g.Workers > 1 {
		eg, gctx := errgroup.WithContext(ctx)
		eg.SetLimit(g.Workers)
		for i := range Fields {
			eg.Go(func() error {
				d, err := g.probe(gctx, params, i, fen, humanMove, baseLoss)
				if err != nil {
					return err
				}
				grad[i] = d
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return GradientVector{}, err
		}
		return grad, nil
	}

	for i := range Fields {
		d, err := g.probe(ctx, params, i, fen, humanMove, baseLoss)
		if err != nil {
			return GradientVector{}, err
		}
		grad[i] = d
	}
	return grad, nil
}

func (g *GradientEstimator) probe(ctx context.Context, params ParameterVector, i int, fen, humanMove string, baseLoss float64) (float64, error) {
	perturbed := params
	perturbed[i] += Fields[i].Delta
	perturbed = Validate(perturbed)

	loss, err := ExampleLoss(ctx, g.Evaluator, perturbed, fen, humanMove)
	if err != nil {
		return 0, err
	}
	return (loss - baseLoss) / math.Abs(Fields[i].Delta), nil
}

// ExampleLoss runs the full forward pass for one example: evaluator query,
// selection distribution, one-hot indicator, capped cross-entropy. A
// distribution emptied by the value cutoff scores the cap, so perturbation
// probes stay finite; evaluator failures propagate.
func ExampleLoss(ctx context.Context, ev Evaluator, params ParameterVector, fen, humanMove string) (float64, error) {
	stats, err := ev.Evaluate(ctx, fen, params)
	if err != nil {
		return 0, err
	}
	probs, err := SelectionProbabilities(params, stats)
	if err != nil {
		if errors.Is(err, ErrEmptyDistribution) {
			return LossCap, nil
		}
		return 0, err
	}
	return CrossEntropy(Indicator(stats, humanMove), probs), nil
}

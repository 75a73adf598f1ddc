package tuner

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
)

// paramSensitiveEvaluator returns move statistics whose visit counts depend
// on the active parameters, so every finite-difference probe sees a
// different distribution.
func paramSensitiveEvaluator(calls *atomic.Int64) EvaluatorFunc {
	return func(_ context.Context, _ string, params ParameterVector) ([]MoveStat, error) {
		if calls != nil {
			calls.Add(1)
		}
		base := 100 + int(10*params[IdxCPuct]) + int(params[IdxDrawScoreSideToMove])
		return []MoveStat{
			{Move: "e2e4", Visits: 5 * base, Q: 0.10},
			{Move: "d2d4", Visits: 3 * base, Q: 0.05},
			{Move: "g1f3", Visits: 2 * base, Q: 0.00},
		}, nil
	}
}

func TestEstimateMatchesIndependentProbes(t *testing.T) {
	ev := paramSensitiveEvaluator(nil)
	params := DefaultParams()
	ctx := context.Background()

	baseLoss, err := ExampleLoss(ctx, ev, params, "startpos", "d2d4")
	if err != nil {
		t.Fatalf("base loss: %v", err)
	}

	est := &GradientEstimator{Evaluator: ev}
	grad, err := est.Estimate(ctx, params, "startpos", "d2d4", baseLoss)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}

	for i := range Fields {
		perturbed := params
		perturbed[i] += Fields[i].Delta
		perturbed = Validate(perturbed)
		loss, err := ExampleLoss(ctx, ev, perturbed, "startpos", "d2d4")
		if err != nil {
			t.Fatalf("probe %s: %v", Fields[i].Name, err)
		}
		want := (loss - baseLoss) / math.Abs(Fields[i].Delta)
		if math.Abs(grad[i]-want) > 1e-12 {
			t.Fatalf("%s: got %v, want %v", Fields[i].Name, grad[i], want)
		}
	}
}

func TestEstimateLeavesParamsUntouched(t *testing.T) {
	ev := paramSensitiveEvaluator(nil)
	params := DefaultParams()
	before := params

	est := &GradientEstimator{Evaluator: ev}
	if _, err := est.Estimate(context.Background(), params, "startpos", "e2e4", 1.0); err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if params != before {
		t.Fatalf("parameters mutated: %v != %v", params, before)
	}
}

func TestEstimateQueriesOncePerParameter(t *testing.T) {
	var calls atomic.Int64
	est := &GradientEstimator{Evaluator: paramSensitiveEvaluator(&calls)}
	if _, err := est.Estimate(context.Background(), DefaultParams(), "startpos", "e2e4", 1.0); err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if got := calls.Load(); got != NumParams {
		t.Fatalf("got %d evaluator calls, want %d", got, NumParams)
	}
}

func TestEstimateConcurrentMatchesSequential(t *testing.T) {
	ev := paramSensitiveEvaluator(nil)
	params := DefaultParams()
	ctx := context.Background()

	seq := &GradientEstimator{Evaluator: ev}
	par := &GradientEstimator{Evaluator: ev, Workers: 4}

	want, err := seq.Estimate(ctx, params, "startpos", "d2d4", 2.0)
	if err != nil {
		t.Fatalf("sequential: %v", err)
	}
	got, err := par.Estimate(ctx, params, "startpos", "d2d4", 2.0)
	if err != nil {
		t.Fatalf("concurrent: %v", err)
	}
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestEstimatePropagatesEvaluatorFailure(t *testing.T) {
	failing := EvaluatorFunc(func(context.Context, string, ParameterVector) ([]MoveStat, error) {
		return nil, ErrEvaluatorUnavailable
	})
	est := &GradientEstimator{Evaluator: failing}
	if _, err := est.Estimate(context.Background(), DefaultParams(), "startpos", "e2e4", 1.0); !errors.Is(err, ErrEvaluatorUnavailable) {
		t.Fatalf("got %v, want ErrEvaluatorUnavailable", err)
	}
}

func TestExampleLossCapsEmptyDistribution(t *testing.T) {
	empty := EvaluatorFunc(func(context.Context, string, ParameterVector) ([]MoveStat, error) {
		return []MoveStat{{Move: "e2e4", Visits: 0, Q: 0.1}}, nil
	})
	got, err := ExampleLoss(context.Background(), empty, DefaultParams(), "startpos", "e2e4")
	if err != nil {
		t.Fatalf("example loss: %v", err)
	}
	if got != LossCap {
		t.Fatalf("got %v, want cap %v", got, LossCap)
	}
}

package tuner

import "context"

// MoveStat is one considered move with the engine's visit count and value
// estimate for it. Produced fresh by every evaluator query.
type MoveStat struct {
	Move   string
	Visits int
	Q      float64
}

// Evaluator is the position-evaluation contract the tuning loop depends on.
// Implementations run a fixed-effort search of the given position under the
// supplied parameters and report per-move statistics. The result must be
// non-empty with unique moves; any engine failure is reported as an error
// wrapping ErrEvaluatorUnavailable. Parameter changes must be fully applied
// before the returned statistics are produced.
type Evaluator interface {
	Evaluate(ctx context.Context, fen string, params ParameterVector) ([]MoveStat, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, fen string, params ParameterVector) ([]MoveStat, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, fen string, params ParameterVector) ([]MoveStat, error) {
	return f(ctx, fen, params)
}

package uci

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/humantune/internal/tuner"
)

// DefaultSearchNodes is the fixed search effort per evaluator query.
const DefaultSearchNodes = 1000

// Evaluator implements tuner.Evaluator over a session pool. Each query
// acquires a session, pushes the parameter snapshot, confirms it took
// effect, and runs one fixed-node search.
type Evaluator struct {
	pool    *Pool
	nodes   int
	timeout time.Duration
	logger  *zap.Logger
}

// NewEvaluator wraps the pool. timeout is a safety ceiling per query; the
// search itself is node-bounded, so zero disables the ceiling entirely.
func NewEvaluator(pool *Pool, nodes int, timeout time.Duration, logger *zap.Logger) *Evaluator {
	if nodes <= 0 {
		nodes = DefaultSearchNodes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{pool: pool, nodes: nodes, timeout: timeout, logger: logger}
}

func (e *Evaluator) Evaluate(ctx context.Context, fen string, params tuner.ParameterVector) ([]tuner.MoveStat, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	session, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire session: %v", tuner.ErrEvaluatorUnavailable, err)
	}
	var opErr error
	defer func() { e.pool.Release(session, opErr) }()

	if opErr = session.ApplyParams(ctx, params); opErr != nil {
		return nil, fmt.Errorf("%w: apply params: %v", tuner.ErrEvaluatorUnavailable, opErr)
	}

	stats, err := session.Search(ctx, fen, e.nodes)
	if err != nil {
		opErr = err
		e.logger.Warn("engine search failed", zap.String("fen", fen), zap.Error(err))
		return nil, fmt.Errorf("%w: search: %v", tuner.ErrEvaluatorUnavailable, err)
	}
	if len(stats) == 0 {
		opErr = fmt.Errorf("no move statistics")
		return nil, fmt.Errorf("%w: engine reported no move statistics", tuner.ErrEvaluatorUnavailable)
	}
	return stats, nil
}

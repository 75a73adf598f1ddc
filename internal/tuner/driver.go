package tuner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Example is one (position, human move) pair: the position as FEN with the
// target player to move, and the move they actually played in UCI notation.
type Example struct {
	FEN  string
	Move string
}

// ExampleSource feeds examples to the driver. Next reports false when the
// stream is finished; a cycling source never does.
type ExampleSource interface {
	Next() (Example, bool)
}

// StopPolicy decides when a session is converged. The iteration cap is the
// stock policy; alternatives must still bound the step count somehow.
type StopPolicy interface {
	Done(step int, grad GradientVector) bool
}

// IterationCap stops after a fixed number of update steps.
type IterationCap int

func (c IterationCap) Done(step int, _ GradientVector) bool { return step >= int(c) }

// DefaultIterationBudget is the stock session length.
const DefaultIterationBudget = 35000

// DriverState tracks the session lifecycle.
type DriverState int

const (
	StateRunning DriverState = iota
	StateConverged
)

// StepRecord is what the driver emits after every completed update: the new
// vector, the example's loss, and whether the human move was the single
// highest-probability prediction.
type StepRecord struct {
	Step    int
	Params  ParameterVector
	Loss    float64
	Correct bool
}

// DriverConfig carries the knobs of a tuning session.
type DriverConfig struct {
	LearningRate       float64
	Stop               StopPolicy
	GradientWorkers    int
	CheckpointInterval int
}

// Driver owns the parameter vector for the lifetime of a session and runs
// the evaluate/loss/gradient/update loop over an example stream.
type Driver struct {
	evaluator Evaluator
	estimator GradientEstimator
	cfg       DriverConfig
	logger    *zap.Logger

	params  ParameterVector
	state   DriverState
	step    int
	skipped int

	onStep     func(StepRecord)
	checkpoint func(ctx context.Context, step int, params ParameterVector) error
}

// Summary reports a finished session.
type Summary struct {
	Steps   int
	Skipped int
	Final   ParameterVector
}

// HoldoutReport is the mean loss and prediction accuracy over a held-out
// example set, with no parameter updates.
type HoldoutReport struct {
	Examples int
	Skipped  int
	MeanLoss float64
	Accuracy float64
}

func NewDriver(ev Evaluator, initial ParameterVector, cfg DriverConfig, logger *zap.Logger) (*Driver, error) {
	if ev == nil {
		return nil, errors.New("nil evaluator")
	}
	if err := CheckValid(initial); err != nil {
		return nil, err
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.001
	}
	if cfg.Stop == nil {
		cfg.Stop = IterationCap(DefaultIterationBudget)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		evaluator: ev,
		estimator: GradientEstimator{Evaluator: ev, Workers: cfg.GradientWorkers},
		cfg:       cfg,
		logger:    logger,
		params:    initial,
		state:     StateRunning,
	}, nil
}

// OnStep registers a sink invoked after every completed update, in step
// order. Must be set before Run.
func (d *Driver) OnStep(fn func(StepRecord)) { d.onStep = fn }

// OnCheckpoint registers an optional checkpoint writer invoked every
// CheckpointInterval steps. Write failures are logged and ignored; a flaky
// checkpoint store must not kill a long session.
func (d *Driver) OnCheckpoint(fn func(ctx context.Context, step int, params ParameterVector) error) {
	d.checkpoint = fn
}

// Resume fast-forwards the driver to a checkpointed step and vector.
func (d *Driver) Resume(step int, params ParameterVector) error {
	if err := CheckValid(params); err != nil {
		return err
	}
	d.step = step
	d.params = params
	return nil
}

// Params returns the current vector snapshot.
func (d *Driver) Params() ParameterVector { return d.params }

// State returns the session state.
func (d *Driver) State() DriverState { return d.state }

// Run consumes examples until the stop policy fires, the source drains, or
// the context is cancelled. Each example costs 1+NumParams evaluator queries.
// Evaluator failures and cutoff-emptied distributions skip the example
// without logging a step; everything else is an update.
func (d *Driver) Run(ctx context.Context, src ExampleSource) (Summary, error) {
	var lastGrad GradientVector
	for !d.cfg.Stop.Done(d.step, lastGrad) {
		if err := ctx.Err(); err != nil {
			return d.summary(), err
		}
		ex, ok := src.Next()
		if !ok {
			d.logger.Info("example stream drained before budget",
				zap.Int("step", d.step))
			break
		}

		grad, rec, err := d.processExample(ctx, ex)
		if err != nil {
			if errors.Is(err, ErrInvalidParameter) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded) {
				return d.summary(), err
			}
			d.skipped++
			d.logger.Warn("skipping example",
				zap.String("fen", ex.FEN),
				zap.String("move", ex.Move),
				zap.Error(err))
			continue
		}
		lastGrad = grad
		d.step++
		rec.Step = d.step
		if d.onStep != nil {
			d.onStep(rec)
		}
		d.maybeCheckpoint(ctx)
		if d.step%1000 == 0 {
			d.logger.Info("tuning progress",
				zap.Int("step", d.step),
				zap.Int("skipped", d.skipped),
				zap.Float64("loss", rec.Loss),
				zap.String("params", d.params.String()))
		}
	}
	d.state = StateConverged
	return d.summary(), nil
}

// processExample runs the forward pass, gradient estimate, and update for
// one example. The gradient is recomputed from zero every example; there is
// no cross-example accumulation.
func (d *Driver) processExample(ctx context.Context, ex Example) (GradientVector, StepRecord, error) {
	snapshot := d.params

	stats, err := d.evaluator.Evaluate(ctx, ex.FEN, snapshot)
	if err != nil {
		return GradientVector{}, StepRecord{}, err
	}
	probs, err := SelectionProbabilities(snapshot, stats)
	if err != nil {
		return GradientVector{}, StepRecord{}, err
	}

	indicator := Indicator(stats, ex.Move)
	loss := CrossEntropy(indicator, probs)

	humanIdx := -1
	for i := range indicator {
		if indicator[i] != 0 {
			humanIdx = i
			break
		}
	}
	correct := humanIdx >= 0 && BestMoveIndex(probs) == humanIdx

	grad, err := d.estimator.Estimate(ctx, snapshot, ex.FEN, ex.Move, loss)
	if err != nil {
		return GradientVector{}, StepRecord{}, err
	}

	next := ApplyUpdate(snapshot, grad, d.cfg.LearningRate)
	if err := CheckValid(next); err != nil {
		return GradientVector{}, StepRecord{}, fmt.Errorf("update produced bad vector: %w", err)
	}
	d.params = next

	return grad, StepRecord{Params: next, Loss: loss, Correct: correct}, nil
}

// EvaluateHoldout measures the current vector against examples that took no
// part in tuning. Failed evaluations are skipped, mirroring Run.
func (d *Driver) EvaluateHoldout(ctx context.Context, examples []Example) (HoldoutReport, error) {
	var rep HoldoutReport
	totalLoss := 0.0
	correct := 0
	for _, ex := range examples {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		stats, err := d.evaluator.Evaluate(ctx, ex.FEN, d.params)
		if err != nil {
			rep.Skipped++
			continue
		}
		probs, err := SelectionProbabilities(d.params, stats)
		if err != nil {
			rep.Skipped++
			continue
		}
		indicator := Indicator(stats, ex.Move)
		totalLoss += CrossEntropy(indicator, probs)
		humanIdx := -1
		for i := range indicator {
			if indicator[i] != 0 {
				humanIdx = i
				break
			}
		}
		if humanIdx >= 0 && BestMoveIndex(probs) == humanIdx {
			correct++
		}
		rep.Examples++
	}
	if rep.Examples > 0 {
		rep.MeanLoss = totalLoss / float64(rep.Examples)
		rep.Accuracy = float64(correct) / float64(rep.Examples)
	}
	return rep, nil
}

func (d *Driver) maybeCheckpoint(ctx context.Context) {
	if d.checkpoint == nil || d.cfg.CheckpointInterval <= 0 {
		return
	}
	if d.step%d.cfg.CheckpointInterval != 0 {
		return
	}
	if err := d.checkpoint(ctx, d.step, d.params); err != nil {
		d.logger.Warn("checkpoint write failed", zap.Int("step", d.step), zap.Error(err))
	}
}

func (d *Driver) summary() Summary {
	return Summary{Steps: d.step, Skipped: d.skipped, Final: d.params}
}

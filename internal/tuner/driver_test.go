package tuner

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type listSource struct {
	examples []Example
	i        int
	cycle    bool
}

func (s *listSource) Next() (Example, bool) {
	if len(s.examples) == 0 {
		return Example{}, false
	}
	if s.i >= len(s.examples) {
		if !s.cycle {
			return Example{}, false
		}
		s.i = 0
	}
	ex := s.examples[s.i]
	s.i++
	return ex, true
}

func newTestDriver(t *testing.T, ev Evaluator, cfg DriverConfig) *Driver {
	t.Helper()
	d, err := NewDriver(ev, DefaultParams(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	return d
}

func TestDriverRunsToBudget(t *testing.T) {
	d := newTestDriver(t, paramSensitiveEvaluator(nil), DriverConfig{Stop: IterationCap(5)})

	var steps []int
	d.OnStep(func(rec StepRecord) { steps = append(steps, rec.Step) })

	src := &listSource{examples: []Example{{FEN: "startpos", Move: "d2d4"}}, cycle: true}
	sum, err := d.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Steps != 5 || sum.Skipped != 0 {
		t.Fatalf("summary = %+v, want 5 steps 0 skipped", sum)
	}
	if d.State() != StateConverged {
		t.Fatalf("state = %v, want converged", d.State())
	}
	for i, s := range steps {
		if s != i+1 {
			t.Fatalf("step records out of order: %v", steps)
		}
	}
}

func TestDriverSkipsFailedExamples(t *testing.T) {
	ok := paramSensitiveEvaluator(nil)
	ev := EvaluatorFunc(func(ctx context.Context, fen string, p ParameterVector) ([]MoveStat, error) {
		if fen == "bad" {
			return nil, errors.New("engine hiccup")
		}
		return ok(ctx, fen, p)
	})

	d := newTestDriver(t, ev, DriverConfig{Stop: IterationCap(10)})
	src := &listSource{examples: []Example{
		{FEN: "a", Move: "e2e4"},
		{FEN: "bad", Move: "e2e4"},
		{FEN: "b", Move: "d2d4"},
	}}
	sum, err := d.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Steps != 2 || sum.Skipped != 1 {
		t.Fatalf("summary = %+v, want 2 steps 1 skipped", sum)
	}
}

func TestDriverSkipsEmptyDistribution(t *testing.T) {
	ev := EvaluatorFunc(func(context.Context, string, ParameterVector) ([]MoveStat, error) {
		return []MoveStat{{Move: "e2e4", Visits: 0, Q: 0.1}}, nil
	})
	d := newTestDriver(t, ev, DriverConfig{Stop: IterationCap(10)})
	src := &listSource{examples: []Example{{FEN: "a", Move: "e2e4"}}}
	sum, err := d.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Steps != 0 || sum.Skipped != 1 {
		t.Fatalf("summary = %+v, want 0 steps 1 skipped", sum)
	}
}

func TestDriverStopsOnCancelledContext(t *testing.T) {
	d := newTestDriver(t, paramSensitiveEvaluator(nil), DriverConfig{Stop: IterationCap(100)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &listSource{examples: []Example{{FEN: "a", Move: "e2e4"}}, cycle: true}
	if _, err := d.Run(ctx, src); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestDriverFirstStepRecord(t *testing.T) {
	ev := paramSensitiveEvaluator(nil)
	d := newTestDriver(t, ev, DriverConfig{Stop: IterationCap(1), LearningRate: 0.01})

	var rec StepRecord
	d.OnStep(func(r StepRecord) { rec = r })

	ex := Example{FEN: "startpos", Move: "d2d4"}
	wantLoss, err := ExampleLoss(context.Background(), ev, DefaultParams(), ex.FEN, ex.Move)
	if err != nil {
		t.Fatalf("reference loss: %v", err)
	}

	if _, err := d.Run(context.Background(), &listSource{examples: []Example{ex}, cycle: true}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if rec.Loss != wantLoss {
		t.Fatalf("loss = %v, want %v", rec.Loss, wantLoss)
	}
	if rec.Params != d.Params() {
		t.Fatalf("record params %v do not match driver params %v", rec.Params, d.Params())
	}
	if err := CheckValid(rec.Params); err != nil {
		t.Fatalf("updated vector invalid: %v", err)
	}
}

func TestDriverCheckpointCadence(t *testing.T) {
	d := newTestDriver(t, paramSensitiveEvaluator(nil), DriverConfig{
		Stop:               IterationCap(5),
		CheckpointInterval: 2,
	})

	var at []int
	d.OnCheckpoint(func(_ context.Context, step int, _ ParameterVector) error {
		at = append(at, step)
		return nil
	})

	src := &listSource{examples: []Example{{FEN: "a", Move: "e2e4"}}, cycle: true}
	if _, err := d.Run(context.Background(), src); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(at) != 2 || at[0] != 2 || at[1] != 4 {
		t.Fatalf("checkpoints at %v, want [2 4]", at)
	}
}

func TestDriverCheckpointFailureIsNotFatal(t *testing.T) {
	d := newTestDriver(t, paramSensitiveEvaluator(nil), DriverConfig{
		Stop:               IterationCap(3),
		CheckpointInterval: 1,
	})
	d.OnCheckpoint(func(context.Context, int, ParameterVector) error {
		return errors.New("redis down")
	})

	src := &listSource{examples: []Example{{FEN: "a", Move: "e2e4"}}, cycle: true}
	sum, err := d.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Steps != 3 {
		t.Fatalf("steps = %d, want 3", sum.Steps)
	}
}

func TestDriverResume(t *testing.T) {
	d := newTestDriver(t, paramSensitiveEvaluator(nil), DriverConfig{Stop: IterationCap(102)})

	resumed := DefaultParams()
	resumed[IdxCPuct] = 2.5
	if err := d.Resume(100, resumed); err != nil {
		t.Fatalf("resume: %v", err)
	}

	src := &listSource{examples: []Example{{FEN: "a", Move: "e2e4"}}, cycle: true}
	sum, err := d.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Steps != 102 {
		t.Fatalf("steps = %d, want 102", sum.Steps)
	}
}

func TestDriverResumeRejectsInvalidVector(t *testing.T) {
	d := newTestDriver(t, paramSensitiveEvaluator(nil), DriverConfig{})
	bad := DefaultParams()
	bad[IdxPolicyTemp] = 0
	if err := d.Resume(10, bad); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("got %v, want ErrInvalidParameter", err)
	}
}

func TestEvaluateHoldout(t *testing.T) {
	// e2e4 always carries the most visits, so it is the only correct
	// prediction among these examples.
	d := newTestDriver(t, paramSensitiveEvaluator(nil), DriverConfig{})
	before := d.Params()

	rep, err := d.EvaluateHoldout(context.Background(), []Example{
		{FEN: "a", Move: "e2e4"},
		{FEN: "b", Move: "d2d4"},
		{FEN: "c", Move: "a1a1"},
	})
	if err != nil {
		t.Fatalf("holdout: %v", err)
	}
	if rep.Examples != 3 || rep.Skipped != 0 {
		t.Fatalf("report = %+v, want 3 examples 0 skipped", rep)
	}
	if rep.Accuracy < 0.33 || rep.Accuracy > 0.34 {
		t.Fatalf("accuracy = %v, want 1/3", rep.Accuracy)
	}
	if rep.MeanLoss <= 0 || rep.MeanLoss > LossCap {
		t.Fatalf("mean loss out of range: %v", rep.MeanLoss)
	}
	if d.Params() != before {
		t.Fatalf("holdout evaluation changed the vector")
	}
}

func TestEvaluateHoldoutSkipsFailures(t *testing.T) {
	ok := paramSensitiveEvaluator(nil)
	ev := EvaluatorFunc(func(ctx context.Context, fen string, p ParameterVector) ([]MoveStat, error) {
		if fen == "bad" {
			return nil, errors.New("engine hiccup")
		}
		return ok(ctx, fen, p)
	})
	d := newTestDriver(t, ev, DriverConfig{})
	rep, err := d.EvaluateHoldout(context.Background(), []Example{
		{FEN: "a", Move: "e2e4"},
		{FEN: "bad", Move: "e2e4"},
	})
	if err != nil {
		t.Fatalf("holdout: %v", err)
	}
	if rep.Examples != 1 || rep.Skipped != 1 {
		t.Fatalf("report = %+v, want 1 example 1 skipped", rep)
	}
}

package tuner

import (
	"math"
	"testing"
)

func TestApplyUpdateContinuousDescent(t *testing.T) {
	params := DefaultParams()
	var grad GradientVector
	grad[IdxCPuct] = 2.0
	grad[IdxFpuValue] = -1.5
	grad[IdxSelectionTemp] = 0.5

	next := ApplyUpdate(params, grad, 0.01)

	if got, want := next[IdxCPuct], params[IdxCPuct]-0.01*2.0; math.Abs(got-want) > 1e-12 {
		t.Fatalf("cpuct: got %v, want %v", got, want)
	}
	if got, want := next[IdxFpuValue], params[IdxFpuValue]+0.01*1.5; math.Abs(got-want) > 1e-12 {
		t.Fatalf("fpu_value: got %v, want %v", got, want)
	}
	if got, want := next[IdxSelectionTemp], params[IdxSelectionTemp]-0.01*0.5; math.Abs(got-want) > 1e-12 {
		t.Fatalf("selection_temp: got %v, want %v", got, want)
	}
}

func TestApplyUpdateIntegerUnitSteps(t *testing.T) {
	integerIdx := []int{IdxDrawScoreSideToMove, IdxDrawScoreOpponent, IdxDrawScoreWhite, IdxDrawScoreBlack}

	for _, i := range integerIdx {
		params := DefaultParams()
		var grad GradientVector

		grad[i] = 3.7
		if got := ApplyUpdate(params, grad, 0.01)[i]; got != params[i]-1 {
			t.Fatalf("%s positive gradient: got %v, want %v", Fields[i].Name, got, params[i]-1)
		}

		grad[i] = -0.001
		if got := ApplyUpdate(params, grad, 0.01)[i]; got != params[i]+1 {
			t.Fatalf("%s negative gradient: got %v, want %v", Fields[i].Name, got, params[i]+1)
		}

		grad[i] = 0
		if got := ApplyUpdate(params, grad, 0.01)[i]; got != params[i] {
			t.Fatalf("%s zero gradient: got %v, want %v", Fields[i].Name, got, params[i])
		}
	}
}

func TestApplyUpdateIgnoresLearningRateForIntegers(t *testing.T) {
	params := DefaultParams()
	var grad GradientVector
	grad[IdxDrawScoreWhite] = 1.0

	small := ApplyUpdate(params, grad, 1e-9)
	large := ApplyUpdate(params, grad, 100)
	if small[IdxDrawScoreWhite] != large[IdxDrawScoreWhite] {
		t.Fatalf("step depends on learning rate: %v vs %v",
			small[IdxDrawScoreWhite], large[IdxDrawScoreWhite])
	}
}

func TestApplyUpdateClampsResult(t *testing.T) {
	params := DefaultParams()
	params[IdxDrawScoreBlack] = Fields[IdxDrawScoreBlack].Max
	params[IdxCPuct] = Fields[IdxCPuct].Min

	var grad GradientVector
	grad[IdxDrawScoreBlack] = -1  // wants to step above Max
	grad[IdxCPuct] = 1e9          // wants to descend far below Min

	next := ApplyUpdate(params, grad, 1.0)
	if next[IdxDrawScoreBlack] != Fields[IdxDrawScoreBlack].Max {
		t.Fatalf("draw_score_black escaped clamp: %v", next[IdxDrawScoreBlack])
	}
	if next[IdxCPuct] != Fields[IdxCPuct].Min {
		t.Fatalf("cpuct escaped clamp: %v", next[IdxCPuct])
	}
}

func TestApplyUpdateZeroGradientIsIdentity(t *testing.T) {
	params := DefaultParams()
	if got := ApplyUpdate(params, GradientVector{}, 0.5); got != params {
		t.Fatalf("got %v, want %v", got, params)
	}
}

package tunedto

import "time"

// StepRecord is one tuning step as published to external consumers: the
// post-update parameter vector alongside the example's loss and whether the
// human move was the top prediction.
type StepRecord struct {
	RunID   string    `json:"run_id"`
	Step    int       `json:"step"`
	Loss    float64   `json:"loss"`
	Correct bool      `json:"correct"`
	Params  []float64 `json:"params"`
	At      time.Time `json:"at"`
}

// RunSummary describes a finished tuning session.
type RunSummary struct {
	RunID           string    `json:"run_id"`
	Player          string    `json:"player"`
	EnginePath      string    `json:"engine_path"`
	Steps           int       `json:"steps"`
	Skipped         int       `json:"skipped"`
	HoldoutExamples int       `json:"holdout_examples"`
	HoldoutMeanLoss float64   `json:"holdout_mean_loss"`
	HoldoutAccuracy float64   `json:"holdout_accuracy"`
	FinalParams     []float64 `json:"final_params"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
}

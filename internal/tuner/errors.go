package tuner

import "errors"

var (
	// ErrEvaluatorUnavailable wraps engine failures: process crash, timeout,
	// or a rejected configuration. Recovered per example by skipping it.
	ErrEvaluatorUnavailable = errors.New("position evaluator unavailable")

	// ErrEmptyDistribution means the value cutoff excluded every candidate
	// move, leaving nothing to normalize. Recovered per example by skipping.
	ErrEmptyDistribution = errors.New("value cutoff excluded all moves")

	// ErrInvalidParameter means a parameter escaped its legal range before
	// validation ran. This is an internal invariant violation and is fatal.
	ErrInvalidParameter = errors.New("parameter outside legal range")
)

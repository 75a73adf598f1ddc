package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/humantune/internal/checkpoint"
	appcfg "github.com/park285/humantune/internal/config"
	"github.com/park285/humantune/internal/dataset"
	"github.com/park285/humantune/internal/obslog"
	"github.com/park285/humantune/internal/tunebuilder"
	"github.com/park285/humantune/internal/tuner"
	"github.com/park285/humantune/pkg/tunedto"
)

const splitSeed = 42

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer logger.Sync()

	deps, err := tunebuilder.New(cfg, logger)
	if err != nil {
		logger.Fatal("wiring failed", zap.Error(err))
	}
	defer deps.Close(context.Background())

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	examples, err := dataset.Load(cfg.DatasetPath, cfg.TargetPlayer, logger)
	if err != nil {
		logger.Fatal("dataset load failed", zap.Error(err))
	}
	train, holdout := dataset.Split(examples, cfg.HoldoutFraction, splitSeed)

	initial, err := initialParams(cfg)
	if err != nil {
		logger.Fatal("initial parameters invalid", zap.Error(err))
	}

	driver, err := tuner.NewDriver(deps.Evaluator, initial, tuner.DriverConfig{
		LearningRate:       cfg.LearningRate,
		Stop:               tuner.IterationCap(cfg.IterationBudget),
		GradientWorkers:    cfg.GradientWorkers,
		CheckpointInterval: cfg.CheckpointInterval,
	}, logger)
	if err != nil {
		logger.Fatal("driver init failed", zap.Error(err))
	}

	startedAt := time.Now().UTC()
	resumeFromCheckpoint(driver, deps, runID, logger)
	wireSinks(driver, deps, runID, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("tuning session starting",
		zap.String("run_id", runID),
		zap.String("player", cfg.TargetPlayer),
		zap.Int("train_examples", len(train)),
		zap.Int("holdout_examples", len(holdout)),
		zap.Int("budget", cfg.IterationBudget),
		zap.String("initial", initial.String()))

	summary, runErr := driver.Run(ctx, dataset.NewCyclingSource(train))
	if err := deps.LogWriter.Flush(); err != nil {
		logger.Warn("run log flush failed", zap.Error(err))
	}
	if runErr != nil {
		logger.Warn("session interrupted",
			zap.Int("steps", summary.Steps), zap.Error(runErr))
	}

	// Holdout evaluation gets its own deadline: the run context may already
	// be cancelled by the signal that stopped the session.
	evalCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	report, err := driver.EvaluateHoldout(evalCtx, holdout)
	if err != nil {
		logger.Warn("holdout evaluation incomplete", zap.Error(err))
	}

	logger.Info("tuning session finished",
		zap.String("run_id", runID),
		zap.Int("steps", summary.Steps),
		zap.Int("skipped", summary.Skipped),
		zap.Float64("holdout_mean_loss", report.MeanLoss),
		zap.Float64("holdout_accuracy", report.Accuracy),
		zap.String("final", summary.Final.String()))

	persistSummary(deps, &tunedto.RunSummary{
		RunID:           runID,
		Player:          cfg.TargetPlayer,
		EnginePath:      cfg.EnginePath,
		Steps:           summary.Steps,
		Skipped:         summary.Skipped,
		HoldoutExamples: report.Examples,
		HoldoutMeanLoss: report.MeanLoss,
		HoldoutAccuracy: report.Accuracy,
		FinalParams:     summary.Final[:],
		StartedAt:       startedAt,
		EndedAt:         time.Now().UTC(),
	}, logger)

	if runErr == nil && deps.Checkpoints != nil {
		if err := deps.Checkpoints.Delete(context.Background(), runID); err != nil {
			logger.Warn("checkpoint cleanup failed", zap.Error(err))
		}
	}
}

func initialParams(cfg *appcfg.AppConfig) (tuner.ParameterVector, error) {
	initial := tuner.DefaultParams()
	if cfg.InitialParamsFile == "" {
		return initial, nil
	}
	raw, err := os.ReadFile(cfg.InitialParamsFile)
	if err != nil {
		return initial, err
	}
	return tuner.ParamsFromYAML(raw, initial)
}

func resumeFromCheckpoint(driver *tuner.Driver, deps *tunebuilder.Deps, runID string, logger *zap.Logger) {
	if deps.Checkpoints == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cp, err := deps.Checkpoints.Load(ctx, runID)
	if err != nil {
		logger.Warn("checkpoint load failed", zap.Error(err))
		return
	}
	if cp == nil {
		return
	}
	if err := driver.Resume(cp.Step, cp.Params); err != nil {
		logger.Warn("checkpoint rejected", zap.Error(err))
		return
	}
	logger.Info("resumed from checkpoint",
		zap.String("run_id", runID),
		zap.Int("step", cp.Step),
		zap.Time("saved_at", cp.UpdatedAt))
}

func wireSinks(driver *tuner.Driver, deps *tunebuilder.Deps, runID string, logger *zap.Logger) {
	driver.OnStep(func(rec tuner.StepRecord) {
		if err := deps.LogWriter.Append(rec); err != nil {
			logger.Warn("run log append failed", zap.Int("step", rec.Step), zap.Error(err))
		}
		if rec.Step%100 == 0 {
			if err := deps.LogWriter.Flush(); err != nil {
				logger.Warn("run log flush failed", zap.Error(err))
			}
		}
		if deps.Progress != nil {
			_ = deps.Progress.Publish(context.Background(), tunedto.StepRecord{
				RunID:   runID,
				Step:    rec.Step,
				Loss:    rec.Loss,
				Correct: rec.Correct,
				Params:  rec.Params[:],
				At:      time.Now().UTC(),
			})
		}
	})

	if deps.Checkpoints != nil {
		driver.OnCheckpoint(func(ctx context.Context, step int, params tuner.ParameterVector) error {
			return deps.Checkpoints.Save(ctx, runID, checkpoint.Checkpoint{Step: step, Params: params})
		})
	}
}

func persistSummary(deps *tunebuilder.Deps, s *tunedto.RunSummary, logger *zap.Logger) {
	if deps.Runs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := deps.Runs.SaveSummary(ctx, s); err != nil {
		logger.Warn("run summary persist failed", zap.Error(err))
	}
}

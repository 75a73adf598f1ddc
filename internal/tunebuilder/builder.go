package tunebuilder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/humantune/internal/checkpoint"
	"github.com/park285/humantune/internal/config"
	"github.com/park285/humantune/internal/progress"
	"github.com/park285/humantune/internal/runlog"
	"github.com/park285/humantune/internal/runstore"
	"github.com/park285/humantune/internal/uci"
)

// Deps holds a tuning session's wired resources. The engine pool is the one
// resource the caller must always release; Close covers every member and is
// safe on partially constructed values.
type Deps struct {
	Pool        *uci.Pool
	Evaluator   *uci.Evaluator
	LogWriter   *runlog.Writer
	Checkpoints *checkpoint.Store
	Runs        *runstore.Repository
	Progress    *progress.Publisher
}

func New(cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if strings.TrimSpace(cfg.EnginePath) == "" {
		return nil, fmt.Errorf("ENGINE_PATH is required for the evaluator")
	}

	pool, err := uci.NewPool(uci.SessionConfig{
		BinaryPath: cfg.EnginePath,
		Args:       cfg.EngineArgs,
	}, cfg.EngineSessions)
	if err != nil {
		return nil, fmt.Errorf("init engine pool: %w", err)
	}

	deps := &Deps{
		Pool:      pool,
		Evaluator: uci.NewEvaluator(pool, cfg.SearchNodes, 2*time.Minute, logger),
	}

	deps.LogWriter, err = runlog.NewWriter(cfg.LogDir)
	if err != nil {
		deps.Close(context.Background())
		return nil, fmt.Errorf("init run log: %w", err)
	}

	if cfg.RedisURL != "" {
		deps.Checkpoints, err = checkpoint.NewStoreFromURL(cfg.RedisURL)
		if err != nil {
			deps.Close(context.Background())
			return nil, fmt.Errorf("init checkpoint store: %w", err)
		}
	}

	if cfg.DatabaseURL != "" {
		deps.Runs, err = runstore.NewRepository(cfg.DatabaseURL)
		if err != nil {
			deps.Close(context.Background())
			return nil, fmt.Errorf("init run repository: %w", err)
		}
	}

	if cfg.ProgressWSURL != "" {
		deps.Progress = progress.NewPublisher(cfg.ProgressWSURL, logger)
		// Connection failures degrade to dropped records; the publisher
		// keeps retrying in the background.
		if err := deps.Progress.Connect(context.Background()); err != nil {
			logger.Warn("progress collector connect failed", zap.Error(err))
		}
	}

	return deps, nil
}

// Close releases every resource, engine processes last.
func (d *Deps) Close(ctx context.Context) error {
	if d == nil {
		return nil
	}
	var errs []error
	if d.Progress != nil {
		if err := d.Progress.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if d.Runs != nil {
		if err := d.Runs.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.Checkpoints != nil {
		if err := d.Checkpoints.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.LogWriter != nil {
		if err := d.LogWriter.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.Pool != nil {
		if err := d.Pool.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

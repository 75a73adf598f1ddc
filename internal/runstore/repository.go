package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/humantune/pkg/tunedto"
)

// Repository persists finished tuning-run summaries to Postgres so fits for
// different players and engine builds can be compared later.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveSummary upserts a run summary keyed by run id. Re-running a resumed
// session overwrites its earlier row.
func (r *Repository) SaveSummary(ctx context.Context, s *tunedto.RunSummary) error {
	if r == nil || r.db == nil || s == nil {
		return nil
	}

	paramsRaw, err := json.Marshal(s.FinalParams)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	duration := s.EndedAt.Sub(s.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO tuning_runs (
	    run_id, player, engine_path,
	    steps, skipped, holdout_examples,
	    holdout_mean_loss, holdout_accuracy, final_params,
	    started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
	  ) ON CONFLICT (run_id) DO UPDATE SET
	    player=EXCLUDED.player,
	    engine_path=EXCLUDED.engine_path,
	    steps=EXCLUDED.steps,
	    skipped=EXCLUDED.skipped,
	    holdout_examples=EXCLUDED.holdout_examples,
	    holdout_mean_loss=EXCLUDED.holdout_mean_loss,
	    holdout_accuracy=EXCLUDED.holdout_accuracy,
	    final_params=EXCLUDED.final_params,
	    started_at=EXCLUDED.started_at,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	_, err = r.db.ExecContext(ctx, q,
		s.RunID, s.Player, s.EnginePath,
		s.Steps, s.Skipped, s.HoldoutExamples,
		s.HoldoutMeanLoss, s.HoldoutAccuracy, string(paramsRaw),
		s.StartedAt, s.EndedAt, duration,
	)
	return err
}

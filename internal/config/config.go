package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

type AppConfig struct {
	EnginePath     string
	EngineArgs     []string
	EngineSessions int
	SearchNodes    int

	DatasetPath  string
	TargetPlayer string

	IterationBudget    int
	LearningRate       float64
	HoldoutFraction    float64
	GradientWorkers    int
	CheckpointInterval int

	RunID             string
	LogDir            string
	InitialParamsFile string

	RedisURL      string
	DatabaseURL   string
	ProgressWSURL string

	ArchiveBaseURL string
	ArchiveToken   string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		EngineSessions:     1,
		SearchNodes:        1000,
		IterationBudget:    35000,
		LearningRate:       0.001,
		HoldoutFraction:    0.1,
		CheckpointInterval: 500,
		LogDir:             "logs",
		ArchiveBaseURL:     "https://lichess.org",
	}

	cfg.EnginePath = strings.TrimSpace(os.Getenv("ENGINE_PATH"))
	cfg.DatasetPath = strings.TrimSpace(os.Getenv("DATASET_PATH"))
	cfg.TargetPlayer = strings.TrimSpace(os.Getenv("TARGET_PLAYER"))

	if v := strings.TrimSpace(os.Getenv("ENGINE_ARGS")); v != "" {
		cfg.EngineArgs = append(cfg.EngineArgs, strings.Fields(v)...)
	}
	if v := strings.TrimSpace(os.Getenv("ENGINE_SESSIONS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EngineSessions = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SEARCH_NODES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SearchNodes = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ITERATION_BUDGET")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.IterationBudget = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("LEARNING_RATE")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.LearningRate = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("HOLDOUT_FRACTION")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.HoldoutFraction = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("GRADIENT_WORKERS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.GradientWorkers = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CHECKPOINT_INTERVAL")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CheckpointInterval = n
		}
	}

	cfg.RunID = strings.TrimSpace(os.Getenv("RUN_ID"))
	if v := strings.TrimSpace(os.Getenv("LOG_DIR")); v != "" {
		cfg.LogDir = v
	}
	cfg.InitialParamsFile = strings.TrimSpace(os.Getenv("INITIAL_PARAMS_FILE"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.ProgressWSURL = strings.TrimSpace(os.Getenv("PROGRESS_WS_URL"))

	if v := strings.TrimSpace(os.Getenv("ARCHIVE_BASE_URL")); v != "" {
		cfg.ArchiveBaseURL = v
	}
	cfg.ArchiveToken = strings.TrimSpace(os.Getenv("ARCHIVE_TOKEN"))

	if cfg.EnginePath == "" {
		return nil, errors.New("ENGINE_PATH is required")
	}
	if cfg.DatasetPath == "" {
		return nil, errors.New("DATASET_PATH is required")
	}
	if cfg.TargetPlayer == "" {
		return nil, errors.New("TARGET_PLAYER is required")
	}

	// More gradient workers than engine sessions would just queue on the pool.
	if cfg.GradientWorkers == 0 && cfg.EngineSessions > 1 {
		cfg.GradientWorkers = cfg.EngineSessions
	}
	if cfg.GradientWorkers > cfg.EngineSessions {
		cfg.GradientWorkers = cfg.EngineSessions
	}

	return cfg, nil
}

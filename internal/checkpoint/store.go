package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/humantune/internal/tuner"
)

// Checkpoints let a long tuning session survive a restart: the latest vector
// and step count are kept per run id and reloaded on startup.
const ttlCheckpoint = 7 * 24 * time.Hour

// Checkpoint is the persisted state of one run.
type Checkpoint struct {
	Step      int                   `json:"step"`
	Params    tuner.ParameterVector `json:"params"`
	UpdatedAt time.Time             `json:"updated_at"`
}

type Store struct{ rdb *redis.Client }

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// NewStoreFromURL dials a redis://host:port/db URL.
func NewStoreFromURL(rawURL string) (*Store, error) {
	opt, err := parseRedisURL(rawURL)
	if err != nil {
		return nil, err
	}
	return &Store{rdb: redis.NewClient(opt)}, nil
}

func (s *Store) key(runID string) string { return "tune:run:" + strings.TrimSpace(runID) }

// Save upserts the checkpoint for a run and refreshes its TTL.
func (s *Store) Save(ctx context.Context, runID string, cp Checkpoint) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id required")
	}
	cp.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(runID), raw, ttlCheckpoint).Err()
}

// Load returns the checkpoint for a run, or nil when none exists.
func (s *Store) Load(ctx context.Context, runID string) (*Checkpoint, error) {
	raw, err := s.rdb.Get(ctx, s.key(runID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// Delete drops the checkpoint after a run completed cleanly.
func (s *Store) Delete(ctx context.Context, runID string) error {
	return s.rdb.Del(ctx, s.key(runID)).Err()
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "6379"
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: host + ":" + port, Password: pass, DB: db}, nil
}

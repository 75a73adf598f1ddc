package uci

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/park285/humantune/internal/tuner"
)

const defaultReadyTimeout = 10 * time.Second

// SessionConfig describes how to launch one engine process.
type SessionConfig struct {
	BinaryPath string
	Args       []string
	// BaseOptions are applied once at startup, before any search.
	// VerboseMoveStats is always forced on; per-move statistics are the
	// whole point of the session.
	BaseOptions map[string]string
}

// Session owns a single engine process and serializes searches against it.
// The engine applies configuration lazily, so every parameter change is
// followed by an isready round-trip before the next search is trusted.
type Session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	mu     sync.Mutex
	search sync.Mutex
}

func NewSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	if strings.TrimSpace(cfg.BinaryPath) == "" {
		return nil, fmt.Errorf("engine binary path required")
	}

	cmd := exec.CommandContext(ctx, cfg.BinaryPath, cfg.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutPipe.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	s := &Session{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdoutPipe),
	}

	if err := s.initialize(ctx, cfg); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) initialize(ctx context.Context, cfg SessionConfig) error {
	initCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("uci\n"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if err := s.awaitToken(initCtx, "uciok"); err != nil {
		return fmt.Errorf("wait uciok: %w", err)
	}

	if err := s.setOption("VerboseMoveStats", "true"); err != nil {
		return err
	}
	for name, value := range cfg.BaseOptions {
		if err := s.setOption(name, value); err != nil {
			return err
		}
	}

	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(initCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

// ApplyParams pushes the engine-mapped slots of the vector as setoption
// commands and waits for readyok, guaranteeing the configuration is in
// effect before the next Search result is produced.
func (s *Session) ApplyParams(ctx context.Context, params tuner.ParameterVector) error {
	for i, f := range tuner.Fields {
		if f.UCIOption == "" {
			continue
		}
		var value string
		if f.Kind == tuner.KindInteger {
			value = strconv.Itoa(int(math.Round(params[i])))
		} else {
			value = strconv.FormatFloat(params[i], 'f', -1, 64)
		}
		if err := s.setOption(f.UCIOption, value); err != nil {
			return err
		}
	}
	return s.EnsureReady(ctx)
}

// Search runs a fixed-node search of the position and returns the per-move
// statistics the engine reported. The search is effort-bounded, not
// time-bounded; callers wanting a wall-clock ceiling put it on ctx.
func (s *Session) Search(ctx context.Context, fen string, nodes int) ([]tuner.MoveStat, error) {
	s.search.Lock()
	defer s.search.Unlock()

	if err := s.send(buildPositionCommand(fen)); err != nil {
		return nil, fmt.Errorf("send position: %w", err)
	}
	if err := s.send(fmt.Sprintf("go nodes %d\n", nodes)); err != nil {
		return nil, fmt.Errorf("send go: %w", err)
	}

	byMove := make(map[string]int)
	var stats []tuner.MoveStat

	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return nil, fmt.Errorf("read line: %w", err)
		}
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "info string"):
			stat, ok := parseMoveStat(line)
			if !ok {
				continue
			}
			// The engine reports stats after every info burst; keep the
			// final figures for each move.
			if idx, seen := byMove[stat.Move]; seen {
				stats[idx] = stat
			} else {
				byMove[stat.Move] = len(stats)
				stats = append(stats, stat)
			}
		case strings.HasPrefix(line, "bestmove"):
			return stats, nil
		}
	}
}

func buildPositionCommand(fen string) string {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		return "position startpos\n"
	}
	return "position fen " + fen + "\n"
}

// parseMoveStat extracts (move, visits, Q) from a verbose move-stats line:
//
//	info string e2e4  (322 ) N:     500 (+ 0) (P: 10.5%) (Q:  0.10000) ...
//
// Lines that do not carry a move head (the root-node summary does not) are
// rejected.
func parseMoveStat(line string) (tuner.MoveStat, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 || fields[0] != "info" || fields[1] != "string" {
		return tuner.MoveStat{}, false
	}
	move := fields[2]
	if !looksLikeMove(move) {
		return tuner.MoveStat{}, false
	}

	var (
		visits    int
		q         float64
		visitsSet bool
		qSet      bool
	)
	for i := 3; i < len(fields); i++ {
		switch fields[i] {
		case "N:":
			if i+1 < len(fields) {
				if v, err := strconv.Atoi(fields[i+1]); err == nil {
					visits = v
					visitsSet = true
				}
			}
		case "(Q:":
			if i+1 < len(fields) {
				raw := strings.TrimSuffix(fields[i+1], ")")
				if v, err := strconv.ParseFloat(raw, 64); err == nil {
					q = v
					qSet = true
				}
			}
		}
	}
	if !visitsSet || !qSet || visits < 0 {
		return tuner.MoveStat{}, false
	}
	return tuner.MoveStat{Move: move, Visits: visits, Q: q}, true
}

func looksLikeMove(s string) bool {
	if len(s) != 4 && len(s) != 5 {
		return false
	}
	if s[0] < 'a' || s[0] > 'h' || s[2] < 'a' || s[2] > 'h' {
		return false
	}
	if s[1] < '1' || s[1] > '8' || s[3] < '1' || s[3] > '8' {
		return false
	}
	return true
}

func (s *Session) EnsureReady(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(readyCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stdin != nil {
		s.stdin.Close()
	}

	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}

	if s.cmd != nil {
		return s.cmd.Wait()
	}
	return nil
}

func (s *Session) setOption(name, value string) error {
	return s.send(fmt.Sprintf("setoption name %s value %s\n", name, value))
}

func (s *Session) send(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.stdin, msg)
	return err
}

func (s *Session) awaitToken(ctx context.Context, token string) error {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(line, token) {
			return nil
		}
	}
}

func (s *Session) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		line, err := s.stdout.ReadString('\n')
		ch <- result{line: strings.TrimSpace(line), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		return res.line, res.err
	}
}

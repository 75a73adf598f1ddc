package dataset

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"github.com/park285/humantune/internal/tuner"
)

// Load reads a PGN file and extracts one example per ply the target player
// made. Games the player took no part in are skipped; malformed games are
// logged and skipped rather than failing the whole file.
func Load(path, player string, logger *zap.Logger) ([]tuner.Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return FromPGN(f, player, logger)
}

// FromPGN extracts the target player's (position, move) pairs from a PGN
// stream. Only plies where the player was the side to move contribute;
// positions are serialized as FEN and moves in UCI notation.
func FromPGN(r io.Reader, player string, logger *zap.Logger) ([]tuner.Example, error) {
	if strings.TrimSpace(player) == "" {
		return nil, fmt.Errorf("target player required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var examples []tuner.Example
	games := 0
	scanner := nchess.NewScanner(r)
	for scanner.HasNext() {
		game, err := scanner.ParseNext()
		if err != nil {
			logger.Warn("skipping malformed game", zap.Error(err))
			continue
		}
		color, ok := playerColor(game, player)
		if !ok {
			continue
		}
		games++
		examples = append(examples, gameExamples(game, color)...)
	}
	if games == 0 {
		return nil, fmt.Errorf("no games by %q in dataset", player)
	}
	logger.Info("dataset loaded",
		zap.String("player", player),
		zap.Int("games", games),
		zap.Int("examples", len(examples)))
	return examples, nil
}

func playerColor(game *nchess.Game, player string) (nchess.Color, bool) {
	if strings.EqualFold(strings.TrimSpace(game.GetTagPair("White")), player) {
		return nchess.White, true
	}
	if strings.EqualFold(strings.TrimSpace(game.GetTagPair("Black")), player) {
		return nchess.Black, true
	}
	return nchess.NoColor, false
}

func gameExamples(game *nchess.Game, color nchess.Color) []tuner.Example {
	positions := game.Positions()
	moves := game.Moves()
	notation := nchess.UCINotation{}

	var out []tuner.Example
	for i, mv := range moves {
		if i >= len(positions) {
			break
		}
		pos := positions[i]
		if pos.Turn() != color {
			continue
		}
		out = append(out, tuner.Example{
			FEN:  pos.String(),
			Move: strings.ToLower(notation.Encode(pos, mv)),
		})
	}
	return out
}

// Split shuffles a copy of the examples and carves off a holdout fraction
// for end-of-session evaluation. Deterministic for a given seed.
func Split(examples []tuner.Example, holdoutFraction float64, seed int64) (train, holdout []tuner.Example) {
	shuffled := append([]tuner.Example(nil), examples...)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	if holdoutFraction < 0 {
		holdoutFraction = 0
	}
	if holdoutFraction > 0.5 {
		holdoutFraction = 0.5
	}
	n := int(float64(len(shuffled)) * holdoutFraction)
	return shuffled[n:], shuffled[:n]
}

// CyclingSource replays its examples in order, wrapping around when the end
// is reached, so a small dataset still fills a large iteration budget.
type CyclingSource struct {
	examples []tuner.Example
	next     int
}

func NewCyclingSource(examples []tuner.Example) *CyclingSource {
	return &CyclingSource{examples: examples}
}

func (s *CyclingSource) Next() (tuner.Example, bool) {
	if len(s.examples) == 0 {
		return tuner.Example{}, false
	}
	ex := s.examples[s.next]
	s.next = (s.next + 1) % len(s.examples)
	return ex, true
}

// SliceSource yields each example once. Used for single-pass runs and tests.
type SliceSource struct {
	examples []tuner.Example
	next     int
}

func NewSliceSource(examples []tuner.Example) *SliceSource {
	return &SliceSource{examples: examples}
}

func (s *SliceSource) Next() (tuner.Example, bool) {
	if s.next >= len(s.examples) {
		return tuner.Example{}, false
	}
	ex := s.examples[s.next]
	s.next++
	return ex, true
}

package uci

import (
	"math"
	"testing"
)

func TestParseMoveStat(t *testing.T) {
	line := "info string e2e4  (322 ) N:     500 (+ 0) (P: 10.52%) (WL:  0.08965) (D:  0.146) (M:  7.2) (Q:  0.10000) (U: 0.01617) (S:  0.11617) (V:  0.1060)"
	stat, ok := parseMoveStat(line)
	if !ok {
		t.Fatalf("line rejected: %q", line)
	}
	if stat.Move != "e2e4" {
		t.Fatalf("move = %q, want e2e4", stat.Move)
	}
	if stat.Visits != 500 {
		t.Fatalf("visits = %d, want 500", stat.Visits)
	}
	if math.Abs(stat.Q-0.1) > 1e-9 {
		t.Fatalf("q = %v, want 0.1", stat.Q)
	}
}

func TestParseMoveStatPromotion(t *testing.T) {
	stat, ok := parseMoveStat("info string e7e8q (100 ) N: 42 (+ 0) (Q: -0.25000) (V: 0.0)")
	if !ok || stat.Move != "e7e8q" || stat.Visits != 42 {
		t.Fatalf("got %+v ok=%v", stat, ok)
	}
	if math.Abs(stat.Q+0.25) > 1e-9 {
		t.Fatalf("q = %v, want -0.25", stat.Q)
	}
}

func TestParseMoveStatRejectsNonMoveLines(t *testing.T) {
	lines := []string{
		"info string node  (  0 ) N: 1000 (+ 0) (Q:  0.05000)",
		"info depth 10 nodes 1000 score cp 35",
		"info string e2e4 missing stats entirely",
		"info string e2e4 N: -3 (Q: 0.1)",
		"bestmove e2e4",
		"",
	}
	for _, line := range lines {
		if _, ok := parseMoveStat(line); ok {
			t.Fatalf("accepted %q", line)
		}
	}
}

func TestLooksLikeMove(t *testing.T) {
	valid := []string{"e2e4", "a1h8", "e7e8q", "g1f3"}
	for _, m := range valid {
		if !looksLikeMove(m) {
			t.Fatalf("rejected %q", m)
		}
	}
	invalid := []string{"node", "e2", "i2e4", "e9e4", "e2i4", "e2e9", "castle", "0000x"}
	for _, m := range invalid {
		if looksLikeMove(m) {
			t.Fatalf("accepted %q", m)
		}
	}
}

func TestBuildPositionCommand(t *testing.T) {
	if got := buildPositionCommand("startpos"); got != "position startpos\n" {
		t.Fatalf("got %q", got)
	}
	if got := buildPositionCommand("  "); got != "position startpos\n" {
		t.Fatalf("got %q", got)
	}
	fen := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"
	if got := buildPositionCommand(fen); got != "position fen "+fen+"\n" {
		t.Fatalf("got %q", got)
	}
}

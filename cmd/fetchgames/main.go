package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/park285/humantune/internal/gamefetch"
)

// Downloads a player's games from the archive API into a PGN file the tuner
// can consume as its dataset.
func main() {
	var (
		player = flag.String("player", "", "archive username to download games for")
		out    = flag.String("out", "", "output PGN path (default <player>.pgn)")
		max    = flag.Int("max", 500, "maximum number of games")
		base   = flag.String("base", envDefault("ARCHIVE_BASE_URL", "https://lichess.org"), "archive API base URL")
	)
	flag.Parse()

	if strings.TrimSpace(*player) == "" {
		log.Fatal("-player is required")
	}
	path := strings.TrimSpace(*out)
	if path == "" {
		path = *player + ".pgn"
	}

	var opts []gamefetch.Option
	if token := strings.TrimSpace(os.Getenv("ARCHIVE_TOKEN")); token != "" {
		opts = append(opts, gamefetch.WithHeaderProvider(func() map[string]string {
			return map[string]string{"Authorization": "Bearer " + token}
		}))
	}
	client := gamefetch.NewClient(*base, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pgn, err := client.FetchPlayerGames(ctx, *player, *max)
	if err != nil {
		log.Fatalf("fetch games: %v", err)
	}
	if err := os.WriteFile(path, pgn, 0o644); err != nil {
		log.Fatalf("write %s: %v", path, err)
	}
	log.Printf("wrote %d bytes of PGN for %s to %s", len(pgn), *player, path)
}

func envDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

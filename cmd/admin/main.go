package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"

	persistlog "starlanes.ai/internal/persistence/log"
	"starlanes.ai/internal/persistence/snapshot"
	"starlanes.ai/internal/persistence/store"
	"starlanes.ai/internal/sim/model"
)

var errUsage = errors.New("usage")

func main() {
	_ = godotenv.Load()
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case "seed":
		err = seedCmd(args)
	case "export":
		err = exportCmd(args)
	case "import":
		err = importCmd(args)
	case "turns":
		err = turnsCmd(args)
	case "games":
		err = gamesCmd(args)
	case "logs":
		err = logsCmd(args)
	default:
		usage()
		os.Exit(2)
	}
	if errors.Is(err, errUsage) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: admin <seed|export|import|turns|games|logs> [flags]")
}

// storeFlags are shared by every subcommand that opens the game store.
type storeFlags struct {
	dataDir *string
	backend *string
	dsn     *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		dataDir: fs.String("data", envOr("SL_DATA_DIR", "./data"), "runtime data directory"),
		backend: fs.String("store", envOr("SL_STORE", "sqlite"), "store backend: sqlite or postgres"),
		dsn:     fs.String("dsn", os.Getenv("SL_DATABASE_URL"), "postgres dsn"),
	}
}

func (f storeFlags) open(ctx context.Context) (store.Store, error) {
	switch strings.ToLower(*f.backend) {
	case "", "sqlite":
		if err := os.MkdirAll(*f.dataDir, 0o755); err != nil {
			return nil, err
		}
		return store.OpenSQLite(filepath.Join(*f.dataDir, "starlanes.sqlite"))
	case "postgres":
		if *f.dsn == "" {
			return nil, fmt.Errorf("%w: -dsn is required for -store=postgres", errUsage)
		}
		return store.OpenPostgres(ctx, *f.dsn)
	default:
		return nil, fmt.Errorf("%w: unknown store %q", errUsage, *f.backend)
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func seedCmd(args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	sf := addStoreFlags(fs)
	path := fs.String("scenario", "", "scenario yaml (required)")
	_ = fs.Parse(args)
	if *path == "" {
		return fmt.Errorf("%w: missing -scenario", errUsage)
	}
	sc, err := loadScenario(*path)
	if err != nil {
		return err
	}
	ctx := context.Background()
	s, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := seed(ctx, s, sc, time.Now().UTC()); err != nil {
		return err
	}
	fmt.Printf("seeded game=%s turn=%d entities=%d edges=%d taps=%d gates=%d\n",
		sc.Game, sc.startTurn(), len(sc.Entities), len(sc.Edges), len(sc.Taps), len(sc.Gates))
	return nil
}

func exportCmd(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	sf := addStoreFlags(fs)
	game := fs.String("game", "", "game id (required)")
	out := fs.String("out", "", "output path (default: <data>/snapshots/<game>/<turn>.snap.zst)")
	_ = fs.Parse(args)
	if *game == "" {
		return fmt.Errorf("%w: missing -game", errUsage)
	}
	ctx := context.Background()
	s, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	var snap snapshot.GameSnapshotV1
	err = store.View(ctx, s, *game, func(tx *store.Tx) error {
		var err error
		snap, err = snapshot.Capture(ctx, tx, time.Now())
		return err
	})
	if err != nil {
		return err
	}
	if len(snap.Turns) == 0 {
		return fmt.Errorf("game %q not found", *game)
	}
	path := *out
	if path == "" {
		path = snapshot.Path(*sf.dataDir, *game, snap.Header.Turn, snapshot.ExtZstd)
	}
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return err
	}
	fmt.Printf("exported game=%s turn=%d entities=%d out=%s\n", *game, snap.Header.Turn, len(snap.Entities), path)
	return nil
}

func importCmd(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	sf := addStoreFlags(fs)
	in := fs.String("in", "", "snapshot path")
	latest := fs.String("latest", "", "import the newest snapshot of this game from the data dir")
	_ = fs.Parse(args)
	if *in == "" && *latest != "" {
		*in = snapshot.Latest(*sf.dataDir, *latest)
		if *in == "" {
			return fmt.Errorf("no snapshots of game %q under %s", *latest, *sf.dataDir)
		}
	}
	if *in == "" {
		return fmt.Errorf("%w: missing -in or -latest", errUsage)
	}
	snap, err := snapshot.ReadSnapshot(*in)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	ctx := context.Background()
	s, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := store.Update(ctx, s, snap.Header.Game, func(tx *store.Tx) error {
		return snapshot.Restore(ctx, tx, snap)
	}); err != nil {
		return err
	}
	fmt.Printf("imported game=%s turn=%d entities=%d\n", snap.Header.Game, snap.Header.Turn, len(snap.Entities))
	return nil
}

func turnsCmd(args []string) error {
	fs := flag.NewFlagSet("turns", flag.ExitOnError)
	sf := addStoreFlags(fs)
	game := fs.String("game", "", "game id (required)")
	limit := fs.Int("limit", 20, "most recent turns to show")
	_ = fs.Parse(args)
	if *game == "" {
		return fmt.Errorf("%w: missing -game", errUsage)
	}
	ctx := context.Background()
	s, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	var turns []model.Turn
	if err := store.View(ctx, s, *game, func(tx *store.Tx) error {
		var err error
		turns, err = tx.Turns().List(ctx)
		return err
	}); err != nil {
		return err
	}
	if *limit > 0 && len(turns) > *limit {
		turns = turns[len(turns)-*limit:]
	}
	for _, t := range turns {
		fmt.Println(formatTurn(t))
	}
	return nil
}

func formatTurn(t model.Turn) string {
	resolved := "-"
	if t.ResolvedAt != nil {
		resolved = t.ResolvedAt.UTC().Format(time.RFC3339)
	}
	digest := t.Digest
	if len(digest) > 12 {
		digest = digest[:12]
	}
	return fmt.Sprintf("%6d  %-9s  orders=%-4d  resolved=%s  digest=%s", t.Number, t.Status, t.OrdersProcessed, resolved, digest)
}

func gamesCmd(args []string) error {
	fs := flag.NewFlagSet("games", flag.ExitOnError)
	sf := addStoreFlags(fs)
	_ = fs.Parse(args)
	ctx := context.Background()
	s, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	games, err := s.Games(ctx)
	if err != nil {
		return err
	}
	for _, g := range games {
		fmt.Println(g)
	}
	return nil
}

// logsCmd prints the JSONL turn or entity log files in hour order.
func logsCmd(args []string) error {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	dataDir := fs.String("data", envOr("SL_DATA_DIR", "./data"), "runtime data directory")
	kind := fs.String("kind", "turns", "turns or entity")
	_ = fs.Parse(args)

	var dir, prefix string
	switch *kind {
	case "turns":
		dir, prefix = "turns", "turns-"
	case "entity":
		dir, prefix = "entity-logs", "entity-"
	default:
		return fmt.Errorf("%w: -kind must be turns or entity", errUsage)
	}
	files, err := logFiles(filepath.Join(*dataDir, dir), prefix)
	if err != nil {
		return err
	}
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(line []byte) error {
			_, err := fmt.Println(string(line))
			return err
		})
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func logFiles(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".jsonl.zst") {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

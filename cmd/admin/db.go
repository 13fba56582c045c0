package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"skyisland.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	worldName := fs.String("world", "", "world filter (islands)")
	state := fs.String("state", "", "state filter (chest_runs: DONE or ABANDONED)")
	key := fs.String("key", "tuning_digest", "meta key")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "islands.sqlite")
	}
	r, err := indexdb.OpenReader(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch q {
	case "snapshots":
		rows, err := r.ListSnapshots(ctx, *limit)
		if err != nil {
			fail("query", err)
		}
		for _, row := range rows {
			printJSON(row)
		}
	case "islands":
		rows, err := r.ListIslands(ctx, strings.TrimSpace(*worldName), *limit)
		if err != nil {
			fail("query", err)
		}
		for _, row := range rows {
			printJSON(row)
		}
	case "chest_runs":
		rows, err := r.ListChestRuns(ctx, strings.ToUpper(strings.TrimSpace(*state)), *limit)
		if err != nil {
			fail("query", err)
		}
		for _, row := range rows {
			printJSON(row)
		}
	case "audits":
		counts, err := r.CountAudits(ctx)
		if err != nil {
			fail("query", err)
		}
		printJSON(counts)
	case "meta":
		v, ok, err := r.Meta(ctx, strings.TrimSpace(*key))
		if err != nil {
			fail("query", err)
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "meta key not found:", *key)
			os.Exit(2)
		}
		fmt.Println(v)
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want snapshots|islands|chest_runs|audits|meta)")
		os.Exit(2)
	}
}

func fail(what string, err error) {
	fmt.Fprintln(os.Stderr, what+":", err)
	os.Exit(1)
}

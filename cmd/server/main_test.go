package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"skyisland.ai/internal/sim/engine"
)

func TestLatestAndPruneSnapshots(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"100.snap.zst", "20.snap.zst", "3000.snap.zst", "notes.txt", "x.snap.zst"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if got := latestSnapshot(dir); filepath.Base(got) != "3000.snap.zst" {
		t.Fatalf("latest: %q", got)
	}
	if n := pruneSnapshots(dir, 2); n != 1 {
		t.Fatalf("pruned %d", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "20.snap.zst")); !os.IsNotExist(err) {
		t.Fatalf("oldest snapshot kept: %v", err)
	}
	if latestSnapshot(filepath.Join(dir, "missing")) != "" {
		t.Fatalf("missing dir should yield no snapshot")
	}
}

func TestWriteMetrics(t *testing.T) {
	var buf bytes.Buffer
	writeMetrics(&buf, engine.Stats{Tick: 42, Islands: 3, ChestsDone: 2}, nil)
	out := buf.String()
	for _, want := range []string{"skyisland_tick 42\n", "skyisland_islands 3\n", "# TYPE skyisland_chest_chains_done_total counter\n"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	if !isLoopbackRemote("127.0.0.1:5000") || !isLoopbackRemote("[::1]:80") {
		t.Fatalf("loopback rejected")
	}
	if isLoopbackRemote("10.0.0.2:5000") {
		t.Fatalf("remote accepted")
	}
}

package indexdb

import (
	"context"
	"path/filepath"
	"testing"

	"skyisland.ai/internal/persistence/snapshot"
	"skyisland.ai/internal/sim/island/model"
	"skyisland.ai/internal/sim/tuning"
)

func TestSQLiteIndex_IslandsAndChestRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	idx.SyncIslands([]IslandRow{{PlayerID: "old", World: "world", X: -200, Y: 64, Z: 400}})
	idx.Audit(model.AuditEntry{Tick: 1, Type: model.AuditIslandAllocated, PlayerID: "p1", World: "world", Pos: [3]int{200, 64, 0}})
	idx.Audit(model.AuditEntry{Tick: 3, Type: model.AuditIslandAssigned, PlayerID: "p1", World: "world", Pos: [3]int{200, 64, 0}})
	idx.Audit(model.AuditEntry{Tick: 3, Type: model.AuditChestState, World: "world", Pos: [3]int{201, 70, 1}, State: "AWAITING_SETTLE"})
	idx.Audit(model.AuditEntry{Tick: 33, Type: model.AuditChestDone, World: "world", Pos: [3]int{201, 70, 1}, State: "DONE", Items: 6})
	idx.Audit(model.AuditEntry{Tick: 4000, Type: model.AuditChestAbandoned, World: "world", Pos: [3]int{-199, 70, 401}, State: "ABANDONED", Attempt: 51})
	idx.RecordSnapshot("/data/snapshots/40.snap.zst", snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, Tick: 40},
		Worlds: []snapshot.WorldV1{{Name: "world", Chunks: []snapshot.ChunkV1{{CX: 12}, {CX: 13, Containers: []snapshot.ContainerV1{{Size: 27}}}}}},
	})
	if err := idx.UpsertTuning(tuning.Defaults()); err != nil {
		t.Fatalf("UpsertTuning: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()
	ctx := context.Background()

	islands, err := r.ListIslands(ctx, "world", 0)
	if err != nil {
		t.Fatalf("ListIslands: %v", err)
	}
	if len(islands) != 2 || islands[0].PlayerID != "old" || islands[1].PlayerID != "p1" || islands[1].X != 200 || islands[1].Tick != 3 {
		t.Fatalf("islands: %+v", islands)
	}

	runs, err := r.ListChestRuns(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListChestRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].State != "ABANDONED" || runs[0].Attempt != 51 || runs[1].Items != 6 {
		t.Fatalf("runs: %+v", runs)
	}
	done, _ := r.ListChestRuns(ctx, "DONE", 10)
	if len(done) != 1 || done[0].Tick != 33 {
		t.Fatalf("done runs: %+v", done)
	}

	counts, err := r.CountAudits(ctx)
	if err != nil {
		t.Fatalf("CountAudits: %v", err)
	}
	if counts[model.AuditChestState] != 1 || counts[model.AuditIslandAssigned] != 1 || len(counts) != 5 {
		t.Fatalf("counts: %v", counts)
	}
	if d, ok, err := r.Meta(ctx, "tuning_digest"); err != nil || !ok || len(d) != 64 {
		t.Fatalf("tuning digest: %q %v %v", d, ok, err)
	}

	snaps, err := r.ListSnapshots(ctx, 0)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Tick != 40 || snaps[0].Chunks != 2 || snaps[0].Containers != 1 {
		t.Fatalf("snapshots: %+v", snaps)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqAudit}

	s.Audit(model.AuditEntry{Tick: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})
	s.SyncIslands(nil)

	st := s.Stats()
	if st.DropAuditTotal != 1 || st.DropSnapshotTotal != 1 || st.DropIslandsTotal != 1 {
		t.Fatalf("drops: %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_PlayersSharingACoordinate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	idx.Audit(model.AuditEntry{Tick: 3, Type: model.AuditIslandAssigned, PlayerID: "aaaa", World: "world", Pos: [3]int{200, 64, 400}})
	idx.Audit(model.AuditEntry{Tick: 9, Type: model.AuditIslandAssigned, PlayerID: "bbbb", World: "world", Pos: [3]int{200, 64, 400}})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()
	islands, err := r.ListIslands(context.Background(), "world", 0)
	if err != nil {
		t.Fatalf("ListIslands: %v", err)
	}
	if len(islands) != 2 || islands[0].PlayerID != "aaaa" || islands[1].PlayerID != "bbbb" {
		t.Fatalf("expected both islands at the shared slot, got %+v", islands)
	}
}

func TestSQLiteIndex_AuditsSurviveTickRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	for run := 0; run < 2; run++ {
		idx, err := OpenSQLite(path)
		if err != nil {
			t.Fatalf("run %d: OpenSQLite: %v", run, err)
		}
		idx.Audit(model.AuditEntry{Tick: 1, Type: model.AuditIslandAllocated, PlayerID: "p", World: "world"})
		idx.Audit(model.AuditEntry{Tick: 1, Type: model.AuditIslandBuilt, PlayerID: "p", World: "world"})
		if err := idx.Close(); err != nil {
			t.Fatalf("run %d: Close: %v", run, err)
		}
	}

	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()
	counts, err := r.CountAudits(context.Background())
	if err != nil {
		t.Fatalf("CountAudits: %v", err)
	}
	if counts[model.AuditIslandAllocated] != 2 || counts[model.AuditIslandBuilt] != 2 {
		t.Fatalf("expected audits from both runs, got %v", counts)
	}
}

func TestInitSchema_ReplacesLegacyAuditsTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	db, err := openDB(path)
	if err != nil {
		t.Fatalf("openDB: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE audits (tick INTEGER NOT NULL, seq INTEGER NOT NULL, type TEXT NOT NULL, PRIMARY KEY (tick, seq))`); err != nil {
		t.Fatalf("create legacy table: %v", err)
	}
	if err := initSchema(db); err != nil {
		t.Fatalf("initSchema: %v", err)
	}
	var idCols int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('audits') WHERE name='id'`).Scan(&idCols); err != nil {
		t.Fatalf("table_info: %v", err)
	}
	if idCols != 1 {
		t.Fatalf("expected audits to be rebuilt with an id column")
	}
	_ = db.Close()
}

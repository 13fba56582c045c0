package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"skyisland.ai/internal/persistence/snapshot"
	"skyisland.ai/internal/sim/island/model"
	"skyisland.ai/internal/sim/tuning"
)

// SQLiteIndex is a read model of islands, chest outcomes and audit records.
// Writes are queued to a single writer goroutine and dropped when the queue
// is full; the JSONL audit log remains the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropAudit    atomic.Uint64
	dropSnapshot atomic.Uint64
	dropIslands  atomic.Uint64
}

type reqKind int

const (
	reqAudit reqKind = iota + 1
	reqSnapshot
	reqIslands
)

type req struct {
	kind reqKind

	audit    model.AuditEntry
	snapshot snapshotRow
	islands  []IslandRow
}

type snapshotRow struct {
	Tick       uint64
	Path       string
	Worlds     int
	Chunks     int
	Containers int
}

type IslandRow struct {
	PlayerID string `json:"player_id"`
	World    string `json:"world"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Z        int    `json:"z"`
	Tick     uint64 `json:"assigned_tick"`
}

type ChestRunRow struct {
	World   string `json:"world"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Z       int    `json:"z"`
	State   string `json:"state"`
	Attempt int    `json:"attempt"`
	Items   int    `json:"items"`
	Tick    uint64 `json:"finished_tick"`
	Detail  string `json:"detail,omitempty"`
}

type QueueStats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropAuditTotal    uint64 `json:"drop_audit_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	DropIslandsTotal  uint64 `json:"drop_islands_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func openDB(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	if err := dropLegacyAudits(db); err != nil {
		return err
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS islands (
			player_id TEXT PRIMARY KEY,
			world TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			assigned_tick INTEGER NOT NULL
		);`,
		`DROP INDEX IF EXISTS idx_islands_pos;`,
		`CREATE INDEX IF NOT EXISTS idx_islands_world_pos ON islands(world, x, z);`,
		`CREATE TABLE IF NOT EXISTS chest_runs (
			world TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			finished_tick INTEGER NOT NULL,
			state TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			items INTEGER NOT NULL,
			detail TEXT,
			PRIMARY KEY (world, x, y, z, finished_tick)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chest_runs_state ON chest_runs(state, finished_tick);`,
		`CREATE TABLE IF NOT EXISTS audits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			player_id TEXT,
			world TEXT,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			state TEXT,
			attempt INTEGER NOT NULL,
			detail TEXT,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_player_tick ON audits(player_id, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_type_tick ON audits(type, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			worlds INTEGER NOT NULL,
			chunks INTEGER NOT NULL,
			containers INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Audit implements model.Auditor.
func (s *SQLiteIndex) Audit(e model.AuditEntry) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: e}:
	default:
		s.dropAudit.Add(1)
	}
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{Tick: snap.Header.Tick, Path: path, Worlds: len(snap.Worlds)}
	for _, w := range snap.Worlds {
		r.Chunks += len(w.Chunks)
		for _, c := range w.Chunks {
			r.Containers += len(c.Containers)
		}
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// SyncIslands replaces the islands table with rows, typically the registry
// contents at startup.
func (s *SQLiteIndex) SyncIslands(rows []IslandRow) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqIslands, islands: append([]IslandRow(nil), rows...)}:
	default:
		s.dropIslands.Add(1)
	}
}

func (s *SQLiteIndex) Stats() QueueStats {
	if s == nil {
		return QueueStats{}
	}
	return QueueStats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropAuditTotal:    s.dropAudit.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		DropIslandsTotal:  s.dropIslands.Load(),
	}
}

// UpsertTuning records the tuning in effect, as canonical JSON plus digest.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	kv := [][2]string{
		{"schema_version", "1"},
		{"tuning_digest", hex.EncodeToString(sum[:])},
		{"tuning_json", string(b)},
		{"tuning_updated_at", time.Now().UTC().Format(time.RFC3339Nano)},
	}
	for _, p := range kv {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`, p[0], p[1]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertAudit, _ := s.db.Prepare(`INSERT INTO audits(tick,seq,type,player_id,world,x,y,z,state,attempt,detail,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	upsertIsland, _ := s.db.Prepare(`INSERT OR REPLACE INTO islands(player_id,world,x,y,z,assigned_tick) VALUES(?,?,?,?,?,?)`)
	insertChest, _ := s.db.Prepare(`INSERT OR REPLACE INTO chest_runs(world,x,y,z,finished_tick,state,attempt,items,detail) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,worlds,chunks,containers) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertAudit, upsertIsland, insertChest, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return true
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			if !exec(insertAudit, int64(a.Tick), seq, a.Type, a.PlayerID, a.World,
				a.Pos[0], a.Pos[1], a.Pos[2], a.State, a.Attempt, a.Detail, string(raw)) {
				continue
			}
			switch a.Type {
			case model.AuditIslandAssigned:
				exec(upsertIsland, a.PlayerID, a.World, a.Pos[0], a.Pos[1], a.Pos[2], int64(a.Tick))
			case model.AuditChestDone, model.AuditChestAbandoned:
				exec(insertChest, a.World, a.Pos[0], a.Pos[1], a.Pos[2], int64(a.Tick), a.State, a.Attempt, a.Items, a.Detail)
			}

		case reqIslands:
			if _, err := tx.Exec(`DELETE FROM islands`); err != nil {
				rollback()
				continue
			}
			for _, row := range r.islands {
				if !exec(upsertIsland, row.PlayerID, row.World, row.X, row.Y, row.Z, int64(row.Tick)) {
					break
				}
			}

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.Worlds, sn.Chunks, sn.Containers)
		}
		// Commit when the queue is idle so readers see fresh rows.
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}

	commit()
}

// dropLegacyAudits removes an audits table keyed on (tick, seq). Ticks restart
// when the server comes up without a snapshot, so that key collided across
// runs. The table is a read model and refills from new entries.
func dropLegacyAudits(db *sql.DB) error {
	var tables, idCols int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='audits'`).Scan(&tables); err != nil {
		return err
	}
	if tables == 0 {
		return nil
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('audits') WHERE name='id'`).Scan(&idCols); err != nil {
		return err
	}
	if idCols > 0 {
		return nil
	}
	_, err := db.Exec(`DROP TABLE audits`)
	return err
}

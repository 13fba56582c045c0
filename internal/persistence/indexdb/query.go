package indexdb

import (
	"context"
	"database/sql"
)

// Reader runs admin queries against an index file, possibly while the
// server is writing to it.
type Reader struct {
	db *sql.DB
}

func OpenReader(path string) (*Reader, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

func (r *Reader) ListIslands(ctx context.Context, world string, limit int) ([]IslandRow, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT player_id,world,x,y,z,assigned_tick FROM islands`
	args := []any{}
	if world != "" {
		q += ` WHERE world=?`
		args = append(args, world)
	}
	q += ` ORDER BY assigned_tick, player_id LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []IslandRow
	for rows.Next() {
		var row IslandRow
		var tick int64
		if err := rows.Scan(&row.PlayerID, &row.World, &row.X, &row.Y, &row.Z, &tick); err != nil {
			return nil, err
		}
		row.Tick = uint64(tick)
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListChestRuns returns finished chest chains, newest first. An empty state
// lists every outcome.
func (r *Reader) ListChestRuns(ctx context.Context, state string, limit int) ([]ChestRunRow, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT world,x,y,z,finished_tick,state,attempt,items,COALESCE(detail,'') FROM chest_runs`
	args := []any{}
	if state != "" {
		q += ` WHERE state=?`
		args = append(args, state)
	}
	q += ` ORDER BY finished_tick DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChestRunRow
	for rows.Next() {
		var row ChestRunRow
		var tick int64
		if err := rows.Scan(&row.World, &row.X, &row.Y, &row.Z, &tick, &row.State, &row.Attempt, &row.Items, &row.Detail); err != nil {
			return nil, err
		}
		row.Tick = uint64(tick)
		out = append(out, row)
	}
	return out, rows.Err()
}

// CountAudits returns the number of audit rows per type.
func (r *Reader) CountAudits(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM audits GROUP BY type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		out[typ] = n
	}
	return out, rows.Err()
}

func (r *Reader) Meta(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key=?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

type SnapshotRow struct {
	Tick       uint64 `json:"tick"`
	Path       string `json:"path"`
	Worlds     int    `json:"worlds"`
	Chunks     int    `json:"chunks"`
	Containers int    `json:"containers"`
}

// ListSnapshots returns recorded snapshots, newest first.
func (r *Reader) ListSnapshots(ctx context.Context, limit int) ([]SnapshotRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT tick,path,worlds,chunks,containers FROM snapshots ORDER BY tick DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SnapshotRow
	for rows.Next() {
		var row SnapshotRow
		var tick int64
		if err := rows.Scan(&tick, &row.Path, &row.Worlds, &row.Chunks, &row.Containers); err != nil {
			return nil, err
		}
		row.Tick = uint64(tick)
		out = append(out, row)
	}
	return out, rows.Err()
}

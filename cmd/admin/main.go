package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	persistlog "skyisland.ai/internal/persistence/log"
	"skyisland.ai/internal/persistence/snapshot"
	"skyisland.ai/internal/sim/island/model"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "chests":
			chestsCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "snapshots"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	typ := fs.String("type", "", "audit type filter (e.g. CHEST_ABANDONED)")
	player := fs.String("player", "", "player id filter")
	sinceTick := fs.Uint64("since_tick", 0, "only entries at or after tick")
	aabb := fs.String("aabb", "", "AABB filter: x1,y1,z1:x2,y2,z2 (optional)")
	_ = fs.Parse(args)

	entries, err := persistlog.ReadAudit(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	f := auditFilter{Type: strings.TrimSpace(*typ), Player: strings.TrimSpace(*player), SinceTick: *sinceTick}
	if strings.TrimSpace(*aabb) != "" {
		min, max, err := parseAABB(*aabb)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -aabb:", err)
			os.Exit(2)
		}
		f.Box = &[2][3]int{min, max}
	}
	for _, e := range f.apply(entries) {
		printJSON(e)
	}
}

type auditFilter struct {
	Type      string
	Player    string
	SinceTick uint64
	Box       *[2][3]int
}

func (f auditFilter) apply(in []model.AuditEntry) []model.AuditEntry {
	var out []model.AuditEntry
	for _, e := range in {
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if f.Player != "" && e.PlayerID != f.Player {
			continue
		}
		if e.Tick < f.SinceTick {
			continue
		}
		if f.Box != nil && !withinAABB(e.Pos, f.Box[0], f.Box[1]) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// chestsCmd lists chest contents from a snapshot.
func chestsCmd(args []string) {
	fs := flag.NewFlagSet("chests", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	worldName := fs.String("world", "", "world filter (optional)")
	aabb := fs.String("aabb", "", "AABB filter: x1,y1,z1:x2,y2,z2 (optional)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		path = latestSnapshot(filepath.Join(*dataDir, "snapshots"))
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	var box *[2][3]int
	if strings.TrimSpace(*aabb) != "" {
		min, max, err := parseAABB(*aabb)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -aabb:", err)
			os.Exit(2)
		}
		box = &[2][3]int{min, max}
	}
	for _, c := range containersIn(snap, strings.TrimSpace(*worldName), box) {
		printJSON(c)
	}
}

type chestView struct {
	World string            `json:"world"`
	Pos   [3]int            `json:"pos"`
	Items []snapshot.SlotV1 `json:"items"`
}

func containersIn(snap snapshot.SnapshotV1, worldName string, box *[2][3]int) []chestView {
	var out []chestView
	for _, w := range snap.Worlds {
		if worldName != "" && w.Name != worldName {
			continue
		}
		for _, ch := range w.Chunks {
			for _, c := range ch.Containers {
				if box != nil && !withinAABB(c.Pos, box[0], box[1]) {
					continue
				}
				out = append(out, chestView{World: w.Name, Pos: c.Pos, Items: c.Slots})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].World != out[j].World {
			return out[i].World < out[j].World
		}
		a, b := out[i].Pos, out[j].Pos
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		if a[2] != b[2] {
			return a[2] < b[2]
		}
		return a[1] < b[1]
	})
	return out
}

func withinAABB(pos [3]int, min, max [3]int) bool {
	return pos[0] >= min[0] && pos[0] <= max[0] &&
		pos[1] >= min[1] && pos[1] <= max[1] &&
		pos[2] >= min[2] && pos[2] <= max[2]
}

func parseAABB(s string) (min, max [3]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return min, max, fmt.Errorf("expected x1,y1,z1:x2,y2,z2")
	}
	a, err := parseVec3(parts[0])
	if err != nil {
		return min, max, err
	}
	b, err := parseVec3(parts[1])
	if err != nil {
		return min, max, err
	}
	for i := 0; i < 3; i++ {
		if a[i] <= b[i] {
			min[i], max[i] = a[i], b[i]
		} else {
			min[i], max[i] = b[i], a[i]
		}
	}
	return min, max, nil
}

func parseVec3(s string) ([3]int, error) {
	var v [3]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("expected x,y,z")
	}
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}

func latestSnapshot(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}

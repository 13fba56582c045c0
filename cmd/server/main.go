package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"skyisland.ai/internal/persistence/configstore"
	"skyisland.ai/internal/persistence/indexdb"
	persistlog "skyisland.ai/internal/persistence/log"
	"skyisland.ai/internal/persistence/snapshot"
	"skyisland.ai/internal/sim/engine"
	"skyisland.ai/internal/sim/island/model"
	"skyisland.ai/internal/sim/tuning"
	"skyisland.ai/internal/sim/world"
	"skyisland.ai/internal/transport/ws"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		configDir   = flag.String("configs", "./configs", "config directory")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		islandsPath = flag.String("islands", "", "player island records (default: <data>/config.yml)")
		disableDB   = flag.Bool("disable_db", false, "disable the sqlite read index")
		seed        = flag.Int64("seed", 0, "allocator seed (0: time based)")

		snapPath      = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest    = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
		keepSnapshots = flag.Int("keep_snapshots", 5, "number of periodic snapshots to keep (0 keeps all)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	specs := make([]world.Spec, 0, len(tune.Worlds))
	for _, wt := range tune.Worlds {
		specs = append(specs, world.Spec{Name: wt.Name, MinY: wt.MinY, MaxY: wt.MaxY})
	}
	w, err := world.New(world.Config{Worlds: specs, IdleUnloadTicks: tune.ChunkIdleUnloadTicks}, log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	snapDir := filepath.Join(*dataDir, "snapshots")
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(snapDir)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), w.Now())
	}

	ip := strings.TrimSpace(*islandsPath)
	if ip == "" {
		ip = filepath.Join(*dataDir, "config.yml")
	}
	store, err := configstore.Open(ip)
	if err != nil {
		logger.Fatalf("open island store: %v", err)
	}

	idx, err := openRuntimeIndex(*dataDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
	}

	auditLog := persistlog.NewAuditLogger(*dataDir)
	defer auditLog.Close()
	auditors := model.Auditors{auditLog}
	if idx != nil {
		auditors = append(auditors, idx)
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	e, err := engine.New(tune, engine.Deps{
		World: w,
		Store: store,
		Rand:  rand.New(rand.NewSource(*seed)),
		Log:   log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lmicroseconds),
		Audit: auditors,
	})
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}

	if idx != nil {
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		}
		idx.SyncIslands(islandRows(e))
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	e.SetSnapshotSink(snapCh)
	snapDone := make(chan struct{})
	go func() {
		defer close(snapDone)
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path, err := writeSnapshot(snapDir, snap)
				if err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, snap)
				}
				if n := pruneSnapshots(snapDir, *keepSnapshots); n > 0 {
					logger.Printf("pruned %d old snapshots", n)
				}
			}
		}
	}()

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := e.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("engine stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		ctx2, cancel2 := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel2()
		st, err := e.Stats(ctx2)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, st, idx)
	})

	if envBool("SKY_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel2()
			st, err := e.Stats(ctx2)
			if err != nil {
				http.Error(rw, err.Error(), http.StatusServiceUnavailable)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(st)
		})
	} else {
		logger.Printf("admin endpoints disabled (SKY_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("SKY_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(e, log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds)).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (seed=%d)", *addr, *seed)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// The engine goroutine is gone after this, so the world can be read here.
	cancel()
	<-engineDone
	<-snapDone
	snap := e.ExportSnapshot()
	if path, err := writeSnapshot(snapDir, snap); err != nil {
		logger.Printf("final snapshot: %v", err)
	} else {
		logger.Printf("final snapshot %s", path)
	}
}

func islandRows(e *engine.Engine) []indexdb.IslandRow {
	recs := e.Islands()
	rows := make([]indexdb.IslandRow, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, indexdb.IslandRow{
			PlayerID: r.PlayerID.String(),
			World:    r.Island.World,
			X:        r.Island.Pos.X,
			Y:        r.Island.Pos.Y,
			Z:        r.Island.Pos.Z,
		})
	}
	return rows
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func writeSnapshot(dir string, snap snapshot.SnapshotV1) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
	return path, snapshot.WriteSnapshot(path, snap)
}

// snapshotTicks lists <tick>.snap.zst files in dir, oldest first.
func snapshotTicks(dir string) []uint64 {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var ticks []uint64
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
		ticks = append(ticks, tick)
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })
	return ticks
}

func latestSnapshot(dir string) string {
	ticks := snapshotTicks(dir)
	if len(ticks) == 0 {
		return ""
	}
	return filepath.Join(dir, fmt.Sprintf("%d.snap.zst", ticks[len(ticks)-1]))
}

func pruneSnapshots(dir string, keep int) int {
	if keep <= 0 {
		return 0
	}
	ticks := snapshotTicks(dir)
	removed := 0
	for len(ticks) > keep {
		if err := os.Remove(filepath.Join(dir, fmt.Sprintf("%d.snap.zst", ticks[0]))); err == nil {
			removed++
		}
		ticks = ticks[1:]
	}
	return removed
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Package engine runs the island subsystem on a single tick goroutine. It owns
// the host world, the scheduler, every island component and the connected
// player sessions; transports talk to it only through channels.
package engine

import (
	"fmt"
	"io"
	"log"
	"math/rand"

	"github.com/google/uuid"

	"skyisland.ai/internal/persistence/snapshot"
	"skyisland.ai/internal/protocol"
	"skyisland.ai/internal/sim/island/alloc"
	"skyisland.ai/internal/sim/island/chest"
	"skyisland.ai/internal/sim/island/model"
	"skyisland.ai/internal/sim/island/registry"
	"skyisland.ai/internal/sim/island/spawn"
	"skyisland.ai/internal/sim/island/terrain"
	"skyisland.ai/internal/sim/sched"
	"skyisland.ai/internal/sim/tuning"
	"skyisland.ai/internal/sim/world"
)

type JoinRequest struct {
	PlayerID  uuid.UUID
	Name      string
	World     string
	FirstJoin bool
	Out       chan []byte
	Resp      chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	Err     *protocol.ErrorMsg
}

type RespawnRequest struct {
	PlayerID uuid.UUID
	BedSpawn bool
	Resp     chan protocol.RespawnTargetMsg
}

type Stats struct {
	Tick          uint64 `json:"tick"`
	Players       int    `json:"players"`
	Islands       int    `json:"islands"`
	Occupied      int    `json:"occupied"`
	ActiveChests  int    `json:"active_chests"`
	ChestsDone    int    `json:"chests_done"`
	ChestsFailed  int    `json:"chests_abandoned"`
	PendingTasks  int    `json:"pending_tasks"`
	LoadedChunks  int    `json:"loaded_chunks"`
	DroppedFrames int    `json:"dropped_frames"`
}

type Deps struct {
	World *world.World
	Store registry.Store
	Rand  *rand.Rand
	Log   *log.Logger
	Audit model.Auditor
}

type Engine struct {
	tune  tuning.Tuning
	world *world.World
	sched *sched.Scheduler
	alloc *alloc.Allocator
	chest *chest.Populator
	build *terrain.Builder
	reg   *registry.Registry
	coord *spawn.Coordinator
	log   *log.Logger

	tick     uint64
	sessions map[uuid.UUID]*session
	respawns map[uuid.UUID]model.Location

	chestsDone    int
	chestsFailed  int
	droppedFrames int

	join     chan JoinRequest
	leave    chan uuid.UUID
	respawn  chan RespawnRequest
	statsReq chan chan Stats
	stop     chan struct{}

	snapshotSink chan<- snapshot.SnapshotV1
}

// New wires every island component from tuning and loads the persisted
// island records, reseeding the allocator.
func New(tune tuning.Tuning, d Deps) (*Engine, error) {
	if err := tune.Validate(); err != nil {
		return nil, fmt.Errorf("tuning: %w", err)
	}
	if d.World == nil || d.Store == nil {
		return nil, fmt.Errorf("engine: world and store are required")
	}
	if d.Log == nil {
		d.Log = log.New(io.Discard, "", 0)
	}
	if d.Audit == nil {
		d.Audit = model.NopAuditor{}
	}
	e := &Engine{
		tune:     tune,
		world:    d.World,
		log:      d.Log,
		tick:     d.World.Now(),
		sessions: map[uuid.UUID]*session{},
		respawns: map[uuid.UUID]model.Location{},
		join:     make(chan JoinRequest, 64),
		leave:    make(chan uuid.UUID, 64),
		respawn:  make(chan RespawnRequest, 64),
		statsReq: make(chan chan Stats, 8),
		stop:     make(chan struct{}),
	}
	clock := func() uint64 { return e.tick }

	e.sched = sched.New(prefixed(d.Log, "[sched] "))
	e.alloc = alloc.New(alloc.Config{
		MaxRange:    tune.Island.MaxRange,
		MinDistance: tune.Island.MinDistance,
		Altitude:    tune.Island.Altitude,
		MaxAttempts: tune.Island.AttemptLimit,
	}, d.Rand, prefixed(d.Log, "[alloc] "))

	e.chest = chest.New(chest.Config{
		PlaceSettleTicks:   tune.Chest.PlaceSettleTicks,
		VerifySettleTicks:  tune.Chest.VerifySettleTicks,
		ReloadRetryTicks:   tune.Chest.ReloadRetryTicks,
		FallbackRetryTicks: tune.Chest.FallbackRetryTicks,
		VerifyRetryTicks:   tune.Chest.VerifyRetryTicks,
		MaxAttempts:        tune.Chest.MaxAttempts,
		ProgressEvery:      tune.Chest.ProgressEvery,
		Items:              starterItems(tune.Starter),
		Threshold:          tune.Chest.Threshold,
	}, d.World, e.sched, clock, prefixed(d.Log, "[chest] "), d.Audit)
	e.chest.OnFinish = e.onChestFinish

	e.build = terrain.New(terrain.Config{
		Size:        tune.Island.Size,
		TreeOffset:  model.Vec3iFromArray(tune.Offsets.Tree),
		ChestOffset: model.Vec3iFromArray(tune.Offsets.Chest),
	}, d.World, e.chest, prefixed(d.Log, "[terrain] "))

	e.reg = registry.New(d.Store, e.alloc, d.World, prefixed(d.Log, "[registry] "))
	if _, err := e.reg.LoadAll(); err != nil {
		return nil, fmt.Errorf("load islands: %w", err)
	}

	e.coord = spawn.New(spawn.Config{
		SpawnOffset:      model.Vec3iFromArray(tune.Offsets.Spawn),
		FirstSpawnOffset: model.Vec3iFromArray(tune.Offsets.FirstSpawn),
		BedOffset:        model.Vec3iFromArray(tune.Offsets.Bed),
		Greeting:         tune.Greeting,
	}, spawn.Deps{
		Allocator: e.alloc,
		Builder:   e.build,
		Registry:  e.reg,
		World:     d.World,
		Players:   hostPlayers{e},
		Runner:    e.sched,
		Clock:     clock,
		Log:       prefixed(d.Log, "[island] "),
		Audit:     d.Audit,
	})
	return e, nil
}

func (e *Engine) Join() chan<- JoinRequest       { return e.join }
func (e *Engine) Leave() chan<- uuid.UUID        { return e.leave }
func (e *Engine) Respawn() chan<- RespawnRequest { return e.respawn }

// SetSnapshotSink receives a world snapshot every snapshot_every_ticks. Must
// be called before Run.
func (e *Engine) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { e.snapshotSink = ch }

// ExportSnapshot captures the world. Only call it when Run is not active.
func (e *Engine) ExportSnapshot() snapshot.SnapshotV1 { return e.world.ExportSnapshot(e.tick) }

// Islands returns every registered island. Only call it when Run is not
// active.
func (e *Engine) Islands() []registry.Record { return e.reg.All() }

func (e *Engine) CurrentTick() uint64 { return e.tick }

func (e *Engine) TickRateHz() int { return e.tune.TickRateHz }

func (e *Engine) onChestFinish(a chest.Attempt) {
	switch a.State {
	case chest.StateDone:
		e.chestsDone++
	case chest.StateAbandoned:
		e.chestsFailed++
	}
}

func (e *Engine) stats() Stats {
	loaded := 0
	for _, name := range e.world.Worlds() {
		loaded += e.world.LoadedChunks(name)
	}
	return Stats{
		Tick:          e.tick,
		Players:       len(e.sessions),
		Islands:       e.reg.Len(),
		Occupied:      e.alloc.Len(),
		ActiveChests:  len(e.chest.Active()),
		ChestsDone:    e.chestsDone,
		ChestsFailed:  e.chestsFailed,
		PendingTasks:  e.sched.Pending(),
		LoadedChunks:  loaded,
		DroppedFrames: e.droppedFrames,
	}
}

func starterItems(in []tuning.ItemTuning) []model.ItemStack {
	out := make([]model.ItemStack, 0, len(in))
	for _, it := range in {
		out = append(out, model.ItemStack{Item: it.Item, Count: it.Count})
	}
	return out
}

func prefixed(l *log.Logger, prefix string) *log.Logger {
	return log.New(l.Writer(), prefix, l.Flags())
}

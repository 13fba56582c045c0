// Package spawn decides what happens to a player on join and respawn:
// generate an island, send them to it, or leave them alone.
package spawn

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/google/uuid"

	"skyisland.ai/internal/sim/island/model"
	"skyisland.ai/internal/sim/island/terrain"
	"skyisland.ai/internal/sim/sched"
)

type Players interface {
	Teleport(id uuid.UUID, loc model.Location) error
	SetRespawn(id uuid.UUID, loc model.Location) error
	BedSpawn(id uuid.UUID) (model.Location, bool)
	Notify(id uuid.UUID, text string)
}

type Allocator interface {
	Allocate(world string) model.Coordinate
}

type Builder interface {
	Build(center model.Coordinate) (terrain.Result, error)
}

type Registry interface {
	Get(id uuid.UUID) (model.Coordinate, bool)
	Put(id uuid.UUID, c model.Coordinate) error
	SaveAll() error
}

type World interface {
	HasWorld(name string) bool
	BlockAt(loc model.Location) (string, error)
}

type Config struct {
	// SpawnOffset is where returning and respawning players land.
	SpawnOffset model.Vec3i
	// FirstSpawnOffset is where a player lands right after generation.
	FirstSpawnOffset model.Vec3i
	BedOffset        model.Vec3i
	Greeting         string
}

func DefaultConfig() Config {
	return Config{
		SpawnOffset:      model.Vec3i{X: 1, Y: 7, Z: 1},
		FirstSpawnOffset: model.Vec3i{X: 1, Y: 7, Z: 4},
		BedOffset:        model.Vec3i{X: 1, Y: 6, Z: 4},
		Greeting:         "Welcome! Your personal island has been generated!",
	}
}

type Player struct {
	ID    uuid.UUID
	Name  string
	World string
}

type JoinEvent struct {
	Player
	FirstJoin bool
}

type RespawnEvent struct {
	PlayerID uuid.UUID
	// BedSpawn is set when the host already resolved a bed respawn.
	BedSpawn bool
}

type RespawnSource string

const (
	SourceBed     RespawnSource = "BED"
	SourceIsland  RespawnSource = "ISLAND"
	SourceDefault RespawnSource = "DEFAULT"
)

type Coordinator struct {
	cfg     Config
	alloc   Allocator
	builder Builder
	reg     Registry
	world   World
	players Players
	runner  sched.Runner
	clock   func() uint64
	log     *log.Logger
	audit   model.Auditor

	pending map[uuid.UUID]model.Coordinate
}

type Deps struct {
	Allocator Allocator
	Builder   Builder
	Registry  Registry
	World     World
	Players   Players
	Runner    sched.Runner
	Clock     func() uint64
	Log       *log.Logger
	Audit     model.Auditor
}

func New(cfg Config, d Deps) *Coordinator {
	def := DefaultConfig()
	if cfg.SpawnOffset == (model.Vec3i{}) {
		cfg.SpawnOffset = def.SpawnOffset
	}
	if cfg.FirstSpawnOffset == (model.Vec3i{}) {
		cfg.FirstSpawnOffset = def.FirstSpawnOffset
	}
	if cfg.BedOffset == (model.Vec3i{}) {
		cfg.BedOffset = def.BedOffset
	}
	if d.Log == nil {
		d.Log = log.New(io.Discard, "", 0)
	}
	if d.Audit == nil {
		d.Audit = model.NopAuditor{}
	}
	if d.Clock == nil {
		d.Clock = func() uint64 { return 0 }
	}
	return &Coordinator{
		cfg:     cfg,
		alloc:   d.Allocator,
		builder: d.Builder,
		reg:     d.Registry,
		world:   d.World,
		players: d.Players,
		runner:  d.Runner,
		clock:   d.Clock,
		log:     d.Log,
		audit:   d.Audit,
		pending: map[uuid.UUID]model.Coordinate{},
	}
}

// OnJoin handles a player join. Only first joins trigger generation;
// returning players stay where their last session ended.
func (c *Coordinator) OnJoin(ev JoinEvent) {
	defer c.guard("join", ev.ID)
	if !ev.FirstJoin {
		c.log.Printf("existing player %s (%s) joined, leaving them where they logged out", ev.Name, ev.ID)
		return
	}
	c.log.Printf("new player %s (%s) in %s, scheduling island generation", ev.Name, ev.ID, ev.World)
	p := ev.Player
	c.runner.RunNextTick(func() {
		if _, err := c.GenerateIslandForPlayer(p); err != nil {
			c.log.Printf("island generation for %s: %v", p.ID, err)
		}
	})
}

// GenerateIslandForPlayer resolves the player's island. A registered player
// is sent to their island without allocating; a player whose island is still
// being built gets the pending coordinate; anyone else gets a new allocation
// whose build and registration run on the following ticks.
func (c *Coordinator) GenerateIslandForPlayer(p Player) (model.Coordinate, error) {
	if existing, ok := c.reg.Get(p.ID); ok {
		c.TeleportToIsland(p.ID)
		return existing, nil
	}
	if pending, ok := c.pending[p.ID]; ok {
		c.log.Printf("island for %s already in progress at %s", p.ID, pending)
		return pending, nil
	}
	if !c.world.HasWorld(p.World) {
		c.log.Printf("world %q not found, cannot generate island for %s", p.World, p.ID)
		return model.Coordinate{}, fmt.Errorf("generate island: %q: %w", p.World, model.ErrWorldNotFound)
	}

	center := c.alloc.Allocate(p.World)
	c.pending[p.ID] = center
	c.emit(model.AuditIslandAllocated, p.ID, center.World, center.Pos, "")

	c.runner.RunNextTick(func() { c.build(p, center) })
	return center, nil
}

func (c *Coordinator) build(p Player, center model.Coordinate) {
	res, err := c.builder.Build(center)
	if err != nil {
		if errors.Is(err, model.ErrWorldNotFound) {
			delete(c.pending, p.ID)
			c.log.Printf("island for %s abandoned: %v", p.ID, err)
			return
		}
		// A half-built island is still the player's island.
		c.log.Printf("island for %s partially built (%d blocks): %v", p.ID, res.Blocks, err)
	}
	c.emit(model.AuditIslandBuilt, p.ID, center.World, center.Pos, fmt.Sprintf("blocks=%d tree=%t", res.Blocks, res.Tree))
	c.runner.RunNextTick(func() { c.register(p, center) })
}

func (c *Coordinator) register(p Player, center model.Coordinate) {
	defer delete(c.pending, p.ID)
	if err := c.reg.Put(p.ID, center); err != nil {
		c.log.Printf("register island for %s: %v", p.ID, err)
		return
	}
	if err := c.reg.SaveAll(); err != nil {
		c.log.Printf("persist island for %s: %v", p.ID, err)
	}
	c.emit(model.AuditIslandAssigned, p.ID, center.World, center.Pos, "")

	spawn := model.Location{World: center.World, Pos: center.Offset(c.cfg.FirstSpawnOffset)}
	bed := model.Location{World: center.World, Pos: center.Offset(c.cfg.BedOffset)}
	if err := c.players.Teleport(p.ID, spawn); err != nil {
		c.log.Printf("teleport %s to island spawn: %v", p.ID, err)
	} else {
		c.log.Printf("teleported %s to island spawn %s", p.Name, spawn)
	}
	if err := c.players.SetRespawn(p.ID, bed); err != nil {
		c.log.Printf("set bed spawn for %s: %v", p.ID, err)
	}
	if c.cfg.Greeting != "" {
		c.players.Notify(p.ID, c.cfg.Greeting)
	}
}

// TeleportToIsland sends a registered player to their bed if it is still a
// bed, otherwise to the island spawn, which also becomes their respawn point.
func (c *Coordinator) TeleportToIsland(id uuid.UUID) bool {
	center, ok := c.reg.Get(id)
	if !ok {
		return false
	}
	if bed, ok := c.players.BedSpawn(id); ok && c.isBed(bed) {
		c.log.Printf("%s has valid bed spawn %s", id, bed)
		if err := c.players.Teleport(id, bed); err != nil {
			c.log.Printf("teleport %s to bed: %v", id, err)
		}
		return true
	}
	spawn := c.spawnFor(center)
	c.log.Printf("%s has no valid bed, teleporting to island %s", id, spawn)
	if err := c.players.Teleport(id, spawn); err != nil {
		c.log.Printf("teleport %s to island: %v", id, err)
	}
	if err := c.players.SetRespawn(id, spawn); err != nil {
		c.log.Printf("set respawn for %s: %v", id, err)
	}
	return true
}

// OnRespawn picks the respawn target. A bed respawn the host already resolved
// is kept; otherwise a registered island wins over the host default.
func (c *Coordinator) OnRespawn(ev RespawnEvent) (loc model.Location, src RespawnSource) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Printf("respawn for %s panicked: %v", ev.PlayerID, r)
			loc, src = model.Location{}, SourceDefault
		}
	}()
	if ev.BedSpawn {
		c.log.Printf("%s is using a valid bed spawn, no override", ev.PlayerID)
		return model.Location{}, SourceBed
	}
	center, ok := c.reg.Get(ev.PlayerID)
	if !ok {
		c.log.Printf("no island spawn found for %s, defaulting to world spawn", ev.PlayerID)
		return model.Location{}, SourceDefault
	}
	spawn := c.spawnFor(center)
	c.emit(model.AuditRespawn, ev.PlayerID, spawn.World, spawn.Pos, string(SourceIsland))
	c.log.Printf("%s has no valid bed, respawning at island %s", ev.PlayerID, spawn)
	return spawn, SourceIsland
}

func (c *Coordinator) HasIsland(id uuid.UUID) bool {
	_, ok := c.reg.Get(id)
	return ok
}

// IslandSpawn returns where a registered player respawns on their island.
func (c *Coordinator) IslandSpawn(id uuid.UUID) (model.Location, bool) {
	center, ok := c.reg.Get(id)
	if !ok {
		return model.Location{}, false
	}
	return c.spawnFor(center), true
}

func (c *Coordinator) spawnFor(center model.Coordinate) model.Location {
	return model.Location{World: center.World, Pos: center.Offset(c.cfg.SpawnOffset)}
}

func (c *Coordinator) isBed(loc model.Location) bool {
	if !c.world.HasWorld(loc.World) {
		return false
	}
	b, err := c.world.BlockAt(loc)
	return err == nil && strings.Contains(b, "BED")
}

func (c *Coordinator) emit(typ string, id uuid.UUID, world string, pos model.Vec3i, detail string) {
	c.audit.Audit(model.AuditEntry{
		Tick:     c.clock(),
		Type:     typ,
		PlayerID: id.String(),
		World:    world,
		Pos:      pos.ToArray(),
		Detail:   detail,
	})
}

func (c *Coordinator) guard(op string, id uuid.UUID) {
	if r := recover(); r != nil {
		c.log.Printf("%s for %s panicked: %v", op, id, r)
	}
}

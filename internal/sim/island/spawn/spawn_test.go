package spawn

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"skyisland.ai/internal/persistence/configstore"
	"skyisland.ai/internal/sim/island/model"
	"skyisland.ai/internal/sim/island/registry"
	"skyisland.ai/internal/sim/island/terrain"
	"skyisland.ai/internal/sim/sched"
)

type countingAlloc struct {
	calls int
	next  model.Coordinate
}

func (a *countingAlloc) Allocate(world string) model.Coordinate {
	a.calls++
	c := a.next
	c.World = world
	a.next.Pos.X += 200
	return c
}

type fakeBuilder struct {
	built []model.Coordinate
	err   error
}

func (b *fakeBuilder) Build(c model.Coordinate) (terrain.Result, error) {
	b.built = append(b.built, c)
	return terrain.Result{Blocks: 216, Tree: true}, b.err
}

type fakeWorld struct {
	worlds map[string]bool
	blocks map[model.Location]string
}

func (w *fakeWorld) HasWorld(n string) bool { return w.worlds[n] }
func (w *fakeWorld) BlockAt(loc model.Location) (string, error) {
	if b, ok := w.blocks[loc]; ok {
		return b, nil
	}
	return model.Air, nil
}

type fakePlayers struct {
	pos     map[uuid.UUID]model.Location
	respawn map[uuid.UUID]model.Location
	notes   map[uuid.UUID][]string
}

func newFakePlayers() *fakePlayers {
	return &fakePlayers{pos: map[uuid.UUID]model.Location{}, respawn: map[uuid.UUID]model.Location{}, notes: map[uuid.UUID][]string{}}
}

func (p *fakePlayers) Teleport(id uuid.UUID, loc model.Location) error {
	p.pos[id] = loc
	return nil
}
func (p *fakePlayers) SetRespawn(id uuid.UUID, loc model.Location) error {
	p.respawn[id] = loc
	return nil
}
func (p *fakePlayers) BedSpawn(id uuid.UUID) (model.Location, bool) {
	l, ok := p.respawn[id]
	return l, ok
}
func (p *fakePlayers) Notify(id uuid.UUID, text string) { p.notes[id] = append(p.notes[id], text) }

type fixture struct {
	s       *sched.Scheduler
	alloc   *countingAlloc
	builder *fakeBuilder
	reg     *registry.Registry
	world   *fakeWorld
	players *fakePlayers
	c       *Coordinator
}

func newFixture() *fixture {
	f := &fixture{
		s:       sched.New(nil),
		alloc:   &countingAlloc{next: model.Coordinate{Pos: model.Vec3i{X: 200, Y: 64, Z: -600}}},
		builder: &fakeBuilder{},
		reg:     registry.New(configstore.NewMemory(), nil, nil, nil),
		world:   &fakeWorld{worlds: map[string]bool{"world": true}, blocks: map[model.Location]string{}},
		players: newFakePlayers(),
	}
	f.c = New(Config{}, Deps{
		Allocator: f.alloc,
		Builder:   f.builder,
		Registry:  f.reg,
		World:     f.world,
		Players:   f.players,
		Runner:    f.s,
		Clock:     f.s.Now,
	})
	return f
}

func TestOnJoin_FirstJoinGeneratesAndRegisters(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	f.c.OnJoin(JoinEvent{Player: Player{ID: id, Name: "alex", World: "world"}, FirstJoin: true})

	f.s.Tick() // allocate
	if f.alloc.calls != 1 || len(f.builder.built) != 0 {
		t.Fatalf("expected allocation on tick 1 and build deferred, calls=%d built=%d", f.alloc.calls, len(f.builder.built))
	}
	f.s.Tick() // build
	if len(f.builder.built) != 1 || f.reg.Has(id) {
		t.Fatalf("expected build on tick 2 before registration")
	}
	f.s.Tick() // register + teleport
	c, ok := f.reg.Get(id)
	if !ok || c.Pos != (model.Vec3i{X: 200, Y: 64, Z: -600}) {
		t.Fatalf("unexpected registration %v ok=%v", c, ok)
	}
	if got := f.players.pos[id].Pos; got != (model.Vec3i{X: 201, Y: 71, Z: -596}) {
		t.Fatalf("unexpected first spawn %v", got)
	}
	if got := f.players.respawn[id].Pos; got != (model.Vec3i{X: 201, Y: 70, Z: -596}) {
		t.Fatalf("unexpected bed spawn %v", got)
	}
	if len(f.players.notes[id]) != 1 {
		t.Fatalf("expected a greeting")
	}
}

func TestOnJoin_ReturningPlayerIsLeftAlone(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	f.c.OnJoin(JoinEvent{Player: Player{ID: id, World: "world"}, FirstJoin: false})
	f.s.Drain(10)
	if f.alloc.calls != 0 || len(f.players.pos) != 0 || f.s.Executed() != 0 {
		t.Fatalf("returning player must not trigger anything")
	}
}

func TestGenerateIslandForPlayer_IsIdempotent(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	stored := model.Coordinate{World: "world", Pos: model.Vec3i{X: -800, Y: 64, Z: 1200}}
	if err := f.reg.Put(id, stored); err != nil {
		t.Fatalf("Put: %v", err)
	}
	for i := 0; i < 3; i++ {
		got, err := f.c.GenerateIslandForPlayer(Player{ID: id, World: "world"})
		if err != nil {
			t.Fatalf("GenerateIslandForPlayer: %v", err)
		}
		if got != stored {
			t.Fatalf("expected stored coordinate %v, got %v", stored, got)
		}
	}
	f.s.Drain(10)
	if f.alloc.calls != 0 || len(f.builder.built) != 0 {
		t.Fatalf("existing record must not allocate or build")
	}
	if got := f.players.pos[id].Pos; got != (model.Vec3i{X: -799, Y: 71, Z: 1201}) {
		t.Fatalf("expected teleport to island spawn, got %v", got)
	}
}

func TestGenerateIslandForPlayer_PendingIslandIsReused(t *testing.T) {
	f := newFixture()
	p := Player{ID: uuid.New(), World: "world"}
	first, err := f.c.GenerateIslandForPlayer(p)
	if err != nil {
		t.Fatalf("GenerateIslandForPlayer: %v", err)
	}
	second, err := f.c.GenerateIslandForPlayer(p)
	if err != nil || second != first {
		t.Fatalf("expected pending coordinate %v, got %v (%v)", first, second, err)
	}
	f.s.Drain(10)
	if f.alloc.calls != 1 || len(f.builder.built) != 1 || f.reg.Len() != 1 {
		t.Fatalf("expected exactly one allocation/build/registration")
	}
}

func TestGenerateIslandForPlayer_MissingWorld(t *testing.T) {
	f := newFixture()
	_, err := f.c.GenerateIslandForPlayer(Player{ID: uuid.New(), World: "the_end"})
	if !errors.Is(err, model.ErrWorldNotFound) {
		t.Fatalf("expected ErrWorldNotFound, got %v", err)
	}
	if f.alloc.calls != 0 || f.s.Pending() != 0 {
		t.Fatalf("missing world must not allocate")
	}
}

func TestBuildFailureForMissingWorldSkipsRegistration(t *testing.T) {
	f := newFixture()
	f.builder.err = model.ErrWorldNotFound
	id := uuid.New()
	if _, err := f.c.GenerateIslandForPlayer(Player{ID: id, World: "world"}); err != nil {
		t.Fatalf("GenerateIslandForPlayer: %v", err)
	}
	f.s.Drain(10)
	if f.reg.Has(id) {
		t.Fatalf("island must not be registered when the world vanished")
	}
}

func TestTeleportToIsland_PrefersValidBed(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	center := model.Coordinate{World: "world", Pos: model.Vec3i{X: 0, Y: 64, Z: 0}}
	_ = f.reg.Put(id, center)

	bed := model.Location{World: "world", Pos: model.Vec3i{X: 1, Y: 70, Z: 4}}
	f.players.respawn[id] = bed
	f.world.blocks[bed] = "RED_BED"
	f.c.TeleportToIsland(id)
	if f.players.pos[id] != bed {
		t.Fatalf("expected teleport to bed, got %v", f.players.pos[id])
	}

	f.world.blocks[bed] = model.Air
	f.c.TeleportToIsland(id)
	want := model.Location{World: "world", Pos: model.Vec3i{X: 1, Y: 71, Z: 1}}
	if f.players.pos[id] != want || f.players.respawn[id] != want {
		t.Fatalf("expected island spawn %v, got pos=%v respawn=%v", want, f.players.pos[id], f.players.respawn[id])
	}
}

func TestOnRespawn(t *testing.T) {
	f := newFixture()
	withIsland := uuid.New()
	_ = f.reg.Put(withIsland, model.Coordinate{World: "world", Pos: model.Vec3i{X: 400, Y: 64, Z: 400}})

	if _, src := f.c.OnRespawn(RespawnEvent{PlayerID: withIsland, BedSpawn: true}); src != SourceBed {
		t.Fatalf("bed respawn must not be overridden, got %s", src)
	}
	loc, src := f.c.OnRespawn(RespawnEvent{PlayerID: withIsland})
	if src != SourceIsland || loc.Pos != (model.Vec3i{X: 401, Y: 71, Z: 401}) {
		t.Fatalf("expected island respawn, got %s %v", src, loc)
	}
	if _, src := f.c.OnRespawn(RespawnEvent{PlayerID: uuid.New()}); src != SourceDefault {
		t.Fatalf("expected default respawn for a player without island, got %s", src)
	}
}

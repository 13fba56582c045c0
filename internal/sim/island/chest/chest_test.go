package chest

import (
	"errors"
	"testing"

	"skyisland.ai/internal/sim/island/model"
	"skyisland.ai/internal/sim/sched"
	"skyisland.ai/internal/sim/world"
)

type fakeInv struct {
	slots       []model.ItemStack
	failSetItem bool
	failSet     bool
	forgetful   bool // reads always come back empty
	reads       int
}

func newFakeInv() *fakeInv { return &fakeInv{slots: make([]model.ItemStack, 27)} }

func (f *fakeInv) Size() int { return len(f.slots) }
func (f *fakeInv) Clear() {
	for i := range f.slots {
		f.slots[i] = model.ItemStack{}
	}
}
func (f *fakeInv) SetItem(slot int, it model.ItemStack) error {
	if f.failSetItem {
		return errors.New("slot write rejected")
	}
	if slot < 0 || slot >= len(f.slots) {
		return model.ErrSlotOutOfRange
	}
	f.slots[slot] = it
	return nil
}
func (f *fakeInv) SetContents(slots []model.ItemStack) error {
	if f.failSet {
		return errors.New("contents write rejected")
	}
	copy(f.slots, slots)
	return nil
}
func (f *fakeInv) Contents() []model.ItemStack {
	f.reads++
	if f.forgetful {
		return make([]model.ItemStack, len(f.slots))
	}
	return append([]model.ItemStack(nil), f.slots...)
}

type fakeEnv struct {
	worlds     map[string]bool
	loaded     bool
	unloadNext bool
	pins       int
	block      string
	revert     int // BlockAt reports AIR for this many more calls
	blockReads int
	inv        *fakeInv
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{worlds: map[string]bool{"world": true}, block: model.Air, inv: newFakeInv()}
}

func (e *fakeEnv) HasWorld(w string) bool { return e.worlds[w] }
func (e *fakeEnv) ChunkLoaded(model.Location) bool {
	if e.unloadNext {
		e.unloadNext = false
		e.loaded = false
	}
	return e.loaded
}
func (e *fakeEnv) LoadChunk(model.Location) error { e.loaded = true; return nil }
func (e *fakeEnv) PinChunk(model.Location) error  { e.pins++; return nil }
func (e *fakeEnv) UnpinChunk(model.Location) {
	if e.pins > 0 {
		e.pins--
	}
}
func (e *fakeEnv) BlockAt(model.Location) (string, error) {
	e.blockReads++
	if e.revert > 0 {
		e.revert--
		return model.Air, nil
	}
	return e.block, nil
}
func (e *fakeEnv) SetBlock(_ model.Location, m string) error { e.block = m; return nil }
func (e *fakeEnv) Inventory(model.Location) (model.Inventory, error) {
	if e.block != model.Chest {
		return nil, model.ErrNotContainer
	}
	return e.inv, nil
}

var target = model.Location{World: "world", Pos: model.Vec3i{X: 1, Y: 70, Z: 1}}

func newPopulator(env Env, s *sched.Scheduler) (*Populator, *[]Attempt) {
	var finished []Attempt
	p := New(Config{}, env, s, s.Now, nil, nil)
	p.OnFinish = func(a Attempt) { finished = append(finished, a) }
	return p, &finished
}

func TestPopulator_HappyPath(t *testing.T) {
	s := sched.New(nil)
	env := newFakeEnv()
	p, finished := newPopulator(env, s)

	a := p.Start(target)
	s.Drain(1000)

	if a.State != StateDone {
		t.Fatalf("expected DONE, got %s", a.State)
	}
	if a.Attempt != 0 || a.LastCount != 6 {
		t.Fatalf("unexpected attempt=%d count=%d", a.Attempt, a.LastCount)
	}
	if s.Executed() != 3 {
		t.Fatalf("expected place+populate+verify = 3 steps, got %d", s.Executed())
	}
	// place (1) + settle (20) + verify settle (10)
	if s.Now() != 31 {
		t.Fatalf("expected completion at tick 31, got %d", s.Now())
	}
	if env.pins != 0 {
		t.Fatalf("expected chunk to be unpinned after DONE")
	}
	if len(*finished) != 1 || len(p.Active()) != 0 {
		t.Fatalf("expected one finished chain and none active")
	}
	want := model.StarterItems()
	for i, it := range want {
		if env.inv.slots[i] != it {
			t.Fatalf("slot %d = %v, want %v", i, env.inv.slots[i], it)
		}
	}
}

func TestPopulator_RevertedBlockReachesDoneInNPlusThreeSteps(t *testing.T) {
	for _, n := range []int{1, 5, 20, 49} {
		s := sched.New(nil)
		env := newFakeEnv()
		env.revert = n
		p, _ := newPopulator(env, s)

		a := p.Start(target)
		s.Drain(100000)

		if a.State != StateDone {
			t.Fatalf("n=%d: expected DONE, got %s", n, a.State)
		}
		if a.Attempt != n {
			t.Fatalf("n=%d: expected attempt counter %d, got %d", n, n, a.Attempt)
		}
		if got := s.Executed(); got != uint64(n+3) {
			t.Fatalf("n=%d: expected %d steps, got %d", n, n+3, got)
		}
	}
}

func TestPopulator_AbandonsAfterCeiling(t *testing.T) {
	s := sched.New(nil)
	env := newFakeEnv()
	env.inv.forgetful = true
	p, finished := newPopulator(env, s)

	a := p.Start(target)
	s.Drain(1000000)

	if a.State != StateAbandoned {
		t.Fatalf("expected ABANDONED, got %s", a.State)
	}
	max := p.Config().MaxAttempts
	if env.inv.reads != max+1 {
		t.Fatalf("expected %d verifications, got %d", max+1, env.inv.reads)
	}
	if s.Pending() != 0 {
		t.Fatalf("expected no scheduled callbacks after abandon, got %d", s.Pending())
	}
	ran := s.Executed()
	for i := 0; i < 500; i++ {
		s.Tick()
	}
	if s.Executed() != ran {
		t.Fatalf("callbacks ran after abandon")
	}
	if len(*finished) != 1 || (*finished)[0].State != StateAbandoned {
		t.Fatalf("expected one abandoned finish, got %+v", *finished)
	}
}

func TestPopulator_FallsBackToContentsStrategy(t *testing.T) {
	s := sched.New(nil)
	env := newFakeEnv()
	env.inv.failSetItem = true
	p, _ := newPopulator(env, s)

	a := p.Start(target)
	s.Drain(1000)

	if a.State != StateDone {
		t.Fatalf("expected DONE, got %s", a.State)
	}
	if a.Strategy != StrategyContents || a.Attempt != 1 {
		t.Fatalf("expected fallback on attempt 1, got strategy=%s attempt=%d", a.Strategy, a.Attempt)
	}
	if model.CountNonEmpty(env.inv.slots) != 6 {
		t.Fatalf("expected 6 slots written by fallback")
	}
}

func TestPopulator_ReloadsUnloadedChunk(t *testing.T) {
	s := sched.New(nil)
	env := newFakeEnv()
	p, _ := newPopulator(env, s)

	a := p.Start(target)
	s.Tick() // place
	if !env.loaded || env.block != model.Chest {
		t.Fatalf("expected chunk loaded and chest placed")
	}
	env.unloadNext = true
	s.Drain(1000)

	if a.State != StateDone || a.Attempt != 1 {
		t.Fatalf("expected DONE after one reload retry, got %s attempt=%d", a.State, a.Attempt)
	}
	// place (1) + settle (20) + reload retry (40) + verify settle (10)
	if s.Now() != 71 {
		t.Fatalf("expected completion at tick 71, got %d", s.Now())
	}
	if env.pins != 0 {
		t.Fatalf("expected every pin released after DONE, %d left", env.pins)
	}
}

func TestPopulator_ReloadReleasesPinOnRealWorld(t *testing.T) {
	w, err := world.New(world.Config{Worlds: []world.Spec{{Name: "world"}}, IdleUnloadTicks: 5}, nil)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	s := sched.New(nil)
	p := New(Config{}, w, s, s.Now, nil, nil)

	a := p.Start(target)
	s.Tick() // place
	if w.Pinned(target) != 1 {
		t.Fatalf("expected one pin after placing, got %d", w.Pinned(target))
	}
	w.UnloadChunk(target)
	s.Drain(1000)

	if a.State != StateDone || a.Attempt != 1 {
		t.Fatalf("expected DONE after one reload, got %s attempt=%d", a.State, a.Attempt)
	}
	if n := w.Pinned(target); n != 0 {
		t.Fatalf("chunk still pinned after DONE: %d", n)
	}
	for i := 0; i < 50; i++ {
		w.Tick()
	}
	if n := w.LoadedChunks("world"); n != 0 {
		t.Fatalf("expected idle chunk to unload, %d still loaded", n)
	}
}

func TestPopulator_VerifyRetryUsesLongerDelay(t *testing.T) {
	s := sched.New(nil)
	env := newFakeEnv()
	p, _ := newPopulator(env, s)

	a := p.Start(target)
	for s.Now() < 31 {
		if s.Now() == 30 {
			env.inv.forgetful = true
		}
		s.Tick()
	}
	if a.State != StatePopulating || a.Attempt != 1 {
		t.Fatalf("expected a retry after short verification, got %s attempt=%d", a.State, a.Attempt)
	}
	env.inv.forgetful = false
	s.Drain(1000)
	// first verify at 31, retry populate at 111, verify at 121
	if a.State != StateDone || s.Now() != 121 {
		t.Fatalf("expected DONE at tick 121, got %s at %d", a.State, s.Now())
	}
}

func TestPopulator_MissingWorldAbandonsImmediately(t *testing.T) {
	s := sched.New(nil)
	env := newFakeEnv()
	p, _ := newPopulator(env, s)

	a := p.Start(model.Location{World: "nether", Pos: target.Pos})
	s.Tick()

	if a.State != StateAbandoned {
		t.Fatalf("expected ABANDONED, got %s", a.State)
	}
	if s.Pending() != 0 || env.blockReads != 0 {
		t.Fatalf("expected no retries for a missing world")
	}
}

func TestPopulator_StepWithoutScheduler(t *testing.T) {
	rec := &recordingRunner{}
	env := newFakeEnv()
	p := New(Config{}, env, rec, nil, nil, nil)

	a := &Attempt{ID: 99, Target: target, State: StatePlacing}
	p.Step(a)
	if a.State != StateAwaitingSettle || rec.delays[len(rec.delays)-1] != 20 {
		t.Fatalf("expected AWAITING_SETTLE with 20 tick delay, got %s %v", a.State, rec.delays)
	}
	p.Step(a)
	if a.State != StateVerifying || rec.delays[len(rec.delays)-1] != 10 {
		t.Fatalf("expected VERIFYING with verify delay 10, got %s %v", a.State, rec.delays)
	}
	if got := p.Active(); len(got) != 0 {
		t.Fatalf("attempt was not started through Start, Active=%+v", got)
	}
	p.Step(a)
	if a.State != StateDone {
		t.Fatalf("expected DONE, got %s", a.State)
	}
	if env.pins != 0 || a.Pinned {
		t.Fatalf("expected pin released, pins=%d", env.pins)
	}
}

func TestPopulator_ActiveReportsVerifyingDuringSettle(t *testing.T) {
	s := sched.New(nil)
	env := newFakeEnv()
	p, _ := newPopulator(env, s)

	p.Start(target)
	for s.Now() < 25 {
		s.Tick()
	}
	act := p.Active()
	if len(act) != 1 || act[0].State != StateVerifying {
		t.Fatalf("expected one VERIFYING attempt while settling, got %+v", act)
	}
}

func TestPopulator_RetryAfterVerifyReturnsToSlots(t *testing.T) {
	rec := &recordingRunner{}
	env := newFakeEnv()
	p := New(Config{}, env, rec, nil, nil, nil)

	a := &Attempt{ID: 7, Target: target, State: StatePlacing}
	p.Step(a)
	env.inv.failSetItem = true
	p.Step(a)
	if a.Strategy != StrategyContents || rec.delays[len(rec.delays)-1] != 60 {
		t.Fatalf("expected switch to CONTENTS after 60 ticks, got %s %v", a.Strategy, rec.delays)
	}
	p.Step(a)
	if a.State != StateVerifying || a.Strategy != StrategyContents {
		t.Fatalf("expected CONTENTS write to succeed, got %s %s", a.State, a.Strategy)
	}
	env.inv.forgetful = true
	p.Step(a)
	if a.State != StatePopulating || a.Strategy != StrategySlots || a.Attempt != 2 {
		t.Fatalf("expected retry on SLOTS, got %s %s attempt=%d", a.State, a.Strategy, a.Attempt)
	}
}

type recordingRunner struct{ delays []int }

func (r *recordingRunner) RunNextTick(fn func())          { r.delays = append(r.delays, 1) }
func (r *recordingRunner) RunAfterDelay(fn func(), t int) { r.delays = append(r.delays, t) }

// Package chest places the starter chest of an island and keeps retrying
// until its contents read back correctly.
package chest

import (
	"fmt"
	"io"
	"log"
	"sort"

	"skyisland.ai/internal/sim/island/model"
	"skyisland.ai/internal/sim/sched"
)

// Env is the slice of the host world the populator needs.
type Env interface {
	HasWorld(world string) bool
	ChunkLoaded(loc model.Location) bool
	LoadChunk(loc model.Location) error
	PinChunk(loc model.Location) error
	UnpinChunk(loc model.Location)
	BlockAt(loc model.Location) (string, error)
	SetBlock(loc model.Location, material string) error
	Inventory(loc model.Location) (model.Inventory, error)
}

type Config struct {
	PlaceSettleTicks   int
	VerifySettleTicks  int
	ReloadRetryTicks   int
	FallbackRetryTicks int
	VerifyRetryTicks   int
	MaxAttempts        int
	ProgressEvery      int

	Items     []model.ItemStack
	Threshold int
}

func DefaultConfig() Config {
	return Config{
		PlaceSettleTicks:   20,
		VerifySettleTicks:  10,
		ReloadRetryTicks:   40,
		FallbackRetryTicks: 60,
		VerifyRetryTicks:   80,
		MaxAttempts:        50,
		ProgressEvery:      20,
		Items:              model.StarterItems(),
		Threshold:          len(model.StarterItems()),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PlaceSettleTicks <= 0 {
		c.PlaceSettleTicks = d.PlaceSettleTicks
	}
	if c.VerifySettleTicks <= 0 {
		c.VerifySettleTicks = d.VerifySettleTicks
	}
	if c.ReloadRetryTicks <= 0 {
		c.ReloadRetryTicks = d.ReloadRetryTicks
	}
	if c.FallbackRetryTicks <= 0 {
		c.FallbackRetryTicks = d.FallbackRetryTicks
	}
	if c.VerifyRetryTicks <= 0 {
		c.VerifyRetryTicks = d.VerifyRetryTicks
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = d.ProgressEvery
	}
	if len(c.Items) == 0 {
		c.Items = d.Items
	}
	if c.Threshold <= 0 || c.Threshold > len(c.Items) {
		c.Threshold = len(c.Items)
	}
	return c
}

type Populator struct {
	cfg   Config
	env   Env
	sched sched.Runner
	clock func() uint64
	log   *log.Logger
	audit model.Auditor

	// OnFinish, when set, is called once per chain with its terminal attempt.
	OnFinish func(Attempt)

	nextID uint64
	active map[uint64]*Attempt
}

func New(cfg Config, env Env, runner sched.Runner, clock func() uint64, logger *log.Logger, audit model.Auditor) *Populator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if audit == nil {
		audit = model.NopAuditor{}
	}
	if clock == nil {
		clock = func() uint64 { return 0 }
	}
	return &Populator{
		cfg:    cfg.withDefaults(),
		env:    env,
		sched:  runner,
		clock:  clock,
		log:    logger,
		audit:  audit,
		active: map[uint64]*Attempt{},
	}
}

func (p *Populator) Config() Config { return p.cfg }

// Start queues placement of a chest at loc on the next tick and returns the
// chain's attempt record.
func (p *Populator) Start(loc model.Location) *Attempt {
	p.nextID++
	a := &Attempt{ID: p.nextID, Target: loc, State: StatePlacing, StartTick: p.clock()}
	p.active[a.ID] = a
	p.log.Printf("chest %d: queued at %s", a.ID, loc)
	p.sched.RunNextTick(func() { p.Step(a) })
	return a
}

// Active returns copies of the in-flight attempts, ordered by id.
func (p *Populator) Active() []Attempt {
	out := make([]Attempt, 0, len(p.active))
	for _, a := range p.active {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Step runs the transition for a's current state. Terminal attempts are left
// untouched.
func (p *Populator) Step(a *Attempt) {
	if a == nil {
		return
	}
	switch a.State {
	case StatePlacing:
		p.place(a)
	case StateAwaitingSettle, StatePopulating:
		p.transition(a, StatePopulating, "")
		p.populate(a)
	case StateVerifying:
		p.verify(a)
	}
}

func (p *Populator) place(a *Attempt) {
	loc := a.Target
	if !p.env.HasWorld(loc.World) {
		p.log.Printf("chest %d: world %q not found, cannot place chest at %s", a.ID, loc.World, loc)
		a.LastError = model.ErrWorldNotFound.Error()
		p.finish(a, StateAbandoned, "world not found")
		return
	}
	if !p.env.ChunkLoaded(loc) {
		if err := p.env.LoadChunk(loc); err != nil {
			p.log.Printf("chest %d: load chunk: %v", a.ID, err)
		}
	}
	p.pin(a)
	if err := p.env.SetBlock(loc, model.Chest); err != nil {
		// The populate step re-checks the block type and recreates it.
		p.log.Printf("chest %d: place chest: %v", a.ID, err)
		a.LastError = err.Error()
	} else {
		p.log.Printf("chest %d: placed chest block at %s", a.ID, loc)
	}
	p.transition(a, StateAwaitingSettle, "")
	p.sched.RunAfterDelay(func() { p.Step(a) }, p.cfg.PlaceSettleTicks)
}

func (p *Populator) populate(a *Attempt) {
	loc := a.Target
	if a.Attempt > 0 && a.Attempt%p.cfg.ProgressEvery == 0 {
		p.log.Printf("chest %d: still trying to populate chest, attempt %d", a.ID, a.Attempt)
	}

	if !p.env.ChunkLoaded(loc) {
		p.log.Printf("chest %d: chunk unloaded, reloading", a.ID)
		if err := p.env.LoadChunk(loc); err != nil {
			p.log.Printf("chest %d: load chunk: %v", a.ID, err)
		}
		p.pin(a)
		p.retry(a, StrategySlots, p.cfg.ReloadRetryTicks, "chunk unloaded")
		return
	}

	block, err := p.env.BlockAt(loc)
	if err != nil || block != model.Chest {
		if err != nil {
			p.log.Printf("chest %d: read block: %v, recreating chest", a.ID, err)
		} else {
			p.log.Printf("chest %d: block changed to %s, recreating chest", a.ID, block)
		}
		if err := p.env.SetBlock(loc, model.Chest); err != nil {
			p.log.Printf("chest %d: recreate chest: %v", a.ID, err)
		}
		p.retry(a, StrategySlots, p.cfg.ReloadRetryTicks, "block reverted")
		return
	}

	inv, err := p.env.Inventory(loc)
	if err != nil {
		p.log.Printf("chest %d: block state is not a chest (%v), retrying", a.ID, err)
		p.retry(a, StrategySlots, p.cfg.ReloadRetryTicks, "no inventory")
		return
	}

	p.log.Printf("chest %d: attempt %d using %s strategy", a.ID, a.Attempt+1, a.Strategy)
	if err := p.write(inv, a.Strategy); err != nil {
		p.log.Printf("chest %d: %s strategy failed: %v", a.ID, a.Strategy, err)
		a.LastError = err.Error()
		p.retry(a, a.Strategy.other(), p.cfg.FallbackRetryTicks, "write failed")
		return
	}

	p.transition(a, StateVerifying, "")
	p.sched.RunAfterDelay(func() { p.Step(a) }, p.cfg.VerifySettleTicks)
}

// pin takes the chain's single chunk pin. Pins outlive chunk unloads, so a
// reload does not need a second one.
func (p *Populator) pin(a *Attempt) {
	if a.Pinned {
		return
	}
	if err := p.env.PinChunk(a.Target); err != nil {
		p.log.Printf("chest %d: pin chunk: %v", a.ID, err)
		return
	}
	a.Pinned = true
}

// write goes through the live inventory handle only. Re-fetching and
// re-applying block state after this point clears what was just written.
func (p *Populator) write(inv model.Inventory, s Strategy) error {
	items := p.cfg.Items
	switch s {
	case StrategyContents:
		size := inv.Size()
		if size < len(items) {
			return fmt.Errorf("container holds %d slots, need %d", size, len(items))
		}
		contents := make([]model.ItemStack, size)
		copy(contents, items)
		return inv.SetContents(contents)
	default:
		inv.Clear()
		for i, it := range items {
			if err := inv.SetItem(i, it); err != nil {
				return fmt.Errorf("set slot %d: %w", i, err)
			}
		}
		return nil
	}
}

func (p *Populator) verify(a *Attempt) {
	loc := a.Target
	block, err := p.env.BlockAt(loc)
	if err != nil || block != model.Chest {
		p.log.Printf("chest %d: block no longer a chest during verification", a.ID)
		p.retry(a, StrategySlots, p.cfg.FallbackRetryTicks, "block reverted before verify")
		return
	}
	inv, err := p.env.Inventory(loc)
	if err != nil {
		p.log.Printf("chest %d: inventory unavailable during verification: %v", a.ID, err)
		p.retry(a, StrategySlots, p.cfg.FallbackRetryTicks, "no inventory at verify")
		return
	}

	contents := inv.Contents()
	a.LastCount = model.CountNonEmpty(contents)
	if a.LastCount < p.cfg.Threshold {
		p.log.Printf("chest %d: verification failed, only %d items found (attempt %d), retrying", a.ID, a.LastCount, a.Attempt+1)
		p.retry(a, StrategySlots, p.cfg.VerifyRetryTicks, "short count")
		return
	}

	p.log.Printf("chest %d: populated with %d items after %d attempt(s)", a.ID, a.LastCount, a.Attempt+1)
	for i := 0; i < len(contents) && i < 10; i++ {
		if !contents[i].Empty() {
			p.log.Printf("chest %d: slot %d: %s", a.ID, i, contents[i])
		}
	}
	p.finish(a, StateDone, "")
}

// retry bumps the attempt counter and schedules another populate pass with
// strategy s, or abandons the chain once the counter passes MaxAttempts. Only
// a failed write moves off the slot strategy.
func (p *Populator) retry(a *Attempt, s Strategy, delay int, reason string) {
	a.Attempt++
	a.Strategy = s
	if a.Attempt > p.cfg.MaxAttempts {
		p.log.Printf("chest %d: failed to populate chest at %s after %d attempts, giving up", a.ID, a.Target, p.cfg.MaxAttempts)
		p.finish(a, StateAbandoned, reason)
		return
	}
	p.transition(a, StatePopulating, reason)
	p.sched.RunAfterDelay(func() { p.Step(a) }, delay)
}

func (p *Populator) transition(a *Attempt, to State, detail string) {
	if a.State == to && detail == "" {
		return
	}
	a.State = to
	p.audit.Audit(model.AuditEntry{
		Tick:    p.clock(),
		Type:    model.AuditChestState,
		World:   a.Target.World,
		Pos:     a.Target.Pos.ToArray(),
		State:   to.String(),
		Attempt: a.Attempt,
		Detail:  detail,
	})
}

func (p *Populator) finish(a *Attempt, to State, detail string) {
	a.State = to
	delete(p.active, a.ID)
	if a.Pinned {
		p.env.UnpinChunk(a.Target)
		a.Pinned = false
	}
	typ := model.AuditChestDone
	if to == StateAbandoned {
		typ = model.AuditChestAbandoned
	}
	p.audit.Audit(model.AuditEntry{
		Tick:    p.clock(),
		Type:    typ,
		World:   a.Target.World,
		Pos:     a.Target.Pos.ToArray(),
		State:   to.String(),
		Attempt: a.Attempt,
		Items:   a.LastCount,
		Detail:  detail,
	})
	if p.OnFinish != nil {
		p.OnFinish(*a)
	}
}

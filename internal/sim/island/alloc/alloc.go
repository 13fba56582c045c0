// Package alloc hands out island anchors on a randomized grid.
package alloc

import (
	"io"
	"log"
	"math/rand"

	"skyisland.ai/internal/sim/island/model"
)

const (
	DefaultMaxRange    = 100000
	DefaultMinDistance = 200
	DefaultAltitude    = 64
	DefaultMaxAttempts = 100
)

type Config struct {
	MaxRange    int // half-width of the square centered on the origin
	MinDistance int // grid stride
	Altitude    int
	MaxAttempts int
}

// DefaultConfig returns the stock allocator settings. Altitude is taken as
// given by New, so zero is a valid altitude.
func DefaultConfig() Config {
	return Config{
		MaxRange:    DefaultMaxRange,
		MinDistance: DefaultMinDistance,
		Altitude:    DefaultAltitude,
		MaxAttempts: DefaultMaxAttempts,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxRange <= 0 {
		c.MaxRange = DefaultMaxRange
	}
	if c.MinDistance <= 0 {
		c.MinDistance = DefaultMinDistance
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// Allocator tracks every grid slot handed out. It is not safe for concurrent
// use: check-then-insert is not atomic, so all calls must come from the tick
// goroutine.
type Allocator struct {
	cfg      Config
	rng      *rand.Rand
	occupied map[model.GridKey]struct{}
	log      *log.Logger
}

func New(cfg Config, rng *rand.Rand, logger *log.Logger) *Allocator {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Allocator{
		cfg:      cfg.withDefaults(),
		rng:      rng,
		occupied: map[model.GridKey]struct{}{},
		log:      logger,
	}
}

func (a *Allocator) Config() Config { return a.cfg }

// Allocate returns a grid-aligned anchor not yet handed out. After
// MaxAttempts collisions the last candidate is accepted anyway.
func (a *Allocator) Allocate(world string) model.Coordinate {
	var key model.GridKey
	attempts := 0
	for {
		key = model.GridKey{X: a.draw(), Z: a.draw()}
		attempts++
		if !a.Occupied(key.X, key.Z) || attempts >= a.cfg.MaxAttempts {
			break
		}
	}
	if a.Occupied(key.X, key.Z) {
		a.log.Printf("allocation gave up after %d attempts; reusing %s", attempts, key)
	}
	a.occupied[key] = struct{}{}

	c := model.Coordinate{World: world, Pos: model.Vec3i{X: key.X, Y: a.cfg.Altitude, Z: key.Z}}
	a.log.Printf("allocated island at %s after %d attempt(s)", c, attempts)
	return c
}

// draw picks a value in [-MaxRange, MaxRange) and truncates it toward zero
// onto the stride.
func (a *Allocator) draw() int {
	v := a.rng.Intn(a.cfg.MaxRange*2) - a.cfg.MaxRange
	return v / a.cfg.MinDistance * a.cfg.MinDistance
}

// Reserve marks a slot as taken, typically while reloading persisted islands.
func (a *Allocator) Reserve(x, z int) {
	a.occupied[model.GridKey{X: x, Z: z}] = struct{}{}
}

func (a *Allocator) Occupied(x, z int) bool {
	_, ok := a.occupied[model.GridKey{X: x, Z: z}]
	return ok
}

func (a *Allocator) Len() int { return len(a.occupied) }

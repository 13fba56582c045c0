// Package world is the in-process host environment: named void worlds made
// of 16x16 chunk columns, chunk loading with pinning, chests and trees. The
// island code only talks to it through narrow interfaces.
package world

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sort"

	"skyisland.ai/internal/sim/island/model"
)

const (
	ChunkSize   = 16
	SectionSize = ChunkSize * ChunkSize * ChunkSize
	ChestSlots  = 27

	DefaultMinY = -64
	DefaultMaxY = 320
)

var ErrOutOfBounds = errors.New("position outside world height")

type Spec struct {
	Name string
	MinY int
	MaxY int // exclusive
}

type Config struct {
	Worlds []Spec
	// IdleUnloadTicks unloads unpinned chunks nobody touched for this many
	// ticks. Zero keeps chunks loaded forever.
	IdleUnloadTicks int
}

// World holds every dimension. It is not safe for concurrent use; the engine
// goroutine owns it.
type World struct {
	cfg     Config
	palette *palette
	dims    map[string]*dimension
	now     uint64
	log     *log.Logger
}

type dimension struct {
	name   string
	minY   int
	maxY   int
	loaded map[ChunkKey]*Chunk
	stored map[ChunkKey]*storedChunk
	pins   map[ChunkKey]int
}

func New(cfg Config, logger *log.Logger) (*World, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	w := &World{
		cfg:     cfg,
		palette: newPalette(),
		dims:    map[string]*dimension{},
		log:     logger,
	}
	for _, s := range cfg.Worlds {
		if err := w.AddWorld(s); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// AddWorld registers an empty (void) world.
func (w *World) AddWorld(s Spec) error {
	if s.Name == "" {
		return fmt.Errorf("world: empty name")
	}
	if _, ok := w.dims[s.Name]; ok {
		return fmt.Errorf("world %q: already exists", s.Name)
	}
	if s.MinY == 0 && s.MaxY == 0 {
		s.MinY, s.MaxY = DefaultMinY, DefaultMaxY
	}
	if s.MaxY <= s.MinY {
		return fmt.Errorf("world %q: bad height range [%d,%d)", s.Name, s.MinY, s.MaxY)
	}
	w.dims[s.Name] = &dimension{
		name:   s.Name,
		minY:   s.MinY,
		maxY:   s.MaxY,
		loaded: map[ChunkKey]*Chunk{},
		stored: map[ChunkKey]*storedChunk{},
		pins:   map[ChunkKey]int{},
	}
	return nil
}

func (w *World) HasWorld(name string) bool {
	_, ok := w.dims[name]
	return ok
}

func (w *World) Worlds() []string {
	out := make([]string, 0, len(w.dims))
	for n := range w.dims {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// HeightRange returns [minY, maxY) of the named world.
func (w *World) HeightRange(name string) (int, int, bool) {
	d, ok := w.dims[name]
	if !ok {
		return 0, 0, false
	}
	return d.minY, d.maxY, true
}

func (w *World) Now() uint64 { return w.now }

// Tick advances the world clock and unloads idle, unpinned chunks. It
// returns the number of chunks unloaded.
func (w *World) Tick() int {
	w.now++
	if w.cfg.IdleUnloadTicks <= 0 {
		return 0
	}
	unloaded := 0
	for _, d := range w.dims {
		for k, c := range d.loaded {
			if d.pins[k] > 0 {
				continue
			}
			if w.now-c.lastTouch >= uint64(w.cfg.IdleUnloadTicks) {
				d.unload(k)
				unloaded++
			}
		}
	}
	return unloaded
}

// LoadedChunks returns the number of loaded chunks in the named world.
func (w *World) LoadedChunks(name string) int {
	d, ok := w.dims[name]
	if !ok {
		return 0
	}
	return len(d.loaded)
}

func (w *World) dim(name string) (*dimension, error) {
	d, ok := w.dims[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, model.ErrWorldNotFound)
	}
	return d, nil
}

// Package registry maps players to their island and persists the mapping in
// a key-path store under playerIslands.<uuid>.{world,x,y,z}.
package registry

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sort"

	"github.com/google/uuid"

	"skyisland.ai/internal/sim/island/model"
)

const Section = "playerIslands"

var ErrAlreadyAssigned = errors.New("player already has an island")

// Store is the durable key-path store the registry writes through.
type Store interface {
	Get(path string) (any, bool)
	GetString(path string) (string, bool)
	GetInt(path string) (int, bool)
	Set(path string, v any)
	Keys(path string) []string
	Save() error
}

// Occupier is told about every coordinate loaded from storage.
type Occupier interface {
	Reserve(x, z int)
}

// Worlds reports whether a persisted world name still exists.
type Worlds interface {
	HasWorld(name string) bool
}

type Record struct {
	PlayerID uuid.UUID
	Island   model.Coordinate
}

// Registry is the in-memory cache of player islands. Only Put mutates it;
// callers must SaveAll right after a Put.
type Registry struct {
	store   Store
	occ     Occupier
	worlds  Worlds
	log     *log.Logger
	islands map[uuid.UUID]model.Coordinate
}

func New(store Store, occ Occupier, worlds Worlds, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Registry{
		store:   store,
		occ:     occ,
		worlds:  worlds,
		log:     logger,
		islands: map[uuid.UUID]model.Coordinate{},
	}
}

func (r *Registry) Get(id uuid.UUID) (model.Coordinate, bool) {
	c, ok := r.islands[id]
	return c, ok
}

func (r *Registry) Has(id uuid.UUID) bool {
	_, ok := r.islands[id]
	return ok
}

// Put records a new island. Existing records are never overwritten.
func (r *Registry) Put(id uuid.UUID, c model.Coordinate) error {
	if id == uuid.Nil {
		return fmt.Errorf("put island: nil player id")
	}
	if existing, ok := r.islands[id]; ok {
		return fmt.Errorf("put island for %s (has %s): %w", id, existing, ErrAlreadyAssigned)
	}
	r.islands[id] = c
	if r.occ != nil {
		r.occ.Reserve(c.Pos.X, c.Pos.Z)
	}
	return nil
}

func (r *Registry) Len() int { return len(r.islands) }

// All returns every record sorted by player id.
func (r *Registry) All() []Record {
	out := make([]Record, 0, len(r.islands))
	for id, c := range r.islands {
		out = append(out, Record{PlayerID: id, Island: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID.String() < out[j].PlayerID.String() })
	return out
}

// LoadAll rebuilds the cache from the store and reseeds the occupier. Bad
// records are logged and skipped; the count of loaded records is returned.
func (r *Registry) LoadAll() (int, error) {
	loaded := 0
	for _, key := range r.store.Keys(Section) {
		id, c, err := r.decode(key)
		if err != nil {
			r.log.Printf("failed to load island for player %q: %v", key, err)
			continue
		}
		if _, dup := r.islands[id]; dup {
			continue
		}
		r.islands[id] = c
		if r.occ != nil {
			r.occ.Reserve(c.Pos.X, c.Pos.Z)
		}
		loaded++
	}
	r.log.Printf("loaded %d islands", len(r.islands))
	return loaded, nil
}

func (r *Registry) decode(key string) (uuid.UUID, model.Coordinate, error) {
	var c model.Coordinate
	id, err := uuid.Parse(key)
	if err != nil {
		return uuid.Nil, c, fmt.Errorf("bad player id: %w", err)
	}
	base := Section + "." + key + "."
	world, ok := r.store.GetString(base + "world")
	if !ok || world == "" {
		return uuid.Nil, c, errors.New("missing world")
	}
	if r.worlds != nil && !r.worlds.HasWorld(world) {
		return uuid.Nil, c, fmt.Errorf("%q: %w", world, model.ErrWorldNotFound)
	}
	x, okX := r.store.GetInt(base + "x")
	y, okY := r.store.GetInt(base + "y")
	z, okZ := r.store.GetInt(base + "z")
	if !okX || !okY || !okZ {
		return uuid.Nil, c, errors.New("missing or non-numeric coordinate")
	}
	c = model.Coordinate{World: world, Pos: model.Vec3i{X: x, Y: y, Z: z}}
	return id, c, nil
}

// SaveAll rewrites the whole section and saves the store.
func (r *Registry) SaveAll() error {
	r.store.Set(Section, nil)
	for id, c := range r.islands {
		base := Section + "." + id.String() + "."
		r.store.Set(base+"world", c.World)
		r.store.Set(base+"x", c.Pos.X)
		r.store.Set(base+"y", c.Pos.Y)
		r.store.Set(base+"z", c.Pos.Z)
	}
	if err := r.store.Save(); err != nil {
		return fmt.Errorf("save islands: %w", err)
	}
	return nil
}

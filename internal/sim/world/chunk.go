package world

import (
	"fmt"

	"skyisland.ai/internal/sim/encoding"
	"skyisland.ai/internal/sim/island/model"
)

type ChunkKey struct {
	CX int
	CZ int
}

func KeyFor(pos model.Vec3i) ChunkKey {
	return ChunkKey{CX: floorDiv(pos.X, ChunkSize), CZ: floorDiv(pos.Z, ChunkSize)}
}

// Chunk is a 16-wide column. Sections are allocated on first write; a
// missing section is all air.
type Chunk struct {
	Key        ChunkKey
	sections   map[int]*[SectionSize]uint16
	containers map[model.Vec3i]*Container
	lastTouch  uint64
}

func newChunk(k ChunkKey) *Chunk {
	return &Chunk{
		Key:        k,
		sections:   map[int]*[SectionSize]uint16{},
		containers: map[model.Vec3i]*Container{},
	}
}

func sectionIndex(pos model.Vec3i) (sy int, i int) {
	lx := pos.X - floorDiv(pos.X, ChunkSize)*ChunkSize
	lz := pos.Z - floorDiv(pos.Z, ChunkSize)*ChunkSize
	sy = floorDiv(pos.Y, ChunkSize)
	ly := pos.Y - sy*ChunkSize
	// x fastest, then z, then y
	return sy, lx + lz*ChunkSize + ly*ChunkSize*ChunkSize
}

func (c *Chunk) get(pos model.Vec3i) uint16 {
	sy, i := sectionIndex(pos)
	s := c.sections[sy]
	if s == nil {
		return 0
	}
	return s[i]
}

func (c *Chunk) set(pos model.Vec3i, id uint16) {
	sy, i := sectionIndex(pos)
	s := c.sections[sy]
	if s == nil {
		if id == 0 {
			return
		}
		s = &[SectionSize]uint16{}
		c.sections[sy] = s
	}
	s[i] = id
}

// storedChunk is what an unloaded chunk keeps: run-encoded sections and its
// containers, untouched.
type storedChunk struct {
	sections   map[int][]byte
	containers map[model.Vec3i]*Container
}

func (c *Chunk) store() *storedChunk {
	sc := &storedChunk{sections: make(map[int][]byte, len(c.sections)), containers: c.containers}
	for sy, s := range c.sections {
		sc.sections[sy] = encoding.EncodeRuns(s[:])
	}
	return sc
}

func restoreChunk(k ChunkKey, sc *storedChunk) (*Chunk, error) {
	c := newChunk(k)
	for sy, raw := range sc.sections {
		ids, err := encoding.DecodeRuns(raw, SectionSize)
		if err != nil {
			return nil, fmt.Errorf("chunk %d,%d section %d: %w", k.CX, k.CZ, sy, err)
		}
		s := &[SectionSize]uint16{}
		copy(s[:], ids)
		c.sections[sy] = s
	}
	if sc.containers != nil {
		c.containers = sc.containers
	}
	return c, nil
}

func (d *dimension) unload(k ChunkKey) {
	c, ok := d.loaded[k]
	if !ok {
		return
	}
	d.stored[k] = c.store()
	delete(d.loaded, k)
}

func (d *dimension) load(k ChunkKey, now uint64) (*Chunk, error) {
	if c, ok := d.loaded[k]; ok {
		c.lastTouch = now
		return c, nil
	}
	var c *Chunk
	if sc, ok := d.stored[k]; ok {
		var err error
		c, err = restoreChunk(k, sc)
		if err != nil {
			return nil, err
		}
		delete(d.stored, k)
	} else {
		// Void generation: new chunks are empty.
		c = newChunk(k)
	}
	c.lastTouch = now
	d.loaded[k] = c
	return c, nil
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

type palette struct {
	ids   map[string]uint16
	names []string
}

func newPalette() *palette {
	p := &palette{ids: map[string]uint16{}}
	p.id(model.Air)
	return p
}

func (p *palette) id(name string) uint16 {
	if id, ok := p.ids[name]; ok {
		return id
	}
	id := uint16(len(p.names))
	p.ids[name] = id
	p.names = append(p.names, name)
	return id
}

func (p *palette) name(id uint16) string {
	if int(id) >= len(p.names) {
		return model.Air
	}
	return p.names[id]
}

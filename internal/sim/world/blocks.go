package world

import (
	"fmt"

	"skyisland.ai/internal/sim/island/model"
)

func (w *World) ChunkLoaded(loc model.Location) bool {
	d, ok := w.dims[loc.World]
	if !ok {
		return false
	}
	_, ok = d.loaded[KeyFor(loc.Pos)]
	return ok
}

func (w *World) LoadChunk(loc model.Location) error {
	d, err := w.dim(loc.World)
	if err != nil {
		return err
	}
	_, err = d.load(KeyFor(loc.Pos), w.now)
	return err
}

// UnloadChunk forces the chunk holding loc out of memory even when pinned.
// Pins survive and apply again after the next load.
func (w *World) UnloadChunk(loc model.Location) {
	if d, ok := w.dims[loc.World]; ok {
		d.unload(KeyFor(loc.Pos))
	}
}

// PinChunk keeps the chunk loaded until a matching UnpinChunk.
func (w *World) PinChunk(loc model.Location) error {
	d, err := w.dim(loc.World)
	if err != nil {
		return err
	}
	k := KeyFor(loc.Pos)
	if _, err := d.load(k, w.now); err != nil {
		return err
	}
	d.pins[k]++
	return nil
}

func (w *World) UnpinChunk(loc model.Location) {
	d, ok := w.dims[loc.World]
	if !ok {
		return
	}
	k := KeyFor(loc.Pos)
	if d.pins[k] <= 1 {
		delete(d.pins, k)
		return
	}
	d.pins[k]--
}

func (w *World) Pinned(loc model.Location) int {
	d, ok := w.dims[loc.World]
	if !ok {
		return 0
	}
	return d.pins[KeyFor(loc.Pos)]
}

func (w *World) chunkAt(loc model.Location) (*dimension, *Chunk, error) {
	d, err := w.dim(loc.World)
	if err != nil {
		return nil, nil, err
	}
	if loc.Pos.Y < d.minY || loc.Pos.Y >= d.maxY {
		return nil, nil, fmt.Errorf("%s: %w", loc, ErrOutOfBounds)
	}
	c, err := d.load(KeyFor(loc.Pos), w.now)
	if err != nil {
		return nil, nil, err
	}
	return d, c, nil
}

// BlockAt returns the material at loc, loading its chunk if needed.
func (w *World) BlockAt(loc model.Location) (string, error) {
	_, c, err := w.chunkAt(loc)
	if err != nil {
		return "", err
	}
	return w.palette.name(c.get(loc.Pos)), nil
}

// SetBlock writes a material. Placing a chest creates an empty container;
// replacing a chest drops its contents.
func (w *World) SetBlock(loc model.Location, material string) error {
	if material == "" {
		material = model.Air
	}
	_, c, err := w.chunkAt(loc)
	if err != nil {
		return err
	}
	id := w.palette.id(material)
	old := c.get(loc.Pos)
	c.set(loc.Pos, id)
	if material == model.Chest {
		if _, ok := c.containers[loc.Pos]; !ok || old != id {
			c.containers[loc.Pos] = NewContainer(ChestSlots)
		}
	} else {
		delete(c.containers, loc.Pos)
	}
	return nil
}

// Inventory returns the live inventory of the container at loc.
func (w *World) Inventory(loc model.Location) (model.Inventory, error) {
	_, c, err := w.chunkAt(loc)
	if err != nil {
		return nil, err
	}
	inv, ok := c.containers[loc.Pos]
	if !ok {
		return nil, fmt.Errorf("%s: %w", loc, model.ErrNotContainer)
	}
	return inv, nil
}

// Fill sets every block in the inclusive box [a,b].
func (w *World) Fill(worldName string, a, b model.Vec3i, material string) (int, error) {
	lo := model.Vec3i{X: min(a.X, b.X), Y: min(a.Y, b.Y), Z: min(a.Z, b.Z)}
	hi := model.Vec3i{X: max(a.X, b.X), Y: max(a.Y, b.Y), Z: max(a.Z, b.Z)}
	n := 0
	for y := lo.Y; y <= hi.Y; y++ {
		for z := lo.Z; z <= hi.Z; z++ {
			for x := lo.X; x <= hi.X; x++ {
				if err := w.SetBlock(model.Location{World: worldName, Pos: model.Vec3i{X: x, Y: y, Z: z}}, material); err != nil {
					return n, err
				}
				n++
			}
		}
	}
	return n, nil
}

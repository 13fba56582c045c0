package world

import (
	"fmt"
	"sort"

	"skyisland.ai/internal/persistence/snapshot"
	"skyisland.ai/internal/sim/encoding"
	"skyisland.ai/internal/sim/island/model"
)

// ExportSnapshot captures every loaded and stored chunk of every world.
// Pins are runtime state and are not exported.
func (w *World) ExportSnapshot(tick uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header:  snapshot.Header{Version: snapshot.Version, Tick: tick, Worlds: len(w.dims)},
		Palette: append([]string(nil), w.palette.names...),
	}
	for _, name := range w.Worlds() {
		d := w.dims[name]
		wv := snapshot.WorldV1{Name: d.name, MinY: d.minY, MaxY: d.maxY}

		keys := make([]ChunkKey, 0, len(d.loaded)+len(d.stored))
		for k := range d.loaded {
			keys = append(keys, k)
		}
		for k := range d.stored {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].CX != keys[j].CX {
				return keys[i].CX < keys[j].CX
			}
			return keys[i].CZ < keys[j].CZ
		})
		for _, k := range keys {
			sc, ok := d.stored[k]
			if !ok {
				sc = d.loaded[k].store()
			}
			wv.Chunks = append(wv.Chunks, exportChunk(k, sc))
		}
		snap.Worlds = append(snap.Worlds, wv)
	}
	return snap
}

func exportChunk(k ChunkKey, sc *storedChunk) snapshot.ChunkV1 {
	cv := snapshot.ChunkV1{CX: k.CX, CZ: k.CZ}
	ys := make([]int, 0, len(sc.sections))
	for y := range sc.sections {
		ys = append(ys, y)
	}
	sort.Ints(ys)
	for _, y := range ys {
		cv.Sections = append(cv.Sections, snapshot.SectionV1{Y: y, Blocks: sc.sections[y]})
	}
	ps := make([]model.Vec3i, 0, len(sc.containers))
	for p := range sc.containers {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool {
		a, b := ps[i], ps[j]
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	for _, p := range ps {
		c := sc.containers[p]
		ctr := snapshot.ContainerV1{Pos: p.ToArray(), Size: c.Size()}
		for i, s := range c.slots {
			if s.Empty() {
				continue
			}
			ctr.Slots = append(ctr.Slots, snapshot.SlotV1{Slot: i, Item: s.Item, Count: s.Count})
		}
		cv.Containers = append(cv.Containers, ctr)
	}
	return cv
}

// ImportSnapshot restores worlds from snap. Worlds present in the snapshot
// replace same-named worlds; others are added. Imported chunks start
// unloaded.
func (w *World) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	remap := make([]uint16, len(snap.Palette))
	for i, name := range snap.Palette {
		remap[i] = w.palette.id(name)
	}
	for _, wv := range snap.Worlds {
		d := &dimension{
			name:   wv.Name,
			minY:   wv.MinY,
			maxY:   wv.MaxY,
			loaded: map[ChunkKey]*Chunk{},
			stored: map[ChunkKey]*storedChunk{},
			pins:   map[ChunkKey]int{},
		}
		if d.maxY <= d.minY {
			return fmt.Errorf("world %q: bad height range [%d,%d)", wv.Name, wv.MinY, wv.MaxY)
		}
		for _, cv := range wv.Chunks {
			k := ChunkKey{CX: cv.CX, CZ: cv.CZ}
			sc := &storedChunk{sections: map[int][]byte{}, containers: map[model.Vec3i]*Container{}}
			for _, sv := range cv.Sections {
				ids, err := encoding.DecodeRuns(sv.Blocks, SectionSize)
				if err != nil {
					return fmt.Errorf("world %q chunk %d,%d: %w", wv.Name, cv.CX, cv.CZ, err)
				}
				for i, id := range ids {
					if int(id) >= len(remap) {
						return fmt.Errorf("world %q chunk %d,%d: palette id %d out of range", wv.Name, cv.CX, cv.CZ, id)
					}
					ids[i] = remap[id]
				}
				sc.sections[sv.Y] = encoding.EncodeRuns(ids)
			}
			for _, ctr := range cv.Containers {
				c := NewContainer(ctr.Size)
				for _, s := range ctr.Slots {
					if err := c.SetItem(s.Slot, model.ItemStack{Item: s.Item, Count: s.Count}); err != nil {
						return fmt.Errorf("world %q container %v: %w", wv.Name, ctr.Pos, err)
					}
				}
				sc.containers[model.Vec3iFromArray(ctr.Pos)] = c
			}
			d.stored[k] = sc
		}
		w.dims[wv.Name] = d
	}
	w.now = snap.Header.Tick
	w.log.Printf("imported %d worlds at tick %d", len(snap.Worlds), snap.Header.Tick)
	return nil
}

package world

import (
	"skyisland.ai/internal/sim/island/model"
)

const (
	treeTrunk = 5
	leafLow   = 3 // first leaf layer above the base
)

// GenerateTree grows an oak rooted at loc. It refuses (false, nil) when the
// block under loc is not soil or the space the tree needs is not air.
func (w *World) GenerateTree(loc model.Location) (bool, error) {
	below := model.Location{World: loc.World, Pos: loc.Pos.Add(0, -1, 0)}
	soil, err := w.BlockAt(below)
	if err != nil {
		return false, err
	}
	if soil != model.Dirt && soil != model.GrassBlock {
		return false, nil
	}
	shape := oakShape(loc.Pos)
	for _, b := range shape {
		m, err := w.BlockAt(model.Location{World: loc.World, Pos: b.pos})
		if err != nil {
			return false, nil
		}
		if m != model.Air {
			return false, nil
		}
	}
	for _, b := range shape {
		if err := w.SetBlock(model.Location{World: loc.World, Pos: b.pos}, b.material); err != nil {
			return false, err
		}
	}
	// Saplings turn the soil under them to dirt.
	if err := w.SetBlock(below, model.Dirt); err != nil {
		return false, err
	}
	return true, nil
}

type treeBlock struct {
	pos      model.Vec3i
	material string
}

// oakShape is a 5-block trunk with two 5x5 leaf layers (corners cut on the
// upper one) and a plus-shaped crown.
func oakShape(base model.Vec3i) []treeBlock {
	var out []treeBlock
	for y := 0; y < treeTrunk; y++ {
		out = append(out, treeBlock{pos: base.Add(0, y, 0), material: model.OakLog})
	}
	for ly := leafLow; ly <= treeTrunk; ly++ {
		r := 2
		if ly == treeTrunk {
			r = 1
		}
		for dz := -r; dz <= r; dz++ {
			for dx := -r; dx <= r; dx++ {
				if dx == 0 && dz == 0 && ly < treeTrunk {
					continue
				}
				if ly == leafLow+1 && abs(dx) == 2 && abs(dz) == 2 {
					continue
				}
				if ly == treeTrunk && abs(dx) == 1 && abs(dz) == 1 {
					continue
				}
				out = append(out, treeBlock{pos: base.Add(dx, ly, dz), material: model.OakLeaves})
			}
		}
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Package terrain writes the blocks of one island.
package terrain

import (
	"fmt"
	"io"
	"log"

	"skyisland.ai/internal/sim/island/chest"
	"skyisland.ai/internal/sim/island/model"
)

type Blocks interface {
	HasWorld(world string) bool
	SetBlock(loc model.Location, material string) error
	GenerateTree(loc model.Location) (bool, error)
}

type ChestStarter interface {
	Start(loc model.Location) *chest.Attempt
}

type Config struct {
	Size        int
	TopMaterial string
	Fill        string
	TreeOffset  model.Vec3i
	ChestOffset model.Vec3i
}

func DefaultConfig() Config {
	return Config{
		Size:        6,
		TopMaterial: model.GrassBlock,
		Fill:        model.Dirt,
		TreeOffset:  model.Vec3i{X: 4, Y: 6, Z: 4},
		ChestOffset: model.Vec3i{X: 1, Y: 6, Z: 1},
	}
}

type Result struct {
	Blocks int
	Tree   bool
	Chest  *chest.Attempt
}

type Builder struct {
	cfg    Config
	blocks Blocks
	chests ChestStarter
	log    *log.Logger
}

func New(cfg Config, blocks Blocks, chests ChestStarter, logger *log.Logger) *Builder {
	d := DefaultConfig()
	if cfg.Size <= 0 {
		cfg.Size = d.Size
	}
	if cfg.TopMaterial == "" {
		cfg.TopMaterial = d.TopMaterial
	}
	if cfg.Fill == "" {
		cfg.Fill = d.Fill
	}
	if cfg.TreeOffset == (model.Vec3i{}) {
		cfg.TreeOffset = d.TreeOffset
	}
	if cfg.ChestOffset == (model.Vec3i{}) {
		cfg.ChestOffset = d.ChestOffset
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Builder{cfg: cfg, blocks: blocks, chests: chests, log: logger}
}

func (b *Builder) Config() Config { return b.cfg }

// Build fills the island cube, tries to grow a tree and starts the chest
// chain. Nothing is rolled back if a block write fails: the partial count is
// returned with the error.
func (b *Builder) Build(center model.Coordinate) (Result, error) {
	var res Result
	if !b.blocks.HasWorld(center.World) {
		b.log.Printf("world %q not found, cannot generate island at %s", center.World, center)
		return res, fmt.Errorf("build island %s: %w", center, model.ErrWorldNotFound)
	}

	n := b.cfg.Size
	c := center.Pos
	top := c.Y + n - 1
	for x := c.X; x < c.X+n; x++ {
		for z := c.Z; z < c.Z+n; z++ {
			for y := c.Y; y < c.Y+n; y++ {
				m := b.cfg.Fill
				if y == top {
					m = b.cfg.TopMaterial
				}
				loc := model.Location{World: center.World, Pos: model.Vec3i{X: x, Y: y, Z: z}}
				if err := b.blocks.SetBlock(loc, m); err != nil {
					b.log.Printf("island %s: block write failed after %d blocks: %v", center, res.Blocks, err)
					return res, fmt.Errorf("build island %s: %w", center, err)
				}
				res.Blocks++
			}
		}
	}
	b.log.Printf("placed %d blocks for island %s", res.Blocks, center)

	treeLoc := model.Location{World: center.World, Pos: center.Offset(b.cfg.TreeOffset)}
	ok, err := b.blocks.GenerateTree(treeLoc)
	switch {
	case err != nil:
		b.log.Printf("tree generation at %s failed: %v", treeLoc, err)
	case ok:
		b.log.Printf("tree generation at %s successful", treeLoc)
	default:
		b.log.Printf("tree generation at %s refused", treeLoc)
	}
	res.Tree = ok && err == nil

	if b.chests != nil {
		res.Chest = b.chests.Start(model.Location{World: center.World, Pos: center.Offset(b.cfg.ChestOffset)})
	}
	return res, nil
}

package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Material names. The world stores any string; these are the ones the island
// code writes or checks.
const (
	Air         = "AIR"
	Dirt        = "DIRT"
	GrassBlock  = "GRASS_BLOCK"
	Chest       = "CHEST"
	OakLog      = "OAK_LOG"
	OakLeaves   = "OAK_LEAVES"
	LavaBucket  = "LAVA_BUCKET"
	WaterBucket = "WATER_BUCKET"
	Ice         = "ICE"
	Bread       = "BREAD"
	OakSapling  = "OAK_SAPLING"
	BoneMeal    = "BONE_MEAL"
)

var (
	// ErrWorldNotFound is returned when an operation targets a world the host does not know.
	ErrWorldNotFound = errors.New("world not found")
	// ErrNotContainer is returned when a live inventory is requested for a non-container block.
	ErrNotContainer = errors.New("block is not a container")
	// ErrSlotOutOfRange is returned by inventories for slot indexes outside [0, Size).
	ErrSlotOutOfRange = errors.New("slot out of range")
)

type Vec3i struct {
	X int
	Y int
	Z int
}

func (v Vec3i) Add(dx, dy, dz int) Vec3i { return Vec3i{X: v.X + dx, Y: v.Y + dy, Z: v.Z + dz} }
func (v Vec3i) ToArray() [3]int          { return [3]int{v.X, v.Y, v.Z} }
func (v Vec3i) String() string           { return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z) }

func Vec3iFromArray(a [3]int) Vec3i { return Vec3i{X: a[0], Y: a[1], Z: a[2]} }

// GridKey identifies an island slot on the allocation grid.
type GridKey struct {
	X int
	Z int
}

func (k GridKey) String() string { return strconv.Itoa(k.X) + "," + strconv.Itoa(k.Z) }

func ParseGridKey(s string) (GridKey, bool) {
	xs, zs, ok := strings.Cut(s, ",")
	if !ok {
		return GridKey{}, false
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return GridKey{}, false
	}
	z, err := strconv.Atoi(strings.TrimSpace(zs))
	if err != nil {
		return GridKey{}, false
	}
	return GridKey{X: x, Z: z}, true
}

// Coordinate is the anchor of one island: the lowest corner of its terrain cube.
type Coordinate struct {
	World string
	Pos   Vec3i
}

func (c Coordinate) Key() GridKey { return GridKey{X: c.Pos.X, Z: c.Pos.Z} }

// Offset returns the position at the given offset from the island anchor.
func (c Coordinate) Offset(o Vec3i) Vec3i { return c.Pos.Add(o.X, o.Y, o.Z) }

func (c Coordinate) String() string { return c.World + c.Pos.String() }

// Location is a position in a named world.
type Location struct {
	World string
	Pos   Vec3i
}

func (l Location) String() string { return l.World + l.Pos.String() }

// ItemStack is one inventory slot. The zero value is an empty slot.
type ItemStack struct {
	Item  string
	Count int
}

func (s ItemStack) Empty() bool { return s.Item == "" || s.Item == Air || s.Count <= 0 }

func (s ItemStack) String() string { return s.Item + " x" + strconv.Itoa(s.Count) }

// CountNonEmpty returns the number of occupied slots.
func CountNonEmpty(slots []ItemStack) int {
	n := 0
	for _, s := range slots {
		if !s.Empty() {
			n++
		}
	}
	return n
}

// Inventory is a live handle on a container's slots. Writes through the
// handle are visible to later reads of the same container.
type Inventory interface {
	Size() int
	Clear()
	SetItem(slot int, item ItemStack) error
	SetContents(slots []ItemStack) error
	Contents() []ItemStack
}

// StarterItems is the canonical set written into every island chest.
func StarterItems() []ItemStack {
	return []ItemStack{
		{Item: LavaBucket, Count: 1},
		{Item: Ice, Count: 1},
		{Item: Bread, Count: 16},
		{Item: OakSapling, Count: 4},
		{Item: BoneMeal, Count: 8},
		{Item: WaterBucket, Count: 1},
	}
}

package alloc

import (
	"math/rand"
	"testing"
)

func TestAllocate_UniqueAndAligned(t *testing.T) {
	a := New(DefaultConfig(), rand.New(rand.NewSource(42)), nil)
	seen := map[[2]int]bool{}
	for i := 0; i < 2000; i++ {
		c := a.Allocate("world")
		if c.Pos.X%DefaultMinDistance != 0 || c.Pos.Z%DefaultMinDistance != 0 {
			t.Fatalf("coordinate %v not aligned to stride", c.Pos)
		}
		if c.Pos.X < -DefaultMaxRange || c.Pos.X >= DefaultMaxRange || c.Pos.Z < -DefaultMaxRange || c.Pos.Z >= DefaultMaxRange {
			t.Fatalf("coordinate %v out of range", c.Pos)
		}
		if c.Pos.Y != DefaultAltitude {
			t.Fatalf("unexpected altitude %d", c.Pos.Y)
		}
		k := [2]int{c.Pos.X, c.Pos.Z}
		if seen[k] {
			t.Fatalf("duplicate coordinate %v at allocation %d", k, i)
		}
		seen[k] = true
	}
	if a.Len() != 2000 {
		t.Fatalf("expected 2000 occupied slots, got %d", a.Len())
	}
}

func TestAllocate_SmallGridFillsWithoutDuplicates(t *testing.T) {
	// Range 1000 with stride 200 leaves nine common values per axis
	// (-800..800), so 60 allocations stay below the 81-slot capacity.
	a := New(Config{MaxRange: 1000, MinDistance: 200, Altitude: 70}, rand.New(rand.NewSource(7)), nil)
	seen := map[[2]int]bool{}
	for i := 0; i < 60; i++ {
		c := a.Allocate("w")
		if c.Pos.Y != 70 {
			t.Fatalf("expected altitude 70, got %d", c.Pos.Y)
		}
		k := [2]int{c.Pos.X, c.Pos.Z}
		if seen[k] {
			t.Fatalf("duplicate coordinate %v", k)
		}
		seen[k] = true
	}
}

func TestAllocate_SkipsReserved(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	probe := New(DefaultConfig(), rand.New(rand.NewSource(3)), nil)
	first := probe.Allocate("w")

	a := New(DefaultConfig(), rng, nil)
	a.Reserve(first.Pos.X, first.Pos.Z)
	got := a.Allocate("w")
	if got.Pos.X == first.Pos.X && got.Pos.Z == first.Pos.Z {
		t.Fatalf("allocator returned reserved slot %v", got.Pos)
	}
	if !a.Occupied(got.Pos.X, got.Pos.Z) || a.Len() != 2 {
		t.Fatalf("expected reserved + allocated slots, len=%d", a.Len())
	}
}

func TestAllocate_AcceptsLastCandidateWhenFull(t *testing.T) {
	// A stride equal to the range leaves only the slots {-r, 0} per axis.
	a := New(Config{MaxRange: 10, MinDistance: 10, MaxAttempts: 5}, rand.New(rand.NewSource(1)), nil)
	for _, x := range []int{-10, 0} {
		for _, z := range []int{-10, 0} {
			a.Reserve(x, z)
		}
	}
	c := a.Allocate("w")
	if !a.Occupied(c.Pos.X, c.Pos.Z) {
		t.Fatalf("expected accepted slot to be recorded")
	}
	if a.Len() != 4 {
		t.Fatalf("full grid must not grow, got %d", a.Len())
	}
}

func TestAllocate_ZeroAltitudeIsKept(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Altitude = 0
	a := New(cfg, rand.New(rand.NewSource(5)), nil)
	if c := a.Allocate("world"); c.Pos.Y != 0 {
		t.Fatalf("expected altitude 0, got %d", c.Pos.Y)
	}
}

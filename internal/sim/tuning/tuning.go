package tuning

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`

	Worlds               []WorldTuning `yaml:"worlds"`
	DefaultWorld         string        `yaml:"default_world"`
	SpawnX               int           `yaml:"spawn_x"`
	SpawnY               int           `yaml:"spawn_y"`
	SpawnZ               int           `yaml:"spawn_z"`
	ChunkIdleUnloadTicks int           `yaml:"chunk_idle_unload_ticks"`

	Island   IslandTuning `yaml:"island"`
	Chest    ChestTuning  `yaml:"chest"`
	Offsets  OffsetTuning `yaml:"offsets"`
	Starter  []ItemTuning `yaml:"starter_items"`
	Greeting string       `yaml:"greeting"`
}

type WorldTuning struct {
	Name string `yaml:"name"`
	MinY int    `yaml:"min_y"`
	MaxY int    `yaml:"max_y"`
}

type IslandTuning struct {
	MaxRange     int `yaml:"max_range"`
	MinDistance  int `yaml:"min_distance"`
	Altitude     int `yaml:"altitude"`
	AttemptLimit int `yaml:"attempt_limit"`
	Size         int `yaml:"size"`
}

type ChestTuning struct {
	PlaceSettleTicks   int `yaml:"place_settle_ticks"`
	VerifySettleTicks  int `yaml:"verify_settle_ticks"`
	ReloadRetryTicks   int `yaml:"reload_retry_ticks"`
	FallbackRetryTicks int `yaml:"fallback_retry_ticks"`
	VerifyRetryTicks   int `yaml:"verify_retry_ticks"`
	MaxAttempts        int `yaml:"max_attempts"`
	ProgressEvery      int `yaml:"progress_every"`
	// Threshold is the number of non-empty slots that counts as populated.
	// Zero means the whole starter set.
	Threshold int `yaml:"threshold"`
}

// OffsetTuning holds positions relative to the island anchor, as [x,y,z].
type OffsetTuning struct {
	Tree       [3]int `yaml:"tree"`
	Chest      [3]int `yaml:"chest"`
	Spawn      [3]int `yaml:"spawn"`
	FirstSpawn [3]int `yaml:"first_spawn"`
	Bed        [3]int `yaml:"bed"`
}

type ItemTuning struct {
	Item  string `yaml:"item"`
	Count int    `yaml:"count"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:      "1.0",
		TickRateHz:           20,
		SnapshotEveryTicks:   6000,
		Worlds:               []WorldTuning{{Name: "world", MinY: -64, MaxY: 320}},
		DefaultWorld:         "world",
		SpawnX:               0,
		SpawnY:               64,
		SpawnZ:               0,
		ChunkIdleUnloadTicks: 600,
		Island: IslandTuning{
			MaxRange:     100000,
			MinDistance:  200,
			Altitude:     64,
			AttemptLimit: 100,
			Size:         6,
		},
		Chest: ChestTuning{
			PlaceSettleTicks:   20,
			VerifySettleTicks:  10,
			ReloadRetryTicks:   40,
			FallbackRetryTicks: 60,
			VerifyRetryTicks:   80,
			MaxAttempts:        50,
			ProgressEvery:      20,
		},
		Offsets: OffsetTuning{
			Tree:       [3]int{4, 6, 4},
			Chest:      [3]int{1, 6, 1},
			Spawn:      [3]int{1, 7, 1},
			FirstSpawn: [3]int{1, 7, 4},
			Bed:        [3]int{1, 6, 4},
		},
		Starter: []ItemTuning{
			{Item: "LAVA_BUCKET", Count: 1},
			{Item: "ICE", Count: 1},
			{Item: "BREAD", Count: 16},
			{Item: "OAK_SAPLING", Count: 4},
			{Item: "BONE_MEAL", Count: 8},
			{Item: "WATER_BUCKET", Count: 1},
		},
		Greeting: "Welcome to your island!",
	}
}

// Load reads path over Defaults, so a file only needs the keys it changes.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs []error
	if t.TickRateHz <= 0 {
		errs = append(errs, fmt.Errorf("tick_rate_hz must be > 0"))
	}
	if len(t.Worlds) == 0 {
		errs = append(errs, fmt.Errorf("at least one world is required"))
	}
	seen := map[string]bool{}
	for _, w := range t.Worlds {
		if w.Name == "" {
			errs = append(errs, fmt.Errorf("world with empty name"))
			continue
		}
		if seen[w.Name] {
			errs = append(errs, fmt.Errorf("world %q listed twice", w.Name))
		}
		seen[w.Name] = true
		if w.MaxY <= w.MinY {
			errs = append(errs, fmt.Errorf("world %q: max_y must be > min_y", w.Name))
		}
	}
	if t.DefaultWorld != "" && !seen[t.DefaultWorld] {
		errs = append(errs, fmt.Errorf("default_world %q is not listed", t.DefaultWorld))
	}
	if t.Island.MinDistance <= 0 || t.Island.MaxRange < t.Island.MinDistance {
		errs = append(errs, fmt.Errorf("island: need 0 < min_distance <= max_range"))
	}
	if t.Island.AttemptLimit <= 0 {
		errs = append(errs, fmt.Errorf("island.attempt_limit must be > 0"))
	}
	if t.Island.Size <= 0 || t.Island.Size > t.Island.MinDistance {
		errs = append(errs, fmt.Errorf("island.size must be in (0, min_distance]"))
	}
	if t.Chest.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("chest.max_attempts must be > 0"))
	}
	if len(t.Starter) == 0 {
		errs = append(errs, fmt.Errorf("starter_items is empty"))
	}
	for i, it := range t.Starter {
		if it.Item == "" || it.Count <= 0 {
			errs = append(errs, fmt.Errorf("starter_items[%d]: need item and count > 0", i))
		}
	}
	if t.Chest.Threshold < 0 || t.Chest.Threshold > len(t.Starter) {
		errs = append(errs, fmt.Errorf("chest.threshold %d exceeds %d starter items", t.Chest.Threshold, len(t.Starter)))
	}
	return errors.Join(errs...)
}

// WorldByName returns the tuning for name.
func (t Tuning) WorldByName(name string) (WorldTuning, bool) {
	for _, w := range t.Worlds {
		if w.Name == name {
			return w, true
		}
	}
	return WorldTuning{}, false
}

// FallbackSpawn returns spawn_x/y/z with y clamped into the world's
// height range. A y below the floor lands one block above it.
func (t Tuning) FallbackSpawn(world string) [3]int {
	y := t.SpawnY
	if w, ok := t.WorldByName(world); ok {
		if y < w.MinY {
			y = w.MinY + 1
		}
		if y >= w.MaxY {
			y = w.MaxY - 1
		}
	}
	return [3]int{t.SpawnX, y, t.SpawnZ}
}

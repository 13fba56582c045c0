package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"skyisland.ai/internal/persistence/indexdb"
	"skyisland.ai/internal/persistence/snapshot"
	"skyisland.ai/internal/sim/island/model"
	"skyisland.ai/internal/sim/tuning"
)

type runtimeIndex interface {
	model.Auditor
	Close() error
	UpsertTuning(tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	SyncIslands(rows []indexdb.IslandRow)
	Stats() indexdb.QueueStats
}

func openRuntimeIndex(dataDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("SKY_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(IndexPath(dataDir))
	default:
		return nil, fmt.Errorf("unsupported SKY_INDEX_BACKEND: %s", backend)
	}
}

// IndexPath is where the server keeps its sqlite read index.
func IndexPath(dataDir string) string {
	return filepath.Join(dataDir, "index", "islands.sqlite")
}

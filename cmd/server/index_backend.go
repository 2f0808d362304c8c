package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"voxelterrain.ai/internal/persistence/indexdb"
	"voxelterrain.ai/internal/sim/chunkmgr"
	"voxelterrain.ai/internal/sim/tuning"
)

type runtimeIndex interface {
	chunkmgr.EventSink
	Close() error
	UpsertTuning(t tuning.Tuning) error
	Counts(ctx context.Context) (indexdb.EventCounts, error)
	History(ctx context.Context, cx, cz, limit int) ([]chunkmgr.Event, error)
	Stats() indexdb.Stats
}

func openRuntimeIndex(worldDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("VT_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(worldDir, "index", "chunks.sqlite"))
	default:
		return nil, fmt.Errorf("unsupported VT_INDEX_BACKEND: %s", backend)
	}
}

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voxelterrain.ai/internal/persistence/indexdb"
	"voxelterrain.ai/internal/sim/chunkmgr"
	"voxelterrain.ai/internal/sim/registry"
	"voxelterrain.ai/internal/sim/scene"
	"voxelterrain.ai/internal/sim/tuning"
	"voxelterrain.ai/internal/terrain/elevation"
	"voxelterrain.ai/internal/voxel/chunk"
)

func newTestWorld(t *testing.T) *worldState {
	t.Helper()
	tune := tuning.Defaults()
	tune.ChunkSize = 4
	tune.ChunkHeight = 32
	tune.ViewDistance = 1
	tune.Normalize()

	idx, err := indexdb.OpenSQLite(filepath.Join(t.TempDir(), "chunks.sqlite"))
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	g := scene.NewGraph()
	mgr := chunkmgr.New(chunkmgr.Config{
		ViewDistance:  tune.ViewDistance,
		Dims:          chunk.Dims{Size: tune.ChunkSize, Height: tune.ChunkHeight},
		Workers:       2,
		ColumnWorkers: 2,
	}, elevation.New(tune.Seed, tune.ChunkSize), registry.NewMemory(), g, chunkmgr.WithEventSinks(idx))
	t.Cleanup(mgr.Close)

	ws := &worldState{tune: tune, mgr: mgr, idx: idx, triangles: g.TriangleCount}
	ws.seed.Store(tune.Seed)
	return ws
}

func loopbackRequest(method, target string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	r.RemoteAddr = "127.0.0.1:40000"
	return r
}

func TestStatsHandler(t *testing.T) {
	ws := newTestWorld(t)
	ws.mgr.LoadChunksAround(0, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ws.mgr.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	rec := httptest.NewRecorder()
	ws.statsHandler()(rec, loopbackRequest(http.MethodGet, "/admin/v1/stats"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var got statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Manager.Loaded != 9 || got.Manager.Resident != 9 {
		t.Fatalf("manager stats=%+v", got.Manager)
	}
	if got.IndexError != "" || got.Index == nil || got.IndexQueue == nil {
		t.Fatalf("index sections missing: %s", rec.Body.String())
	}
	if got.Triangles == 0 {
		t.Fatalf("expected triangles in scene")
	}

	remote := httptest.NewRequest(http.MethodGet, "/admin/v1/stats", nil)
	rec = httptest.NewRecorder()
	ws.statsHandler()(rec, remote)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-loopback status=%d", rec.Code)
	}
}

func TestReseedHandler(t *testing.T) {
	ws := newTestWorld(t)

	rec := httptest.NewRecorder()
	ws.reseedHandler()(rec, loopbackRequest(http.MethodPost, "/admin/v1/reseed?seed=abc"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad seed status=%d", rec.Code)
	}

	rec = httptest.NewRecorder()
	ws.reseedHandler()(rec, loopbackRequest(http.MethodPost, "/admin/v1/reseed?seed=77"))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"seed":77`) {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if ws.params().Seed != 77 {
		t.Fatalf("bootstrap seed=%d want 77", ws.params().Seed)
	}

	rec = httptest.NewRecorder()
	ws.reseedHandler()(rec, loopbackRequest(http.MethodGet, "/admin/v1/reseed?seed=1"))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status=%d", rec.Code)
	}
}

func TestHistoryHandler(t *testing.T) {
	ws := newTestWorld(t)
	ws.mgr.LoadChunksAround(0, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ws.mgr.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := ws.idx.(*indexdb.SQLiteIndex).Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}

	rec := httptest.NewRecorder()
	ws.historyHandler()(rec, loopbackRequest(http.MethodGet, "/admin/v1/history?cx=0&cz=0"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var got struct {
		Events []chunkmgr.Event `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Events) != 1 || got.Events[0].Kind != chunkmgr.EventLoaded {
		t.Fatalf("events=%+v", got.Events)
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"voxelterrain.ai/internal/observerproto"
	"voxelterrain.ai/internal/persistence/indexdb"
	"voxelterrain.ai/internal/sim/chunkmgr"
	"voxelterrain.ai/internal/sim/tuning"
	"voxelterrain.ai/internal/terrain/generator"
	"voxelterrain.ai/internal/voxel/chunk"
)

// worldState is what the HTTP side knows about the running world. The
// manager itself is owned by its Run goroutine, so everything here goes
// through atomics or channels.
type worldState struct {
	tune tuning.Tuning
	seed atomic.Int64

	mgr       *chunkmgr.Manager
	idx       runtimeIndex
	observers func() int
	triangles func() int
}

func (ws *worldState) params() observerproto.WorldParams {
	return observerproto.WorldParams{
		Seed:         ws.seed.Load(),
		Generator:    ws.tune.Generator,
		ChunkSize:    ws.tune.ChunkSize,
		ChunkHeight:  ws.tune.ChunkHeight,
		ViewDistance: ws.tune.ViewDistance,
	}
}

type statsResponse struct {
	Seed       int64                `json:"seed"`
	Generator  string               `json:"generator"`
	Manager    chunkmgr.Stats       `json:"manager"`
	Observers  int                  `json:"observers"`
	Triangles  int                  `json:"triangles"`
	Index      *indexdb.EventCounts `json:"index,omitempty"`
	IndexQueue *indexdb.Stats       `json:"index_queue,omitempty"`
	IndexError string               `json:"index_error,omitempty"`
}

func (ws *worldState) statsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		resp := statsResponse{
			Seed:      ws.seed.Load(),
			Generator: ws.tune.Generator,
			Manager:   ws.mgr.Stats(),
		}
		if ws.observers != nil {
			resp.Observers = ws.observers()
		}
		if ws.triangles != nil {
			resp.Triangles = ws.triangles()
		}
		if ws.idx != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			counts, err := ws.idx.Counts(ctx)
			if err != nil {
				resp.IndexError = err.Error()
			} else {
				resp.Index = &counts
			}
			q := ws.idx.Stats()
			resp.IndexQueue = &q
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (ws *worldState) historyHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		if ws.idx == nil {
			http.Error(rw, "index disabled", http.StatusNotFound)
			return
		}
		q := r.URL.Query()
		cx, err1 := strconv.Atoi(q.Get("cx"))
		cz, err2 := strconv.Atoi(q.Get("cz"))
		if err1 != nil || err2 != nil {
			http.Error(rw, "cx and cz are required integers", http.StatusBadRequest)
			return
		}
		limit, _ := strconv.Atoi(q.Get("limit"))
		evs, err := ws.idx.History(r.Context(), cx, cz, limit)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"cx": cx, "cz": cz, "events": evs})
	}
}

func (ws *worldState) reseedHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		seed, err := strconv.ParseInt(r.URL.Query().Get("seed"), 10, 64)
		if err != nil {
			http.Error(rw, "seed must be an integer", http.StatusBadRequest)
			return
		}
		p, err := generator.New(ws.tune.Generator, seed, ws.tune.ChunkSize)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		if err := ws.reseed(r.Context(), p); err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		ws.seed.Store(seed)
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "seed": seed})
	}
}

func (ws *worldState) reseed(ctx context.Context, p chunk.ElevationProvider) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	select {
	case ws.mgr.Reseeds() <- p:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("reseed queue busy: %w", ctx.Err())
	}
}

func (ws *worldState) metricsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		st := ws.mgr.Stats()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP voxelterrain_chunks_resident Chunks currently loaded.\n")
		fmt.Fprintf(rw, "# TYPE voxelterrain_chunks_resident gauge\n")
		fmt.Fprintf(rw, "voxelterrain_chunks_resident %d\n", st.Resident)

		fmt.Fprintf(rw, "# HELP voxelterrain_chunks_in_flight Chunk generations in progress.\n")
		fmt.Fprintf(rw, "# TYPE voxelterrain_chunks_in_flight gauge\n")
		fmt.Fprintf(rw, "voxelterrain_chunks_in_flight %d\n", st.InFlight)

		fmt.Fprintf(rw, "# HELP voxelterrain_chunk_events_total Chunk lifecycle transitions.\n")
		fmt.Fprintf(rw, "# TYPE voxelterrain_chunk_events_total counter\n")
		fmt.Fprintf(rw, "voxelterrain_chunk_events_total{kind=%q} %d\n", "started", st.Started)
		fmt.Fprintf(rw, "voxelterrain_chunk_events_total{kind=%q} %d\n", "loaded", st.Loaded)
		fmt.Fprintf(rw, "voxelterrain_chunk_events_total{kind=%q} %d\n", "unloaded", st.Unloaded)
		fmt.Fprintf(rw, "voxelterrain_chunk_events_total{kind=%q} %d\n", "failed", st.Failed)
		fmt.Fprintf(rw, "voxelterrain_chunk_events_total{kind=%q} %d\n", "discarded", st.Discarded)

		if ws.observers != nil {
			fmt.Fprintf(rw, "# HELP voxelterrain_observers Connected observer sessions.\n")
			fmt.Fprintf(rw, "# TYPE voxelterrain_observers gauge\n")
			fmt.Fprintf(rw, "voxelterrain_observers %d\n", ws.observers())
		}
		if ws.triangles != nil {
			fmt.Fprintf(rw, "# HELP voxelterrain_scene_triangles Triangles in the scene.\n")
			fmt.Fprintf(rw, "# TYPE voxelterrain_scene_triangles gauge\n")
			fmt.Fprintf(rw, "voxelterrain_scene_triangles %d\n", ws.triangles())
		}
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

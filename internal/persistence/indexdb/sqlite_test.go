package indexdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"voxelterrain.ai/internal/sim/chunkmgr"
	"voxelterrain.ai/internal/sim/tuning"
)

func TestSQLiteIndex_CountsAndHistory(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "index", "chunks.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	now := time.Now().UTC()
	events := []chunkmgr.Event{
		{Time: now, Kind: chunkmgr.EventLoaded, CX: 1, CZ: 2, Seed: 42, Entity: "e1", Columns: 256, FallbackColumns: 3, Triangles: 100, Digest: "00ff"},
		{Time: now, Kind: chunkmgr.EventLoaded, CX: 0, CZ: 0, Columns: 256, Triangles: 50},
		{Time: now, Kind: chunkmgr.EventFailed, CX: 5, CZ: 5, Error: "boom"},
		{Time: now, Kind: chunkmgr.EventDiscarded, CX: 1, CZ: 2, Epoch: 1},
		{Time: now.Add(time.Second), Kind: chunkmgr.EventUnloaded, CX: 1, CZ: 2, Entity: "e1"},
	}
	for _, ev := range events {
		if err := s.WriteChunkEvent(ev); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}

	c, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	want := EventCounts{Loaded: 2, Unloaded: 1, Failed: 1, Discarded: 1, FallbackColumns: 3, Triangles: 150}
	if c != want {
		t.Fatalf("counts=%+v want %+v", c, want)
	}

	h, err := s.History(ctx, 1, 2, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(h) != 3 {
		t.Fatalf("history len=%d want 3", len(h))
	}
	if h[0].Kind != chunkmgr.EventUnloaded || h[2].Kind != chunkmgr.EventLoaded || h[2].Digest != "00ff" || h[2].Seed != 42 || h[1].Epoch != 1 {
		t.Fatalf("unexpected history: %+v", h)
	}
}

func TestSQLiteIndex_UpsertTuning(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "chunks.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	tu := tuning.Defaults()
	tu.Seed = 99
	if err := s.UpsertTuning(tu); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	v, err := s.Meta(context.Background(), "schema_version")
	if err != nil || v != "1" {
		t.Fatalf("schema_version=%q err=%v", v, err)
	}
	d, err := s.Meta(context.Background(), "tuning_digest")
	if err != nil || len(d) != 64 {
		t.Fatalf("tuning_digest=%q err=%v", d, err)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqEvent}

	_ = s.WriteChunkEvent(chunkmgr.Event{Kind: chunkmgr.EventLoaded})
	_ = s.WriteChunkEvent(chunkmgr.Event{Kind: chunkmgr.EventUnloaded})

	st := s.Stats()
	if st.DroppedTotal != 2 {
		t.Fatalf("DroppedTotal=%d want=2", st.DroppedTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_ReadsDoNotWaitForSync(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "chunks.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	for i := 0; i < 3; i++ {
		if err := s.WriteChunkEvent(chunkmgr.Event{Time: time.Now().UTC(), Kind: chunkmgr.EventLoaded, CX: i, Triangles: 2}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	// The writer commits once its queue drains; readers use their own
	// connections and must never block on it.
	deadline := time.Now().Add(5 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		c, err := s.Counts(ctx)
		cancel()
		if err != nil {
			t.Fatalf("counts: %v", err)
		}
		if c.Loaded == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("events never became visible: %+v", c)
		}
		time.Sleep(20 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	h, err := s.History(ctx, 1, 0, 10)
	if err != nil || len(h) != 1 {
		t.Fatalf("history=%+v err=%v", h, err)
	}
}

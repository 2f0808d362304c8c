package log

import (
	"path/filepath"
	"testing"
	"time"

	"voxelterrain.ai/internal/sim/chunkmgr"
)

func TestEventLoggerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewEventLogger(dir)
	in := []chunkmgr.Event{
		{Time: time.Unix(100, 0).UTC(), Kind: chunkmgr.EventLoaded, CX: 3, CZ: -4, Entity: "abc", Quads: 12, Digest: "0011"},
		{Time: time.Unix(101, 0).UTC(), Kind: chunkmgr.EventUnloaded, CX: 3, CZ: -4, Entity: "abc"},
	}
	for _, ev := range in {
		if err := l.WriteChunkEvent(ev); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	path := l.w.Path()
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := Files(filepath.Join(dir, "events"))
	if err != nil || len(files) != 1 || files[0] != path {
		t.Fatalf("files=%v err=%v want [%s]", files, err, path)
	}
	got, err := ReadEvents(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events", len(got))
	}
	if got[0].Kind != chunkmgr.EventLoaded || got[0].CZ != -4 || got[0].Quads != 12 || !got[0].Time.Equal(in[0].Time) {
		t.Fatalf("event 0 = %+v", got[0])
	}
	if got[1].Kind != chunkmgr.EventUnloaded {
		t.Fatalf("event 1 = %+v", got[1])
	}
}

func TestWriterRotatesHourlyAndAppends(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w := NewJSONLZstdWriter(dir, "events")
	w.now = func() time.Time { return clock }

	if err := w.Write(chunkmgr.Event{Kind: chunkmgr.EventLoaded}); err != nil {
		t.Fatalf("write: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := w.Write(chunkmgr.Event{Kind: chunkmgr.EventFailed}); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Close()

	// A restarted writer appends a second frame to the same hour.
	w2 := NewJSONLZstdWriter(dir, "events")
	w2.now = func() time.Time { return clock }
	w2.Write(chunkmgr.Event{Kind: chunkmgr.EventDiscarded})
	w2.Close()

	files, err := Files(dir)
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "events-2026-03-01-10.jsonl.zst" || filepath.Base(files[1]) != "events-2026-03-01-11.jsonl.zst" {
		t.Fatalf("files=%v", files)
	}
	evs, err := ReadEvents(files[1])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(evs) != 2 || evs[0].Kind != chunkmgr.EventFailed || evs[1].Kind != chunkmgr.EventDiscarded {
		t.Fatalf("events=%+v", evs)
	}
}

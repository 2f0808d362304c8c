package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	evlog "voxelterrain.ai/internal/persistence/log"
	"voxelterrain.ai/internal/sim/chunkmgr"
	"voxelterrain.ai/internal/sim/tuning"
	"voxelterrain.ai/internal/terrain/generator"
	"voxelterrain.ai/internal/voxel/chunk"
)

func main() {
	var (
		eventsDir  = flag.String("events", "", "events dir containing events-*.jsonl.zst")
		tuningPath = flag.String("tuning", "", "tuning file the server ran with (required for -verify)")
		kind       = flag.String("kind", "", "only count events of this kind (LOADED, UNLOADED, FAILED, DISCARDED)")
		verify     = flag.Bool("verify", false, "regenerate every LOADED chunk and compare voxel digests")
		limit      = flag.Int("limit", 0, "stop after this many matching events (0 = all)")
	)
	flag.Parse()

	if *eventsDir == "" {
		fmt.Fprintln(os.Stderr, "missing -events")
		os.Exit(2)
	}
	files, err := evlog.Files(*eventsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no events files found in", *eventsDir)
		os.Exit(1)
	}

	var v *verifier
	if *verify {
		tune, err := loadTuning(*tuningPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "tuning:", err)
			os.Exit(1)
		}
		v = &verifier{tune: tune}
	}

	want := chunkmgr.EventKind(strings.ToUpper(strings.TrimSpace(*kind)))
	sum := newSummary()
	matched := 0
	for _, path := range files {
		err := evlog.ScanEvents(path, func(ev chunkmgr.Event) error {
			if want != "" && ev.Kind != want {
				return nil
			}
			sum.add(ev)
			if v != nil && ev.Kind == chunkmgr.EventLoaded {
				if err := v.check(ev); err != nil {
					return err
				}
			}
			matched++
			if *limit > 0 && matched >= *limit {
				return evlog.ErrStop
			}
			return nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "scan:", err)
			os.Exit(1)
		}
		if *limit > 0 && matched >= *limit {
			break
		}
	}

	sum.print(len(files))
	if v != nil {
		fmt.Printf("verify ok: checked=%d skipped=%d\n", v.checked, v.skipped)
	}
}

func loadTuning(path string) (tuning.Tuning, error) {
	if strings.TrimSpace(path) == "" {
		return tuning.Defaults(), nil
	}
	return tuning.Load(path)
}

type summary struct {
	byKind    map[chunkmgr.EventKind]int
	epochs    map[uint64]bool
	chunks    map[chunk.Key]bool
	triangles int
	fallback  int
	totalMS   float64
}

func newSummary() *summary {
	return &summary{
		byKind: map[chunkmgr.EventKind]int{},
		epochs: map[uint64]bool{},
		chunks: map[chunk.Key]bool{},
	}
}

func (s *summary) add(ev chunkmgr.Event) {
	s.byKind[ev.Kind]++
	s.epochs[ev.Epoch] = true
	if ev.Kind == chunkmgr.EventLoaded {
		s.chunks[chunk.Key{CX: ev.CX, CZ: ev.CZ}] = true
		s.triangles += ev.Triangles
		s.fallback += ev.FallbackColumns
		s.totalMS += ev.DurationMS
	}
}

func (s *summary) print(files int) {
	kinds := make([]string, 0, len(s.byKind))
	for k := range s.byKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%s=%d", k, s.byKind[chunkmgr.EventKind(k)]))
	}
	fmt.Printf("files=%d epochs=%d distinct_chunks=%d %s\n", files, len(s.epochs), len(s.chunks), strings.Join(parts, " "))
	if loaded := s.byKind[chunkmgr.EventLoaded]; loaded > 0 {
		fmt.Printf("triangles=%s fallback_columns=%d avg_build_ms=%.2f\n",
			humanize.Comma(int64(s.triangles)), s.fallback, s.totalMS/float64(loaded))
	}
}

// verifier rebuilds logged chunks from the recorded seed and compares digests.
type verifier struct {
	tune    tuning.Tuning
	checked int
	skipped int
}

func (v *verifier) check(ev chunkmgr.Event) error {
	// Fallback columns depend on which provider queries failed at the time.
	if ev.FallbackColumns > 0 || ev.Digest == "" {
		v.skipped++
		return nil
	}
	p, err := generator.FromTuning(v.tune, ev.Seed)
	if err != nil {
		return err
	}
	dims := chunk.Dims{Size: v.tune.ChunkSize, Height: v.tune.ChunkHeight}
	c := chunk.New(chunk.Key{CX: ev.CX, CZ: ev.CZ}, dims, chunk.WithFallbackSeed(v.tune.EffectiveFallbackSeed()))
	defer c.Dispose()
	if _, err := c.GenerateTerrain(context.Background(), p, nil); err != nil {
		return fmt.Errorf("regenerate (%d,%d): %w", ev.CX, ev.CZ, err)
	}
	got := fmt.Sprintf("%016x", c.Digest())
	if got != ev.Digest {
		return fmt.Errorf("digest mismatch at (%d,%d) epoch=%d: got=%s want=%s", ev.CX, ev.CZ, ev.Epoch, got, ev.Digest)
	}
	v.checked++
	return nil
}

package elevation

import (
	"context"
	"testing"

	"voxelterrain.ai/internal/terrain/noise"
)

func TestElevationDeterministic(t *testing.T) {
	a := New(1337, 16)
	b := New(1337, 16)
	for x := -300.0; x <= 300; x += 37.5 {
		for z := -300.0; z <= 300; z += 41.25 {
			ea := a.Elevation(x, z)
			if ea != a.Elevation(x, z) {
				t.Fatalf("same service returned different heights at %v,%v", x, z)
			}
			if ea != b.Elevation(x, z) {
				t.Fatalf("same seed returned different heights at %v,%v", x, z)
			}
			if ea < 0 {
				t.Fatalf("negative elevation %v at %v,%v", ea, x, z)
			}
		}
	}
}

func TestElevationVariesWithSeed(t *testing.T) {
	a := New(1, 16)
	b := New(2, 16)
	diff := 0
	for x := 0; x < 20; x++ {
		if a.Elevation(float64(x*13), 7) != b.Elevation(float64(x*13), 7) {
			diff++
		}
	}
	if diff == 0 {
		t.Fatalf("different seeds produced identical terrain")
	}
}

func TestRidgedNoiseRange(t *testing.T) {
	s := New(3, 16)
	for i := 0; i < 500; i++ {
		v := s.RidgedNoise2D(float64(i)*0.37, float64(i)*-0.19)
		if v < 0 || v > 1 {
			t.Fatalf("ridged noise out of [0,1]: %v", v)
		}
	}
}

func TestNoCarvingAboveSurfaceCutoff(t *testing.T) {
	s := New(42, 16)
	p := s.CavePolicy()
	for x := -40; x <= 40; x += 3 {
		for z := -40; z <= 40; z += 3 {
			for y := p.SurfaceCutoffY + 1; y < p.SurfaceCutoffY+64; y++ {
				if s.ShouldCarveBlock(x, y, z) {
					t.Fatalf("carved above cutoff at %d,%d,%d", x, y, z)
				}
			}
			for y := p.SurfaceCutoffY - p.ShallowDepth; y <= p.SurfaceCutoffY; y++ {
				if s.ShouldCarveBlock(x, y, z) {
					t.Fatalf("carved inside shallow band at %d,%d,%d", x, y, z)
				}
			}
		}
	}
}

func TestCarveThresholdBrackets(t *testing.T) {
	p := DefaultCavePolicy()
	if _, ok := p.CarveThreshold(p.ShallowDepth); ok {
		t.Fatalf("depth at shallow band edge must not carve")
	}
	cases := []struct {
		depth int
		want  float64
	}{
		{p.ShallowDepth + 1, p.ShallowThreshold},
		{p.MidDepth - 1, p.ShallowThreshold},
		{p.MidDepth, p.MidThreshold},
		{p.DeepDepth - 1, p.MidThreshold},
		{p.DeepDepth, p.DeepThreshold},
		{p.DeepDepth + 200, p.DeepThreshold},
	}
	for _, c := range cases {
		got, ok := p.CarveThreshold(c.depth)
		if !ok || got != c.want {
			t.Fatalf("depth %d: got %v,%v want %v", c.depth, got, ok, c.want)
		}
	}
}

// Each region straddles a known cave in seed 2024, so every bracket must
// carve some blocks and keep others.
func TestCaveBracketsCarveAgainstTheirThreshold(t *testing.T) {
	const seed = 2024
	s := New(seed, 16)
	p := s.CavePolicy()
	field := noise.New(seed)

	cases := []struct {
		name      string
		y         int
		x0, z0    int
		threshold float64
	}{
		{"shallow", 19, 232, 186, p.ShallowThreshold},
		{"mid", 17, 40, 105, p.MidThreshold},
		{"deep", 7, 30, 110, p.DeepThreshold},
	}
	for _, c := range cases {
		if got, ok := p.CarveThreshold(p.SurfaceCutoffY - c.y); !ok || got != c.threshold {
			t.Fatalf("%s: y=%d maps to threshold %v,%v want %v", c.name, c.y, got, ok, c.threshold)
		}
		carved, kept := 0, 0
		for x := c.x0; x < c.x0+20; x++ {
			for z := c.z0; z < c.z0+20; z++ {
				v := 0.0
				for i := range p.Scales {
					sc := p.Scales[i]
					v += p.Weights[i] * field.Noise3D(float64(x)*sc, float64(c.y)*sc*p.VerticalSquash, float64(z)*sc)
				}
				v /= p.Divisor
				want := v < c.threshold
				if got := s.ShouldCarveBlock(x, c.y, z); got != want {
					t.Fatalf("%s: carve(%d,%d,%d)=%v want %v (v=%v)", c.name, x, c.y, z, got, want, v)
				}
				if want {
					carved++
				} else {
					kept++
				}
			}
		}
		if carved == 0 || kept == 0 {
			t.Fatalf("%s: carved=%d kept=%d, want both positive", c.name, carved, kept)
		}
	}
}

func TestShouldBlockExist(t *testing.T) {
	s := New(9, 16)
	ctx := context.Background()
	p := s.CavePolicy()
	for y := 0; y < 64; y++ {
		ok, err := s.ShouldBlockExist(ctx, 2, -3, 5, y, 7, 40)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if y >= 40 && ok {
			t.Fatalf("block above surface at y=%d", y)
		}
		if y < 40 && y >= p.SurfaceCutoffY-p.ShallowDepth && !ok {
			t.Fatalf("block below surface in no-carve band missing at y=%d", y)
		}
	}
}

func TestElevationForChunkMatchesWorld(t *testing.T) {
	s := New(77, 16)
	got, err := s.ElevationForChunk(context.Background(), -2, 3, 5, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := s.Elevation(-2*16+5, 3*16+9); got != want {
		t.Fatalf("chunk addressed elevation %v != world %v", got, want)
	}
}

func TestProviderHonoursCancelledContext(t *testing.T) {
	s := New(1, 16)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.ElevationForChunk(ctx, 0, 0, 0, 0); err == nil {
		t.Fatalf("expected context error")
	}
}

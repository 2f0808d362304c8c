package noise

import (
	"math"
	"testing"
)

func TestHashDeterministic(t *testing.T) {
	a := New(1337)
	b := New(1337)
	for x := -20; x <= 20; x++ {
		for y := -20; y <= 20; y++ {
			if a.Hash(x, y) != b.Hash(x, y) {
				t.Fatalf("hash mismatch at %d,%d", x, y)
			}
			if h := a.Hash(x, y); h < 0 || h >= 1 {
				t.Fatalf("hash out of range at %d,%d: %v", x, y, h)
			}
		}
	}
}

func TestSeedsDiffer(t *testing.T) {
	a := New(1)
	b := New(2)
	same := 0
	for x := 0; x < 64; x++ {
		if a.Hash(x, 0) == b.Hash(x, 0) {
			same++
		}
	}
	if same > 1 {
		t.Fatalf("different seeds produced %d identical hashes", same)
	}
}

func TestNoise2DRangeAndDeterminism(t *testing.T) {
	f := New(99)
	g := New(99)
	var min, max float64 = 1, -1
	for i := 0; i < 4000; i++ {
		x := float64(i%97)*0.173 - 8
		y := float64(i/97)*0.211 - 4
		v := f.Noise2D(x, y)
		if v != g.Noise2D(x, y) {
			t.Fatalf("Noise2D not deterministic at %v,%v", x, y)
		}
		if v < -1 || v > 1 || math.IsNaN(v) {
			t.Fatalf("Noise2D out of range at %v,%v: %v", x, y, v)
		}
		min = math.Min(min, v)
		max = math.Max(max, v)
	}
	if max-min < 0.5 {
		t.Fatalf("Noise2D suspiciously flat: [%v,%v]", min, max)
	}
}

func TestNoise3DRange(t *testing.T) {
	f := New(5)
	for x := 0; x < 12; x++ {
		for y := 0; y < 12; y++ {
			for z := 0; z < 12; z++ {
				v := f.Noise3D(float64(x)*0.3, float64(y)*0.3, float64(z)*0.3)
				if v < -1 || v > 1 {
					t.Fatalf("Noise3D out of range: %v", v)
				}
			}
		}
	}
}

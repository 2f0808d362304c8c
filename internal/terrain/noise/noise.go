// Package noise provides a seeded, hash-based scalar noise field.
//
// Values are a pure function of (seed, coordinates). A Field holds no mutable
// state and may be shared between goroutines.
package noise

import (
	"math"

	"voxelterrain.ai/internal/logic/mathx"
)

const (
	warpStrength = 0.35
	diagWeight   = 0.1
)

type Field struct {
	seed int64
}

func New(seed int64) *Field {
	return &Field{seed: seed}
}

func (f *Field) Seed() int64 { return f.seed }

// Hash returns a value in [0,1) for the lattice point (x, y).
func (f *Field) Hash(x, y int) float64 {
	return mathx.Unit(mathx.Hash2(f.seed, x, y))
}

func (f *Field) corner(x, y int) float64 {
	return f.Hash(x, y)*2 - 1
}

// Noise2D is smoothed value noise in [-1,1].
func (f *Field) Noise2D(x, y float64) float64 {
	// Trigonometric pre-warp breaks up the axis-aligned lattice.
	wx := x + warpStrength*math.Sin(1.7*y+0.31*x)
	wy := y + warpStrength*math.Cos(1.3*x-0.23*y)

	i := mathx.FloorToInt(wx)
	j := mathx.FloorToInt(wy)
	u := mathx.Quintic(wx - float64(i))
	v := mathx.Quintic(wy - float64(j))

	a := f.corner(i, j)
	b := f.corner(i+1, j)
	c := f.corner(i, j+1)
	d := f.corner(i+1, j+1)
	n := mathx.Lerp(mathx.Lerp(a, b, u), mathx.Lerp(c, d, u), v)

	diag := mathx.Lerp(f.corner(i-1, j+2), f.corner(i+2, j-1), (u+v)*0.5)
	return n*(1-diagWeight) + diag*diagWeight
}

// Noise3D approximates volumetric noise by blending three rotated 2D samples
// over skewed coordinates. It is not a 3D lattice; use it for cave carving only.
func (f *Field) Noise3D(x, y, z float64) float64 {
	s := (x + y + z) / 3
	a := f.Noise2D(x+s, y-0.5*z)
	b := f.Noise2D(y+s+17.31, z+0.5*x)
	c := f.Noise2D(z+s-43.7, x-0.5*y+9.1)
	return 0.4*a + 0.35*b + 0.25*c
}

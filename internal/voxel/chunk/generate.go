package chunk

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/alitto/pond/v2"
	"github.com/aquilax/go-perlin"

	"voxelterrain.ai/internal/logic/mathx"
)

// Elevation samples are world units; columns are voxels.
const (
	HeightScale  = 0.6
	HeightOffset = 4.0
)

// DefaultPaletteTop is the row mapped to the top of the colour palette.
// Surfaces from the default elevation service stay below about 55 voxels.
const DefaultPaletteTop = 56

// Report summarises one GenerateTerrain call.
type Report struct {
	Columns         int
	FallbackColumns int
	Solid           int
}

// GenerateTerrain fills the grid column by column. Columns are independent
// and run on pool when it is non-nil. A column whose queries fail falls back
// to local noise, so the call only errors when the chunk is not empty.
func (c *Chunk) GenerateTerrain(ctx context.Context, p ElevationProvider, pool pond.Pool) (Report, error) {
	switch c.state {
	case StateEmpty:
	case StateDisposed:
		return Report{}, ErrDisposed
	default:
		return Report{}, ErrNotEmpty
	}
	c.state = StateGenerating

	var fallbacks atomic.Int64
	column := func(lx, lz int) {
		h, err := c.fillColumn(ctx, p, lx, lz)
		if err != nil {
			h = c.fallbackHeight(lx, lz)
			c.logger.Printf("chunk %d,%d column %d,%d: %v; fallback height %d", c.key.CX, c.key.CZ, lx, lz, err, h)
			c.solidColumn(lx, lz, h)
			fallbacks.Add(1)
		}
		c.height[lx+lz*c.dims.Size] = h
	}

	if pool == nil {
		for lz := 0; lz < c.dims.Size; lz++ {
			for lx := 0; lx < c.dims.Size; lx++ {
				column(lx, lz)
			}
		}
	} else {
		group := pool.NewGroup()
		for lz := 0; lz < c.dims.Size; lz++ {
			for lx := 0; lx < c.dims.Size; lx++ {
				group.Submit(func() { column(lx, lz) })
			}
		}
		if err := group.Wait(); err != nil {
			c.logger.Printf("chunk %d,%d columns: %v", c.key.CX, c.key.CZ, err)
		}
	}

	c.materialise()
	return Report{
		Columns:         c.dims.Size * c.dims.Size,
		FallbackColumns: int(fallbacks.Load()),
		Solid:           c.grid.CountSolid(),
	}, nil
}

func (c *Chunk) maxHeight() int {
	if c.dims.Height < 2 {
		return 1
	}
	return c.dims.Height - 1
}

// surfaceHeight converts an elevation sample into a voxel column height.
func (c *Chunk) surfaceHeight(elev float64) int {
	return mathx.ClampInt(mathx.FloorToInt(elev*HeightScale+HeightOffset), 1, c.maxHeight())
}

// fillColumn writes the column only after every query succeeded, so a
// failure never leaves a partial column behind. Provider panics come back
// as errors.
func (c *Chunk) fillColumn(ctx context.Context, p ElevationProvider, lx, lz int) (h int, err error) {
	defer func() {
		if r := recover(); r != nil {
			h, err = 0, fmt.Errorf("provider panic: %v", r)
		}
	}()
	elev, qerr := p.ElevationForChunk(ctx, c.key.CX, c.key.CZ, lx, lz)
	if qerr != nil {
		return 0, fmt.Errorf("elevation: %w", qerr)
	}
	if math.IsNaN(elev) || math.IsInf(elev, 0) {
		return 0, fmt.Errorf("elevation: non-finite sample %v", elev)
	}
	h = c.surfaceHeight(elev)
	occupied := make([]bool, h)
	for y := 0; y < h; y++ {
		ok, qerr := p.ShouldBlockExist(ctx, c.key.CX, c.key.CZ, lx, y, lz, h)
		if qerr != nil {
			return 0, fmt.Errorf("occupancy y=%d: %w", y, qerr)
		}
		occupied[y] = ok
	}
	for y, ok := range occupied {
		if ok {
			c.grid.Set(lx, y, lz, Stone)
		}
	}
	return h, nil
}

func (c *Chunk) solidColumn(lx, lz, h int) {
	for y := 0; y < h; y++ {
		c.grid.Set(lx, y, lz, Stone)
	}
}

// fallbackHeight is a provider-independent height for one column.
func (c *Chunk) fallbackHeight(lx, lz int) int {
	c.fallbackOnce.Do(func() {
		c.fallback = perlin.NewPerlin(2, 2, 3, c.fallbackSeed)
	})
	wx := float64(c.key.CX*c.dims.Size + lx)
	wz := float64(c.key.CZ*c.dims.Size + lz)
	n := c.fallback.Noise2D(wx/64, wz/64)
	base := float64(c.dims.Height) / 3
	return mathx.ClampInt(mathx.FloorToInt(base+n*base), 1, c.maxHeight())
}

// materialise assigns grass, dirt and stone by depth below each column top.
func (c *Chunk) materialise() {
	g := c.grid
	for lz := 0; lz < g.size; lz++ {
		for lx := 0; lx < g.size; lx++ {
			top := c.height[lx+lz*g.size] - 1
			for y := top; y >= 0; y-- {
				if !g.Solid(lx, y, lz) {
					continue
				}
				switch d := top - y; {
				case d == 0:
					g.Set(lx, y, lz, Grass)
				case d <= DirtDepth:
					g.Set(lx, y, lz, Dirt)
				default:
					g.Set(lx, y, lz, Stone)
				}
			}
		}
	}
}

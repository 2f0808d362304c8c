package chunk

import (
	"context"
	"errors"
	"io"
	"log"
	"math/bits"
	"sync"

	"github.com/aquilax/go-perlin"
	"github.com/cespare/xxhash/v2"
	"github.com/go-gl/mathgl/mgl32"

	"voxelterrain.ai/internal/voxel/mesh"
)

// ElevationProvider answers height and occupancy queries for chunk-local
// coordinates. Implementations must be deterministic and safe for
// concurrent use.
type ElevationProvider interface {
	ElevationForChunk(ctx context.Context, chunkX, chunkZ, localX, localZ int) (float64, error)
	ShouldBlockExist(ctx context.Context, chunkX, chunkZ, localX, localY, localZ, surfaceHeight int) (bool, error)
}

type State uint8

const (
	StateEmpty State = iota
	StateGenerating
	StateReady
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "EMPTY"
	case StateGenerating:
		return "GENERATING"
	case StateReady:
		return "READY"
	case StateDisposed:
		return "DISPOSED"
	}
	return "UNKNOWN"
}

var (
	ErrNotEmpty = errors.New("chunk: terrain already generated")
	ErrDisposed = errors.New("chunk: disposed")
)

// Chunk owns one grid and the mesh built from it. It is handed between
// goroutines (worker, then owner) but never used by two at once.
type Chunk struct {
	key    Key
	dims   Dims
	grid   *Grid
	height []int // per column, x + z*Size

	state State
	mesh  *mesh.Mesh

	paletteTop int

	logger       *log.Logger
	fallbackSeed int64
	fallbackOnce sync.Once
	fallback     *perlin.Perlin
}

type Option func(*Chunk)

func WithLogger(l *log.Logger) Option {
	return func(c *Chunk) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithFallbackSeed seeds the local noise used when the provider fails.
func WithFallbackSeed(seed int64) Option {
	return func(c *Chunk) { c.fallbackSeed = seed }
}

// WithPaletteTop sets the voxel row at which the colour palette tops out.
// Values <= 0 keep the default.
func WithPaletteTop(top int) Option {
	return func(c *Chunk) {
		if top > 0 {
			c.paletteTop = top
		}
	}
}

func New(key Key, dims Dims, opts ...Option) *Chunk {
	if dims.Size <= 0 || dims.Height <= 0 {
		dims = DefaultDims()
	}
	c := &Chunk{
		key:    key,
		dims:   dims,
		grid:   NewGrid(dims),
		height: make([]int, dims.Size*dims.Size),
		logger: log.New(io.Discard, "", 0),
	}
	for _, o := range opts {
		o(c)
	}
	if c.paletteTop == 0 {
		c.paletteTop = min(DefaultPaletteTop, dims.Height)
	}
	return c
}

func (c *Chunk) Key() Key         { return c.key }
func (c *Chunk) Dims() Dims       { return c.dims }
func (c *Chunk) Grid() *Grid      { return c.grid }
func (c *Chunk) State() State     { return c.state }
func (c *Chunk) Mesh() *mesh.Mesh { return c.mesh }
func (c *Chunk) PaletteTop() int  { return c.paletteTop }

// Offset is the world position of the chunk's local origin.
func (c *Chunk) Offset() mgl32.Vec3 {
	return mgl32.Vec3{float32(c.key.CX * c.dims.Size), 0, float32(c.key.CZ * c.dims.Size)}
}

// ColumnHeight is the surface height chosen for a column during generation.
func (c *Chunk) ColumnHeight(lx, lz int) int {
	if lx < 0 || lx >= c.dims.Size || lz < 0 || lz >= c.dims.Size {
		return 0
	}
	return c.height[lx+lz*c.dims.Size]
}

// Digest hashes the grid cells.
func (c *Chunk) Digest() uint64 { return xxhash.Sum64(c.grid.cells) }

// BuildMesh emits one quad per solid voxel face whose neighbour is empty.
// Neighbours outside the grid count as empty, so chunk borders always get
// faces. Any previous mesh is released first.
func (c *Chunk) BuildMesh() *mesh.Mesh {
	if c.state == StateDisposed {
		return nil
	}
	if c.mesh != nil {
		c.mesh.Release()
	}
	g := c.grid
	m := &mesh.Mesh{}
	for z := 0; z < g.size; z++ {
		for y := 0; y < g.height; y++ {
			for x := 0; x < g.size; x++ {
				if !g.Solid(x, y, z) {
					continue
				}
				var mask uint8
				for f := mesh.Face(0); f < mesh.FaceCount; f++ {
					dx, dy, dz := f.Dir()
					if g.Solid(x+dx, y+dy, z+dz) {
						mask |= 1 << f
					}
				}
				if mask == 0x3f {
					continue
				}
				caveWall := bits.OnesCount8(mask) < mesh.CaveWallNeighbours
				origin := mgl32.Vec3{float32(x), float32(y), float32(z)}
				for f := mesh.Face(0); f < mesh.FaceCount; f++ {
					if mask&(1<<f) != 0 {
						continue
					}
					m.AddQuad(origin, f, mesh.VertexColor(y, c.paletteTop, caveWall, f))
				}
			}
		}
	}
	c.mesh = m
	c.state = StateReady
	return m
}

// Dispose releases the mesh. Calling it again is a no-op.
func (c *Chunk) Dispose() {
	if c.state == StateDisposed {
		return
	}
	c.mesh.Release()
	c.mesh = nil
	c.state = StateDisposed
}

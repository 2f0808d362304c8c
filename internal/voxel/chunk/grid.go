package chunk

// BlockID identifies a voxel type. Zero is air; anything else is solid.
type BlockID uint8

const (
	Air BlockID = iota
	Stone
	Dirt
	Grass
)

// DirtDepth is how many voxels under the grass cap are dirt before stone.
const DirtDepth = 3

type Key struct {
	CX int
	CZ int
}

type Dims struct {
	Size   int
	Height int
}

func DefaultDims() Dims { return Dims{Size: 16, Height: 96} }

func (d Dims) Volume() int { return d.Size * d.Height * d.Size }

// Grid is the dense voxel arena of one chunk.
// Cells are laid out x fastest, then y, then z.
type Grid struct {
	size   int
	height int
	cells  []byte
}

func NewGrid(d Dims) *Grid {
	return &Grid{
		size:   d.Size,
		height: d.Height,
		cells:  make([]byte, d.Volume()),
	}
}

func (g *Grid) Size() int   { return g.size }
func (g *Grid) Height() int { return g.height }
func (g *Grid) Len() int    { return len(g.cells) }

func (g *Grid) InBounds(x, y, z int) bool {
	return x >= 0 && x < g.size && y >= 0 && y < g.height && z >= 0 && z < g.size
}

func (g *Grid) index(x, y, z int) int {
	return x + y*g.size + z*g.size*g.height
}

// At reads as Air outside the grid.
func (g *Grid) At(x, y, z int) BlockID {
	if !g.InBounds(x, y, z) {
		return Air
	}
	return BlockID(g.cells[g.index(x, y, z)])
}

func (g *Grid) Solid(x, y, z int) bool { return g.At(x, y, z) != Air }

// Set reports false and does nothing outside the grid.
func (g *Grid) Set(x, y, z int, b BlockID) bool {
	if !g.InBounds(x, y, z) {
		return false
	}
	g.cells[g.index(x, y, z)] = byte(b)
	return true
}

// Bytes exposes the backing cells. Callers must not modify them.
func (g *Grid) Bytes() []byte { return g.cells }

func (g *Grid) CountSolid() int {
	n := 0
	for _, c := range g.cells {
		if c != byte(Air) {
			n++
		}
	}
	return n
}

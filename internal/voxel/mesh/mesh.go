package mesh

import "github.com/go-gl/mathgl/mgl32"

// Face is one of the six axis-aligned cube faces.
type Face uint8

const (
	PosX Face = iota
	NegX
	PosY
	NegY
	PosZ
	NegZ
)

const FaceCount = 6

type faceDef struct {
	dir     [3]int
	normal  mgl32.Vec3
	corners [4]mgl32.Vec3 // counter-clockwise seen from outside
}

var faces = [FaceCount]faceDef{
	PosX: {dir: [3]int{1, 0, 0}, normal: mgl32.Vec3{1, 0, 0}, corners: [4]mgl32.Vec3{{1, 0, 0}, {1, 1, 0}, {1, 1, 1}, {1, 0, 1}}},
	NegX: {dir: [3]int{-1, 0, 0}, normal: mgl32.Vec3{-1, 0, 0}, corners: [4]mgl32.Vec3{{0, 0, 1}, {0, 1, 1}, {0, 1, 0}, {0, 0, 0}}},
	PosY: {dir: [3]int{0, 1, 0}, normal: mgl32.Vec3{0, 1, 0}, corners: [4]mgl32.Vec3{{0, 1, 0}, {0, 1, 1}, {1, 1, 1}, {1, 1, 0}}},
	NegY: {dir: [3]int{0, -1, 0}, normal: mgl32.Vec3{0, -1, 0}, corners: [4]mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}}},
	PosZ: {dir: [3]int{0, 0, 1}, normal: mgl32.Vec3{0, 0, 1}, corners: [4]mgl32.Vec3{{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}}},
	NegZ: {dir: [3]int{0, 0, -1}, normal: mgl32.Vec3{0, 0, -1}, corners: [4]mgl32.Vec3{{1, 0, 0}, {0, 0, 0}, {0, 1, 0}, {1, 1, 0}}},
}

// Dir is the neighbour offset in the face's direction.
func (f Face) Dir() (int, int, int) {
	d := faces[f].dir
	return d[0], d[1], d[2]
}

func (f Face) Normal() mgl32.Vec3 { return faces[f].normal }

func (f Face) String() string {
	switch f {
	case PosX:
		return "+X"
	case NegX:
		return "-X"
	case PosY:
		return "+Y"
	case NegY:
		return "-Y"
	case PosZ:
		return "+Z"
	case NegZ:
		return "-Z"
	}
	return "?"
}

// Mesh is an indexed triangle list in chunk-local space.
type Mesh struct {
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	Colors    []mgl32.Vec3
	Indices   []uint32
}

func (m *Mesh) Vertices() int {
	if m == nil {
		return 0
	}
	return len(m.Positions)
}

func (m *Mesh) Quads() int { return m.Vertices() / 4 }

func (m *Mesh) Triangles() int {
	if m == nil {
		return 0
	}
	return len(m.Indices) / 3
}

func (m *Mesh) Empty() bool { return m.Vertices() == 0 }

// AddQuad appends the face of the unit cube whose minimum corner is origin.
func (m *Mesh) AddQuad(origin mgl32.Vec3, f Face, color mgl32.Vec3) {
	def := faces[f]
	base := uint32(len(m.Positions))
	for _, c := range def.corners {
		m.Positions = append(m.Positions, origin.Add(c))
		m.Normals = append(m.Normals, def.normal)
		m.Colors = append(m.Colors, color)
	}
	m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
}

// Release drops the buffers. Safe on a nil or already released mesh.
func (m *Mesh) Release() {
	if m == nil {
		return
	}
	m.Positions = nil
	m.Normals = nil
	m.Colors = nil
	m.Indices = nil
}

package mesh

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestAddQuadWindingMatchesNormal(t *testing.T) {
	for f := Face(0); f < FaceCount; f++ {
		var m Mesh
		m.AddQuad(mgl32.Vec3{}, f, mgl32.Vec3{1, 1, 1})
		if m.Vertices() != 4 || m.Triangles() != 2 {
			t.Fatalf("%v: got %d verts %d tris", f, m.Vertices(), m.Triangles())
		}
		for tri := 0; tri < 2; tri++ {
			a := m.Positions[m.Indices[tri*3]]
			b := m.Positions[m.Indices[tri*3+1]]
			c := m.Positions[m.Indices[tri*3+2]]
			n := b.Sub(a).Cross(c.Sub(a)).Normalize()
			if !n.ApproxEqual(f.Normal()) {
				t.Fatalf("%v triangle %d winds to %v, want %v", f, tri, n, f.Normal())
			}
		}
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	var nilMesh *Mesh
	nilMesh.Release()

	m := &Mesh{}
	m.AddQuad(mgl32.Vec3{1, 2, 3}, PosY, mgl32.Vec3{})
	m.Release()
	m.Release()
	if !m.Empty() || m.Triangles() != 0 {
		t.Fatalf("released mesh still has data")
	}
}

func TestClassifyBands(t *testing.T) {
	cases := []struct {
		y, h int
		want Band
	}{
		{0, 100, BandLow},
		{29, 100, BandLow},
		{30, 100, BandMid},
		{54, 100, BandMid},
		{55, 100, BandHigh},
		{80, 100, BandPeak},
		{99, 100, BandPeak},
		{130, 100, BandPeak},
		{45, 56, BandPeak},
		{31, 56, BandHigh},
	}
	for _, c := range cases {
		if got, _ := Classify(c.y, c.h); got != c.want {
			t.Fatalf("Classify(%d,%d)=%v want %v", c.y, c.h, got, c.want)
		}
	}
}

func TestVertexColorLighting(t *testing.T) {
	top := VertexColor(40, 100, false, PosY)
	side := VertexColor(40, 100, false, PosX)
	bottom := VertexColor(40, 100, false, NegY)
	if !(sum(top) > sum(side) && sum(side) > sum(bottom)) {
		t.Fatalf("expected top > side > bottom brightness, got %v %v %v", top, side, bottom)
	}
	cave := VertexColor(40, 100, true, PosX)
	if sum(cave) >= sum(side) {
		t.Fatalf("cave wall should be darker: %v vs %v", cave, side)
	}
	for _, c := range []mgl32.Vec3{top, side, bottom, cave, VertexColor(99, 100, false, PosY)} {
		for i := 0; i < 3; i++ {
			if c[i] < 0 || c[i] > 1 {
				t.Fatalf("colour channel out of range: %v", c)
			}
		}
	}
}

func sum(v mgl32.Vec3) float32 { return v[0] + v[1] + v[2] }

func TestBinaryRoundTrip(t *testing.T) {
	var m Mesh
	m.AddQuad(mgl32.Vec3{0, 0, 0}, PosY, VertexColor(3, 16, false, PosY))
	m.AddQuad(mgl32.Vec3{4, 5, 6}, NegZ, VertexColor(3, 16, true, NegZ))
	b, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Mesh
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Vertices() != m.Vertices() || got.Triangles() != m.Triangles() {
		t.Fatalf("counts differ: %d/%d vs %d/%d", got.Vertices(), got.Triangles(), m.Vertices(), m.Triangles())
	}
	for i := range m.Positions {
		if got.Positions[i] != m.Positions[i] || got.Colors[i] != m.Colors[i] {
			t.Fatalf("vertex %d differs", i)
		}
	}
	if err := got.UnmarshalBinary(b[:len(b)-1]); !errors.Is(err, ErrBadPayload) {
		t.Fatalf("expected ErrBadPayload for truncated payload, got %v", err)
	}
}

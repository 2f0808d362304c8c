package mesh

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

var wireMagic = [4]byte{'V', 'X', 'M', '1'}

var ErrBadPayload = errors.New("mesh: bad payload")

type wireHeader struct {
	Magic    [4]byte
	Vertices uint32
	Indices  uint32
}

// MarshalBinary packs the mesh as little-endian float32 attribute arrays
// followed by uint32 indices.
func (m *Mesh) MarshalBinary() ([]byte, error) {
	if len(m.Normals) != len(m.Positions) || len(m.Colors) != len(m.Positions) {
		return nil, fmt.Errorf("%w: attribute length mismatch", ErrBadPayload)
	}
	var buf bytes.Buffer
	buf.Grow(12 + len(m.Positions)*36 + len(m.Indices)*4)
	h := wireHeader{Magic: wireMagic, Vertices: uint32(len(m.Positions)), Indices: uint32(len(m.Indices))}
	for _, v := range []any{h, m.Positions, m.Normals, m.Colors, m.Indices} {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (m *Mesh) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	var h wireHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("%w: header: %v", ErrBadPayload, err)
	}
	if h.Magic != wireMagic {
		return fmt.Errorf("%w: magic %q", ErrBadPayload, h.Magic[:])
	}
	want := int64(h.Vertices)*36 + int64(h.Indices)*4
	if int64(r.Len()) != want {
		return fmt.Errorf("%w: body is %d bytes, header says %d", ErrBadPayload, r.Len(), want)
	}
	out := Mesh{
		Positions: make([]mgl32.Vec3, h.Vertices),
		Normals:   make([]mgl32.Vec3, h.Vertices),
		Colors:    make([]mgl32.Vec3, h.Vertices),
		Indices:   make([]uint32, h.Indices),
	}
	for _, v := range []any{out.Positions, out.Normals, out.Colors, out.Indices} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
	}
	*m = out
	return nil
}

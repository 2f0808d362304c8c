package observerproto

import (
	"encoding/base64"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"voxelterrain.ai/internal/voxel/mesh"
)

// Version is the observer protocol version.
const Version = "0.1"

const (
	TypeSubscribe   = "SUBSCRIBE"
	TypeView        = "VIEW"
	TypeChunkMesh   = "CHUNK_MESH"
	TypeChunkRemove = "CHUNK_REMOVE"
)

// EncodingZstdB64 is base64(zstd(mesh binary)).
const EncodingZstdB64 = "ZSTD_B64"

// Client -> Server. First message on the observer WS connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// MaxChunks bounds the replay of already loaded chunks on join.
	MaxChunks int `json:"max_chunks,omitempty"`
}

// Client -> Server. Moves the shared viewpoint (world units).
type ViewMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	X               float64 `json:"x"`
	Z               float64 `json:"z"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	Seed         int64  `json:"seed"`
	Generator    string `json:"generator"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkHeight  int    `json:"chunk_height"`
	ViewDistance int    `json:"view_distance"`
}

// Server -> Client. One drawable chunk.
type ChunkMeshMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Entity          string     `json:"entity"`
	Offset          [3]float32 `json:"offset"`
	Quads           int        `json:"quads"`
	Triangles       int        `json:"triangles"`
	Encoding        string     `json:"encoding"`
	Data            string     `json:"data"`
}

// Server -> Client.
type ChunkRemoveMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Entity          string `json:"entity"`
}

var (
	zenc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zdec, _ = zstd.NewReader(nil)
)

func EncodeMesh(m *mesh.Mesh) (string, error) {
	raw, err := m.MarshalBinary()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(zenc.EncodeAll(raw, nil)), nil
}

func DecodeMesh(encoding, data string) (*mesh.Mesh, error) {
	if encoding != EncodingZstdB64 {
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
	comp, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	raw, err := zdec.DecodeAll(comp, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	var m mesh.Mesh
	if err := m.UnmarshalBinary(raw); err != nil {
		return nil, err
	}
	return &m, nil
}

package chunkmgr

import (
	"runtime"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"voxelterrain.ai/internal/sim/registry"
	"voxelterrain.ai/internal/voxel/chunk"
	"voxelterrain.ai/internal/voxel/mesh"
)

type Config struct {
	// ViewDistance is the Chebyshev radius, in chunks, kept loaded.
	ViewDistance  int
	Dims          chunk.Dims
	Workers       int
	ColumnWorkers int
	FallbackSeed  int64
	// PaletteTop is passed to chunk.WithPaletteTop; 0 keeps the chunk default.
	PaletteTop    int
}

func DefaultConfig() Config {
	return Config{
		ViewDistance:  6,
		Dims:          chunk.DefaultDims(),
		Workers:       runtime.NumCPU(),
		ColumnWorkers: 8,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.ViewDistance < 0 {
		c.ViewDistance = 0
	}
	if c.Dims.Size <= 0 || c.Dims.Height <= 0 {
		c.Dims = d.Dims
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.ColumnWorkers <= 0 {
		c.ColumnWorkers = d.ColumnWorkers
	}
	return c
}

// Registry hands out opaque entity handles and stores records against them.
type Registry interface {
	CreateEntity() registry.Entity
	Attach(e registry.Entity, record any)
	DestroyEntity(e registry.Entity)
}

// Scene receives drawable meshes. The manager never draws.
type Scene interface {
	AddMesh(e registry.Entity, m *mesh.Mesh, offset mgl32.Vec3)
	RemoveMesh(e registry.Entity)
}

type EventSink interface {
	WriteChunkEvent(ev Event) error
}

// TransformMesh is the drawable record attached to a chunk entity.
type TransformMesh struct {
	Mesh   *mesh.Mesh
	Offset mgl32.Vec3
}

// VoxelData is the voxel record attached to a chunk entity.
type VoxelData struct {
	Grid *chunk.Grid
	CX   int
	CZ   int
}

type EventKind string

const (
	EventLoaded    EventKind = "LOADED"
	EventUnloaded  EventKind = "UNLOADED"
	EventFailed    EventKind = "FAILED"
	EventDiscarded EventKind = "DISCARDED"
)

type Event struct {
	Time   time.Time `json:"ts"`
	Kind   EventKind `json:"kind"`
	CX     int       `json:"cx"`
	CZ     int       `json:"cz"`
	Epoch  uint64    `json:"epoch"`
	Seed   int64     `json:"seed,omitempty"`
	Entity string    `json:"entity,omitempty"`

	Columns         int     `json:"columns,omitempty"`
	FallbackColumns int     `json:"fallback_columns,omitempty"`
	Solid           int     `json:"solid,omitempty"`
	Quads           int     `json:"quads,omitempty"`
	Triangles       int     `json:"triangles,omitempty"`
	Digest          string  `json:"digest,omitempty"`
	DurationMS      float64 `json:"duration_ms,omitempty"`
	Error           string  `json:"error,omitempty"`
}

type Stats struct {
	Started   uint64 `json:"started"`
	Loaded    uint64 `json:"loaded"`
	Unloaded  uint64 `json:"unloaded"`
	Failed    uint64 `json:"failed"`
	Discarded uint64 `json:"discarded"`

	Resident int    `json:"resident"`
	InFlight int    `json:"in_flight"`
	Epoch    uint64 `json:"epoch"`
}

// View is a viewpoint in world units.
type View struct {
	X float64
	Z float64
}

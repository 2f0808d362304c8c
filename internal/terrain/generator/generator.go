// Package generator maps a configured generator name to an elevation provider.
package generator

import (
	"fmt"

	"voxelterrain.ai/internal/sim/tuning"
	"voxelterrain.ai/internal/terrain/elevation"
	"voxelterrain.ai/internal/terrain/simplex"
	"voxelterrain.ai/internal/voxel/chunk"
)

func New(name string, seed int64, chunkSize int) (chunk.ElevationProvider, error) {
	switch name {
	case tuning.GeneratorHash:
		return elevation.New(seed, chunkSize), nil
	case tuning.GeneratorSimplex:
		return simplex.New(seed, chunkSize), nil
	default:
		return nil, fmt.Errorf("unknown generator %q", name)
	}
}

// FromTuning builds the provider for t, overriding the seed when seed != 0.
func FromTuning(t tuning.Tuning, seed int64) (chunk.ElevationProvider, error) {
	if seed == 0 {
		seed = t.Seed
	}
	return New(t.Generator, seed, t.ChunkSize)
}

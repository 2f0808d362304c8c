// Package simplex is an elevation provider backed by OpenSimplex noise.
// It trades the hash field's domain warp and ridges for smoother rolling
// terrain and shares the cave depth policy with the elevation package.
package simplex

import (
	"context"
	"math"

	"github.com/ojrac/opensimplex-go"

	"voxelterrain.ai/internal/terrain/elevation"
)

const (
	baseHeight  = 36.0
	amplitude   = 44.0
	frequency   = 0.004
	octaves     = 5
	persistence = 0.5
	lacunarity  = 2.0
)

type Provider struct {
	seed      int64
	heights   opensimplex.Noise
	caves     opensimplex.Noise
	chunkSize int
	policy    elevation.CavePolicy
}

func New(seed int64, chunkSize int) *Provider {
	if chunkSize <= 0 {
		chunkSize = 16
	}
	return &Provider{
		seed:      seed,
		heights:   opensimplex.New(seed),
		caves:     opensimplex.New(seed ^ 0x5ca1ab1e),
		chunkSize: chunkSize,
		policy:    elevation.DefaultCavePolicy(),
	}
}

func (p *Provider) Seed() int64 { return p.seed }

func (p *Provider) Elevation(worldX, worldZ float64) float64 {
	freq := frequency
	amp := 1.0
	var sum, norm float64
	for i := 0; i < octaves; i++ {
		sum += p.heights.Eval2(worldX*freq, worldZ*freq) * amp
		norm += amp
		amp *= persistence
		freq *= lacunarity
	}
	return math.Max(0, baseHeight+amplitude*sum/norm)
}

func (p *Provider) carve(worldX, worldY, worldZ int) bool {
	if worldY > p.policy.SurfaceCutoffY {
		return false
	}
	threshold, ok := p.policy.CarveThreshold(p.policy.SurfaceCutoffY - worldY)
	if !ok {
		return false
	}
	return p.policy.Density(p.caves.Eval3, worldX, worldY, worldZ) < threshold
}

func (p *Provider) ElevationForChunk(ctx context.Context, chunkX, chunkZ, localX, localZ int) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return p.Elevation(float64(chunkX*p.chunkSize+localX), float64(chunkZ*p.chunkSize+localZ)), nil
}

func (p *Provider) ShouldBlockExist(ctx context.Context, chunkX, chunkZ, localX, localY, localZ, surfaceHeight int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if localY >= surfaceHeight {
		return false, nil
	}
	return !p.carve(chunkX*p.chunkSize+localX, localY, chunkZ*p.chunkSize+localZ), nil
}

package elevation

import (
	"context"
	"math"

	"voxelterrain.ai/internal/terrain/noise"
)

const (
	BaseElevation = 40.0

	WarpFrequency = 0.004
	WarpAmplitude = 40.0

	// HillsRidgeBlend is the share of ridged noise mixed into the hills band.
	HillsRidgeBlend = 0.45
)

// Band is one fBm layer of the height function.
type Band struct {
	Frequency   float64
	Octaves     int
	Lacunarity  float64
	Persistence float64
	Amplitude   float64
	// Offset decorrelates bands that would otherwise sample the same field.
	Offset float64
}

var (
	Continental = Band{Frequency: 0.0018, Octaves: 4, Lacunarity: 2.0, Persistence: 0.5, Amplitude: 46, Offset: 0}
	Hills       = Band{Frequency: 0.0065, Octaves: 4, Lacunarity: 2.1, Persistence: 0.45, Amplitude: 22, Offset: 1013.7}
	Detail      = Band{Frequency: 0.028, Octaves: 3, Lacunarity: 2.2, Persistence: 0.5, Amplitude: 6, Offset: -2711.3}
	Grit        = Band{Frequency: 0.11, Octaves: 2, Lacunarity: 2.5, Persistence: 0.4, Amplitude: 1.5, Offset: 5309.1}
)

// Service turns world coordinates into surface heights and cave decisions.
// It is immutable after New and safe for concurrent use.
type Service struct {
	field     *noise.Field
	chunkSize int
	caves     CavePolicy
}

func New(seed int64, chunkSize int) *Service {
	return NewWithPolicy(seed, chunkSize, DefaultCavePolicy())
}

func NewWithPolicy(seed int64, chunkSize int, caves CavePolicy) *Service {
	if chunkSize <= 0 {
		chunkSize = 16
	}
	return &Service{
		field:     noise.New(seed),
		chunkSize: chunkSize,
		caves:     caves,
	}
}

func (s *Service) Seed() int64            { return s.field.Seed() }
func (s *Service) CavePolicy() CavePolicy { return s.caves }

func (s *Service) DomainWarp(x, y float64) (float64, float64) {
	fx := x * WarpFrequency
	fy := y * WarpFrequency
	dx := s.field.Noise2D(fx+11.3, fy+47.9) * WarpAmplitude
	dy := s.field.Noise2D(fx-83.1, fy+5.7) * WarpAmplitude
	return x + dx, y + dy
}

func (s *Service) RidgedNoise2D(x, y float64) float64 {
	r := 1 - math.Abs(s.field.Noise2D(x, y))
	return r * r
}

// fbm sums the band's octaves and normalises to [-1,1].
func (s *Service) fbm(x, y float64, b Band, sample func(x, y float64) float64) float64 {
	freq := b.Frequency
	amp := 1.0
	var sum, norm float64
	for i := 0; i < b.Octaves; i++ {
		sum += sample((x+b.Offset)*freq, (y-b.Offset)*freq) * amp
		norm += amp
		amp *= b.Persistence
		freq *= b.Lacunarity
	}
	if norm == 0 {
		return 0
	}
	return sum / norm
}

// Elevation returns the surface height in world units at (worldX, worldZ).
func (s *Service) Elevation(worldX, worldZ float64) float64 {
	wx, wz := s.DomainWarp(worldX, worldZ)
	continental := s.fbm(wx, wz, Continental, s.field.Noise2D)

	hills := s.fbm(worldX, worldZ, Hills, s.field.Noise2D)
	ridged := s.fbm(worldX, worldZ, Hills, s.RidgedNoise2D)*2 - 1
	hills = hills*(1-HillsRidgeBlend) + ridged*HillsRidgeBlend

	detail := s.fbm(worldX, worldZ, Detail, s.field.Noise2D)
	grit := s.fbm(worldX, worldZ, Grit, s.field.Noise2D)

	h := BaseElevation +
		continental*Continental.Amplitude +
		hills*Hills.Amplitude +
		detail*Detail.Amplitude +
		grit*Grit.Amplitude
	return math.Max(0, h)
}

func (s *Service) worldXZ(chunkX, chunkZ, localX, localZ int) (int, int) {
	return chunkX*s.chunkSize + localX, chunkZ*s.chunkSize + localZ
}

// ElevationForChunk is Elevation addressed by chunk and local column.
func (s *Service) ElevationForChunk(ctx context.Context, chunkX, chunkZ, localX, localZ int) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	wx, wz := s.worldXZ(chunkX, chunkZ, localX, localZ)
	return s.Elevation(float64(wx), float64(wz)), nil
}

// BlockExists reports whether the voxel at local (x,y,z) of the chunk is solid
// given the column's surface height in blocks.
func (s *Service) BlockExists(chunkX, chunkZ, localX, localY, localZ, surfaceHeight int) bool {
	if localY >= surfaceHeight {
		return false
	}
	wx, wz := s.worldXZ(chunkX, chunkZ, localX, localZ)
	return !s.ShouldCarveBlock(wx, localY, wz)
}

func (s *Service) ShouldBlockExist(ctx context.Context, chunkX, chunkZ, localX, localY, localZ, surfaceHeight int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.BlockExists(chunkX, chunkZ, localX, localY, localZ, surfaceHeight), nil
}

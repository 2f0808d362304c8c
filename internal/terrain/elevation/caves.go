package elevation

// CavePolicy decides where caves may be carved. Depth is measured downward
// from SurfaceCutoffY in blocks.
type CavePolicy struct {
	SurfaceCutoffY int

	// Nothing is carved at depth <= ShallowDepth. This band keeps caves from
	// breaking the surface and leaving floating islands.
	ShallowDepth int
	MidDepth     int
	DeepDepth    int

	ShallowThreshold float64
	MidThreshold     float64
	DeepThreshold    float64

	Scales         [3]float64
	Weights        [3]float64
	Divisor        float64
	VerticalSquash float64
}

func DefaultCavePolicy() CavePolicy {
	return CavePolicy{
		SurfaceCutoffY:   30,
		ShallowDepth:     4,
		MidDepth:         12,
		DeepDepth:        20,
		ShallowThreshold: -0.42,
		MidThreshold:     -0.30,
		DeepThreshold:    -0.18,
		Scales:           [3]float64{0.045, 0.09, 0.18},
		Weights:          [3]float64{1, 0.5, 0.25},
		Divisor:          1.75,
		VerticalSquash:   1.6,
	}
}

// CarveThreshold returns the threshold for the depth bracket, or false when
// the depth lies above the carving zone.
func (p CavePolicy) CarveThreshold(depth int) (float64, bool) {
	switch {
	case depth <= p.ShallowDepth:
		return 0, false
	case depth < p.MidDepth:
		return p.ShallowThreshold, true
	case depth < p.DeepDepth:
		return p.MidThreshold, true
	default:
		return p.DeepThreshold, true
	}
}

// Density combines the three noise scales with the policy weights.
func (p CavePolicy) Density(sample func(x, y, z float64) float64, worldX, worldY, worldZ int) float64 {
	x, y, z := float64(worldX), float64(worldY), float64(worldZ)
	var v float64
	for i, sc := range p.Scales {
		v += p.Weights[i] * sample(x*sc, y*sc*p.VerticalSquash, z*sc)
	}
	if p.Divisor == 0 {
		return v
	}
	return v / p.Divisor
}

// ShouldCarveBlock reports whether the voxel at world (x,y,z) is hollowed out by a cave.
func (s *Service) ShouldCarveBlock(worldX, worldY, worldZ int) bool {
	p := s.caves
	if worldY > p.SurfaceCutoffY {
		return false
	}
	threshold, ok := p.CarveThreshold(p.SurfaceCutoffY - worldY)
	if !ok {
		return false
	}
	return p.Density(s.field.Noise3D, worldX, worldY, worldZ) < threshold
}

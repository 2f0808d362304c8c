package mesh

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Band is a height range of the terrain palette.
type Band uint8

const (
	BandLow Band = iota
	BandMid
	BandHigh
	BandPeak
)

type bandDef struct {
	upper     float64 // exclusive upper bound of y/height
	hue       float64 // degrees
	sat       float64
	lightBase float64
	lightSpan float64
}

var bands = [...]bandDef{
	BandLow:  {upper: 0.30, hue: 165, sat: 0.45, lightBase: 0.28, lightSpan: 0.14}, // water-green
	BandMid:  {upper: 0.55, hue: 110, sat: 0.50, lightBase: 0.22, lightSpan: 0.16}, // forest-green
	BandHigh: {upper: 0.80, hue: 30, sat: 0.06, lightBase: 0.38, lightSpan: 0.18},  // stone-gray
	BandPeak: {upper: 1.00, hue: 205, sat: 0.10, lightBase: 0.82, lightSpan: 0.12}, // snow-white
}

const (
	caveSatScale   = 0.45
	caveLightScale = 0.6

	topLight    = 1.15
	bottomLight = 0.55
	sideLight   = 0.8
)

// CaveWallNeighbours is the occupied-neighbour count below which a voxel is
// tinted as cave wall.
const CaveWallNeighbours = 4

// Classify returns the palette band for voxel row y, measured against the
// palette top, and the voxel's position within that band in [0,1]. Rows at
// or above top are peak.
func Classify(y, top int) (Band, float64) {
	if top <= 0 {
		return BandLow, 0
	}
	t := float64(y) / float64(top)
	lower := 0.0
	for i, b := range bands {
		if t < b.upper || i == len(bands)-1 {
			p := (t - lower) / (b.upper - lower)
			return Band(i), math.Max(0, math.Min(1, p))
		}
		lower = b.upper
	}
	return BandPeak, 1
}

func FaceLight(f Face) float32 {
	switch f {
	case PosY:
		return topLight
	case NegY:
		return bottomLight
	default:
		return sideLight
	}
}

// VertexColor is the colour shared by the four vertices of one emitted face.
func VertexColor(y, top int, caveWall bool, f Face) mgl32.Vec3 {
	band, p := Classify(y, top)
	def := bands[band]
	sat := def.sat
	light := def.lightBase + def.lightSpan*p
	if caveWall {
		sat *= caveSatScale
		light *= caveLightScale
	}
	rgb := hslToRGB(def.hue, sat, light)
	k := FaceLight(f)
	return mgl32.Vec3{
		clamp01(rgb[0] * k),
		clamp01(rgb[1] * k),
		clamp01(rgb[2] * k),
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func hslToRGB(h, s, l float64) mgl32.Vec3 {
	h = math.Mod(h, 360) / 360
	if s == 0 {
		return mgl32.Vec3{float32(l), float32(l), float32(l)}
	}
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	return mgl32.Vec3{
		float32(hueToRGB(p, q, h+1.0/3)),
		float32(hueToRGB(p, q, h)),
		float32(hueToRGB(p, q, h-1.0/3)),
	}
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3:
		return p + (q-p)*(2.0/3-t)*6
	}
	return p
}

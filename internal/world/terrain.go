// Fertility fields: layered simplex noise sampled per hex so that rich and
// barren land clusters into regions instead of varying hex by hex.
package world

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// Noise shape for the fertility layers.
const (
	fertilityOctaves     = 3
	fertilityFrequency   = 0.18
	fertilityPersistence = 0.5
)

// Fertility samples two independent noise layers, soil and ore.
type Fertility struct {
	soil opensimplex.Noise
	ore  opensimplex.Noise
}

// NewFertility builds the layers from seed. The same seed always yields the
// same field.
func NewFertility(seed int64) *Fertility {
	return &Fertility{
		soil: opensimplex.NewNormalized(seed),
		ore:  opensimplex.NewNormalized(seed + 1),
	}
}

// At returns the soil and ore richness of c, each in [0, 1].
func (f *Fertility) At(c HexCoord) (soil, ore float64) {
	x, y := c.planar()
	return octaveNoise(f.soil, x, y), octaveNoise(f.ore, x, y)
}

// planar maps axial coordinates onto the plane (pointy-top layout, unit size).
func (h HexCoord) planar() (float64, float64) {
	return math.Sqrt(3) * (float64(h.Q) + float64(h.R)/2), 1.5 * float64(h.R)
}

// octaveNoise layers several frequencies of a normalized noise source.
func octaveNoise(noise opensimplex.Noise, x, y float64) float64 {
	total, amplitude, maxVal := 0.0, 1.0, 0.0
	frequency := fertilityFrequency
	for i := 0; i < fertilityOctaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= fertilityPersistence
		frequency *= 2
	}
	return min(max(total/maxVal, 0), 1)
}

package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFertilityIsBoundedAndDeterministic(t *testing.T) {
	a, b := NewFertility(99), NewFertility(99)
	varied := false
	first, _ := a.At(HexCoord{})
	for _, c := range Spiral(5) {
		soil, ore := a.At(c)
		assert.GreaterOrEqual(t, soil, 0.0)
		assert.LessOrEqual(t, soil, 1.0)
		assert.GreaterOrEqual(t, ore, 0.0)
		assert.LessOrEqual(t, ore, 1.0)

		soil2, ore2 := b.At(c)
		assert.Equal(t, soil, soil2)
		assert.Equal(t, ore, ore2)
		if soil != first {
			varied = true
		}
	}
	assert.True(t, varied, "field should vary across the grid")
}

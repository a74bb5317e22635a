// Package world provides the hex grid and the shared data model of a shard:
// territories, factions, sieges, diplomatic relations and the State aggregate.
// Uses axial coordinates (q, r) for the hex grid.
package world

import (
	"fmt"
	"strconv"
	"strings"
)

// HexCoord represents a position on the hex grid using axial coordinates.
// The third cube coordinate s is derived: s = -q - r.
type HexCoord struct {
	Q int `json:"q"`
	R int `json:"r"`
}

// S returns the implicit third cube coordinate.
func (h HexCoord) S() int {
	return -h.Q - h.R
}

// ID returns the territory id for this coordinate ("q,r").
func (h HexCoord) ID() string {
	return strconv.Itoa(h.Q) + "," + strconv.Itoa(h.R)
}

// ParseHexID parses a territory id produced by HexCoord.ID.
func ParseHexID(id string) (HexCoord, error) {
	q, r, ok := strings.Cut(id, ",")
	if !ok {
		return HexCoord{}, fmt.Errorf("hex id %q: missing separator", id)
	}
	qi, err := strconv.Atoi(q)
	if err != nil {
		return HexCoord{}, fmt.Errorf("hex id %q: %w", id, err)
	}
	ri, err := strconv.Atoi(r)
	if err != nil {
		return HexCoord{}, fmt.Errorf("hex id %q: %w", id, err)
	}
	return HexCoord{Q: qi, R: ri}, nil
}

// HexNeighborDirections defines the six neighbor offsets in axial coordinates.
var HexNeighborDirections = [6]HexCoord{
	{Q: 1, R: 0},
	{Q: 1, R: -1},
	{Q: 0, R: -1},
	{Q: -1, R: 0},
	{Q: -1, R: 1},
	{Q: 0, R: 1},
}

// Neighbors returns the six adjacent hex coordinates.
func (h HexCoord) Neighbors() [6]HexCoord {
	var result [6]HexCoord
	for i, dir := range HexNeighborDirections {
		result[i] = HexCoord{Q: h.Q + dir.Q, R: h.R + dir.R}
	}
	return result
}

// Adjacent reports whether two coordinates share an edge.
func Adjacent(a, b HexCoord) bool {
	return Distance(a, b) == 1
}

// Distance returns the hex distance between two coordinates.
func Distance(a, b HexCoord) int {
	dq := abs(a.Q - b.Q)
	dr := abs(a.R - b.R)
	ds := abs(a.S() - b.S())
	// Max of the three absolute differences in cube coordinates.
	return max(dq, dr, ds)
}

// Spiral returns every coordinate within radius of the origin, ordered by ring
// and then by direction so the result is stable across runs.
func Spiral(radius int) []HexCoord {
	out := []HexCoord{{}}
	for k := 1; k <= radius; k++ {
		// Start at the ring corner in direction 4 and walk each side.
		c := HexCoord{Q: HexNeighborDirections[4].Q * k, R: HexNeighborDirections[4].R * k}
		for side := 0; side < 6; side++ {
			for step := 0; step < k; step++ {
				out = append(out, c)
				d := HexNeighborDirections[side]
				c = HexCoord{Q: c.Q + d.Q, R: c.R + d.R}
			}
		}
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

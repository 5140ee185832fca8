package geomutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func square() Ring {
	return Ring{
		{X: 0, Y: 0},
		{X: 10, Y: 0},
		{X: 10, Y: 10},
		{X: 0, Y: 10},
		{X: 0, Y: 0},
	}
}

func TestRingBBox(t *testing.T) {
	b := RingBBox(square())
	assert.Equal(t, BBox{0, 0, 10, 10}, b)
	assert.Equal(t, 10.0, b.Width())
	assert.Equal(t, 10.0, b.Height())
}

func TestPointsBBox(t *testing.T) {
	b := PointsBBox([]Point{{X: -1, Y: 2}, {X: 5, Y: -3}})
	assert.Equal(t, BBox{-1, -3, 5, 2}, b)
}

func TestSignedRingArea(t *testing.T) {
	assert.Equal(t, 100.0, SignedRingArea(square()))

	reversed := Ring{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}}
	assert.Equal(t, -100.0, SignedRingArea(reversed))

	assert.Equal(t, 0.0, SignedRingArea(Ring{{X: 0, Y: 0}, {X: 1, Y: 1}}))
}

func TestRingClosed(t *testing.T) {
	assert.True(t, RingClosed(square()))
	assert.False(t, RingClosed(Ring{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}}))
	assert.False(t, RingClosed(Ring{{X: 0, Y: 0}}))
}

func TestCentroid(t *testing.T) {
	c := Centroid(square())
	assert.Equal(t, Point{X: 5, Y: 5}, c)

	assert.Equal(t, Point{}, Centroid(nil))
}

func TestQuadrantOf(t *testing.T) {
	center := Point{X: 0, Y: 0}
	tests := []struct {
		name string
		p    Point
		want Direction
	}{
		{"due north", Point{X: 0, Y: 10}, North},
		{"due east", Point{X: 10, Y: 0}, East},
		{"due south", Point{X: 0, Y: -10}, South},
		{"due west", Point{X: -10, Y: 0}, West},
		{"northeast leans east", Point{X: 10, Y: 1}, East},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QuadrantOf(center, tt.p))
		})
	}
}

func TestEuclideanDistance(t *testing.T) {
	d := EuclideanDistance(Point{X: 0, Y: 0}, Point{X: 3, Y: 4})
	assert.True(t, math.Abs(d-5.0) < 1e-9)
}

func TestDirectionString(t *testing.T) {
	assert.Equal(t, "north", North.String())
	assert.Equal(t, "east", East.String())
	assert.Equal(t, "south", South.String())
	assert.Equal(t, "west", West.String())
	assert.Equal(t, "unknown", Direction(99).String())
}

func TestDirectionsOrder(t *testing.T) {
	assert.Equal(t, [4]Direction{North, East, South, West}, Directions)
}

// Package geomutil holds the small geometry primitives the analysis core
// needs in-process (centroid, bounding box, compass direction, ring area)
// without reaching for a full geometry library. The pack's only complete
// geometry-bearing repo, the teacher, pushes all real geometry work down
// into PostGIS (ST_Area, ST_Intersection, ST_Transform) and keeps Go-side
// geometry to plain float64 slices — this package follows that division:
// ring/point arithmetic lives here, projection and intersection stay in SQL.
package geomutil

import "math"

// Point is a planar coordinate. For WGS84-tagged values X is longitude and Y
// is latitude; for projected values X is easting and Y is northing.
type Point struct {
	X, Y float64
}

// Ring is a closed sequence of points; Ring[0] should equal Ring[len-1].
type Ring []Point

// Polygon is one exterior ring plus zero or more hole rings, per spec §3.
type Polygon struct {
	Exterior Ring
	Holes    []Ring
}

// BBox is an axis-aligned bounding box [xmin, ymin, xmax, ymax].
type BBox [4]float64

func (b BBox) Width() float64  { return b[2] - b[0] }
func (b BBox) Height() float64 { return b[3] - b[1] }

// RingBBox computes the bounding box of a ring. Panics on an empty ring —
// callers must have already validated non-emptiness (spec §3 invariant).
func RingBBox(r Ring) BBox {
	if len(r) == 0 {
		panic("geomutil: RingBBox on empty ring")
	}
	b := BBox{r[0].X, r[0].Y, r[0].X, r[0].Y}
	for _, p := range r[1:] {
		b[0] = math.Min(b[0], p.X)
		b[1] = math.Min(b[1], p.Y)
		b[2] = math.Max(b[2], p.X)
		b[3] = math.Max(b[3], p.Y)
	}
	return b
}

// PointsBBox computes the bounding box of a flat point set.
func PointsBBox(pts []Point) BBox {
	if len(pts) == 0 {
		panic("geomutil: PointsBBox on empty point set")
	}
	b := BBox{pts[0].X, pts[0].Y, pts[0].X, pts[0].Y}
	for _, p := range pts[1:] {
		b[0] = math.Min(b[0], p.X)
		b[1] = math.Min(b[1], p.Y)
		b[2] = math.Max(b[2], p.X)
		b[3] = math.Max(b[3], p.Y)
	}
	return b
}

// SignedRingArea returns the shoelace-formula signed area of a ring in the
// ring's own coordinate units. Positive for CCW, negative for CW.
func SignedRingArea(r Ring) float64 {
	n := len(r)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += r[i].X*r[j].Y - r[j].X*r[i].Y
	}
	return sum / 2
}

// RingClosed reports whether a ring's first and last points coincide
// exactly, the "exterior ring is closed" invariant from spec §3.
func RingClosed(r Ring) bool {
	if len(r) < 2 {
		return false
	}
	return r[0] == r[len(r)-1]
}

// Centroid returns the arithmetic mean of a polygon's exterior ring
// vertices. This is a vertex centroid, not an area centroid — sufficient
// for C8's "direction of feature relative to polygon centroid" use, which
// only needs a stable reference point inside or near the polygon.
func Centroid(r Ring) Point {
	pts := r
	if RingClosed(r) && len(r) > 1 {
		pts = r[:len(r)-1]
	}
	if len(pts) == 0 {
		return Point{}
	}
	var sx, sy float64
	for _, p := range pts {
		sx += p.X
		sy += p.Y
	}
	n := float64(len(pts))
	return Point{sx / n, sy / n}
}

// Direction is one of the four compass quadrants used by C8.
type Direction int

const (
	North Direction = iota
	East
	South
	West
)

func (d Direction) String() string {
	switch d {
	case North:
		return "north"
	case East:
		return "east"
	case South:
		return "south"
	case West:
		return "west"
	default:
		return "unknown"
	}
}

// Directions lists the four quadrants in the fixed N,E,S,W processing order
// required by spec §5 ("directions in C8 processed N, E, S, W").
var Directions = [4]Direction{North, East, South, West}

// QuadrantOf classifies the bearing from center to p into one of the four
// compass quadrants defined in spec §4.C8: N=315-45, E=45-135, S=135-225,
// W=225-315, measured clockwise from north.
func QuadrantOf(center, p Point) Direction {
	dx := p.X - center.X
	dy := p.Y - center.Y
	// atan2 gives bearing counter-clockwise from +X (east); convert to a
	// clockwise-from-north bearing in [0, 360).
	bearing := math.Atan2(dx, dy) * 180 / math.Pi
	if bearing < 0 {
		bearing += 360
	}
	switch {
	case bearing >= 315 || bearing < 45:
		return North
	case bearing >= 45 && bearing < 135:
		return East
	case bearing >= 135 && bearing < 225:
		return South
	default:
		return West
	}
}

// EuclideanDistance returns the planar distance between two points. Callers
// must have already projected to a metric CRS — geomutil never operates on
// raw geographic degrees (spec §9, "distance-in-metres discipline").
func EuclideanDistance(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

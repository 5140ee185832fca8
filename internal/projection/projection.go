// Package projection implements the forward WGS84-geographic → UTM
// transverse Mercator projection for zones 44N and 45N, the two metric
// CRSs the core ever projects into (spec §4.C1, §4.C6, §4.C8).
//
// Database-side queries lean on PostGIS's ST_Transform for this (see
// internal/proximity, which issues ST_Transform(geom, <srid>) exactly as
// the teacher's internal/geo.AnalyzePolygon does for EPSG:2154). This
// package exists for the Go-side callers that need a projected coordinate
// without a database round trip — internal/inventory, which projects tree
// positions before handing them to the grid selector (internal/grid), and
// unit tests that must run without a live database connection. Both
// paths must agree to within the tolerances PostGIS itself uses for a
// conformal transverse Mercator, which is what this formula (Snyder's
// standard series, the same one GDAL/PROJ use for UTM) provides.
package projection

import "math"

// WGS84 ellipsoid constants.
const (
	wgs84A = 6378137.0
	wgs84F = 1 / 298.257223563
)

// Zone describes a UTM zone's central meridian and EPSG code.
type Zone struct {
	EPSG            int
	CentralMeridian float64 // degrees
}

var (
	Zone44N = Zone{EPSG: 32644, CentralMeridian: 81.0}
	Zone45N = Zone{EPSG: 32645, CentralMeridian: 87.0}
)

const (
	utmScaleFactor = 0.9996
	falseEasting   = 500000.0
)

// ToUTM projects a WGS84 geographic point (lon, lat in degrees) into the
// given UTM zone, returning (easting, northing) in metres.
func ToUTM(lonDeg, latDeg float64, zone Zone) (easting, northing float64) {
	a := wgs84A
	f := wgs84F
	e2 := f * (2 - f)
	ep2 := e2 / (1 - e2)

	lat := latDeg * math.Pi / 180
	lon := lonDeg * math.Pi / 180
	lon0 := zone.CentralMeridian * math.Pi / 180

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	tanLat := math.Tan(lat)

	N := a / math.Sqrt(1-e2*sinLat*sinLat)
	T := tanLat * tanLat
	C := ep2 * cosLat * cosLat
	A := cosLat * (lon - lon0)

	M := a * ((1-e2/4-3*e2*e2/64-5*e2*e2*e2/256)*lat -
		(3*e2/8+3*e2*e2/32+45*e2*e2*e2/1024)*math.Sin(2*lat) +
		(15*e2*e2/256+45*e2*e2*e2/1024)*math.Sin(4*lat) -
		(35*e2*e2*e2/3072)*math.Sin(6*lat))

	easting = utmScaleFactor*N*(A+(1-T+C)*A*A*A/6+
		(5-18*T+T*T+72*C-58*ep2)*A*A*A*A*A/120) + falseEasting

	northing = utmScaleFactor * (M + N*tanLat*(A*A/2+
		(5-T+9*C+4*C*C)*A*A*A*A/24+
		(61-58*T+T*T+600*C-330*ep2)*A*A*A*A*A*A/720))

	return easting, northing
}

// ZoneFor picks UTM 44N for longitudes west of 87°E, else 45N, matching the
// spec's "UTM 44N / UTM 45N: metric projections covering western (long
// <87°) and eastern (long >=87°) Nepal respectively" (Glossary).
func ZoneFor(lonDeg float64) Zone {
	if lonDeg < 87.0 {
		return Zone44N
	}
	return Zone45N
}

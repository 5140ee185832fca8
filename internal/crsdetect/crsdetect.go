// Package crsdetect implements C1, the CRS Detector: given coordinate
// samples it classifies them as WGS84-geographic, UTM 44N, UTM 45N,
// axis-swapped WGS84-geographic, or unknown, per spec §4.C1. Axis-swapped
// UTM samples are not detected as swapped.
//
// Grounded on the teacher's internal/geo.AnalyzePolygon, which hard-codes
// EPSG:2154 (the one CRS the teacher's domain cares about) as a query
// parameter; here the set of admissible CRSs is Nepal's three instead of
// France's one, so detection — not a constant — is the first-class
// operation.
package crsdetect

import "forest-analysis-core/internal/coreerr"

// CRS is one of the three admissible reference systems, plus the two
// failure/special markers from spec §4.C1's output set.
type CRS string

const (
	WGS84Geographic CRS = "WGS84-geographic"
	UTM44N          CRS = "UTM-44N"
	UTM45N          CRS = "UTM-45N"
	Unknown         CRS = "unknown"
	Swapped         CRS = "swapped"
)

// Confidence is the tag attached to a detection result.
type Confidence string

const (
	High   Confidence = "high"
	Medium Confidence = "medium"
	Low    Confidence = "low"
)

// Nepal's WGS84-geographic bounds (spec Glossary: "Nepal bounds").
const (
	LonMin = 80.0
	LonMax = 88.3
	LatMin = 26.3
	LatMax = 30.5
)

// UTM bounding ranges for the projected sample check (spec §4.C1.b).
const (
	utmEastingMin  = 200_000.0
	utmEastingMax  = 900_000.0
	utmNorthingMin = 2_800_000.0
	utmNorthingMax = 3_500_000.0
	utm44_45Split  = 500_000.0
)

// Result is the outcome of a detection run.
type Result struct {
	CRS        CRS
	Confidence Confidence
	// Swapped is true when the X/Y samples fit the geographic ranges only
	// after exchanging them (spec §4.C1.c).
	Swapped bool
}

// Detect classifies a set of X/Y coordinate samples. X and Y must be the
// same length and non-empty. Samples may come from a tabular column pair
// or from a polygon's vertices (spec §4.C1 input).
func Detect(xs, ys []float64) (Result, error) {
	if len(xs) == 0 || len(ys) == 0 || len(xs) != len(ys) {
		return Result{}, coreerr.New(coreerr.KindInvalidInput, "crsdetect: x/y sample arrays must be equal-length and non-empty")
	}

	allXIn := func(lo, hi float64) bool {
		for _, x := range xs {
			if x < lo || x > hi {
				return false
			}
		}
		return true
	}
	allYIn := func(lo, hi float64) bool {
		for _, y := range ys {
			if y < lo || y > hi {
				return false
			}
		}
		return true
	}

	// (a) Geographic — preferred tie-break when ranges overlap (spec: "cannot
	// happen for Nepal", but the rule is stated first regardless).
	if allXIn(LonMin, LonMax) && allYIn(LatMin, LatMax) {
		return Result{CRS: WGS84Geographic, Confidence: High}, nil
	}

	// (c) Swapped — X looks like latitude, Y looks like longitude.
	if allXIn(LatMin, LatMax) && allYIn(LonMin, LonMax) {
		return Result{CRS: Swapped, Confidence: Medium, Swapped: true}, nil
	}

	// (b) Projected UTM.
	if allXIn(utmEastingMin, utmEastingMax) && allYIn(utmNorthingMin, utmNorthingMax) {
		mean := 0.0
		for _, x := range xs {
			mean += x
		}
		mean /= float64(len(xs))
		if mean < utm44_45Split {
			return Result{CRS: UTM44N, Confidence: High}, nil
		}
		return Result{CRS: UTM45N, Confidence: High}, nil
	}

	return Result{CRS: Unknown, Confidence: Low}, nil
}

// Swap exchanges the X and Y values of a coordinate sample pair, used to
// apply the auto-correction from a Swapped detection (spec §4.C1.c) and to
// satisfy the "swap(swap(I)) == I" testable property (spec §8).
func Swap(xs, ys []float64) (swappedXs, swappedYs []float64) {
	out1 := make([]float64, len(ys))
	out2 := make([]float64, len(xs))
	copy(out1, ys)
	copy(out2, xs)
	return out1, out2
}

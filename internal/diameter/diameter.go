// Package diameter implements C3, the Diameter-type Detector: decide
// whether a numeric column holds diameter or girth measurements, and
// produce the converter to normalise to diameter (spec §4.C3).
package diameter

import (
	"math"
	"sort"
	"strings"
)

// Type is the detected measurement kind.
type Type string

const (
	Diameter Type = "diameter"
	Girth    Type = "girth"
)

// Confidence mirrors the three-level tag used across the validator.
type Confidence string

const (
	High   Confidence = "high"
	Medium Confidence = "medium"
	Low    Confidence = "low"
)

// Result is the detector's output.
type Result struct {
	Type                 Type
	Confidence           Confidence
	RequiresConfirmation bool
}

// Converter maps a raw sample value to diameter centimetres.
func (r Result) Converter(raw float64) float64 {
	if r.Type == Girth {
		return raw / math.Pi
	}
	return raw
}

var girthNameHints = []string{"girth", "gbh", "circumference"}
var diameterNameHints = []string{"diameter", "dbh", "dia"}

// Detect classifies a numeric column, optionally aided by its header name.
// samples should be the raw (pre-conversion) column values.
func Detect(samples []float64, columnName string) Result {
	name := strings.ToLower(columnName)
	for _, hint := range girthNameHints {
		if strings.Contains(name, hint) {
			return Result{Type: Girth, Confidence: High}
		}
	}
	for _, hint := range diameterNameHints {
		if strings.Contains(name, hint) {
			return Result{Type: Diameter, Confidence: High}
		}
	}

	if len(samples) == 0 {
		return Result{Type: Diameter, Confidence: Low, RequiresConfirmation: true}
	}

	mean := 0.0
	for _, s := range samples {
		mean += s
	}
	mean /= float64(len(samples))

	switch {
	case mean > 100:
		return Result{Type: Girth, Confidence: High}
	case mean < 50:
		return Result{Type: Diameter, Confidence: High}
	default:
		p75 := percentile(samples, 0.75)
		if p75 > 80 {
			return Result{Type: Girth, Confidence: Medium}
		}
		return Result{Type: Diameter, Confidence: Medium}
	}
}

// percentile computes the p-th percentile (0-1) via linear interpolation
// over a sorted copy of samples.
func percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

package raster

import (
	"math"
	"sort"
)

// CategoricalResult is the output shape for categorical layers (spec
// §4.C7 "Categorical layers").
type CategoricalResult struct {
	TotalCells     int64
	PerClass       map[int]int64
	PerClassPct    map[int]float64
	DominantClass  int
	HasDominant    bool
}

// ContinuousResult is the output shape for continuous layers (spec §4.C7
// "Continuous layers").
type ContinuousResult struct {
	Count int64
	Min   float64
	Max   float64
	Mean  float64
}

// AggregateCategorical computes percentages and dominance from raw
// per-class pixel counts, applying the layer's exclusion rules (spec
// §4.C7 "Domain rules").
//
// Percentages are computed over the classes NOT excluded from percent,
// then renormalised to sum to 100 +/- 0.01 (spec: "Area-weighted
// percentages use pixel-count divided by total, then renormalised so
// entries sum to 100 +/- 0.01").
func AggregateCategorical(cfg LayerConfig, rawCounts map[int]int64) CategoricalResult {
	res := CategoricalResult{PerClass: map[int]int64{}, PerClassPct: map[int]float64{}}

	var percentTotal int64
	for code, n := range rawCounts {
		res.TotalCells += n
		if cfg.ExcludeFromPercent[code] {
			continue
		}
		res.PerClass[code] = n
		percentTotal += n
	}

	if percentTotal > 0 {
		var sumPct float64
		codes := make([]int, 0, len(res.PerClass))
		for code := range res.PerClass {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		for _, code := range codes {
			pct := float64(res.PerClass[code]) / float64(percentTotal) * 100
			res.PerClassPct[code] = pct
			sumPct += pct
		}
		// Renormalise so percentages sum to exactly 100, within the
		// required +/- 0.01 tolerance, correcting float rounding drift on
		// an arbitrary (but deterministic) class: the largest one.
		if len(codes) > 0 && math.Abs(sumPct-100) > 1e-9 {
			drift := 100 - sumPct
			largest := codes[0]
			for _, c := range codes[1:] {
				if res.PerClass[c] > res.PerClass[largest] {
					largest = c
				}
			}
			res.PerClassPct[largest] += drift
		}
	}

	// Dominant: largest count among classes eligible for dominance.
	best := int64(-1)
	for code, n := range res.PerClass {
		if cfg.ExcludeFromDominance[code] {
			continue
		}
		if n > best {
			best = n
			res.DominantClass = code
			res.HasDominant = true
		}
	}
	return res
}

// AggregateContinuous computes count/min/max/mean over raw sample values,
// dropping invalid sentinels first (spec §4.C7 "invalid sentinel values
// (NaN, +-Inf, layer-specific nodata) are dropped before aggregation").
// scaleFactor is applied before aggregation (spec: "Scale factors are
// applied where the source layer documents them").
func AggregateContinuous(cfg LayerConfig, rawValues []float64) ContinuousResult {
	scale := cfg.ScaleFactor
	if scale == 0 {
		scale = 1
	}

	isNoData := func(v float64) bool {
		for _, nd := range cfg.NoDataValues {
			if v == nd {
				return true
			}
		}
		return false
	}

	var res ContinuousResult
	first := true
	var sum float64
	for _, raw := range rawValues {
		if math.IsNaN(raw) || math.IsInf(raw, 0) || isNoData(raw) {
			continue
		}
		v := raw * scale
		if first {
			res.Min, res.Max = v, v
			first = false
		} else {
			if v < res.Min {
				res.Min = v
			}
			if v > res.Max {
				res.Max = v
			}
		}
		sum += v
		res.Count++
	}
	if res.Count > 0 {
		res.Mean = sum / float64(res.Count)
	}
	return res
}

// SoilTextureClass is the derived texture classification from spec §4.C7
// "Multi-band layers": "a derived texture class from {Clay, Sand, Silt,
// Loam} by a fixed rule on the clay/sand/silt band means".
type SoilTextureClass string

const (
	TextureClay SoilTextureClass = "Clay"
	TextureSand SoilTextureClass = "Sand"
	TextureSilt SoilTextureClass = "Silt"
	TextureLoam SoilTextureClass = "Loam"
)

// ClassifyTexture applies the standard dominant-fraction rule over
// clay/sand/silt percentage means: a fraction that is at least 45% and no
// smaller than the other two wins (equal leaders resolve to clay, then
// sand, then silt), and if no fraction reaches 45% the class is "Loam" — a simplified,
// deterministic stand-in for the full USDA texture triangle appropriate
// to a community-forest screening tool rather than an agronomic one.
func ClassifyTexture(clayMean, sandMean, siltMean float64) SoilTextureClass {
	const dominanceThreshold = 45.0
	switch {
	case clayMean >= dominanceThreshold && clayMean >= sandMean && clayMean >= siltMean:
		return TextureClay
	case sandMean >= dominanceThreshold && sandMean >= clayMean && sandMean >= siltMean:
		return TextureSand
	case siltMean >= dominanceThreshold && siltMean >= clayMean && siltMean >= sandMean:
		return TextureSilt
	default:
		return TextureLoam
	}
}

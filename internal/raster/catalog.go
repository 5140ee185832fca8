// Package raster implements C7, the Raster Per-Polygon Aggregator: for
// each raster layer and polygon, computes area/histogram/dominant/
// statistics via the spatial database (spec §4.C7).
package raster

// LayerKind distinguishes the three aggregation strategies spec §4.C7
// names.
type LayerKind string

const (
	KindCategorical LayerKind = "categorical"
	KindContinuous  LayerKind = "continuous"
	KindMultiband   LayerKind = "multiband"
)

// LayerConfig is one entry of the raster layer catalogue (spec §6
// "Raster layer catalogue" — "part of the external contract; a
// conforming implementation treats them as configuration data"). Class
// codebooks and scale factors live here rather than in code paths, so a
// new raster product can be onboarded by adding a table entry.
type LayerConfig struct {
	Name  string
	Kind  LayerKind
	Table string // underlying raster table/column group in the spatial DB

	// ScaleFactor is applied to raw pixel values before stats are computed
	// (spec: "Scale factors are applied where the source layer documents
	// them (e.g. temperature x 0.1)").
	ScaleFactor float64

	// NoDataValues beyond the raster's own embedded nodata flag.
	NoDataValues []float64

	// ClassCodebook maps class code -> both display-label bindings named
	// in spec §9's Open Question ("variously labels slope class 1 as
	// 'gentle' (code) and 'flat' (internal docs)"). Both bindings are
	// supplied as configuration so the caller (spec §6) chooses.
	ClassCodebook map[int]ClassLabels

	// ExcludeFromPercent lists class codes dropped from both percentages
	// and dominance (slope's nodata/water class 0).
	ExcludeFromPercent map[int]bool
	// ExcludeFromDominance lists class codes included in percentages but
	// never eligible to be "dominant" (aspect's flat class 0).
	ExcludeFromDominance map[int]bool

	// Bands names each band for a multiband layer, in table order.
	Bands []string
}

// ClassLabels carries the two parallel label bindings for one class code.
type ClassLabels struct {
	CodeLabel string // e.g. "gentle" (terse/code-oriented)
	DocLabel  string // e.g. "flat" (descriptive/internal-docs-oriented)
}

var slopeCodebook = map[int]ClassLabels{
	1: {CodeLabel: "gentle", DocLabel: "flat"},
	2: {CodeLabel: "moderate", DocLabel: "moderate"},
	3: {CodeLabel: "steep", DocLabel: "steep"},
	4: {CodeLabel: "very_steep", DocLabel: "very steep"},
}

var aspectCodebook = map[int]ClassLabels{
	0: {CodeLabel: "Flat", DocLabel: "Flat"},
	1: {CodeLabel: "N", DocLabel: "North"},
	2: {CodeLabel: "NE", DocLabel: "Northeast"},
	3: {CodeLabel: "E", DocLabel: "East"},
	4: {CodeLabel: "SE", DocLabel: "Southeast"},
	5: {CodeLabel: "S", DocLabel: "South"},
	6: {CodeLabel: "SW", DocLabel: "Southwest"},
	7: {CodeLabel: "W", DocLabel: "West"},
	8: {CodeLabel: "NW", DocLabel: "Northwest"},
}

var forestHealthCodebook = map[int]ClassLabels{
	1: {CodeLabel: "stressed", DocLabel: "Stressed"},
	2: {CodeLabel: "poor", DocLabel: "Poor"},
	3: {CodeLabel: "fair", DocLabel: "Fair"},
	4: {CodeLabel: "good", DocLabel: "Good"},
	5: {CodeLabel: "excellent", DocLabel: "Excellent"},
}

// Catalog is the fixed, documented enumeration order the orchestrator
// processes raster layers in (spec §5 "raster layers per polygon
// processed in the fixed enumeration order of the option mask"). Order
// here matches the OptionMask field order in internal/model.
var Catalog = []LayerConfig{
	{Name: "elevation", Kind: KindContinuous, Table: "raster_elevation"},
	{Name: "slope", Kind: KindCategorical, Table: "raster_slope_class", ClassCodebook: slopeCodebook, ExcludeFromPercent: map[int]bool{0: true}},
	{Name: "aspect", Kind: KindCategorical, Table: "raster_aspect_class", ClassCodebook: aspectCodebook, ExcludeFromDominance: map[int]bool{0: true}},
	{Name: "canopy", Kind: KindCategorical, Table: "raster_canopy_class"},
	{Name: "biomass", Kind: KindContinuous, Table: "raster_agb"},
	{Name: "forest_health", Kind: KindCategorical, Table: "raster_forest_health", ClassCodebook: forestHealthCodebook},
	{Name: "forest_type", Kind: KindCategorical, Table: "raster_forest_type"},
	{Name: "landcover", Kind: KindCategorical, Table: "raster_esa_landcover"},
	{Name: "forest_loss", Kind: KindCategorical, Table: "raster_loss_year"},
	{Name: "forest_gain", Kind: KindCategorical, Table: "raster_gain"},
	{Name: "fire_loss", Kind: KindCategorical, Table: "raster_fire_loss_year"},
	{Name: "temperature", Kind: KindContinuous, Table: "raster_annual_mean_temp", ScaleFactor: 0.1},
	{Name: "min_cold_month_temp", Kind: KindContinuous, Table: "raster_min_cold_month_temp", ScaleFactor: 0.1},
	{Name: "precipitation", Kind: KindContinuous, Table: "raster_precipitation"},
	{Name: "soil", Kind: KindMultiband, Table: "raster_soil", Bands: []string{
		"clay", "sand", "silt", "ph", "organic_carbon", "bulk_density", "cec", "nitrogen",
	}},
}

// ByName looks up a catalog entry, used by the orchestrator to resolve an
// option-mask flag to its layer config.
func ByName(name string) (LayerConfig, bool) {
	for _, l := range Catalog {
		if l.Name == name {
			return l, true
		}
	}
	return LayerConfig{}, false
}

// Package orchestrator implements C9, the Analysis Orchestrator: drives
// the raster aggregator (C7) and the proximity analyser (C8) across a
// Boundary's polygons under an option mask, and rolls the per-polygon
// documents up into a Calculation's terminal status and boundary
// aggregate (spec §4.C9).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"forest-analysis-core/internal/coreerr"
	"forest-analysis-core/internal/geomutil"
	"forest-analysis-core/internal/model"
	"forest-analysis-core/internal/projection"
	"forest-analysis-core/internal/proximity"
	"forest-analysis-core/internal/raster"
)

// Orchestrator holds the pooled database connection both C7 and C8 run
// against. One instance is shared across Calculations; it carries no
// per-Calculation mutable state (spec §5 "no other process-wide mutable
// state").
type Orchestrator struct {
	Pool *pgxpool.Pool

	// DistanceM is the proximity search radius passed to C8 (spec §4.C8
	// "within distMetres"); configured, not hardcoded.
	DistanceM float64
}

// proximityClasses is the fixed set of feature layers C8 runs per polygon.
var proximityClasses = []proximity.FeatureClass{
	proximity.ClassSettlements,
	proximity.ClassRoads,
	proximity.ClassRivers,
	proximity.ClassRidges,
}

// Run drives the whole Calculation: pending -> running -> a terminal
// status, processing polygons sequentially in submission order (spec §5).
func (o *Orchestrator) Run(ctx context.Context, calc *model.Calculation) {
	calc.Status = model.CalcRunning
	calc.PerPolygon = make([]model.PolygonResult, len(calc.Boundary.Polygons))

	var anySucceeded, allSucceeded bool
	allSucceeded = true

	for i, poly := range calc.Boundary.Polygons {
		if ctx.Err() != nil {
			calc.TimedOut = true
			break
		}

		result := o.processPolygon(ctx, poly, i, calc.Options, calc.Boundary.CRS)
		calc.PerPolygon[i] = result
		if len(result.Errors) == 0 {
			anySucceeded = true
		} else {
			allSucceeded = false
		}
	}

	calc.Aggregate = aggregateBoundary(calc.PerPolygon, calc.Options)

	switch {
	case calc.TimedOut:
		calc.Status = model.CalcFailedPartial
	case allSucceeded:
		calc.Status = model.CalcSucceeded
	case anySucceeded:
		calc.Status = model.CalcFailedPartial
	default:
		calc.Status = model.CalcFailed
	}
}

// processPolygon runs C7 then C8 for one polygon. A catastrophic failure
// in the raster phase (step 1-3 of spec §4.C9's execution model) skips the
// proximity phase and moves on to the next polygon; an individual raster
// layer's failure does not (it is isolated by its own savepoint).
func (o *Orchestrator) processPolygon(ctx context.Context, poly model.Polygon, idx int, opts model.OptionMask, crs model.CRSName) model.PolygonResult {
	result := model.PolygonResult{
		Index:     idx,
		BlockName: poly.BlockName,
		Layers:    map[string]any{},
		Proximity: map[string]any{},
	}

	geojson := polygonGeoJSON(poly)
	epsg := epsgFor(crs, poly)

	if opts.RunRasterAnalysis {
		if err := o.runRasterPhase(ctx, geojson, opts, &result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("raster phase: %v", err))
			return result
		}
	}

	if opts.RunProximity {
		o.runProximityPhase(ctx, geojson, poly, epsg, &result)
	}

	return result
}

// runRasterPhase brackets the whole raster step in one transaction (spec
// §4.C9 steps 1-3), but runs each selected layer inside its own pgx
// pseudo-nested transaction (a SAVEPOINT, which is what pgx.Tx.Begin on an
// existing Tx issues) so one layer's failure rolls back only that layer,
// never the polygon's other layers or the outer transaction (spec §7
// "per-(polygon, layer)... failures attach to that slot and never abort
// sibling slots").
func (o *Orchestrator) runRasterPhase(ctx context.Context, geojsonGeom string, opts model.OptionMask, result *model.PolygonResult) error {
	tx, err := o.Pool.Begin(ctx)
	if err != nil {
		return coreerr.Wrap(coreerr.KindDBTransient, err, "begin polygon transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, name := range selectedLayers(opts) {
		cfg, ok := raster.ByName(name)
		if !ok {
			continue
		}

		layerResult, err := runLayerWithSavepoint(ctx, tx, geojsonGeom, cfg)
		if err != nil {
			result.Layers[cfg.Name] = map[string]any{"error": err.Error()}
			result.Errors = append(result.Errors, fmt.Sprintf("layer %s: %v", cfg.Name, err))
			continue
		}
		result.Layers[cfg.Name] = layerResult
	}

	if err := tx.Commit(ctx); err != nil {
		return coreerr.Wrap(coreerr.KindDBTransient, err, "commit polygon transaction")
	}
	committed = true
	return nil
}

// runLayerWithSavepoint runs one layer's aggregation inside a pgx
// pseudo-nested transaction, making at most 3 attempts on DB_TRANSIENT
// failures with 50ms*2^n backoff before giving up (spec §7 "Retries"), all within
// the outer polygon transaction's scope (no retry crosses a transaction
// boundary).
func runLayerWithSavepoint(ctx context.Context, outer pgx.Tx, geojsonGeom string, cfg raster.LayerConfig) (any, error) {
	nested, err := outer.Begin(ctx)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindDBTransient, err, "begin savepoint for layer %s", cfg.Name)
	}
	agg := &raster.Aggregator{DB: nested}

	var out any
	runErr := withRetry(ctx, func() error {
		var innerErr error
		out, innerErr = runOneLayer(ctx, agg, geojsonGeom, cfg)
		return innerErr
	})

	if runErr != nil {
		_ = nested.Rollback(ctx)
		return nil, runErr
	}
	if err := nested.Commit(ctx); err != nil {
		return nil, coreerr.Wrap(coreerr.KindDBTransient, err, "commit savepoint for layer %s", cfg.Name)
	}
	return out, nil
}

func runOneLayer(ctx context.Context, agg *raster.Aggregator, geojsonGeom string, cfg raster.LayerConfig) (any, error) {
	switch cfg.Kind {
	case raster.KindCategorical:
		res, err := agg.AggregateCategoricalLayer(ctx, geojsonGeom, cfg)
		if err != nil {
			return nil, err
		}
		return categoricalToPrimitive(cfg, res), nil

	case raster.KindContinuous:
		res, err := agg.AggregateContinuousLayer(ctx, geojsonGeom, cfg)
		if err != nil {
			return nil, err
		}
		return continuousToPrimitive(res), nil

	case raster.KindMultiband:
		bands, texture, err := agg.AggregateSoilLayer(ctx, geojsonGeom, cfg)
		if err != nil {
			return nil, err
		}
		bandMap := make(map[string]any, len(bands))
		for name, r := range bands {
			bandMap[name] = continuousToPrimitive(r)
		}
		return map[string]any{"bands": bandMap, "texture": string(texture)}, nil

	default:
		return nil, coreerr.New(coreerr.KindInternal, "unknown layer kind %q", cfg.Kind)
	}
}

// categoricalToPrimitive renders a CategoricalResult as the primitive
// shape spec §4.C10 requires ("every public field... either a primitive, a
// list of primitives, or a mapping of string->primitive"). The Open
// Question over which class-label binding to surface (code-oriented vs
// doc-oriented) is resolved in favour of the code-oriented label, since
// that is what a programmatic caller of the export/HTTP surface consumes
// (see DESIGN.md).
func categoricalToPrimitive(cfg raster.LayerConfig, res raster.CategoricalResult) map[string]any {
	perClass := make(map[string]int64, len(res.PerClass))
	perClassPct := make(map[string]float64, len(res.PerClassPct))
	for code, n := range res.PerClass {
		perClass[strconv.Itoa(code)] = n
	}
	for code, pct := range res.PerClassPct {
		perClassPct[strconv.Itoa(code)] = pct
	}

	out := map[string]any{
		"total_cells":   res.TotalCells,
		"per_class":     perClass,
		"per_class_pct": perClassPct,
		"has_dominant":  res.HasDominant,
	}
	if res.HasDominant {
		out["dominant_class"] = res.DominantClass
		if lbl, ok := cfg.ClassCodebook[res.DominantClass]; ok {
			out["dominant_label"] = lbl.CodeLabel
		}
	}
	return out
}

func continuousToPrimitive(res raster.ContinuousResult) map[string]any {
	return map[string]any{
		"count": res.Count,
		"min":   res.Min,
		"max":   res.Max,
		"mean":  res.Mean,
	}
}

// runProximityPhase runs C8 for every feature class; per-direction
// failures are already isolated inside proximity.Analyser and surfaced as
// Failed flags rather than errors, matching spec §4.C9 steps 4-6 ("begins
// per-direction sub-transactions... commit").
func (o *Orchestrator) runProximityPhase(ctx context.Context, geojsonGeom string, poly model.Polygon, epsg int, result *model.PolygonResult) {
	analyser := &proximity.Analyser{DB: o.Pool}
	centroid := geomutil.Centroid(poly.Exterior)

	for _, class := range proximityClasses {
		dn := analyser.AnalyzeFeatureClass(ctx, geojsonGeom, centroid, epsg, class, o.DistanceM)
		result.Proximity[string(class)] = map[string]any{
			"north": namesOrEmpty(dn.North),
			"east":  namesOrEmpty(dn.East),
			"south": namesOrEmpty(dn.South),
			"west":  namesOrEmpty(dn.West),
		}
		for i, dir := range geomutil.Directions {
			if dn.Failed[i] {
				result.Errors = append(result.Errors, fmt.Sprintf("proximity %s/%s failed", class, dir))
			}
		}
	}
}

func namesOrEmpty(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}

// selectedLayers returns the raster catalog names enabled by the option
// mask, in the catalog's fixed enumeration order (spec §5 "raster layers
// per polygon processed in the fixed enumeration order of the option
// mask").
func selectedLayers(opts model.OptionMask) []string {
	flags := map[string]bool{
		"elevation":           opts.RunElevation,
		"slope":               opts.RunSlope,
		"aspect":              opts.RunAspect,
		"canopy":              opts.RunCanopy,
		"biomass":             opts.RunBiomass,
		"forest_health":       opts.RunForestHealth,
		"forest_type":         opts.RunForestType,
		"landcover":           opts.RunLandcover,
		"forest_loss":         opts.RunForestLoss,
		"forest_gain":         opts.RunForestGain,
		"fire_loss":           opts.RunFireLoss,
		"temperature":         opts.RunTemperature,
		"min_cold_month_temp": opts.RunTemperature,
		"precipitation":       opts.RunPrecipitation,
		"soil":                opts.RunSoil,
	}
	var out []string
	for _, l := range raster.Catalog {
		if flags[l.Name] {
			out = append(out, l.Name)
		}
	}
	return out
}

// epsgFor resolves the metric SRID C8's distance computation and the
// GeoJSON's implied CRS require. A WGS84-geographic boundary is resolved
// per-polygon by its centroid longitude (spec Glossary "UTM 44N/45N...
// covering western/eastern Nepal"); a pre-declared UTM boundary uses its
// own zone directly.
func epsgFor(crs model.CRSName, poly model.Polygon) int {
	switch crs {
	case model.CRSUTM44N:
		return projection.Zone44N.EPSG
	case model.CRSUTM45N:
		return projection.Zone45N.EPSG
	default:
		c := geomutil.Centroid(poly.Exterior)
		return projection.ZoneFor(c.X).EPSG
	}
}

// polygonGeoJSON renders a model.Polygon as a GeoJSON Polygon geometry
// string for the SQL layer's ST_GeomFromGeoJSON($1) call.
func polygonGeoJSON(poly model.Polygon) string {
	ring := func(r geomutil.Ring) string {
		s := "["
		for i, p := range r {
			if i > 0 {
				s += ","
			}
			s += fmt.Sprintf("[%g,%g]", p.X, p.Y)
		}
		return s + "]"
	}
	coords := "[" + ring(poly.Exterior)
	for _, h := range poly.Holes {
		coords += "," + ring(h)
	}
	coords += "]"
	return fmt.Sprintf(`{"type":"Polygon","coordinates":%s}`, coords)
}

// aggregateBoundary combines per-polygon documents into the
// boundary-level document (spec §4.C9 "Boundary aggregate"): categorical
// layers sum per-class counts and recompute percentages/dominance from the
// sum; continuous layers take the count-weighted mean over the total valid
// cell count; proximity unions the feature-name sets per direction.
func aggregateBoundary(perPolygon []model.PolygonResult, opts model.OptionMask) map[string]any {
	agg := map[string]any{}

	if opts.RunRasterAnalysis {
		for _, name := range selectedLayers(opts) {
			cfg, ok := raster.ByName(name)
			if !ok {
				continue
			}
			switch cfg.Kind {
			case raster.KindCategorical:
				if v := aggregateCategoricalAcross(perPolygon, cfg); v != nil {
					agg[cfg.Name] = v
				}
			case raster.KindContinuous:
				if v := aggregateContinuousAcross(perPolygon, cfg.Name); v != nil {
					agg[cfg.Name] = v
				}
			case raster.KindMultiband:
				if v := aggregateSoilAcross(perPolygon, cfg); v != nil {
					agg[cfg.Name] = v
				}
			}
		}
	}

	if opts.RunProximity {
		for _, class := range proximityClasses {
			agg[string(class)] = aggregateProximityAcross(perPolygon, string(class))
		}
	}

	return agg
}

func aggregateCategoricalAcross(perPolygon []model.PolygonResult, cfg raster.LayerConfig) map[string]any {
	summed := map[int]int64{}
	found := false
	for _, p := range perPolygon {
		layer, ok := p.Layers[cfg.Name].(map[string]any)
		if !ok {
			continue
		}
		perClass, ok := layer["per_class"].(map[string]int64)
		if !ok {
			continue
		}
		found = true
		for codeStr, n := range perClass {
			code, err := strconv.Atoi(codeStr)
			if err != nil {
				continue
			}
			summed[code] += n
		}
	}
	if !found {
		return nil
	}
	res := raster.AggregateCategorical(cfg, summed)
	return categoricalToPrimitive(cfg, res)
}

func aggregateContinuousAcross(perPolygon []model.PolygonResult, name string) map[string]any {
	var totalCount int64
	var weightedSum, min, max float64
	first := true
	for _, p := range perPolygon {
		layer, ok := p.Layers[name].(map[string]any)
		if !ok {
			continue
		}
		count, _ := layer["count"].(int64)
		mean, _ := layer["mean"].(float64)
		lmin, _ := layer["min"].(float64)
		lmax, _ := layer["max"].(float64)
		if count == 0 {
			continue
		}
		totalCount += count
		weightedSum += mean * float64(count)
		if first {
			min, max = lmin, lmax
			first = false
		} else {
			if lmin < min {
				min = lmin
			}
			if lmax > max {
				max = lmax
			}
		}
	}
	if totalCount == 0 {
		return nil
	}
	return map[string]any{
		"count": totalCount,
		"min":   min,
		"max":   max,
		"mean":  weightedSum / float64(totalCount),
	}
}

func aggregateSoilAcross(perPolygon []model.PolygonResult, cfg raster.LayerConfig) map[string]any {
	bandPolys := make(map[string][]model.PolygonResult, len(cfg.Bands))
	anyFound := false
	for _, name := range cfg.Bands {
		synthetic := make([]model.PolygonResult, 0, len(perPolygon))
		for _, p := range perPolygon {
			layer, ok := p.Layers[cfg.Name].(map[string]any)
			if !ok {
				continue
			}
			bands, ok := layer["bands"].(map[string]any)
			if !ok {
				continue
			}
			bandResult, ok := bands[name].(map[string]any)
			if !ok {
				continue
			}
			anyFound = true
			synthetic = append(synthetic, model.PolygonResult{Layers: map[string]any{name: bandResult}})
		}
		bandPolys[name] = synthetic
	}
	if !anyFound {
		return nil
	}

	bandAgg := make(map[string]any, len(cfg.Bands))
	means := map[string]float64{}
	for _, name := range cfg.Bands {
		v := aggregateContinuousAcross(bandPolys[name], name)
		if v == nil {
			continue
		}
		bandAgg[name] = v
		if mean, ok := v["mean"].(float64); ok {
			means[name] = mean
		}
	}
	texture := raster.ClassifyTexture(means["clay"], means["sand"], means["silt"])
	return map[string]any{"bands": bandAgg, "texture": string(texture)}
}

func aggregateProximityAcross(perPolygon []model.PolygonResult, class string) map[string]any {
	union := map[string]map[string]bool{"north": {}, "east": {}, "south": {}, "west": {}}
	for _, p := range perPolygon {
		entry, ok := p.Proximity[class].(map[string]any)
		if !ok {
			continue
		}
		for _, dir := range []string{"north", "east", "south", "west"} {
			names, ok := entry[dir].([]string)
			if !ok {
				continue
			}
			for _, n := range names {
				union[dir][n] = true
			}
		}
	}
	out := map[string]any{}
	for _, dir := range []string{"north", "east", "south", "west"} {
		var names []string
		for n := range union[dir] {
			names = append(names, n)
		}
		sort.Strings(names)
		out[dir] = names
	}
	return out
}

// withRetry calls fn at most 3 times in total (the first try plus up to 2
// retries) while it fails with a DB_TRANSIENT classification, waiting
// 50ms*2^n after attempt n (spec §7 "Retries"). DB_FATAL and any
// other error surface immediately.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		backoff := 50 * time.Millisecond * time.Duration(1<<uint(attempt))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// isTransient classifies an error as retryable: either it already carries
// coreerr's DB_TRANSIENT kind, or the underlying driver error is a
// PostgreSQL connection exception (SQLSTATE class 08), a
// serialization_failure (40001), or cannot_connect_now (57P03).
func isTransient(err error) bool {
	if coreerr.Is(err, coreerr.KindDBTransient) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08":
			return true
		case pgErr.Code == "40001":
			return true
		case pgErr.Code == "57P03":
			return true
		}
	}
	return false
}

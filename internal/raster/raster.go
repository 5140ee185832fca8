package raster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"forest-analysis-core/internal/coreerr"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx. The orchestrator
// hands Aggregator a pgx.Tx (wrapped in a per-layer SAVEPOINT) rather than
// the bare pool, so one layer's failure can be rolled back to the
// savepoint without poisoning the rest of the polygon's transaction (spec
// §9's isolation rule, applied at layer granularity).
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Aggregator runs C7's per-(polygon, layer) queries against the spatial
// database, grounded on the teacher's internal/geo.Queries /
// AnalyzePolygon: same "ST_GeomFromGeoJSON($1)" CTE shape, same
// json.Valid/peek-struct sanity check before the geometry ever reaches
// SQL.
type Aggregator struct {
	DB Querier
}

// peekGeometry mirrors AnalyzePolygon's validation of the incoming GeoJSON
// before it is handed to PostGIS.
func peekGeometry(geojsonGeom string) error {
	if !json.Valid([]byte(geojsonGeom)) {
		return coreerr.New(coreerr.KindInvalidInput, "invalid GeoJSON: not valid JSON")
	}
	var peek struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(geojsonGeom), &peek); err != nil {
		return coreerr.Wrap(coreerr.KindInvalidInput, err, "invalid GeoJSON")
	}
	if peek.Type != "Polygon" && peek.Type != "MultiPolygon" {
		return coreerr.New(coreerr.KindInvalidInput, "invalid GeoJSON: type must be Polygon or MultiPolygon, got %q", peek.Type)
	}
	return nil
}

// AggregateCategoricalLayer runs C7 for a categorical layer: a zonal
// pixel-count-per-class query via PostGIS raster's ST_ValueCount, clipped
// to the polygon. Returns an explicit zero-cell result (not an error) when
// the polygon does not overlap the layer (spec §4.C7 "Failure").
func (a *Aggregator) AggregateCategoricalLayer(ctx context.Context, geojsonGeom string, cfg LayerConfig) (CategoricalResult, error) {
	if err := peekGeometry(geojsonGeom); err != nil {
		return CategoricalResult{}, err
	}

	query := fmt.Sprintf(`
		WITH poly AS (SELECT ST_GeomFromGeoJSON($1) AS geom),
		clipped AS (
			SELECT ST_Clip(r.rast, poly.geom, true) AS rast
			FROM %s r, poly
			WHERE r.rast && poly.geom
		)
		SELECT (pvc).value::int AS class_code, (pvc).count AS cells
		FROM (
			SELECT ST_ValueCount(rast) AS pvc FROM clipped
		) q
		WHERE (pvc).value IS NOT NULL
	`, cfg.Table)

	rows, err := a.DB.Query(ctx, query, geojsonGeom)
	if err != nil {
		return CategoricalResult{}, coreerr.Wrap(coreerr.KindDBFatal, err, "categorical aggregation query failed for layer %s", cfg.Name)
	}
	defer rows.Close()

	raw := map[int]int64{}
	for rows.Next() {
		var code int
		var cells int64
		if err := rows.Scan(&code, &cells); err != nil {
			return CategoricalResult{}, coreerr.Wrap(coreerr.KindDBFatal, err, "scanning value-count row for layer %s", cfg.Name)
		}
		raw[code] += cells
	}
	if err := rows.Err(); err != nil {
		return CategoricalResult{}, coreerr.Wrap(coreerr.KindDBFatal, err, "iterating value-count rows for layer %s", cfg.Name)
	}

	if len(raw) == 0 {
		return CategoricalResult{TotalCells: 0, PerClass: map[int]int64{}, PerClassPct: map[int]float64{}}, nil
	}
	return AggregateCategorical(cfg, raw), nil
}

// AggregateContinuousLayer runs C7 for a continuous layer via PostGIS
// raster's ST_SummaryStats, applying the layer's scale factor after the DB
// returns the raw summary. Pixels equal to the raster's own nodata value are
// excluded by ST_SummaryStats; the layer's NoDataValues are not applied here.
func (a *Aggregator) AggregateContinuousLayer(ctx context.Context, geojsonGeom string, cfg LayerConfig) (ContinuousResult, error) {
	if err := peekGeometry(geojsonGeom); err != nil {
		return ContinuousResult{}, err
	}

	query := fmt.Sprintf(`
		WITH poly AS (SELECT ST_GeomFromGeoJSON($1) AS geom),
		clipped AS (
			SELECT ST_Clip(r.rast, poly.geom, true) AS rast
			FROM %s r, poly
			WHERE r.rast && poly.geom
		),
		stats AS (SELECT (ST_SummaryStats(rast, 1, true)).* FROM clipped)
		SELECT COALESCE(count, 0), COALESCE(min, 0), COALESCE(max, 0), COALESCE(mean, 0) FROM stats
	`, cfg.Table)

	var count int64
	var min, max, mean float64
	err := a.DB.QueryRow(ctx, query, geojsonGeom).Scan(&count, &min, &max, &mean)
	if err != nil {
		return ContinuousResult{}, coreerr.Wrap(coreerr.KindDBFatal, err, "continuous aggregation query failed for layer %s", cfg.Name)
	}
	if count == 0 {
		return ContinuousResult{}, nil
	}

	scale := cfg.ScaleFactor
	if scale == 0 {
		scale = 1
	}
	return ContinuousResult{Count: count, Min: min * scale, Max: max * scale, Mean: mean * scale}, nil
}

// AggregateSoilLayer runs C7 for the soil multiband layer. Because the
// per-band texture classification (spec §4.C7 "derived texture class...
// by a fixed rule on the clay/sand/silt band means") needs the individual
// band means together in one place, the clipped raster is pulled into Go
// as GeoTIFF bytes (ST_AsGDALRaster) and decoded with DecodeGeoTIFF rather
// than issuing one ST_SummaryStats call per band.
func (a *Aggregator) AggregateSoilLayer(ctx context.Context, geojsonGeom string, cfg LayerConfig) (map[string]ContinuousResult, SoilTextureClass, error) {
	if err := peekGeometry(geojsonGeom); err != nil {
		return nil, "", err
	}

	const query = `
		WITH poly AS (SELECT ST_GeomFromGeoJSON($1) AS geom)
		SELECT ST_AsGDALRaster(ST_Clip(r.rast, poly.geom, true), 'GTiff')
		FROM raster_soil r, poly
		WHERE r.rast && poly.geom
	`
	var gdalBytes []byte
	err := a.DB.QueryRow(ctx, query, geojsonGeom).Scan(&gdalBytes)
	if errors.Is(err, pgx.ErrNoRows) {
		return map[string]ContinuousResult{}, TextureLoam, nil // no overlap: spec's explicit zero-cell case
	}
	if err != nil {
		return nil, "", coreerr.Wrap(coreerr.KindDBFatal, err, "querying soil raster")
	}

	decoded, err := DecodeGeoTIFF(gdalBytes)
	if err != nil {
		return nil, "", coreerr.Wrap(coreerr.KindDBFatal, err, "decoding soil raster")
	}

	results := make(map[string]ContinuousResult, len(cfg.Bands))
	means := make(map[string]float64, len(cfg.Bands))
	for i, name := range cfg.Bands {
		if i >= decoded.BandCount {
			continue
		}
		var values []float64
		for _, v := range decoded.Bands[i] {
			if decoded.HasNoData && v == decoded.NoData {
				continue
			}
			values = append(values, v)
		}
		res := AggregateContinuous(LayerConfig{}, values)
		results[name] = res
		means[name] = res.Mean
	}

	texture := ClassifyTexture(means["clay"], means["sand"], means["silt"])
	return results, texture, nil
}

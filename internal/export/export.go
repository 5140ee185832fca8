// Package export implements C11, the Export Serializers: render a
// processed Inventory's trees as CSV or GeoJSON byte streams (spec
// §4.C11). Both are the data shape only — no map rendering, the teacher's
// internal/tiles MVT surface being explicitly out of scope here.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strconv"

	"forest-analysis-core/internal/coreerr"
	"forest-analysis-core/internal/model"
)

// csvColumns is the fixed column order spec §4.C11 names.
var csvColumns = []string{
	"species", "dia_cm", "height_m", "tree_class",
	"longitude", "latitude",
	"stem_volume", "branch_volume", "tree_volume", "gross_volume", "net_volume",
	"net_volume_cft", "firewood_m3", "firewood_chatta", "remark", "grid_cell_id",
}

// ToCSV renders an Inventory's trees as CSV bytes in the spec's column
// order. Fails with kind=NO_TREES on an empty inventory.
func ToCSV(trees []model.Tree) ([]byte, error) {
	if len(trees) == 0 {
		return nil, coreerr.New(coreerr.KindNoTrees, "cannot export an inventory with no trees")
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvColumns); err != nil {
		return nil, coreerr.Wrap(coreerr.KindInternal, err, "write csv header")
	}
	for _, t := range trees {
		record := []string{
			strconv.Itoa(t.SpeciesCode),
			formatFloat(t.DBHCm),
			formatFloat(t.HeightM),
			string(t.Class),
			formatFloat(t.LocationWGS84.X),
			formatFloat(t.LocationWGS84.Y),
			formatFloat(t.StemM3),
			formatFloat(t.BranchM3),
			formatFloat(t.TreeM3),
			formatFloat(t.GrossM3),
			formatFloat(t.NetM3),
			formatFloat(t.NetCft),
			formatFloat(t.FirewoodM3),
			formatFloat(t.FirewoodChatta),
			t.Remark,
			gridCellField(t),
		}
		if err := w.Write(record); err != nil {
			return nil, coreerr.Wrap(coreerr.KindInternal, err, "write csv row %d", t.RowNumber)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, coreerr.Wrap(coreerr.KindInternal, err, "flush csv writer")
	}
	return buf.Bytes(), nil
}

// geoFeature and geoCollection mirror just enough of the GeoJSON grammar
// to satisfy spec §4.C11's "FeatureCollection of Point features" shape,
// hand-rolled rather than pulled from a library — the retrieved example
// pack carries no GeoJSON-encoding library among the teacher's or pack
// dependencies (see DESIGN.md).
type geoGeometry struct {
	Type        string    `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

type geoFeature struct {
	Type       string            `json:"type"`
	Geometry   geoGeometry       `json:"geometry"`
	Properties map[string]any    `json:"properties"`
}

type geoCollection struct {
	Type     string       `json:"type"`
	Features []geoFeature `json:"features"`
}

// ToGeoJSON renders an Inventory's trees as a GeoJSON FeatureCollection of
// Point features, properties mirroring the CSV columns minus lon/lat
// (spec §4.C11). Fails with kind=NO_TREES on an empty inventory.
func ToGeoJSON(trees []model.Tree) ([]byte, error) {
	if len(trees) == 0 {
		return nil, coreerr.New(coreerr.KindNoTrees, "cannot export an inventory with no trees")
	}

	fc := geoCollection{Type: "FeatureCollection", Features: make([]geoFeature, 0, len(trees))}
	for _, t := range trees {
		fc.Features = append(fc.Features, geoFeature{
			Type:     "Feature",
			Geometry: geoGeometry{Type: "Point", Coordinates: [2]float64{t.LocationWGS84.X, t.LocationWGS84.Y}},
			Properties: map[string]any{
				"species":          t.SpeciesCode,
				"dia_cm":           t.DBHCm,
				"height_m":         t.HeightM,
				"tree_class":       string(t.Class),
				"stem_volume":      t.StemM3,
				"branch_volume":    t.BranchM3,
				"tree_volume":      t.TreeM3,
				"gross_volume":     t.GrossM3,
				"net_volume":       t.NetM3,
				"net_volume_cft":   t.NetCft,
				"firewood_m3":      t.FirewoodM3,
				"firewood_chatta":  t.FirewoodChatta,
				"remark":           t.Remark,
				"grid_cell_id":     gridCellValue(t),
			},
		})
	}

	out, err := json.Marshal(&fc)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindInternal, err, "marshal geojson feature collection")
	}
	return out, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func gridCellField(t model.Tree) string {
	if !t.HasGridCell {
		return ""
	}
	return strconv.Itoa(t.GridCellID)
}

func gridCellValue(t model.Tree) any {
	if !t.HasGridCell {
		return nil
	}
	return t.GridCellID
}

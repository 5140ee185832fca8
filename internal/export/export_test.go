package export

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forest-analysis-core/internal/coreerr"
	"forest-analysis-core/internal/geomutil"
	"forest-analysis-core/internal/model"
)

func sampleTrees() []model.Tree {
	return []model.Tree{
		{
			RowNumber: 1, SpeciesCode: 101, DBHCm: 40, HeightM: 18,
			Class: model.TreeFelling, LocationWGS84: geomutil.Point{X: 85.3, Y: 27.7},
			StemM3: 1.1, BranchM3: 0.2, TreeM3: 1.3, GrossM3: 1.4, NetM3: 1.2,
			NetCft: 42.3, FirewoodM3: 0.1, FirewoodChatta: 0.36,
			GridCellID: 5, HasGridCell: true, Remark: "ok",
		},
		{
			RowNumber: 2, SpeciesCode: 102, DBHCm: 5, HeightM: 2,
			Class: model.TreeSeedling, LocationWGS84: geomutil.Point{X: 85.31, Y: 27.71},
		},
	}
}

func TestToCSV_EmptyReturnsNoTreesError(t *testing.T) {
	_, err := ToCSV(nil)
	require.Error(t, err)
	assert.True(t, coreerr.Is(err, coreerr.KindNoTrees))
}

func TestToCSV_FixedColumnOrder(t *testing.T) {
	out, err := ToCSV(sampleTrees())
	require.NoError(t, err)

	r := csv.NewReader(strings.NewReader(string(out)))
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvColumns, rows[0])
	assert.Equal(t, "101", rows[1][0])
	assert.Equal(t, "5", rows[1][len(rows[1])-1])
	assert.Equal(t, "", rows[2][len(rows[2])-1])
}

func TestToGeoJSON_EmptyReturnsNoTreesError(t *testing.T) {
	_, err := ToGeoJSON(nil)
	require.Error(t, err)
	assert.True(t, coreerr.Is(err, coreerr.KindNoTrees))
}

func TestToGeoJSON_FeatureCollectionShape(t *testing.T) {
	out, err := ToGeoJSON(sampleTrees())
	require.NoError(t, err)

	var fc geoCollection
	require.NoError(t, json.Unmarshal(out, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "Point", fc.Features[0].Geometry.Type)
	assert.Equal(t, [2]float64{85.3, 27.7}, fc.Features[0].Geometry.Coordinates)
	assert.Equal(t, float64(5), fc.Features[0].Properties["grid_cell_id"])
	assert.Nil(t, fc.Features[1].Properties["grid_cell_id"])
}

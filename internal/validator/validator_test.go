package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forest-analysis-core/internal/species"
)

func testSpeciesTable() *species.Table {
	return species.NewTable([]species.Species{
		{Code: 101, ScientificName: "Shorea robusta", LocalName: "Sal", MaxDBHCm: 150, Active: true},
		{Code: 102, ScientificName: "Dalbergia sissoo", LocalName: "Sissoo", MaxDBHCm: 100, Active: true},
	})
}

const goodCSV = `species,dia_cm,height_m,longitude,latitude,class
Sal,40,18,85.30,27.70,A
Sissoo,25,12,85.31,27.71,B
`

func TestValidate_DuplicateCoordinatesReportTrueRowNumbers(t *testing.T) {
	// Row 2 is dropped from the parsed set entirely (non-numeric longitude),
	// so rows 3 and 4 (near-duplicate coordinates) must still be reported
	// under their real CSV row numbers, not shifted by the drop.
	csv := `species,dia_cm,height_m,longitude,latitude,class
Sal,40,18,not-a-number,27.70,A
Sal,40,18,85.300000,27.700000,A
Sal,40,18,85.300005,27.700005,A
`
	report, _ := Validate(Input{TabularBytes: []byte(csv), Species: testSpeciesTable()})

	var dup *Issue
	for i := range report.Warnings {
		if report.Warnings[i].Kind == "DUPLICATE_COORDINATES" {
			dup = &report.Warnings[i]
			break
		}
	}
	require.NotNil(t, dup)
	assert.Contains(t, dup.Message, "rows 3 and 4")
}

func TestValidate_HappyPath(t *testing.T) {
	report, rows := Validate(Input{
		TabularBytes: []byte(goodCSV),
		Species:      testSpeciesTable(),
	})
	require.True(t, report.ReadyForProcessing)
	require.Len(t, rows, 2)
	assert.Equal(t, 101, rows[0].SpeciesCode)
	assert.Equal(t, 40.0, rows[0].DiameterCm)
	assert.Equal(t, "WGS84-geographic", report.DetectedCRS)
}

func TestValidate_EmptyFile(t *testing.T) {
	report, rows := Validate(Input{TabularBytes: []byte{}})
	assert.False(t, report.ReadyForProcessing)
	assert.Nil(t, rows)
	assert.NotEmpty(t, report.Fatal)
}

func TestValidate_MissingRequiredColumn(t *testing.T) {
	report, rows := Validate(Input{TabularBytes: []byte("foo,bar\n1,2\n")})
	assert.False(t, report.ReadyForProcessing)
	assert.Nil(t, rows)
}

func TestValidate_GirthConvertedToDiameter(t *testing.T) {
	csv := "species,girth_cm,longitude,latitude\nSal,125.6,85.30,27.70\n"
	report, rows := Validate(Input{TabularBytes: []byte(csv), Species: testSpeciesTable()})
	require.True(t, report.ReadyForProcessing)
	require.Len(t, rows, 1)
	assert.Equal(t, "girth", report.DiameterType)
	assert.InDelta(t, 125.6/3.14159265358979, rows[0].DiameterCm, 0.01)
}

func TestValidate_DiameterOutOfRangeIsFatal(t *testing.T) {
	csv := "species,dia_cm,longitude,latitude\nSal,500,85.30,27.70\n"
	report, rows := Validate(Input{TabularBytes: []byte(csv), Species: testSpeciesTable()})
	assert.Len(t, rows, 0)
	found := false
	for _, f := range report.Fatal {
		if f.Kind == "RANGE_FATAL" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidate_UnknownSpeciesIsFatal(t *testing.T) {
	csv := "species,dia_cm,longitude,latitude\nUnknownPlant,40,85.30,27.70\n"
	report, rows := Validate(Input{TabularBytes: []byte(csv), Species: testSpeciesTable()})
	assert.Len(t, rows, 0)
	found := false
	for _, f := range report.Fatal {
		if f.Kind == "SPECIES_UNKNOWN" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidate_OriginCoordsIsFatal(t *testing.T) {
	csv := "species,dia_cm,longitude,latitude\nSal,40,0,0\n"
	report, rows := Validate(Input{TabularBytes: []byte(csv), Species: testSpeciesTable()})
	assert.Len(t, rows, 0)
	found := false
	for _, f := range report.Fatal {
		if f.Kind == "ORIGIN_COORDS" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidate_SwappedCoordsAutoCorrected(t *testing.T) {
	// lon/lat columns holding swapped values (lat in lon column, lon in lat column).
	csv := "species,dia_cm,longitude,latitude\nSal,40,27.70,85.30\n"
	report, rows := Validate(Input{TabularBytes: []byte(csv), Species: testSpeciesTable(), AllowAutoSwap: true})
	require.True(t, report.ReadyForProcessing)
	require.Len(t, rows, 1)
	assert.InDelta(t, 85.30, rows[0].Location.X, 1e-6)
	assert.InDelta(t, 27.70, rows[0].Location.Y, 1e-6)
}

func TestValidate_SwappedCoordsFatalWithoutAutoSwap(t *testing.T) {
	csv := "species,dia_cm,longitude,latitude\nSal,40,27.70,85.30\n"
	report, rows := Validate(Input{TabularBytes: []byte(csv), Species: testSpeciesTable(), AllowAutoSwap: false})
	assert.False(t, report.ReadyForProcessing)
	assert.Nil(t, rows)
}

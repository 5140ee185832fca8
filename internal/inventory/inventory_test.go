package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forest-analysis-core/internal/geomutil"
	"forest-analysis-core/internal/model"
	"forest-analysis-core/internal/species"
	"forest-analysis-core/internal/validator"
)

func testProcessor() *Processor {
	table := species.NewTable([]species.Species{
		{
			Code: 1, ScientificName: "Shorea robusta", LocalName: "Sal",
			A: -2.3, B: 1.8, C: 1.1, A1: 0.15, B1: 0.85, S: 0.25,
			TypicalHDLow: 60, TypicalHDHigh: 80, Active: true,
		},
	})
	return &Processor{Species: table}
}

func TestProcess_SeedlingExcludedFromGrid(t *testing.T) {
	p := testProcessor()
	rows := []validator.NormalizedRow{
		{RowNumber: 1, SpeciesCode: 1, DiameterCm: 5, HeightM: 2, HasHeight: true, Location: geomutil.Point{X: 85.0, Y: 27.0}},
	}
	trees, summary := p.Process(rows, 50)
	require.Len(t, trees, 1)
	assert.Equal(t, model.TreeSeedling, trees[0].Classification)
	assert.False(t, trees[0].HasGridCell)
	assert.Equal(t, 1, summary.SeedlingCount)
	assert.Equal(t, 0, summary.MotherCount)
	assert.Equal(t, 0, summary.FellingCount)
}

func TestProcess_ClosePairGetsOneMotherOneFelling(t *testing.T) {
	p := testProcessor()
	rows := []validator.NormalizedRow{
		{RowNumber: 1, SpeciesCode: 1, DiameterCm: 30, HeightM: 15, HasHeight: true, Location: geomutil.Point{X: 85.0, Y: 27.0}},
		{RowNumber: 2, SpeciesCode: 1, DiameterCm: 32, HeightM: 16, HasHeight: true, Location: geomutil.Point{X: 85.0001, Y: 27.0001}},
	}
	trees, summary := p.Process(rows, 50)
	require.Len(t, trees, 2)
	assert.True(t, trees[0].HasGridCell)
	assert.True(t, trees[1].HasGridCell)
	assert.Equal(t, trees[0].GridCellID, trees[1].GridCellID)
	// The second tree lies closer to the shared cell's centroid.
	assert.Equal(t, model.TreeFelling, trees[0].Classification)
	assert.Equal(t, model.TreeMother, trees[1].Classification)
	assert.Equal(t, 1, summary.MotherCount)
	assert.Equal(t, 1, summary.FellingCount)
	assert.Equal(t, 0, summary.SeedlingCount)
}

func TestProcess_FarTreeGetsOwnCellAsMother(t *testing.T) {
	p := testProcessor()
	rows := []validator.NormalizedRow{
		{RowNumber: 1, SpeciesCode: 1, DiameterCm: 30, HeightM: 15, HasHeight: true, Location: geomutil.Point{X: 85.0, Y: 27.0}},
		{RowNumber: 2, SpeciesCode: 1, DiameterCm: 32, HeightM: 16, HasHeight: true, Location: geomutil.Point{X: 86.0, Y: 28.0}},
	}
	trees, summary := p.Process(rows, 50)
	require.Len(t, trees, 2)
	assert.NotEqual(t, trees[0].GridCellID, trees[1].GridCellID)
	assert.Equal(t, model.TreeMother, trees[0].Classification)
	assert.Equal(t, model.TreeMother, trees[1].Classification)
	assert.Equal(t, 2, summary.MotherCount)
	assert.Equal(t, 0, summary.FellingCount)
}

func TestProcess_UnknownSpeciesCodeStillProcessed(t *testing.T) {
	p := testProcessor()
	rows := []validator.NormalizedRow{
		{RowNumber: 1, SpeciesCode: 999, DiameterCm: 20, HeightM: 12, HasHeight: true, Location: geomutil.Point{X: 85.0, Y: 27.0}},
	}
	trees, _ := p.Process(rows, 50)
	require.Len(t, trees, 1)
	assert.NotEqual(t, model.TreeSeedling, trees[0].Classification)
}

func TestProcess_SummaryTotalsMatchTreeSums(t *testing.T) {
	p := testProcessor()
	rows := []validator.NormalizedRow{
		{RowNumber: 1, SpeciesCode: 1, DiameterCm: 5, HeightM: 2, HasHeight: true, Location: geomutil.Point{X: 85.0, Y: 27.0}},
		{RowNumber: 2, SpeciesCode: 1, DiameterCm: 30, HeightM: 15, HasHeight: true, Location: geomutil.Point{X: 85.0, Y: 27.0}},
		{RowNumber: 3, SpeciesCode: 1, DiameterCm: 32, HeightM: 16, HasHeight: true, Location: geomutil.Point{X: 85.0001, Y: 27.0001}},
	}
	trees, summary := p.Process(rows, 50)
	require.Len(t, trees, 3)
	assert.Equal(t, 3, summary.TreeCount)
	assert.Equal(t, 50.0, summary.GridSpacingM)

	var wantStem, wantNet, wantFirewood float64
	for _, t := range trees {
		if t.Classification == model.TreeMother || t.Classification == model.TreeFelling {
			wantStem += t.StemM3
			wantNet += t.NetM3
			wantFirewood += t.FirewoodM3
		}
	}
	assert.InDelta(t, wantStem, summary.TotalStemM3, 1e-9)
	assert.InDelta(t, wantNet, summary.TotalNetM3, 1e-9)
	assert.InDelta(t, wantFirewood, summary.TotalFirewoodM3, 1e-9)
}

func TestProcess_EmptyRows(t *testing.T) {
	p := testProcessor()
	trees, summary := p.Process(nil, 50)
	assert.Empty(t, trees)
	assert.Equal(t, 0, summary.TreeCount)
}

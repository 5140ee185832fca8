package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"forest-analysis-core/internal/geomutil"
)

func TestSelect_Empty(t *testing.T) {
	assert.Nil(t, Select(nil, 20))
}

func TestSelect_SingleCellSingleCandidate(t *testing.T) {
	candidates := []Candidate{
		{TreeID: 1, Point: geomutil.Point{X: 5, Y: 5}},
	}
	sel := Select(candidates, 20)
	assert.Len(t, sel, 1)
	assert.True(t, sel[0].IsMother)
	assert.Equal(t, OccupiedCellCount(sel), 1)
}

func TestSelect_TieBreakSmallestTreeID(t *testing.T) {
	// Two candidates equidistant (10m) from the cell centroid (10,10) at
	// g=20: the bbox is [0,0,10,10], so the single cell's centroid is
	// bbox min + g/2.
	candidates := []Candidate{
		{TreeID: 5, Point: geomutil.Point{X: 0, Y: 10}},
		{TreeID: 2, Point: geomutil.Point{X: 10, Y: 0}},
	}
	sel := Select(candidates, 20)
	byID := map[int64]Selection{}
	for _, s := range sel {
		byID[s.TreeID] = s
	}
	assert.True(t, byID[2].IsMother)
	assert.False(t, byID[5].IsMother)
}

func TestSelect_ConservationProperty(t *testing.T) {
	candidates := make([]Candidate, 0, 99)
	for i := 0; i < 99; i++ {
		candidates = append(candidates, Candidate{
			TreeID: int64(i + 1),
			Point:  geomutil.Point{X: float64(i % 11 * 7), Y: float64(i / 11 * 7)},
		})
	}
	sel := Select(candidates, 20)
	require := func(cond bool, msg string) {
		if !cond {
			t.Fatal(msg)
		}
	}
	require(len(sel) == 99, "every candidate must produce exactly one selection")

	motherCount := 0
	for _, s := range sel {
		if s.IsMother {
			motherCount++
		}
	}
	assert.Equal(t, OccupiedCellCount(sel), motherCount)
}

func TestSelect_OneMotherPerOccupiedCell(t *testing.T) {
	candidates := []Candidate{
		{TreeID: 1, Point: geomutil.Point{X: 1, Y: 1}},
		{TreeID: 2, Point: geomutil.Point{X: 2, Y: 2}},
		{TreeID: 3, Point: geomutil.Point{X: 50, Y: 50}},
	}
	sel := Select(candidates, 20)
	byCell := map[int][]Selection{}
	for _, s := range sel {
		byCell[s.CellID] = append(byCell[s.CellID], s)
	}
	for _, members := range byCell {
		mothers := 0
		for _, m := range members {
			if m.IsMother {
				mothers++
			}
		}
		assert.Equal(t, 1, mothers)
	}
}

func TestSelect_DefaultsGWhenNonPositive(t *testing.T) {
	candidates := []Candidate{{TreeID: 1, Point: geomutil.Point{X: 0, Y: 0}}}
	sel := Select(candidates, 0)
	assert.Len(t, sel, 1)
}

func TestSelect_TopRowPointClampsIntoLastRow(t *testing.T) {
	// Mirrors the existing right-edge column clamp: a point sitting on the
	// bbox's top edge must fall into the same last row as the rest of the
	// top row's points, not spill into a phantom extra row.
	g := 20.0
	candidates := []Candidate{
		{TreeID: 1, Point: geomutil.Point{X: 0, Y: 0}},
		{TreeID: 2, Point: geomutil.Point{X: 0, Y: 3 * g}}, // top edge of bbox
		{TreeID: 3, Point: geomutil.Point{X: 5, Y: 3 * g}}, // same top row, interior
	}
	sel := Select(candidates, g)
	byID := map[int64]Selection{}
	for _, s := range sel {
		byID[s.TreeID] = s
	}
	assert.Equal(t, byID[2].CellID, byID[3].CellID)
}

func TestSelect_SortedByTreeID(t *testing.T) {
	candidates := []Candidate{
		{TreeID: 9, Point: geomutil.Point{X: 1, Y: 1}},
		{TreeID: 3, Point: geomutil.Point{X: 2, Y: 2}},
		{TreeID: 6, Point: geomutil.Point{X: 3, Y: 3}},
	}
	sel := Select(candidates, 20)
	for i := 1; i < len(sel); i++ {
		assert.Less(t, sel[i-1].TreeID, sel[i].TreeID)
	}
}

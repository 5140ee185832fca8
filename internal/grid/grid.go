// Package grid implements C6, the Grid Retention Selector: partitions the
// inventory extent into a square metric grid and selects one retention
// ("mother") tree per occupied cell (spec §4.C6).
//
// The algorithm here is pure — it takes already-projected points (the
// caller, internal/inventory, projects them with internal/projection.ToUTM)
// and returns cell assignments. Keeping
// projection out of this package is what makes the conservation property
// (spec §8) and the "g=20 on 99 trees" seed scenario testable without a
// database.
package grid

import (
	"sort"

	"forest-analysis-core/internal/geomutil"
)

// Candidate is one eligible tree (DBH >= 10cm, per spec) with its
// projected position.
type Candidate struct {
	TreeID   int64
	Point    geomutil.Point
}

// Selection is the outcome for one candidate: whether it was chosen as the
// cell's mother tree, and which cell it falls in.
type Selection struct {
	TreeID     int64
	CellID     int
	IsMother   bool
}

// cellOf computes the row-major cell index of a point within a grid tiled
// from bbox with side g, per spec §4.C6 step 3 ("numbering cells row-major
// from the bottom-left").
func cellOf(p geomutil.Point, bbox geomutil.BBox, g float64, cols, rows int) int {
	col := int((p.X - bbox[0]) / g)
	row := int((p.Y - bbox[1]) / g)
	// A point exactly on the top/right edge of the bbox falls in the last
	// column/row rather than spilling into a phantom next cell.
	if col >= cols {
		col = cols - 1
	}
	if col < 0 {
		col = 0
	}
	if row >= rows {
		row = rows - 1
	}
	if row < 0 {
		row = 0
	}
	return row*cols + col
}

// Select runs the grid retention algorithm over a set of eligible
// candidates and a cell side length g (metres). Returns one Selection per
// candidate, covering both the chosen mother trees and the remaining
// (felling-eligible) trees.
//
// Tie-break for equidistant candidates within a cell: smallest TreeID
// (spec §9 Open Question, resolved here — documented in DESIGN.md).
func Select(candidates []Candidate, g float64) []Selection {
	if len(candidates) == 0 {
		return nil
	}
	if g <= 0 {
		g = 20
	}

	pts := make([]geomutil.Point, len(candidates))
	for i, c := range candidates {
		pts[i] = c.Point
	}
	bbox := geomutil.PointsBBox(pts)

	cols := int(bbox.Width()/g) + 1
	if cols < 1 {
		cols = 1
	}
	rows := int(bbox.Height()/g) + 1
	if rows < 1 {
		rows = 1
	}

	type cellMember struct {
		idx int // index into candidates
	}
	cells := make(map[int][]cellMember)
	for i, c := range candidates {
		cell := cellOf(c.Point, bbox, g, cols, rows)
		cells[cell] = append(cells[cell], cellMember{idx: i})
	}

	motherOf := make(map[int]int64, len(cells)) // cellID -> treeID chosen
	for cellID, members := range cells {
		col := cellID % cols
		row := cellID / cols
		centroid := geomutil.Point{
			X: bbox[0] + (float64(col)+0.5)*g,
			Y: bbox[1] + (float64(row)+0.5)*g,
		}

		bestIdx := members[0].idx
		bestDist := geomutil.EuclideanDistance(centroid, candidates[bestIdx].Point)
		for _, m := range members[1:] {
			d := geomutil.EuclideanDistance(centroid, candidates[m.idx].Point)
			if d < bestDist || (d == bestDist && candidates[m.idx].TreeID < candidates[bestIdx].TreeID) {
				bestDist = d
				bestIdx = m.idx
			}
		}
		motherOf[cellID] = candidates[bestIdx].TreeID
	}

	out := make([]Selection, 0, len(candidates))
	for _, c := range candidates {
		cell := cellOf(c.Point, bbox, g, cols, rows)
		out = append(out, Selection{
			TreeID:   c.TreeID,
			CellID:   cell,
			IsMother: motherOf[cell] == c.TreeID,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TreeID < out[j].TreeID })
	return out
}

// OccupiedCellCount returns the number of distinct cells containing at
// least one candidate in a selection result — equivalently, the number of
// mother trees (spec §8 "|Mother| equals the number of occupied grid cells").
func OccupiedCellCount(sel []Selection) int {
	cells := make(map[int]struct{})
	for _, s := range sel {
		cells[s.CellID] = struct{}{}
	}
	return len(cells)
}

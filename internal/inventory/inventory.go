// Package inventory wires C2/C5/C6 together over a validated row set: it
// is the "process an Inventory" half of spec §6's external interface,
// sitting between C4's NormalizedRow output and C10's persistence layer.
package inventory

import (
	"forest-analysis-core/internal/geomutil"
	"forest-analysis-core/internal/grid"
	"forest-analysis-core/internal/model"
	"forest-analysis-core/internal/projection"
	"forest-analysis-core/internal/species"
	"forest-analysis-core/internal/validator"
	"forest-analysis-core/internal/volume"
)

// Processor computes derived per-tree volumes and grid-retention
// classification from a validator's normalised rows.
type Processor struct {
	Species *species.Table
}

// Process runs C5 (volume) over every row and C6 (grid retention) over the
// non-seedling subset, returning fully populated Tree records plus the
// Inventory-level summary spec §3 names.
func (p *Processor) Process(rows []validator.NormalizedRow, gridSpacingM float64) ([]model.Tree, model.Inventory) {
	trees := make([]model.Tree, len(rows))
	candidates := make([]grid.Candidate, 0, len(rows))

	for i, r := range rows {
		sp, ok := p.Species.ByCode(r.SpeciesCode)
		if !ok {
			sp = &species.Species{}
		}
		out := volume.Compute(sp, r.DiameterCm, r.HeightM)

		t := model.Tree{
			RowNumber:     r.RowNumber,
			SpeciesCode:   r.SpeciesCode,
			DBHCm:         r.DiameterCm,
			HeightM:       r.HeightM,
			HasHeight:     r.HasHeight,
			Class:         r.Class,
			LocationWGS84: r.Location,

			StemM3:         out.StemM3,
			BranchM3:       out.BranchM3,
			TreeM3:         out.TreeM3,
			GrossM3:        out.GrossM3,
			NetM3:          out.NetM3,
			NetCft:         out.NetCft,
			FirewoodM3:     out.FirewoodM3,
			FirewoodChatta: out.FirewoodChatta,
		}

		if out.IsSeedling {
			t.Classification = model.TreeSeedling
		} else {
			t.ID = int64(i)
			zone := projection.ZoneFor(r.Location.X)
			easting, northing := projection.ToUTM(r.Location.X, r.Location.Y, zone)
			candidates = append(candidates, grid.Candidate{
				TreeID: t.ID,
				Point:  geomutil.Point{X: easting, Y: northing},
			})
		}
		trees[i] = t
	}

	selections := grid.Select(candidates, gridSpacingM)
	selByID := make(map[int64]grid.Selection, len(selections))
	for _, s := range selections {
		selByID[s.TreeID] = s
	}

	var summary model.Inventory
	for i := range trees {
		t := &trees[i]
		if t.Classification == model.TreeSeedling {
			summary.SeedlingCount++
			continue
		}
		sel, ok := selByID[t.ID]
		if !ok {
			continue
		}
		t.GridCellID = sel.CellID
		t.HasGridCell = true
		if sel.IsMother {
			t.Classification = model.TreeMother
			summary.MotherCount++
		} else {
			t.Classification = model.TreeFelling
			summary.FellingCount++
		}
		summary.TotalStemM3 += t.StemM3
		summary.TotalNetM3 += t.NetM3
		summary.TotalFirewoodM3 += t.FirewoodM3
	}
	summary.TreeCount = len(trees)
	summary.GridSpacingM = gridSpacingM

	return trees, summary
}

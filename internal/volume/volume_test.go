package volume

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"forest-analysis-core/internal/species"
)

func sampleSpecies() *species.Species {
	return &species.Species{
		Code:          1,
		A:             -2.3,
		B:             1.8,
		C:             1.1,
		A1:            0.15,
		B1:            0.85,
		S:             0.25,
		M:             0.02,
		BG:            0.08,
		TypicalHDLow:  60,
		TypicalHDHigh: 80,
	}
}

func TestCompute_NonSeedling(t *testing.T) {
	sp := sampleSpecies()
	out := Compute(sp, 40, 18)
	assert.False(t, out.IsSeedling)
	assert.Greater(t, out.StemM3, 0.0)
	assert.InDelta(t, out.StemM3+out.BranchM3, out.TreeM3, 1e-9)
	assert.Greater(t, out.GrossM3, out.NetM3)
	assert.InDelta(t, out.NetM3*cftPerCubicMetre, out.NetCft, 1e-6)
	assert.InDelta(t, out.FirewoodM3*chattaPerCubicMetre, out.FirewoodChatta, 1e-6)
	assert.GreaterOrEqual(t, out.FirewoodM3, 0.0)
}

func TestCompute_Seedling_ZeroesHarvestableOutputs(t *testing.T) {
	sp := sampleSpecies()
	out := Compute(sp, 5, 0)
	assert.True(t, out.IsSeedling)
	assert.Equal(t, 0.0, out.NetM3)
	assert.Equal(t, 0.0, out.NetCft)
	assert.Equal(t, 0.0, out.GrossM3)
	assert.Greater(t, out.StemM3, 0.0)
}

func TestCompute_SeedlingCutoffBoundary(t *testing.T) {
	sp := sampleSpecies()
	assert.True(t, Compute(sp, 9.9, 5).IsSeedling)
	assert.False(t, Compute(sp, 10.0, 5).IsSeedling)
}

func TestCompute_Deterministic(t *testing.T) {
	sp := sampleSpecies()
	a := Compute(sp, 33.3, 15.5)
	b := Compute(sp, 33.3, 15.5)
	assert.Equal(t, a, b)
}

func TestSeedlingDefaultHeight_FallbackRatio(t *testing.T) {
	sp := &species.Species{A: -2, B: 1.5, C: 1, S: 0.2, A1: 0.1, B1: 0.8}
	h := seedlingDefaultHeight(sp, 5)
	assert.True(t, h >= 1.3)
}

func TestSeedlingDefaultHeight_MinimumClamp(t *testing.T) {
	sp := &species.Species{TypicalHDLow: 1, TypicalHDHigh: 1}
	h := seedlingDefaultHeight(sp, 1)
	assert.InDelta(t, 1.3, h, 1e-9)
}

func TestCompute_TopAndQualityRatiosAreApplied(t *testing.T) {
	withRatios := sampleSpecies()
	withoutRatios := sampleSpecies()
	withoutRatios.M = 0
	withoutRatios.BG = 0

	a := Compute(withRatios, 40, 18)
	b := Compute(withoutRatios, 40, 18)

	assert.NotEqual(t, a.GrossM3, b.GrossM3)
	assert.Greater(t, a.GrossM3, b.GrossM3)

	stem := a.StemM3
	branch := a.BranchM3
	top := stem * withRatios.M
	wantGross := (stem + branch + top) * (1 + withRatios.A1) * (1 + withRatios.BG)
	assert.InDelta(t, wantGross, a.GrossM3, 1e-9)
}

func TestCompute_FirewoodNeverNegative(t *testing.T) {
	sp := &species.Species{A: -1, B: 1, C: 1, A1: 0, B1: 1.5, S: 0}
	out := Compute(sp, 40, 20)
	assert.False(t, math.Signbit(out.FirewoodM3))
	assert.Equal(t, 0.0, out.FirewoodM3)
}

package projection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZoneFor(t *testing.T) {
	assert.Equal(t, Zone44N, ZoneFor(83.9))
	assert.Equal(t, Zone45N, ZoneFor(87.0))
	assert.Equal(t, Zone45N, ZoneFor(88.1))
}

func TestToUTM_KathmanduApproximate(t *testing.T) {
	// Kathmandu, roughly 85.324E 27.7172N (ZoneFor puts it in 44N), projected
	// into zone 45N: easting is near 335,000m with this formula's conventions.
	e, n := ToUTM(85.324, 27.7172, Zone45N)
	assert.InDelta(t, 335000, e, 20000)
	assert.InDelta(t, 3066000, n, 20000)
}

func TestToUTM_EastingIncreasesEastward(t *testing.T) {
	e1, _ := ToUTM(85.0, 27.7, Zone45N)
	e2, _ := ToUTM(85.5, 27.7, Zone45N)
	assert.Less(t, e1, e2)
}

func TestToUTM_NorthingIncreasesNorthward(t *testing.T) {
	_, n1 := ToUTM(85.0, 27.0, Zone45N)
	_, n2 := ToUTM(85.0, 27.5, Zone45N)
	assert.Less(t, n1, n2)
}

func TestToUTM_CentralMeridianNearFalseEasting(t *testing.T) {
	e, _ := ToUTM(Zone45N.CentralMeridian, 27.7, Zone45N)
	assert.InDelta(t, 500000.0, e, 1000.0)
}

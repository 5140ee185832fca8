package crsdetect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forest-analysis-core/internal/coreerr"
)

func TestDetect_WGS84Geographic(t *testing.T) {
	xs := []float64{83.9, 84.1, 85.3}
	ys := []float64{27.7, 28.0, 28.2}
	r, err := Detect(xs, ys)
	require.NoError(t, err)
	assert.Equal(t, WGS84Geographic, r.CRS)
	assert.Equal(t, High, r.Confidence)
	assert.False(t, r.Swapped)
}

func TestDetect_Swapped(t *testing.T) {
	xs := []float64{27.7, 28.0}
	ys := []float64{83.9, 84.1}
	r, err := Detect(xs, ys)
	require.NoError(t, err)
	assert.Equal(t, Swapped, r.CRS)
	assert.True(t, r.Swapped)
}

func TestDetect_UTM44NAnd45N(t *testing.T) {
	r, err := Detect([]float64{300_000, 310_000}, []float64{3_000_000, 3_010_000})
	require.NoError(t, err)
	assert.Equal(t, UTM44N, r.CRS)

	r, err = Detect([]float64{700_000, 710_000}, []float64{3_000_000, 3_010_000})
	require.NoError(t, err)
	assert.Equal(t, UTM45N, r.CRS)
}

func TestDetect_Unknown(t *testing.T) {
	r, err := Detect([]float64{1, 2}, []float64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, Unknown, r.CRS)
	assert.Equal(t, Low, r.Confidence)
}

func TestDetect_InvalidInput(t *testing.T) {
	_, err := Detect(nil, nil)
	require.Error(t, err)
	assert.True(t, coreerr.Is(err, coreerr.KindInvalidInput))

	_, err = Detect([]float64{1}, []float64{1, 2})
	require.Error(t, err)
}

func TestSwap_Involution(t *testing.T) {
	xs := []float64{27.7, 28.0, 28.2}
	ys := []float64{83.9, 84.1, 85.3}

	sx, sy := Swap(xs, ys)
	bx, by := Swap(sx, sy)

	assert.Equal(t, xs, bx)
	assert.Equal(t, ys, by)
}

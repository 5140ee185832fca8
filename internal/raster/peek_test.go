package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"forest-analysis-core/internal/coreerr"
)

func TestPeekGeometry_ValidPolygon(t *testing.T) {
	err := peekGeometry(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`)
	assert.NoError(t, err)
}

func TestPeekGeometry_ValidMultiPolygon(t *testing.T) {
	err := peekGeometry(`{"type":"MultiPolygon","coordinates":[]}`)
	assert.NoError(t, err)
}

func TestPeekGeometry_InvalidJSON(t *testing.T) {
	err := peekGeometry(`not json`)
	assert.Error(t, err)
	assert.True(t, coreerr.Is(err, coreerr.KindInvalidInput))
}

func TestPeekGeometry_WrongType(t *testing.T) {
	err := peekGeometry(`{"type":"Point","coordinates":[0,0]}`)
	assert.Error(t, err)
	assert.True(t, coreerr.Is(err, coreerr.KindInvalidInput))
}

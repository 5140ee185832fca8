package diameter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect_NameHints(t *testing.T) {
	tests := []struct {
		name     string
		column   string
		samples  []float64
		wantType Type
		wantConf Confidence
	}{
		{"girth hint", "GBH (cm)", []float64{40, 42}, Girth, High},
		{"circumference hint", "circumference_cm", []float64{40}, Girth, High},
		{"dbh hint", "DBH_cm", []float64{200}, Diameter, High},
		{"diameter hint", "Diameter", []float64{200}, Diameter, High},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Detect(tt.samples, tt.column)
			assert.Equal(t, tt.wantType, r.Type)
			assert.Equal(t, tt.wantConf, r.Confidence)
		})
	}
}

func TestDetect_ValueBased(t *testing.T) {
	r := Detect([]float64{120, 130, 150}, "col_1")
	assert.Equal(t, Girth, r.Type)
	assert.Equal(t, High, r.Confidence)

	r = Detect([]float64{20, 25, 30}, "col_2")
	assert.Equal(t, Diameter, r.Type)
	assert.Equal(t, High, r.Confidence)
}

func TestDetect_AmbiguousRange(t *testing.T) {
	r := Detect([]float64{60, 65, 70, 90, 95}, "col_3")
	assert.Equal(t, Medium, r.Confidence)
}

func TestDetect_NoSamples(t *testing.T) {
	r := Detect(nil, "col")
	assert.Equal(t, Diameter, r.Type)
	assert.Equal(t, Low, r.Confidence)
	assert.True(t, r.RequiresConfirmation)
}

func TestConverter(t *testing.T) {
	girth := Result{Type: Girth}
	require.InDelta(t, 10.0, girth.Converter(10*3.14159265358979), 1e-6)

	dia := Result{Type: Diameter}
	assert.Equal(t, 25.0, dia.Converter(25))
}

package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/DBSearch/pkg/core"
)

func peaks(pairs ...float64) []core.Peak {
	out := make([]core.Peak, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, core.Peak{MZ: pairs[i], Intensity: pairs[i+1]})
	}
	return out
}

func mzs(spec *core.Spectrum) []float64 {
	out := make([]float64, len(spec.Peaks))
	for i, p := range spec.Peaks {
		out[i] = p.MZ
	}
	return out
}

func TestApplyTopN(t *testing.T) {
	spec := &core.Spectrum{Peaks: peaks(100, 5, 200, 50, 300, 20, 400, 40)}
	cfg := Config{TopN: 2}

	require.NoError(t, cfg.Apply(spec))
	assert.Equal(t, []float64{200, 400}, mzs(spec), "kept peaks are returned in m/z order")
}

func TestApplyIntensityCutoff(t *testing.T) {
	spec := &core.Spectrum{Peaks: peaks(100, 5, 200, 100, 300, 10, 400, 9)}
	cfg := Config{IntensityCutoff: 10}

	require.NoError(t, cfg.Apply(spec))
	assert.Equal(t, []float64{200, 300}, mzs(spec))
}

func TestApplyRange(t *testing.T) {
	spec := &core.Spectrum{Peaks: peaks(100, 1, 200, 1, 300, 1, 400, 1)}
	cfg := Config{MinMZ: 200, MaxMZ: 300}

	require.NoError(t, cfg.Apply(spec))
	assert.Equal(t, []float64{200, 300}, mzs(spec), "range bounds are inclusive")

	spec = &core.Spectrum{Peaks: peaks(100, 1, 200, 1)}
	cfg = Config{MinMZ: 150}
	require.NoError(t, cfg.Apply(spec))
	assert.Equal(t, []float64{200}, mzs(spec), "zero max means unbounded")
}

func TestApplyTopNPerWindow(t *testing.T) {
	spec := &core.Spectrum{Peaks: peaks(
		100, 1, 110, 9, 150, 5, // window 0
		210, 3, 250, 7, // window 1
		450, 2, // window 3
	)}
	cfg := Config{TopNPerWindow: 2, WindowWidth: 100}

	require.NoError(t, cfg.Apply(spec))
	assert.Equal(t, []float64{110, 150, 210, 250, 450}, mzs(spec))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative top-n", Config{TopN: -1}},
		{"cutoff above 100", Config{IntensityCutoff: 101}},
		{"empty range", Config{MinMZ: 500, MaxMZ: 100}},
		{"window without width", Config{TopNPerWindow: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
			spec := &core.Spectrum{Peaks: peaks(100, 1)}
			assert.Error(t, tt.cfg.Apply(spec))
		})
	}

	var zero Config
	assert.NoError(t, zero.Validate())
}

func TestRemoveZeroIntensityPeaks(t *testing.T) {
	spec := &core.Spectrum{Peaks: peaks(100, 0, 200, 3, 300, -1)}
	RemoveZeroIntensityPeaks(spec)
	assert.Equal(t, []float64{200}, mzs(spec))
}

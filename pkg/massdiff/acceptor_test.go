package massdiff

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDotNotches(t *testing.T) {
	a := NewDot("twoNotch", []float64{0, 1}, AbsoluteTolerance(0.01))

	got := a.IntervalsFromTheoretical(1000.0)
	require.Len(t, got, 2)

	centers := []float64{1000.0, 1001.0}
	for i, iv := range got {
		assert.Equal(t, i, iv.Notch)
		assert.InDelta(t, 0.02, iv.Width(), 1e-9)
		assert.InDelta(t, centers[i], (iv.Min+iv.Max)/2, 1e-9)
	}
	assert.Equal(t, 2, a.NumNotches())
}

func TestDotAccepts(t *testing.T) {
	a := NewDot("twoNotch", []float64{0, 1}, AbsoluteTolerance(0.01))

	tests := []struct {
		name      string
		observed  float64
		wantNotch int
		wantOK    bool
	}{
		{"exact", 1000.0, 0, true},
		{"within first", 1000.005, 0, true},
		{"second notch", 1001.003, 1, true},
		{"between notches", 1000.5, -1, false},
		{"below", 999.9, -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notch, ok := a.Accepts(tt.observed, 1000.0)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantNotch, notch)
		})
	}
}

func TestObservedIntervalsInvertTheoretical(t *testing.T) {
	acceptors := []Acceptor{
		NewDot("d", []float64{0, 1.003355}, AbsoluteTolerance(0.02)),
		NewIntervalAcceptor("i", []Interval{{Min: -0.5, Max: 0.5}, {Min: 15.9, Max: 16.1}}),
	}

	for _, a := range acceptors {
		t.Run(a.Name(), func(t *testing.T) {
			const observed = 1500.0
			for _, iv := range a.IntervalsFromObserved(observed) {
				mid := (iv.Min + iv.Max) / 2
				notch, ok := a.Accepts(observed, mid)
				require.True(t, ok, "theoretical %v should explain %v", mid, observed)
				assert.Equal(t, iv.Notch, notch)
			}
		})
	}
}

func TestIntervalAcceptor(t *testing.T) {
	a := NewIntervalAcceptor("win", []Interval{{Min: -1, Max: 1}, {Min: 2, Max: 3}})

	fromTheo := a.IntervalsFromTheoretical(500)
	require.Len(t, fromTheo, 2)
	assert.Equal(t, Interval{Min: 499, Max: 501}, fromTheo[0].Interval)
	assert.Equal(t, Interval{Min: 502, Max: 503}, fromTheo[1].Interval)

	fromObs := a.IntervalsFromObserved(500)
	assert.Equal(t, Interval{Min: 499, Max: 501}, fromObs[0].Interval)
	assert.Equal(t, Interval{Min: 497, Max: 498}, fromObs[1].Interval)

	notch, ok := a.Accepts(502.5, 500)
	assert.True(t, ok)
	assert.Equal(t, 1, notch)

	_, ok = a.Accepts(501.5, 500)
	assert.False(t, ok)
}

func TestClosedBoundaries(t *testing.T) {
	a := SingleAbsoluteAroundZero(0.5)
	iv := a.IntervalsFromTheoretical(1000)[0]

	_, ok := a.Accepts(iv.Max, 1000)
	assert.True(t, ok, "interval maximum must be accepted")
	_, ok = a.Accepts(iv.Min, 1000)
	assert.True(t, ok, "interval minimum must be accepted")
	assert.True(t, iv.Contains(iv.Max))
	assert.False(t, iv.Contains(math.Nextafter(iv.Max, math.Inf(1))))
}

func TestOpen(t *testing.T) {
	var a Acceptor = Open{}
	notch, ok := a.Accepts(100, 5000)
	assert.True(t, ok)
	assert.Equal(t, 0, notch)

	iv := a.IntervalsFromObserved(1234)
	require.Len(t, iv, 1)
	assert.True(t, math.IsInf(iv[0].Min, -1))
	assert.True(t, math.IsInf(iv[0].Max, 1))
}

func TestPpmTolerance(t *testing.T) {
	tol := PPMTolerance(10)
	r := tol.Range(1000)
	assert.InDelta(t, 999.99, r.Min, 1e-9)
	assert.InDelta(t, 1000.01, r.Max, 1e-9)
	assert.True(t, tol.Within(1000.009, 1000))
	assert.False(t, tol.Within(1000.011, 1000))

	inv := tol.Inverse(1000)
	assert.True(t, tol.Within(1000, inv.Max-1e-9))
	assert.True(t, tol.Within(1000, inv.Min+1e-9))
	assert.False(t, tol.Within(1000, inv.Max+1e-6))
	assert.False(t, tol.Within(1000, inv.Min-1e-6))
	assert.Greater(t, inv.Max, tol.Range(1000).Max, "ppm is relative to the theoretical mass")

	abs := AbsoluteTolerance(0.5).Inverse(100)
	assert.Equal(t, Interval{Min: 99.5, Max: 100.5}, abs)
}

func TestParseTolerance(t *testing.T) {
	tests := []struct {
		in      string
		want    Tolerance
		wantErr bool
	}{
		{"20 ppm", PPMTolerance(20), false},
		{"0.01 Da", AbsoluteTolerance(0.01), false},
		{"5 PPM", PPMTolerance(5), false},
		{"5", Tolerance{}, true},
		{"-1 ppm", Tolerance{}, true},
		{"1 furlong", Tolerance{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTolerance(tt.in)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidTolerance))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		text       string
		wantName   string
		wantNotch  int
		observed   float64
		theo       float64
		wantAccept bool
	}{
		{"5ppm ppmAroundZero 5", "5ppm", 1, 1000.004, 1000, true},
		{"3mm dot 5 ppm 0,1.0029,2.0052", "3mm", 3, 1002.0052, 1000, true},
		{"3mm dot 0.01 da 0,1", "3mm", 2, 1000.5, 1000, false},
		{"wide interval [-187;200]", "wide", 1, 1150, 1000, true},
		{"open OpenSearch", "OpenSearch", 1, 1, 5000, true},
		{"tight daltonsAroundZero 0.5", "tight", 1, 1000.4, 1000, true},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			a, err := Parse(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, a.Name())
			assert.Equal(t, tt.wantNotch, a.NumNotches())
			_, ok := a.Accepts(tt.observed, tt.theo)
			assert.Equal(t, tt.wantAccept, ok)
		})
	}
}

func TestParseErrors(t *testing.T) {
	bad := []string{
		"",
		"onlyname",
		"x dot 5 ppm",
		"x dot 5 furlong 0",
		"x dot 5 ppm a,b",
		"x interval [1;0]",
		"x interval [1,2]",
		"x ppmAroundZero",
		"x ppmAroundZero -3",
		"x sideways 1",
	}

	for _, text := range bad {
		_, err := Parse(text)
		assert.ErrorIs(t, err, ErrInvalidSearchMode, "input %q", text)
	}
}

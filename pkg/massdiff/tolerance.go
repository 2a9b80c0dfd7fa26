// Package massdiff decides which precursor masses may be paired. An Acceptor maps a
// mass to the closed intervals its counterpart may fall in, each tagged with the
// notch of the rule that produced it.
package massdiff

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrInvalidTolerance is returned when a tolerance string cannot be parsed.
	ErrInvalidTolerance = errors.New("invalid tolerance")
	// ErrInvalidSearchMode is returned when a search mode string cannot be parsed.
	ErrInvalidSearchMode = errors.New("invalid search mode")
)

// Unit of a Tolerance.
type Unit int

const (
	// PPM tolerances scale with the mass they are applied to.
	PPM Unit = iota
	// Absolute tolerances are in Daltons.
	Absolute
)

// Tolerance is a symmetric mass tolerance in ppm or Daltons.
type Tolerance struct {
	Unit  Unit
	Value float64
}

// PPMTolerance returns a parts-per-million tolerance.
func PPMTolerance(v float64) Tolerance { return Tolerance{Unit: PPM, Value: v} }

// AbsoluteTolerance returns a tolerance in Daltons.
func AbsoluteTolerance(v float64) Tolerance { return Tolerance{Unit: Absolute, Value: v} }

// ParseTolerance parses strings like "20 ppm" or "0.01 Da".
func ParseTolerance(s string) (Tolerance, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return Tolerance{}, fmt.Errorf("%w: '%s', expected '<value> <ppm|Da>'", ErrInvalidTolerance, s)
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || v < 0 || math.IsNaN(v) {
		return Tolerance{}, fmt.Errorf("%w: bad value '%s'", ErrInvalidTolerance, fields[0])
	}
	unit, err := parseUnit(fields[1])
	if err != nil {
		return Tolerance{}, err
	}
	return Tolerance{Unit: unit, Value: v}, nil
}

func parseUnit(s string) (Unit, error) {
	switch strings.ToLower(s) {
	case "ppm":
		return PPM, nil
	case "da", "dalton", "daltons", "absolute":
		return Absolute, nil
	default:
		return PPM, fmt.Errorf("%w: unknown unit '%s'", ErrInvalidTolerance, s)
	}
}

func (t Tolerance) String() string {
	if t.Unit == PPM {
		return fmt.Sprintf("%g ppm", t.Value)
	}
	return fmt.Sprintf("%g Da", t.Value)
}

// halfWidth returns the tolerance in Daltons around mass.
func (t Tolerance) halfWidth(mass float64) float64 {
	if t.Unit == PPM {
		return math.Abs(mass) * t.Value / 1e6
	}
	return t.Value
}

// Min returns the lowest mass within tolerance of mass.
func (t Tolerance) Min(mass float64) float64 { return mass - t.halfWidth(mass) }

// Max returns the highest mass within tolerance of mass.
func (t Tolerance) Max(mass float64) float64 { return mass + t.halfWidth(mass) }

// Range returns the closed interval within tolerance of mass.
func (t Tolerance) Range(mass float64) Interval {
	w := t.halfWidth(mass)
	return Interval{Min: mass - w, Max: mass + w}
}

// Inverse returns the closed interval of theoretical masses t for which
// Within(experimental, t) holds.
func (t Tolerance) Inverse(experimental float64) Interval {
	if t.Unit != PPM {
		return Interval{Min: experimental - t.Value, Max: experimental + t.Value}
	}
	p := t.Value / 1e6
	if p >= 1 {
		return Interval{Min: experimental / (1 + p), Max: math.Inf(1)}
	}
	return Interval{Min: experimental / (1 + p), Max: experimental / (1 - p)}
}

// Within reports whether an experimental mass matches a theoretical one.
// PPM errors are relative to the theoretical mass.
func (t Tolerance) Within(experimental, theoretical float64) bool {
	return math.Abs(experimental-theoretical) <= t.halfWidth(theoretical)
}

// Interval is a closed mass range.
type Interval struct {
	Min, Max float64
}

// Contains reports whether Min <= m <= Max.
func (i Interval) Contains(m float64) bool {
	return m >= i.Min && m <= i.Max
}

// Width returns Max - Min.
func (i Interval) Width() float64 {
	return i.Max - i.Min
}

// AllowedInterval is an interval produced by the rule identified by Notch.
type AllowedInterval struct {
	Interval
	Notch int
}

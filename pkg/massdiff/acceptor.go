package massdiff

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Acceptor is a precursor mass acceptance policy. Implementations hold no mutable
// state and are safe for concurrent use.
type Acceptor interface {
	// Name identifies the acceptor in results.
	Name() string
	// NumNotches returns how many distinct notches the acceptor can produce.
	NumNotches() int
	// Accepts reports the notch under which an observed precursor mass may be
	// explained by a theoretical one.
	Accepts(observed, theoretical float64) (notch int, ok bool)
	// IntervalsFromTheoretical returns where observed masses must fall for a
	// candidate of the given theoretical mass.
	IntervalsFromTheoretical(mass float64) []AllowedInterval
	// IntervalsFromObserved returns where theoretical masses must fall to explain
	// the given observed mass.
	IntervalsFromObserved(mass float64) []AllowedInterval
}

// Dot accepts observed masses within a tolerance of theoretical+shift for each
// configured shift; notch i belongs to shift i. PPM windows are relative to
// theoretical+shift, so observed-side intervals use the exact inverse.
type Dot struct {
	name   string
	shifts []float64
	tol    Tolerance
}

// NewDot returns a multi-notch acceptor.
func NewDot(name string, shifts []float64, tol Tolerance) *Dot {
	return &Dot{name: name, shifts: append([]float64(nil), shifts...), tol: tol}
}

// SingleAbsoluteAroundZero accepts masses within tol Daltons of each other.
func SingleAbsoluteAroundZero(tol float64) *Dot {
	return NewDot(fmt.Sprintf("%gdaltonsAroundZero", tol), []float64{0}, AbsoluteTolerance(tol))
}

// SinglePpmAroundZero accepts masses within tol ppm of each other.
func SinglePpmAroundZero(tol float64) *Dot {
	return NewDot(fmt.Sprintf("%gppmAroundZero", tol), []float64{0}, PPMTolerance(tol))
}

// Name returns the name the acceptor was created with.
func (d *Dot) Name() string { return d.name }

// NumNotches returns the number of shifts.
func (d *Dot) NumNotches() int { return len(d.shifts) }

// Accepts returns the first shift whose window around theoretical+shift holds
// observed.
func (d *Dot) Accepts(observed, theoretical float64) (int, bool) {
	for notch, shift := range d.shifts {
		if d.tol.Range(theoretical + shift).Contains(observed) {
			return notch, true
		}
	}
	return -1, false
}

// IntervalsFromTheoretical returns one tolerance window per shift around mass+shift.
func (d *Dot) IntervalsFromTheoretical(mass float64) []AllowedInterval {
	out := make([]AllowedInterval, len(d.shifts))
	for notch, shift := range d.shifts {
		out[notch] = AllowedInterval{Interval: d.tol.Range(mass + shift), Notch: notch}
	}
	return out
}

// IntervalsFromObserved returns, per shift, the theoretical masses whose window
// holds mass.
func (d *Dot) IntervalsFromObserved(mass float64) []AllowedInterval {
	out := make([]AllowedInterval, len(d.shifts))
	for notch, shift := range d.shifts {
		r := d.tol.Inverse(mass)
		out[notch] = AllowedInterval{Interval: Interval{Min: r.Min - shift, Max: r.Max - shift}, Notch: notch}
	}
	return out
}

// IntervalAcceptor accepts pairs whose observed-theoretical difference falls in
// one of the configured ranges; notch i belongs to range i.
type IntervalAcceptor struct {
	name   string
	ranges []Interval
}

// NewIntervalAcceptor returns an acceptor over explicit mass difference ranges.
func NewIntervalAcceptor(name string, ranges []Interval) *IntervalAcceptor {
	return &IntervalAcceptor{name: name, ranges: append([]Interval(nil), ranges...)}
}

// Name returns the name the acceptor was created with.
func (a *IntervalAcceptor) Name() string { return a.name }

// NumNotches returns the number of ranges.
func (a *IntervalAcceptor) NumNotches() int { return len(a.ranges) }

// Accepts returns the first range holding observed-theoretical.
func (a *IntervalAcceptor) Accepts(observed, theoretical float64) (int, bool) {
	for notch, r := range a.ranges {
		if (Interval{Min: theoretical + r.Min, Max: theoretical + r.Max}).Contains(observed) {
			return notch, true
		}
	}
	return -1, false
}

// IntervalsFromTheoretical returns each range shifted by mass.
func (a *IntervalAcceptor) IntervalsFromTheoretical(mass float64) []AllowedInterval {
	out := make([]AllowedInterval, len(a.ranges))
	for notch, r := range a.ranges {
		out[notch] = AllowedInterval{Interval: Interval{Min: mass + r.Min, Max: mass + r.Max}, Notch: notch}
	}
	return out
}

// IntervalsFromObserved returns, per range, the theoretical masses whose
// difference from mass falls in it.
func (a *IntervalAcceptor) IntervalsFromObserved(mass float64) []AllowedInterval {
	out := make([]AllowedInterval, len(a.ranges))
	for notch, r := range a.ranges {
		out[notch] = AllowedInterval{Interval: Interval{Min: mass - r.Max, Max: mass - r.Min}, Notch: notch}
	}
	return out
}

// Open accepts every pair under notch 0.
type Open struct{}

var everything = []AllowedInterval{{Interval: Interval{Min: math.Inf(-1), Max: math.Inf(1)}}}

// Name returns "OpenSearch".
func (Open) Name() string { return "OpenSearch" }

// NumNotches returns 1.
func (Open) NumNotches() int { return 1 }

// Accepts always returns notch 0.
func (Open) Accepts(_, _ float64) (int, bool) { return 0, true }

// IntervalsFromTheoretical returns the whole real line.
func (Open) IntervalsFromTheoretical(float64) []AllowedInterval {
	return append([]AllowedInterval(nil), everything...)
}

// IntervalsFromObserved returns the whole real line.
func (Open) IntervalsFromObserved(float64) []AllowedInterval {
	return append([]AllowedInterval(nil), everything...)
}

// Parse builds an acceptor from its text form:
//
//	<name> dot <tol> <ppm|da> <shift1,shift2,...>
//	<name> interval [min;max],[min;max]
//	<name> OpenSearch
//	<name> daltonsAroundZero <tol>
//	<name> ppmAroundZero <tol>
func Parse(text string) (Acceptor, error) {
	split := strings.Fields(text)
	if len(split) < 2 {
		return nil, fmt.Errorf("%w: '%s'", ErrInvalidSearchMode, text)
	}
	name := split[0]

	switch split[1] {
	case "dot":
		if len(split) != 5 {
			return nil, fmt.Errorf("%w: dot mode needs '<name> dot <tol> <unit> <shifts>'", ErrInvalidSearchMode)
		}
		tol, err := ParseTolerance(split[2] + " " + split[3])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSearchMode, err)
		}
		var shifts []float64
		for _, s := range strings.Split(split[4], ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad mass shift '%s'", ErrInvalidSearchMode, s)
			}
			shifts = append(shifts, v)
		}
		return NewDot(name, shifts, tol), nil

	case "interval":
		if len(split) != 3 {
			return nil, fmt.Errorf("%w: interval mode needs '<name> interval [min;max],...'", ErrInvalidSearchMode)
		}
		var ranges []Interval
		for _, s := range strings.Split(split[2], ",") {
			bounds := strings.Split(strings.Trim(s, "[]"), ";")
			if len(bounds) != 2 {
				return nil, fmt.Errorf("%w: bad interval '%s'", ErrInvalidSearchMode, s)
			}
			lo, err1 := strconv.ParseFloat(bounds[0], 64)
			hi, err2 := strconv.ParseFloat(bounds[1], 64)
			if err1 != nil || err2 != nil || lo > hi {
				return nil, fmt.Errorf("%w: bad interval '%s'", ErrInvalidSearchMode, s)
			}
			ranges = append(ranges, Interval{Min: lo, Max: hi})
		}
		return NewIntervalAcceptor(name, ranges), nil

	case "OpenSearch":
		return Open{}, nil

	case "daltonsAroundZero", "ppmAroundZero":
		if len(split) != 3 {
			return nil, fmt.Errorf("%w: '%s' needs a tolerance", ErrInvalidSearchMode, split[1])
		}
		v, err := strconv.ParseFloat(split[2], 64)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("%w: bad tolerance '%s'", ErrInvalidSearchMode, split[2])
		}
		if split[1] == "ppmAroundZero" {
			return NewDot(name, []float64{0}, PPMTolerance(v)), nil
		}
		return NewDot(name, []float64{0}, AbsoluteTolerance(v)), nil

	default:
		return nil, fmt.Errorf("%w: could not parse '%s'", ErrInvalidSearchMode, text)
	}
}

// Package filter provides peak filtering applied to query spectra before they
// are converted into mass-sorted scans.
package filter

import (
	"fmt"
	"sort"

	"github.com/ChrisMcGann/DBSearch/pkg/core"
)

// Config holds filtering configuration
type Config struct {
	TopN            int     // Keep only top N most intense peaks (0 = no limit)
	IntensityCutoff float64 // Keep only peaks above this % of base peak (0 = no cutoff)
	MinMZ           float64 // Drop peaks below this m/z (0 = no bound)
	MaxMZ           float64 // Drop peaks above this m/z (0 = no bound)
	TopNPerWindow   int     // Keep only the N most intense peaks per m/z window (0 = off)
	WindowWidth     float64 // Width of the TopNPerWindow windows in m/z
}

// Validate checks the configuration for impossible settings.
func (c *Config) Validate() error {
	switch {
	case c.TopN < 0:
		return fmt.Errorf("top-n must not be negative, got %d", c.TopN)
	case c.IntensityCutoff < 0 || c.IntensityCutoff > 100:
		return fmt.Errorf("intensity cutoff must be within [0, 100], got %v", c.IntensityCutoff)
	case c.MaxMZ != 0 && c.MaxMZ < c.MinMZ:
		return fmt.Errorf("m/z range [%v, %v] is empty", c.MinMZ, c.MaxMZ)
	case c.TopNPerWindow < 0:
		return fmt.Errorf("top-n per window must not be negative, got %d", c.TopNPerWindow)
	case c.TopNPerWindow > 0 && c.WindowWidth <= 0:
		return fmt.Errorf("window width must be positive when top-n per window is set")
	}
	return nil
}

// Apply applies all configured filters to a spectrum
func (c *Config) Apply(spec *core.Spectrum) error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.MinMZ > 0 || c.MaxMZ > 0 {
		c.filterByRange(spec)
	}

	// Apply intensity filters
	if c.IntensityCutoff > 0 {
		c.filterByIntensity(spec)
	}

	if c.TopNPerWindow > 0 {
		c.filterTopNPerWindow(spec)
	}

	// Apply top-N filter
	if c.TopN > 0 {
		c.filterTopN(spec)
	}

	// Ensure peaks are sorted after all filtering
	spec.SortPeaks()

	return nil
}

func (c *Config) filterByRange(spec *core.Spectrum) {
	var filtered []core.Peak
	for _, peak := range spec.Peaks {
		if peak.MZ < c.MinMZ {
			continue
		}
		if c.MaxMZ > 0 && peak.MZ > c.MaxMZ {
			continue
		}
		filtered = append(filtered, peak)
	}
	spec.Peaks = filtered
}

// filterByIntensity removes peaks below the intensity cutoff percentage
func (c *Config) filterByIntensity(spec *core.Spectrum) {
	if len(spec.Peaks) == 0 {
		return
	}

	// Find maximum intensity
	maxIntensity := 0.0
	for _, peak := range spec.Peaks {
		if peak.Intensity > maxIntensity {
			maxIntensity = peak.Intensity
		}
	}

	// Calculate threshold
	threshold := (c.IntensityCutoff / 100.0) * maxIntensity

	// Filter peaks
	var filtered []core.Peak
	for _, peak := range spec.Peaks {
		if peak.Intensity >= threshold {
			filtered = append(filtered, peak)
		}
	}

	spec.Peaks = filtered
}

// filterTopNPerWindow keeps the most intense peaks of each fixed-width m/z
// window, counted from the lowest peak.
func (c *Config) filterTopNPerWindow(spec *core.Spectrum) {
	if len(spec.Peaks) == 0 {
		return
	}
	spec.SortPeaks()

	origin := spec.Peaks[0].MZ
	var filtered []core.Peak
	start := 0
	for start < len(spec.Peaks) {
		window := int((spec.Peaks[start].MZ - origin) / c.WindowWidth)
		end := start + 1
		for end < len(spec.Peaks) && int((spec.Peaks[end].MZ-origin)/c.WindowWidth) == window {
			end++
		}
		filtered = append(filtered, topN(spec.Peaks[start:end], c.TopNPerWindow)...)
		start = end
	}
	spec.Peaks = filtered
}

// filterTopN keeps only the N most intense peaks
func (c *Config) filterTopN(spec *core.Spectrum) {
	if len(spec.Peaks) <= c.TopN {
		return
	}
	spec.Peaks = topN(spec.Peaks, c.TopN)
}

// topN returns a copy of the n most intense peaks. Equal intensities keep
// their m/z order.
func topN(peaks []core.Peak, n int) []core.Peak {
	sorted := make([]core.Peak, len(peaks))
	copy(sorted, peaks)
	if len(sorted) <= n {
		return sorted
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Intensity > sorted[j].Intensity
	})

	return sorted[:n]
}

// RemoveZeroIntensityPeaks removes peaks with zero or negative intensity
func RemoveZeroIntensityPeaks(spec *core.Spectrum) {
	var filtered []core.Peak
	for _, peak := range spec.Peaks {
		if peak.Intensity > 0 {
			filtered = append(filtered, peak)
		}
	}
	spec.Peaks = filtered
}

// Package mgf provides a streaming reader for Mascot Generic Format query
// spectra.
package mgf

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/DBSearch/pkg/core"
)

// Reader provides streaming access to MGF files
type Reader struct {
	scanner     *bufio.Scanner
	lineNum     int
	currentSpec *core.Spectrum
	err         error
}

// NewReader creates a new MGF reader
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &Reader{scanner: scanner}
}

// Next advances to the next spectrum. Returns false when no more spectra or error.
func (r *Reader) Next() bool {
	r.currentSpec = nil

	spec, err := r.readSpectrum()
	if err != nil {
		if err != io.EOF {
			r.err = err
		}
		return false
	}

	r.currentSpec = spec
	return true
}

// Spectrum returns the current spectrum
func (r *Reader) Spectrum() *core.Spectrum {
	return r.currentSpec
}

// Err returns any error encountered during reading
func (r *Reader) Err() error {
	return r.err
}

// readSpectrum reads one BEGIN IONS ... END IONS block
func (r *Reader) readSpectrum() (*core.Spectrum, error) {
	var spec *core.Spectrum

	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimSpace(r.scanner.Text())

		// Skip comments and empty lines
		if line == "" || line[0] == '#' || line[0] == ';' || line[0] == '!' {
			continue
		}

		if spec == nil {
			// Global parameters before the first block are ignored
			if strings.EqualFold(line, "BEGIN IONS") {
				spec = &core.Spectrum{
					SourceFormat: "mgf",
					Peaks:        []core.Peak{},
				}
			}
			continue
		}

		if strings.EqualFold(line, "END IONS") {
			return spec, nil
		}
		if strings.EqualFold(line, "BEGIN IONS") {
			return nil, fmt.Errorf("line %d: BEGIN IONS inside an open block", r.lineNum)
		}

		if key, value, ok := strings.Cut(line, "="); ok && !isNumeric(line[0]) {
			if err := parseHeader(spec, strings.ToUpper(key), value); err != nil {
				return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
			}
			continue
		}

		peak, err := parsePeak(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
		}
		spec.Peaks = append(spec.Peaks, peak)
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if spec != nil {
		return nil, fmt.Errorf("line %d: missing END IONS", r.lineNum)
	}
	return nil, io.EOF
}

func isNumeric(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+'
}

func parseHeader(spec *core.Spectrum, key, value string) error {
	switch key {
	case "TITLE":
		spec.Title = value

	case "PEPMASS":
		// PEPMASS carries the precursor m/z optionally followed by its intensity
		fields := strings.Fields(value)
		if len(fields) == 0 {
			return fmt.Errorf("empty PEPMASS")
		}
		mz, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return fmt.Errorf("invalid PEPMASS '%s': %w", value, err)
		}
		spec.PrecursorMZ = mz

	case "CHARGE":
		charge, err := parseCharge(value)
		if err != nil {
			return err
		}
		spec.Charge = charge

	case "RTINSECONDS":
		rt, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("invalid RTINSECONDS '%s': %w", value, err)
		}
		spec.RetentionTime = &rt

	case "SCANS":
		// Ranges such as "1043-1045" report the first scan
		first, _, _ := strings.Cut(strings.TrimSpace(value), "-")
		n, err := strconv.Atoi(first)
		if err != nil {
			return fmt.Errorf("invalid SCANS '%s': %w", value, err)
		}
		spec.ScanNumber = n

	case "SEQ":
		spec.Sequence = strings.TrimSpace(value)

	case "INSTRUMENT", "FRAGMENTATION":
		spec.FragmentationMode = strings.ToUpper(strings.TrimSpace(value))
	}
	return nil
}

// parseCharge reads the first charge of forms like "2+", "3-" or "2+ and 3+".
// Multiple charges leave the charge unknown so every hypothesis is searched.
func parseCharge(value string) (int, error) {
	value = strings.TrimSpace(value)
	if strings.Contains(value, "and") || strings.Contains(value, ",") {
		return 0, nil
	}
	negative := strings.HasSuffix(value, "-") || strings.HasPrefix(value, "-")
	charge, err := strconv.Atoi(strings.Trim(value, "+-"))
	if err != nil {
		return 0, fmt.Errorf("invalid CHARGE '%s': %w", value, err)
	}
	if negative {
		return -charge, nil
	}
	return charge, nil
}

// parsePeak parses "mz intensity [charge]"
func parsePeak(line string) (core.Peak, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return core.Peak{}, fmt.Errorf("invalid peak format, expected at least 2 fields")
	}

	mz, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return core.Peak{}, fmt.Errorf("invalid m/z value: %w", err)
	}

	intensity, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return core.Peak{}, fmt.Errorf("invalid intensity value: %w", err)
	}

	peak := core.Peak{MZ: mz, Intensity: intensity}
	if len(fields) >= 3 {
		if z, err := parseCharge(fields[2]); err == nil {
			peak.Charge = z
		}
	}
	return peak, nil
}

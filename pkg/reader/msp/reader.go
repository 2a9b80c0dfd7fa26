// Package msp provides a streaming reader for MSP spectra. Both library files
// ("Name: SEQUENCE/CHARGE") and plain query exports are accepted.
package msp

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/DBSearch/pkg/core"
)

// Reader provides streaming access to MSP format files
type Reader struct {
	scanner     *bufio.Scanner
	modDB       *core.ModDatabase
	lineNum     int
	currentSpec *core.Spectrum
	err         error
}

// NewReader creates a new MSP reader
func NewReader(r io.Reader, modDB *core.ModDatabase) *Reader {
	if modDB == nil {
		modDB = core.DefaultModDatabase()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &Reader{
		scanner: scanner,
		modDB:   modDB,
	}
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

// readSpectrum reads a single spectrum entry from the MSP file
func (r *Reader) readSpectrum() (*core.Spectrum, error) {
	spec := &core.Spectrum{
		SourceFormat: "msp",
		Peaks:        []core.Peak{},
	}

	var numPeaks int
	started := false
	inPeaks := false

	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimSpace(r.scanner.Text())

		// Skip empty lines between entries
		if line == "" {
			if inPeaks {
				return spec, nil
			}
			continue
		}

		if !inPeaks {
			key, value, ok := strings.Cut(line, ":")
			if !ok {
				return nil, fmt.Errorf("line %d: expected 'Key: value', got %q", r.lineNum, line)
			}
			value = strings.TrimSpace(value)
			started = true

			switch strings.ToLower(strings.TrimSpace(key)) {
			case "name":
				r.parseName(spec, value)
			case "mw":
				// Skip MW, the precursor comes from Parent or PrecursorMZ
			case "precursormz":
				mz, err := strconv.ParseFloat(value, 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: invalid precursor m/z: %w", r.lineNum, err)
				}
				spec.PrecursorMZ = mz
			case "charge":
				charge, err := parseCharge(value)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
				}
				spec.Charge = charge
			case "comment":
				r.parseComment(spec, value)
			case "num peaks", "numpeaks":
				n, err := strconv.Atoi(value)
				if err != nil {
					return nil, fmt.Errorf("line %d: invalid num peaks: %w", r.lineNum, err)
				}
				numPeaks = n
				inPeaks = true
				if numPeaks == 0 {
					return spec, nil
				}
			}
			continue
		}

		// Parse peak line
		peak, err := r.parsePeak(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
		}
		spec.Peaks = append(spec.Peaks, peak)

		// Check if we've read all peaks
		if len(spec.Peaks) >= numPeaks {
			return spec, nil
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	// If we have a partially read spectrum, return it
	if started {
		if inPeaks && len(spec.Peaks) < numPeaks {
			return nil, fmt.Errorf("line %d: expected %d peaks, found %d", r.lineNum, numPeaks, len(spec.Peaks))
		}
		return spec, nil
	}

	return nil, io.EOF
}

// parseName reads the library form "SEQUENCE/CHARGE". Anything else is kept
// as the spectrum title.
func (r *Reader) parseName(spec *core.Spectrum, name string) {
	seq, chargeStr, ok := strings.Cut(name, "/")
	if ok && isSequence(seq) {
		if charge, err := strconv.Atoi(chargeStr); err == nil && charge > 0 {
			spec.Sequence = seq
			spec.Charge = charge
			return
		}
	}
	spec.Title = name
}

func isSequence(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !core.IsKnownResidue(s[i]) {
			return false
		}
	}
	return true
}

// parseCharge accepts "2", "2+" and "+2".
func parseCharge(s string) (int, error) {
	charge, err := strconv.Atoi(strings.Trim(s, "+"))
	if err != nil {
		return 0, fmt.Errorf("invalid charge '%s': %w", s, err)
	}
	return charge, nil
}

// parseComment extracts metadata from Comment field
func (r *Reader) parseComment(spec *core.Spectrum, comment string) {
	// Comment format: key=value key=value...
	// Example: Parent=414.71 Mods=1/-1,R,TMT_Pro ModString=SEQUENCE//TMT_Pro@R-1/4 iRT=61.01

	fields := strings.Fields(comment)
	for _, field := range fields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}

		switch key {
		case "Parent":
			mz, err := strconv.ParseFloat(value, 64)
			if err == nil && spec.PrecursorMZ == 0 {
				spec.PrecursorMZ = mz
			}

		case "iRT", "RetentionTime", "RT":
			rt, err := strconv.ParseFloat(value, 64)
			if err == nil {
				spec.RetentionTime = &rt
			}

		case "Scan", "ScanNumber":
			if n, err := strconv.Atoi(value); err == nil {
				spec.ScanNumber = n
			}

		case "Fragmentation", "Frag":
			spec.FragmentationMode = strings.ToUpper(value)

		case "Mods":
			// Example: 1/-1,R,TMT_Pro
			r.parseMods(spec, value)

		case "ModString":
			// Example: EIESAGDITFNR//TMT_Pro@R-1/4
			r.parseModString(spec, value)
		}
	}
}

// parseMods parses modification information from Mods field
func (r *Reader) parseMods(spec *core.Spectrum, modsStr string) {
	// Format: count/position,AA,ModName
	parts := strings.Split(modsStr, ",")
	if len(parts) < 3 {
		return
	}
	modName := parts[2]

	_, posStr, ok := strings.Cut(parts[0], "/")
	if !ok {
		return
	}
	pos, err := strconv.Atoi(posStr)
	if err != nil {
		return
	}
	if mass, ok := r.modDB.GetMass(modName); ok {
		spec.Modifications = append(spec.Modifications, core.Modification{
			Mass:     mass,
			Position: pos,
			Name:     modName,
		})
	}
}

// parseModString parses modification information from ModString field
func (r *Reader) parseModString(spec *core.Spectrum, modString string) {
	// Format: SEQUENCE//Mod@Pos/Charge or SEQUENCE//Mod@Pos
	_, modPart, ok := strings.Cut(modString, "//")
	if !ok {
		return
	}
	// Remove trailing charge info if present
	modPart, _, _ = strings.Cut(modPart, "/")

	for _, modSpec := range strings.Split(modPart, ";") {
		modSpec = strings.TrimSpace(modSpec)
		modName, posStr, ok := strings.Cut(modSpec, "@")
		if !ok {
			continue
		}

		// Remove amino acid letter from position if present
		posStr = strings.TrimLeft(posStr, "ACDEFGHIKLMNPQRSTVWY")

		pos, err := strconv.Atoi(posStr)
		if err != nil {
			continue
		}

		if mass, ok := r.modDB.GetMass(modName); ok {
			spec.Modifications = append(spec.Modifications, core.Modification{
				Mass:     mass,
				Position: pos,
				Name:     modName,
			})
		}
	}
}

// parsePeak parses a single peak line (format: "mz\tintensity\t\"annotation\"")
func (r *Reader) parsePeak(line string) (core.Peak, error) {
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

	peak := core.Peak{
		MZ:        mz,
		Intensity: intensity,
	}

	// Parse annotation if present (third field, may be quoted)
	if len(fields) >= 3 {
		annotation := strings.Trim(fields[2], "\"")
		// Extract ion type and number (remove ppm error info)
		if idx := strings.Index(annotation, "/"); idx > 0 {
			annotation = annotation[:idx]
		}
		peak.Annotation = annotation
	}

	return peak, nil
}

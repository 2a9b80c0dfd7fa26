package core

import (
	"strings"
	"testing"
)

func TestParseSiteMod(t *testing.T) {
	db := DefaultModDatabase()

	tests := []struct {
		spec        string
		wantResidue byte
		wantMass    float64
		wantErr     bool
	}{
		{"Oxidation@M", 'M', 15.994915, false},
		{"Carbamidomethyl@C", 'C', 57.021464, false},
		{"Acetyl@Nterm", NTerm, 42.010565, false},
		{"Amidated@cterm", CTerm, -0.984016, false},
		{"79.966331@S", 'S', 79.966331, false},
		{"Unknown@M", 0, 0, true},
		{"Oxidation@X", 0, 0, true},
		{"Oxidation", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := db.ParseSiteMod(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSiteMod() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Residue != tt.wantResidue || got.Mass != tt.wantMass {
				t.Errorf("ParseSiteMod() = %+v", got)
			}
		})
	}
}

func TestParseModString(t *testing.T) {
	db := DefaultModDatabase()
	mods, err := db.ParseModString("Carbamidomethyl@C2;15.994915@8", "ACDEFGHMK")
	if err != nil {
		t.Fatalf("ParseModString() error = %v", err)
	}
	if len(mods) != 2 {
		t.Fatalf("expected 2 modifications, got %d", len(mods))
	}
	if mods[0].Position != 1 || mods[1].Position != 7 {
		t.Errorf("unexpected positions %d, %d", mods[0].Position, mods[1].Position)
	}
}

func TestLoadFromCSV(t *testing.T) {
	db := NewModDatabase()
	csv := "mod,massshift,aa\nTMTpro,304.207146,K\n"
	if err := db.LoadFromCSV(strings.NewReader(csv)); err != nil {
		t.Fatalf("LoadFromCSV() error = %v", err)
	}
	if mass, ok := db.GetMass("TMTpro"); !ok || mass != 304.207146 {
		t.Errorf("GetMass(TMTpro) = %v, %v", mass, ok)
	}

	if err := db.LoadFromCSV(strings.NewReader("mod,mass\nBad,abc\n")); err == nil {
		t.Error("expected error for invalid mass")
	}
}

// Package montage serves the built-in sensor layouts.
package montage

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"eegprep/domain/core"
	dommontage "eegprep/domain/montage"
)

// Names of the built-in layouts.
const (
	Biosemi32    = "biosemi32"
	Standard1020 = "standard_1020"
)

// polar gives an electrode's inclination from the vertex and its azimuth,
// both in degrees. Azimuth 0 points at the nose, positive toward the left ear.
type polar struct{ incl, azim float64 }

var positions1020 = map[string]polar{
	"Fpz": {92, 0}, "Fp1": {92, 18}, "Fp2": {92, -18},
	"AF7": {92, 36}, "AF8": {92, -36}, "AF3": {74, 33}, "AF4": {74, -33}, "AFz": {69, 0},
	"F7": {92, 54}, "F8": {92, -54}, "F5": {75, 49}, "F6": {75, -49},
	"F3": {60, 39}, "F4": {60, -39}, "F1": {50, 21}, "F2": {50, -21}, "Fz": {46, 0},
	"FT7": {92, 72}, "FT8": {92, -72}, "FC5": {72, 69}, "FC6": {72, -69},
	"FC3": {51, 62}, "FC4": {51, -62}, "FC1": {32, 45}, "FC2": {32, -45}, "FCz": {23, 0},
	"T7": {92, 90}, "T8": {92, -90}, "C5": {69, 90}, "C6": {69, -90},
	"C3": {46, 90}, "C4": {46, -90}, "C1": {23, 90}, "C2": {23, -90}, "Cz": {0, 0},
	"TP7": {92, 108}, "TP8": {92, -108}, "CP5": {72, 111}, "CP6": {72, -111},
	"CP3": {51, 118}, "CP4": {51, -118}, "CP1": {32, 135}, "CP2": {32, -135}, "CPz": {23, 180},
	"P7": {92, 126}, "P8": {92, -126}, "P5": {75, 131}, "P6": {75, -131},
	"P3": {60, 141}, "P4": {60, -141}, "P1": {50, 159}, "P2": {50, -159}, "Pz": {46, 180},
	"PO7": {92, 144}, "PO8": {92, -144}, "PO3": {74, 147}, "PO4": {74, -147}, "POz": {69, 180},
	"O1": {92, 162}, "O2": {92, -162}, "Oz": {92, 180}, "Iz": {115, 180},
	// legacy names
	"T3": {92, 90}, "T4": {92, -90}, "T5": {92, 126}, "T6": {92, -126},
}

var biosemi32Labels = []string{
	"Fp1", "AF3", "F7", "F3", "FC1", "FC5", "T7", "C3",
	"CP1", "CP5", "P7", "P3", "Pz", "PO3", "O1", "Oz",
	"O2", "PO4", "P4", "P8", "CP6", "CP2", "C4", "T8",
	"FC6", "FC2", "F4", "F8", "AF4", "Fp2", "Fz", "Cz",
}

// Builtin resolves the layouts compiled into the binary.
type Builtin struct{}

// NewBuiltin creates the built-in provider.
func NewBuiltin() *Builtin {
	return &Builtin{}
}

// Available lists the known layout names.
func (b *Builtin) Available() []string {
	out := []string{Biosemi32, Standard1020}
	sort.Strings(out)
	return out
}

// Montage returns a fresh copy of the named layout.
func (b *Builtin) Montage(name string) (*dommontage.Montage, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case Standard1020:
		m := &dommontage.Montage{Name: Standard1020, Positions: make(map[string]dommontage.Position, len(positions1020))}
		for label, p := range positions1020 {
			m.Positions[label] = toCartesian(p)
		}
		return m, nil
	case Biosemi32:
		m := &dommontage.Montage{Name: Biosemi32, Positions: make(map[string]dommontage.Position, len(biosemi32Labels))}
		for _, label := range biosemi32Labels {
			m.Positions[label] = toCartesian(positions1020[label])
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: %q (available: %s)", core.ErrMontageNotFound, name, strings.Join(b.Available(), ", "))
}

func toCartesian(p polar) dommontage.Position {
	incl := p.incl * math.Pi / 180
	azim := p.azim * math.Pi / 180
	return dommontage.Position{
		X: -math.Sin(incl) * math.Sin(azim),
		Y: math.Sin(incl) * math.Cos(azim),
		Z: math.Cos(incl),
	}
}

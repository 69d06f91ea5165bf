// Package montage maps channel labels to sensor positions.
package montage

import (
	"fmt"
	"sort"
	"strings"

	"eegprep/domain/core"
	"eegprep/domain/recording"
)

// Position is a sensor location on the unit sphere (head coordinates).
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Montage is a named channel -> position table.
type Montage struct {
	Name      string              `json:"name"`
	Positions map[string]Position `json:"positions"`
}

// Names returns the montage labels, sorted.
func (m *Montage) Names() []string {
	out := make([]string, 0, len(m.Positions))
	for n := range m.Positions {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Lookup finds a label, falling back to a case-insensitive match.
func (m *Montage) Lookup(name string) (Position, bool) {
	if p, ok := m.Positions[name]; ok {
		return p, true
	}
	for n, p := range m.Positions {
		if strings.EqualFold(n, name) {
			return p, true
		}
	}
	return Position{}, false
}

// Restrict drops every EEG channel the montage has no position for. MEG,
// reference and trigger channels are kept whatever their names. A recording
// without EEG channels comes back unchanged.
func (m *Montage) Restrict(rec *recording.Recording) (*recording.Recording, error) {
	drop := m.Missing(rec)
	if len(drop) > 0 && len(drop) == len(rec.IndicesOfType(recording.TypeEEG)) {
		return nil, fmt.Errorf("%w: montage %s matches none of the EEG channels", core.ErrInvalidChannel, m.Name)
	}
	if len(drop) == 0 {
		return rec.Clone(), nil
	}
	return rec.DropChannels(drop...)
}

// Missing lists EEG channels without a position.
func (m *Montage) Missing(rec *recording.Recording) []string {
	var out []string
	for _, ch := range rec.Channels {
		if ch.Type != recording.TypeEEG {
			continue
		}
		if _, ok := m.Lookup(ch.Name); !ok {
			out = append(out, ch.Name)
		}
	}
	return out
}

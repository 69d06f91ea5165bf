// Package decomposition describes a fitted set of spatial components and
// the scores used to pick components for exclusion.
package decomposition

import (
	"fmt"
	"math"
	"sort"

	"eegprep/domain/core"
)

// Decomposition is a fitted linear unmixing of the data channels.
type Decomposition struct {
	NComponents       int         `json:"n_components"`
	Method            string      `json:"method"`
	Channels          []string    `json:"channels"` // channels the components span
	Layout            []string    `json:"layout"`   // full channel list of the fit input
	Mean              []float64   `json:"mean"`
	Mixing            [][]float64 `json:"mixing"`   // channel x component
	Unmixing          [][]float64 `json:"unmixing"` // component x channel
	ExplainedVariance []float64   `json:"explained_variance"`
	Seed              int64       `json:"seed"`
	FitSamples        int         `json:"fit_samples"`
	FitEpochs         int         `json:"fit_epochs,omitempty"`
	Exclude           []int       `json:"exclude"`
}

// ValidateExclude checks every index is in range and unique.
func (d *Decomposition) ValidateExclude(idx []int) error {
	seen := make(map[int]bool, len(idx))
	for _, i := range idx {
		if i < 0 || i >= d.NComponents {
			return core.NewParameterError("exclude", i, fmt.Sprintf("component index must lie in [0, %d)", d.NComponents))
		}
		if seen[i] {
			return core.NewParameterError("exclude", i, "duplicate component index")
		}
		seen[i] = true
	}
	return nil
}

// WithExclude returns a copy carrying the validated exclusion set, sorted.
func (d *Decomposition) WithExclude(idx []int) (*Decomposition, error) {
	if err := d.ValidateExclude(idx); err != nil {
		return nil, err
	}
	out := *d
	out.Exclude = append([]int(nil), idx...)
	sort.Ints(out.Exclude)
	return &out, nil
}

// Compatible checks channels match the fit layout name for name.
func (d *Decomposition) Compatible(channels []string) error {
	if len(channels) != len(d.Layout) {
		return core.NewShapeError("decomposition channels", len(d.Layout), len(channels))
	}
	for i, name := range d.Layout {
		if channels[i] != name {
			return fmt.Errorf("%w: channel %d is %q, decomposition was fit on %q", core.ErrShapeMismatch, i, channels[i], name)
		}
	}
	return nil
}

// ReferenceKind is the artifact family a reference channel captures.
type ReferenceKind string

const (
	ReferenceEOG ReferenceKind = "eog"
	ReferenceECG ReferenceKind = "ecg"
)

// ReferenceScores scores each component against a reference channel.
// Indices are the components whose |score| crossed the threshold.
type ReferenceScores struct {
	Kind      ReferenceKind `json:"kind"`
	Channel   string        `json:"channel"`
	Threshold float64       `json:"threshold"`
	Scores    []float64     `json:"scores"`
	Indices   []int         `json:"indices"`
}

// Ranking orders components by |score| descending; ties go to the lower index.
func (s ReferenceScores) Ranking() []int {
	idx := make([]int, len(s.Scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return math.Abs(s.Scores[idx[a]]) > math.Abs(s.Scores[idx[b]])
	})
	return idx
}

// UnionIndices merges the flagged components of several score sets.
func UnionIndices(scores []ReferenceScores) []int {
	set := make(map[int]bool)
	for _, s := range scores {
		for _, i := range s.Indices {
			set[i] = true
		}
	}
	out := make([]int, 0, len(set))
	for i := range set {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

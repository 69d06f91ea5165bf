// Package events holds discrete event tables and annotation sets and the
// conversions between them.
package events

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"eegprep/domain/core"
)

// Event is a (sample, previous code, new code) triple. Sample counts from
// the start of acquisition, so it includes the recording's first sample.
type Event struct {
	Sample int `json:"sample"`
	Prev   int `json:"prev"`
	Code   int `json:"code"`
}

// Table is a time-ordered event sequence.
type Table []Event

// FindEvents returns onsets where the stim signal steps up to a higher
// non-zero value. A step down, such as 3 -> 2, is the offset of the
// previous event and is not reported. A non-zero first sample is not an
// event.
func FindEvents(stim []float64, firstSamp int) Table {
	var t Table
	prev := 0
	for i, v := range stim {
		cur := int(math.Round(v))
		if i > 0 && cur > prev && cur != 0 {
			t = append(t, Event{Sample: firstSamp + i, Prev: prev, Code: cur})
		}
		prev = cur
	}
	return t
}

// Validate checks that samples are non-decreasing.
func (t Table) Validate() error {
	for i := 1; i < len(t); i++ {
		if t[i].Sample < t[i-1].Sample {
			return core.NewValidationError("events",
				fmt.Sprintf("sample %d at index %d precedes sample %d", t[i].Sample, i, t[i-1].Sample))
		}
	}
	return nil
}

// Pick keeps events whose code is in include (all when include is empty)
// and not in exclude.
func (t Table) Pick(include, exclude []int) Table {
	in := toSet(include)
	ex := toSet(exclude)
	out := make(Table, 0, len(t))
	for _, e := range t {
		if len(in) > 0 && !in[e.Code] {
			continue
		}
		if ex[e.Code] {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Merge rewrites every code in codes to newCode.
func (t Table) Merge(codes []int, newCode int) Table {
	set := toSet(codes)
	out := make(Table, len(t))
	for i, e := range t {
		if set[e.Code] {
			e.Code = newCode
		}
		out[i] = e
	}
	return out
}

// Codes returns the distinct codes, ascending.
func (t Table) Codes() []int {
	set := make(map[int]bool)
	for _, e := range t {
		set[e.Code] = true
	}
	codes := make([]int, 0, len(set))
	for c := range set {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	return codes
}

// Counts returns occurrences per code.
func (t Table) Counts() map[int]int {
	counts := make(map[int]int)
	for _, e := range t {
		counts[e.Code]++
	}
	return counts
}

// FromAnnotations converts annotations into an event table. With a nil
// mapping codes 1..K are assigned to the sorted unique descriptions;
// otherwise only mapped descriptions are kept.
func FromAnnotations(ann Annotations, sfreq float64, firstSamp int, mapping Dict) (Table, Dict, error) {
	if sfreq <= 0 {
		return nil, nil, core.NewParameterError("sfreq", sfreq, "must be positive")
	}
	if mapping == nil {
		mapping = Dict{}
		for i, d := range ann.Descriptions() {
			mapping[d] = i + 1
		}
	}

	used := Dict{}
	var t Table
	for _, a := range ann.Sorted() {
		code, ok := mapping[a.Description]
		if !ok {
			continue
		}
		used[a.Description] = code
		t = append(t, Event{
			Sample: firstSamp + int(math.Round(a.Onset*sfreq)),
			Code:   code,
		})
	}
	return t, used, nil
}

// ToAnnotations is the inverse of FromAnnotations. Codes without a
// description use their decimal form.
func ToAnnotations(t Table, sfreq float64, firstSamp int, desc map[int]string) (Annotations, error) {
	if sfreq <= 0 {
		return nil, core.NewParameterError("sfreq", sfreq, "must be positive")
	}
	out := make(Annotations, len(t))
	for i, e := range t {
		label, ok := desc[e.Code]
		if !ok {
			label = strconv.Itoa(e.Code)
		}
		out[i] = Annotation{
			Onset:       float64(e.Sample-firstSamp) / sfreq,
			Description: label,
		}
	}
	return out, nil
}

func toSet(xs []int) map[int]bool {
	set := make(map[int]bool, len(xs))
	for _, x := range xs {
		set[x] = true
	}
	return set
}

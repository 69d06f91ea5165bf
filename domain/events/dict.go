package events

import (
	"sort"
	"strings"
)

// Dict maps event labels to codes. Labels may be hierarchical, with tags
// separated by "/", e.g. "auditory/left".
type Dict map[string]int

// Invert maps codes back to labels. When two labels share a code the
// lexically first wins.
func (d Dict) Invert() map[int]string {
	out := make(map[int]string, len(d))
	for _, label := range d.Labels() {
		if _, ok := out[d[label]]; !ok {
			out[d[label]] = label
		}
	}
	return out
}

// Labels returns the labels, sorted.
func (d Dict) Labels() []string {
	out := make([]string, 0, len(d))
	for l := range d {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Match returns the labels selected by selector. A label matches when it
// carries every "/"-separated tag of the selector, so "auditory" selects
// both "auditory/left" and "auditory/right".
func (d Dict) Match(selector string) []string {
	want := strings.Split(selector, "/")
	var out []string
	for _, label := range d.Labels() {
		if label == selector {
			out = append(out, label)
			continue
		}
		tags := make(map[string]bool)
		for _, t := range strings.Split(label, "/") {
			tags[t] = true
		}
		all := true
		for _, w := range want {
			if !tags[w] {
				all = false
				break
			}
		}
		if all {
			out = append(out, label)
		}
	}
	return out
}

// Codes returns the codes selected by selector.
func (d Dict) Codes(selector string) []int {
	var out []int
	for _, l := range d.Match(selector) {
		out = append(out, d[l])
	}
	sort.Ints(out)
	return out
}

// Restrict keeps only labels whose code appears in t.
func (d Dict) Restrict(t Table) Dict {
	present := t.Counts()
	out := Dict{}
	for l, c := range d {
		if present[c] > 0 {
			out[l] = c
		}
	}
	return out
}

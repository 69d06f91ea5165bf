package events

import "sort"

// Annotation is an (onset, duration, label) triple in seconds from the
// first sample.
type Annotation struct {
	Onset       float64 `json:"onset"`
	Duration    float64 `json:"duration"`
	Description string  `json:"description"`
}

// Annotations is ordered by onset.
type Annotations []Annotation

// Sorted returns a copy ordered by onset; equal onsets keep input order.
func (a Annotations) Sorted() Annotations {
	out := append(Annotations(nil), a...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Onset < out[j].Onset })
	return out
}

// Descriptions returns the distinct labels, sorted.
func (a Annotations) Descriptions() []string {
	set := make(map[string]bool)
	for _, x := range a {
		set[x.Description] = true
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

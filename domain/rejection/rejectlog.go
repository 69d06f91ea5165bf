// Package rejection holds the per-epoch, per-channel outcome of automatic
// epoch rejection.
package rejection

import (
	"fmt"

	"eegprep/domain/core"
	"eegprep/domain/epochs"
)

// Label is the decision for one epoch-channel cell.
type Label int

const (
	Good         Label = 0
	Bad          Label = 1
	Interpolated Label = 2
)

func (l Label) String() string {
	switch l {
	case Good:
		return "good"
	case Bad:
		return "bad"
	case Interpolated:
		return "interpolated"
	}
	return fmt.Sprintf("label(%d)", int(l))
}

// RejectLog is produced by transforming a collection with a fitted model.
type RejectLog struct {
	Labels    [][]Label `json:"labels"` // epoch x channel
	BadEpochs []bool    `json:"bad_epochs"`
	Channels  []string  `json:"channels"`
}

// New returns an all-good log of the given shape.
func New(nEpochs int, channels []string) *RejectLog {
	labels := make([][]Label, nEpochs)
	for i := range labels {
		labels[i] = make([]Label, len(channels))
	}
	return &RejectLog{
		Labels:    labels,
		BadEpochs: make([]bool, nEpochs),
		Channels:  append([]string(nil), channels...),
	}
}

// Len returns the number of epochs covered.
func (l *RejectLog) Len() int { return len(l.BadEpochs) }

// Validate checks the log was produced for a collection of c's shape.
func (l *RejectLog) Validate(c *epochs.Collection) error {
	if l.Len() != c.Len() {
		return core.NewShapeError("reject log epochs", c.Len(), l.Len())
	}
	if len(l.Labels) != l.Len() {
		return core.NewShapeError("reject log label rows", l.Len(), len(l.Labels))
	}
	if len(l.Channels) != c.NChannels() {
		return core.NewShapeError("reject log channels", c.NChannels(), len(l.Channels))
	}
	return nil
}

// GoodMask is true for epochs not marked bad.
func (l *RejectLog) GoodMask() []bool {
	mask := make([]bool, l.Len())
	for i, bad := range l.BadEpochs {
		mask[i] = !bad
	}
	return mask
}

// BadCount returns the number of bad epochs.
func (l *RejectLog) BadCount() int {
	n := 0
	for _, bad := range l.BadEpochs {
		if bad {
			n++
		}
	}
	return n
}

// BadIndices returns the bad epoch indices, ascending.
func (l *RejectLog) BadIndices() []int {
	var idx []int
	for i, bad := range l.BadEpochs {
		if bad {
			idx = append(idx, i)
		}
	}
	return idx
}

// CountLabel counts cells carrying label.
func (l *RejectLog) CountLabel(label Label) int {
	n := 0
	for _, row := range l.Labels {
		for _, x := range row {
			if x == label {
				n++
			}
		}
	}
	return n
}

// ChannelCounts returns, per channel, how many epochs flagged it bad or
// interpolated.
func (l *RejectLog) ChannelCounts() map[string]int {
	out := make(map[string]int, len(l.Channels))
	for _, row := range l.Labels {
		for ch, x := range row {
			if x != Good {
				out[l.Channels[ch]]++
			}
		}
	}
	return out
}

// Summary is a compact view for reports and the ledger.
type Summary struct {
	Epochs       int            `json:"epochs"`
	BadEpochs    int            `json:"bad_epochs"`
	BadIndices   []int          `json:"bad_indices"`
	BadCells     int            `json:"bad_cells"`
	Interpolated int            `json:"interpolated_cells"`
	PerChannel   map[string]int `json:"per_channel"`
}

// Summarize collapses the log into counts.
func (l *RejectLog) Summarize() Summary {
	return Summary{
		Epochs:       l.Len(),
		BadEpochs:    l.BadCount(),
		BadIndices:   l.BadIndices(),
		BadCells:     l.CountLabel(Bad),
		Interpolated: l.CountLabel(Interpolated),
		PerChannel:   l.ChannelCounts(),
	}
}

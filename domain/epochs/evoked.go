package epochs

import (
	"fmt"
	"math/rand"
	"sort"

	"eegprep/domain/core"
	"eegprep/domain/recording"
)

// Evoked is the average of a collection.
type Evoked struct {
	SFreq    float64             `json:"sfreq"`
	Channels []recording.Channel `json:"channels"`
	Window   Window              `json:"window"`
	Comment  string              `json:"comment,omitempty"`
	Data     [][]float64         `json:"-"`
	NAve     int                 `json:"nave"`
}

// Average returns the sample-wise mean across epochs.
func (c *Collection) Average() (*Evoked, error) {
	if c.Len() == 0 {
		return nil, core.NewEmptyInputError("average of zero epochs")
	}
	nch, nt := c.NChannels(), c.NTimes()
	data := make([][]float64, nch)
	for ch := range data {
		data[ch] = make([]float64, nt)
	}
	for _, e := range c.Epochs {
		for ch, row := range e.Data {
			for j, v := range row {
				data[ch][j] += v
			}
		}
	}
	n := float64(c.Len())
	for ch := range data {
		for j := range data[ch] {
			data[ch][j] /= n
		}
	}
	return &Evoked{
		SFreq:    c.SFreq,
		Channels: append([]recording.Channel(nil), c.Channels...),
		Window:   c.Window,
		Comment:  fmt.Sprint(c.Labels()),
		Data:     data,
		NAve:     c.Len(),
	}, nil
}

// ApplyBaseline subtracts the baseline mean from each channel.
func (e *Evoked) ApplyBaseline(b Baseline) (*Evoked, error) {
	if err := checkBaseline(b, e.Window); err != nil {
		return nil, err
	}
	out := *e
	out.Channels = append([]recording.Channel(nil), e.Channels...)
	out.Data = recording.CloneMatrix(e.Data)
	subtractBaseline(out.Data, b, e.Window, e.SFreq)
	return &out, nil
}

// Times returns sample times relative to the event.
func (e *Evoked) Times() []float64 {
	if len(e.Data) == 0 {
		return nil
	}
	t := make([]float64, len(e.Data[0]))
	for i := range t {
		t[i] = e.Window.TMin + float64(i)/e.SFreq
	}
	return t
}

// EqualizeEventCounts subsamples each selector's epochs down to the
// smallest selector count. Kept epochs stay in chronological order; which
// ones are kept is drawn from rng.
func (c *Collection) EqualizeEventCounts(selectors []string, rng *rand.Rand) (*Collection, error) {
	if len(selectors) < 2 {
		return nil, core.NewParameterError("selectors", selectors, "need at least two conditions")
	}
	groups := make([][]int, len(selectors))
	owner := make(map[int]int)
	for g, sel := range selectors {
		labels := c.EventDict.Match(sel)
		if len(labels) == 0 {
			return nil, core.NewParameterError("selector", sel, "matches no event label")
		}
		want := make(map[string]bool, len(labels))
		for _, l := range labels {
			want[l] = true
		}
		for i, e := range c.Epochs {
			if !want[e.Label] {
				continue
			}
			if prev, taken := owner[i]; taken && prev != g {
				return nil, core.NewParameterError("selector", sel, "overlaps another condition")
			}
			owner[i] = g
			groups[g] = append(groups[g], i)
		}
	}

	smallest := -1
	for _, g := range groups {
		if smallest < 0 || len(g) < smallest {
			smallest = len(g)
		}
	}

	keep := make([]bool, c.Len())
	for i := range keep {
		if _, grouped := owner[i]; !grouped {
			keep[i] = true
		}
	}
	for _, g := range groups {
		picked := append([]int(nil), g...)
		rng.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
		picked = picked[:smallest]
		sort.Ints(picked)
		for _, i := range picked {
			keep[i] = true
		}
	}

	out, err := c.Mask(keep)
	if err != nil {
		return nil, err
	}
	out.Provenance[len(out.Provenance)-1] = recording.Step{Stage: "equalize_event_counts", Detail: fmt.Sprintf("n=%d per condition", smallest)}
	return out, nil
}

// Package epochs cuts recordings into windows and manipulates the
// resulting collections. Collections are immutable snapshots like
// recordings: every operation returns a new value.
package epochs

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"eegprep/domain/core"
	"eegprep/domain/events"
	"eegprep/domain/recording"
)

// Window is an epoch span in seconds relative to its event.
type Window struct {
	TMin float64 `json:"tmin"`
	TMax float64 `json:"tmax"`
}

// Validate checks the window is non-empty.
func (w Window) Validate() error {
	if math.IsNaN(w.TMin) || math.IsNaN(w.TMax) || w.TMax <= w.TMin {
		return core.NewParameterError("window", fmt.Sprintf("(%g, %g)", w.TMin, w.TMax), "tmax must exceed tmin")
	}
	return nil
}

// Baseline is a (from, to) interval in seconds inside the window whose
// per-channel mean is subtracted.
type Baseline struct {
	From float64 `json:"from"`
	To   float64 `json:"to"`
}

// DefaultBaseline runs from the window start to time zero.
func DefaultBaseline(w Window) *Baseline {
	return &Baseline{From: w.TMin, To: 0}
}

// Epoch is one window of channel x sample data.
type Epoch struct {
	Label  string      `json:"label"`
	Code   int         `json:"code"`
	Sample int         `json:"sample"` // event sample, including first_samp
	Data   [][]float64 `json:"-"`
}

// Drop records an event that produced no epoch.
type Drop struct {
	Sample int    `json:"sample"`
	Label  string `json:"label"`
	Reason string `json:"reason"`
}

// Collection holds epochs of identical shape.
type Collection struct {
	SFreq      float64             `json:"sfreq"`
	Channels   []recording.Channel `json:"channels"`
	Bads       []string            `json:"bads,omitempty"`
	Window     Window              `json:"window"`
	Samples    int                 `json:"samples"` // per epoch
	Baseline   *Baseline           `json:"baseline,omitempty"`
	EventDict  events.Dict         `json:"event_dict"`
	Epochs     []Epoch             `json:"-"`
	DropLog    []Drop              `json:"drop_log,omitempty"`
	Provenance []recording.Step    `json:"provenance"`
}

// Options tune event-locked epoching.
type Options struct {
	Baseline *Baseline
	// Reject drops an epoch when any good channel of the keyed type has a
	// peak-to-peak amplitude above the threshold.
	Reject map[recording.ChannelType]float64
	// Flat drops an epoch when a good channel's peak-to-peak is below the threshold.
	Flat map[recording.ChannelType]float64
}

// FixedLength cuts back-to-back non-overlapping windows of duration seconds.
// The collection holds floor(D/duration) epochs of round(duration*sfreq)
// samples each.
func FixedLength(rec *recording.Recording, duration float64) (*Collection, error) {
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return nil, core.NewParameterError("duration", duration, "must be positive")
	}
	length := int(math.Round(duration * rec.SFreq))
	if length < 1 {
		return nil, core.NewParameterError("duration", duration, "shorter than one sample")
	}
	n := int(math.Floor(rec.Duration()/duration + 1e-9))
	if n*length > rec.NTimes() {
		n = rec.NTimes() / length
	}

	c := &Collection{
		SFreq:      rec.SFreq,
		Channels:   append([]recording.Channel(nil), rec.Channels...),
		Bads:       append([]string(nil), rec.Bads...),
		Window:     Window{TMin: 0, TMax: float64(length) / rec.SFreq},
		Samples:    length,
		EventDict:  events.Dict{"1": 1},
		Epochs:     make([]Epoch, n),
		Provenance: append(append([]recording.Step(nil), rec.Provenance...), recording.Step{Stage: "fixed_length_epochs", Detail: fmt.Sprintf("duration=%g n=%d", duration, n)}),
	}
	for i := 0; i < n; i++ {
		start := i * length
		data := make([][]float64, rec.NChannels())
		for ch, row := range rec.Data {
			data[ch] = append([]float64(nil), row[start:start+length]...)
		}
		c.Epochs[i] = Epoch{Label: "1", Code: 1, Sample: rec.FirstSamp + start, Data: data}
	}
	return c, nil
}

// FromEvents cuts event-locked windows. Both window ends are inclusive.
// Events with codes absent from a non-nil dict are skipped; a nil dict
// labels epochs by code.
func FromEvents(rec *recording.Recording, table events.Table, dict events.Dict, w Window, opts Options) (*Collection, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if opts.Baseline != nil {
		if err := checkBaseline(*opts.Baseline, w); err != nil {
			return nil, err
		}
	}

	if dict == nil {
		dict = events.Dict{}
		for _, code := range table.Codes() {
			dict[strconv.Itoa(code)] = code
		}
	}
	labels := dict.Invert()

	startOff := int(math.Round(w.TMin * rec.SFreq))
	stopOff := int(math.Round(w.TMax * rec.SFreq))
	c := &Collection{
		SFreq:     rec.SFreq,
		Channels:  append([]recording.Channel(nil), rec.Channels...),
		Bads:      append([]string(nil), rec.Bads...),
		Window:    w,
		Samples:   stopOff - startOff + 1,
		Baseline:  opts.Baseline,
		EventDict: events.Dict{},
		Provenance: append(append([]recording.Step(nil), rec.Provenance...),
			recording.Step{Stage: "epochs", Detail: fmt.Sprintf("tmin=%g tmax=%g events=%d", w.TMin, w.TMax, len(table))}),
	}

	for _, ev := range table {
		label, ok := labels[ev.Code]
		if !ok {
			continue
		}
		c.EventDict[label] = ev.Code
		begin := ev.Sample - rec.FirstSamp + startOff
		end := ev.Sample - rec.FirstSamp + stopOff
		if begin < 0 || end >= rec.NTimes() {
			c.DropLog = append(c.DropLog, Drop{Sample: ev.Sample, Label: label, Reason: "out of bounds"})
			continue
		}
		data := make([][]float64, rec.NChannels())
		for ch, row := range rec.Data {
			data[ch] = append([]float64(nil), row[begin:end+1]...)
		}
		if opts.Baseline != nil {
			subtractBaseline(data, *opts.Baseline, w, rec.SFreq)
		}
		if reason := c.checkAmplitude(data, opts); reason != "" {
			c.DropLog = append(c.DropLog, Drop{Sample: ev.Sample, Label: label, Reason: reason})
			continue
		}
		c.Epochs = append(c.Epochs, Epoch{Label: label, Code: ev.Code, Sample: ev.Sample, Data: data})
	}
	return c, nil
}

func (c *Collection) checkAmplitude(data [][]float64, opts Options) string {
	if len(opts.Reject) == 0 && len(opts.Flat) == 0 {
		return ""
	}
	for i, ch := range c.Channels {
		if c.isBad(ch.Name) {
			continue
		}
		ptp := PeakToPeak(data[i])
		if limit, ok := opts.Reject[ch.Type]; ok && ptp > limit {
			return ch.Name
		}
		if limit, ok := opts.Flat[ch.Type]; ok && ptp < limit {
			return ch.Name + " (flat)"
		}
	}
	return ""
}

// PeakToPeak returns max - min of xs, or 0 when empty.
func PeakToPeak(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return hi - lo
}

func checkBaseline(b Baseline, w Window) error {
	if b.From > b.To || b.From < w.TMin-1e-9 || b.To > w.TMax+1e-9 {
		return core.NewParameterError("baseline", fmt.Sprintf("(%g, %g)", b.From, b.To),
			fmt.Sprintf("must lie inside window (%g, %g)", w.TMin, w.TMax))
	}
	return nil
}

func subtractBaseline(data [][]float64, b Baseline, w Window, sfreq float64) {
	i0 := int(math.Round((b.From - w.TMin) * sfreq))
	i1 := int(math.Round((b.To - w.TMin) * sfreq))
	for _, row := range data {
		hi := i1
		if hi >= len(row) {
			hi = len(row) - 1
		}
		if i0 > hi {
			continue
		}
		var sum float64
		for _, v := range row[i0 : hi+1] {
			sum += v
		}
		mean := sum / float64(hi-i0+1)
		for j := range row {
			row[j] -= mean
		}
	}
}

func (c *Collection) isBad(name string) bool {
	for _, b := range c.Bads {
		if b == name {
			return true
		}
	}
	return false
}

// Len returns the epoch count.
func (c *Collection) Len() int { return len(c.Epochs) }

// NChannels returns the channel count.
func (c *Collection) NChannels() int { return len(c.Channels) }

// NTimes returns samples per epoch.
func (c *Collection) NTimes() int { return c.Samples }

// ChannelNames returns names in channel order.
func (c *Collection) ChannelNames() []string {
	names := make([]string, len(c.Channels))
	for i, ch := range c.Channels {
		names[i] = ch.Name
	}
	return names
}

// Times returns sample times in seconds relative to the event.
func (c *Collection) Times() []float64 {
	t := make([]float64, c.NTimes())
	for i := range t {
		t[i] = c.Window.TMin + float64(i)/c.SFreq
	}
	return t
}

// Clone deep-copies the collection.
func (c *Collection) Clone() *Collection {
	return c.derive(c.Epochs, nil)
}

func (c *Collection) derive(eps []Epoch, step *recording.Step) *Collection {
	out := *c
	out.Channels = append([]recording.Channel(nil), c.Channels...)
	out.Bads = append([]string(nil), c.Bads...)
	out.EventDict = events.Dict{}
	for k, v := range c.EventDict {
		out.EventDict[k] = v
	}
	out.DropLog = append([]Drop(nil), c.DropLog...)
	out.Provenance = append([]recording.Step(nil), c.Provenance...)
	if step != nil {
		out.Provenance = append(out.Provenance, *step)
	}
	out.Epochs = make([]Epoch, len(eps))
	for i, e := range eps {
		e.Data = recording.CloneMatrix(e.Data)
		out.Epochs[i] = e
	}
	return &out
}

// Slice returns epochs [start, end). An empty slice is allowed here and
// rejected by consumers that need data.
func (c *Collection) Slice(start, end int) (*Collection, error) {
	if start < 0 || end < start || end > c.Len() {
		return nil, core.NewParameterError("slice", fmt.Sprintf("[%d:%d]", start, end),
			fmt.Sprintf("must lie inside [0:%d]", c.Len()))
	}
	step := recording.Step{Stage: "slice", Detail: fmt.Sprintf("[%d:%d]", start, end)}
	return c.derive(c.Epochs[start:end], &step), nil
}

// Mask keeps epochs whose mask entry is true.
func (c *Collection) Mask(keep []bool) (*Collection, error) {
	if len(keep) != c.Len() {
		return nil, core.NewShapeError("epoch mask", c.Len(), len(keep))
	}
	var eps []Epoch
	for i, k := range keep {
		if k {
			eps = append(eps, c.Epochs[i])
		}
	}
	step := recording.Step{Stage: "mask", Detail: fmt.Sprintf("kept=%d of %d", len(eps), c.Len())}
	return c.derive(eps, &step), nil
}

// Indices keeps the listed epochs, in the order given.
func (c *Collection) Indices(idx []int) (*Collection, error) {
	eps := make([]Epoch, 0, len(idx))
	for _, i := range idx {
		if i < 0 || i >= c.Len() {
			return nil, core.NewParameterError("epoch index", i, fmt.Sprintf("must lie inside [0, %d)", c.Len()))
		}
		eps = append(eps, c.Epochs[i])
	}
	step := recording.Step{Stage: "indices", Detail: fmt.Sprintf("n=%d", len(idx))}
	return c.derive(eps, &step), nil
}

// Select keeps epochs whose label matches the hierarchical selector.
func (c *Collection) Select(selector string) (*Collection, error) {
	labels := c.EventDict.Match(selector)
	if len(labels) == 0 {
		return nil, core.NewParameterError("selector", selector, "matches no event label")
	}
	want := make(map[string]bool, len(labels))
	for _, l := range labels {
		want[l] = true
	}
	var eps []Epoch
	for _, e := range c.Epochs {
		if want[e.Label] {
			eps = append(eps, e)
		}
	}
	step := recording.Step{Stage: "select", Detail: selector}
	return c.derive(eps, &step), nil
}

// ApplyBaseline subtracts the per-epoch, per-channel baseline mean.
func (c *Collection) ApplyBaseline(b Baseline) (*Collection, error) {
	if err := checkBaseline(b, c.Window); err != nil {
		return nil, err
	}
	step := recording.Step{Stage: "baseline", Detail: fmt.Sprintf("(%g, %g)", b.From, b.To)}
	out := c.derive(c.Epochs, &step)
	for _, e := range out.Epochs {
		subtractBaseline(e.Data, b, c.Window, c.SFreq)
	}
	out.Baseline = &b
	return out, nil
}

// WithEpochData swaps in same-shape data for every epoch.
func (c *Collection) WithEpochData(data [][][]float64, step recording.Step) (*Collection, error) {
	if len(data) != c.Len() {
		return nil, core.NewShapeError("epochs", c.Len(), len(data))
	}
	for i, ep := range data {
		if len(ep) != c.NChannels() {
			return nil, core.NewShapeError(fmt.Sprintf("channels in epoch %d", i), c.NChannels(), len(ep))
		}
		for _, row := range ep {
			if len(row) != c.NTimes() {
				return nil, core.NewShapeError(fmt.Sprintf("samples in epoch %d", i), c.NTimes(), len(row))
			}
		}
	}
	out := c.derive(c.Epochs, &step)
	for i := range out.Epochs {
		out.Epochs[i].Data = recording.CloneMatrix(data[i])
	}
	return out, nil
}

// SameLayout checks that other has the same channels in the same order and
// the same samples per epoch.
func (c *Collection) SameLayout(other *Collection) error {
	if c.NChannels() != other.NChannels() {
		return core.NewShapeError("channels", c.NChannels(), other.NChannels())
	}
	for i, ch := range c.Channels {
		if other.Channels[i].Name != ch.Name {
			return fmt.Errorf("%w: channel %d is %q, want %q", core.ErrShapeMismatch, i, other.Channels[i].Name, ch.Name)
		}
	}
	if c.NTimes() != other.NTimes() {
		return core.NewShapeError("samples per epoch", c.NTimes(), other.NTimes())
	}
	return nil
}

// Labels returns the distinct epoch labels, sorted.
func (c *Collection) Labels() []string {
	set := make(map[string]bool)
	for _, e := range c.Epochs {
		set[e.Label] = true
	}
	out := make([]string, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// CountByLabel returns epochs per label.
func (c *Collection) CountByLabel() map[string]int {
	out := make(map[string]int)
	for _, e := range c.Epochs {
		out[e.Label]++
	}
	return out
}

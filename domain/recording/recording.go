// Package recording models a continuous multichannel signal as an immutable
// snapshot. Every transform returns a new Recording whose slices are not
// shared with the receiver and appends a provenance step.
package recording

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"eegprep/domain/core"
	"eegprep/domain/events"
)

// Recording is a continuous multichannel signal plus metadata.
type Recording struct {
	ID          core.RecordingID   `json:"id"`
	SFreq       float64            `json:"sfreq"`
	FirstSamp   int                `json:"first_samp"`
	Channels    []Channel          `json:"channels"`
	Data        [][]float64        `json:"-"` // channel x sample
	Bads        []string           `json:"bads"`
	Annotations events.Annotations `json:"annotations,omitempty"`
	MeasDate    time.Time          `json:"meas_date"`
	Description string             `json:"description,omitempty"`
	Provenance  []Step             `json:"provenance"`
}

// New validates and builds the initial snapshot. The data matrix is copied.
func New(id core.RecordingID, sfreq float64, channels []Channel, data [][]float64) (*Recording, error) {
	if sfreq <= 0 || math.IsNaN(sfreq) {
		return nil, core.NewParameterError("sfreq", sfreq, "must be positive")
	}
	if len(channels) != len(data) {
		return nil, core.NewShapeError("data rows", len(channels), len(data))
	}
	seen := make(map[string]bool, len(channels))
	for _, ch := range channels {
		if ch.Name == "" {
			return nil, core.NewChannelError(ch.Name, "empty channel name")
		}
		if seen[ch.Name] {
			return nil, core.NewChannelError(ch.Name, "duplicate channel name")
		}
		seen[ch.Name] = true
	}
	if len(data) > 0 {
		n := len(data[0])
		for i, row := range data {
			if len(row) != n {
				return nil, core.NewShapeError(fmt.Sprintf("samples in channel %q", channels[i].Name), n, len(row))
			}
		}
	}
	if id.String() == "" {
		id = core.RecordingID(core.NewID())
	}
	return &Recording{
		ID:         id,
		SFreq:      sfreq,
		Channels:   append([]Channel(nil), channels...),
		Data:       CloneMatrix(data),
		Provenance: []Step{{Stage: "load"}},
	}, nil
}

// Clone returns a deep copy with no provenance change.
func (r *Recording) Clone() *Recording {
	out := *r
	out.Channels = append([]Channel(nil), r.Channels...)
	out.Data = CloneMatrix(r.Data)
	out.Bads = append([]string(nil), r.Bads...)
	out.Annotations = append(events.Annotations(nil), r.Annotations...)
	out.Provenance = cloneSteps(r.Provenance)
	return &out
}

func (r *Recording) derive(step Step) *Recording {
	out := r.Clone()
	out.Provenance = append(out.Provenance, step)
	return out
}

// NChannels returns the channel count.
func (r *Recording) NChannels() int { return len(r.Channels) }

// NTimes returns the sample count per channel.
func (r *Recording) NTimes() int {
	if len(r.Data) == 0 {
		return 0
	}
	return len(r.Data[0])
}

// Duration is NTimes / SFreq in seconds.
func (r *Recording) Duration() float64 {
	return float64(r.NTimes()) / r.SFreq
}

// Times returns the sample times in seconds from the first sample.
func (r *Recording) Times() []float64 {
	t := make([]float64, r.NTimes())
	for i := range t {
		t[i] = float64(i) / r.SFreq
	}
	return t
}

// ChannelNames returns names in channel order.
func (r *Recording) ChannelNames() []string {
	names := make([]string, len(r.Channels))
	for i, ch := range r.Channels {
		names[i] = ch.Name
	}
	return names
}

// ChannelIndex returns the row of the named channel or -1.
func (r *Recording) ChannelIndex(name string) int {
	for i, ch := range r.Channels {
		if ch.Name == name {
			return i
		}
	}
	return -1
}

// IndicesOfType returns the rows whose type is one of types.
func (r *Recording) IndicesOfType(types ...ChannelType) []int {
	var idx []int
	for i, ch := range r.Channels {
		for _, t := range types {
			if ch.Type == t {
				idx = append(idx, i)
				break
			}
		}
	}
	return idx
}

// IsBad reports whether the named channel is marked bad.
func (r *Recording) IsBad(name string) bool {
	for _, b := range r.Bads {
		if b == name {
			return true
		}
	}
	return false
}

// Crop keeps samples in [tmin, tmax) seconds. Annotations are shifted and
// those outside the window dropped.
func (r *Recording) Crop(tmin, tmax float64) (*Recording, error) {
	if tmin < 0 || tmin >= tmax || tmax > r.Duration()+1e-9 {
		return nil, core.NewParameterError("crop", fmt.Sprintf("[%g, %g)", tmin, tmax),
			fmt.Sprintf("must satisfy 0 <= tmin < tmax <= %g", r.Duration()))
	}
	start := int(math.Round(tmin * r.SFreq))
	stop := int(math.Round(tmax * r.SFreq))
	if stop > r.NTimes() {
		stop = r.NTimes()
	}

	out := r.derive(Step{Stage: "crop", Detail: fmt.Sprintf("tmin=%g tmax=%g", tmin, tmax)})
	for i, row := range out.Data {
		out.Data[i] = append([]float64(nil), row[start:stop]...)
	}
	out.FirstSamp = r.FirstSamp + start

	kept := make(events.Annotations, 0, len(out.Annotations))
	for _, a := range out.Annotations {
		if a.Onset < tmin || a.Onset >= tmax {
			continue
		}
		a.Onset -= tmin
		kept = append(kept, a)
	}
	out.Annotations = kept
	return out, nil
}

// PickTypes keeps channels whose type is one of types, in original order.
func (r *Recording) PickTypes(types ...ChannelType) (*Recording, error) {
	idx := r.IndicesOfType(types...)
	if len(idx) == 0 {
		return nil, core.NewChannelError(fmt.Sprint(types), "no channel of the requested types")
	}
	return r.pick(idx, Step{Stage: "pick_types", Detail: fmt.Sprint(types)}), nil
}

// PickNames keeps the named channels in the order given.
func (r *Recording) PickNames(names ...string) (*Recording, error) {
	idx := make([]int, 0, len(names))
	for _, n := range names {
		i := r.ChannelIndex(n)
		if i < 0 {
			return nil, core.NewChannelError(n, "not in recording")
		}
		idx = append(idx, i)
	}
	return r.pick(idx, Step{Stage: "pick_names", Detail: strings.Join(names, ",")}), nil
}

// PickRegexp returns the indices of channels whose full name matches expr.
func (r *Recording) PickRegexp(expr string) ([]int, error) {
	re, err := regexp.Compile("^(?:" + expr + ")$")
	if err != nil {
		return nil, core.NewParameterError("regexp", expr, err.Error())
	}
	var idx []int
	for i, ch := range r.Channels {
		if re.MatchString(ch.Name) {
			idx = append(idx, i)
		}
	}
	return idx, nil
}

// DropChannels removes the named channels.
func (r *Recording) DropChannels(names ...string) (*Recording, error) {
	drop := make(map[int]bool, len(names))
	for _, n := range names {
		i := r.ChannelIndex(n)
		if i < 0 {
			return nil, core.NewChannelError(n, "not in recording")
		}
		drop[i] = true
	}
	idx := make([]int, 0, len(r.Channels)-len(drop))
	for i := range r.Channels {
		if !drop[i] {
			idx = append(idx, i)
		}
	}
	return r.pick(idx, Step{Stage: "drop_channels", Detail: strings.Join(names, ",")}), nil
}

func (r *Recording) pick(idx []int, step Step) *Recording {
	out := r.derive(step)
	out.Channels = make([]Channel, len(idx))
	out.Data = make([][]float64, len(idx))
	keep := make(map[string]bool, len(idx))
	for j, i := range idx {
		out.Channels[j] = r.Channels[i]
		out.Data[j] = append([]float64(nil), r.Data[i]...)
		keep[r.Channels[i].Name] = true
	}
	bads := out.Bads[:0]
	for _, b := range out.Bads {
		if keep[b] {
			bads = append(bads, b)
		}
	}
	out.Bads = bads
	return out
}

// RenameChannels applies old -> new names. Bads follow the rename.
func (r *Recording) RenameChannels(mapping map[string]string) (*Recording, error) {
	final := r.ChannelNames()
	for old, nu := range mapping {
		i := r.ChannelIndex(old)
		if i < 0 {
			return nil, core.NewChannelError(old, "cannot rename: not in recording")
		}
		if nu == "" {
			return nil, core.NewChannelError(old, "cannot rename to empty name")
		}
		final[i] = nu
	}
	seen := make(map[string]bool, len(final))
	for _, n := range final {
		if seen[n] {
			return nil, core.NewChannelError(n, "rename produces duplicate channel name")
		}
		seen[n] = true
	}

	out := r.derive(Step{Stage: "rename_channels", Detail: fmt.Sprintf("%d channels", len(mapping))})
	for i := range out.Channels {
		out.Channels[i].Name = final[i]
	}
	for i, b := range out.Bads {
		if nu, ok := mapping[b]; ok {
			out.Bads[i] = nu
		}
	}
	return out, nil
}

// SetChannelTypes retypes the named channels.
func (r *Recording) SetChannelTypes(mapping map[string]ChannelType) (*Recording, error) {
	names := make([]string, 0, len(mapping))
	for n := range mapping {
		if r.ChannelIndex(n) < 0 {
			return nil, core.NewChannelError(n, "cannot set type: not in recording")
		}
		names = append(names, n)
	}
	sort.Strings(names)

	out := r.derive(Step{Stage: "set_channel_types", Detail: strings.Join(names, ",")})
	for i, ch := range out.Channels {
		if t, ok := mapping[ch.Name]; ok {
			out.Channels[i].Type = t
		}
	}
	return out, nil
}

// WithBads replaces the bad-channel list.
func (r *Recording) WithBads(bads []string) (*Recording, error) {
	if err := r.checkNames(bads); err != nil {
		return nil, err
	}
	out := r.derive(Step{Stage: "set_bads", Detail: strings.Join(bads, ",")})
	out.Bads = uniqueStrings(bads)
	return out, nil
}

// AddBads appends channels to the bad list, ignoring ones already present.
func (r *Recording) AddBads(names ...string) (*Recording, error) {
	if err := r.checkNames(names); err != nil {
		return nil, err
	}
	out := r.derive(Step{Stage: "add_bads", Detail: strings.Join(names, ",")})
	out.Bads = uniqueStrings(append(out.Bads, names...))
	return out, nil
}

// RemoveBad unmarks a channel. Unknown names are an error; a good channel is a no-op.
func (r *Recording) RemoveBad(name string) (*Recording, error) {
	if r.ChannelIndex(name) < 0 {
		return nil, core.NewChannelError(name, "not in recording")
	}
	out := r.derive(Step{Stage: "remove_bad", Detail: name})
	bads := out.Bads[:0]
	for _, b := range out.Bads {
		if b != name {
			bads = append(bads, b)
		}
	}
	out.Bads = bads
	return out, nil
}

// WithData swaps in a same-shape data matrix produced by stage.
func (r *Recording) WithData(data [][]float64, step Step) (*Recording, error) {
	if len(data) != r.NChannels() {
		return nil, core.NewShapeError("data rows", r.NChannels(), len(data))
	}
	for i, row := range data {
		if len(row) != r.NTimes() {
			return nil, core.NewShapeError(fmt.Sprintf("samples in channel %q", r.Channels[i].Name), r.NTimes(), len(row))
		}
	}
	out := r.derive(step)
	out.Data = CloneMatrix(data)
	return out, nil
}

// WithResampledData swaps in data at a new sample rate, same channel count.
func (r *Recording) WithResampledData(data [][]float64, sfreq float64, step Step) (*Recording, error) {
	if sfreq <= 0 {
		return nil, core.NewParameterError("sfreq", sfreq, "must be positive")
	}
	if len(data) != r.NChannels() {
		return nil, core.NewShapeError("data rows", r.NChannels(), len(data))
	}
	out := r.derive(step)
	out.Data = CloneMatrix(data)
	out.FirstSamp = int(math.Round(float64(r.FirstSamp) * sfreq / r.SFreq))
	out.SFreq = sfreq
	return out, nil
}

// WithAnnotations replaces the annotation set, sorted by onset.
func (r *Recording) WithAnnotations(ann events.Annotations) *Recording {
	out := r.derive(Step{Stage: "set_annotations", Detail: fmt.Sprintf("%d annotations", len(ann))})
	out.Annotations = ann.Sorted()
	return out
}

// FindEvents reads the event table off a stim channel.
func (r *Recording) FindEvents(stimChannel string) (events.Table, error) {
	if stimChannel == "" {
		idx := r.IndicesOfType(TypeStim)
		if len(idx) == 0 {
			return nil, core.NewChannelError("", "no stim channel in recording")
		}
		return events.FindEvents(r.Data[idx[0]], r.FirstSamp), nil
	}
	i := r.ChannelIndex(stimChannel)
	if i < 0 {
		return nil, core.NewChannelError(stimChannel, "stim channel not in recording")
	}
	return events.FindEvents(r.Data[i], r.FirstSamp), nil
}

// Steps lists provenance stage names in order.
func (r *Recording) Steps() []string {
	out := make([]string, len(r.Provenance))
	for i, s := range r.Provenance {
		out[i] = s.Stage
	}
	return out
}

func (r *Recording) checkNames(names []string) error {
	for _, n := range names {
		if r.ChannelIndex(n) < 0 {
			return core.NewChannelError(n, "not in recording")
		}
	}
	return nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

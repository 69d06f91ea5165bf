package epochs

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eegprep/domain/core"
	"eegprep/domain/events"
	"eegprep/domain/recording"
)

func makeRecording(t *testing.T, seconds, sfreq float64) *recording.Recording {
	t.Helper()
	n := int(seconds * sfreq)
	chans := []recording.Channel{
		{Name: "Cz", Type: recording.TypeEEG},
		{Name: "Pz", Type: recording.TypeEEG},
		{Name: "EOG", Type: recording.TypeEOG},
	}
	data := make([][]float64, len(chans))
	for i := range data {
		data[i] = make([]float64, n)
		for j := range data[i] {
			data[i][j] = float64(j)
		}
	}
	rec, err := recording.New("test", sfreq, chans, data)
	require.NoError(t, err)
	return rec
}

func TestFixedLength_EpochCount(t *testing.T) {
	cases := []struct {
		seconds, sfreq, duration float64
		want                     int
	}{
		{180, 100, 3, 60},
		{181.5, 100, 3, 60},
		{10, 256, 3, 3},
		{2, 100, 3, 0},
		{60, 250, 0.5, 120},
	}
	for _, tc := range cases {
		rec := makeRecording(t, tc.seconds, tc.sfreq)
		c, err := FixedLength(rec, tc.duration)
		require.NoError(t, err)
		assert.Equal(t, tc.want, c.Len(), "D=%g W=%g", tc.seconds, tc.duration)
		for _, e := range c.Epochs {
			assert.Len(t, e.Data[0], int(tc.duration*tc.sfreq))
		}
	}
}

func TestFixedLength_InvalidDuration(t *testing.T) {
	rec := makeRecording(t, 10, 100)
	for _, d := range []float64{0, -3} {
		_, err := FixedLength(rec, d)
		assert.True(t, errors.Is(err, core.ErrInvalidParameter))
		assert.Contains(t, err.Error(), "duration")
	}
}

func TestFixedLength_BackToBack(t *testing.T) {
	rec := makeRecording(t, 9, 100)
	c, err := FixedLength(rec, 3)
	require.NoError(t, err)
	assert.Equal(t, 0.0, c.Epochs[0].Data[0][0])
	assert.Equal(t, 300.0, c.Epochs[1].Data[0][0])
	assert.Equal(t, 600, c.Epochs[2].Sample)
	assert.Equal(t, "fixed_length_epochs", c.Provenance[len(c.Provenance)-1].Stage)
}

func TestSliceMaskIndices(t *testing.T) {
	c, err := FixedLength(makeRecording(t, 30, 100), 3)
	require.NoError(t, err)

	s, err := c.Slice(0, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Len())

	empty, err := c.Slice(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
	assert.Equal(t, 300, empty.NTimes())

	_, err = c.Slice(0, 11)
	assert.True(t, errors.Is(err, core.ErrInvalidParameter))

	keep := make([]bool, c.Len())
	keep[1], keep[5] = true, true
	m, err := c.Mask(keep)
	require.NoError(t, err)
	assert.Equal(t, []int{100, 500}, []int{m.Epochs[0].Sample / 3, m.Epochs[1].Sample / 3})

	_, err = c.Mask([]bool{true})
	assert.True(t, errors.Is(err, core.ErrShapeMismatch))

	idx, err := c.Indices([]int{9, 0})
	require.NoError(t, err)
	assert.Equal(t, 2700, idx.Epochs[0].Sample)

	// derived collections never share data with the source
	s.Epochs[0].Data[0][0] = 99
	assert.Equal(t, 0.0, c.Epochs[0].Data[0][0])
}

func TestFromEvents_WindowBaselineAndDrops(t *testing.T) {
	rec := makeRecording(t, 10, 100)
	table := events.Table{
		{Sample: 10, Code: 1},  // window starts before the data
		{Sample: 300, Code: 1}, // kept
		{Sample: 500, Code: 2}, // kept
		{Sample: 700, Code: 9}, // not in dict
		{Sample: 990, Code: 2}, // window runs past the data
	}
	dict := events.Dict{"auditory/left": 1, "visual/left": 2}
	w := Window{TMin: -0.2, TMax: 0.5}

	c, err := FromEvents(rec, table, dict, w, Options{Baseline: DefaultBaseline(w)})
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 71, c.NTimes())
	require.Len(t, c.DropLog, 2)
	assert.Equal(t, "out of bounds", c.DropLog[0].Reason)

	// ramp data: baseline mean over [-0.2, 0] is the value at -0.1
	assert.InDelta(t, -10.0, c.Epochs[0].Data[0][0], 1e-9)
	assert.InDelta(t, 0.0, c.Epochs[0].Data[0][20]-10, 1e-9)

	left, err := c.Select("left")
	require.NoError(t, err)
	assert.Equal(t, 2, left.Len())
	aud, err := c.Select("auditory")
	require.NoError(t, err)
	assert.Equal(t, 1, aud.Len())
}

func TestFromEvents_RejectCriteria(t *testing.T) {
	rec := makeRecording(t, 10, 100)
	spiky := recording.CloneMatrix(rec.Data)
	spiky[2][510] = 1e6
	rec, err := rec.WithData(spiky, recording.Step{Stage: "inject"})
	require.NoError(t, err)

	table := events.Table{{Sample: 200, Code: 1}, {Sample: 500, Code: 1}}
	c, err := FromEvents(rec, table, nil, Window{TMin: -0.1, TMax: 0.1}, Options{
		Reject: map[recording.ChannelType]float64{recording.TypeEOG: 1000},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
	require.Len(t, c.DropLog, 1)
	assert.Equal(t, "EOG", c.DropLog[0].Reason)
	assert.Equal(t, events.Dict{"1": 1}, c.EventDict)
}

func TestFromEvents_InvalidWindow(t *testing.T) {
	rec := makeRecording(t, 10, 100)
	_, err := FromEvents(rec, nil, nil, Window{TMin: 0.5, TMax: 0.1}, Options{})
	assert.True(t, errors.Is(err, core.ErrInvalidParameter))
}

func TestAverageAndEqualize(t *testing.T) {
	rec := makeRecording(t, 20, 100)
	var table events.Table
	for i := 1; i <= 9; i++ {
		code := 1
		if i > 6 {
			code = 2
		}
		table = append(table, events.Event{Sample: i * 200, Code: code})
	}
	c, err := FromEvents(rec, table, events.Dict{"a": 1, "b": 2}, Window{TMin: 0, TMax: 0.1}, Options{})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 6, "b": 3}, c.CountByLabel())

	eq1, err := c.EqualizeEventCounts([]string{"a", "b"}, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	eq2, err := c.EqualizeEventCounts([]string{"a", "b"}, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 3, "b": 3}, eq1.CountByLabel())
	for i := range eq1.Epochs {
		assert.Equal(t, eq1.Epochs[i].Sample, eq2.Epochs[i].Sample)
		if i > 0 {
			assert.Less(t, eq1.Epochs[i-1].Sample, eq1.Epochs[i].Sample)
		}
	}

	ev, err := c.Average()
	require.NoError(t, err)
	assert.Equal(t, 9, ev.NAve)
	assert.InDelta(t, 1000.0, ev.Data[0][0], 1e-9)

	empty, err := c.Slice(0, 0)
	require.NoError(t, err)
	_, err = empty.Average()
	assert.True(t, errors.Is(err, core.ErrEmptyInput))
}

func TestSameLayout(t *testing.T) {
	rec := makeRecording(t, 9, 100)
	a, err := FixedLength(rec, 3)
	require.NoError(t, err)
	b, err := FixedLength(rec, 3)
	require.NoError(t, err)
	assert.NoError(t, a.SameLayout(b))

	picked, err := rec.PickNames("Pz", "Cz", "EOG")
	require.NoError(t, err)
	c, err := FixedLength(picked, 3)
	require.NoError(t, err)
	assert.True(t, errors.Is(a.SameLayout(c), core.ErrShapeMismatch))

	d, err := FixedLength(rec, 1)
	require.NoError(t, err)
	assert.True(t, errors.Is(a.SameLayout(d), core.ErrShapeMismatch))
}

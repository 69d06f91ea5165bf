package montage

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eegprep/domain/core"
	dommontage "eegprep/domain/montage"
	"eegprep/domain/recording"
)

// fieldRecording puts every biosemi32 electrode plus one magnetometer on a
// field, value(position) * sin(2*pi*3*t).
func fieldRecording(t *testing.T, m *dommontage.Montage, value func(dommontage.Position) float64) *recording.Recording {
	t.Helper()
	const sfreq, n = 100.0, 200
	var chans []recording.Channel
	var data [][]float64
	for _, name := range biosemi32Labels {
		amp := value(m.Positions[name])
		row := make([]float64, n)
		for j := range row {
			row[j] = amp * math.Sin(2*math.Pi*3*float64(j)/sfreq)
		}
		chans = append(chans, recording.Channel{Name: name, Type: recording.TypeEEG})
		data = append(data, row)
	}
	chans = append(chans, recording.Channel{Name: "MEG 0111", Type: recording.TypeMag})
	data = append(data, make([]float64, n))
	rec, err := recording.New("field", sfreq, chans, data)
	require.NoError(t, err)
	return rec
}

func TestSplineInterpolator_ConstantFieldIsExact(t *testing.T) {
	m, err := NewBuiltin().Montage(Biosemi32)
	require.NoError(t, err)
	rec := fieldRecording(t, m, func(dommontage.Position) float64 { return 2 })
	rec.Data[rec.ChannelIndex("Cz")] = make([]float64, rec.NTimes())
	rec, err = rec.AddBads("Cz")
	require.NoError(t, err)

	out, names, err := NewSplineInterpolator().InterpolateBads(context.Background(), rec, m, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cz"}, names)
	assert.Empty(t, out.Bads)

	cz := out.Data[out.ChannelIndex("Cz")]
	fz := out.Data[out.ChannelIndex("Fz")]
	for j := range cz {
		assert.InDelta(t, fz[j], cz[j], 1e-6)
	}
	assert.Equal(t, "interpolate_bads", out.Provenance[len(out.Provenance)-2].Stage)
}

func TestSplineInterpolator_RecoversSmoothField(t *testing.T) {
	m, err := NewBuiltin().Montage(Biosemi32)
	require.NoError(t, err)
	rec := fieldRecording(t, m, func(p dommontage.Position) float64 { return p.X })
	truth := append([]float64(nil), rec.Data[rec.ChannelIndex("C3")]...)
	rec.Data[rec.ChannelIndex("C3")] = make([]float64, rec.NTimes())
	rec, err = rec.AddBads("C3", "MEG 0111")
	require.NoError(t, err)

	out, names, err := NewSplineInterpolator().InterpolateBads(context.Background(), rec, m, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"C3"}, names)
	assert.ElementsMatch(t, []string{"C3", "MEG 0111"}, out.Bads)

	got := out.Data[out.ChannelIndex("C3")]
	peak := 0
	for j := range truth {
		if math.Abs(truth[j]) > math.Abs(truth[peak]) {
			peak = j
		}
	}
	assert.InDelta(t, truth[peak], got[peak], 0.25*math.Abs(truth[peak]))
	assert.Equal(t, rec.Data[rec.ChannelIndex("Fz")], out.Data[out.ChannelIndex("Fz")])
}

func TestSplineInterpolator_Errors(t *testing.T) {
	m, err := NewBuiltin().Montage(Biosemi32)
	require.NoError(t, err)
	rec := fieldRecording(t, m, func(dommontage.Position) float64 { return 1 })
	interp := NewSplineInterpolator()

	out, names, err := interp.InterpolateBads(context.Background(), rec, m, true)
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.Equal(t, rec.Data, out.Data)

	_, _, err = interp.InterpolateBads(context.Background(), rec, nil, true)
	assert.True(t, errors.Is(err, core.ErrInvalidParameter))

	tiny := &dommontage.Montage{Name: "tiny", Positions: map[string]dommontage.Position{"Fz": m.Positions["Fz"], "Cz": m.Positions["Cz"]}}
	bad, err := rec.AddBads("Cz")
	require.NoError(t, err)
	_, _, err = interp.InterpolateBads(context.Background(), bad, tiny, true)
	assert.True(t, errors.Is(err, core.ErrInvalidParameter))

	bad, err = rec.AddBads("Oz")
	require.NoError(t, err)
	_, _, err = interp.InterpolateBads(context.Background(), bad, tiny, true)
	assert.True(t, errors.Is(err, core.ErrInvalidChannel))
}

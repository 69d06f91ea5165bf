package spectral

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eegprep/domain/core"
	"eegprep/domain/recording"
	"eegprep/ports"
)

func sineRecording(t *testing.T, sfreq, seconds float64, rows ...func(float64) float64) *recording.Recording {
	t.Helper()
	n := int(sfreq * seconds)
	chans := make([]recording.Channel, len(rows))
	data := make([][]float64, len(rows))
	for i, fn := range rows {
		chans[i] = recording.Channel{Name: string(rune('A' + i)), Type: recording.TypeEEG}
		data[i] = make([]float64, n)
		for j := range data[i] {
			data[i][j] = fn(float64(j) / sfreq)
		}
	}
	rec, err := recording.New("sine", sfreq, chans, data)
	require.NoError(t, err)
	return rec
}

func sine(freq, amp float64) func(float64) float64 {
	return func(t float64) float64 { return amp * math.Sin(2*math.Pi*freq*t) }
}

func TestFilter_HighpassRemovesDC(t *testing.T) {
	withDC := func(t float64) float64 { return 5 + sine(10, 1)(t) }
	rec := sineRecording(t, 100, 10, withDC, withDC, withDC)

	out, err := NewFFTFilter(2).Filter(context.Background(), rec, ports.FilterSpec{LowCut: ports.Float(1)})
	require.NoError(t, err)

	assert.Equal(t, rec.NChannels(), out.NChannels())
	assert.Equal(t, rec.NTimes(), out.NTimes())
	assert.Equal(t, rec.SFreq, out.SFreq)
	for ch := range out.Data {
		var mean float64
		for _, v := range out.Data[ch] {
			mean += v
		}
		mean /= float64(out.NTimes())
		assert.InDelta(t, 0, mean, 1e-9)
		for j := 0; j < out.NTimes(); j += 37 {
			assert.InDelta(t, sine(10, 1)(float64(j)/100), out.Data[ch][j], 1e-9)
		}
	}
	assert.Equal(t, "filter", out.Provenance[len(out.Provenance)-1].Stage)
	// input untouched
	assert.Equal(t, 5.0, rec.Data[0][0])
}

func TestFilter_LowpassRemovesHighBand(t *testing.T) {
	mixed := func(t float64) float64 { return sine(5, 1)(t) + sine(40, 1)(t) }
	rec := sineRecording(t, 200, 5, mixed)

	out, err := NewFFTFilter(1).Filter(context.Background(), rec, ports.FilterSpec{HighCut: ports.Float(20)})
	require.NoError(t, err)
	for j := 0; j < out.NTimes(); j += 13 {
		assert.InDelta(t, sine(5, 1)(float64(j)/200), out.Data[0][j], 1e-9)
	}
}

func TestFilter_InvalidCutoffs(t *testing.T) {
	rec := sineRecording(t, 100, 2, sine(1, 1))
	f := NewFFTFilter(1)
	cases := []ports.FilterSpec{
		{LowCut: ports.Float(0)},
		{LowCut: ports.Float(-1)},
		{LowCut: ports.Float(60)},
		{LowCut: ports.Float(10), HighCut: ports.Float(5)},
	}
	for _, spec := range cases {
		_, err := f.Filter(context.Background(), rec, spec)
		assert.True(t, errors.Is(err, core.ErrInvalidParameter))
	}
}

func TestNotchFilter_AttenuatesLineFrequency(t *testing.T) {
	noisy := func(t float64) float64 { return sine(10, 1)(t) + sine(50, 3)(t) }
	rec := sineRecording(t, 250, 10, noisy)

	assert.Greater(t, LineNoiseRatio(rec.Data[0], rec.SFreq, 50), 100.0)

	before := BandPower(rec.Data[0], rec.SFreq, 49.5, 50.5)
	out, err := NewFFTFilter(1).NotchFilter(context.Background(), rec, []float64{50}, nil)
	require.NoError(t, err)
	after := BandPower(out.Data[0], out.SFreq, 49.5, 50.5)

	assert.Less(t, after, before*1e-6)
	assert.Greater(t, BandPower(out.Data[0], out.SFreq, 9.5, 10.5), 0.1)
}

func TestFilter_SkipsStimChannels(t *testing.T) {
	rec := sineRecording(t, 100, 2, func(float64) float64 { return 3 }, func(float64) float64 { return 3 })
	rec, err := rec.SetChannelTypes(map[string]recording.ChannelType{"B": recording.TypeStim})
	require.NoError(t, err)

	out, err := NewFFTFilter(4).Filter(context.Background(), rec, ports.FilterSpec{LowCut: ports.Float(1)})
	require.NoError(t, err)
	assert.InDelta(t, 0, out.Data[0][10], 1e-9)
	assert.Equal(t, 3.0, out.Data[1][10])
}

func TestResample(t *testing.T) {
	rec := sineRecording(t, 200, 4, sine(3, 1))
	out, err := NewFFTFilter(2).Resample(context.Background(), rec, 100)
	require.NoError(t, err)
	assert.Equal(t, 100.0, out.SFreq)
	assert.Equal(t, 400, out.NTimes())
	for j := 0; j < out.NTimes(); j += 11 {
		assert.InDelta(t, sine(3, 1)(float64(j)/100), out.Data[0][j], 1e-6)
	}
}

func TestLineNoise_FlagsContaminatedChannels(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	clean := func(t float64) float64 { return sine(10, 1)(t) + 0.1*rng.NormFloat64() }
	noisy := func(t float64) float64 { return clean(t) + sine(60, 1)(t) }
	rec := sineRecording(t, 500, 20, clean, noisy, noisy)
	rec, err := rec.AddBads("C")
	require.NoError(t, err)

	report, err := NewFFTFilter(2).LineNoise(context.Background(), rec, []float64{60, 120}, 5)
	require.NoError(t, err)
	require.Len(t, report.Lines, 2)

	assert.Equal(t, 60.0, report.Lines[0].Freq)
	assert.Equal(t, []string{"B"}, report.Lines[0].Noisy)
	assert.Greater(t, report.Lines[0].MaxRatio, 100.0)
	assert.Empty(t, report.Lines[1].Noisy)
	assert.True(t, report.Contaminated())
}

func TestLineNoise_InvalidInput(t *testing.T) {
	rec := sineRecording(t, 100, 5, sine(10, 1))
	f := NewFFTFilter(1)

	_, err := f.LineNoise(context.Background(), rec, []float64{60}, 5)
	assert.True(t, errors.Is(err, core.ErrInvalidParameter))
	_, err = f.LineNoise(context.Background(), rec, nil, 5)
	assert.True(t, errors.Is(err, core.ErrInvalidParameter))
	_, err = f.LineNoise(context.Background(), rec, []float64{20}, 0)
	assert.True(t, errors.Is(err, core.ErrInvalidParameter))

	bad, err := rec.AddBads("A")
	require.NoError(t, err)
	_, err = f.LineNoise(context.Background(), bad, []float64{20}, 5)
	assert.True(t, errors.Is(err, core.ErrInvalidChannel))
}

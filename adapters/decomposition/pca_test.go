package decomposition

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eegprep/adapters/rng"
	"eegprep/adapters/synthetic"
	"eegprep/domain/core"
	domdec "eegprep/domain/decomposition"
	"eegprep/domain/epochs"
	"eegprep/domain/recording"
	"eegprep/ports"
)

func simulated(t *testing.T, seconds float64, ecg bool) *recording.Recording {
	t.Helper()
	cfg := synthetic.DefaultGeneratorConfig()
	cfg.Duration = seconds
	cfg.IncludeECG = ecg
	cfg.LineAmplitude = 0
	cfg.DriftAmplitude = 0
	rec, _, err := synthetic.NewGenerator(cfg).Generate()
	require.NoError(t, err)
	return rec
}

func TestApplyToEpochs_PreservesShape(t *testing.T) {
	ctx := context.Background()
	rec := simulated(t, 30, true)
	c, err := epochs.FixedLength(rec, 3)
	require.NoError(t, err)

	dec := NewPCADecomposer(DefaultConfig(), rng.SeededRNG{})
	d, err := dec.Fit(ctx, ports.FitInput{Epochs: c, Seed: 99})
	require.NoError(t, err)
	assert.Equal(t, 16, d.NComponents)
	assert.Equal(t, 10, d.FitEpochs)

	out, err := dec.ApplyToEpochs(ctx, d, []int{0, 2}, c)
	require.NoError(t, err)
	assert.Equal(t, c.Len(), out.Len())
	assert.Equal(t, c.ChannelNames(), out.ChannelNames())
	assert.Equal(t, c.NTimes(), out.NTimes())
	assert.Equal(t, c.Window, out.Window)

	stim := rec.ChannelIndex(synthetic.StimChannel)
	eog := rec.ChannelIndex(synthetic.EOGChannel)
	for i := range out.Epochs {
		assert.Equal(t, c.Epochs[i].Data[stim], out.Epochs[i].Data[stim])
		assert.Equal(t, c.Epochs[i].Data[eog], out.Epochs[i].Data[eog])
	}
	assert.NotEqual(t, c.Epochs[0].Data[0], out.Epochs[0].Data[0])
}

func TestApply_EmptyExcludeIsIdentity(t *testing.T) {
	ctx := context.Background()
	rec := simulated(t, 10, true)
	dec := NewPCADecomposer(DefaultConfig(), rng.SeededRNG{})
	d, err := dec.Fit(ctx, ports.FitInput{Recording: rec, Seed: 97})
	require.NoError(t, err)

	out, err := dec.ApplyToRecording(ctx, d, nil, rec)
	require.NoError(t, err)
	assert.Equal(t, rec.Data, out.Data)
}

func TestApply_ExcludingEveryComponentLeavesMean(t *testing.T) {
	ctx := context.Background()
	rec := simulated(t, 10, true)
	dec := NewPCADecomposer(DefaultConfig(), rng.SeededRNG{})
	d, err := dec.Fit(ctx, ports.FitInput{Recording: rec, Seed: 97})
	require.NoError(t, err)

	all := make([]int, d.NComponents)
	for i := range all {
		all[i] = i
	}
	out, err := dec.ApplyToRecording(ctx, d, all, rec)
	require.NoError(t, err)
	for j, name := range d.Channels {
		row := out.Data[out.ChannelIndex(name)]
		for tt := 0; tt < len(row); tt += 97 {
			assert.InDelta(t, d.Mean[j], row[tt], 1e-12)
		}
	}
}

func TestFindBadsByReference_EOG(t *testing.T) {
	ctx := context.Background()
	rec := simulated(t, 60, true)
	dec := NewPCADecomposer(DefaultConfig(), rng.SeededRNG{})
	d, err := dec.Fit(ctx, ports.FitInput{Recording: rec, Seed: 97})
	require.NoError(t, err)

	scores, err := dec.FindBadsByReference(ctx, d, rec, domdec.ReferenceEOG)
	require.NoError(t, err)
	assert.Equal(t, synthetic.EOGChannel, scores.Channel)
	assert.Len(t, scores.Scores, d.NComponents)

	top := scores.Ranking()[0]
	assert.Greater(t, math.Abs(scores.Scores[top]), 0.8)
	assert.Contains(t, scores.Indices, top)
}

func TestFindBadsByReference_SameSeedSameRanking(t *testing.T) {
	ctx := context.Background()
	rec := simulated(t, 30, true)
	dec := NewPCADecomposer(DefaultConfig(), rng.SeededRNG{})

	var rankings [][]int
	for i := 0; i < 2; i++ {
		d, err := dec.Fit(ctx, ports.FitInput{Recording: rec, Seed: 99})
		require.NoError(t, err)
		s, err := dec.FindBadsByReference(ctx, d, rec, domdec.ReferenceECG)
		require.NoError(t, err)
		rankings = append(rankings, s.Ranking())
	}
	assert.Equal(t, rankings[0], rankings[1])
}

func TestFindBadsByReference_SyntheticECG(t *testing.T) {
	ctx := context.Background()
	rec := simulated(t, 20, false)
	dec := NewPCADecomposer(DefaultConfig(), rng.SeededRNG{})
	d, err := dec.Fit(ctx, ports.FitInput{Recording: rec})
	require.NoError(t, err)

	s, err := dec.FindBadsByReference(ctx, d, rec, domdec.ReferenceECG)
	require.NoError(t, err)
	assert.Equal(t, "ECG-synthetic", s.Channel)

	noEOG, err := rec.DropChannels(synthetic.EOGChannel)
	require.NoError(t, err)
	d2, err := dec.Fit(ctx, ports.FitInput{Recording: noEOG})
	require.NoError(t, err)
	_, err = dec.FindBadsByReference(ctx, d2, noEOG, domdec.ReferenceEOG)
	assert.True(t, errors.Is(err, core.ErrInvalidChannel))
}

func TestFitAndApply_Errors(t *testing.T) {
	ctx := context.Background()
	rec := simulated(t, 9, true)
	c, err := epochs.FixedLength(rec, 3)
	require.NoError(t, err)
	dec := NewPCADecomposer(DefaultConfig(), rng.SeededRNG{})

	empty, err := c.Slice(0, 0)
	require.NoError(t, err)
	_, err = dec.Fit(ctx, ports.FitInput{Epochs: empty})
	assert.True(t, errors.Is(err, core.ErrEmptyInput))

	_, err = dec.Fit(ctx, ports.FitInput{Epochs: c, NComponents: 40})
	assert.True(t, errors.Is(err, core.ErrInvalidParameter))

	d, err := dec.Fit(ctx, ports.FitInput{Epochs: c, NComponents: 5})
	require.NoError(t, err)
	_, err = dec.ApplyToEpochs(ctx, d, []int{5}, c)
	assert.True(t, errors.Is(err, core.ErrInvalidParameter))

	reordered, err := rec.PickNames(append([]string{"Fp2", "Fp1"}, rec.ChannelNames()[2:]...)...)
	require.NoError(t, err)
	other, err := epochs.FixedLength(reordered, 3)
	require.NoError(t, err)
	_, err = dec.ApplyToEpochs(ctx, d, []int{0}, other)
	assert.True(t, errors.Is(err, core.ErrShapeMismatch))
}

func TestFindOutliers(t *testing.T) {
	scores := []float64{0.01, -0.02, 0.03, 0.0, 0.02, -0.01, 0.01, 0.02, -0.03, 0.01, 0.0, 0.95, 0.02}
	assert.Equal(t, []int{11}, findOutliers(scores, 3, 2))
	assert.Empty(t, findOutliers([]float64{0.1, 0.1, 0.1}, 3, 2))
}

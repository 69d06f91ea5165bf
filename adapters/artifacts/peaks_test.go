package artifacts

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eegprep/adapters/synthetic"
	"eegprep/domain/core"
	"eegprep/domain/decomposition"
	"eegprep/domain/epochs"
)

// matchPeaks checks every detected peak lies near an injected one and that
// at most missing injected peaks went undetected.
func matchPeaks(t *testing.T, got, want []int, tol, missing int) {
	t.Helper()
	near := func(a, b int) bool {
		d := a - b
		if d < 0 {
			d = -d
		}
		return d <= tol
	}
	for _, g := range got {
		found := false
		for _, w := range want {
			if near(g, w) {
				found = true
				break
			}
		}
		assert.True(t, found, "spurious peak at %d", g)
	}
	matched := 0
	for _, w := range want {
		for _, g := range got {
			if near(g, w) {
				matched++
				break
			}
		}
	}
	assert.GreaterOrEqual(t, matched, len(want)-missing)
}

func TestDetectPeaks_FindsInjectedBlinks(t *testing.T) {
	cfg := synthetic.DefaultGeneratorConfig()
	cfg.Duration = 60
	rec, truth, err := synthetic.NewGenerator(cfg).Generate()
	require.NoError(t, err)

	table, name, err := FindArtifactEvents(rec, decomposition.ReferenceEOG)
	require.NoError(t, err)
	assert.Equal(t, synthetic.EOGChannel, name)

	got := make([]int, len(table))
	for i, e := range table {
		got[i] = e.Sample
		assert.Equal(t, EOGEventCode, e.Code)
	}
	matchPeaks(t, got, truth.BlinkSamples, 3, 0)
}

func TestDetectPeaks_FindsHeartbeats(t *testing.T) {
	cfg := synthetic.DefaultGeneratorConfig()
	cfg.Duration = 30
	cfg.SFreq = 250
	rec, truth, err := synthetic.NewGenerator(cfg).Generate()
	require.NoError(t, err)

	table, _, err := FindArtifactEvents(rec, decomposition.ReferenceECG)
	require.NoError(t, err)
	got := make([]int, len(table))
	for i, e := range table {
		got[i] = e.Sample
	}
	matchPeaks(t, got, truth.BeatSamples, 3, 1)
}

func TestCreateArtifactEpochs(t *testing.T) {
	cfg := synthetic.DefaultGeneratorConfig()
	cfg.Duration = 60
	rec, truth, err := synthetic.NewGenerator(cfg).Generate()
	require.NoError(t, err)

	c, err := CreateArtifactEpochs(rec, decomposition.ReferenceEOG, DefaultArtifactWindow, nil)
	require.NoError(t, err)
	assert.Equal(t, 101, c.NTimes())
	assert.LessOrEqual(t, c.Len(), len(truth.BlinkSamples))
	assert.GreaterOrEqual(t, c.Len(), len(truth.BlinkSamples)-2)

	ev, err := c.Average()
	require.NoError(t, err)
	ev, err = ev.ApplyBaseline(epochs.Baseline{From: -0.5, To: -0.2})
	require.NoError(t, err)
	eog := rec.ChannelIndex(synthetic.EOGChannel)
	assert.Greater(t, ev.Data[eog][50], 100e-6)
}

func TestReferenceSignal_Missing(t *testing.T) {
	cfg := synthetic.DefaultGeneratorConfig()
	cfg.Duration = 5
	cfg.IncludeEOG = false
	rec, _, err := synthetic.NewGenerator(cfg).Generate()
	require.NoError(t, err)

	_, _, err = ReferenceSignal(rec, decomposition.ReferenceEOG)
	assert.True(t, errors.Is(err, core.ErrInvalidChannel))
}

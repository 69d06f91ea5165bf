package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	decadapter "eegprep/adapters/decomposition"
	"eegprep/adapters/montage"
	rejadapter "eegprep/adapters/rejection"
	"eegprep/adapters/spectral"
	"eegprep/adapters/synthetic"
	"eegprep/domain/core"
	"eegprep/domain/decomposition"
	"eegprep/domain/run"
	"eegprep/domain/stage"
	"eegprep/internal"
	apperrors "eegprep/internal/errors"
	"eegprep/internal/testkit"
	"eegprep/ports"
)

var quietLogger = internal.NewLogger(internal.LogLevelError)

func newPipeline(kit *testkit.TestKit, rejector ports.RejectorPort) *PipelineService {
	if rejector == nil {
		rejector = rejadapter.NewThresholdRejector(rejadapter.DefaultConfig(), kit.RNGAdapter())
	}
	return NewPipelineService(PipelineDeps{
		Filter:     spectral.NewFFTFilter(2),
		Rejector:   rejector,
		Decomposer: decadapter.NewPCADecomposer(decadapter.DefaultConfig(), kit.RNGAdapter()),
		Montages:   montage.NewBuiltin(),
		Ledger:     kit.LedgerAdapter(),
		Logger:     quietLogger,
	})
}

func TestPipeline_EndToEndScenario(t *testing.T) {
	kit := testkit.NewTestKit()
	rec, err := kit.QuietRecording(180, 3)
	require.NoError(t, err)

	out, err := newPipeline(kit, nil).Run(context.Background(), rec, DefaultParams())
	require.NoError(t, err)

	// 180 s at 3 s per epoch
	require.Equal(t, 60, out.Epochs.Len())
	for _, ep := range out.Epochs.Epochs {
		for _, row := range ep.Data {
			require.Len(t, row, 300)
		}
	}

	assert.Equal(t, 60, out.RejectLog.Len())
	assert.Equal(t, 60-out.RejectLog.BadCount(), out.Decomposition.FitEpochs)
	assert.Equal(t, []int{0, 2}, out.Exclude)

	require.Equal(t, 60, out.Repaired.Len())
	assert.NoError(t, out.Epochs.SameLayout(out.Repaired))
	assert.Equal(t, out.Epochs.Window, out.Repaired.Window)
	assert.Equal(t, out.Epochs.SFreq, out.Repaired.SFreq)
	assert.Equal(t, out.Epochs.Labels(), out.Repaired.Labels())
	assert.Equal(t, 60, out.SecondLog.Len())

	assert.Equal(t, []stage.StageName{
		stage.StageHighpass, stage.StageEpoching,
		stage.StageRejectFit, stage.StageRejectTransform,
		stage.StageICAFit, stage.StageICAApply,
		stage.StageSecondRejectFit, stage.StageSecondRejectTransform,
	}, out.Result.Names())
	assert.True(t, out.Result.Success())

	// the input snapshot is left alone
	assert.Equal(t, rec.ChannelNames(), out.Filtered.ChannelNames())
	assert.NotSame(t, &rec.Data[0][0], &out.Filtered.Data[0][0])
}

func TestPipeline_FitsOnGoodEpochsOnly(t *testing.T) {
	kit := testkit.NewTestKit()
	rec, _, err := kit.Recording(60, 5)
	require.NoError(t, err)

	rejector := &testkit.FlaggingRejector{Bad: []int{1, 4, 9, 17}}
	out, err := newPipeline(kit, rejector).Run(context.Background(), rec, DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, 20, out.Epochs.Len())
	assert.Equal(t, []int{20, 20}, rejector.FitSizes)
	assert.Equal(t, 16, out.Decomposition.FitEpochs)
	assert.Equal(t, 16, out.Cleaned.Len())
	assert.Equal(t, 20, out.Repaired.Len())
}

func TestPipeline_TrainEpochsClampedToCollection(t *testing.T) {
	kit := testkit.NewTestKit()
	rec, err := kit.QuietRecording(30, 1)
	require.NoError(t, err)

	rejector := &testkit.FlaggingRejector{}
	p := DefaultParams()
	p.SecondPass = false
	out, err := newPipeline(kit, rejector).Run(context.Background(), rec, p)
	require.NoError(t, err)

	assert.Equal(t, []int{10}, rejector.FitSizes)
	assert.Nil(t, out.SecondLog)
	assert.Len(t, out.Result.Results, 6)
}

func TestPipeline_EmptyTrainingSlice(t *testing.T) {
	kit := testkit.NewTestKit()
	rec, err := kit.QuietRecording(30, 1)
	require.NoError(t, err)

	p := DefaultParams()
	p.TrainEpochs = 0
	out, err := newPipeline(kit, nil).Run(context.Background(), rec, p)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, errors.Is(err, core.ErrEmptyInput))
	assert.Contains(t, err.Error(), string(stage.StageRejectFit))
	assert.Equal(t, apperrors.CodeStageFailed, apperrors.GetCode(err))
}

func TestPipeline_InvalidCutoff(t *testing.T) {
	kit := testkit.NewTestKit()
	rec, err := kit.QuietRecording(30, 1)
	require.NoError(t, err)

	for _, cutoff := range []float64{0, -1} {
		p := DefaultParams()
		p.Highpass = cutoff
		_, err := newPipeline(kit, nil).Run(context.Background(), rec, p)
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrInvalidParameter))
		assert.Contains(t, err.Error(), "highpass")
	}

	runs, err := kit.LedgerAdapter().ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, r := range runs {
		assert.Equal(t, run.StatusFailed, r.Status)
	}
}

func TestPipeline_Cancelled(t *testing.T) {
	kit := testkit.NewTestKit()
	rec, err := kit.QuietRecording(30, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := newPipeline(kit, nil).Run(ctx, rec, DefaultParams())
	assert.Nil(t, out)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPipeline_DeterministicScores(t *testing.T) {
	kit := testkit.NewTestKit()
	rec, _, err := kit.Recording(90, 8)
	require.NoError(t, err)

	a, err := newPipeline(kit, nil).Run(context.Background(), rec, DefaultParams())
	require.NoError(t, err)
	b, err := newPipeline(kit, nil).Run(context.Background(), rec, DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, a.RejectLog.BadEpochs, b.RejectLog.BadEpochs)
	require.Len(t, a.Scores, len(b.Scores))
	for i := range a.Scores {
		assert.Equal(t, a.Scores[i].Ranking(), b.Scores[i].Ranking())
	}
	assert.Equal(t, a.Manifest.Fingerprint.Fingerprint, b.Manifest.Fingerprint.Fingerprint)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestPipeline_MissingReferenceSkipped(t *testing.T) {
	kit := testkit.NewTestKit()
	cfg := synthetic.DefaultGeneratorConfig()
	cfg.Duration = 60
	cfg.IncludeEOG = false
	rec, _, err := synthetic.NewGenerator(cfg).Generate()
	require.NoError(t, err)

	out, err := newPipeline(kit, &testkit.FlaggingRejector{}).Run(context.Background(), rec, DefaultParams())
	require.NoError(t, err)
	require.Len(t, out.Scores, 1)
	assert.Equal(t, decomposition.ReferenceECG, out.Scores[0].Kind)
}

func TestPipeline_InjectedDecider(t *testing.T) {
	kit := testkit.NewTestKit()
	rec, _, err := kit.Recording(60, 2)
	require.NoError(t, err)

	svc := NewPipelineService(PipelineDeps{
		Filter:     spectral.NewFFTFilter(2),
		Rejector:   &testkit.FlaggingRejector{},
		Decomposer: decadapter.NewPCADecomposer(decadapter.DefaultConfig(), kit.RNGAdapter()),
		Decider:    testkit.ThresholdDecider(0.6),
		Logger:     quietLogger,
	})
	out, err := svc.Run(context.Background(), rec, DefaultParams())
	require.NoError(t, err)

	for _, idx := range out.Exclude {
		var hit bool
		for _, s := range out.Scores {
			if s.Scores[idx] >= 0.6 || s.Scores[idx] <= -0.6 {
				hit = true
			}
		}
		assert.True(t, hit, "component %d excluded without a strong score", idx)
	}
}

func TestPipeline_ExcludeOutOfRange(t *testing.T) {
	kit := testkit.NewTestKit()
	rec, err := kit.QuietRecording(30, 1)
	require.NoError(t, err)

	p := DefaultParams()
	p.NComponents = 3
	p.Exclude = []int{0, 5}
	_, err = newPipeline(kit, &testkit.FlaggingRejector{}).Run(context.Background(), rec, p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidParameter))
	assert.Contains(t, err.Error(), string(stage.StageICAFit))
}

func TestPipeline_Montage(t *testing.T) {
	kit := testkit.NewTestKit()
	rec, err := kit.QuietRecording(30, 1)
	require.NoError(t, err)

	p := DefaultParams()
	p.Montage = montage.Standard1020
	out, err := newPipeline(kit, &testkit.FlaggingRejector{}).Run(context.Background(), rec, p)
	require.NoError(t, err)
	assert.Equal(t, stage.StageMontage, out.Result.Names()[0])
	assert.Equal(t, rec.NChannels(), out.Filtered.NChannels())

	p.Montage = "nowhere"
	_, err = newPipeline(kit, &testkit.FlaggingRejector{}).Run(context.Background(), rec, p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestPipeline_LedgerRecordsRun(t *testing.T) {
	kit := testkit.NewTestKit()
	rec, err := kit.QuietRecording(30, 1)
	require.NoError(t, err)
	ctx := context.Background()

	out, err := newPipeline(kit, &testkit.FlaggingRejector{Bad: []int{2}}).Run(ctx, rec, DefaultParams())
	require.NoError(t, err)

	l := kit.LedgerAdapter()
	summary, err := l.GetRun(ctx, out.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.StatusCompleted, summary.Status)
	assert.Equal(t, 10, summary.NEpochs)
	assert.Equal(t, 1, summary.NBad)

	manifest, err := l.GetRunManifest(ctx, out.RunID)
	require.NoError(t, err)
	assert.Equal(t, out.Manifest.Fingerprint.Fingerprint, manifest.Fingerprint.Fingerprint)

	kind := core.ArtifactRejectLog
	logs, err := l.ListArtifacts(ctx, ports.ArtifactFilters{RunID: &out.RunID, Kind: &kind})
	require.NoError(t, err)
	assert.Len(t, logs, 2) // first and second pass

	kind = core.ArtifactStageResult
	results, err := l.ListArtifacts(ctx, ports.ArtifactFilters{RunID: &out.RunID, Kind: &kind})
	require.NoError(t, err)
	assert.Len(t, results, len(out.Result.Results))
}

func TestPipelineOutcome_Report(t *testing.T) {
	kit := testkit.NewTestKit()
	rec, err := kit.QuietRecording(30, 1)
	require.NoError(t, err)

	out, err := newPipeline(kit, &testkit.FlaggingRejector{Bad: []int{0, 3}}).Run(context.Background(), rec, DefaultParams())
	require.NoError(t, err)

	r := out.Report()
	assert.Equal(t, out.RunID, r.RunID)
	assert.Equal(t, rec.ID, r.Recording.ID)
	require.NotNil(t, r.RejectLog)
	assert.Equal(t, []int{0, 3}, r.RejectLog.BadIndices)
	assert.Equal(t, []int{0, 2}, r.Exclude)
	assert.Equal(t, out.Decomposition.NComponents, r.Components)
	assert.Len(t, r.Stages, 8)
	assert.NotEmpty(t, r.Provenance)
}

func TestParams_Validate(t *testing.T) {
	p := DefaultParams()
	require.NoError(t, p.Validate())

	p.Decider = "vote"
	assert.True(t, errors.Is(p.Validate(), core.ErrInvalidParameter))

	p = DefaultParams()
	p.ReferenceKinds = []decomposition.ReferenceKind{"emg"}
	assert.Error(t, p.Validate())
}

func TestPipeline_ObserverSeesPlanOrder(t *testing.T) {
	kit := testkit.NewTestKit()
	rec, err := kit.QuietRecording(30, 1)
	require.NoError(t, err)

	obs := &recordingObserver{}
	svc := NewPipelineService(PipelineDeps{
		Filter:     spectral.NewFFTFilter(2),
		Rejector:   &testkit.FlaggingRejector{Bad: []int{1}},
		Decomposer: decadapter.NewPCADecomposer(decadapter.DefaultConfig(), kit.RNGAdapter()),
		Observer:   obs,
		Logger:     quietLogger,
	})
	p := DefaultParams()
	out, err := svc.Run(context.Background(), rec, p)
	require.NoError(t, err)

	plan := svc.Plan(p)
	require.Len(t, obs.events, len(plan.Stages))
	for i, spec := range plan.Stages {
		assert.Equal(t, spec.Name, obs.events[i].Stage)
		assert.Equal(t, out.RunID, obs.events[i].RunID)
		assert.True(t, obs.events[i].Success)
	}
}

package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eegprep/domain/artifacts"
	"eegprep/domain/core"
	"eegprep/domain/stage"
	apperrors "eegprep/internal/errors"
	"eegprep/internal/testkit"
)

func TestStageRunner_RecordsAndPersists(t *testing.T) {
	kit := testkit.NewTestKit()
	l := kit.LedgerAdapter()
	runner := NewStageRunner(l, quietLogger)
	runID := core.NewRunID()
	result := stage.NewPipelineResult(stage.NewStagePlan(nil))
	ctx := context.Background()

	err := runner.Run(ctx, runID, result, stage.StageEpoching, func(context.Context) (stage.StageMetrics, []core.Artifact, error) {
		n := 4
		return stage.StageMetrics{ProcessedCount: n, Epochs: &n}, []core.Artifact{
			core.NewArtifact(core.ArtifactEpochSummary, string(stage.StageEpoching), artifacts.EpochSummary{Epochs: 4}),
		}, nil
	})
	require.NoError(t, err)

	res, ok := result.Result(stage.StageEpoching)
	require.True(t, ok)
	assert.True(t, res.Success)
	assert.Equal(t, 4, *res.Metrics.Epochs)
	assert.Len(t, res.Artifacts, 1)

	stored, err := l.GetArtifactsByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, core.ArtifactEpochSummary, stored[0].Kind)
	assert.Equal(t, core.ArtifactStageResult, stored[1].Kind)
}

func TestStageRunner_FailureNamesStage(t *testing.T) {
	runner := NewStageRunner(nil, quietLogger)
	result := stage.NewPipelineResult(stage.NewStagePlan(nil))

	err := runner.Run(context.Background(), core.NewRunID(), result, stage.StageRejectFit, func(context.Context) (stage.StageMetrics, []core.Artifact, error) {
		return stage.StageMetrics{}, nil, core.NewEmptyInputError("no epochs")
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrEmptyInput))
	assert.Equal(t, apperrors.CodeStageFailed, apperrors.GetCode(err))
	assert.Contains(t, err.Error(), "reject_fit")

	assert.False(t, result.Success())
	res, ok := result.Result(stage.StageRejectFit)
	require.True(t, ok)
	assert.Contains(t, res.Error, "no epochs")
}

func TestStageRunner_CancelledBeforeStart(t *testing.T) {
	runner := NewStageRunner(nil, quietLogger)
	result := stage.NewPipelineResult(stage.NewStagePlan(nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := runner.Run(ctx, core.NewRunID(), result, stage.StageHighpass, func(context.Context) (stage.StageMetrics, []core.Artifact, error) {
		called = true
		return stage.StageMetrics{}, nil, nil
	})
	assert.False(t, called)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, result.Overall.Failed)
}

func TestStageRunner_RejectsInvalidArtifact(t *testing.T) {
	kit := testkit.NewTestKit()
	runner := NewStageRunner(kit.LedgerAdapter(), quietLogger)
	result := stage.NewPipelineResult(stage.NewStagePlan(nil))

	err := runner.Run(context.Background(), core.NewRunID(), result, stage.StageICAFit, func(context.Context) (stage.StageMetrics, []core.Artifact, error) {
		return stage.StageMetrics{}, []core.Artifact{core.NewArtifact("unknown", "", nil)}, nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ica_fit")
}

type recordingObserver struct {
	events []stage.StageEvent
}

func (o *recordingObserver) StageFinished(ev stage.StageEvent) { o.events = append(o.events, ev) }

func TestStageRunner_NotifiesObserver(t *testing.T) {
	obs := &recordingObserver{}
	runner := NewStageRunner(nil, quietLogger).WithObserver(obs)
	runID := core.NewRunID()
	result := stage.NewPipelineResult(stage.NewStagePlan(nil))
	ok := func(context.Context) (stage.StageMetrics, []core.Artifact, error) { return stage.StageMetrics{}, nil, nil }
	fail := func(context.Context) (stage.StageMetrics, []core.Artifact, error) {
		return stage.StageMetrics{}, nil, core.NewEmptyInputError("nothing")
	}

	require.NoError(t, runner.Run(context.Background(), runID, result, stage.StageHighpass, ok))
	require.Error(t, runner.Run(context.Background(), runID, result, stage.StageEpoching, fail))

	require.Len(t, obs.events, 2)
	assert.Equal(t, runID, obs.events[0].RunID)
	assert.Equal(t, stage.StageHighpass, obs.events[0].Stage)
	assert.True(t, obs.events[0].Success)
	assert.Equal(t, stage.StageEpoching, obs.events[1].Stage)
	assert.False(t, obs.events[1].Success)
	assert.Contains(t, obs.events[1].Error, "nothing")
}

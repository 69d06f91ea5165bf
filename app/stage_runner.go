package app

import (
	"context"
	"time"

	"eegprep/domain/artifacts"
	"eegprep/domain/core"
	"eegprep/domain/stage"
	"eegprep/internal"
	"eegprep/internal/errors"
	"eegprep/ports"
)

// StageFunc does the work of one stage and reports its metrics and any
// artifacts to persist.
type StageFunc func(ctx context.Context) (stage.StageMetrics, []core.Artifact, error)

// StageRunner executes pipeline stages one at a time, timing each, recording
// the outcome and persisting artifacts to the ledger when one is configured.
type StageRunner struct {
	ledgerPort ports.LedgerWriterPort
	observer   ports.StageObserverPort
	logger     *internal.Logger
}

// NewStageRunner creates a new stage runner. ledgerPort may be nil.
func NewStageRunner(ledgerPort ports.LedgerWriterPort, logger *internal.Logger) *StageRunner {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &StageRunner{
		ledgerPort: ledgerPort,
		logger:     logger.WithComponent("Stage"),
	}
}

// WithObserver publishes a stage.StageEvent to o after every stage.
func (r *StageRunner) WithObserver(o ports.StageObserverPort) *StageRunner {
	r.observer = o
	return r
}

// Run executes fn as stage name. A cancelled ctx, a stage error or a
// ledger failure all abort the run with a STAGE_FAILED error naming the
// stage; the underlying sentinel stays reachable through errors.Is.
func (r *StageRunner) Run(ctx context.Context, runID core.RunID, result *stage.PipelineResult, name stage.StageName, fn StageFunc) error {
	if err := ctx.Err(); err != nil {
		r.record(result, name, stage.StageMetrics{}, nil, 0, err)
		r.notify(runID, name, 0, err)
		return errors.StageFailed(string(name), err)
	}

	start := time.Now()
	metrics, arts, err := fn(ctx)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		r.record(result, name, metrics, nil, elapsed, err)
		r.logger.Error("%s failed after %dms: %v", name, elapsed, err)
		r.notify(runID, name, elapsed, err)
		return errors.StageFailed(string(name), err)
	}

	res := r.record(result, name, metrics, arts, elapsed, nil)
	r.logger.Info("%s completed in %dms (%d artifacts)", name, elapsed, len(arts))

	if err := r.persist(ctx, runID, name, res, arts); err != nil {
		r.notify(runID, name, elapsed, err)
		return errors.StageFailed(string(name), err)
	}
	r.notify(runID, name, elapsed, nil)
	return nil
}

func (r *StageRunner) notify(runID core.RunID, name stage.StageName, elapsed int64, err error) {
	if r.observer == nil {
		return
	}
	ev := stage.StageEvent{
		RunID:      runID,
		Stage:      name,
		Success:    err == nil,
		DurationMs: elapsed,
		Timestamp:  time.Now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	r.observer.StageFinished(ev)
}

func (r *StageRunner) record(result *stage.PipelineResult, name stage.StageName, metrics stage.StageMetrics, arts []core.Artifact, elapsed int64, err error) stage.StageResult {
	metrics.DurationMs = elapsed
	res := stage.StageResult{
		StageName: name,
		Success:   err == nil,
		Metrics:   metrics,
		Artifacts: arts,
		Duration:  elapsed,
	}
	if err != nil {
		res.Error = err.Error()
	}
	result.AddResult(res)
	return res
}

// persist validates and stores every stage artifact, then the stage result
// itself without the artifact payloads.
func (r *StageRunner) persist(ctx context.Context, runID core.RunID, name stage.StageName, res stage.StageResult, arts []core.Artifact) error {
	if r.ledgerPort == nil {
		return nil
	}
	res.Artifacts = nil
	all := append(append([]core.Artifact(nil), arts...), core.NewArtifact(core.ArtifactStageResult, string(name), res))
	for _, artifact := range all {
		if err := artifacts.ValidateArtifact(artifact); err != nil {
			return errors.Wrapf(err, "%s artifact validation failed", artifact.Kind)
		}
		if err := r.ledgerPort.StoreArtifact(ctx, runID, artifact); err != nil {
			return errors.WithCode(errors.CodeDatabaseError, errors.Wrapf(err, "store %s artifact", artifact.Kind))
		}
	}
	return nil
}

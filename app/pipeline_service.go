package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"eegprep/domain/artifacts"
	"eegprep/domain/core"
	"eegprep/domain/decomposition"
	"eegprep/domain/epochs"
	"eegprep/domain/recording"
	"eegprep/domain/rejection"
	"eegprep/domain/run"
	"eegprep/domain/stage"
	"eegprep/internal"
	"eegprep/ports"
)

// CodeVersion is stamped into every run manifest.
const CodeVersion = "eegprep/0.4.0"

// PipelineDeps are the capabilities the pipeline sequences. Montages,
// Ledger, Decider and Observer are optional.
type PipelineDeps struct {
	Filter      ports.FilterPort
	Rejector    ports.RejectorPort
	Decomposer  ports.DecomposerPort
	Montages    ports.MontageProviderPort
	Ledger      ports.LedgerPort
	Decider     ports.ExclusionDecider
	Observer    ports.StageObserverPort
	Logger      *internal.Logger
	CodeVersion string
}

// PipelineService runs the filter, epoch, reject, decompose, re-reject sequence
// over one recording.
type PipelineService struct {
	deps        PipelineDeps
	stageRunner *StageRunner
	logger      *internal.Logger
}

// PipelineOutcome holds every intermediate snapshot of a completed run.
type PipelineOutcome struct {
	RunID         core.RunID
	Params        Params
	Manifest      *run.RunManifestArtifact
	Input         *recording.Recording
	Filtered      *recording.Recording
	Epochs        *epochs.Collection
	Cleaned       *epochs.Collection
	RejectLog     *rejection.RejectLog
	Thresholds    map[string]float64
	Decomposition *decomposition.Decomposition
	Scores        []decomposition.ReferenceScores
	Exclude       []int
	Repaired      *epochs.Collection
	SecondCleaned *epochs.Collection
	SecondLog     *rejection.RejectLog
	Result        *stage.PipelineResult
}

// NewPipelineService creates a pipeline service
func NewPipelineService(deps PipelineDeps) *PipelineService {
	if deps.Logger == nil {
		deps.Logger = internal.DefaultLogger
	}
	if deps.CodeVersion == "" {
		deps.CodeVersion = CodeVersion
	}
	var writer ports.LedgerWriterPort
	if deps.Ledger != nil {
		writer = deps.Ledger
	}
	runner := NewStageRunner(writer, deps.Logger)
	if deps.Observer != nil {
		runner.WithObserver(deps.Observer)
	}
	return &PipelineService{
		deps:        deps,
		stageRunner: runner,
		logger:      deps.Logger.WithComponent("Pipeline"),
	}
}

// Plan lists the stages Run will execute for p, in order.
func (s *PipelineService) Plan(p Params) *stage.StagePlan {
	var specs []stage.StageSpec
	add := func(name stage.StageName, cfg map[string]interface{}) {
		specs = append(specs, stage.StageSpec{Name: name, Kind: stage.KindOf(name), Config: cfg})
	}
	if p.Montage != "" {
		add(stage.StageMontage, map[string]interface{}{"montage": p.Montage})
	}
	add(stage.StageHighpass, map[string]interface{}{"cutoff": p.Highpass})
	add(stage.StageEpoching, map[string]interface{}{"duration": p.EpochDuration})
	add(stage.StageRejectFit, map[string]interface{}{"train_epochs": p.TrainEpochs, "seed": p.RejectSeed})
	add(stage.StageRejectTransform, nil)
	add(stage.StageICAFit, map[string]interface{}{"n_components": p.NComponents, "seed": p.ICASeed})
	add(stage.StageICAApply, map[string]interface{}{"exclude": p.Exclude})
	if p.SecondPass {
		add(stage.StageSecondRejectFit, map[string]interface{}{"train_epochs": p.TrainEpochs, "seed": p.RejectSeed})
		add(stage.StageSecondRejectTransform, nil)
	}
	return stage.NewStagePlan(specs)
}

// Run executes the pipeline. Any stage failure aborts the run; the error
// names the stage and wraps the domain sentinel. No partial outcome is
// returned on failure.
func (s *PipelineService) Run(ctx context.Context, rec *recording.Recording, p Params) (*PipelineOutcome, error) {
	if rec == nil {
		return nil, core.NewEmptyInputError("pipeline needs a recording")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	plan := s.Plan(p)
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	out := &PipelineOutcome{
		RunID:  core.NewRunID(),
		Params: p,
		Input:  rec,
		Result: stage.NewPipelineResult(plan),
	}
	out.Manifest = run.NewRunManifestArtifact(out.RunID, rec.ID, rec.ChannelNames(), p.ToMap(), plan,
		p.RejectSeed, p.ICASeed, s.deps.CodeVersion)

	s.logger.Info("run %s: %s, %d channels, %.1fs at %g Hz, %d stages",
		out.RunID, rec.ID, rec.NChannels(), rec.Duration(), rec.SFreq, len(plan.Stages))

	if s.deps.Ledger != nil {
		if err := s.deps.Ledger.StoreArtifact(ctx, out.RunID, out.Manifest.ToCoreArtifact()); err != nil {
			return nil, fmt.Errorf("store run manifest: %w", err)
		}
	}

	if err := s.execute(ctx, out); err != nil {
		s.saveRun(ctx, out, run.StatusFailed)
		return nil, err
	}
	s.saveRun(ctx, out, run.StatusCompleted)

	s.logger.Info("run %s completed: %s epochs, %d rejected, exclude %v",
		out.RunID, humanize.Comma(int64(out.Epochs.Len())), out.RejectLog.BadCount(), out.Exclude)
	return out, nil
}

func (s *PipelineService) execute(ctx context.Context, out *PipelineOutcome) error {
	p := out.Params
	rec := out.Input

	if p.Montage != "" {
		if err := s.runStage(ctx, out, stage.StageMontage, func(ctx context.Context) (stage.StageMetrics, []core.Artifact, error) {
			restricted, err := s.restrictToMontage(rec, p.Montage)
			if err != nil {
				return stage.StageMetrics{}, nil, err
			}
			dropped := rec.NChannels() - restricted.NChannels()
			rec = restricted
			m := recordingMetrics(rec)
			m.Custom = map[string]interface{}{"dropped_channels": dropped}
			return m, nil, nil
		}); err != nil {
			return err
		}
	}

	if err := s.runStage(ctx, out, stage.StageHighpass, func(ctx context.Context) (stage.StageMetrics, []core.Artifact, error) {
		filtered, err := s.highpass(ctx, rec, p.Highpass)
		if err != nil {
			return stage.StageMetrics{}, nil, err
		}
		out.Filtered = filtered
		return recordingMetrics(filtered), nil, nil
	}); err != nil {
		return err
	}

	if err := s.runStage(ctx, out, stage.StageEpoching, func(ctx context.Context) (stage.StageMetrics, []core.Artifact, error) {
		c, err := epochs.FixedLength(out.Filtered, p.EpochDuration)
		if err != nil {
			return stage.StageMetrics{}, nil, err
		}
		if c.Len() == 0 {
			return stage.StageMetrics{}, nil, core.NewEmptyInputError(fmt.Sprintf("recording of %.2fs is shorter than one %gs epoch", out.Filtered.Duration(), p.EpochDuration))
		}
		out.Epochs = c
		return epochMetrics(c), []core.Artifact{summaryArtifact(stage.StageEpoching, c)}, nil
	}); err != nil {
		return err
	}

	cleaned, log, thresholds, err := s.rejectionPass(ctx, out, out.Epochs, stage.StageRejectFit, stage.StageRejectTransform)
	if err != nil {
		return err
	}
	out.Cleaned, out.RejectLog, out.Thresholds = cleaned, log, thresholds

	if err := s.runStage(ctx, out, stage.StageICAFit, func(ctx context.Context) (stage.StageMetrics, []core.Artifact, error) {
		return s.fitDecomposition(ctx, out)
	}); err != nil {
		return err
	}

	if err := s.runStage(ctx, out, stage.StageICAApply, func(ctx context.Context) (stage.StageMetrics, []core.Artifact, error) {
		repaired, err := s.deps.Decomposer.ApplyToEpochs(ctx, out.Decomposition, out.Exclude, out.Epochs)
		if err != nil {
			return stage.StageMetrics{}, nil, err
		}
		if repaired.Len() != out.Epochs.Len() {
			return stage.StageMetrics{}, nil, core.NewShapeError("repaired epochs", out.Epochs.Len(), repaired.Len())
		}
		if err := out.Epochs.SameLayout(repaired); err != nil {
			return stage.StageMetrics{}, nil, err
		}
		out.Repaired = repaired
		m := epochMetrics(repaired)
		m.Custom = map[string]interface{}{"excluded": len(out.Exclude)}
		return m, []core.Artifact{summaryArtifact(stage.StageICAApply, repaired)}, nil
	}); err != nil {
		return err
	}

	if p.SecondPass {
		cleaned, log, _, err := s.rejectionPass(ctx, out, out.Repaired, stage.StageSecondRejectFit, stage.StageSecondRejectTransform)
		if err != nil {
			return err
		}
		out.SecondCleaned, out.SecondLog = cleaned, log
	}
	return nil
}

func (s *PipelineService) runStage(ctx context.Context, out *PipelineOutcome, name stage.StageName, fn StageFunc) error {
	return s.stageRunner.Run(ctx, out.RunID, out.Result, name, fn)
}

func (s *PipelineService) restrictToMontage(rec *recording.Recording, name string) (*recording.Recording, error) {
	if s.deps.Montages == nil {
		return nil, core.NewParameterError("montage", name, "no montage provider configured")
	}
	m, err := s.deps.Montages.Montage(name)
	if err != nil {
		return nil, err
	}
	if missing := m.Missing(rec); len(missing) > 0 {
		s.logger.Warn("montage %s has no position for %v; dropping them", name, missing)
	}
	return m.Restrict(rec)
}

func (s *PipelineService) highpass(ctx context.Context, rec *recording.Recording, cutoff float64) (*recording.Recording, error) {
	if !(cutoff > 0) {
		return nil, core.NewParameterError("highpass", cutoff, "cutoff must be greater than 0 Hz")
	}
	if nyquist := rec.SFreq / 2; cutoff >= nyquist {
		return nil, core.NewParameterError("highpass", cutoff, fmt.Sprintf("cutoff must be below Nyquist (%g Hz)", nyquist))
	}
	filtered, err := s.deps.Filter.Filter(ctx, rec, ports.FilterSpec{LowCut: ports.Float(cutoff)})
	if err != nil {
		return nil, err
	}
	if filtered.NChannels() != rec.NChannels() {
		return nil, core.NewShapeError("filtered channels", rec.NChannels(), filtered.NChannels())
	}
	if filtered.SFreq != rec.SFreq {
		return nil, fmt.Errorf("%w: filter changed sfreq from %g to %g", core.ErrShapeMismatch, rec.SFreq, filtered.SFreq)
	}
	return filtered, nil
}

// rejectionPass fits the rejector on the leading training slice of c and
// transforms all of c.
func (s *PipelineService) rejectionPass(ctx context.Context, out *PipelineOutcome, c *epochs.Collection, fitName, transformName stage.StageName) (*epochs.Collection, *rejection.RejectLog, map[string]float64, error) {
	p := out.Params
	var model ports.RejectionModel

	if err := s.runStage(ctx, out, fitName, func(ctx context.Context) (stage.StageMetrics, []core.Artifact, error) {
		if p.TrainEpochs < 0 {
			return stage.StageMetrics{}, nil, core.NewParameterError("train_epochs", p.TrainEpochs, "must not be negative")
		}
		n := p.TrainEpochs
		if n > c.Len() {
			s.logger.Warn("%s: train_epochs %d exceeds %d epochs; using all", fitName, n, c.Len())
			n = c.Len()
		}
		train, err := c.Slice(0, n)
		if err != nil {
			return stage.StageMetrics{}, nil, err
		}
		if train.Len() == 0 {
			return stage.StageMetrics{}, nil, core.NewEmptyInputError("rejection training slice has 0 epochs")
		}
		m, err := s.deps.Rejector.Fit(ctx, train, p.RejectSeed)
		if err != nil {
			return stage.StageMetrics{}, nil, err
		}
		model = m
		s.logger.Trace("%s thresholds: %v", fitName, m.Thresholds())
		metrics := epochMetrics(train)
		metrics.ProcessedCount = train.Len()
		metrics.Custom = map[string]interface{}{"thresholds": len(m.Thresholds()), "seed": p.RejectSeed}
		return metrics, nil, nil
	}); err != nil {
		return nil, nil, nil, err
	}

	var (
		cleaned *epochs.Collection
		log     *rejection.RejectLog
	)
	if err := s.runStage(ctx, out, transformName, func(ctx context.Context) (stage.StageMetrics, []core.Artifact, error) {
		cl, l, err := model.Transform(ctx, c)
		if err != nil {
			return stage.StageMetrics{}, nil, err
		}
		if err := l.Validate(c); err != nil {
			return stage.StageMetrics{}, nil, err
		}
		cleaned, log = cl, l
		bad := l.BadCount()
		metrics := epochMetrics(cl)
		metrics.ProcessedCount = c.Len()
		metrics.SuccessCount = c.Len() - bad
		metrics.FailureCount = bad
		metrics.Custom = map[string]interface{}{"interpolated_cells": l.CountLabel(rejection.Interpolated)}
		return metrics, []core.Artifact{core.NewArtifact(core.ArtifactRejectLog, string(transformName), l)}, nil
	}); err != nil {
		return nil, nil, nil, err
	}
	return cleaned, log, model.Thresholds(), nil
}

// fitDecomposition fits on the epochs the reject log keeps, scores each
// reference kind against the filtered recording and settles the exclusion set.
func (s *PipelineService) fitDecomposition(ctx context.Context, out *PipelineOutcome) (stage.StageMetrics, []core.Artifact, error) {
	p := out.Params
	clean, err := out.Epochs.Mask(out.RejectLog.GoodMask())
	if err != nil {
		return stage.StageMetrics{}, nil, err
	}
	if want := out.Epochs.Len() - out.RejectLog.BadCount(); clean.Len() != want {
		return stage.StageMetrics{}, nil, core.NewShapeError("clean epochs", want, clean.Len())
	}
	if clean.Len() == 0 {
		return stage.StageMetrics{}, nil, core.NewEmptyInputError("every epoch was rejected; nothing to fit the decomposition on")
	}

	d, err := s.deps.Decomposer.Fit(ctx, ports.FitInput{Epochs: clean, NComponents: p.NComponents, Seed: p.ICASeed})
	if err != nil {
		return stage.StageMetrics{}, nil, err
	}

	arts := []core.Artifact{core.NewArtifact(core.ArtifactDecomposition, string(stage.StageICAFit), artifacts.DecompositionSummary{
		Method:      d.Method,
		NComponents: d.NComponents,
		Channels:    d.Channels,
		Explained:   d.ExplainedVariance,
		Seed:        d.Seed,
		FitSize:     clean.Len(),
	})}

	var scores []decomposition.ReferenceScores
	for _, kind := range p.ReferenceKinds {
		sc, err := s.deps.Decomposer.FindBadsByReference(ctx, d, out.Filtered, kind)
		if errors.Is(err, core.ErrInvalidChannel) {
			s.logger.Warn("no %s reference: %v", kind, err)
			continue
		}
		if err != nil {
			return stage.StageMetrics{}, nil, err
		}
		scores = append(scores, *sc)
		arts = append(arts, core.NewArtifact(core.ArtifactReferenceScores, string(stage.StageICAFit), sc))
		s.logger.Debug("%s scores on %s flag %v", kind, sc.Channel, sc.Indices)
	}

	decider, label := s.decider(p)
	exclude, err := decider(ctx, d, scores)
	if err != nil {
		return stage.StageMetrics{}, nil, fmt.Errorf("exclusion decider: %w", err)
	}
	d, err = d.WithExclude(exclude)
	if err != nil {
		return stage.StageMetrics{}, nil, err
	}
	out.Decomposition, out.Scores, out.Exclude = d, scores, d.Exclude
	arts = append(arts, core.NewArtifact(core.ArtifactExclusion, string(stage.StageICAFit), artifacts.Exclusion{Exclude: d.Exclude, Decider: label}))

	metrics := epochMetrics(clean)
	metrics.ProcessedCount = clean.Len()
	metrics.Custom = map[string]interface{}{"components": d.NComponents, "excluded": len(d.Exclude)}
	return metrics, arts, nil
}

func (s *PipelineService) decider(p Params) (ports.ExclusionDecider, string) {
	if s.deps.Decider != nil {
		return s.deps.Decider, "custom"
	}
	if p.Decider == DeciderReference {
		return ports.ReferenceExclusion(), DeciderReference
	}
	return ports.FixedExclusion(p.Exclude...), DeciderFixed
}

func (s *PipelineService) saveRun(ctx context.Context, out *PipelineOutcome, status string) {
	if s.deps.Ledger == nil {
		return
	}
	summary := run.Summary{
		RunID:       out.RunID,
		RecordingID: string(out.Input.ID),
		Fingerprint: string(out.Manifest.Fingerprint.Fingerprint),
		Status:      status,
		CreatedAt:   core.Now(),
	}
	if out.Epochs != nil {
		summary.NEpochs = out.Epochs.Len()
	}
	if out.RejectLog != nil {
		summary.NBad = out.RejectLog.BadCount()
	}
	// A ledger failure here does not change the outcome of the run.
	if err := s.deps.Ledger.SaveRun(ctx, summary); err != nil {
		s.logger.Error("save run %s: %v", out.RunID, err)
	}
}

func recordingMetrics(rec *recording.Recording) stage.StageMetrics {
	channels, samples := rec.NChannels(), rec.NTimes()
	return stage.StageMetrics{ProcessedCount: channels, SuccessCount: channels, Channels: &channels, Samples: &samples}
}

func epochMetrics(c *epochs.Collection) stage.StageMetrics {
	n, channels, samples := c.Len(), c.NChannels(), c.NTimes()
	return stage.StageMetrics{ProcessedCount: n, SuccessCount: n, Channels: &channels, Epochs: &n, Samples: &samples}
}

func summaryArtifact(name stage.StageName, c *epochs.Collection) core.Artifact {
	return core.NewArtifact(core.ArtifactEpochSummary, string(name), artifacts.EpochSummary{
		Epochs:   c.Len(),
		Channels: c.NChannels(),
		Samples:  c.NTimes(),
		SFreq:    c.SFreq,
		TMin:     c.Window.TMin,
		ByLabel:  c.CountByLabel(),
		Dropped:  len(c.DropLog),
	})
}

// Report assembles the printable account of the run.
func (o *PipelineOutcome) Report() *run.Report {
	r := &run.Report{
		Title:       fmt.Sprintf("Preprocessing report: %s", o.Input.ID),
		RunID:       o.RunID,
		Fingerprint: o.Manifest.Fingerprint.Fingerprint,
		Recording: run.RecordingInfo{
			ID:       o.Input.ID,
			SFreq:    o.Input.SFreq,
			Channels: o.Input.NChannels(),
			Bads:     o.Input.Bads,
			Duration: o.Input.Duration(),
		},
		Params:  o.Params.ToMap(),
		Stages:  o.Result.Results,
		Exclude: o.Exclude,
		Scores:  o.Scores,
	}
	if o.RejectLog != nil {
		sum := o.RejectLog.Summarize()
		r.RejectLog = &sum
	}
	if o.SecondLog != nil {
		sum := o.SecondLog.Summarize()
		r.SecondPass = &sum
	}
	if o.Decomposition != nil {
		r.Components = o.Decomposition.NComponents
		r.Explained = o.Decomposition.ExplainedVariance
	}
	if o.Repaired != nil {
		for _, step := range o.Repaired.Provenance {
			r.Provenance = append(r.Provenance, step.Stage+": "+step.Detail)
		}
	}
	return r
}

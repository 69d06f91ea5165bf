package app

import (
	"context"
	"errors"
	"fmt"

	"eegprep/domain/core"
	"eegprep/domain/decomposition"
	"eegprep/domain/epochs"
	"eegprep/domain/recording"
	"eegprep/domain/stage"
	"eegprep/internal"
	"eegprep/ports"
)

// ArtifactParams drive the continuous-recording repair workflow.
type ArtifactParams struct {
	Crop           float64                       `yaml:"crop" json:"crop"` // seconds kept from the start; 0 keeps everything
	Highpass       float64                       `yaml:"highpass" json:"highpass"`
	NComponents    int                           `yaml:"n_components" json:"n_components"`
	Seed           int64                         `yaml:"seed" json:"seed"`
	ReferenceKinds []decomposition.ReferenceKind `yaml:"reference_kinds" json:"reference_kinds"`
	Decider        string                        `yaml:"decider" json:"decider"`
	Exclude        []int                         `yaml:"exclude" json:"exclude"`
}

// DefaultArtifactParams are the values of the ICA walkthrough: one minute of
// data, a 1 Hz high-passed copy for fitting, 15 components, seed 97.
func DefaultArtifactParams() ArtifactParams {
	return ArtifactParams{
		Crop:           60,
		Highpass:       1,
		NComponents:    15,
		Seed:           97,
		ReferenceKinds: []decomposition.ReferenceKind{decomposition.ReferenceEOG, decomposition.ReferenceECG},
		Decider:        DeciderReference,
		Exclude:        []int{0, 1},
	}
}

// ArtifactBaseline is the pre-peak baseline applied to artifact averages.
var ArtifactBaseline = epochs.Baseline{From: -0.5, To: -0.2}

// ArtifactOutcome holds the products of the repair workflow.
type ArtifactOutcome struct {
	Cropped       *recording.Recording
	Filtered      *recording.Recording
	Decomposition *decomposition.Decomposition
	Scores        []decomposition.ReferenceScores
	Exclude       []int
	Reconstructed *recording.Recording
	Result        *stage.PipelineResult
}

// ArtifactService repairs a continuous recording by projecting out
// components that track blinks and heartbeats.
type ArtifactService struct {
	filterPort   ports.FilterPort
	decomposer   ports.DecomposerPort
	detectorPort ports.ArtifactDetectorPort
	decider      ports.ExclusionDecider
	stageRunner  *StageRunner
	logger       *internal.Logger
}

// NewArtifactService creates an artifact service. decider may be nil, in
// which case ArtifactParams.Decider selects one.
func NewArtifactService(filterPort ports.FilterPort, decomposer ports.DecomposerPort, detectorPort ports.ArtifactDetectorPort, decider ports.ExclusionDecider, logger *internal.Logger) *ArtifactService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &ArtifactService{
		filterPort:   filterPort,
		decomposer:   decomposer,
		detectorPort: detectorPort,
		decider:      decider,
		stageRunner:  NewStageRunner(nil, logger),
		logger:       logger.WithComponent("Artifacts"),
	}
}

// Run crops rec, fits the decomposition on a high-passed copy, scores the
// components against the reference channels and applies the exclusion to
// an unfiltered copy. rec itself is never modified.
func (s *ArtifactService) Run(ctx context.Context, rec *recording.Recording, p ArtifactParams) (*ArtifactOutcome, error) {
	if rec == nil {
		return nil, core.NewEmptyInputError("artifact workflow needs a recording")
	}
	out := &ArtifactOutcome{Result: stage.NewPipelineResult(stage.NewStagePlan([]stage.StageSpec{
		{Name: stage.StageHighpass, Kind: stage.StageKindPreprocess},
		{Name: stage.StageICAFit, Kind: stage.StageKindDecomposition},
		{Name: stage.StageICAApply, Kind: stage.StageKindDecomposition},
	}))}
	runID := core.NewRunID()

	cropped := rec
	if p.Crop > 0 && p.Crop < rec.Duration() {
		c, err := rec.Crop(0, p.Crop)
		if err != nil {
			return nil, err
		}
		cropped = c
	}
	out.Cropped = cropped

	if err := s.stageRunner.Run(ctx, runID, out.Result, stage.StageHighpass, func(ctx context.Context) (stage.StageMetrics, []core.Artifact, error) {
		if !(p.Highpass > 0) {
			return stage.StageMetrics{}, nil, core.NewParameterError("highpass", p.Highpass, "cutoff must be greater than 0 Hz")
		}
		filtered, err := s.filterPort.Filter(ctx, cropped, ports.FilterSpec{LowCut: ports.Float(p.Highpass)})
		if err != nil {
			return stage.StageMetrics{}, nil, err
		}
		out.Filtered = filtered
		return recordingMetrics(filtered), nil, nil
	}); err != nil {
		return nil, err
	}

	if err := s.stageRunner.Run(ctx, runID, out.Result, stage.StageICAFit, func(ctx context.Context) (stage.StageMetrics, []core.Artifact, error) {
		d, err := s.decomposer.Fit(ctx, ports.FitInput{Recording: out.Filtered, NComponents: p.NComponents, Seed: p.Seed})
		if err != nil {
			return stage.StageMetrics{}, nil, err
		}
		// Scores use the unfiltered data, as the component time courses are
		// compared against the raw reference channels.
		for _, kind := range p.ReferenceKinds {
			sc, err := s.decomposer.FindBadsByReference(ctx, d, cropped, kind)
			if errors.Is(err, core.ErrInvalidChannel) {
				s.logger.Warn("no %s reference: %v", kind, err)
				continue
			}
			if err != nil {
				return stage.StageMetrics{}, nil, err
			}
			s.logger.Info("%s components on %s: %v", kind, sc.Channel, sc.Indices)
			out.Scores = append(out.Scores, *sc)
		}

		decider := s.decider
		if decider == nil {
			decider = ports.ReferenceExclusion()
			if p.Decider == DeciderFixed {
				decider = ports.FixedExclusion(p.Exclude...)
			}
		}
		exclude, err := decider(ctx, d, out.Scores)
		if err != nil {
			return stage.StageMetrics{}, nil, fmt.Errorf("exclusion decider: %w", err)
		}
		if d, err = d.WithExclude(exclude); err != nil {
			return stage.StageMetrics{}, nil, err
		}
		out.Decomposition, out.Exclude = d, d.Exclude
		return stage.StageMetrics{
			ProcessedCount: d.FitSamples,
			SuccessCount:   d.FitSamples,
			Custom:         map[string]interface{}{"components": d.NComponents, "excluded": len(d.Exclude)},
		}, nil, nil
	}); err != nil {
		return nil, err
	}

	if err := s.stageRunner.Run(ctx, runID, out.Result, stage.StageICAApply, func(ctx context.Context) (stage.StageMetrics, []core.Artifact, error) {
		recon, err := s.decomposer.ApplyToRecording(ctx, out.Decomposition, out.Exclude, cropped)
		if err != nil {
			return stage.StageMetrics{}, nil, err
		}
		if recon.NChannels() != cropped.NChannels() || recon.NTimes() != cropped.NTimes() {
			return stage.StageMetrics{}, nil, core.NewShapeError("reconstructed samples", cropped.NTimes(), recon.NTimes())
		}
		out.Reconstructed = recon
		return recordingMetrics(recon), nil, nil
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// ArtifactEpochs cuts epochs around each detected blink or heartbeat,
// averages them and applies ArtifactBaseline to the average.
func (s *ArtifactService) ArtifactEpochs(ctx context.Context, rec *recording.Recording, kind decomposition.ReferenceKind) (*epochs.Collection, *epochs.Evoked, error) {
	c, err := s.detectorPort.CreateEpochs(ctx, rec, kind, epochs.Window{TMin: -0.5, TMax: 0.5}, nil)
	if err != nil {
		return nil, nil, err
	}
	evoked, err := c.Average()
	if err != nil {
		return nil, nil, err
	}
	evoked, err = evoked.ApplyBaseline(ArtifactBaseline)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("%d %s epochs averaged", c.Len(), kind)
	return c, evoked, nil
}

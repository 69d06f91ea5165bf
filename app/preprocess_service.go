package app

import (
	"context"
	"fmt"
	"sort"

	"eegprep/domain/artifacts"
	"eegprep/domain/core"
	"eegprep/domain/recording"
	"eegprep/domain/stage"
	"eegprep/internal"
	"eegprep/internal/config"
	"eegprep/ports"
)

// PreprocessParams drive the preparation of a continuous recording: crop,
// channel edits, line-noise scan, filtering, resampling and bad-channel
// repair.
type PreprocessParams struct {
	TMin           float64           `yaml:"tmin" json:"tmin"`
	TMax           float64           `yaml:"tmax" json:"tmax"` // 0 keeps the rest of the recording
	ChannelTypes   map[string]string `yaml:"channel_types" json:"channel_types"`
	Rename         map[string]string `yaml:"rename" json:"rename"`
	Picks          []string          `yaml:"picks" json:"picks"` // channel types kept; empty keeps all
	LineFreqs      []float64         `yaml:"line_freqs" json:"line_freqs"`
	NoiseThreshold float64           `yaml:"noise_threshold" json:"noise_threshold"`
	Highpass       float64           `yaml:"highpass" json:"highpass"` // Hz, 0 skips
	Notch          bool              `yaml:"notch" json:"notch"`       // notch the line frequencies
	Resample       float64           `yaml:"resample" json:"resample"` // Hz, 0 skips
	Bads           []string          `yaml:"bads" json:"bads"`         // replaces the recording's list when set
	AddBads        []string          `yaml:"add_bads" json:"add_bads"`
	RemoveBads     []string          `yaml:"remove_bads" json:"remove_bads"`
	Interpolate    bool              `yaml:"interpolate" json:"interpolate"`
	ResetBads      bool              `yaml:"reset_bads" json:"reset_bads"`
	Montage        string            `yaml:"montage" json:"montage"`
}

// DefaultPreprocessParams follow the continuous walkthrough: the first
// minute, 0.1 Hz high-pass, notches at 60 Hz and its harmonics up to
// 240 Hz, 200 Hz resampling and spline repair of bad EEG channels.
func DefaultPreprocessParams() PreprocessParams {
	return PreprocessParams{
		TMax:           60,
		LineFreqs:      []float64{60, 120, 180, 240},
		NoiseThreshold: 5,
		Highpass:       0.1,
		Notch:          true,
		Resample:       200,
		Interpolate:    true,
		ResetBads:      true,
		Montage:        "standard_1020",
	}
}

// LoadPreprocessParams overlays a YAML file on the defaults.
func LoadPreprocessParams(path string) (PreprocessParams, error) {
	p := DefaultPreprocessParams()
	if err := config.LoadYAML(path, &p); err != nil {
		return PreprocessParams{}, err
	}
	if err := p.Validate(); err != nil {
		return PreprocessParams{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Validate checks ranges and channel type spellings.
func (p PreprocessParams) Validate() error {
	if p.TMin < 0 {
		return core.NewParameterError("tmin", p.TMin, "must not be negative")
	}
	if p.TMax != 0 && p.TMax <= p.TMin {
		return core.NewParameterError("tmax", p.TMax, fmt.Sprintf("must exceed tmin %g", p.TMin))
	}
	if p.Highpass < 0 {
		return core.NewParameterError("highpass", p.Highpass, "must not be negative")
	}
	if p.Resample < 0 {
		return core.NewParameterError("resample", p.Resample, "must not be negative")
	}
	if len(p.LineFreqs) > 0 && !(p.NoiseThreshold > 0) {
		return core.NewParameterError("noise_threshold", p.NoiseThreshold, "must be positive")
	}
	for _, f := range p.LineFreqs {
		if f <= 0 {
			return core.NewParameterError("line_freqs", f, "must be positive")
		}
	}
	if _, err := p.channelTypes(); err != nil {
		return err
	}
	_, err := p.pickTypes()
	return err
}

func (p PreprocessParams) channelTypes() (map[string]recording.ChannelType, error) {
	out := make(map[string]recording.ChannelType, len(p.ChannelTypes))
	for name, raw := range p.ChannelTypes {
		t, ok := recording.ParseChannelType(raw)
		if !ok {
			return nil, core.NewParameterError("channel_types", raw, "unknown channel type for "+name)
		}
		out[name] = t
	}
	return out, nil
}

func (p PreprocessParams) pickTypes() ([]recording.ChannelType, error) {
	out := make([]recording.ChannelType, 0, len(p.Picks))
	for _, raw := range p.Picks {
		t, ok := recording.ParseChannelType(raw)
		if !ok {
			return nil, core.NewParameterError("picks", raw, "unknown channel type")
		}
		out = append(out, t)
	}
	return out, nil
}

// PreprocessOutcome holds the prepared recording and what was found on the way.
type PreprocessOutcome struct {
	RunID        core.RunID
	Input        *recording.Recording
	Recording    *recording.Recording
	LineNoise    *artifacts.LineNoiseReport
	NotchFreqs   []float64
	Interpolated []string
	Result       *stage.PipelineResult
}

// PreprocessDeps are the capabilities preparation sequences. Montages and
// Interpolator are only needed when bad channels are repaired.
type PreprocessDeps struct {
	Filter       ports.FilterPort
	LineNoise    ports.LineNoisePort
	Interpolator ports.InterpolatorPort
	Montages     ports.MontageProviderPort
	Observer     ports.StageObserverPort
	Logger       *internal.Logger
}

// PreprocessService prepares a continuous recording for analysis.
type PreprocessService struct {
	deps        PreprocessDeps
	stageRunner *StageRunner
	logger      *internal.Logger
}

// NewPreprocessService creates a preprocess service.
func NewPreprocessService(deps PreprocessDeps) *PreprocessService {
	if deps.Logger == nil {
		deps.Logger = internal.DefaultLogger
	}
	runner := NewStageRunner(nil, deps.Logger)
	if deps.Observer != nil {
		runner.WithObserver(deps.Observer)
	}
	return &PreprocessService{
		deps:        deps,
		stageRunner: runner,
		logger:      deps.Logger.WithComponent("Preprocess"),
	}
}

// Plan lists the stages Run will execute for p, in order.
func (s *PreprocessService) Plan(p PreprocessParams) *stage.StagePlan {
	var specs []stage.StageSpec
	add := func(name stage.StageName, cfg map[string]interface{}) {
		specs = append(specs, stage.StageSpec{Name: name, Kind: stage.KindOf(name), Config: cfg})
	}
	add(stage.StagePrepare, map[string]interface{}{"tmin": p.TMin, "tmax": p.TMax, "picks": p.Picks})
	if len(p.LineFreqs) > 0 {
		add(stage.StageLineNoise, map[string]interface{}{"freqs": p.LineFreqs, "threshold": p.NoiseThreshold})
	}
	if p.Highpass > 0 {
		add(stage.StageHighpass, map[string]interface{}{"cutoff": p.Highpass})
	}
	if p.Notch && len(p.LineFreqs) > 0 {
		add(stage.StageNotch, map[string]interface{}{"freqs": p.LineFreqs})
	}
	if p.Resample > 0 {
		add(stage.StageResample, map[string]interface{}{"sfreq": p.Resample})
	}
	add(stage.StageBads, map[string]interface{}{"bads": p.Bads, "add": p.AddBads, "remove": p.RemoveBads})
	if p.Interpolate {
		add(stage.StageInterpolate, map[string]interface{}{"montage": p.Montage, "reset_bads": p.ResetBads})
	}
	return stage.NewStagePlan(specs)
}

// Run executes the preparation stages over rec, which is never modified.
// Any stage failure aborts the run and names the stage.
func (s *PreprocessService) Run(ctx context.Context, rec *recording.Recording, p PreprocessParams) (*PreprocessOutcome, error) {
	if rec == nil {
		return nil, core.NewEmptyInputError("preprocessing needs a recording")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	plan := s.Plan(p)
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	out := &PreprocessOutcome{
		RunID:     core.NewRunID(),
		Input:     rec,
		Recording: rec,
		Result:    stage.NewPipelineResult(plan),
	}
	s.logger.Info("preprocess %s: %s, %d channels, %.1fs at %g Hz, %d stages",
		out.RunID, rec.ID, rec.NChannels(), rec.Duration(), rec.SFreq, len(plan.Stages))

	for _, spec := range plan.Stages {
		fn := s.stageFunc(spec.Name, out, p)
		if err := s.stageRunner.Run(ctx, out.RunID, out.Result, spec.Name, fn); err != nil {
			return nil, err
		}
	}
	s.logger.Info("preprocess %s completed: %d channels at %g Hz, bads %v",
		out.RunID, out.Recording.NChannels(), out.Recording.SFreq, out.Recording.Bads)
	return out, nil
}

func (s *PreprocessService) stageFunc(name stage.StageName, out *PreprocessOutcome, p PreprocessParams) StageFunc {
	switch name {
	case stage.StagePrepare:
		return func(ctx context.Context) (stage.StageMetrics, []core.Artifact, error) {
			return s.advance(out, s.prepare(out.Recording, p))
		}
	case stage.StageLineNoise:
		return func(ctx context.Context) (stage.StageMetrics, []core.Artifact, error) {
			if s.deps.LineNoise == nil {
				return stage.StageMetrics{}, nil, core.NewParameterError("line_freqs", p.LineFreqs, "no line-noise scanner configured")
			}
			freqs := s.belowNyquist(out.Recording, p.LineFreqs)
			if len(freqs) == 0 {
				return stage.StageMetrics{}, nil, core.NewParameterError("line_freqs", p.LineFreqs,
					fmt.Sprintf("none below the Nyquist frequency %g", out.Recording.SFreq/2))
			}
			report, err := s.deps.LineNoise.LineNoise(ctx, out.Recording, freqs, p.NoiseThreshold)
			if err != nil {
				return stage.StageMetrics{}, nil, err
			}
			out.LineNoise = report
			noisy := 0
			for _, l := range report.Lines {
				noisy += len(l.Noisy)
				s.logger.Info("%g Hz: median ratio %.1f, %d noisy channels", l.Freq, l.MedianRatio, len(l.Noisy))
			}
			return stage.StageMetrics{
					ProcessedCount: len(report.Lines),
					SuccessCount:   len(report.Lines),
					Custom:         map[string]interface{}{"noisy": noisy, "contaminated": report.Contaminated()},
				},
				[]core.Artifact{core.NewArtifact(core.ArtifactLineNoise, string(stage.StageLineNoise), report)}, nil
		}
	case stage.StageHighpass:
		return func(ctx context.Context) (stage.StageMetrics, []core.Artifact, error) {
			return s.advance(out, func() (*recording.Recording, error) {
				return s.deps.Filter.Filter(ctx, out.Recording, ports.FilterSpec{LowCut: ports.Float(p.Highpass)})
			})
		}
	case stage.StageNotch:
		return func(ctx context.Context) (stage.StageMetrics, []core.Artifact, error) {
			freqs := s.belowNyquist(out.Recording, p.LineFreqs)
			if len(freqs) == 0 {
				s.logger.Warn("no notch frequency below %g Hz, leaving the recording unchanged", out.Recording.SFreq/2)
				return recordingMetrics(out.Recording), nil, nil
			}
			out.NotchFreqs = freqs
			return s.advance(out, func() (*recording.Recording, error) {
				return s.deps.Filter.NotchFilter(ctx, out.Recording, freqs, nil)
			})
		}
	case stage.StageResample:
		return func(ctx context.Context) (stage.StageMetrics, []core.Artifact, error) {
			if p.Resample == out.Recording.SFreq {
				return recordingMetrics(out.Recording), nil, nil
			}
			return s.advance(out, func() (*recording.Recording, error) {
				return s.deps.Filter.Resample(ctx, out.Recording, p.Resample)
			})
		}
	case stage.StageBads:
		return func(ctx context.Context) (stage.StageMetrics, []core.Artifact, error) {
			m, arts, err := s.advance(out, func() (*recording.Recording, error) { return editBads(out.Recording, p) })
			m.Custom = map[string]interface{}{"bads": len(out.Recording.Bads)}
			return m, arts, err
		}
	case stage.StageInterpolate:
		return func(ctx context.Context) (stage.StageMetrics, []core.Artifact, error) {
			return s.interpolate(ctx, out, p)
		}
	}
	return func(context.Context) (stage.StageMetrics, []core.Artifact, error) {
		return stage.StageMetrics{}, nil, core.NewParameterError("stage", name, "not a preprocessing stage")
	}
}

// advance swaps in the recording produced by next.
func (s *PreprocessService) advance(out *PreprocessOutcome, next func() (*recording.Recording, error)) (stage.StageMetrics, []core.Artifact, error) {
	rec, err := next()
	if err != nil {
		return stage.StageMetrics{}, nil, err
	}
	out.Recording = rec
	return recordingMetrics(rec), nil, nil
}

// prepare crops, retypes, renames and picks, in that order, so picks see
// the final channel types.
func (s *PreprocessService) prepare(rec *recording.Recording, p PreprocessParams) func() (*recording.Recording, error) {
	return func() (*recording.Recording, error) {
		out := rec
		tmax := p.TMax
		if tmax == 0 || tmax > rec.Duration() {
			tmax = rec.Duration()
		}
		if p.TMin > 0 || tmax < rec.Duration() {
			c, err := out.Crop(p.TMin, tmax)
			if err != nil {
				return nil, err
			}
			out = c
		}
		types, err := p.channelTypes()
		if err != nil {
			return nil, err
		}
		if len(types) > 0 {
			if out, err = out.SetChannelTypes(types); err != nil {
				return nil, err
			}
		}
		if len(p.Rename) > 0 {
			if out, err = out.RenameChannels(p.Rename); err != nil {
				return nil, err
			}
		}
		picks, err := p.pickTypes()
		if err != nil {
			return nil, err
		}
		if len(picks) > 0 {
			if out, err = out.PickTypes(picks...); err != nil {
				return nil, err
			}
		}
		if out == rec {
			out = rec.Clone()
		}
		return out, nil
	}
}

func editBads(rec *recording.Recording, p PreprocessParams) (*recording.Recording, error) {
	out := rec
	var err error
	if p.Bads != nil {
		if out, err = out.WithBads(p.Bads); err != nil {
			return nil, err
		}
	}
	if len(p.AddBads) > 0 {
		if out, err = out.AddBads(p.AddBads...); err != nil {
			return nil, err
		}
	}
	for _, name := range p.RemoveBads {
		if out, err = out.RemoveBad(name); err != nil {
			return nil, err
		}
	}
	if out == rec {
		out = rec.Clone()
	}
	return out, nil
}

func (s *PreprocessService) interpolate(ctx context.Context, out *PreprocessOutcome, p PreprocessParams) (stage.StageMetrics, []core.Artifact, error) {
	rec := out.Recording
	var eegBads, otherBads []string
	for _, b := range rec.Bads {
		i := rec.ChannelIndex(b)
		if i >= 0 && rec.Channels[i].Type == recording.TypeEEG {
			eegBads = append(eegBads, b)
		} else {
			otherBads = append(otherBads, b)
		}
	}
	if len(otherBads) > 0 {
		sort.Strings(otherBads)
		s.logger.Warn("only EEG channels are interpolated; %v stay marked bad", otherBads)
	}
	if len(eegBads) == 0 {
		s.logger.Info("no bad EEG channels to interpolate")
		return recordingMetrics(rec), nil, nil
	}
	if p.Montage == "" {
		return stage.StageMetrics{}, nil, core.NewParameterError("montage", p.Montage, "interpolating bad EEG channels needs a montage")
	}
	if s.deps.Montages == nil || s.deps.Interpolator == nil {
		return stage.StageMetrics{}, nil, core.NewParameterError("interpolate", true, "no interpolator configured")
	}
	m, err := s.deps.Montages.Montage(p.Montage)
	if err != nil {
		return stage.StageMetrics{}, nil, err
	}
	repaired, names, err := s.deps.Interpolator.InterpolateBads(ctx, rec, m, p.ResetBads)
	if err != nil {
		return stage.StageMetrics{}, nil, err
	}
	out.Recording, out.Interpolated = repaired, names
	s.logger.Info("interpolated %v from %s", names, m.Name)

	metrics := recordingMetrics(repaired)
	metrics.Custom = map[string]interface{}{"interpolated": len(names)}
	return metrics, nil, nil
}

// belowNyquist drops frequencies the current sample rate cannot carry.
func (s *PreprocessService) belowNyquist(rec *recording.Recording, freqs []float64) []float64 {
	nyq := rec.SFreq / 2
	kept := make([]float64, 0, len(freqs))
	for _, f := range freqs {
		if f < nyq {
			kept = append(kept, f)
			continue
		}
		s.logger.Warn("%g Hz is at or above the Nyquist frequency %g Hz, skipped", f, nyq)
	}
	return kept
}

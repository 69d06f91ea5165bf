package stage

import (
	"encoding/json"
	"time"

	"eegprep/domain/core"
)

// StageName represents a named stage in the pipeline
type StageName string

// StageKind categorizes stages by function
type StageKind string

const (
	StageKindPreprocess    StageKind = "preprocess"    // filtering and epoching
	StageKindRejection     StageKind = "rejection"     // automatic epoch rejection
	StageKindDecomposition StageKind = "decomposition" // component fit and apply
)

// Predefined stage names
const (
	// Preprocess stages
	StageMontage  StageName = "montage" // optional channel restriction
	StageHighpass StageName = "highpass"
	StageEpoching StageName = "epoching"

	// Rejection stages
	StageRejectFit       StageName = "reject_fit"
	StageRejectTransform StageName = "reject_transform"

	// Decomposition stages
	StageICAFit   StageName = "ica_fit"
	StageICAApply StageName = "ica_apply"

	// Continuous-recording preparation stages
	StagePrepare     StageName = "prepare" // crop, retype, rename, pick
	StageLineNoise   StageName = "line_noise"
	StageNotch       StageName = "notch"
	StageResample    StageName = "resample"
	StageBads        StageName = "bads"
	StageInterpolate StageName = "interpolate"

	// Second rejection pass, reported only
	StageSecondRejectFit       StageName = "second_reject_fit"
	StageSecondRejectTransform StageName = "second_reject_transform"
)

// KindOf returns the kind a predefined stage belongs to.
func KindOf(name StageName) StageKind {
	switch name {
	case StageMontage, StageHighpass, StageEpoching,
		StagePrepare, StageLineNoise, StageNotch, StageResample, StageBads, StageInterpolate:
		return StageKindPreprocess
	case StageICAFit, StageICAApply:
		return StageKindDecomposition
	default:
		return StageKindRejection
	}
}

// StageSpec defines a single stage in the pipeline
type StageSpec struct {
	Name   StageName              `json:"name"`
	Kind   StageKind              `json:"kind"`
	Config map[string]interface{} `json:"config"`
}

// StageResult represents the output of a stage execution
type StageResult struct {
	StageName StageName       `json:"stage_name"`
	Success   bool            `json:"success"`
	Metrics   StageMetrics    `json:"metrics"`
	Artifacts []core.Artifact `json:"artifacts,omitempty"`
	Error     string          `json:"error,omitempty"`
	Duration  int64           `json:"duration_ms"` // milliseconds
}

// StageMetrics contains canonical metrics for stage results
type StageMetrics struct {
	// Common metrics
	ProcessedCount int   `json:"processed_count"`
	SuccessCount   int   `json:"success_count"`
	FailureCount   int   `json:"failure_count"`
	DurationMs     int64 `json:"duration_ms"`

	// Shape of the data leaving the stage
	Channels *int `json:"channels,omitempty"`
	Epochs   *int `json:"epochs,omitempty"`
	Samples  *int `json:"samples,omitempty"`

	// Custom metrics (stage-specific)
	Custom map[string]interface{} `json:"custom,omitempty"`
}

// StagePlan represents an ordered list of stages with configuration
type StagePlan struct {
	Stages []StageSpec `json:"stages"`
}

// NewStagePlan creates a new stage plan
func NewStagePlan(stages []StageSpec) *StagePlan {
	return &StagePlan{Stages: stages}
}

// Hash computes a deterministic hash of the stage plan. Stage order is part
// of the hash: the same stages run in another order give different data.
func (p *StagePlan) Hash() core.StageListHash {
	data, _ := json.Marshal(p.Stages)
	return core.NewStageListHash(data)
}

// Validate checks if the stage plan is valid
func (p *StagePlan) Validate() error {
	if len(p.Stages) == 0 {
		return core.NewValidationError("stage_plan", "must contain at least one stage")
	}

	seenNames := make(map[StageName]bool)
	for _, stage := range p.Stages {
		if stage.Name == "" {
			return core.NewValidationError("stage", "name cannot be empty")
		}
		if seenNames[stage.Name] {
			return core.NewValidationError("stage", "duplicate stage name: "+string(stage.Name))
		}
		seenNames[stage.Name] = true
	}

	return nil
}

// PipelineResult contains the results of executing a stage plan
type PipelineResult struct {
	Plan    *StagePlan      `json:"plan"`
	Results []StageResult   `json:"results"`
	Overall PipelineSummary `json:"overall"`
}

// PipelineSummary provides high-level pipeline statistics
type PipelineSummary struct {
	TotalStages    int   `json:"total_stages"`
	Successful     int   `json:"successful"`
	Failed         int   `json:"failed"`
	TotalDuration  int64 `json:"total_duration_ms"`
	ArtifactsCount int   `json:"artifacts_count"`
}

// NewPipelineResult creates a new pipeline result
func NewPipelineResult(plan *StagePlan) *PipelineResult {
	return &PipelineResult{
		Plan:    plan,
		Results: make([]StageResult, 0),
		Overall: PipelineSummary{},
	}
}

// AddResult adds a stage result and updates summary
func (r *PipelineResult) AddResult(result StageResult) {
	r.Results = append(r.Results, result)
	r.Overall.TotalStages++

	if result.Success {
		r.Overall.Successful++
	} else {
		r.Overall.Failed++
	}

	r.Overall.TotalDuration += result.Duration
	r.Overall.ArtifactsCount += len(result.Artifacts)
}

// Success returns true if all stages succeeded
func (r *PipelineResult) Success() bool {
	return r.Overall.Failed == 0
}

// Result returns the recorded result for a stage, if any.
func (r *PipelineResult) Result(name StageName) (StageResult, bool) {
	for _, res := range r.Results {
		if res.StageName == name {
			return res, true
		}
	}
	return StageResult{}, false
}

// Names lists executed stages in execution order.
func (r *PipelineResult) Names() []StageName {
	names := make([]StageName, len(r.Results))
	for i, res := range r.Results {
		names[i] = res.StageName
	}
	return names
}

// StageEvent announces that a stage of a run has finished.
type StageEvent struct {
	RunID      core.RunID `json:"run_id"`
	Stage      StageName  `json:"stage"`
	Success    bool       `json:"success"`
	Error      string     `json:"error,omitempty"`
	DurationMs int64      `json:"duration_ms"`
	Timestamp  time.Time  `json:"timestamp"`
}

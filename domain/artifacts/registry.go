package artifacts

import (
	"encoding/json"
	"fmt"

	"eegprep/domain/core"
	"eegprep/domain/decomposition"
	"eegprep/domain/rejection"
	"eegprep/domain/run"
	"eegprep/domain/stage"
)

// Note: ArtifactKind is defined in domain/core

// ArtifactSchema defines the structure of an artifact
type ArtifactSchema struct {
	Kind          core.ArtifactKind
	SchemaVersion string
	KeyFunc       func(core.Artifact) string // Stable identifier function
	ValidateFunc  func(core.Artifact) error  // Validation function
}

// DecompositionSummary is the persisted view of a fitted decomposition.
// Mixing matrices stay in memory.
type DecompositionSummary struct {
	Method      string    `json:"method"`
	NComponents int       `json:"n_components"`
	Channels    []string  `json:"channels"`
	Explained   []float64 `json:"explained_variance"`
	Seed        int64     `json:"seed"`
	FitSize     int       `json:"fit_size"`
}

// Exclusion records which components were projected out and why.
type Exclusion struct {
	Exclude []int  `json:"exclude"`
	Decider string `json:"decider"`
}

// EpochSummary describes an epoch collection leaving a stage.
type EpochSummary struct {
	Epochs   int            `json:"epochs"`
	Channels int            `json:"channels"`
	Samples  int            `json:"samples"`
	SFreq    float64        `json:"sfreq"`
	TMin     float64        `json:"tmin"`
	ByLabel  map[string]int `json:"by_label,omitempty"`
	Dropped  int            `json:"dropped"`
}

// LineNoiseReport scores power-line contamination of the good data
// channels at each scanned frequency.
type LineNoiseReport struct {
	Threshold float64         `json:"threshold"`
	Lines     []LineNoiseLine `json:"lines"`
}

// LineNoiseLine is the score of one frequency. Noisy lists the channels
// whose ratio exceeds the report threshold.
type LineNoiseLine struct {
	Freq        float64  `json:"freq"`
	MedianRatio float64  `json:"median_ratio"`
	MaxRatio    float64  `json:"max_ratio"`
	Noisy       []string `json:"noisy,omitempty"`
}

// Contaminated reports whether any scanned frequency has a noisy channel.
func (r *LineNoiseReport) Contaminated() bool {
	for _, l := range r.Lines {
		if len(l.Noisy) > 0 {
			return true
		}
	}
	return false
}

// Registry maps artifact kinds to their schemas
var Registry = map[core.ArtifactKind]ArtifactSchema{
	core.ArtifactRun: {
		Kind:          core.ArtifactRun,
		SchemaVersion: "1.0.0",
		KeyFunc:       runManifestKey,
		ValidateFunc:  validateRunManifest,
	},
	core.ArtifactStageResult: {
		Kind:          core.ArtifactStageResult,
		SchemaVersion: "1.0.0",
		KeyFunc:       stageKey("stage_result"),
		ValidateFunc:  validateStageResult,
	},
	core.ArtifactRejectLog: {
		Kind:          core.ArtifactRejectLog,
		SchemaVersion: "1.0.0",
		KeyFunc:       stageKey("reject_log"),
		ValidateFunc:  validateRejectLog,
	},
	core.ArtifactDecomposition: {
		Kind:          core.ArtifactDecomposition,
		SchemaVersion: "1.0.0",
		KeyFunc:       stageKey("decomposition"),
		ValidateFunc:  validateDecomposition,
	},
	core.ArtifactReferenceScores: {
		Kind:          core.ArtifactReferenceScores,
		SchemaVersion: "1.0.0",
		KeyFunc:       referenceScoresKey,
		ValidateFunc:  validateReferenceScores,
	},
	core.ArtifactExclusion: {
		Kind:          core.ArtifactExclusion,
		SchemaVersion: "1.0.0",
		KeyFunc:       stageKey("exclusion"),
		ValidateFunc:  requireKind(core.ArtifactExclusion),
	},
	core.ArtifactEpochSummary: {
		Kind:          core.ArtifactEpochSummary,
		SchemaVersion: "1.0.0",
		KeyFunc:       stageKey("epoch_summary"),
		ValidateFunc:  validateEpochSummary,
	},
	core.ArtifactLineNoise: {
		Kind:          core.ArtifactLineNoise,
		SchemaVersion: "1.0.0",
		KeyFunc:       stageKey("line_noise"),
		ValidateFunc:  validateLineNoise,
	},
}

// GetSchema returns the schema for an artifact kind
func GetSchema(kind core.ArtifactKind) (ArtifactSchema, error) {
	schema, exists := Registry[kind]
	if !exists {
		return ArtifactSchema{}, fmt.Errorf("unknown artifact kind: %s", kind)
	}
	return schema, nil
}

// ValidateArtifact validates an artifact against its schema
func ValidateArtifact(artifact core.Artifact) error {
	schema, err := GetSchema(artifact.Kind)
	if err != nil {
		return err
	}
	return schema.ValidateFunc(artifact)
}

// GetArtifactKey returns the stable key for an artifact
func GetArtifactKey(artifact core.Artifact) (string, error) {
	schema, err := GetSchema(artifact.Kind)
	if err != nil {
		return "", err
	}
	return schema.KeyFunc(artifact), nil
}

// Key functions for each artifact type
func stageKey(prefix string) func(core.Artifact) string {
	return func(artifact core.Artifact) string {
		if artifact.Stage == "" {
			return string(artifact.ID)
		}
		return fmt.Sprintf("%s:%s", prefix, artifact.Stage)
	}
}

func runManifestKey(artifact core.Artifact) string {
	// Run manifests are keyed by runID for uniqueness
	switch payload := artifact.Payload.(type) {
	case *run.RunManifestArtifact:
		return fmt.Sprintf("run_manifest:%s", payload.RunID)
	case map[string]interface{}:
		if runID, ok := payload["run_id"].(string); ok {
			return fmt.Sprintf("run_manifest:%s", runID)
		}
	}
	return string(artifact.ID) // fallback to ID
}

func referenceScoresKey(artifact core.Artifact) string {
	if payload, ok := artifact.Payload.(*decomposition.ReferenceScores); ok {
		return fmt.Sprintf("reference_scores:%s:%s", artifact.Stage, payload.Kind)
	}
	return string(artifact.ID)
}

// Validation functions for each artifact type
func requireKind(kind core.ArtifactKind) func(core.Artifact) error {
	return func(artifact core.Artifact) error {
		if artifact.Kind != kind {
			return fmt.Errorf("expected kind %s, got %s", kind, artifact.Kind)
		}
		if core.ID(artifact.ID).IsEmpty() {
			return fmt.Errorf("%s artifact missing ID", kind)
		}
		return nil
	}
}

func validateRunManifest(artifact core.Artifact) error {
	if err := requireKind(core.ArtifactRun)(artifact); err != nil {
		return err
	}
	if m, ok := artifact.Payload.(*run.RunManifestArtifact); ok {
		return m.Validate()
	}
	return nil
}

func validateStageResult(artifact core.Artifact) error {
	if err := requireKind(core.ArtifactStageResult)(artifact); err != nil {
		return err
	}
	if res, ok := artifact.Payload.(stage.StageResult); ok && res.StageName == "" {
		return fmt.Errorf("stage result artifact missing stage name")
	}
	return nil
}

func validateRejectLog(artifact core.Artifact) error {
	if err := requireKind(core.ArtifactRejectLog)(artifact); err != nil {
		return err
	}
	if l, ok := artifact.Payload.(*rejection.RejectLog); ok {
		if len(l.Labels) != l.Len() {
			return fmt.Errorf("reject log has %d label rows for %d epochs", len(l.Labels), l.Len())
		}
	}
	return nil
}

func validateDecomposition(artifact core.Artifact) error {
	if err := requireKind(core.ArtifactDecomposition)(artifact); err != nil {
		return err
	}
	if s, ok := artifact.Payload.(DecompositionSummary); ok {
		if s.NComponents <= 0 {
			return fmt.Errorf("decomposition artifact has %d components", s.NComponents)
		}
		if len(s.Explained) != s.NComponents {
			return fmt.Errorf("decomposition artifact explains %d of %d components", len(s.Explained), s.NComponents)
		}
	}
	return nil
}

func validateReferenceScores(artifact core.Artifact) error {
	if err := requireKind(core.ArtifactReferenceScores)(artifact); err != nil {
		return err
	}
	if s, ok := artifact.Payload.(*decomposition.ReferenceScores); ok && s.Kind == "" {
		return fmt.Errorf("reference scores artifact missing reference kind")
	}
	return nil
}

func validateEpochSummary(artifact core.Artifact) error {
	if err := requireKind(core.ArtifactEpochSummary)(artifact); err != nil {
		return err
	}
	if s, ok := artifact.Payload.(EpochSummary); ok && s.Epochs < 0 {
		return fmt.Errorf("epoch summary artifact has negative count")
	}
	return nil
}

func validateLineNoise(artifact core.Artifact) error {
	if err := requireKind(core.ArtifactLineNoise)(artifact); err != nil {
		return err
	}
	if r, ok := artifact.Payload.(*LineNoiseReport); ok {
		if r.Threshold <= 0 {
			return fmt.Errorf("line noise artifact has threshold %g", r.Threshold)
		}
		for _, l := range r.Lines {
			if l.Freq <= 0 {
				return fmt.Errorf("line noise artifact scans frequency %g", l.Freq)
			}
		}
	}
	return nil
}

// DecodePayload re-reads a stored payload into dst. Payloads come back from
// SQL ledgers as raw JSON and from memory ledgers as the original value.
func DecodePayload(artifact core.Artifact, dst interface{}) error {
	var raw []byte
	switch p := artifact.Payload.(type) {
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", artifact.Kind, err)
		}
		raw = b
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", artifact.Kind, err)
	}
	return nil
}

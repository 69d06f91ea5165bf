package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	RunID       ID
	RecordingID ID
	ArtifactID  ID
)

func (id RunID) String() string       { return ID(id).String() }
func (id RecordingID) String() string { return ID(id).String() }
func (id ArtifactID) String() string  { return ID(id).String() }

// NewRunID returns a fresh time-ordered run identifier.
func NewRunID() RunID { return RunID(NewID()) }

// ParseRunID parses a string into RunID
func ParseRunID(s string) (RunID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("run ID cannot be empty")
	}
	return RunID(s), nil
}

// ParseArtifactID parses a string into ArtifactID
func ParseArtifactID(s string) (ArtifactID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("artifact ID cannot be empty")
	}
	return ArtifactID(s), nil
}

// Artifact represents any output of a pipeline run
type Artifact struct {
	ID        ArtifactID   `json:"id"`
	Kind      ArtifactKind `json:"kind"`
	Stage     string       `json:"stage,omitempty"`
	Payload   interface{}  `json:"payload"`
	CreatedAt Timestamp    `json:"created_at"`
}

// NewArtifact stamps a payload with a fresh id and the current time.
func NewArtifact(kind ArtifactKind, stage string, payload interface{}) Artifact {
	return Artifact{
		ID:        ArtifactID(NewID()),
		Kind:      kind,
		Stage:     stage,
		Payload:   payload,
		CreatedAt: Now(),
	}
}

// ArtifactKind defines types of artifacts
type ArtifactKind string

const (
	ArtifactRun ArtifactKind = "run"
	// ArtifactStageResult is the audit record of one executed stage.
	ArtifactStageResult ArtifactKind = "stage_result"
	// ArtifactRejectLog captures the per-epoch, per-channel rejection decisions.
	ArtifactRejectLog ArtifactKind = "reject_log"
	// ArtifactDecomposition captures a fitted component decomposition summary.
	ArtifactDecomposition ArtifactKind = "decomposition"
	// ArtifactReferenceScores captures per-component EOG/ECG match scores.
	ArtifactReferenceScores ArtifactKind = "reference_scores"
	ArtifactExclusion       ArtifactKind = "exclusion"
	ArtifactEpochSummary    ArtifactKind = "epoch_summary"
	// ArtifactLineNoise captures per-frequency power-line noise scores.
	ArtifactLineNoise ArtifactKind = "line_noise"
)

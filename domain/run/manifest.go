package run

import (
	"eegprep/domain/core"
	"eegprep/domain/stage"
)

// RunManifestArtifact represents the complete specification for a run
// This is the "truth source" for replay - must exist before any stage artifacts
type RunManifestArtifact struct {
	RunID         core.RunID             `json:"run_id"`
	RecordingID   core.RecordingID       `json:"recording_id"`
	ChannelsHash  core.ChannelsHash      `json:"channels_hash"`
	ParamsHash    core.ParamsHash        `json:"params_hash"`
	Params        map[string]interface{} `json:"params"`
	StagePlanHash core.StageListHash     `json:"stage_plan_hash"`
	RejectSeed    int64                  `json:"reject_seed"`
	DecompSeed    int64                  `json:"decomp_seed"`
	CodeVersion   string                 `json:"code_version"`
	Fingerprint   RunFingerprint         `json:"fingerprint"` // Determinism fingerprint
	CreatedAt     core.Timestamp         `json:"created_at"`
}

// NewRunManifestArtifact creates a run manifest from the pipeline inputs
func NewRunManifestArtifact(
	runID core.RunID,
	recordingID core.RecordingID,
	channels []string,
	params map[string]interface{},
	stagePlan *stage.StagePlan,
	rejectSeed int64,
	decompSeed int64,
	codeVersion string,
) *RunManifestArtifact {
	stagePlanHash := stagePlan.Hash()
	channelsHash := core.ComputeChannelsHash(channels)
	paramsHash := core.ComputeParamsHash(params)
	fingerprint := NewRunFingerprint(recordingID, channelsHash, paramsHash, core.Hash(stagePlanHash), rejectSeed, decompSeed, codeVersion)

	return &RunManifestArtifact{
		RunID:         runID,
		RecordingID:   recordingID,
		ChannelsHash:  channelsHash,
		ParamsHash:    paramsHash,
		Params:        params,
		StagePlanHash: stagePlanHash,
		RejectSeed:    rejectSeed,
		DecompSeed:    decompSeed,
		CodeVersion:   codeVersion,
		Fingerprint:   fingerprint,
		CreatedAt:     core.Now(),
	}
}

// ToCoreArtifact converts to a core artifact for storage
func (r *RunManifestArtifact) ToCoreArtifact() core.Artifact {
	return core.Artifact{
		ID:        core.ArtifactID(core.NewID()),
		Kind:      core.ArtifactRun,
		Payload:   r,
		CreatedAt: r.CreatedAt,
	}
}

// Validate checks if the manifest is complete
func (r *RunManifestArtifact) Validate() error {
	if core.ID(r.RunID).IsEmpty() {
		return core.NewValidationError("run_manifest", "run_id cannot be empty")
	}
	if core.ID(r.RecordingID).IsEmpty() {
		return core.NewValidationError("run_manifest", "recording_id cannot be empty")
	}
	if r.ChannelsHash == "" {
		return core.NewValidationError("run_manifest", "channels_hash cannot be empty")
	}
	if r.ParamsHash == "" {
		return core.NewValidationError("run_manifest", "params_hash cannot be empty")
	}
	if r.CodeVersion == "" {
		return core.NewValidationError("run_manifest", "code_version cannot be empty")
	}
	return nil
}

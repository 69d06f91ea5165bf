package run

import (
	"crypto/sha256"
	"fmt"

	"eegprep/domain/core"
)

// RunFingerprint ensures deterministic replay
type RunFingerprint struct {
	RecordingID   core.RecordingID  `json:"recording_id"`
	ChannelsHash  core.ChannelsHash `json:"channels_hash"`
	ParamsHash    core.ParamsHash   `json:"params_hash"`
	StagePlanHash core.Hash         `json:"stage_plan_hash"`
	RejectSeed    int64             `json:"reject_seed"`
	DecompSeed    int64             `json:"decomp_seed"`
	CodeVersion   string            `json:"code_version"`
	Fingerprint   core.Hash         `json:"fingerprint"` // Hash of all above
}

// NewRunFingerprint creates a fingerprint from determinism parameters
func NewRunFingerprint(recordingID core.RecordingID, channelsHash core.ChannelsHash,
	paramsHash core.ParamsHash, stagePlanHash core.Hash, rejectSeed, decompSeed int64, codeVersion string) RunFingerprint {

	fingerprint := computeRunFingerprint(recordingID, channelsHash, paramsHash, stagePlanHash, rejectSeed, decompSeed, codeVersion)

	return RunFingerprint{
		RecordingID:   recordingID,
		ChannelsHash:  channelsHash,
		ParamsHash:    paramsHash,
		StagePlanHash: stagePlanHash,
		RejectSeed:    rejectSeed,
		DecompSeed:    decompSeed,
		CodeVersion:   codeVersion,
		Fingerprint:   fingerprint,
	}
}

// computeRunFingerprint generates deterministic hash from all determinism parameters
func computeRunFingerprint(recordingID core.RecordingID, channelsHash core.ChannelsHash,
	paramsHash core.ParamsHash, stagePlanHash core.Hash, rejectSeed, decompSeed int64, codeVersion string) core.Hash {

	data := fmt.Sprintf("recording:%s|channels:%s|params:%s|stage_plan:%s|reject_seed:%d|decomp_seed:%d|code:%s",
		recordingID, channelsHash, paramsHash, stagePlanHash, rejectSeed, decompSeed, codeVersion)

	hash := sha256.Sum256([]byte(data))
	return core.Hash(fmt.Sprintf("%x", hash))
}

// Summary is the listing view of a stored run.
type Summary struct {
	RunID       core.RunID     `json:"run_id" db:"run_id"`
	RecordingID string         `json:"recording_id" db:"recording_id"`
	Fingerprint string         `json:"fingerprint" db:"fingerprint"`
	Status      string         `json:"status" db:"status"`
	NEpochs     int            `json:"n_epochs" db:"n_epochs"`
	NBad        int            `json:"n_bad" db:"n_bad"`
	CreatedAt   core.Timestamp `json:"created_at" db:"-"`
}

// Run statuses
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

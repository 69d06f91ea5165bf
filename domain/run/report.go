package run

import (
	"eegprep/domain/core"
	"eegprep/domain/decomposition"
	"eegprep/domain/rejection"
	"eegprep/domain/stage"
)

// Report is the printable account of one pipeline run.
type Report struct {
	Title       string                          `json:"title"`
	RunID       core.RunID                      `json:"run_id"`
	Fingerprint core.Hash                       `json:"fingerprint"`
	Recording   RecordingInfo                   `json:"recording"`
	Params      map[string]interface{}          `json:"params"`
	Stages      []stage.StageResult             `json:"stages"`
	RejectLog   *rejection.Summary              `json:"reject_log,omitempty"`
	SecondPass  *rejection.Summary              `json:"second_pass,omitempty"`
	Components  int                             `json:"components"`
	Explained   []float64                       `json:"explained_variance,omitempty"`
	Exclude     []int                           `json:"exclude"`
	Scores      []decomposition.ReferenceScores `json:"scores,omitempty"`
	Provenance  []string                        `json:"provenance,omitempty"`
}

// RecordingInfo summarises the input recording.
type RecordingInfo struct {
	ID       core.RecordingID `json:"id"`
	SFreq    float64          `json:"sfreq"`
	Channels int              `json:"channels"`
	Bads     []string         `json:"bads,omitempty"`
	Duration float64          `json:"duration"`
}

package run

import (
	"testing"

	"eegprep/domain/core"
	"eegprep/domain/stage"
)

func TestRunFingerprint_Deterministic(t *testing.T) {
	recordingID := core.RecordingID("sub-01")
	channelsHash := core.ComputeChannelsHash([]string{"Fp1", "Fp2", "Cz"})
	paramsHash := core.ComputeParamsHash(map[string]interface{}{"cutoff": 1.0})
	stagePlanHash := core.Hash("test-stage-plan")
	codeVersion := "1.0.0"

	fp1 := NewRunFingerprint(recordingID, channelsHash, paramsHash, stagePlanHash, 11, 99, codeVersion)
	fp2 := NewRunFingerprint(recordingID, channelsHash, paramsHash, stagePlanHash, 11, 99, codeVersion)

	if fp1.Fingerprint != fp2.Fingerprint {
		t.Errorf("Fingerprints not identical: %s vs %s", fp1.Fingerprint, fp2.Fingerprint)
	}
	if fp1.RecordingID != recordingID {
		t.Errorf("RecordingID mismatch: %s vs %s", fp1.RecordingID, recordingID)
	}
	if fp1.RejectSeed != 11 || fp1.DecompSeed != 99 {
		t.Errorf("Seed mismatch: %d/%d", fp1.RejectSeed, fp1.DecompSeed)
	}
}

func TestRunFingerprint_Unique(t *testing.T) {
	channels := core.ComputeChannelsHash([]string{"Fp1", "Fp2"})
	params := core.ComputeParamsHash(map[string]interface{}{"cutoff": 1.0})
	base := NewRunFingerprint("sub-01", channels, params, "plan", 11, 99, "1.0.0")

	testCases := []struct {
		name string
		fp   RunFingerprint
	}{
		{"different recording", NewRunFingerprint("sub-02", channels, params, "plan", 11, 99, "1.0.0")},
		{"different channel order", NewRunFingerprint("sub-01", core.ComputeChannelsHash([]string{"Fp2", "Fp1"}), params, "plan", 11, 99, "1.0.0")},
		{"different reject seed", NewRunFingerprint("sub-01", channels, params, "plan", 12, 99, "1.0.0")},
		{"different decomposition seed", NewRunFingerprint("sub-01", channels, params, "plan", 11, 98, "1.0.0")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.fp.Fingerprint == base.Fingerprint {
				t.Errorf("Fingerprint should be different for %s", tc.name)
			}
		})
	}
}

func TestRunManifestArtifact_Complete(t *testing.T) {
	runID := core.RunID("test-run")
	stagePlan := &stage.StagePlan{
		Stages: []stage.StageSpec{
			{Name: stage.StageHighpass, Kind: stage.StageKindPreprocess},
		},
	}

	manifest := NewRunManifestArtifact(runID, "sub-01", []string{"Fp1", "Fp2"},
		map[string]interface{}{"cutoff": 1.0}, stagePlan, 11, 99, "1.0.0")

	if manifest.RunID != runID {
		t.Errorf("RunID not set correctly")
	}
	if manifest.ChannelsHash == "" || manifest.ParamsHash == "" {
		t.Errorf("Hashes not computed")
	}
	if manifest.Fingerprint.Fingerprint == "" {
		t.Errorf("Fingerprint not computed")
	}
	if err := manifest.Validate(); err != nil {
		t.Errorf("Manifest validation failed: %v", err)
	}

	artifact := manifest.ToCoreArtifact()
	if artifact.Kind != core.ArtifactRun {
		t.Errorf("Expected run artifact, got %s", artifact.Kind)
	}
}

func TestRunManifestArtifact_ValidateMissingFields(t *testing.T) {
	m := &RunManifestArtifact{RunID: "r"}
	if err := m.Validate(); err == nil {
		t.Error("Expected validation error for missing recording id")
	}
}

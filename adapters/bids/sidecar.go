// Package bids reads BIDS JSON sidecars that sit next to EEG recordings.
package bids

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/tidwall/gjson"

	"eegprep/domain/core"
	"eegprep/domain/recording"
	"eegprep/ports"
)

// SidecarReader implements ports.SidecarReaderPort.
type SidecarReader struct{}

// NewSidecarReader creates a reader.
func NewSidecarReader() *SidecarReader {
	return &SidecarReader{}
}

// ReadSidecar parses the acquisition fields of an *_eeg.json file.
func (r *SidecarReader) ReadSidecar(ctx context.Context, path string) (*ports.SidecarInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewNotFoundError("sidecar", path)
		}
		return nil, err
	}
	return ParseSidecar(raw)
}

// ParseSidecar extracts the fields eegprep uses from sidecar JSON.
func ParseSidecar(raw []byte) (*ports.SidecarInfo, error) {
	if !gjson.ValidBytes(raw) {
		return nil, core.NewValidationError("sidecar", "invalid JSON")
	}
	doc := gjson.ParseBytes(raw)
	sfreq := doc.Get("SamplingFrequency")
	if !sfreq.Exists() {
		return nil, core.NewValidationError("sidecar", "SamplingFrequency is required")
	}
	info := &ports.SidecarInfo{
		TaskName:          doc.Get("TaskName").String(),
		SamplingFrequency: sfreq.Float(),
		EEGReference:      doc.Get("EEGReference").String(),
		EEGChannelCount:   int(doc.Get("EEGChannelCount").Int()),
		EOGChannelCount:   int(doc.Get("EOGChannelCount").Int()),
		ECGChannelCount:   int(doc.Get("ECGChannelCount").Int()),
		RecordingDuration: doc.Get("RecordingDuration").Float(),
	}
	// "n/a" is allowed for the line frequency.
	if pl := doc.Get("PowerLineFrequency"); pl.Type == gjson.Number {
		info.PowerLineFrequency = pl.Float()
	}
	if info.SamplingFrequency <= 0 {
		return nil, core.NewParameterError("SamplingFrequency", info.SamplingFrequency, "must be positive")
	}
	return info, nil
}

// Check lists disagreements between a sidecar and the loaded recording.
func Check(info *ports.SidecarInfo, rec *recording.Recording) []string {
	var issues []string
	if math.Abs(info.SamplingFrequency-rec.SFreq) > 1e-6 {
		issues = append(issues, fmt.Sprintf("sampling frequency: sidecar %g Hz, recording %g Hz", info.SamplingFrequency, rec.SFreq))
	}
	counts := []struct {
		name string
		want int
		typ  recording.ChannelType
	}{
		{"EEG", info.EEGChannelCount, recording.TypeEEG},
		{"EOG", info.EOGChannelCount, recording.TypeEOG},
		{"ECG", info.ECGChannelCount, recording.TypeECG},
	}
	for _, c := range counts {
		if c.want == 0 {
			continue
		}
		if got := len(rec.IndicesOfType(c.typ)); got != c.want {
			issues = append(issues, fmt.Sprintf("%s channels: sidecar %d, recording %d", c.name, c.want, got))
		}
	}
	if info.RecordingDuration > 0 && math.Abs(info.RecordingDuration-rec.Duration()) > 1/rec.SFreq {
		issues = append(issues, fmt.Sprintf("duration: sidecar %gs, recording %gs", info.RecordingDuration, rec.Duration()))
	}
	return issues
}

package ports

import (
	"context"

	"eegprep/domain/events"
	"eegprep/domain/montage"
	"eegprep/domain/recording"
)

// RecordingReaderPort loads a continuous recording from a file.
// Unsupported formats fail with core.ErrUnsupportedFormat.
type RecordingReaderPort interface {
	Read(ctx context.Context, path string) (*recording.Recording, error)
}

// AnnotationReaderPort loads an annotation table from a file.
type AnnotationReaderPort interface {
	ReadAnnotations(ctx context.Context, path string) (events.Annotations, error)
}

// MontageProviderPort resolves named sensor layouts.
type MontageProviderPort interface {
	Montage(name string) (*montage.Montage, error)
	Available() []string
}

// SidecarInfo is the acquisition metadata carried next to a recording.
type SidecarInfo struct {
	TaskName           string
	SamplingFrequency  float64
	PowerLineFrequency float64
	EEGReference       string
	EEGChannelCount    int
	EOGChannelCount    int
	ECGChannelCount    int
	RecordingDuration  float64
}

// SidecarReaderPort reads acquisition metadata.
type SidecarReaderPort interface {
	ReadSidecar(ctx context.Context, path string) (*SidecarInfo, error)
}

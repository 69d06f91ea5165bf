package ports

import (
	"context"

	"eegprep/domain/decomposition"
	"eegprep/domain/epochs"
	"eegprep/domain/events"
	"eegprep/domain/recording"
)

// ArtifactDetectorPort finds physiological artifacts on reference channels.
// A recording without a usable reference fails with core.ErrInvalidChannel.
type ArtifactDetectorPort interface {
	FindEvents(ctx context.Context, rec *recording.Recording, kind decomposition.ReferenceKind) (events.Table, string, error)
	CreateEpochs(ctx context.Context, rec *recording.Recording, kind decomposition.ReferenceKind, w epochs.Window, baseline *epochs.Baseline) (*epochs.Collection, error)
}

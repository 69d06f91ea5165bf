package ports

import (
	"context"

	"eegprep/domain/montage"
	"eegprep/domain/recording"
)

// InterpolatorPort rebuilds the recording's bad channels from their good
// neighbours using sensor positions from m. It returns the names it
// rebuilt. With resetBads those names leave the bad list.
type InterpolatorPort interface {
	InterpolateBads(ctx context.Context, rec *recording.Recording, m *montage.Montage, resetBads bool) (*recording.Recording, []string, error)
}

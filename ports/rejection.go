package ports

import (
	"context"

	"eegprep/domain/epochs"
	"eegprep/domain/rejection"
)

// RejectorPort fits an automatic rejection model on a training slice.
// Fitting on zero epochs fails with core.ErrEmptyInput.
type RejectorPort interface {
	Fit(ctx context.Context, train *epochs.Collection, seed int64) (RejectionModel, error)
}

// RejectionModel is a fitted rejector.
type RejectionModel interface {
	// Transform repairs flagged cells and returns the cleaned collection
	// and a log with one entry per input epoch.
	Transform(ctx context.Context, c *epochs.Collection) (*epochs.Collection, *rejection.RejectLog, error)
	// Thresholds reports the fitted per-channel thresholds.
	Thresholds() map[string]float64
}

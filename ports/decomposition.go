package ports

import (
	"context"

	"eegprep/domain/decomposition"
	"eegprep/domain/epochs"
	"eegprep/domain/recording"
)

// FitInput carries exactly one of Epochs or Recording.
type FitInput struct {
	Epochs      *epochs.Collection
	Recording   *recording.Recording
	NComponents int
	Seed        int64
}

// DecomposerPort fits, scores and applies component decompositions.
type DecomposerPort interface {
	Fit(ctx context.Context, in FitInput) (*decomposition.Decomposition, error)
	FindBadsByReference(ctx context.Context, d *decomposition.Decomposition, rec *recording.Recording, kind decomposition.ReferenceKind) (*decomposition.ReferenceScores, error)
	ApplyToEpochs(ctx context.Context, d *decomposition.Decomposition, exclude []int, c *epochs.Collection) (*epochs.Collection, error)
	ApplyToRecording(ctx context.Context, d *decomposition.Decomposition, exclude []int, rec *recording.Recording) (*recording.Recording, error)
	Sources(ctx context.Context, d *decomposition.Decomposition, rec *recording.Recording) ([][]float64, error)
}

// ExclusionDecider picks the components to project out, given the fitted
// decomposition and its reference scores. It stands in for visual
// inspection of component plots.
type ExclusionDecider func(ctx context.Context, d *decomposition.Decomposition, scores []decomposition.ReferenceScores) ([]int, error)

// FixedExclusion always returns the same component set.
func FixedExclusion(idx ...int) ExclusionDecider {
	return func(context.Context, *decomposition.Decomposition, []decomposition.ReferenceScores) ([]int, error) {
		return append([]int(nil), idx...), nil
	}
}

// ReferenceExclusion excludes every component flagged by a reference score.
func ReferenceExclusion() ExclusionDecider {
	return func(_ context.Context, _ *decomposition.Decomposition, scores []decomposition.ReferenceScores) ([]int, error) {
		return decomposition.UnionIndices(scores), nil
	}
}

package ports

import (
	"context"

	"eegprep/domain/artifacts"
	"eegprep/domain/recording"
)

// FilterSpec selects the pass band. A nil LowCut means no high-pass and a
// nil HighCut no low-pass. Picks restricts filtering to channel types;
// empty means data channels.
type FilterSpec struct {
	LowCut  *float64
	HighCut *float64
	Picks   []recording.ChannelType
}

// FilterPort is the filtering primitive. Channel count and sample rate are
// preserved, except by Resample.
type FilterPort interface {
	Filter(ctx context.Context, rec *recording.Recording, spec FilterSpec) (*recording.Recording, error)
	NotchFilter(ctx context.Context, rec *recording.Recording, freqs []float64, picks []recording.ChannelType) (*recording.Recording, error)
	Resample(ctx context.Context, rec *recording.Recording, sfreq float64) (*recording.Recording, error)
}

// LineNoisePort scores power-line contamination. Channels whose ratio of
// line power to neighbouring power exceeds threshold are reported noisy.
type LineNoisePort interface {
	LineNoise(ctx context.Context, rec *recording.Recording, freqs []float64, threshold float64) (*artifacts.LineNoiseReport, error)
}

// Float is a helper for optional cutoffs.
func Float(v float64) *float64 { return &v }

package testkit

import (
	"context"
	"math"
	"sort"

	"eegprep/adapters/ledger"
	"eegprep/adapters/rng"
	"eegprep/adapters/synthetic"
	"eegprep/domain/core"
	"eegprep/domain/decomposition"
	"eegprep/domain/epochs"
	"eegprep/domain/recording"
	"eegprep/domain/rejection"
	"eegprep/ports"
)

// TestKit provides testing utilities and fixtures
type TestKit struct {
	ledger *ledger.MemoryLedger // Shared ledger instance
}

// NewTestKit creates a new test kit with an empty in-memory ledger
func NewTestKit() *TestKit {
	return &TestKit{ledger: ledger.NewMemoryLedger()}
}

// LedgerAdapter returns the shared in-memory ledger
func (t *TestKit) LedgerAdapter() ports.LedgerPort {
	return t.ledger
}

// RNGAdapter returns the seeded RNG used by every adapter
func (t *TestKit) RNGAdapter() ports.RNGPort {
	return rng.SeededRNG{}
}

// Recording generates a synthetic recording of the given duration with
// every artifact switched on.
func (t *TestKit) Recording(duration float64, seed int64) (*recording.Recording, *synthetic.Truth, error) {
	cfg := synthetic.DefaultGeneratorConfig()
	cfg.Duration = duration
	cfg.Seed = seed
	return synthetic.NewGenerator(cfg).Generate()
}

// QuietRecording generates a recording without blinks or heartbeats.
func (t *TestKit) QuietRecording(duration float64, seed int64) (*recording.Recording, error) {
	cfg := synthetic.DefaultGeneratorConfig()
	cfg.Duration = duration
	cfg.Seed = seed
	cfg.BlinkAmplitude = 0
	cfg.HeartAmplitude = 0
	rec, _, err := synthetic.NewGenerator(cfg).Generate()
	return rec, err
}

// ThresholdDecider excludes every component whose absolute score against
// any reference reaches threshold. It stands in for visual inspection.
func ThresholdDecider(threshold float64) ports.ExclusionDecider {
	return func(_ context.Context, _ *decomposition.Decomposition, scores []decomposition.ReferenceScores) ([]int, error) {
		set := make(map[int]bool)
		for _, s := range scores {
			for i, v := range s.Scores {
				if math.Abs(v) >= threshold {
					set[i] = true
				}
			}
		}
		out := make([]int, 0, len(set))
		for i := range set {
			out = append(out, i)
		}
		sort.Ints(out)
		return out, nil
	}
}

// FlaggingRejector is a RejectorPort whose model marks every epoch listed
// in Bad as bad and leaves the data untouched. FitSizes records the size of
// each training slice it saw.
type FlaggingRejector struct {
	Bad      []int
	FitSizes []int
}

var _ ports.RejectorPort = (*FlaggingRejector)(nil)

// Fit records the training size. Empty slices fail like the real rejector.
func (r *FlaggingRejector) Fit(ctx context.Context, train *epochs.Collection, seed int64) (ports.RejectionModel, error) {
	if train.Len() == 0 {
		return nil, core.NewEmptyInputError("rejector fit on 0 epochs")
	}
	r.FitSizes = append(r.FitSizes, train.Len())
	return flaggingModel{bad: r.Bad}, nil
}

type flaggingModel struct {
	bad []int
}

func (m flaggingModel) Transform(ctx context.Context, c *epochs.Collection) (*epochs.Collection, *rejection.RejectLog, error) {
	log := rejection.New(c.Len(), c.ChannelNames())
	for _, i := range m.bad {
		if i < c.Len() {
			log.BadEpochs[i] = true
		}
	}
	kept, err := c.Mask(log.GoodMask())
	if err != nil {
		return nil, nil, err
	}
	return kept, log, nil
}

func (m flaggingModel) Thresholds() map[string]float64 { return map[string]float64{} }

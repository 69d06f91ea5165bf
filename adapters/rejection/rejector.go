// Package rejection is a seeded peak-to-peak rejector. Per-channel
// thresholds come from bootstrapped robust statistics of the training
// epochs; the interpolation count and consensus fraction are picked by
// cross-validation over seeded folds.
package rejection

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sort"

	"github.com/montanaflynn/stats"

	"eegprep/domain/core"
	"eegprep/domain/epochs"
	"eegprep/domain/recording"
	domrej "eegprep/domain/rejection"
	"eegprep/ports"
)

// Config tunes the rejector.
type Config struct {
	NInterpolate []int     `yaml:"n_interpolate"` // candidate channel counts to repair per epoch
	Consensus    []float64 `yaml:"consensus"`     // candidate fractions of bad channels that condemn an epoch
	MADFactor    float64   `yaml:"mad_factor"`    // threshold = median + MADFactor * scaled MAD
	Bootstrap    int       `yaml:"bootstrap"`
	Folds        int       `yaml:"folds"`
}

// DefaultConfig mirrors the n_interpolate grid used in the analysis scripts.
func DefaultConfig() Config {
	return Config{
		NInterpolate: []int{1, 2, 3, 4},
		Consensus:    []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		MADFactor:    3,
		Bootstrap:    50,
		Folds:        4,
	}
}

// madScale makes the MAD a consistent estimator of sigma for normal data.
const madScale = 1.4826

// ThresholdRejector implements ports.RejectorPort.
type ThresholdRejector struct {
	cfg Config
	rng ports.RNGPort
}

var _ ports.RejectorPort = (*ThresholdRejector)(nil)

// NewThresholdRejector builds a rejector drawing randomness from rng.
func NewThresholdRejector(cfg Config, rng ports.RNGPort) *ThresholdRejector {
	if len(cfg.NInterpolate) == 0 {
		cfg.NInterpolate = DefaultConfig().NInterpolate
	}
	if len(cfg.Consensus) == 0 {
		cfg.Consensus = DefaultConfig().Consensus
	}
	if cfg.MADFactor <= 0 {
		cfg.MADFactor = DefaultConfig().MADFactor
	}
	if cfg.Bootstrap < 1 {
		cfg.Bootstrap = 1
	}
	if cfg.Folds < 2 {
		cfg.Folds = 2
	}
	return &ThresholdRejector{cfg: cfg, rng: rng}
}

// Fit learns thresholds on the training slice. Zero epochs is an error.
func (r *ThresholdRejector) Fit(ctx context.Context, train *epochs.Collection, seed int64) (ports.RejectionModel, error) {
	if train == nil || train.Len() == 0 {
		return nil, core.NewEmptyInputError("rejection fit needs at least one training epoch")
	}
	picks := dataPicks(train)
	if len(picks) == 0 {
		return nil, core.NewChannelError("", "no good data channels to fit thresholds on")
	}
	rng, err := r.rng.SeededStream(ctx, "reject_fit", seed)
	if err != nil {
		return nil, err
	}

	ptp := peakToPeak(train, picks)
	thresholds := make(map[string]float64, len(picks))
	for j, ch := range picks {
		col := make([]float64, train.Len())
		for i := range col {
			col[i] = ptp[i][j]
		}
		thr, err := r.bootstrapThreshold(col, rng)
		if err != nil {
			return nil, fmt.Errorf("threshold for %s: %w", train.Channels[ch].Name, err)
		}
		thresholds[train.Channels[ch].Name] = thr
	}

	m := &Model{
		channels:   train.ChannelNames(),
		picks:      picks,
		thresholds: thresholds,
		rho:        r.cfg.NInterpolate[0],
		kappa:      r.cfg.Consensus[len(r.cfg.Consensus)-1],
		seed:       seed,
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if train.Len() >= r.cfg.Folds {
		m.rho, m.kappa = r.crossValidate(train, m, ptp, rng)
	}
	log.Printf("[Rejector] fit on %d epochs: %d channels, n_interpolate=%d consensus=%.1f",
		train.Len(), len(picks), m.rho, m.kappa)
	return m, nil
}

func (r *ThresholdRejector) bootstrapThreshold(col []float64, rng *rand.Rand) (float64, error) {
	estimates := make([]float64, r.cfg.Bootstrap)
	sample := make(stats.Float64Data, len(col))
	for b := range estimates {
		if b == 0 {
			copy(sample, col)
		} else {
			for i := range sample {
				sample[i] = col[rng.Intn(len(col))]
			}
		}
		med, err := stats.Median(sample)
		if err != nil {
			return 0, err
		}
		mad, err := stats.MedianAbsoluteDeviation(sample)
		if err != nil {
			return 0, err
		}
		estimates[b] = med + r.cfg.MADFactor*madScale*mad
	}
	return stats.Median(estimates)
}

// crossValidate scores every (rho, kappa) pair: the mean of repaired,
// kept training epochs is compared against the median of held-out epochs.
// Ties go to the earlier candidate.
func (r *ThresholdRejector) crossValidate(train *epochs.Collection, m *Model, ptp [][]float64, rng *rand.Rand) (int, float64) {
	order := rng.Perm(train.Len())
	folds := make([][]int, r.cfg.Folds)
	for i, idx := range order {
		folds[i%r.cfg.Folds] = append(folds[i%r.cfg.Folds], idx)
	}

	bestRho, bestKappa := m.rho, m.kappa
	bestErr := math.Inf(1)
	for _, rho := range r.cfg.NInterpolate {
		for _, kappa := range r.cfg.Consensus {
			trial := *m
			trial.rho, trial.kappa = rho, kappa
			var sum float64
			for f := range folds {
				sum += trial.foldError(train, ptp, folds, f)
			}
			if sum < bestErr-1e-12 {
				bestErr = sum
				bestRho, bestKappa = rho, kappa
			}
		}
	}
	return bestRho, bestKappa
}

// Model is a fitted ThresholdRejector.
type Model struct {
	channels   []string
	picks      []int
	thresholds map[string]float64
	rho        int
	kappa      float64
	seed       int64
}

// Thresholds returns a copy of the per-channel peak-to-peak limits.
func (m *Model) Thresholds() map[string]float64 {
	out := make(map[string]float64, len(m.thresholds))
	for k, v := range m.thresholds {
		out[k] = v
	}
	return out
}

// NInterpolate is the chosen repair count.
func (m *Model) NInterpolate() int { return m.rho }

// Consensus is the chosen fraction of bad channels that drops an epoch.
func (m *Model) Consensus() float64 { return m.kappa }

// Transform labels every epoch, repairs what it can, and returns the kept
// epochs alongside a log covering all of them.
func (m *Model) Transform(ctx context.Context, c *epochs.Collection) (*epochs.Collection, *domrej.RejectLog, error) {
	names := c.ChannelNames()
	if len(names) != len(m.channels) {
		return nil, nil, core.NewShapeError("rejection channels", len(m.channels), len(names))
	}
	for i, n := range names {
		if n != m.channels[i] {
			return nil, nil, fmt.Errorf("%w: channel %d is %q, model was fit on %q", core.ErrShapeMismatch, i, n, m.channels[i])
		}
	}

	ptp := peakToPeak(c, m.picks)
	rl := domrej.New(c.Len(), names)
	repaired := make([][][]float64, c.Len())
	for i, ep := range c.Epochs {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}
		labels, bad := m.label(ptp[i])
		copy(rl.Labels[i], labels)
		rl.BadEpochs[i] = bad
		repaired[i] = interpolate(ep.Data, labels, m.picks)
	}

	fixed, err := c.WithEpochData(repaired, recording.Step{Stage: "reject_repair",
		Detail: fmt.Sprintf("n_interpolate=%d consensus=%.2f", m.rho, m.kappa)})
	if err != nil {
		return nil, nil, err
	}
	cleaned, err := fixed.Mask(rl.GoodMask())
	if err != nil {
		return nil, nil, err
	}
	return cleaned, rl, nil
}

// label classifies one epoch. The rho worst offending channels are
// interpolated; any further offenders stay marked bad. The epoch is bad
// when the offending fraction exceeds kappa.
func (m *Model) label(ptp []float64) ([]domrej.Label, bool) {
	labels := make([]domrej.Label, len(m.channels))
	type offender struct {
		ch     int
		excess float64
	}
	var off []offender
	for j, ch := range m.picks {
		thr := m.thresholds[m.channels[ch]]
		if ptp[j] > thr {
			off = append(off, offender{ch: ch, excess: ptp[j] / thr})
		}
	}
	if len(off) == 0 {
		return labels, false
	}
	if float64(len(off)) > m.kappa*float64(len(m.picks)) {
		for _, o := range off {
			labels[o.ch] = domrej.Bad
		}
		return labels, true
	}
	sort.SliceStable(off, func(a, b int) bool { return off[a].excess > off[b].excess })
	for k, o := range off {
		if k < m.rho {
			labels[o.ch] = domrej.Interpolated
		} else {
			labels[o.ch] = domrej.Bad
		}
	}
	return labels, false
}

func (m *Model) foldError(train *epochs.Collection, ptp [][]float64, folds [][]int, held int) float64 {
	var fitIdx []int
	for f, idx := range folds {
		if f != held {
			fitIdx = append(fitIdx, idx...)
		}
	}
	nt := train.NTimes()
	var kept [][][]float64
	for _, i := range fitIdx {
		labels, bad := m.label(ptp[i])
		if bad {
			continue
		}
		kept = append(kept, interpolate(train.Epochs[i].Data, labels, m.picks))
	}
	if len(kept) == 0 || len(folds[held]) == 0 {
		return math.Inf(1)
	}

	var sq float64
	var count int
	buf := make(stats.Float64Data, len(folds[held]))
	for _, ch := range m.picks {
		for t := 0; t < nt; t++ {
			var mean float64
			for _, ep := range kept {
				mean += ep[ch][t]
			}
			mean /= float64(len(kept))
			for k, i := range folds[held] {
				buf[k] = train.Epochs[i].Data[ch][t]
			}
			med, _ := stats.Median(buf)
			sq += (mean - med) * (mean - med)
			count++
		}
	}
	return math.Sqrt(sq / float64(count))
}

// interpolate replaces each interpolated channel with the mean of the
// good picked channels at each sample.
func interpolate(data [][]float64, labels []domrej.Label, picks []int) [][]float64 {
	out := recording.CloneMatrix(data)
	var good []int
	var fix []int
	for _, ch := range picks {
		switch labels[ch] {
		case domrej.Good:
			good = append(good, ch)
		case domrej.Interpolated:
			fix = append(fix, ch)
		}
	}
	if len(fix) == 0 || len(good) == 0 {
		return out
	}
	for _, ch := range fix {
		for t := range out[ch] {
			var sum float64
			for _, g := range good {
				sum += data[g][t]
			}
			out[ch][t] = sum / float64(len(good))
		}
	}
	return out
}

// dataPicks returns good eeg/mag/grad channel indices.
func dataPicks(c *epochs.Collection) []int {
	bad := make(map[string]bool, len(c.Bads))
	for _, b := range c.Bads {
		bad[b] = true
	}
	var picks []int
	for i, ch := range c.Channels {
		if ch.Type.IsData() && !bad[ch.Name] {
			picks = append(picks, i)
		}
	}
	return picks
}

// peakToPeak returns epoch x pick amplitudes.
func peakToPeak(c *epochs.Collection, picks []int) [][]float64 {
	out := make([][]float64, c.Len())
	for i, ep := range c.Epochs {
		out[i] = make([]float64, len(picks))
		for j, ch := range picks {
			out[i][j] = epochs.PeakToPeak(ep.Data[ch])
		}
	}
	return out
}

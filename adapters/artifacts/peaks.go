// Package artifacts finds blink and heartbeat events on reference channels
// and cuts epochs around them.
package artifacts

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"eegprep/adapters/spectral"
	"eegprep/domain/core"
	"eegprep/domain/decomposition"
	"eegprep/domain/epochs"
	"eegprep/domain/events"
	"eegprep/domain/recording"
	"eegprep/ports"
)

// Event codes given to detected artifacts.
const (
	EOGEventCode = 998
	ECGEventCode = 999
)

// DetectorConfig holds per-kind detection settings.
type DetectorConfig struct {
	Band       [2]float64 // Hz
	Refractory float64    // seconds between accepted peaks
	K          float64    // threshold in robust standard deviations
}

// DefaultDetector returns the settings for a reference kind.
func DefaultDetector(kind decomposition.ReferenceKind) DetectorConfig {
	if kind == decomposition.ReferenceECG {
		return DetectorConfig{Band: [2]float64{5, 35}, Refractory: 0.3, K: 5}
	}
	return DetectorConfig{Band: [2]float64{1, 10}, Refractory: 1.0, K: 5}
}

// madScale turns the MAD into a standard deviation estimate for normal noise.
const madScale = 1.4826

// DetectPeaks returns sample indices of artifact peaks in signal, ascending.
// The signal is band-passed, then local maxima of |x - median| above
// median + K robust sigmas are accepted largest first, each suppressing
// neighbours within the refractory period.
func DetectPeaks(signal []float64, sfreq float64, cfg DetectorConfig) ([]int, error) {
	if len(signal) < 3 {
		return nil, core.NewEmptyInputError("peak detection needs at least three samples")
	}
	if sfreq <= 0 {
		return nil, core.NewParameterError("sfreq", sfreq, "must be positive")
	}
	x := spectral.BandPassRow(signal, sfreq, cfg.Band[0], cfg.Band[1])

	med, err := stats.Median(x)
	if err != nil {
		return nil, err
	}
	mad, err := stats.MedianAbsoluteDeviation(x)
	if err != nil {
		return nil, err
	}
	threshold := cfg.K * madScale * mad
	if threshold == 0 {
		return nil, nil
	}

	dev := make([]float64, len(x))
	for i, v := range x {
		dev[i] = math.Abs(v - med)
	}
	var cand []int
	for i := 1; i < len(dev)-1; i++ {
		if dev[i] > threshold && dev[i] >= dev[i-1] && dev[i] > dev[i+1] {
			cand = append(cand, i)
		}
	}
	sort.SliceStable(cand, func(a, b int) bool { return dev[cand[a]] > dev[cand[b]] })

	gap := int(math.Round(cfg.Refractory * sfreq))
	var peaks []int
	for _, c := range cand {
		ok := true
		for _, p := range peaks {
			if absInt(c-p) < gap {
				ok = false
				break
			}
		}
		if ok {
			peaks = append(peaks, c)
		}
	}
	sort.Ints(peaks)
	return peaks, nil
}

// ReferenceSignal returns the reference channel for kind. For ECG without
// a dedicated channel, the mean of the magnetometers (or EEG channels)
// stands in.
func ReferenceSignal(rec *recording.Recording, kind decomposition.ReferenceKind) (string, []float64, error) {
	want := recording.TypeEOG
	if kind == decomposition.ReferenceECG {
		want = recording.TypeECG
	}
	if idx := rec.IndicesOfType(want); len(idx) > 0 {
		i := idx[0]
		return rec.Channels[i].Name, append([]float64(nil), rec.Data[i]...), nil
	}
	if kind != decomposition.ReferenceECG {
		return "", nil, core.NewChannelError(string(kind), "no reference channel of this type")
	}
	idx := rec.IndicesOfType(recording.TypeMag)
	if len(idx) == 0 {
		idx = rec.IndicesOfType(recording.TypeEEG)
	}
	if len(idx) == 0 {
		return "", nil, core.NewChannelError(string(kind), "no channels to synthesize a reference from")
	}
	out := make([]float64, rec.NTimes())
	for _, i := range idx {
		for t, v := range rec.Data[i] {
			out[t] += v
		}
	}
	for t := range out {
		out[t] /= float64(len(idx))
	}
	return "ECG-synthetic", out, nil
}

// FindArtifactEvents detects peaks on the reference channel and returns
// them as an event table.
func FindArtifactEvents(rec *recording.Recording, kind decomposition.ReferenceKind) (events.Table, string, error) {
	name, ref, err := ReferenceSignal(rec, kind)
	if err != nil {
		return nil, "", err
	}
	peaks, err := DetectPeaks(ref, rec.SFreq, DefaultDetector(kind))
	if err != nil {
		return nil, "", fmt.Errorf("detect %s peaks on %s: %w", kind, name, err)
	}
	code := EOGEventCode
	if kind == decomposition.ReferenceECG {
		code = ECGEventCode
	}
	table := make(events.Table, len(peaks))
	for i, p := range peaks {
		table[i] = events.Event{Sample: rec.FirstSamp + p, Code: code}
	}
	return table, name, nil
}

// DefaultArtifactWindow is the epoch span around each detected peak.
var DefaultArtifactWindow = epochs.Window{TMin: -0.5, TMax: 0.5}

// CreateArtifactEpochs cuts epochs around every detected artifact peak.
func CreateArtifactEpochs(rec *recording.Recording, kind decomposition.ReferenceKind, w epochs.Window, baseline *epochs.Baseline) (*epochs.Collection, error) {
	table, _, err := FindArtifactEvents(rec, kind)
	if err != nil {
		return nil, err
	}
	if len(table) == 0 {
		return nil, core.NewEmptyInputError(fmt.Sprintf("no %s events found", kind))
	}
	code := table[0].Code
	return epochs.FromEvents(rec, table, events.Dict{string(kind): code}, w, epochs.Options{Baseline: baseline})
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Detector implements ports.ArtifactDetectorPort over the peak detector.
type Detector struct{}

var _ ports.ArtifactDetectorPort = Detector{}

// FindEvents checks ctx and delegates to FindArtifactEvents.
func (Detector) FindEvents(ctx context.Context, rec *recording.Recording, kind decomposition.ReferenceKind) (events.Table, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	return FindArtifactEvents(rec, kind)
}

// CreateEpochs checks ctx and delegates to CreateArtifactEpochs.
func (Detector) CreateEpochs(ctx context.Context, rec *recording.Recording, kind decomposition.ReferenceKind, w epochs.Window, baseline *epochs.Baseline) (*epochs.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return CreateArtifactEpochs(rec, kind, w, baseline)
}

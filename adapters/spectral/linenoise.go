package spectral

import (
	"context"
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"eegprep/domain/artifacts"
	"eegprep/domain/core"
	"eegprep/domain/recording"
	"eegprep/ports"
)

// ratios above this are reported as the cap so reports stay JSON-safe
const maxLineRatio = 1e6

var _ ports.LineNoisePort = (*FFTFilter)(nil)

// LineNoise scores every good data channel with LineNoiseRatio at each of
// freqs and lists the channels above threshold.
func (f *FFTFilter) LineNoise(ctx context.Context, rec *recording.Recording, freqs []float64, threshold float64) (*artifacts.LineNoiseReport, error) {
	if len(freqs) == 0 {
		return nil, core.NewParameterError("freqs", freqs, "at least one line frequency required")
	}
	if !(threshold > 0) {
		return nil, core.NewParameterError("noise_threshold", threshold, "must be positive")
	}
	nyq := rec.SFreq / 2
	for _, f0 := range freqs {
		if f0 <= 0 || f0 >= nyq {
			return nil, core.NewParameterError("line_freq", f0, fmt.Sprintf("must lie in (0, %g)", nyq))
		}
	}

	mask := make([]bool, rec.NChannels())
	picked := 0
	for i, ch := range rec.Channels {
		if ch.Type.IsData() && !rec.IsBad(ch.Name) {
			mask[i] = true
			picked++
		}
	}
	if picked == 0 {
		return nil, core.NewChannelError("", "no good data channels to scan for line noise")
	}

	rows, err := f.exec.run(ctx, rec.Data, mask, func(x []float64) []float64 {
		r := make([]float64, len(freqs))
		for k, f0 := range freqs {
			r[k] = math.Min(LineNoiseRatio(x, rec.SFreq, f0), maxLineRatio)
		}
		return r
	})
	if err != nil {
		return nil, err
	}

	report := &artifacts.LineNoiseReport{Threshold: threshold}
	for k, f0 := range freqs {
		line := artifacts.LineNoiseLine{Freq: f0}
		ratios := make([]float64, 0, picked)
		for i, ch := range rec.Channels {
			if !mask[i] {
				continue
			}
			r := rows[i][k]
			ratios = append(ratios, r)
			if r > threshold {
				line.Noisy = append(line.Noisy, ch.Name)
			}
		}
		if line.MedianRatio, err = stats.Median(ratios); err != nil {
			return nil, err
		}
		if line.MaxRatio, err = stats.Max(ratios); err != nil {
			return nil, err
		}
		report.Lines = append(report.Lines, line)
	}
	return report, nil
}

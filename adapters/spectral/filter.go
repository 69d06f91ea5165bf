// Package spectral implements filtering and resampling by masking FFT
// coefficients. It does not design IIR/FIR filters; the transition bands
// are raised-cosine tapers in the frequency domain.
package spectral

import (
	"context"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"

	"eegprep/domain/core"
	"eegprep/domain/recording"
	"eegprep/ports"
)

// FFTFilter implements ports.FilterPort.
type FFTFilter struct {
	exec       *channelExecutor
	NotchWidth float64 // Hz, full width of each notch
}

var _ ports.FilterPort = (*FFTFilter)(nil)

// NewFFTFilter creates a filter that processes up to workers channels at once.
func NewFFTFilter(workers int) *FFTFilter {
	return &FFTFilter{exec: newChannelExecutor(workers), NotchWidth: 1.0}
}

// highTransition follows the usual default: min(max(0.25*f, 2), f).
func highTransition(lowCut float64) float64 {
	return math.Min(math.Max(0.25*lowCut, 2), lowCut)
}

// lowTransition is min(max(0.25*f, 2), nyquist-f).
func lowTransition(highCut, nyquist float64) float64 {
	return math.Min(math.Max(0.25*highCut, 2), nyquist-highCut)
}

// taper rises from 0 at edge-width/2 to 1 at edge+width/2.
func taper(f, edge, width float64) float64 {
	lo, hi := edge-width/2, edge+width/2
	switch {
	case f <= lo:
		return 0
	case f >= hi:
		return 1
	default:
		return 0.5 - 0.5*math.Cos(math.Pi*(f-lo)/(hi-lo))
	}
}

// Filter applies a high-pass, low-pass or band-pass mask.
func (f *FFTFilter) Filter(ctx context.Context, rec *recording.Recording, spec ports.FilterSpec) (*recording.Recording, error) {
	nyq := rec.SFreq / 2
	if spec.LowCut != nil {
		if *spec.LowCut <= 0 || *spec.LowCut >= nyq {
			return nil, core.NewParameterError("l_freq", *spec.LowCut, fmt.Sprintf("must lie in (0, %g)", nyq))
		}
	}
	if spec.HighCut != nil {
		if *spec.HighCut <= 0 || *spec.HighCut >= nyq {
			return nil, core.NewParameterError("h_freq", *spec.HighCut, fmt.Sprintf("must lie in (0, %g)", nyq))
		}
	}
	if spec.LowCut != nil && spec.HighCut != nil && *spec.LowCut >= *spec.HighCut {
		return nil, core.NewParameterError("l_freq", *spec.LowCut, fmt.Sprintf("must be below h_freq %g", *spec.HighCut))
	}

	gain := func(freq float64) float64 {
		g := 1.0
		if spec.LowCut != nil {
			g *= taper(freq, *spec.LowCut, highTransition(*spec.LowCut))
		}
		if spec.HighCut != nil {
			g *= 1 - taper(freq, *spec.HighCut, lowTransition(*spec.HighCut, nyq))
		}
		return g
	}
	if spec.LowCut != nil {
		base := gain
		gain = func(freq float64) float64 {
			if freq == 0 {
				return 0
			}
			return base(freq)
		}
	}

	data, err := f.exec.run(ctx, rec.Data, pickMask(rec, spec.Picks), func(x []float64) []float64 {
		return applyMask(x, rec.SFreq, gain)
	})
	if err != nil {
		return nil, err
	}
	return rec.WithData(data, recording.Step{Stage: "filter", Detail: describeBand(spec)})
}

// NotchFilter removes narrow bands around each frequency.
func (f *FFTFilter) NotchFilter(ctx context.Context, rec *recording.Recording, freqs []float64, picks []recording.ChannelType) (*recording.Recording, error) {
	if len(freqs) == 0 {
		return nil, core.NewParameterError("freqs", freqs, "at least one notch frequency required")
	}
	nyq := rec.SFreq / 2
	for _, f0 := range freqs {
		if f0 <= 0 || f0 >= nyq {
			return nil, core.NewParameterError("notch", f0, fmt.Sprintf("must lie in (0, %g)", nyq))
		}
	}
	half := f.NotchWidth / 2
	gain := func(freq float64) float64 {
		for _, f0 := range freqs {
			if math.Abs(freq-f0) <= half {
				return 0
			}
		}
		return 1
	}
	data, err := f.exec.run(ctx, rec.Data, pickMask(rec, picks), func(x []float64) []float64 {
		return applyMask(x, rec.SFreq, gain)
	})
	if err != nil {
		return nil, err
	}
	return rec.WithData(data, recording.Step{Stage: "notch_filter", Detail: fmt.Sprint(freqs)})
}

// Resample changes the sample rate by truncating or zero-padding the
// spectrum. Every channel is resampled, including stim channels.
func (f *FFTFilter) Resample(ctx context.Context, rec *recording.Recording, sfreq float64) (*recording.Recording, error) {
	if sfreq <= 0 {
		return nil, core.NewParameterError("sfreq", sfreq, "must be positive")
	}
	n := rec.NTimes()
	m := int(math.Round(float64(n) * sfreq / rec.SFreq))
	if m < 1 {
		return nil, core.NewParameterError("sfreq", sfreq, "leaves no samples")
	}
	all := make([]bool, rec.NChannels())
	for i := range all {
		all[i] = true
	}
	data, err := f.exec.run(ctx, rec.Data, all, func(x []float64) []float64 {
		return resampleRow(x, m)
	})
	if err != nil {
		return nil, err
	}
	return rec.WithResampledData(data, sfreq, recording.Step{Stage: "resample", Detail: fmt.Sprintf("%g -> %g Hz", rec.SFreq, sfreq)})
}

func applyMask(x []float64, sfreq float64, gain func(float64) float64) []float64 {
	n := len(x)
	if n < 2 {
		return append([]float64(nil), x...)
	}
	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, x)
	for k := range coeff {
		freq := float64(k) * sfreq / float64(n)
		coeff[k] *= complex(gain(freq), 0)
	}
	y := fft.Sequence(nil, coeff)
	scale := 1 / float64(n)
	for i := range y {
		y[i] *= scale
	}
	return y
}

func resampleRow(x []float64, m int) []float64 {
	n := len(x)
	if n == m || n < 2 {
		return append([]float64(nil), x...)
	}
	src := fourier.NewFFT(n)
	coeff := src.Coefficients(nil, x)
	dst := fourier.NewFFT(m)
	out := make([]complex128, m/2+1)
	limit := len(coeff)
	if len(out) < limit {
		limit = len(out)
	}
	copy(out[:limit], coeff[:limit])
	y := dst.Sequence(nil, out)
	scale := 1 / float64(n)
	for i := range y {
		y[i] *= scale
	}
	return y
}

// pickMask flags the rows to filter. With no picks, data channels (eeg,
// mag, grad) plus eog and ecg are filtered and stim/misc are left alone.
func pickMask(rec *recording.Recording, picks []recording.ChannelType) []bool {
	mask := make([]bool, rec.NChannels())
	for i, ch := range rec.Channels {
		if len(picks) == 0 {
			mask[i] = ch.Type != recording.TypeStim && ch.Type != recording.TypeMisc
			continue
		}
		for _, t := range picks {
			if ch.Type == t {
				mask[i] = true
				break
			}
		}
	}
	return mask
}

func describeBand(spec ports.FilterSpec) string {
	var parts []string
	if spec.LowCut != nil {
		parts = append(parts, fmt.Sprintf("l_freq=%g", *spec.LowCut))
	}
	if spec.HighCut != nil {
		parts = append(parts, fmt.Sprintf("h_freq=%g", *spec.HighCut))
	}
	if len(parts) == 0 {
		return "passthrough"
	}
	return strings.Join(parts, " ")
}

// BandPassRow band-limits a single signal to [lo, hi] Hz with the same
// tapers Filter uses. A zero lo skips the high-pass edge.
func BandPassRow(x []float64, sfreq, lo, hi float64) []float64 {
	nyq := sfreq / 2
	if hi >= nyq {
		hi = nyq * 0.99
	}
	return applyMask(x, sfreq, func(freq float64) float64 {
		g := 1 - taper(freq, hi, lowTransition(hi, nyq))
		if lo > 0 {
			if freq == 0 {
				return 0
			}
			g *= taper(freq, lo, highTransition(lo))
		}
		return g
	})
}

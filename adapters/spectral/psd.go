package spectral

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// Periodogram returns the one-sided power spectrum of x after a Hann taper.
func Periodogram(x []float64, sfreq float64) (freqs, power []float64) {
	n := len(x)
	if n < 2 {
		return nil, nil
	}
	seq := append([]float64(nil), x...)
	var mean float64
	for _, v := range seq {
		mean += v
	}
	mean /= float64(n)
	for i := range seq {
		seq[i] -= mean
	}
	window.Hann(seq)

	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, seq)
	freqs = make([]float64, len(coeff))
	power = make([]float64, len(coeff))
	for k, c := range coeff {
		freqs[k] = float64(k) * sfreq / float64(n)
		a := cmplx.Abs(c)
		power[k] = a * a / (sfreq * float64(n))
	}
	return freqs, power
}

// BandPower sums periodogram power within [lo, hi] Hz.
func BandPower(x []float64, sfreq, lo, hi float64) float64 {
	freqs, power := Periodogram(x, sfreq)
	var sum float64
	for k, f := range freqs {
		if f >= lo && f <= hi {
			sum += power[k]
		}
	}
	return sum
}

// LineNoiseRatio compares power in a 1 Hz band around f0 with the mean
// power of its 5 Hz neighbourhood. Values well above 1 indicate line noise.
func LineNoiseRatio(x []float64, sfreq, f0 float64) float64 {
	peak := BandPower(x, sfreq, f0-0.5, f0+0.5)
	around := BandPower(x, sfreq, f0-5, f0+5) - peak
	if around <= 0 {
		if peak <= 0 {
			return 0
		}
		return math.Inf(1)
	}
	return peak / (around / 9)
}

package montage

import (
	"context"
	"errors"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"eegprep/domain/core"
	dommontage "eegprep/domain/montage"
	"eegprep/domain/recording"
	"eegprep/ports"
)

// SplineInterpolator rebuilds bad EEG channels by spherical spline
// interpolation (Perrin et al., 1989). Bad MEG channels are left as they are.
type SplineInterpolator struct {
	Stiffness     int // spline order m
	LegendreTerms int
}

var _ ports.InterpolatorPort = (*SplineInterpolator)(nil)

// NewSplineInterpolator uses m=4 and seven Legendre terms.
func NewSplineInterpolator() *SplineInterpolator {
	return &SplineInterpolator{Stiffness: 4, LegendreTerms: 7}
}

// InterpolateBads replaces every bad EEG channel with a weighted sum of the
// good EEG channels that have a position in m.
func (s *SplineInterpolator) InterpolateBads(ctx context.Context, rec *recording.Recording, m *dommontage.Montage, resetBads bool) (*recording.Recording, []string, error) {
	if m == nil {
		return nil, nil, core.NewParameterError("montage", "", "interpolation needs sensor positions")
	}
	var badIdx, goodIdx []int
	var badPos, goodPos []dommontage.Position
	for i, ch := range rec.Channels {
		if ch.Type != recording.TypeEEG {
			continue
		}
		pos, ok := m.Lookup(ch.Name)
		if rec.IsBad(ch.Name) {
			if !ok {
				return nil, nil, core.NewChannelError(ch.Name, "bad channel has no position in montage "+m.Name)
			}
			badIdx, badPos = append(badIdx, i), append(badPos, pos)
			continue
		}
		if ok {
			goodIdx, goodPos = append(goodIdx, i), append(goodPos, pos)
		}
	}
	if len(badIdx) == 0 {
		return rec.Clone(), nil, nil
	}
	if len(goodIdx) < 3 {
		return nil, nil, core.NewParameterError("good EEG channels", len(goodIdx), "at least 3 with positions are needed to interpolate")
	}
	if rec.NTimes() == 0 {
		return nil, nil, core.NewEmptyInputError("interpolation of a recording with no samples")
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	w, err := s.weights(goodPos, badPos)
	if err != nil {
		return nil, nil, err
	}
	good := mat.NewDense(len(goodIdx), rec.NTimes(), nil)
	for r, i := range goodIdx {
		good.SetRow(r, rec.Data[i])
	}
	var rebuilt mat.Dense
	rebuilt.Mul(w, good)

	data := recording.CloneMatrix(rec.Data)
	names := make([]string, len(badIdx))
	for r, i := range badIdx {
		data[i] = mat.Row(nil, r, &rebuilt)
		names[r] = rec.Channels[i].Name
	}
	out, err := rec.WithData(data, recording.Step{Stage: "interpolate_bads", Detail: strings.Join(names, ",")})
	if err != nil {
		return nil, nil, err
	}
	if resetBads {
		done := make(map[string]bool, len(names))
		for _, n := range names {
			done[n] = true
		}
		keep := make([]string, 0, len(out.Bads))
		for _, b := range out.Bads {
			if !done[b] {
				keep = append(keep, b)
			}
		}
		if out, err = out.WithBads(keep); err != nil {
			return nil, nil, err
		}
	}
	return out, names, nil
}

// weights solves the constrained spline system
//
//	[G 1; 1' 0] [c; c0] = [v; 0]
//
// and returns the len(to) x len(from) matrix mapping good-channel values to
// the interpolated ones.
func (s *SplineInterpolator) weights(from, to []dommontage.Position) (*mat.Dense, error) {
	n := len(from)
	c := mat.NewDense(n+1, n+1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			c.Set(i, j, s.g(cosAngle(from[i], from[j])))
		}
		c.Set(i, n, 1)
		c.Set(n, i, 1)
	}
	inv, err := pinv(c)
	if err != nil {
		return nil, err
	}

	t := mat.NewDense(len(to), n+1, nil)
	for k := range to {
		for j := 0; j < n; j++ {
			t.Set(k, j, s.g(cosAngle(to[k], from[j])))
		}
		t.Set(k, n, 1)
	}
	var full mat.Dense
	full.Mul(t, inv)
	return mat.DenseCopyOf(full.Slice(0, len(to), 0, n)), nil
}

// g is the spline kernel: a Legendre series in the cosine of the angle
// between two sensors.
func (s *SplineInterpolator) g(x float64) float64 {
	prev, cur := 1.0, x
	var sum float64
	for n := 1; n <= s.LegendreTerms; n++ {
		fn := float64(n)
		sum += (2*fn + 1) / math.Pow(fn*(fn+1), float64(s.Stiffness)) * cur
		prev, cur = cur, ((2*fn+1)*x*cur-fn*prev)/(fn+1)
	}
	return sum / (4 * math.Pi)
}

func cosAngle(a, b dommontage.Position) float64 {
	na := math.Sqrt(a.X*a.X + a.Y*a.Y + a.Z*a.Z)
	nb := math.Sqrt(b.X*b.X + b.Y*b.Y + b.Z*b.Z)
	if na == 0 || nb == 0 {
		return 1
	}
	c := (a.X*b.X + a.Y*b.Y + a.Z*b.Z) / (na * nb)
	return math.Max(-1, math.Min(1, c))
}

// pinv is the Moore-Penrose pseudo-inverse through a thin SVD.
func pinv(a *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, errors.New("spherical spline: SVD did not converge")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	vals := svd.Values(nil)
	tol := 1e-12 * vals[0]
	rows, _ := v.Dims()
	for j, sv := range vals {
		scale := 0.0
		if sv > tol {
			scale = 1 / sv
		}
		for i := 0; i < rows; i++ {
			v.Set(i, j, v.At(i, j)*scale)
		}
	}
	var out mat.Dense
	out.Mul(&v, u.T())
	return &out, nil
}

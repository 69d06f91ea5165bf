package decomposition

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"eegprep/adapters/artifacts"
	"eegprep/adapters/spectral"
	"eegprep/domain/core"
	domdec "eegprep/domain/decomposition"
	"eegprep/domain/recording"
)

// pass bands applied to both reference and sources before correlating
var referenceBands = map[domdec.ReferenceKind][2]float64{
	domdec.ReferenceEOG: {1, 10},
	domdec.ReferenceECG: {8, 16},
}

// FindBadsByReference correlates every component's source with a
// reference channel and flags outliers by iterative z-scoring of |r|.
// Without an ECG channel a synthetic one is built from the data channels.
func (p *PCADecomposer) FindBadsByReference(ctx context.Context, d *domdec.Decomposition, rec *recording.Recording, kind domdec.ReferenceKind) (*domdec.ReferenceScores, error) {
	band, ok := referenceBands[kind]
	if !ok {
		return nil, core.NewParameterError("reference kind", kind, "must be eog or ecg")
	}
	name, ref, err := artifacts.ReferenceSignal(rec, kind)
	if err != nil {
		return nil, err
	}
	src, err := p.Sources(ctx, d, rec)
	if err != nil {
		return nil, err
	}

	ref = spectral.BandPassRow(ref, rec.SFreq, band[0], band[1])
	scores := make([]float64, len(src))
	for k, s := range src {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s = spectral.BandPassRow(s, rec.SFreq, band[0], band[1])
		r := stat.Correlation(s, ref, nil)
		if math.IsNaN(r) {
			r = 0
		}
		scores[k] = r
	}

	threshold := p.cfg.EOGThreshold
	if kind == domdec.ReferenceECG {
		threshold = p.cfg.ECGThreshold
	}
	return &domdec.ReferenceScores{
		Kind:      kind,
		Channel:   name,
		Threshold: threshold,
		Scores:    scores,
		Indices:   findOutliers(scores, threshold, p.cfg.MaxIter),
	}, nil
}

// findOutliers flags indices whose |score| z-value exceeds threshold,
// repeating on the remaining scores up to maxIter times. The result is
// ordered by |score| descending.
func findOutliers(scores []float64, threshold float64, maxIter int) []int {
	flagged := make(map[int]bool)
	for iter := 0; iter < maxIter; iter++ {
		var vals []float64
		var idx []int
		for i, s := range scores {
			if !flagged[i] {
				vals = append(vals, math.Abs(s))
				idx = append(idx, i)
			}
		}
		if len(vals) < 2 {
			break
		}
		mean, sd := stat.MeanStdDev(vals, nil)
		if sd == 0 {
			break
		}
		found := false
		for j, v := range vals {
			if (v-mean)/sd > threshold {
				flagged[idx[j]] = true
				found = true
			}
		}
		if !found {
			break
		}
	}
	out := make([]int, 0, len(flagged))
	for i := range flagged {
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool {
		sa, sb := math.Abs(scores[out[a]]), math.Abs(scores[out[b]])
		if sa != sb {
			return sa > sb
		}
		return out[a] < out[b]
	})
	return out
}

// Package decomposition is a whitened principal-component decomposer.
// It spans the same fit/score/apply contract as ICA so an ICA binding can
// replace it behind ports.DecomposerPort.
package decomposition

import (
	"context"
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"eegprep/domain/core"
	domdec "eegprep/domain/decomposition"
	"eegprep/domain/epochs"
	"eegprep/domain/recording"
	"eegprep/ports"
)

// Config tunes the decomposer.
type Config struct {
	MaxFitSamples int     `yaml:"max_fit_samples"` // larger inputs are subsampled with the fit seed
	EOGThreshold  float64 `yaml:"eog_threshold"`   // z-score on |correlation|
	ECGThreshold  float64 `yaml:"ecg_threshold"`
	MaxIter       int     `yaml:"max_iter"` // outlier rounds when scoring
}

// DefaultConfig returns the usual thresholds.
func DefaultConfig() Config {
	return Config{
		MaxFitSamples: 200000,
		EOGThreshold:  3.0,
		ECGThreshold:  3.0,
		MaxIter:       2,
	}
}

// PCADecomposer implements ports.DecomposerPort.
type PCADecomposer struct {
	cfg Config
	rng ports.RNGPort
}

var _ ports.DecomposerPort = (*PCADecomposer)(nil)

// NewPCADecomposer creates a decomposer.
func NewPCADecomposer(cfg Config, rng ports.RNGPort) *PCADecomposer {
	def := DefaultConfig()
	if cfg.MaxFitSamples <= 0 {
		cfg.MaxFitSamples = def.MaxFitSamples
	}
	if cfg.EOGThreshold <= 0 {
		cfg.EOGThreshold = def.EOGThreshold
	}
	if cfg.ECGThreshold <= 0 {
		cfg.ECGThreshold = def.ECGThreshold
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = def.MaxIter
	}
	return &PCADecomposer{cfg: cfg, rng: rng}
}

// Fit decomposes the good data channels of an epoch collection or a recording.
func (p *PCADecomposer) Fit(ctx context.Context, in ports.FitInput) (*domdec.Decomposition, error) {
	var (
		channels []recording.Channel
		bads     []string
		rows     [][]float64 // observation x channel, built lazily below
		nEpochs  int
	)
	switch {
	case in.Epochs != nil && in.Recording != nil:
		return nil, core.NewValidationError("fit_input", "set exactly one of epochs or recording")
	case in.Epochs != nil:
		if in.Epochs.Len() == 0 {
			return nil, core.NewEmptyInputError("decomposition fit needs at least one epoch")
		}
		channels, bads, nEpochs = in.Epochs.Channels, in.Epochs.Bads, in.Epochs.Len()
	case in.Recording != nil:
		if in.Recording.NTimes() == 0 {
			return nil, core.NewEmptyInputError("decomposition fit needs samples")
		}
		channels, bads = in.Recording.Channels, in.Recording.Bads
	default:
		return nil, core.NewValidationError("fit_input", "set exactly one of epochs or recording")
	}

	picks := dataPicks(channels, bads)
	if len(picks) == 0 {
		return nil, core.NewChannelError("", "no good data channels to decompose")
	}

	if in.Epochs != nil {
		for _, ep := range in.Epochs.Epochs {
			rows = appendObservations(rows, ep.Data, picks)
		}
	} else {
		rows = appendObservations(rows, in.Recording.Data, picks)
	}

	rng, err := p.rng.SeededStream(ctx, "decomposition_fit", in.Seed)
	if err != nil {
		return nil, err
	}
	if len(rows) > p.cfg.MaxFitSamples {
		perm := rng.Perm(len(rows))[:p.cfg.MaxFitSamples]
		sub := make([][]float64, len(perm))
		for i, j := range perm {
			sub[i] = rows[j]
		}
		rows = sub
	}
	if len(rows) < 2 {
		return nil, core.NewEmptyInputError("decomposition fit needs at least two samples")
	}

	nComp := in.NComponents
	maxComp := len(picks)
	if len(rows) < maxComp {
		maxComp = len(rows)
	}
	if nComp > maxComp {
		return nil, core.NewParameterError("n_components", nComp, fmt.Sprintf("at most %d available", maxComp))
	}
	if nComp <= 0 {
		nComp = maxComp
	}

	x := mat.NewDense(len(rows), len(picks), nil)
	for i, r := range rows {
		x.SetRow(i, r)
	}
	means := make([]float64, len(picks))
	for j := range picks {
		means[j] = stat.Mean(mat.Col(nil, j, x), nil)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); !ok {
		return nil, fmt.Errorf("%w: principal component decomposition did not converge", core.ErrInvalidParameter)
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)

	var total float64
	for _, v := range vars {
		total += v
	}

	names := make([]string, len(picks))
	for j, ch := range picks {
		names[j] = channels[ch].Name
	}
	layout := make([]string, len(channels))
	for i, ch := range channels {
		layout[i] = ch.Name
	}

	d := &domdec.Decomposition{
		NComponents:       nComp,
		Method:            "pca-whitened",
		Channels:          names,
		Layout:            layout,
		Mean:              means,
		Mixing:            make([][]float64, len(picks)),
		Unmixing:          make([][]float64, nComp),
		ExplainedVariance: make([]float64, nComp),
		Seed:              in.Seed,
		FitSamples:        len(rows),
		FitEpochs:         nEpochs,
	}
	for j := range d.Mixing {
		d.Mixing[j] = make([]float64, nComp)
	}
	for k := 0; k < nComp; k++ {
		v := mat.Col(nil, k, &vecs)
		orientSign(v)
		sd := math.Sqrt(vars[k])
		d.Unmixing[k] = make([]float64, len(picks))
		for j := range picks {
			if sd > 0 {
				d.Unmixing[k][j] = v[j] / sd
			}
			d.Mixing[j][k] = v[j] * sd
		}
		if total > 0 {
			d.ExplainedVariance[k] = vars[k] / total
		}
	}

	log.Printf("[Decomposer] fit %d components on %d channels x %d samples", nComp, len(picks), len(rows))
	return d, nil
}

// orientSign flips v so its largest-magnitude loading is positive.
func orientSign(v []float64) {
	best := 0
	for i := range v {
		if math.Abs(v[i]) > math.Abs(v[best]) {
			best = i
		}
	}
	if v[best] < 0 {
		for i := range v {
			v[i] = -v[i]
		}
	}
}

// Sources projects the recording's picked channels onto the components.
func (p *PCADecomposer) Sources(ctx context.Context, d *domdec.Decomposition, rec *recording.Recording) ([][]float64, error) {
	if err := d.Compatible(rec.ChannelNames()); err != nil {
		return nil, err
	}
	idx, err := channelRows(d, rec.ChannelNames())
	if err != nil {
		return nil, err
	}
	return sources(d, rec.Data, idx), nil
}

func sources(d *domdec.Decomposition, data [][]float64, idx []int) [][]float64 {
	nt := 0
	if len(data) > 0 {
		nt = len(data[0])
	}
	out := make([][]float64, d.NComponents)
	for k := range out {
		out[k] = make([]float64, nt)
		w := d.Unmixing[k]
		for j, ch := range idx {
			if w[j] == 0 {
				continue
			}
			row := data[ch]
			for t := 0; t < nt; t++ {
				out[k][t] += w[j] * (row[t] - d.Mean[j])
			}
		}
	}
	return out
}

// ApplyToEpochs projects the excluded components out of every epoch.
// Channel count, epoch count and window are preserved.
func (p *PCADecomposer) ApplyToEpochs(ctx context.Context, d *domdec.Decomposition, exclude []int, c *epochs.Collection) (*epochs.Collection, error) {
	if err := d.ValidateExclude(exclude); err != nil {
		return nil, err
	}
	if err := d.Compatible(c.ChannelNames()); err != nil {
		return nil, err
	}
	idx, err := channelRows(d, c.ChannelNames())
	if err != nil {
		return nil, err
	}
	out := make([][][]float64, c.Len())
	for i, ep := range c.Epochs {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out[i] = project(d, exclude, ep.Data, idx)
	}
	return c.WithEpochData(out, recording.Step{Stage: "ica_apply", Detail: fmt.Sprintf("exclude=%v", exclude)})
}

// ApplyToRecording projects the excluded components out of a recording.
func (p *PCADecomposer) ApplyToRecording(ctx context.Context, d *domdec.Decomposition, exclude []int, rec *recording.Recording) (*recording.Recording, error) {
	if err := d.ValidateExclude(exclude); err != nil {
		return nil, err
	}
	if err := d.Compatible(rec.ChannelNames()); err != nil {
		return nil, err
	}
	idx, err := channelRows(d, rec.ChannelNames())
	if err != nil {
		return nil, err
	}
	return rec.WithData(project(d, exclude, rec.Data, idx), recording.Step{Stage: "ica_apply", Detail: fmt.Sprintf("exclude=%v", exclude)})
}

// project returns data minus the back-projection of the excluded sources.
func project(d *domdec.Decomposition, exclude []int, data [][]float64, idx []int) [][]float64 {
	out := recording.CloneMatrix(data)
	if len(exclude) == 0 {
		return out
	}
	src := sources(d, data, idx)
	for j, ch := range idx {
		row := out[ch]
		for _, k := range exclude {
			a := d.Mixing[j][k]
			if a == 0 {
				continue
			}
			s := src[k]
			for t := range row {
				row[t] -= a * s[t]
			}
		}
	}
	return out
}

func channelRows(d *domdec.Decomposition, names []string) ([]int, error) {
	pos := make(map[string]int, len(names))
	for i, n := range names {
		pos[n] = i
	}
	idx := make([]int, len(d.Channels))
	for j, n := range d.Channels {
		i, ok := pos[n]
		if !ok {
			return nil, core.NewChannelError(n, "decomposition channel missing from target")
		}
		idx[j] = i
	}
	return idx, nil
}

func appendObservations(rows [][]float64, data [][]float64, picks []int) [][]float64 {
	if len(data) == 0 {
		return rows
	}
	for t := range data[0] {
		obs := make([]float64, len(picks))
		for j, ch := range picks {
			obs[j] = data[ch][t]
		}
		rows = append(rows, obs)
	}
	return rows
}

func dataPicks(channels []recording.Channel, bads []string) []int {
	bad := make(map[string]bool, len(bads))
	for _, b := range bads {
		bad[b] = true
	}
	var picks []int
	for i, ch := range channels {
		if ch.Type.IsData() && !bad[ch.Name] {
			picks = append(picks, i)
		}
	}
	return picks
}

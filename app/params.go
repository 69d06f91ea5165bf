package app

import (
	"bytes"
	"encoding/json"
	"fmt"

	"eegprep/domain/core"
	"eegprep/domain/decomposition"
	"eegprep/internal/config"
)

// Exclusion deciders selectable from a parameter file.
const (
	DeciderFixed     = "fixed"
	DeciderReference = "reference"
)

// Params are the literal knobs of one pipeline run.
type Params struct {
	Highpass       float64                       `yaml:"highpass" json:"highpass"`             // Hz
	EpochDuration  float64                       `yaml:"epoch_duration" json:"epoch_duration"` // seconds
	TrainEpochs    int                           `yaml:"train_epochs" json:"train_epochs"`
	RejectSeed     int64                         `yaml:"reject_seed" json:"reject_seed"`
	ICASeed        int64                         `yaml:"ica_seed" json:"ica_seed"`
	NComponents    int                           `yaml:"n_components" json:"n_components"` // 0 keeps every component
	Exclude        []int                         `yaml:"exclude" json:"exclude"`
	Decider        string                        `yaml:"decider" json:"decider"`
	ReferenceKinds []decomposition.ReferenceKind `yaml:"reference_kinds" json:"reference_kinds"`
	SecondPass     bool                          `yaml:"second_pass" json:"second_pass"`
	Montage        string                        `yaml:"montage" json:"montage"`
}

// DefaultParams are the values of the autoreject analysis script.
func DefaultParams() Params {
	return Params{
		Highpass:       1,
		EpochDuration:  3,
		TrainEpochs:    20,
		RejectSeed:     11,
		ICASeed:        99,
		Exclude:        []int{0, 2},
		Decider:        DeciderFixed,
		ReferenceKinds: []decomposition.ReferenceKind{decomposition.ReferenceEOG, decomposition.ReferenceECG},
		SecondPass:     true,
	}
}

// LoadParams overlays a YAML parameter file on the defaults.
func LoadParams(path string) (Params, error) {
	p := DefaultParams()
	if err := config.LoadYAML(path, &p); err != nil {
		return Params{}, err
	}
	if err := p.Validate(); err != nil {
		return Params{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// DecodeParamsJSON overlays a JSON parameter object on the defaults. Like
// LoadParams it rejects unknown keys and invalid settings. Empty input
// gives the defaults.
func DecodeParamsJSON(raw []byte) (Params, error) {
	p := DefaultParams()
	if len(bytes.TrimSpace(raw)) == 0 {
		return p, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Params{}, fmt.Errorf("%w: params: %v", core.ErrInvalidParameter, err)
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Validate catches settings no stage can act on. Stage-specific limits
// such as a positive cutoff are checked by the stage itself so the failure
// names it.
func (p Params) Validate() error {
	switch p.Decider {
	case "", DeciderFixed, DeciderReference:
	default:
		return core.NewParameterError("decider", p.Decider, "must be fixed or reference")
	}
	for _, k := range p.ReferenceKinds {
		if k != decomposition.ReferenceEOG && k != decomposition.ReferenceECG {
			return core.NewParameterError("reference_kinds", k, "must be eog or ecg")
		}
	}
	if p.NComponents < 0 {
		return core.NewParameterError("n_components", p.NComponents, "must not be negative")
	}
	return nil
}

// ToMap flattens the parameters for hashing and the run manifest.
func (p Params) ToMap() map[string]interface{} {
	kinds := make([]string, len(p.ReferenceKinds))
	for i, k := range p.ReferenceKinds {
		kinds[i] = string(k)
	}
	exclude := append([]int{}, p.Exclude...)
	decider := p.Decider
	if decider == "" {
		decider = DeciderFixed
	}
	return map[string]interface{}{
		"highpass":        p.Highpass,
		"epoch_duration":  p.EpochDuration,
		"train_epochs":    p.TrainEpochs,
		"reject_seed":     p.RejectSeed,
		"ica_seed":        p.ICASeed,
		"n_components":    p.NComponents,
		"exclude":         exclude,
		"decider":         decider,
		"reference_kinds": kinds,
		"second_pass":     p.SecondPass,
		"montage":         p.Montage,
	}
}

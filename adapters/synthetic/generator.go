// Package synthetic generates seeded EEG-like recordings with known
// artifacts: slow drift, eye blinks, heartbeats, line noise and a stim
// channel. It backs the --simulate mode and the tests.
package synthetic

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"eegprep/domain/core"
	"eegprep/domain/recording"
)

// Names of the auxiliary channels, matching the Neuromag sample layout.
const (
	EOGChannel  = "EOG 061"
	ECGChannel  = "ECG 063"
	StimChannel = "STI 014"
)

// StandardEEG is a 16-channel subset of the 10-20 system, frontal first.
var StandardEEG = []string{
	"Fp1", "Fp2", "F7", "F3", "Fz", "F4", "F8", "C3",
	"Cz", "C4", "T7", "T8", "P3", "Pz", "P4", "Oz",
}

// GeneratorConfig configures the recording generator. Amplitudes are in volts.
type GeneratorConfig struct {
	SFreq          float64   `json:"sfreq" yaml:"sfreq"`
	Duration       float64   `json:"duration" yaml:"duration"` // seconds
	EEGChannels    []string  `json:"eeg_channels" yaml:"eeg_channels"`
	IncludeEOG     bool      `json:"include_eog" yaml:"include_eog"`
	IncludeECG     bool      `json:"include_ecg" yaml:"include_ecg"`
	IncludeStim    bool      `json:"include_stim" yaml:"include_stim"`
	NoiseAmplitude float64   `json:"noise_amplitude" yaml:"noise_amplitude"`
	DriftAmplitude float64   `json:"drift_amplitude" yaml:"drift_amplitude"`
	DriftFreq      float64   `json:"drift_freq" yaml:"drift_freq"`
	AlphaAmplitude float64   `json:"alpha_amplitude" yaml:"alpha_amplitude"`
	BlinkAmplitude float64   `json:"blink_amplitude" yaml:"blink_amplitude"`
	BlinkInterval  float64   `json:"blink_interval" yaml:"blink_interval"` // mean seconds between blinks
	HeartRate      float64   `json:"heart_rate" yaml:"heart_rate"`         // beats per minute
	HeartAmplitude float64   `json:"heart_amplitude" yaml:"heart_amplitude"`
	LineFreq       float64   `json:"line_freq" yaml:"line_freq"`
	LineAmplitude  float64   `json:"line_amplitude" yaml:"line_amplitude"`
	EventCodes     []int     `json:"event_codes" yaml:"event_codes"`
	EventInterval  float64   `json:"event_interval" yaml:"event_interval"` // seconds between stim events
	MeasDate       time.Time `json:"meas_date" yaml:"meas_date"`
	Seed           int64     `json:"seed" yaml:"seed"`
}

// DefaultGeneratorConfig returns a three-minute 100 Hz recording with every
// artifact switched on.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		SFreq:          100,
		Duration:       180,
		EEGChannels:    StandardEEG,
		IncludeEOG:     true,
		IncludeECG:     true,
		IncludeStim:    true,
		NoiseAmplitude: 5e-6,
		DriftAmplitude: 40e-6,
		DriftFreq:      0.05,
		AlphaAmplitude: 8e-6,
		BlinkAmplitude: 150e-6,
		BlinkInterval:  4,
		HeartRate:      66,
		HeartAmplitude: 1e-3,
		LineFreq:       50,
		LineAmplitude:  4e-6,
		EventCodes:     []int{1, 2, 3, 4},
		EventInterval:  1.5,
		MeasDate:       time.Date(2021, 3, 17, 9, 0, 0, 0, time.UTC),
		Seed:           42,
	}
}

// Generator builds recordings from a config.
type Generator struct {
	config GeneratorConfig
	rng    *rand.Rand
}

// NewGenerator creates a generator seeded from the config.
func NewGenerator(config GeneratorConfig) *Generator {
	return &Generator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Truth records where artifacts were injected.
type Truth struct {
	BlinkSamples []int
	BeatSamples  []int
	EventSamples []int
}

// Generate produces the recording and the injected ground truth.
func (g *Generator) Generate() (*recording.Recording, *Truth, error) {
	cfg := g.config
	if cfg.SFreq <= 0 {
		return nil, nil, core.NewParameterError("sfreq", cfg.SFreq, "must be positive")
	}
	if cfg.Duration <= 0 {
		return nil, nil, core.NewParameterError("duration", cfg.Duration, "must be positive")
	}
	if len(cfg.EEGChannels) == 0 {
		return nil, nil, core.NewParameterError("eeg_channels", 0, "at least one EEG channel required")
	}
	n := int(math.Round(cfg.SFreq * cfg.Duration))
	truth := &Truth{}

	blink := make([]float64, n)
	if cfg.BlinkAmplitude > 0 && cfg.BlinkInterval > 0 {
		t := cfg.BlinkInterval * (0.5 + g.rng.Float64())
		for t < cfg.Duration-0.5 {
			center := int(t * cfg.SFreq)
			truth.BlinkSamples = append(truth.BlinkSamples, center)
			addPulse(blink, center, 0.05*cfg.SFreq, cfg.BlinkAmplitude)
			t += cfg.BlinkInterval * (0.5 + g.rng.Float64())
		}
	}

	heart := make([]float64, n)
	if cfg.HeartRate > 0 && cfg.HeartAmplitude > 0 {
		period := 60 / cfg.HeartRate
		t := period * g.rng.Float64()
		for t < cfg.Duration-0.1 {
			center := int(t * cfg.SFreq)
			truth.BeatSamples = append(truth.BeatSamples, center)
			addPulse(heart, center, 0.012*cfg.SFreq, cfg.HeartAmplitude)
			t += period * (0.95 + 0.1*g.rng.Float64())
		}
	}

	var channels []recording.Channel
	var data [][]float64
	for i, name := range cfg.EEGChannels {
		row := make([]float64, n)
		weight := frontalWeight(name)
		phase := 2 * math.Pi * g.rng.Float64()
		alphaPhase := 2 * math.Pi * g.rng.Float64()
		for j := range row {
			ts := float64(j) / cfg.SFreq
			row[j] = cfg.NoiseAmplitude*g.rng.NormFloat64() +
				cfg.DriftAmplitude*math.Sin(2*math.Pi*cfg.DriftFreq*ts+phase) +
				cfg.AlphaAmplitude*math.Sin(2*math.Pi*10*ts+alphaPhase)*posteriorWeight(name) +
				cfg.LineAmplitude*math.Sin(2*math.Pi*cfg.LineFreq*ts) +
				weight*blink[j] +
				0.01*heart[j]*(1+0.1*float64(i%3))
		}
		channels = append(channels, recording.Channel{Name: name, Type: recording.TypeEEG})
		data = append(data, row)
	}

	if cfg.IncludeEOG {
		row := make([]float64, n)
		for j := range row {
			row[j] = 1.5*blink[j] + 0.5*cfg.NoiseAmplitude*g.rng.NormFloat64()
		}
		channels = append(channels, recording.Channel{Name: EOGChannel, Type: recording.TypeEOG})
		data = append(data, row)
	}
	if cfg.IncludeECG {
		row := make([]float64, n)
		for j := range row {
			row[j] = heart[j] + 0.02*cfg.HeartAmplitude*g.rng.NormFloat64()
		}
		channels = append(channels, recording.Channel{Name: ECGChannel, Type: recording.TypeECG})
		data = append(data, row)
	}
	if cfg.IncludeStim && len(cfg.EventCodes) > 0 && cfg.EventInterval > 0 {
		row := make([]float64, n)
		width := int(math.Max(1, math.Round(0.01*cfg.SFreq)))
		k := 0
		for t := cfg.EventInterval; t < cfg.Duration-cfg.EventInterval/2; t += cfg.EventInterval {
			start := int(math.Round(t * cfg.SFreq))
			truth.EventSamples = append(truth.EventSamples, start)
			code := float64(cfg.EventCodes[k%len(cfg.EventCodes)])
			for j := start; j < start+width && j < n; j++ {
				row[j] = code
			}
			k++
		}
		channels = append(channels, recording.Channel{Name: StimChannel, Type: recording.TypeStim})
		data = append(data, row)
	}

	rec, err := recording.New(core.RecordingID(fmt.Sprintf("synthetic-%d", cfg.Seed)), cfg.SFreq, channels, data)
	if err != nil {
		return nil, nil, err
	}
	rec.MeasDate = cfg.MeasDate
	rec.Description = fmt.Sprintf("synthetic recording, %d EEG channels, seed %d", len(cfg.EEGChannels), cfg.Seed)
	rec.Provenance = []recording.Step{{Stage: "simulate", Detail: fmt.Sprintf("seed=%d", cfg.Seed)}}
	return rec, truth, nil
}

func addPulse(row []float64, center int, width, amp float64) {
	span := int(4 * width)
	for j := center - span; j <= center+span; j++ {
		if j < 0 || j >= len(row) {
			continue
		}
		d := float64(j-center) / width
		row[j] += amp * math.Exp(-0.5*d*d)
	}
}

// frontalWeight is how strongly blinks project onto a channel.
func frontalWeight(name string) float64 {
	n := strings.ToUpper(name)
	switch {
	case strings.HasPrefix(n, "FP"):
		return 1.0
	case strings.HasPrefix(n, "AF"):
		return 0.7
	case strings.HasPrefix(n, "F"):
		return 0.4
	case strings.HasPrefix(n, "C") || strings.HasPrefix(n, "T"):
		return 0.1
	}
	return 0.03
}

func posteriorWeight(name string) float64 {
	n := strings.ToUpper(name)
	if strings.HasPrefix(n, "O") || strings.HasPrefix(n, "P") {
		return 1.0
	}
	return 0.3
}

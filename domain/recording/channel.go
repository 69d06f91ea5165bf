package recording

import "strings"

// ChannelType is the semantic role of a channel.
type ChannelType string

const (
	TypeEEG  ChannelType = "eeg"
	TypeEOG  ChannelType = "eog"
	TypeECG  ChannelType = "ecg"
	TypeStim ChannelType = "stim"
	TypeMag  ChannelType = "mag"
	TypeGrad ChannelType = "grad"
	TypeMisc ChannelType = "misc"
)

// ParseChannelType accepts the usual spellings, case-insensitively.
func ParseChannelType(s string) (ChannelType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "eeg":
		return TypeEEG, true
	case "eog", "heog", "veog":
		return TypeEOG, true
	case "ecg", "ekg":
		return TypeECG, true
	case "stim", "trigger", "status":
		return TypeStim, true
	case "mag":
		return TypeMag, true
	case "grad":
		return TypeGrad, true
	case "misc":
		return TypeMisc, true
	}
	return "", false
}

// IsData reports whether the type carries brain signal, as opposed to
// reference or trigger channels.
func (t ChannelType) IsData() bool {
	return t == TypeEEG || t == TypeMag || t == TypeGrad
}

// Channel is one row of a recording.
type Channel struct {
	Name string      `json:"name"`
	Type ChannelType `json:"type"`
}

// Step records which stage produced a snapshot.
type Step struct {
	Stage  string `json:"stage"`
	Detail string `json:"detail,omitempty"`
}

// CloneMatrix deep-copies a channel x sample matrix.
func CloneMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

func cloneSteps(steps []Step, extra ...Step) []Step {
	out := make([]Step, 0, len(steps)+len(extra))
	out = append(out, steps...)
	return append(out, extra...)
}

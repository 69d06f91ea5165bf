package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eegprep/domain/core"
	"eegprep/domain/decomposition"
)

func TestLoadParams_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	body := "highpass: 0.5\ntrain_epochs: 30\nexclude: [1]\nreference_kinds: [eog]\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	p, err := LoadParams(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, p.Highpass)
	assert.Equal(t, 30, p.TrainEpochs)
	assert.Equal(t, []int{1}, p.Exclude)
	assert.Equal(t, []decomposition.ReferenceKind{decomposition.ReferenceEOG}, p.ReferenceKinds)
	// untouched keys keep their defaults
	assert.Equal(t, 3.0, p.EpochDuration)
	assert.Equal(t, int64(11), p.RejectSeed)
	assert.True(t, p.SecondPass)
}

func TestLoadParams_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte("decider: vote\n"), 0o644))
	_, err := LoadParams(path)
	assert.Error(t, err)

	_, err = LoadParams(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParams_ToMapStable(t *testing.T) {
	a := DefaultParams().ToMap()
	b := DefaultParams().ToMap()
	assert.Equal(t, a, b)
	assert.Equal(t, []string{"eog", "ecg"}, a["reference_kinds"])
	assert.Equal(t, "fixed", a["decider"])
}

func TestLoadParams_ShippedConfigs(t *testing.T) {
	p, err := LoadParams(filepath.Join("..", "configs", "autoreject.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultParams(), p)

	ref, err := LoadParams(filepath.Join("..", "configs", "reference.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DeciderReference, ref.Decider)
	assert.False(t, ref.SecondPass)
	assert.Equal(t, "standard_1020", ref.Montage)
}

func TestDecodeParamsJSON(t *testing.T) {
	p, err := DecodeParamsJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultParams(), p)

	p, err = DecodeParamsJSON([]byte(`{"highpass": 0.5, "second_pass": false}`))
	require.NoError(t, err)
	assert.Equal(t, 0.5, p.Highpass)
	assert.False(t, p.SecondPass)
	assert.Equal(t, 20, p.TrainEpochs)

	cases := map[string]string{
		"unknown key":   `{"hipass": 1}`,
		"bad decider":   `{"decider": "vote"}`,
		"wrong type":    `{"train_epochs": "twenty"}`,
		"negative comp": `{"n_components": -1}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeParamsJSON([]byte(body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrInvalidParameter), err.Error())
		})
	}
}

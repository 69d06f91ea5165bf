package rejection

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eegprep/domain/core"
	"eegprep/domain/epochs"
	"eegprep/domain/recording"
)

func TestRejectLog_Counts(t *testing.T) {
	log := New(4, []string{"Cz", "Pz"})
	log.BadEpochs[1] = true
	log.BadEpochs[3] = true
	log.Labels[1][0] = Bad
	log.Labels[1][1] = Bad
	log.Labels[2][1] = Interpolated

	assert.Equal(t, 2, log.BadCount())
	assert.Equal(t, []int{1, 3}, log.BadIndices())
	assert.Equal(t, []bool{true, false, true, false}, log.GoodMask())

	s := log.Summarize()
	assert.Equal(t, 2, s.BadCells)
	assert.Equal(t, 1, s.Interpolated)
	assert.Equal(t, map[string]int{"Cz": 1, "Pz": 2}, s.PerChannel)
}

func TestRejectLog_ValidateShape(t *testing.T) {
	rec, err := recording.New("r", 10, []recording.Channel{{Name: "Cz", Type: recording.TypeEEG}}, [][]float64{make([]float64, 100)})
	require.NoError(t, err)
	c, err := epochs.FixedLength(rec, 2)
	require.NoError(t, err)

	assert.NoError(t, New(5, []string{"Cz"}).Validate(c))
	err = New(4, []string{"Cz"}).Validate(c)
	assert.True(t, errors.Is(err, core.ErrShapeMismatch))
}

func TestLabelString(t *testing.T) {
	assert.Equal(t, "interpolated", Interpolated.String())
	assert.Equal(t, "label(7)", Label(7).String())
}

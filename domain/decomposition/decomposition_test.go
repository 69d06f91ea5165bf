package decomposition

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eegprep/domain/core"
)

func TestValidateExclude(t *testing.T) {
	d := &Decomposition{NComponents: 4}
	assert.NoError(t, d.ValidateExclude([]int{0, 2}))
	assert.NoError(t, d.ValidateExclude(nil))
	assert.True(t, errors.Is(d.ValidateExclude([]int{4}), core.ErrInvalidParameter))
	assert.True(t, errors.Is(d.ValidateExclude([]int{-1}), core.ErrInvalidParameter))
	assert.True(t, errors.Is(d.ValidateExclude([]int{1, 1}), core.ErrInvalidParameter))

	withEx, err := d.WithExclude([]int{2, 0})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, withEx.Exclude)
	assert.Nil(t, d.Exclude)
}

func TestCompatible(t *testing.T) {
	d := &Decomposition{Channels: []string{"Fp1", "Fp2"}, Layout: []string{"Fp1", "Fp2", "Cz"}}
	assert.NoError(t, d.Compatible([]string{"Fp1", "Fp2", "Cz"}))
	assert.True(t, errors.Is(d.Compatible([]string{"Fp1", "Fp2"}), core.ErrShapeMismatch))
	assert.True(t, errors.Is(d.Compatible([]string{"Fp2", "Fp1", "Cz"}), core.ErrShapeMismatch))
}

func TestRanking(t *testing.T) {
	s := ReferenceScores{Scores: []float64{0.1, -0.9, 0.5, 0.9, 0.0}}
	assert.Equal(t, []int{1, 3, 2, 0, 4}, s.Ranking())
}

func TestUnionIndices(t *testing.T) {
	got := UnionIndices([]ReferenceScores{{Indices: []int{2, 0}}, {Indices: []int{0, 3}}})
	assert.Equal(t, []int{0, 2, 3}, got)
}

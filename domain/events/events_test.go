package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindEvents_StepsToNonZero(t *testing.T) {
	stim := []float64{0, 0, 1, 1, 0, 0, 3, 3, 5, 0}
	got := FindEvents(stim, 100)

	assert.Equal(t, Table{
		{Sample: 102, Prev: 0, Code: 1},
		{Sample: 106, Prev: 0, Code: 3},
		{Sample: 108, Prev: 3, Code: 5},
	}, got)
	assert.NoError(t, got.Validate())
}

func TestFindEvents_IgnoresStepsDown(t *testing.T) {
	stim := []float64{0, 3, 3, 2, 2, 0, 2, 4, 1, 0}
	got := FindEvents(stim, 0)

	assert.Equal(t, Table{
		{Sample: 1, Prev: 0, Code: 3},
		{Sample: 6, Prev: 0, Code: 2},
		{Sample: 7, Prev: 2, Code: 4},
	}, got)
}

func TestTable_ValidateRejectsDecreasingSamples(t *testing.T) {
	table := Table{{Sample: 10, Code: 1}, {Sample: 5, Code: 2}}
	assert.Error(t, table.Validate())
}

func TestTable_PickAndMerge(t *testing.T) {
	table := Table{{Sample: 1, Code: 1}, {Sample: 2, Code: 2}, {Sample: 3, Code: 3}, {Sample: 4, Code: 4}}

	assert.Equal(t, []int{2, 3}, table.Pick([]int{2, 3}, nil).Codes())
	assert.Equal(t, []int{1, 3, 4}, table.Pick(nil, []int{2}).Codes())

	merged := table.Merge([]int{1, 2}, 12)
	assert.Equal(t, []int{3, 4, 12}, merged.Codes())
	assert.Equal(t, 2, merged.Counts()[12])
	// input untouched
	assert.Equal(t, 1, table[0].Code)
}

func TestAnnotationsRoundTrip(t *testing.T) {
	sfreq := 250.0
	first := 500
	table := Table{{Sample: 750, Code: 1}, {Sample: 1000, Code: 2}, {Sample: 1250, Code: 1}}
	desc := map[int]string{1: "auditory/left", 2: "visual/left"}

	ann, err := ToAnnotations(table, sfreq, first, desc)
	require.NoError(t, err)
	assert.Equal(t, 1.0, ann[0].Onset)
	assert.Equal(t, "visual/left", ann[1].Description)

	back, dict, err := FromAnnotations(ann, sfreq, first, Dict{"auditory/left": 1, "visual/left": 2})
	require.NoError(t, err)
	assert.Equal(t, table, back)
	assert.Len(t, dict, 2)
}

func TestFromAnnotations_AutoCodes(t *testing.T) {
	ann := Annotations{
		{Onset: 2, Description: "b"},
		{Onset: 1, Description: "a"},
		{Onset: 3, Description: "b"},
	}
	table, dict, err := FromAnnotations(ann, 100, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, Dict{"a": 1, "b": 2}, dict)
	assert.Equal(t, Table{{Sample: 100, Code: 1}, {Sample: 200, Code: 2}, {Sample: 300, Code: 2}}, table)
}

func TestFromAnnotations_MappingFilters(t *testing.T) {
	ann := Annotations{{Onset: 1, Description: "keep"}, {Onset: 2, Description: "drop"}}
	table, dict, err := FromAnnotations(ann, 10, 0, Dict{"keep": 7})
	require.NoError(t, err)
	assert.Len(t, table, 1)
	assert.Equal(t, Dict{"keep": 7}, dict)
}

func TestToAnnotations_UnmappedCodeUsesDecimal(t *testing.T) {
	ann, err := ToAnnotations(Table{{Sample: 10, Code: 32}}, 10, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "32", ann[0].Description)
}

func TestDict_Match(t *testing.T) {
	d := Dict{"auditory/left": 1, "auditory/right": 2, "visual/left": 3, "visual/right": 4, "face": 5, "buttonpress": 32}

	assert.Equal(t, []string{"auditory/left", "auditory/right"}, d.Match("auditory"))
	assert.Equal(t, []string{"auditory/left", "visual/left"}, d.Match("left"))
	assert.Equal(t, []string{"visual/right"}, d.Match("right/visual"))
	assert.Equal(t, []int{5}, d.Codes("face"))
	assert.Empty(t, d.Match("smiley"))
	assert.Equal(t, "auditory/left", d.Invert()[1])
}

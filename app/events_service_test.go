package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eegprep/adapters/synthetic"
	"eegprep/domain/core"
	"eegprep/domain/epochs"
	"eegprep/domain/events"
	"eegprep/internal/testkit"
)

func TestEventsService_FindPickMerge(t *testing.T) {
	kit := testkit.NewTestKit()
	rec, truth, err := kit.Recording(30, 1)
	require.NoError(t, err)
	svc := NewEventsService(kit.RNGAdapter(), quietLogger)

	table, err := svc.FindEvents(rec, DefaultStimChannel)
	require.NoError(t, err)
	require.Len(t, table, len(truth.EventSamples))

	noFour := svc.Pick(table, nil, []int{4})
	assert.NotContains(t, noFour.Codes(), 4)

	merged := svc.Merge(table, []int{1, 2, 3}, 1)
	assert.Equal(t, []int{1, 4}, merged.Codes())
	assert.Len(t, merged, len(table))

	_, err = svc.FindEvents(rec, "STI 999")
	assert.True(t, errors.Is(err, core.ErrInvalidChannel))
}

func TestEventsService_AnnotationsRoundTrip(t *testing.T) {
	kit := testkit.NewTestKit()
	rec, _, err := kit.Recording(30, 1)
	require.NoError(t, err)
	svc := NewEventsService(kit.RNGAdapter(), quietLogger)

	table, err := svc.FindEvents(rec, synthetic.StimChannel)
	require.NoError(t, err)

	annotated, err := svc.Annotate(rec, table, SampleEventDict().Invert())
	require.NoError(t, err)
	assert.Empty(t, rec.Annotations)
	assert.Len(t, annotated.Annotations, len(table))

	back, dict, err := svc.FromAnnotations(annotated, SampleEventDict())
	require.NoError(t, err)
	require.Len(t, back, len(table))
	for i := range table {
		assert.Equal(t, table[i].Sample, back[i].Sample)
		assert.Equal(t, table[i].Code, back[i].Code)
	}
	assert.Equal(t, 1, dict["auditory/left"])

	_, _, err = svc.FromAnnotations(rec, nil)
	assert.True(t, errors.Is(err, core.ErrEmptyInput))
}

func TestEventsService_EpochAndEqualize(t *testing.T) {
	kit := testkit.NewTestKit()
	rec, err := kit.QuietRecording(60, 2)
	require.NoError(t, err)
	svc := NewEventsService(kit.RNGAdapter(), quietLogger)

	table, err := svc.FindEvents(rec, DefaultStimChannel)
	require.NoError(t, err)
	table = table[:len(table)-1] // leave the conditions unbalanced

	req := DefaultEpochRequest(table)
	req.Reject = nil
	req.Seed = 7
	c, err := svc.Epoch(context.Background(), rec, req)
	require.NoError(t, err)

	counts := c.CountByLabel()
	assert.Equal(t, counts["auditory/left"], counts["visual/right"])
	assert.Equal(t, 71, c.NTimes())

	again, err := svc.Epoch(context.Background(), rec, req)
	require.NoError(t, err)
	assert.Equal(t, c.Labels(), again.Labels())
	sample := func(cc *epochs.Collection) []int {
		out := make([]int, cc.Len())
		for i, e := range cc.Epochs {
			out[i] = e.Sample
		}
		return out
	}
	assert.Equal(t, sample(c), sample(again))
}

func TestEventsService_EpochNoEvents(t *testing.T) {
	kit := testkit.NewTestKit()
	rec, err := kit.QuietRecording(10, 2)
	require.NoError(t, err)
	svc := NewEventsService(kit.RNGAdapter(), quietLogger)

	_, err = svc.Epoch(context.Background(), rec, DefaultEpochRequest(events.Table{}))
	assert.True(t, errors.Is(err, core.ErrEmptyInput))
}

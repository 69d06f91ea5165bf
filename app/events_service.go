package app

import (
	"context"

	"eegprep/domain/core"
	"eegprep/domain/epochs"
	"eegprep/domain/events"
	"eegprep/domain/recording"
	"eegprep/internal"
	"eegprep/ports"
)

// DefaultStimChannel is the trigger channel of the Neuromag sample layout.
const DefaultStimChannel = "STI 014"

// SampleEventDict labels the codes of the auditory/visual sample paradigm.
func SampleEventDict() events.Dict {
	return events.Dict{
		"auditory/left":  1,
		"auditory/right": 2,
		"visual/left":    3,
		"visual/right":   4,
		"smiley":         5,
		"buttonpress":    32,
	}
}

// SampleRejectCriteria are peak-to-peak limits per channel type.
func SampleRejectCriteria() map[recording.ChannelType]float64 {
	return map[recording.ChannelType]float64{
		recording.TypeMag:  4000e-15, // 4000 fT
		recording.TypeGrad: 4000e-13, // 4000 fT/cm
		recording.TypeEEG:  150e-6,   // 150 µV
		recording.TypeEOG:  250e-6,   // 250 µV
	}
}

// EpochRequest describes event-locked epoching. Equalize, when set, lists
// the conditions whose counts are balanced afterwards.
type EpochRequest struct {
	Table    events.Table
	Dict     events.Dict
	Window   epochs.Window
	Baseline *epochs.Baseline
	Reject   map[recording.ChannelType]float64
	Flat     map[recording.ChannelType]float64
	Equalize []string
	Seed     int64
}

// DefaultEpochRequest is the sample-paradigm epoching: -0.2 to 0.5 s,
// amplitude rejection, and auditory/visual left/right equalized.
func DefaultEpochRequest(table events.Table) EpochRequest {
	return EpochRequest{
		Table:    table,
		Dict:     SampleEventDict(),
		Window:   epochs.Window{TMin: -0.2, TMax: 0.5},
		Baseline: &epochs.Baseline{From: -0.2, To: 0},
		Reject:   SampleRejectCriteria(),
		Equalize: []string{"auditory/left", "auditory/right", "visual/left", "visual/right"},
	}
}

// EventsService handles event tables, annotations and event-locked epochs.
type EventsService struct {
	rngPort ports.RNGPort
	logger  *internal.Logger
}

// NewEventsService creates an events service
func NewEventsService(rngPort ports.RNGPort, logger *internal.Logger) *EventsService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &EventsService{rngPort: rngPort, logger: logger.WithComponent("Events")}
}

// FindEvents reads events off stim, or the first stim channel when stim is empty.
func (s *EventsService) FindEvents(rec *recording.Recording, stim string) (events.Table, error) {
	t, err := rec.FindEvents(stim)
	if err != nil {
		return nil, err
	}
	s.logger.Info("found %d events (%d distinct codes)", len(t), len(t.Codes()))
	return t, nil
}

// Pick keeps include codes (all when empty) and drops exclude codes.
func (s *EventsService) Pick(t events.Table, include, exclude []int) events.Table {
	return t.Pick(include, exclude)
}

// Merge recodes every event in codes to newCode.
func (s *EventsService) Merge(t events.Table, codes []int, newCode int) events.Table {
	return t.Merge(codes, newCode)
}

// Annotate converts t to annotations using desc and returns a copy of rec
// carrying them.
func (s *EventsService) Annotate(rec *recording.Recording, t events.Table, desc map[int]string) (*recording.Recording, error) {
	ann, err := events.ToAnnotations(t, rec.SFreq, rec.FirstSamp, desc)
	if err != nil {
		return nil, err
	}
	return rec.WithAnnotations(ann), nil
}

// FromAnnotations converts the recording's annotations to events. A nil
// mapping numbers the descriptions 1..K in sorted order.
func (s *EventsService) FromAnnotations(rec *recording.Recording, mapping events.Dict) (events.Table, events.Dict, error) {
	if len(rec.Annotations) == 0 {
		return nil, nil, core.NewEmptyInputError("recording has no annotations")
	}
	return events.FromAnnotations(rec.Annotations, rec.SFreq, rec.FirstSamp, mapping)
}

// Epoch cuts event-locked epochs, drops those over the amplitude limits and
// equalizes condition counts with a seeded draw.
func (s *EventsService) Epoch(ctx context.Context, rec *recording.Recording, req EpochRequest) (*epochs.Collection, error) {
	if len(req.Table) == 0 {
		return nil, core.NewEmptyInputError("no events to epoch around")
	}
	dict := req.Dict
	if dict != nil {
		dict = dict.Restrict(req.Table)
	}
	c, err := epochs.FromEvents(rec, req.Table, dict, req.Window, epochs.Options{
		Baseline: req.Baseline,
		Reject:   req.Reject,
		Flat:     req.Flat,
	})
	if err != nil {
		return nil, err
	}
	if len(c.DropLog) > 0 {
		s.logger.Info("dropped %d of %d epochs", len(c.DropLog), len(c.DropLog)+c.Len())
	}
	if len(req.Equalize) == 0 {
		return c, nil
	}
	rng, err := s.rngPort.SeededStream(ctx, "equalize_event_counts", req.Seed)
	if err != nil {
		return nil, err
	}
	eq, err := c.EqualizeEventCounts(req.Equalize, rng)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("equalized %v: %v", req.Equalize, eq.CountByLabel())
	return eq, nil
}

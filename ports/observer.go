package ports

import "eegprep/domain/stage"

// StageObserverPort receives an event as each pipeline stage finishes.
// Implementations must not block.
type StageObserverPort interface {
	StageFinished(ev stage.StageEvent)
}

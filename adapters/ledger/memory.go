// Package ledger persists run summaries and run artifacts, either in
// memory or in a SQL database (sqlite or postgres).
package ledger

import (
	"context"
	"encoding/json"
	"sync"

	"eegprep/domain/core"
	"eegprep/domain/run"
	"eegprep/ports"
)

// MemoryLedger implements ports.LedgerPort with in-memory storage.
// Listing order is insertion order.
type MemoryLedger struct {
	artifacts    map[core.ArtifactID]core.Artifact
	order        []core.ArtifactID
	runArtifacts map[core.RunID][]core.ArtifactID
	artifactRun  map[core.ArtifactID]core.RunID
	runs         map[core.RunID]run.Summary
	runOrder     []core.RunID
	mu           sync.RWMutex
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		artifacts:    make(map[core.ArtifactID]core.Artifact),
		runArtifacts: make(map[core.RunID][]core.ArtifactID),
		artifactRun:  make(map[core.ArtifactID]core.RunID),
		runs:         make(map[core.RunID]run.Summary),
	}
}

func (s *MemoryLedger) StoreArtifact(ctx context.Context, runID core.RunID, artifact core.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if artifact.ID.String() == "" {
		return core.NewValidationError("artifact", "id cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.artifacts[artifact.ID]; !exists {
		s.order = append(s.order, artifact.ID)
		s.runArtifacts[runID] = append(s.runArtifacts[runID], artifact.ID)
	}
	s.artifacts[artifact.ID] = artifact
	s.artifactRun[artifact.ID] = runID
	return nil
}

func (s *MemoryLedger) SaveRun(ctx context.Context, summary run.Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if summary.RunID.String() == "" {
		return core.NewValidationError("run", "run_id cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[summary.RunID]; !exists {
		s.runOrder = append(s.runOrder, summary.RunID)
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = core.Now()
	}
	s.runs[summary.RunID] = summary
	return nil
}

func (s *MemoryLedger) ListArtifacts(ctx context.Context, filters ports.ArtifactFilters) ([]core.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.order
	if filters.RunID != nil {
		ids = s.runArtifacts[*filters.RunID]
	}
	var results []core.Artifact
	skipped := 0
	for _, id := range ids {
		artifact := s.artifacts[id]
		if filters.Kind != nil && artifact.Kind != *filters.Kind {
			continue
		}
		if skipped < filters.Offset {
			skipped++
			continue
		}
		results = append(results, artifact)
		if filters.Limit > 0 && len(results) >= filters.Limit {
			break
		}
	}
	return results, nil
}

func (s *MemoryLedger) GetArtifact(ctx context.Context, artifactID core.ArtifactID) (*core.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	artifact, exists := s.artifacts[artifactID]
	if !exists {
		return nil, core.NewNotFoundError("artifact", artifactID.String())
	}
	return &artifact, nil
}

func (s *MemoryLedger) GetArtifactsByRun(ctx context.Context, runID core.RunID) ([]core.Artifact, error) {
	return s.ListArtifacts(ctx, ports.ArtifactFilters{RunID: &runID})
}

func (s *MemoryLedger) GetRunManifest(ctx context.Context, runID core.RunID) (*run.RunManifestArtifact, error) {
	kind := core.ArtifactRun
	found, err := s.ListArtifacts(ctx, ports.ArtifactFilters{RunID: &runID, Kind: &kind, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, core.NewNotFoundError("run manifest", runID.String())
	}
	return decodeManifest(found[0].Payload)
}

func (s *MemoryLedger) GetRun(ctx context.Context, runID core.RunID) (*run.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.runs[runID]
	if !ok {
		return nil, core.NewNotFoundError("run", runID.String())
	}
	return &summary, nil
}

// ListRuns returns the most recently saved runs first.
func (s *MemoryLedger) ListRuns(ctx context.Context, limit int) ([]run.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []run.Summary
	for i := len(s.runOrder) - 1; i >= 0; i-- {
		out = append(out, s.runs[s.runOrder[i]])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// decodeManifest accepts the stored manifest pointer, a value, or its JSON.
func decodeManifest(payload interface{}) (*run.RunManifestArtifact, error) {
	switch m := payload.(type) {
	case *run.RunManifestArtifact:
		return m, nil
	case run.RunManifestArtifact:
		return &m, nil
	}
	raw, ok := payload.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(payload); err != nil {
			return nil, err
		}
	}
	var m run.RunManifestArtifact
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, core.NewValidationError("run manifest", err.Error())
	}
	return &m, nil
}

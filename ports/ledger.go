package ports

import (
	"context"

	"eegprep/domain/core"
	"eegprep/domain/run"
)

// LedgerWriterPort provides append-only write access to artifacts
// This is the ONLY way to write artifacts - prevents read-after-write coupling
type LedgerWriterPort interface {
	StoreArtifact(ctx context.Context, runID core.RunID, artifact core.Artifact) error
	SaveRun(ctx context.Context, summary run.Summary) error
}

// LedgerReaderPort provides read-only access to stored artifacts
// Use this for queries, replay, and UI/API access
type LedgerReaderPort interface {
	// Artifact queries (read-only)
	ListArtifacts(ctx context.Context, filters ArtifactFilters) ([]core.Artifact, error)
	GetArtifact(ctx context.Context, artifactID core.ArtifactID) (*core.Artifact, error)
	GetArtifactsByRun(ctx context.Context, runID core.RunID) ([]core.Artifact, error)

	// Run queries
	GetRunManifest(ctx context.Context, runID core.RunID) (*run.RunManifestArtifact, error)
	GetRun(ctx context.Context, runID core.RunID) (*run.Summary, error)
	ListRuns(ctx context.Context, limit int) ([]run.Summary, error)
}

// ArtifactFilters for querying artifacts
type ArtifactFilters struct {
	RunID  *core.RunID
	Kind   *core.ArtifactKind
	Limit  int
	Offset int
}

// LedgerPort combines read and write access
type LedgerPort interface {
	LedgerWriterPort
	LedgerReaderPort
}

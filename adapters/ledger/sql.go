package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"eegprep/domain/core"
	"eegprep/domain/run"
	"eegprep/ports"
)

// ParseDSN picks the driver from the DSN scheme. postgres:// and
// postgresql:// go to lib/pq; sqlite://path, sqlite3://path and bare
// paths go to go-sqlite3.
func ParseDSN(dsn string) (driver, source string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dsn
	case strings.HasPrefix(dsn, "sqlite3://"):
		return "sqlite3", strings.TrimPrefix(dsn, "sqlite3://")
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite3", strings.TrimPrefix(dsn, "sqlite://")
	}
	return "sqlite3", dsn
}

// Open connects to dsn and applies pending migrations.
func Open(ctx context.Context, dsn string) (*SQLLedger, error) {
	driver, source := ParseDSN(dsn)
	db, err := sqlx.ConnectContext(ctx, driver, source)
	if err != nil {
		return nil, fmt.Errorf("connect %s ledger: %w", driver, err)
	}
	if driver == "sqlite3" && (source == ":memory:" || strings.Contains(source, "mode=memory")) {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	if _, err := NewMigrator(db).Up(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Printf("[Ledger] Connected to %s ledger", driver)
	return NewSQLLedger(db), nil
}

// SQLLedger implements ports.LedgerPort over sqlx. Queries use ? bindvars
// and are rebound for the connected driver.
type SQLLedger struct {
	db *sqlx.DB
}

// NewSQLLedger wraps an already migrated database.
func NewSQLLedger(db *sqlx.DB) *SQLLedger {
	return &SQLLedger{db: db}
}

// DB exposes the handle for migrations and shutdown.
func (l *SQLLedger) DB() *sqlx.DB { return l.db }

// Close closes the database.
func (l *SQLLedger) Close() error { return l.db.Close() }

type artifactRow struct {
	ID        string `db:"artifact_id"`
	RunID     string `db:"run_id"`
	Kind      string `db:"kind"`
	Stage     string `db:"stage"`
	Payload   string `db:"payload"`
	CreatedAt string `db:"created_at"`
}

func (r artifactRow) toArtifact() core.Artifact {
	return core.Artifact{
		ID:        core.ArtifactID(r.ID),
		Kind:      core.ArtifactKind(r.Kind),
		Stage:     r.Stage,
		Payload:   json.RawMessage(r.Payload),
		CreatedAt: parseTimestamp(r.CreatedAt),
	}
}

type runRow struct {
	RunID       string `db:"run_id"`
	RecordingID string `db:"recording_id"`
	Fingerprint string `db:"fingerprint"`
	Status      string `db:"status"`
	NEpochs     int    `db:"n_epochs"`
	NBad        int    `db:"n_bad"`
	CreatedAt   string `db:"created_at"`
}

func (r runRow) toSummary() run.Summary {
	return run.Summary{
		RunID:       core.RunID(r.RunID),
		RecordingID: r.RecordingID,
		Fingerprint: r.Fingerprint,
		Status:      r.Status,
		NEpochs:     r.NEpochs,
		NBad:        r.NBad,
		CreatedAt:   parseTimestamp(r.CreatedAt),
	}
}

// storedTimeLayout has fixed-width fractions so stored values sort as text.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t core.Timestamp) string {
	if t.IsZero() {
		t = core.Now()
	}
	return t.Time().UTC().Format(storedTimeLayout)
}

func parseTimestamp(s string) core.Timestamp {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return core.Timestamp{}
	}
	return core.NewTimestamp(t)
}

func (l *SQLLedger) StoreArtifact(ctx context.Context, runID core.RunID, artifact core.Artifact) error {
	if artifact.ID.String() == "" {
		return core.NewValidationError("artifact", "id cannot be empty")
	}
	payload, err := json.Marshal(artifact.Payload)
	if err != nil {
		return fmt.Errorf("encode %s artifact: %w", artifact.Kind, err)
	}
	_, err = l.db.ExecContext(ctx, l.db.Rebind(`
		INSERT INTO artifacts (artifact_id, run_id, kind, stage, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), artifact.ID.String(), runID.String(), string(artifact.Kind), artifact.Stage, string(payload), formatTimestamp(artifact.CreatedAt))
	return err
}

func (l *SQLLedger) SaveRun(ctx context.Context, summary run.Summary) error {
	if summary.RunID.String() == "" {
		return core.NewValidationError("run", "run_id cannot be empty")
	}
	_, err := l.db.ExecContext(ctx, l.db.Rebind(`
		INSERT INTO runs (run_id, recording_id, fingerprint, status, n_epochs, n_bad, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			status = excluded.status,
			n_epochs = excluded.n_epochs,
			n_bad = excluded.n_bad
	`), summary.RunID.String(), summary.RecordingID, summary.Fingerprint, summary.Status,
		summary.NEpochs, summary.NBad, formatTimestamp(summary.CreatedAt))
	return err
}

func (l *SQLLedger) ListArtifacts(ctx context.Context, filters ports.ArtifactFilters) ([]core.Artifact, error) {
	query := `SELECT artifact_id, run_id, kind, stage, payload, created_at FROM artifacts WHERE 1=1`
	var args []interface{}
	if filters.RunID != nil {
		query += " AND run_id = ?"
		args = append(args, filters.RunID.String())
	}
	if filters.Kind != nil {
		query += " AND kind = ?"
		args = append(args, string(*filters.Kind))
	}
	query += " ORDER BY created_at, artifact_id"
	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
		if filters.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filters.Offset)
		}
	} else if filters.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		if l.db.DriverName() == "postgres" {
			query = strings.Replace(query, "LIMIT -1 ", "", 1)
		}
		args = append(args, filters.Offset)
	}

	var rows []artifactRow
	if err := l.db.SelectContext(ctx, &rows, l.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	out := make([]core.Artifact, len(rows))
	for i, r := range rows {
		out[i] = r.toArtifact()
	}
	return out, nil
}

func (l *SQLLedger) GetArtifact(ctx context.Context, artifactID core.ArtifactID) (*core.Artifact, error) {
	var r artifactRow
	err := l.db.GetContext(ctx, &r, l.db.Rebind(`
		SELECT artifact_id, run_id, kind, stage, payload, created_at
		FROM artifacts WHERE artifact_id = ?
	`), artifactID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NewNotFoundError("artifact", artifactID.String())
	}
	if err != nil {
		return nil, err
	}
	a := r.toArtifact()
	return &a, nil
}

func (l *SQLLedger) GetArtifactsByRun(ctx context.Context, runID core.RunID) ([]core.Artifact, error) {
	return l.ListArtifacts(ctx, ports.ArtifactFilters{RunID: &runID})
}

func (l *SQLLedger) GetRunManifest(ctx context.Context, runID core.RunID) (*run.RunManifestArtifact, error) {
	kind := core.ArtifactRun
	found, err := l.ListArtifacts(ctx, ports.ArtifactFilters{RunID: &runID, Kind: &kind, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, core.NewNotFoundError("run manifest", runID.String())
	}
	return decodeManifest(found[0].Payload)
}

func (l *SQLLedger) GetRun(ctx context.Context, runID core.RunID) (*run.Summary, error) {
	var r runRow
	err := l.db.GetContext(ctx, &r, l.db.Rebind(`
		SELECT run_id, recording_id, fingerprint, status, n_epochs, n_bad, created_at
		FROM runs WHERE run_id = ?
	`), runID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NewNotFoundError("run", runID.String())
	}
	if err != nil {
		return nil, err
	}
	s := r.toSummary()
	return &s, nil
}

func (l *SQLLedger) ListRuns(ctx context.Context, limit int) ([]run.Summary, error) {
	query := `SELECT run_id, recording_id, fingerprint, status, n_epochs, n_bad, created_at
		FROM runs ORDER BY created_at DESC, run_id DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	var rows []runRow
	if err := l.db.SelectContext(ctx, &rows, l.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	out := make([]run.Summary, len(rows))
	for i, r := range rows {
		out[i] = r.toSummary()
	}
	return out, nil
}

// Package catalog maintains the sqlite-backed audit index: which artifacts
// each run wrote, which seeds were registered, and per-run computation
// summaries. It deliberately stores no run lifecycle state; the run registry
// in memory stays authoritative for status.
package catalog

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/repro-cli/internal/artifact"
	"github.com/sells-group/repro-cli/internal/randomness"
	"github.com/sells-group/repro-cli/internal/tracker"
)

// Catalog wraps the sqlite audit database.
type Catalog struct {
	db *sql.DB
}

// Open opens (or creates) the catalog database at dsn and configures WAL mode.
func Open(dsn string) (*Catalog, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "catalog: exec %s", pragma)
		}
	}
	return &Catalog{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS artifact_writes (
	id            TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL,
	experiment_id TEXT NOT NULL,
	logical_path  TEXT NOT NULL,
	snapshot_path TEXT NOT NULL,
	bytes         INTEGER NOT NULL,
	written_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS seed_log (
	id            TEXT PRIMARY KEY,
	seed          INTEGER NOT NULL,
	origin        TEXT NOT NULL,
	registered_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS computation_summaries (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	computed    INTEGER NOT NULL,
	simulated   INTEGER NOT NULL,
	cached      INTEGER NOT NULL,
	recorded_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_artifact_writes_run_id ON artifact_writes(run_id);
CREATE INDEX IF NOT EXISTS idx_artifact_writes_logical ON artifact_writes(logical_path);
CREATE INDEX IF NOT EXISTS idx_computation_summaries_run_id ON computation_summaries(run_id);
`

// Migrate creates the schema if needed.
func (c *Catalog) Migrate(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "catalog: migrate")
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// RecordArtifact indexes one completed artifact write. It implements
// artifact.Recorder.
func (c *Catalog) RecordArtifact(ctx context.Context, rec artifact.WriteRecord) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO artifact_writes (id, run_id, experiment_id, logical_path, snapshot_path, bytes, written_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), rec.RunID, rec.ExperimentID, rec.LogicalPath, rec.SnapshotPath, rec.Bytes, rec.WrittenAt,
	)
	return eris.Wrap(err, "catalog: record artifact")
}

// RecordSeeds appends seed registrations to the persisted audit log.
func (c *Catalog) RecordSeeds(ctx context.Context, entries []randomness.SeedLogEntry) error {
	for _, e := range entries {
		_, err := c.db.ExecContext(ctx,
			`INSERT INTO seed_log (id, seed, origin, registered_at) VALUES (?, ?, ?, ?)`,
			uuid.New().String(), e.Seed, e.Origin, e.RegisteredAt,
		)
		if err != nil {
			return eris.Wrap(err, "catalog: record seed")
		}
	}
	return nil
}

// RecordSummary persists a run's computation-status summary.
func (c *Catalog) RecordSummary(ctx context.Context, runID string, s tracker.Summary) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO computation_summaries (id, run_id, computed, simulated, cached, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), runID, s.Computed, s.Simulated, s.Cached, time.Now().UTC(),
	)
	return eris.Wrap(err, "catalog: record summary")
}

// ArtifactFilter narrows ListArtifacts.
type ArtifactFilter struct {
	RunID string
	Limit int
}

// ListArtifacts returns indexed writes, most recent first.
func (c *Catalog) ListArtifacts(ctx context.Context, f ArtifactFilter) ([]artifact.WriteRecord, error) {
	q := `SELECT run_id, experiment_id, logical_path, snapshot_path, bytes, written_at FROM artifact_writes`
	var args []any
	if f.RunID != "" {
		q += ` WHERE run_id = ?`
		args = append(args, f.RunID)
	}
	q += ` ORDER BY written_at DESC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: list artifacts")
	}
	defer rows.Close()

	var out []artifact.WriteRecord
	for rows.Next() {
		var rec artifact.WriteRecord
		if err := rows.Scan(&rec.RunID, &rec.ExperimentID, &rec.LogicalPath, &rec.SnapshotPath, &rec.Bytes, &rec.WrittenAt); err != nil {
			return nil, eris.Wrap(err, "catalog: scan artifact")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "catalog: iterate artifacts")
}

// RunActivity aggregates a run's footprint in the catalog.
type RunActivity struct {
	RunID        string    `json:"run_id"`
	ExperimentID string    `json:"experiment_id"`
	Artifacts    int       `json:"artifacts"`
	Simulated    int       `json:"simulated"`
	FirstWrite   time.Time `json:"first_write"`
	LastWrite    time.Time `json:"last_write"`
}

// ListRunActivity groups indexed writes by run, most recent activity first.
func (c *Catalog) ListRunActivity(ctx context.Context, limit int) ([]RunActivity, error) {
	q := `SELECT w.run_id, w.experiment_id, COUNT(DISTINCT w.id), COALESCE(MAX(s.simulated), 0), MIN(w.written_at), MAX(w.written_at)
	      FROM artifact_writes w
	      LEFT JOIN computation_summaries s ON s.run_id = w.run_id
	      GROUP BY w.run_id, w.experiment_id
	      ORDER BY MAX(w.written_at) DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: list run activity")
	}
	defer rows.Close()

	var out []RunActivity
	for rows.Next() {
		var a RunActivity
		if err := rows.Scan(&a.RunID, &a.ExperimentID, &a.Artifacts, &a.Simulated, &a.FirstWrite, &a.LastWrite); err != nil {
			return nil, eris.Wrap(err, "catalog: scan run activity")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "catalog: iterate run activity")
}

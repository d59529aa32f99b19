// Package sqlite keeps a queryable history of tuning snapshots across runs.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/san-kum/rolltune/internal/dynamo"
	"github.com/san-kum/rolltune/internal/experiment"
)

const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		kind TEXT,
		setpoint_deg DOUBLE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS snapshots (
		run_id TEXT NOT NULL,
		iteration INTEGER NOT NULL,
		kp DOUBLE,
		ki DOUBLE,
		kd DOUBLE,
		overshoot_percent DOUBLE,
		oscillations INTEGER,
		sse_percent DOUBLE,
		saturations INTEGER,
		recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, iteration),
		FOREIGN KEY (run_id) REFERENCES runs(run_id)
	);
`

type HistoryDB struct {
	*sql.DB
}

func Open(path string) (*HistoryDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, err
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &HistoryDB{db}, nil
}

func (db *HistoryDB) RecordRun(ctx context.Context, runID, kind string, setpointDeg float64) error {
	_, err := db.ExecContext(ctx,
		"INSERT OR REPLACE INTO runs (run_id, kind, setpoint_deg) VALUES (?, ?, ?)",
		runID, kind, setpointDeg)
	return err
}

// Reporter binds the database to one run so the tuning loop can write
// snapshots into it.
func (db *HistoryDB) Reporter(runID string) experiment.Reporter {
	return experiment.ReporterFunc(func(ctx context.Context, s experiment.Snapshot) error {
		return db.Report(ctx, runID, s)
	})
}

func (db *HistoryDB) Report(ctx context.Context, runID string, s experiment.Snapshot) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR REPLACE INTO snapshots
			(run_id, iteration, kp, ki, kd, overshoot_percent, oscillations, sse_percent, saturations)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, s.Iteration, s.Gains.Kp, s.Gains.Ki, s.Gains.Kd,
		s.OvershootPercent, s.OscillationCount, s.SteadyStateErrorPercent, s.Saturations)
	return err
}

// Row is a stored snapshot.
type Row struct {
	RunID string
	experiment.Snapshot
	RecordedAt time.Time
}

// Snapshots returns the snapshots of one run, or of every run when runID is
// empty, ordered by run and iteration.
func (db *HistoryDB) Snapshots(ctx context.Context, runID string) ([]Row, error) {
	query := `
		SELECT run_id, iteration, kp, ki, kd, overshoot_percent, oscillations, sse_percent, saturations, recorded_at
		FROM snapshots`
	var args []any
	if runID != "" {
		query += " WHERE run_id = ?"
		args = append(args, runID)
	}
	query += " ORDER BY run_id, iteration"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var g dynamo.GainVector
		var recorded string
		if err := rows.Scan(&r.RunID, &r.Iteration, &g.Kp, &g.Ki, &g.Kd,
			&r.OvershootPercent, &r.OscillationCount, &r.SteadyStateErrorPercent, &r.Saturations, &recorded); err != nil {
			return nil, err
		}
		r.Gains = g
		r.RecordedAt = parseTimestamp(recorded)
		out = append(out, r)
	}
	return out, rows.Err()
}

// parseTimestamp accepts both the SQLite CURRENT_TIMESTAMP text form and the
// RFC 3339 form database/sql produces when the driver returns a time.Time.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

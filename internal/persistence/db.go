// Package persistence provides SQLite-based storage of simulation runs.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/schelling/internal/engine"
	"github.com/talgya/schelling/internal/neighborhood"
)

// DB wraps a SQLite connection for run storage.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		dimension INTEGER NOT NULL,
		population TEXT NOT NULL,
		config_json TEXT NOT NULL,
		started TEXT NOT NULL,
		ticks INTEGER NOT NULL,
		converged INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS history (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		unhappy REAL NOT NULL,
		similar REAL NOT NULL,
		PRIMARY KEY (run_id, tick)
	);

	CREATE TABLE IF NOT EXISTS lots (
		run_id TEXT NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		label TEXT NOT NULL,
		rule TEXT NOT NULL,
		preference REAL NOT NULL,
		PRIMARY KEY (run_id, x, y)
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Run is the stored summary of one simulation run.
type Run struct {
	ID         string `db:"id" json:"id"`
	Seed       int64  `db:"seed" json:"seed"`
	Dimension  int    `db:"dimension" json:"dimension"`
	Population string `db:"population" json:"population"`
	ConfigJSON string `db:"config_json" json:"config"`
	Started    string `db:"started" json:"started"`
	Ticks      int    `db:"ticks" json:"ticks"`
	Converged  bool   `db:"converged" json:"converged"`
}

// NewRun creates run metadata with a fresh id. cfg is stored as JSON.
func NewRun(seed int64, dimension int, population string, cfg any) (Run, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return Run{}, fmt.Errorf("encode run config: %w", err)
	}
	return Run{
		ID:         uuid.NewString(),
		Seed:       seed,
		Dimension:  dimension,
		Population: population,
		ConfigJSON: string(raw),
		Started:    time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// Lot is one stored occupied lot of a run's final layout.
type Lot struct {
	X          int     `db:"x"`
	Y          int     `db:"y"`
	Label      string  `db:"label"`
	Rule       string  `db:"rule"`
	Preference float64 `db:"preference"`
}

type historyRow struct {
	Tick    int     `db:"tick"`
	Unhappy float64 `db:"unhappy"`
	Similar float64 `db:"similar"`
}

// SaveRun stores a run's metadata, its history and the grid's occupied lots
// in one transaction. Saving an existing run id replaces it.
func (db *DB) SaveRun(run Run, h engine.History, g *neighborhood.Grid) error {
	run.Ticks = len(h)
	run.Converged = h.Converged()

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.NamedExec(`INSERT OR REPLACE INTO runs
		(id, seed, dimension, population, config_json, started, ticks, converged)
		VALUES (:id, :seed, :dimension, :population, :config_json, :started, :ticks, :converged)`, run)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	if _, err := tx.Exec("DELETE FROM history WHERE run_id = ?", run.ID); err != nil {
		return err
	}
	for _, rec := range h {
		_, err := tx.Exec("INSERT INTO history (run_id, tick, unhappy, similar) VALUES (?, ?, ?, ?)",
			run.ID, rec.Tick, rec.Stats.Unhappy, rec.Stats.Similar)
		if err != nil {
			return fmt.Errorf("insert tick %d: %w", rec.Tick, err)
		}
	}

	if _, err := tx.Exec("DELETE FROM lots WHERE run_id = ?", run.ID); err != nil {
		return err
	}
	if g != nil {
		stmt, err := tx.Preparex(`INSERT INTO lots (run_id, x, y, label, rule, preference)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, a := range g.Agents {
			_, err := stmt.Exec(run.ID, a.Position.X, a.Position.Y, a.Type.Label, a.Rule.String(), a.Preference)
			if err != nil {
				return fmt.Errorf("insert lot %s: %w", a.Position, err)
			}
		}
	}

	if _, err := tx.Exec("INSERT OR REPLACE INTO world_meta (key, value) VALUES ('last_run', ?)", run.ID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("run saved", "run", run.ID, "ticks", run.Ticks, "converged", run.Converged)
	return nil
}

// GetRun returns the metadata of one run.
func (db *DB) GetRun(id string) (Run, error) {
	var run Run
	err := db.conn.Get(&run, "SELECT * FROM runs WHERE id = ?", id)
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs, "SELECT * FROM runs ORDER BY started DESC, rowid DESC LIMIT ?", limit)
	return runs, err
}

// LoadHistory returns the recorded ticks of a run in order.
func (db *DB) LoadHistory(runID string) (engine.History, error) {
	var rows []historyRow
	err := db.conn.Select(&rows,
		"SELECT tick, unhappy, similar FROM history WHERE run_id = ? ORDER BY tick", runID)
	if err != nil {
		return nil, err
	}
	h := make(engine.History, len(rows))
	for i, r := range rows {
		h[i] = engine.Record{Tick: r.Tick, Stats: neighborhood.Stats{Unhappy: r.Unhappy, Similar: r.Similar}}
	}
	return h, nil
}

// LoadLots returns a run's stored occupied lots, row-major.
func (db *DB) LoadLots(runID string) ([]Lot, error) {
	var lots []Lot
	err := db.conn.Select(&lots,
		"SELECT x, y, label, rule, preference FROM lots WHERE run_id = ? ORDER BY x, y", runID)
	return lots, err
}

// SaveMeta stores a key-value pair in metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

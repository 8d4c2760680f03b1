// Package recorder stores driver iterations in SQLite.
//
// Every driver run gets a uuid. Each model evaluation the driver requests is
// stored as a case holding the design variables, objectives and constraints
// by name. Values are msgpack-encoded so vector variables round-trip without
// a column per element.
package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// ErrUnknownRun is returned when recording into a run that was never started.
var ErrUnknownRun = errors.New("recorder: unknown run")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		driver TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cases (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		counter INTEGER NOT NULL,
		source TEXT NOT NULL,
		vals BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE(run_id, counter)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cases_run ON cases(run_id)`,
}

// Run is a recorded driver run.
type Run struct {
	ID      string
	Name    string
	Driver  string
	Created time.Time
}

// Case is one recorded model evaluation.
type Case struct {
	RunID   string
	Counter int // 1-based within the run
	Source  string
	Values  map[string][]float64
	Created time.Time
}

// Recorder writes runs and cases to a database.
type Recorder struct {
	db       *sql.DB
	logger   *zap.Logger
	mu       sync.Mutex
	counters map[string]int
}

// Open creates or opens the SQLite database at path.
func Open(path string, logger *zap.Logger) (*Recorder, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("recorder: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("recorder: open %s: %w", path, err)
	}
	r, err := New(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// New wraps an open database and creates the schema if needed.
func New(db *sql.DB, logger *zap.Logger) (*Recorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("recorder: create schema: %w", err)
		}
	}
	return &Recorder{db: db, logger: logger, counters: make(map[string]int)}, nil
}

// StartRun registers a new run and returns its id.
func (r *Recorder) StartRun(ctx context.Context, name, driver string) (string, error) {
	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, name, driver, created_at) VALUES (?, ?, ?, ?)`,
		id, name, driver, time.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("recorder: start run: %w", err)
	}
	r.mu.Lock()
	r.counters[id] = 0
	r.mu.Unlock()
	r.logger.Debug("recording run", zap.String("run_id", id), zap.String("name", name))
	return id, nil
}

// Record stores one case for runID and returns its counter.
func (r *Recorder) Record(ctx context.Context, runID, source string, values map[string][]float64) (int, error) {
	r.mu.Lock()
	counter, ok := r.counters[runID]
	if !ok {
		r.mu.Unlock()
		return 0, fmt.Errorf("%w %q", ErrUnknownRun, runID)
	}
	counter++
	r.counters[runID] = counter
	r.mu.Unlock()

	blob, err := msgpack.Marshal(values)
	if err != nil {
		return 0, fmt.Errorf("recorder: encode case: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO cases (run_id, counter, source, vals, created_at) VALUES (?, ?, ?, ?, ?)`,
		runID, counter, source, blob, time.Now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("recorder: record case %d: %w", counter, err)
	}
	return counter, nil
}

// Runs lists recorded runs, oldest first.
func (r *Recorder) Runs(ctx context.Context) ([]Run, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, driver, created_at FROM runs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("recorder: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var created int64
		if err := rows.Scan(&run.ID, &run.Name, &run.Driver, &created); err != nil {
			return nil, fmt.Errorf("recorder: scan run: %w", err)
		}
		run.Created = time.Unix(0, created)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Cases returns the cases of runID in recording order.
func (r *Recorder) Cases(ctx context.Context, runID string) ([]Case, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT counter, source, vals, created_at FROM cases WHERE run_id = ? ORDER BY counter`, runID)
	if err != nil {
		return nil, fmt.Errorf("recorder: list cases: %w", err)
	}
	defer rows.Close()

	var cases []Case
	for rows.Next() {
		c := Case{RunID: runID}
		var blob []byte
		var created int64
		if err := rows.Scan(&c.Counter, &c.Source, &blob, &created); err != nil {
			return nil, fmt.Errorf("recorder: scan case: %w", err)
		}
		if err := msgpack.Unmarshal(blob, &c.Values); err != nil {
			return nil, fmt.Errorf("recorder: decode case %d: %w", c.Counter, err)
		}
		c.Created = time.Unix(0, created)
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// Close closes the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// Package store persists assimilation runs, their per-window diagnostics and
// truth-only camera series in SQLite. The schema is managed by embedded
// golang-migrate migrations.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/footfall/internal/config"
	"github.com/banshee-data/footfall/internal/pipeline"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusTruth     = "truth" // truth-only run, no ensemble
)

// Store wraps the SQLite connection.
type Store struct {
	*sql.DB
}

// Open opens (or creates) the database at path and applies the connection
// pragmas. It does not migrate; call MigrateUp.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return &Store{db}, nil
}

// Run is one row of assimilation_runs.
type Run struct {
	RunID            string          `json:"run_id"`
	Seed             uint64          `json:"seed"`
	TrueRate         float64         `json:"true_rate"`
	Agents           int             `json:"agents"`
	Members          int             `json:"members"`
	Windows          int             `json:"windows"`
	ConfigJSON       json.RawMessage `json:"config_json,omitempty"`
	Status           string          `json:"status"`
	Error            string          `json:"error,omitempty"`
	CompletedWindows int             `json:"completed_windows"`
	Fallbacks        int             `json:"fallbacks"`
	ForecastRMSE     float64         `json:"forecast_rmse"`
	AnalysisRMSE     float64         `json:"analysis_rmse"`
	ObservationRMSE  float64         `json:"observation_rmse"`
	ParameterRMSE    float64         `json:"parameter_rmse"`
	CreatedAt        int64           `json:"created_at"`
	FinishedAt       int64           `json:"finished_at,omitempty"`
}

// NewRun describes a run about to start with the given configuration.
func NewRun(cfg *config.AssimilationConfig, seed uint64, trueRate float64) (*Run, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return &Run{
		Seed:       seed,
		TrueRate:   trueRate,
		Agents:     cfg.GetAgents(),
		Members:    cfg.GetMembers(),
		Windows:    cfg.GetWindows(),
		ConfigJSON: raw,
		Status:     StatusRunning,
	}, nil
}

// CreateRun inserts run. If RunID is empty, a UUID is generated.
func (s *Store) CreateRun(ctx context.Context, run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}
	var cfg interface{}
	if len(run.ConfigJSON) > 0 {
		cfg = string(run.ConfigJSON)
	}
	_, err := s.ExecContext(ctx, `
		INSERT INTO assimilation_runs (
			run_id, seed, true_rate, agents, members, windows, config_json, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, strconv.FormatUint(run.Seed, 10), run.TrueRate,
		run.Agents, run.Members, run.Windows, cfg, run.Status, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun stores the run's summary. A non-nil runErr marks it failed.
func (s *Store) FinishRun(ctx context.Context, runID string, sum pipeline.Summary, runErr error) error {
	status, msg := StatusCompleted, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	res, err := s.ExecContext(ctx, `
		UPDATE assimilation_runs SET
			status = ?, error = ?, completed_windows = ?, fallbacks = ?,
			forecast_rmse = ?, analysis_rmse = ?, observation_rmse = ?, parameter_rmse = ?,
			finished_at = ?
		WHERE run_id = ?`,
		status, msg, sum.Windows, sum.Fallbacks,
		sum.ForecastRMSE, sum.AnalysisRMSE, sum.ObservationRMSE, sum.ParameterRMSE,
		time.Now().UnixNano(), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return nil
}

const runColumns = `
	run_id, seed, true_rate, agents, members, windows, config_json, status,
	COALESCE(error, ''), completed_windows, fallbacks,
	COALESCE(forecast_rmse, 0), COALESCE(analysis_rmse, 0),
	COALESCE(observation_rmse, 0), COALESCE(parameter_rmse, 0),
	created_at, COALESCE(finished_at, 0)`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var seed string
	var cfg sql.NullString
	err := row.Scan(
		&r.RunID, &seed, &r.TrueRate, &r.Agents, &r.Members, &r.Windows, &cfg, &r.Status,
		&r.Error, &r.CompletedWindows, &r.Fallbacks,
		&r.ForecastRMSE, &r.AnalysisRMSE, &r.ObservationRMSE, &r.ParameterRMSE,
		&r.CreatedAt, &r.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	if r.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
		return nil, fmt.Errorf("run %s: bad seed %q: %w", r.RunID, seed, err)
	}
	if cfg.Valid {
		r.ConfigJSON = json.RawMessage(cfg.String)
	}
	return &r, nil
}

// GetRun returns a single run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.QueryRowContext(ctx, `SELECT `+runColumns+` FROM assimilation_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return r, err
}

// ListRuns returns every run, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]*Run, error) {
	rows, err := s.QueryContext(ctx, `SELECT `+runColumns+` FROM assimilation_runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

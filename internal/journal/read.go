package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by GetRun for an unknown run ID.
var ErrNotFound = errors.New("journal: run not found")

// RunRecord is a stored run.
type RunRecord struct {
	Seq              int64           `json:"seq"`
	ID               string          `json:"id"`
	TestName         string          `json:"test_name"`
	BasePath         string          `json:"base_path"`
	Loader           string          `json:"loader"`
	Environment      string          `json:"environment"`
	Outcome          string          `json:"outcome"`
	ErrorCode        string          `json:"error_code,omitempty"`
	Error            string          `json:"error,omitempty"`
	Fingerprint      string          `json:"fingerprint,omitempty"`
	Warnings         []WarningRecord `json:"warnings"`
	StartedAt        time.Time       `json:"started_at"`
	Stages           []StageRecord   `json:"stages,omitempty"`
	TeardownFailures []FailureRecord `json:"teardown_failures,omitempty"`
}

// WarningRecord is a stored non-fatal override warning.
type WarningRecord struct {
	Stage   string `json:"stage"`
	Target  string `json:"target"`
	Origin  string `json:"origin"`
	Message string `json:"message"`
}

// StageRecord is a stored stage outcome.
type StageRecord struct {
	Index      int    `json:"index"`
	Stage      string `json:"stage"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationUS int64  `json:"duration_us"`
}

// FailureRecord is a stored teardown failure.
type FailureRecord struct {
	Stage int    `json:"stage"`
	Label string `json:"label,omitempty"`
	Error string `json:"error"`
}

// ListOptions filters ListRuns.
type ListOptions struct {
	TestName string
	Outcome  string
	Limit    int
}

const runColumns = `seq, id, test_name, base_path, loader, environment, outcome, error_code, error, fingerprint, warnings, started_at`

// ListRuns returns runs in recording order, newest last. Stage outcomes
// and teardown failures are not loaded; use GetRun for those.
func (j *Journal) ListRuns(ctx context.Context, opts ListOptions) ([]RunRecord, error) {
	var (
		where []string
		args  []any
	)
	if opts.TestName != "" {
		where = append(where, "test_name = ?")
		args = append(args, opts.TestName)
	}
	if opts.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, opts.Outcome)
	}

	query := "SELECT " + runColumns + " FROM runs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"
	if opts.Limit > 0 {
		// Keep the newest N while still returning them oldest first.
		query = "SELECT * FROM (" + strings.Replace(query, "ORDER BY seq ASC", "ORDER BY seq DESC", 1) +
			" LIMIT ?) ORDER BY seq ASC"
		args = append(args, opts.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// GetRun loads one run with its stage outcomes and teardown failures.
func (j *Journal) GetRun(ctx context.Context, id string) (RunRecord, error) {
	row := j.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("get run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", id, err)
	}

	if rec.Stages, err = j.stages(ctx, id); err != nil {
		return RunRecord{}, err
	}
	if rec.TeardownFailures, err = j.failures(ctx, id); err != nil {
		return RunRecord{}, err
	}
	return rec, nil
}

func (j *Journal) stages(ctx context.Context, runID string) ([]StageRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT stage_index, stage, status, error, duration_us
		FROM stage_outcomes
		WHERE run_id = ?
		ORDER BY stage_index ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("load stages: %w", err)
	}
	defer rows.Close()

	var out []StageRecord
	for rows.Next() {
		var s StageRecord
		if err := rows.Scan(&s.Index, &s.Stage, &s.Status, &s.Error, &s.DurationUS); err != nil {
			return nil, fmt.Errorf("load stages: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (j *Journal) failures(ctx context.Context, runID string) ([]FailureRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT stage_index, label, error
		FROM teardown_failures
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("load teardown failures: %w", err)
	}
	defer rows.Close()

	var out []FailureRecord
	for rows.Next() {
		var f FailureRecord
		if err := rows.Scan(&f.Stage, &f.Label, &f.Error); err != nil {
			return nil, fmt.Errorf("load teardown failures: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (RunRecord, error) {
	var (
		rec       RunRecord
		warnings  string
		startedAt string
	)
	err := s.Scan(&rec.Seq, &rec.ID, &rec.TestName, &rec.BasePath, &rec.Loader, &rec.Environment,
		&rec.Outcome, &rec.ErrorCode, &rec.Error, &rec.Fingerprint, &warnings, &startedAt)
	if err != nil {
		return RunRecord{}, err
	}

	if err := json.Unmarshal([]byte(warnings), &rec.Warnings); err != nil {
		return RunRecord{}, fmt.Errorf("decode warnings: %w", err)
	}
	if rec.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return RunRecord{}, fmt.Errorf("decode started_at: %w", err)
	}
	return rec, nil
}

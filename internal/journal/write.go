package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/testbench/internal/bootstrap"
	"github.com/roach88/testbench/internal/canonical"
	"github.com/roach88/testbench/internal/teardown"
)

var _ bootstrap.Recorder = (*Journal)(nil)

// RecordRun stores a run and its stage outcomes in one transaction.
// Recording the same run ID twice is a no-op.
func (j *Journal) RecordRun(ctx context.Context, run bootstrap.Run) error {
	warnings, err := marshalWarnings(run.Warnings)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, test_name, base_path, loader, environment, outcome, error_code, error, fingerprint, warnings, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.TestName,
		run.BasePath,
		run.Loader,
		run.Environment,
		string(run.Outcome),
		string(run.ErrorCode),
		run.Error,
		run.Fingerprint,
		warnings,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	for _, o := range run.Stages {
		errText := ""
		if o.Err != nil {
			errText = o.Err.Error()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO stage_outcomes (run_id, stage_index, stage, status, error, duration_us)
			VALUES (?, ?, ?, ?, ?, ?)
		`, run.ID, o.Index, o.Stage, string(o.Status), errText, o.Duration.Microseconds())
		if err != nil {
			return fmt.Errorf("record stage %s: %w", o.Stage, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// RecordTeardown stores teardown failures for a recorded run. The run must
// exist (foreign key).
func (j *Journal) RecordTeardown(ctx context.Context, runID string, failures []teardown.Failure) error {
	if len(failures) == 0 {
		return nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record teardown: %w", err)
	}
	defer tx.Rollback()

	for _, f := range failures {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO teardown_failures (run_id, stage_index, label, error)
			VALUES (?, ?, ?, ?)
		`, runID, f.Stage, f.Label, f.Err.Error())
		if err != nil {
			return fmt.Errorf("record teardown: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record teardown: %w", err)
	}
	return nil
}

// marshalWarnings encodes warnings as canonical JSON so identical runs store
// identical bytes.
func marshalWarnings(ws []bootstrap.Warning) (string, error) {
	list := make([]any, len(ws))
	for i, w := range ws {
		list[i] = map[string]any{
			"stage":   w.Stage.String(),
			"target":  w.Target,
			"origin":  string(w.Origin),
			"message": w.Message,
		}
	}
	data, err := canonical.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("marshal warnings: %w", err)
	}
	return string(data), nil
}

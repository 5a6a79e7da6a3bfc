package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saftbridge/saftbridge/internal/ledger"
	"github.com/saftbridge/saftbridge/internal/platform/db"
)

// ErrNotFound indicates the requested run is missing.
var ErrNotFound = errors.New("run: not found")

// ErrWindowBusy indicates another pending or running export already
// claims the company and window.
var ErrWindowBusy = errors.New("run: window already has an active run")

// Repository persists export runs and their diagnostics.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a run repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const runColumns = `id, company, window_start, window_end, policy, status, lines_processed, lines_skipped, artifact_path, artifact_digest, error, created_at, started_at, finished_at`

// Create registers a run. Status defaults to PENDING and CreatedAt to
// now when unset. A second active run for the same company and window
// is rejected with ErrWindowBusy.
func (r *Repository) Create(ctx context.Context, rec Run) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("run repo not initialised")
	}
	status := rec.Status
	if status == "" {
		status = StatusPending
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	const query = `INSERT INTO export_runs (id, company, window_start, window_end, policy, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.pool.Exec(ctx, query, rec.ID, rec.Company, string(rec.WindowStart), string(rec.WindowEnd), string(rec.Policy), string(status), created)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrWindowBusy
		}
		return err
	}
	return nil
}

// Get fetches one run by identifier.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Run, error) {
	if r == nil || r.pool == nil {
		return Run{}, fmt.Errorf("run repo not initialised")
	}
	row := r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM export_runs WHERE id = $1`, id)
	rec, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return rec, err
}

// ListRecent returns the newest runs first.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Run, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("run repo not initialised")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+runColumns+` FROM export_runs ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []Run
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// MarkRunning moves a pending run into RUNNING.
func (r *Repository) MarkRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("run repo not initialised")
	}
	tag, err := r.pool.Exec(ctx, `UPDATE export_runs SET status = 'RUNNING', started_at = $2
WHERE id = $1 AND status = 'PENDING'`, id, startedAt)
	if err != nil {
		return err
	}
	return r.checkTransition(ctx, id, tag)
}

// MarkSucceeded finalises a running run with its artifact and counters.
func (r *Repository) MarkSucceeded(ctx context.Context, id uuid.UUID, outcome Outcome) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("run repo not initialised")
	}
	tag, err := r.pool.Exec(ctx, `UPDATE export_runs
SET status = 'SUCCEEDED', artifact_path = $2, artifact_digest = $3, lines_processed = $4, lines_skipped = $5, finished_at = $6
WHERE id = $1 AND status = 'RUNNING'`,
		id, outcome.ArtifactPath, outcome.ArtifactDigest, outcome.LinesProcessed, outcome.LinesSkipped, outcome.FinishedAt)
	if err != nil {
		return err
	}
	return r.checkTransition(ctx, id, tag)
}

// MarkFailed finalises a pending or running run with its failure cause.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, cause string, finishedAt time.Time) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("run repo not initialised")
	}
	tag, err := r.pool.Exec(ctx, `UPDATE export_runs SET status = 'FAILED', error = $2, finished_at = $3
WHERE id = $1 AND status IN ('PENDING','RUNNING')`, id, cause, finishedAt)
	if err != nil {
		return err
	}
	return r.checkTransition(ctx, id, tag)
}

func (r *Repository) checkTransition(ctx context.Context, id uuid.UUID, tag pgconn.CommandTag) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return ErrInvalidTransition
}

// ReplaceDiagnostics swaps the skip-reason breakdown recorded for a run.
func (r *Repository) ReplaceDiagnostics(ctx context.Context, runID uuid.UUID, diags []Diagnostic) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("run repo not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM run_diagnostics WHERE run_id = $1`, runID); err != nil {
			return err
		}
		for _, d := range diags {
			if _, err := tx.Exec(ctx, `INSERT INTO run_diagnostics (run_id, reason, count) VALUES ($1,$2,$3)`,
				runID, d.Reason, d.Count); err != nil {
				return err
			}
		}
		return nil
	})
}

// DiagnosticsByRun returns the skip-reason breakdown ordered by reason.
func (r *Repository) DiagnosticsByRun(ctx context.Context, runID uuid.UUID) ([]Diagnostic, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("run repo not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT run_id, reason, count FROM run_diagnostics WHERE run_id = $1 ORDER BY reason`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var diags []Diagnostic
	for rows.Next() {
		var d Diagnostic
		if err := rows.Scan(&d.RunID, &d.Reason, &d.Count); err != nil {
			return nil, err
		}
		diags = append(diags, d)
	}
	return diags, rows.Err()
}

// FailStale marks RUNNING rows whose start precedes the cutoff as
// failed. Crashed workers leave such rows behind; the sweep closes
// them so their windows free up again.
func (r *Repository) FailStale(ctx context.Context, cutoff time.Time) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, fmt.Errorf("run repo not initialised")
	}
	tag, err := r.pool.Exec(ctx, `UPDATE export_runs SET status = 'FAILED', error = 'abandoned by worker', finished_at = now()
WHERE status = 'RUNNING' AND started_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanRun(row pgx.Row) (Run, error) {
	var rec Run
	var windowStart, windowEnd, policy, status string
	if err := row.Scan(
		&rec.ID, &rec.Company, &windowStart, &windowEnd, &policy, &status,
		&rec.LinesProcessed, &rec.LinesSkipped, &rec.ArtifactPath, &rec.ArtifactDigest, &rec.Error,
		&rec.CreatedAt, &rec.StartedAt, &rec.FinishedAt,
	); err != nil {
		return Run{}, err
	}
	rec.WindowStart = ledger.PeriodKey(windowStart)
	rec.WindowEnd = ledger.PeriodKey(windowEnd)
	rec.Policy = ledger.NormalizationPolicy(policy)
	rec.Status = Status(status)
	return rec, nil
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is one unit of deferred work. ExecutedAt is nil until the job reaches
// a terminal status. Recur, when non-empty, is a cron expression used to
// enqueue the next occurrence after a successful run.
type Job struct {
	ID          string
	Description string
	Payload     string
	DueAt       time.Time
	Status      JobStatus
	Recur       string
	ExecutedAt  *time.Time
	CreatedAt   time.Time
}

const jobColumns = `id, description, payload, due_at, status, recur, executed_at, created_at`

func (s *Store) CreateJob(ctx context.Context, job *Job) error {
	if job.Status == "" {
		job.Status = JobPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, description, payload, due_at, status, recur, executed_at, created_at)
		 VALUES (?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO NOTHING`,
		job.ID, job.Description, job.Payload, job.DueAt.UnixMilli(), job.Status, job.Recur,
		nullMilli(job.ExecutedAt), job.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func (s *Store) FindJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// DueJobs returns pending jobs with due_at <= now, in a stable order
// (due time, then id) so ties are deterministic.
func (s *Store) DueJobs(ctx context.Context, now time.Time) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE status = ? AND due_at <= ?
		 ORDER BY due_at, id`,
		JobPending, now.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

// FinishJob records a terminal status and the execution time.
func (s *Store) FinishJob(ctx context.Context, id string, status JobStatus, executedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, executed_at = ? WHERE id = ?`,
		status, executedAt.UnixMilli(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteJob removes the row; deleting an absent job is a no-op.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	return err
}

// ListJobs returns all retained jobs, pending first, then failed, each oldest
// due first. Completed jobs are deleted on completion and never show up here.
func (s *Store) ListJobs(ctx context.Context) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY status DESC, due_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job        Job
		dueAt      int64
		executedAt sql.NullInt64
		createdAt  int64
	)
	err := row.Scan(&job.ID, &job.Description, &job.Payload, &dueAt, &job.Status,
		&job.Recur, &executedAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	job.DueAt = time.UnixMilli(dueAt).UTC()
	job.CreatedAt = time.UnixMilli(createdAt).UTC()
	if executedAt.Valid {
		t := time.UnixMilli(executedAt.Int64).UTC()
		job.ExecutedAt = &t
	}
	return &job, nil
}

func nullMilli(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/Veraticus/interest-enricher/internal/common"
	"github.com/Veraticus/interest-enricher/internal/model"
)

const jobColumns = `id, kind, name, status, current_index, paused_at, heartbeat_at, created_at, updated_at`

// CreateJob inserts a job and its items in one transaction.
// Blank IDs are generated, positions follow slice order and duplicate labels
// (compared case-insensitively after trimming) are dropped keeping the first.
func (s *SQLiteStorage) CreateJob(ctx context.Context, job *model.Job, items []model.Item) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateJob(job); err != nil {
		return err
	}
	if err := validateItems(items); err != nil {
		return err
	}

	now := s.now()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = model.JobPending
	}
	job.CreatedAt, job.UpdatedAt = now, now

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO jobs (id, kind, name, status, current_index, paused_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, NULL, NULL, ?, ?)
		`, job.ID, job.Kind, job.Name, job.Status, now, now)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("job %s: %w", job.ID, common.ErrDuplicateEntry)
			}
			return fmt.Errorf("failed to insert job: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO items (id, job_id, position, label, country, category, status, retry_count, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare item insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		seen := make(map[string]bool, len(items))
		position := 0
		for i := range items {
			item := &items[i]
			label := strings.TrimSpace(item.Label)
			dedupKey := strings.ToLower(label)
			if seen[dedupKey] {
				continue
			}
			seen[dedupKey] = true

			if item.ID == "" {
				item.ID = uuid.NewString()
			}
			item.JobID = job.ID
			item.Label = label
			item.Position = position
			item.Status = model.ItemPending
			item.CreatedAt, item.UpdatedAt = now, now
			position++

			if _, err := stmt.ExecContext(ctx, item.ID, job.ID, item.Position, item.Label,
				item.Country, item.Category, item.Status, now, now); err != nil {
				return fmt.Errorf("failed to insert item %q: %w", item.Label, err)
			}
		}
		return nil
	})
}

// GetJob retrieves a job by ID.
func (s *SQLiteStorage) GetJob(ctx context.Context, id string) (*model.Job, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs newest first, optionally filtered by status.
func (s *SQLiteStorage) ListJobs(ctx context.Context, statuses ...model.JobStatus) ([]model.Job, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + placeholders(len(statuses)) + `)`
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// TransitionJob moves a job to status `to` only when its current status is one of `from`.
func (s *SQLiteStorage) TransitionJob(ctx context.Context, id string, from []model.JobStatus, to model.JobStatus, pausedAt *time.Time) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(id, "id"); err != nil {
		return false, err
	}
	if len(from) == 0 {
		return false, fmt.Errorf("%w: from statuses", ErrEmptySlice)
	}
	if !to.Valid() {
		return false, fmt.Errorf("%w: %s", ErrInvalidStatus, to)
	}

	var paused any
	if pausedAt != nil {
		paused = pausedAt.UTC()
	}

	// The cursor only has meaning while processing.
	cursor := "NULL"
	if to == model.JobProcessing {
		cursor = "current_index"
	}

	args := []any{to, paused, s.now(), id}
	for _, st := range from {
		args = append(args, st)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = ?, paused_at = ?, current_index = `+cursor+`, updated_at = ?
		WHERE id = ? AND status IN (`+placeholders(len(from))+`)
	`, args...)
	if err != nil {
		return false, fmt.Errorf("failed to transition job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetJob(ctx, id); err != nil {
			return false, err
		}
	}
	return affected > 0, nil
}

// SetJobCursor records the furthest completed item position of a processing job.
// The cursor never moves backwards; nil clears it.
func (s *SQLiteStorage) SetJobCursor(ctx context.Context, id string, index *int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	var err error
	if index == nil {
		_, err = s.db.ExecContext(ctx, `
			UPDATE jobs SET current_index = NULL, updated_at = ? WHERE id = ?
		`, s.now(), id)
	} else {
		_, err = s.db.ExecContext(ctx, `
			UPDATE jobs
			SET current_index = ?, updated_at = ?
			WHERE id = ? AND status = 'processing'
			  AND (current_index IS NULL OR current_index < ?)
		`, *index, s.now(), id, *index)
	}
	if err != nil {
		return fmt.Errorf("failed to set job cursor: %w", err)
	}
	return nil
}

// TouchJob records that a process is still running the job. Only processing jobs are touched.
func (s *SQLiteStorage) TouchJob(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET heartbeat_at = ? WHERE id = ? AND status = 'processing'
	`, s.now(), id); err != nil {
		return fmt.Errorf("failed to touch job: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var (
		job       model.Job
		cursor    sql.NullInt64
		pausedAt  sql.NullTime
		heartbeat sql.NullTime
	)
	if err := row.Scan(&job.ID, &job.Kind, &job.Name, &job.Status, &cursor, &pausedAt,
		&heartbeat, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, err
	}
	if cursor.Valid {
		idx := int(cursor.Int64)
		job.CurrentIndex = &idx
	}
	if pausedAt.Valid {
		t := pausedAt.Time
		job.PausedAt = &t
	}
	if heartbeat.Valid {
		t := heartbeat.Time
		job.HeartbeatAt = &t
	}
	return &job, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

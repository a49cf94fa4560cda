package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/interest-enricher/internal/common"
	"github.com/Veraticus/interest-enricher/internal/model"
)

const itemColumns = `id, job_id, position, label, country, category, status, retry_count,
	selected_suggestion_id, created_at, updated_at`

// GetItem retrieves an item by ID.
func (s *SQLiteStorage) GetItem(ctx context.Context, id string) (*model.Item, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// GetItemAtPosition retrieves the item of a job at the given position.
func (s *SQLiteStorage) GetItemAtPosition(ctx context.Context, jobID string, position int) (*model.Item, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(jobID, "jobID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE job_id = ? AND position = ?`, jobID, position)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %d of job %s: %w", position, jobID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item at position: %w", err)
	}
	return item, nil
}

// ListItems returns a job's items ordered by position, optionally filtered by status.
func (s *SQLiteStorage) ListItems(ctx context.Context, jobID string, statuses ...model.ItemStatus) ([]model.Item, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(jobID, "jobID"); err != nil {
		return nil, err
	}

	query := `SELECT ` + itemColumns + ` FROM items WHERE job_id = ?`
	args := []any{jobID}
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += ` ORDER BY position`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// UpdateItemStatus sets an item's status and retry counter.
func (s *SQLiteStorage) UpdateItemStatus(ctx context.Context, id string, status model.ItemStatus, retryCount int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE items SET status = ?, retry_count = ?, updated_at = ? WHERE id = ?
	`, status, retryCount, s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to update item status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("item %s: %w", id, common.ErrNotFound)
	}
	return nil
}

// ResetItems moves every item of a job whose status is in `from` to `to`.
// Items reset to pending start with a fresh retry counter.
func (s *SQLiteStorage) ResetItems(ctx context.Context, jobID string, from []model.ItemStatus, to model.ItemStatus) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(jobID, "jobID"); err != nil {
		return 0, err
	}
	if len(from) == 0 {
		return 0, fmt.Errorf("%w: from statuses", ErrEmptySlice)
	}
	if !to.Valid() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidStatus, to)
	}

	retry := "retry_count"
	if to == model.ItemPending {
		retry = "0"
	}

	args := []any{to, s.now(), jobID}
	for _, st := range from {
		args = append(args, st)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE items SET status = ?, retry_count = `+retry+`, updated_at = ?
		WHERE job_id = ? AND status IN (`+placeholders(len(from))+`)
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to reset items: %w", err)
	}
	return result.RowsAffected()
}

// CountItems aggregates a job's items by status.
func (s *SQLiteStorage) CountItems(ctx context.Context, jobID string) (model.ItemCounts, error) {
	var counts model.ItemCounts
	if err := validateContext(ctx); err != nil {
		return counts, err
	}
	if err := validateString(jobID, "jobID"); err != nil {
		return counts, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM items WHERE job_id = ? GROUP BY status
	`, jobID)
	if err != nil {
		return counts, fmt.Errorf("failed to count items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			status model.ItemStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return counts, fmt.Errorf("failed to scan item count: %w", err)
		}
		counts.Total += n
		switch status {
		case model.ItemPending:
			counts.Pending = n
		case model.ItemInProgress:
			counts.InProgress = n
		case model.ItemRetry:
			counts.Retry = n
		case model.ItemDone:
			counts.Done = n
		case model.ItemFailed:
			counts.Failed = n
		case model.ItemCancelled:
			counts.Cancelled = n
		}
	}
	if err := rows.Err(); err != nil {
		return counts, fmt.Errorf("failed to iterate item counts: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT s.item_id)
		FROM suggestions s
		JOIN items i ON i.id = s.item_id
		WHERE i.job_id = ?
	`, jobID).Scan(&counts.WithSuggestions)
	if err != nil {
		return counts, fmt.Errorf("failed to count items with suggestions: %w", err)
	}
	return counts, nil
}

// SelectSuggestion records the user's pick for an item.
func (s *SQLiteStorage) SelectSuggestion(ctx context.Context, itemID, suggestionID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(itemID, "itemID"); err != nil {
		return err
	}
	if err := validateString(suggestionID, "suggestionID"); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE suggestions SET is_selected_by_user = (id = ?) WHERE item_id = ?
		`, suggestionID, itemID)
		if err != nil {
			return fmt.Errorf("failed to select suggestion: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("suggestions for item %s: %w", itemID, common.ErrNotFound)
		}

		var owned int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM suggestions WHERE id = ? AND item_id = ?
		`, suggestionID, itemID).Scan(&owned); err != nil {
			return fmt.Errorf("failed to check suggestion: %w", err)
		}
		if owned == 0 {
			return fmt.Errorf("suggestion %s: %w", suggestionID, common.ErrNotFound)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE items SET selected_suggestion_id = ?, updated_at = ? WHERE id = ?
		`, suggestionID, s.now(), itemID)
		if err != nil {
			return fmt.Errorf("failed to record selection: %w", err)
		}
		return nil
	})
}

func scanItem(row rowScanner) (*model.Item, error) {
	var (
		item     model.Item
		selected sql.NullString
	)
	if err := row.Scan(&item.ID, &item.JobID, &item.Position, &item.Label, &item.Country,
		&item.Category, &item.Status, &item.RetryCount, &selected,
		&item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	if selected.Valid {
		v := selected.String
		item.SelectedSuggestionID = &v
	}
	return &item, nil
}

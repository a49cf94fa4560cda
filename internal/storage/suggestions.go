package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/Veraticus/interest-enricher/internal/model"
)

// ReplaceSuggestions swaps an item's suggestion set for a new one in a single transaction.
func (s *SQLiteStorage) ReplaceSuggestions(ctx context.Context, itemID string, suggestions []model.Suggestion) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(itemID, "itemID"); err != nil {
		return err
	}
	if err := validateSuggestions(suggestions); err != nil {
		return err
	}

	now := s.now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteSuggestionsTx(ctx, tx, itemID); err != nil {
			return err
		}
		if len(suggestions) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO suggestions (id, item_id, label, external_id, audience, similarity_score,
				is_best_match, is_selected_by_user, path, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare suggestion insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for i := range suggestions {
			sg := &suggestions[i]
			if sg.ID == "" {
				sg.ID = uuid.NewString()
			}
			sg.ItemID = itemID
			sg.CreatedAt = now

			var externalID any
			if sg.ExternalID != nil {
				externalID = *sg.ExternalID
			}
			if _, err := stmt.ExecContext(ctx, sg.ID, itemID, sg.Label, externalID, sg.Audience,
				sg.SimilarityScore, sg.IsBestMatch, sg.IsSelectedByUser, sg.Path, now); err != nil {
				return fmt.Errorf("failed to insert suggestion %q: %w", sg.Label, err)
			}
		}
		return nil
	})
}

// DeleteSuggestions removes every suggestion of an item and clears its selection.
func (s *SQLiteStorage) DeleteSuggestions(ctx context.Context, itemID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(itemID, "itemID"); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return deleteSuggestionsTx(ctx, tx, itemID)
	})
}

func deleteSuggestionsTx(ctx context.Context, q queryable, itemID string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM suggestions WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("failed to delete suggestions: %w", err)
	}
	if _, err := q.ExecContext(ctx, `
		UPDATE items SET selected_suggestion_id = NULL WHERE id = ?
	`, itemID); err != nil {
		return fmt.Errorf("failed to clear selection: %w", err)
	}
	return nil
}

// ListSuggestions returns an item's suggestions, best score first.
func (s *SQLiteStorage) ListSuggestions(ctx context.Context, itemID string) ([]model.Suggestion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(itemID, "itemID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, label, external_id, audience, similarity_score,
			is_best_match, is_selected_by_user, path, created_at
		FROM suggestions
		WHERE item_id = ?
		ORDER BY similarity_score DESC, label
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var suggestions []model.Suggestion
	for rows.Next() {
		var (
			sg         model.Suggestion
			externalID sql.NullString
		)
		if err := rows.Scan(&sg.ID, &sg.ItemID, &sg.Label, &externalID, &sg.Audience,
			&sg.SimilarityScore, &sg.IsBestMatch, &sg.IsSelectedByUser, &sg.Path,
			&sg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		if externalID.Valid {
			v := externalID.String
			sg.ExternalID = &v
		}
		suggestions = append(suggestions, sg)
	}
	return suggestions, rows.Err()
}

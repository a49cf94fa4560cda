package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Veraticus/interest-enricher/internal/common"
	"github.com/Veraticus/interest-enricher/internal/model"
)

const scoreWeightsKey = "score_weights"

// GetScoreWeights reads the configured similarity weights.
// It returns common.ErrNotFound when none were saved and common.ErrInvalidConfig
// when the stored value cannot be used.
func (s *SQLiteStorage) GetScoreWeights(ctx context.Context) (model.ScoreWeights, error) {
	var weights model.ScoreWeights
	if err := validateContext(ctx); err != nil {
		return weights, err
	}

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, scoreWeightsKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return weights, fmt.Errorf("score weights: %w", common.ErrNotFound)
	}
	if err != nil {
		return weights, fmt.Errorf("failed to get score weights: %w", err)
	}

	if err := json.Unmarshal([]byte(raw), &weights); err != nil {
		return model.ScoreWeights{}, fmt.Errorf("score weights: %w: %w", common.ErrInvalidConfig, err)
	}
	if !weights.Valid() {
		return model.ScoreWeights{}, fmt.Errorf("score weights out of range: %w", common.ErrInvalidConfig)
	}
	return weights, nil
}

// SaveScoreWeights stores the similarity weights.
func (s *SQLiteStorage) SaveScoreWeights(ctx context.Context, weights model.ScoreWeights) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if !weights.Valid() {
		return fmt.Errorf("score weights out of range: %w", common.ErrInvalidConfig)
	}

	raw, err := json.Marshal(weights)
	if err != nil {
		return fmt.Errorf("failed to encode score weights: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, scoreWeightsKey, string(raw), s.now())
	if err != nil {
		return fmt.Errorf("failed to save score weights: %w", err)
	}
	return nil
}

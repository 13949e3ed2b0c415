// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/frontbase/frontbase/internal/types"
)

// GetSettings loads the singleton project settings, falling back to the
// defaults when none have been saved yet. The Redis token is decrypted on
// the way out.
func (s *Store) GetSettings(ctx context.Context) (types.ProjectSettings, error) {
	var data string
	err := s.db.GetContext(ctx, &data,
		s.q(`SELECT data FROM project_settings WHERE id = ?`), 1)
	if errors.Is(err, sql.ErrNoRows) {
		return types.DefaultSettings(), nil
	}
	if err != nil {
		return types.ProjectSettings{}, fmt.Errorf("get settings: %w", err)
	}

	settings := types.DefaultSettings()
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		return types.ProjectSettings{}, fmt.Errorf("decode settings: %w", err)
	}
	if settings.RedisToken, err = s.box.Decrypt(settings.RedisToken); err != nil {
		return types.ProjectSettings{}, fmt.Errorf("decrypt redis token: %w", err)
	}
	return settings, nil
}

// SaveSettings persists the singleton settings row whole.
func (s *Store) SaveSettings(ctx context.Context, settings types.ProjectSettings) error {
	sealed := settings
	var err error
	if sealed.RedisToken, err = s.box.Encrypt(settings.RedisToken); err != nil {
		return fmt.Errorf("encrypt redis token: %w", err)
	}
	data, err := json.Marshal(sealed)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settings save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM project_settings WHERE id = ?`), 1); err != nil {
		return fmt.Errorf("clear settings: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		s.q(`INSERT INTO project_settings (id, data) VALUES (?, ?)`), 1, string(data)); err != nil {
		return fmt.Errorf("insert settings: %w", err)
	}
	return tx.Commit()
}

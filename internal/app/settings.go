package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"littlefidan/internal/domain"
)

// ListSettings returns all admin settings.
func (a *App) ListSettings(ctx context.Context) ([]domain.Setting, error) {
	return a.store.ListSettings(ctx)
}

// GetSetting returns one setting by key.
func (a *App) GetSetting(ctx context.Context, key string) (domain.Setting, error) {
	setting, ok, err := a.store.GetSetting(ctx, key)
	if err != nil {
		return domain.Setting{}, fmt.Errorf("get setting: %w", err)
	}
	if !ok {
		return domain.Setting{}, ErrNotFound
	}
	return setting, nil
}

// PutSetting stores a setting. Values must be valid JSON since they land in
// a jsonb column and are served back to the admin UI as-is.
func (a *App) PutSetting(ctx context.Context, key string, value []byte) (domain.Setting, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.Setting{}, fmt.Errorf("%w: setting key is required", ErrValidation)
	}
	if !json.Valid(value) {
		return domain.Setting{}, fmt.Errorf("%w: setting value must be JSON", ErrValidation)
	}
	setting := domain.Setting{
		Key:       key,
		Value:     value,
		UpdatedAt: a.now().UTC(),
	}
	if err := a.store.PutSetting(ctx, setting); err != nil {
		return domain.Setting{}, fmt.Errorf("put setting: %w", err)
	}
	return setting, nil
}

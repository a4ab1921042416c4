package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

type SettingsRepository struct {
	db DBTX
}

func NewSettingsRepository(db DBTX) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) ListAll(ctx context.Context) ([]entity.SystemSetting, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT `key`, value FROM system_settings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make([]entity.SystemSetting, 0)
	for rows.Next() {
		var item entity.SystemSetting
		if err := rows.Scan(&item.Key, &item.Value); err != nil {
			return nil, err
		}
		settings = append(settings, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return settings, nil
}

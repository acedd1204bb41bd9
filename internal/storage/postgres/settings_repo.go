package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/zapgestor/zapgestor/internal/storage"
	"github.com/zapgestor/zapgestor/internal/storage/model"
)

type settingsRepo struct {
	db *DB
}

func NewSettingsRepository(db *DB) *settingsRepo {
	return &settingsRepo{db: db}
}

func (r *settingsRepo) GetByInstance(ctx context.Context, instanceID string) (model.InstanceSettings, error) {
	query := `
		SELECT instance_id, reject_calls, ignore_groups, send_read_receipts,
		       auto_reply_enabled, COALESCE(auto_reply_template, ''), schedule, updated_at
		FROM instance_settings
		WHERE instance_id = $1
	`

	var s model.InstanceSettings
	var scheduleJSON []byte

	err := r.db.Pool.QueryRow(ctx, query, instanceID).Scan(
		&s.InstanceID, &s.RejectCalls, &s.IgnoreGroups, &s.SendReadReceipts,
		&s.AutoReplyEnabled, &s.AutoReplyTemplate, &scheduleJSON, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.InstanceSettings{}, storage.ErrNotFound
	}
	if err != nil {
		return model.InstanceSettings{}, err
	}

	if len(scheduleJSON) > 0 {
		if err := json.Unmarshal(scheduleJSON, &s.Schedule); err != nil {
			return model.InstanceSettings{}, fmt.Errorf("settings: decodificar agenda: %w", err)
		}
	}

	return s, nil
}

func (r *settingsRepo) Save(ctx context.Context, s model.InstanceSettings) (model.InstanceSettings, error) {
	s.UpdatedAt = time.Now().UTC()

	scheduleJSON, err := json.Marshal(s.Schedule)
	if err != nil {
		return model.InstanceSettings{}, fmt.Errorf("settings: codificar agenda: %w", err)
	}

	query := `
		INSERT INTO instance_settings (instance_id, reject_calls, ignore_groups, send_read_receipts, auto_reply_enabled, auto_reply_template, schedule, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (instance_id) DO UPDATE SET
			reject_calls = EXCLUDED.reject_calls,
			ignore_groups = EXCLUDED.ignore_groups,
			send_read_receipts = EXCLUDED.send_read_receipts,
			auto_reply_enabled = EXCLUDED.auto_reply_enabled,
			auto_reply_template = EXCLUDED.auto_reply_template,
			schedule = EXCLUDED.schedule,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.Pool.Exec(ctx, query,
		s.InstanceID, s.RejectCalls, s.IgnoreGroups, s.SendReadReceipts,
		s.AutoReplyEnabled, nullIfEmpty(s.AutoReplyTemplate), scheduleJSON, s.UpdatedAt,
	)
	if err != nil {
		return model.InstanceSettings{}, err
	}

	return s, nil
}

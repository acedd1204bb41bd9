package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

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
		       auto_reply_enabled, COALESCE(auto_reply_template, ''), COALESCE(schedule, ''), updated_at
		FROM instance_settings
		WHERE instance_id = ?
	`

	var s model.InstanceSettings
	var scheduleJSON string
	var updatedAt string

	err := r.db.Conn.QueryRowContext(ctx, query, instanceID).Scan(
		&s.InstanceID, &s.RejectCalls, &s.IgnoreGroups, &s.SendReadReceipts,
		&s.AutoReplyEnabled, &s.AutoReplyTemplate, &scheduleJSON, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.InstanceSettings{}, storage.ErrNotFound
	}
	if err != nil {
		return model.InstanceSettings{}, err
	}

	if scheduleJSON != "" {
		if err := json.Unmarshal([]byte(scheduleJSON), &s.Schedule); err != nil {
			return model.InstanceSettings{}, fmt.Errorf("settings: decodificar agenda: %w", err)
		}
	}
	s.UpdatedAt = parseTime(updatedAt)

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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (instance_id) DO UPDATE SET
			reject_calls = excluded.reject_calls,
			ignore_groups = excluded.ignore_groups,
			send_read_receipts = excluded.send_read_receipts,
			auto_reply_enabled = excluded.auto_reply_enabled,
			auto_reply_template = excluded.auto_reply_template,
			schedule = excluded.schedule,
			updated_at = excluded.updated_at
	`

	_, err = r.db.Conn.ExecContext(ctx, query,
		s.InstanceID, s.RejectCalls, s.IgnoreGroups, s.SendReadReceipts,
		s.AutoReplyEnabled, s.AutoReplyTemplate, string(scheduleJSON), formatTime(s.UpdatedAt),
	)
	if err != nil {
		return model.InstanceSettings{}, err
	}

	return s, nil
}

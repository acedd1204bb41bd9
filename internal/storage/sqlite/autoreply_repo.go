package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/zapgestor/zapgestor/internal/storage"
	"github.com/zapgestor/zapgestor/internal/storage/model"
)

type autoReplyLogRepo struct {
	db *DB
}

func NewAutoReplyLogRepository(db *DB) *autoReplyLogRepo {
	return &autoReplyLogRepo{db: db}
}

func (r *autoReplyLogRepo) Create(ctx context.Context, entry model.AutoReplyLog) (model.AutoReplyLog, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now().UTC()
	}

	query := `
		INSERT INTO auto_reply_logs (id, instance_id, contact_id, text, sent_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.Conn.ExecContext(ctx, query,
		entry.ID, entry.InstanceID, entry.ContactID, entry.Text, formatTime(entry.SentAt),
	)
	if err != nil {
		return model.AutoReplyLog{}, err
	}

	return entry, nil
}

func (r *autoReplyLogRepo) LastSince(ctx context.Context, instanceID, contactID string, since time.Time) (model.AutoReplyLog, error) {
	query := `
		SELECT id, instance_id, contact_id, text, sent_at
		FROM auto_reply_logs
		WHERE instance_id = ? AND contact_id = ? AND sent_at >= ?
		ORDER BY sent_at DESC
		LIMIT 1
	`

	var entry model.AutoReplyLog
	var sentAt string

	err := r.db.Conn.QueryRowContext(ctx, query, instanceID, contactID, formatTime(since)).Scan(
		&entry.ID, &entry.InstanceID, &entry.ContactID, &entry.Text, &sentAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AutoReplyLog{}, storage.ErrNotFound
	}
	if err != nil {
		return model.AutoReplyLog{}, err
	}

	entry.SentAt = parseTime(sentAt)
	return entry, nil
}

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

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
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		entry.ID, entry.InstanceID, entry.ContactID, entry.Text, entry.SentAt,
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
		WHERE instance_id = $1 AND contact_id = $2 AND sent_at >= $3
		ORDER BY sent_at DESC
		LIMIT 1
	`

	var entry model.AutoReplyLog
	err := r.db.Pool.QueryRow(ctx, query, instanceID, contactID, since).Scan(
		&entry.ID, &entry.InstanceID, &entry.ContactID, &entry.Text, &entry.SentAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AutoReplyLog{}, storage.ErrNotFound
	}
	if err != nil {
		return model.AutoReplyLog{}, err
	}

	return entry, nil
}

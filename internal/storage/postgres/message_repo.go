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

type messageRepo struct {
	db *DB
}

func NewMessageRepository(db *DB) *messageRepo {
	return &messageRepo{db: db}
}

const messageColumns = `
	id, instance_id, contact_id, external_id, from_me, type, COALESCE(text, ''),
	COALESCE(media_url, ''), COALESCE(media_mime, ''), COALESCE(media_size, 0),
	COALESCE(media_name, ''), COALESCE(quoted_id, ''), status, timestamp, created_at
`

func scanMessage(row pgx.Row) (model.Message, error) {
	var m model.Message
	err := row.Scan(
		&m.ID, &m.InstanceID, &m.ContactID, &m.ExternalID, &m.FromMe, &m.Type, &m.Text,
		&m.MediaURL, &m.MediaMime, &m.MediaSize,
		&m.MediaName, &m.QuotedID, &m.Status, &m.Timestamp, &m.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Message{}, storage.ErrNotFound
	}
	if err != nil {
		return model.Message{}, err
	}
	return m, nil
}

// Upsert usa (instance_id, external_id) como chave de idempotência.
// Reentrega do mesmo evento não duplica: o conflito é um no-op e o
// booleano de retorno indica se a linha foi de fato criada.
func (r *messageRepo) Upsert(ctx context.Context, msg model.Message) (model.Message, bool, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO messages (id, instance_id, contact_id, external_id, from_me, type, text, media_url, media_mime, media_size, media_name, quoted_id, status, timestamp, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (instance_id, external_id) DO NOTHING
	`

	result, err := r.db.Pool.Exec(ctx, query,
		msg.ID, msg.InstanceID, msg.ContactID, msg.ExternalID, msg.FromMe, string(msg.Type),
		nullIfEmpty(msg.Text), nullIfEmpty(msg.MediaURL), nullIfEmpty(msg.MediaMime), msg.MediaSize,
		nullIfEmpty(msg.MediaName), nullIfEmpty(msg.QuotedID), string(msg.Status), msg.Timestamp, msg.CreatedAt,
	)
	if err != nil {
		return model.Message{}, false, err
	}

	if result.RowsAffected() == 0 {
		existing, err := r.GetByExternalID(ctx, msg.InstanceID, msg.ExternalID)
		if err != nil {
			return model.Message{}, false, err
		}
		return existing, false, nil
	}

	return msg, true, nil
}

func (r *messageRepo) GetByExternalID(ctx context.Context, instanceID, externalID string) (model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE instance_id = $1 AND external_id = $2`
	return scanMessage(r.db.Pool.QueryRow(ctx, query, instanceID, externalID))
}

func (r *messageRepo) UpdateStatusByExternalID(ctx context.Context, instanceID, externalID string, status model.MessageStatus) error {
	query := `UPDATE messages SET status = $3 WHERE instance_id = $1 AND external_id = $2`
	result, err := r.db.Pool.Exec(ctx, query, instanceID, externalID, string(status))
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *messageRepo) ListByContact(ctx context.Context, contactID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE contact_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, contactID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

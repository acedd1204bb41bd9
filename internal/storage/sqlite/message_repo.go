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

func scanMessage(row rowScanner) (model.Message, error) {
	var m model.Message
	var timestamp, createdAt string

	err := row.Scan(
		&m.ID, &m.InstanceID, &m.ContactID, &m.ExternalID, &m.FromMe, &m.Type, &m.Text,
		&m.MediaURL, &m.MediaMime, &m.MediaSize,
		&m.MediaName, &m.QuotedID, &m.Status, &timestamp, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, storage.ErrNotFound
	}
	if err != nil {
		return model.Message{}, err
	}

	m.Timestamp = parseTime(timestamp)
	m.CreatedAt = parseTime(createdAt)

	return m, nil
}

// Upsert usa (instance_id, external_id) como chave de idempotência:
// reentrega não duplica. O booleano indica se a linha foi criada.
func (r *messageRepo) Upsert(ctx context.Context, msg model.Message) (model.Message, bool, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO messages (id, instance_id, contact_id, external_id, from_me, type, text, media_url, media_mime, media_size, media_name, quoted_id, status, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (instance_id, external_id) DO NOTHING
	`

	result, err := r.db.Conn.ExecContext(ctx, query,
		msg.ID, msg.InstanceID, msg.ContactID, msg.ExternalID, msg.FromMe, string(msg.Type),
		msg.Text, msg.MediaURL, msg.MediaMime, msg.MediaSize,
		msg.MediaName, msg.QuotedID, string(msg.Status),
		formatTime(msg.Timestamp), formatTime(msg.CreatedAt),
	)
	if err != nil {
		return model.Message{}, false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return model.Message{}, false, err
	}
	if affected == 0 {
		existing, err := r.GetByExternalID(ctx, msg.InstanceID, msg.ExternalID)
		if err != nil {
			return model.Message{}, false, err
		}
		return existing, false, nil
	}

	return msg, true, nil
}

func (r *messageRepo) GetByExternalID(ctx context.Context, instanceID, externalID string) (model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE instance_id = ? AND external_id = ?`
	return scanMessage(r.db.Conn.QueryRowContext(ctx, query, instanceID, externalID))
}

func (r *messageRepo) UpdateStatusByExternalID(ctx context.Context, instanceID, externalID string, status model.MessageStatus) error {
	query := `UPDATE messages SET status = ? WHERE instance_id = ? AND external_id = ?`
	result, err := r.db.Conn.ExecContext(ctx, query, string(status), instanceID, externalID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
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
		WHERE contact_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.Conn.QueryContext(ctx, query, contactID, limit)
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

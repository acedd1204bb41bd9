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

type contactRepo struct {
	db *DB
}

func NewContactRepository(db *DB) *contactRepo {
	return &contactRepo{db: db}
}

const contactColumns = `
	id, instance_id, remote_jid, COALESCE(phone, ''), COALESCE(name, ''),
	COALESCE(profile_pic_url, ''), contact_type, COALESCE(client_id, ''),
	last_message_at, created_at, updated_at
`

func scanContact(row rowScanner) (model.Contact, error) {
	var c model.Contact
	var lastMessageAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&c.ID, &c.InstanceID, &c.RemoteJID, &c.Phone, &c.Name,
		&c.ProfilePicURL, &c.Type, &c.ClientID,
		&lastMessageAt, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Contact{}, storage.ErrNotFound
	}
	if err != nil {
		return model.Contact{}, err
	}

	c.LastMessageAt = parseTimePtr(lastMessageAt)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)

	return c, nil
}

// Upsert insere pelo par natural (instance_id, remote_jid). Em conflito,
// atualiza apenas campos informados e nunca toca o vínculo de cliente.
func (r *contactRepo) Upsert(ctx context.Context, contact model.Contact) (model.Contact, error) {
	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}
	if contact.Type == "" {
		contact.Type = model.ContactTypeUnknown
	}
	now := formatTime(time.Now().UTC())

	query := `
		INSERT INTO contacts (id, instance_id, remote_jid, phone, name, profile_pic_url, contact_type, client_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)
		ON CONFLICT (instance_id, remote_jid) DO UPDATE SET
			phone = COALESCE(NULLIF(excluded.phone, ''), contacts.phone),
			name = COALESCE(NULLIF(excluded.name, ''), contacts.name),
			profile_pic_url = COALESCE(NULLIF(excluded.profile_pic_url, ''), contacts.profile_pic_url),
			updated_at = excluded.updated_at
	`

	_, err := r.db.Conn.ExecContext(ctx, query,
		contact.ID, contact.InstanceID, contact.RemoteJID,
		contact.Phone, contact.Name, contact.ProfilePicURL,
		string(contact.Type), now, now,
	)
	if err != nil {
		return model.Contact{}, err
	}

	return r.GetByRemoteJID(ctx, contact.InstanceID, contact.RemoteJID)
}

func (r *contactRepo) GetByID(ctx context.Context, id string) (model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = ?`
	return scanContact(r.db.Conn.QueryRowContext(ctx, query, id))
}

func (r *contactRepo) GetByRemoteJID(ctx context.Context, instanceID, remoteJID string) (model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE instance_id = ? AND remote_jid = ?`
	return scanContact(r.db.Conn.QueryRowContext(ctx, query, instanceID, remoteJID))
}

func (r *contactRepo) ListUnlinked(ctx context.Context, instanceID string, limit, offset int) ([]model.Contact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE client_id IS NULL
		  AND phone IS NOT NULL AND phone <> ''
		  AND (? = '' OR instance_id = ?)
		ORDER BY created_at
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.Conn.QueryContext(ctx, query, instanceID, instanceID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}

	return contacts, rows.Err()
}

func (r *contactRepo) CountByInstance(ctx context.Context, instanceID string) (int64, int64, error) {
	query := `
		SELECT COUNT(*), COUNT(client_id)
		FROM contacts
		WHERE (? = '' OR instance_id = ?)
	`

	var total, linked int64
	if err := r.db.Conn.QueryRowContext(ctx, query, instanceID, instanceID).Scan(&total, &linked); err != nil {
		return 0, 0, err
	}
	return total, linked, nil
}

func (r *contactRepo) SetClientLink(ctx context.Context, contactID, clientID string, contactType model.ContactType, name string) error {
	query := `
		UPDATE contacts
		SET client_id = ?,
			contact_type = ?,
			name = COALESCE(NULLIF(?, ''), name),
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Conn.ExecContext(ctx, query,
		clientID, string(contactType), name, formatTime(time.Now().UTC()), contactID,
	)
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

func (r *contactRepo) TouchLastMessage(ctx context.Context, contactID string, at time.Time) error {
	query := `UPDATE contacts SET last_message_at = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.Conn.ExecContext(ctx, query, formatTime(at), formatTime(time.Now().UTC()), contactID)
	return err
}

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

func scanContact(row pgx.Row) (model.Contact, error) {
	var c model.Contact
	err := row.Scan(
		&c.ID, &c.InstanceID, &c.RemoteJID, &c.Phone, &c.Name,
		&c.ProfilePicURL, &c.Type, &c.ClientID,
		&c.LastMessageAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Contact{}, storage.ErrNotFound
	}
	if err != nil {
		return model.Contact{}, err
	}
	return c, nil
}

// Upsert insere pelo par natural (instance_id, remote_jid). Em conflito,
// atualiza apenas campos informados: nome vazio não apaga o existente e o
// vínculo de cliente nunca é tocado aqui.
func (r *contactRepo) Upsert(ctx context.Context, contact model.Contact) (model.Contact, error) {
	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}
	if contact.Type == "" {
		contact.Type = model.ContactTypeUnknown
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO contacts (id, instance_id, remote_jid, phone, name, profile_pic_url, contact_type, client_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, $8, $8)
		ON CONFLICT (instance_id, remote_jid) DO UPDATE SET
			phone = COALESCE(NULLIF(EXCLUDED.phone, ''), contacts.phone),
			name = COALESCE(NULLIF(EXCLUDED.name, ''), contacts.name),
			profile_pic_url = COALESCE(NULLIF(EXCLUDED.profile_pic_url, ''), contacts.profile_pic_url),
			updated_at = EXCLUDED.updated_at
		RETURNING ` + contactColumns

	return scanContact(r.db.Pool.QueryRow(ctx, query,
		contact.ID, contact.InstanceID, contact.RemoteJID,
		nullIfEmpty(contact.Phone), nullIfEmpty(contact.Name),
		nullIfEmpty(contact.ProfilePicURL), string(contact.Type), now,
	))
}

func (r *contactRepo) GetByID(ctx context.Context, id string) (model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1`
	return scanContact(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *contactRepo) GetByRemoteJID(ctx context.Context, instanceID, remoteJID string) (model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE instance_id = $1 AND remote_jid = $2`
	return scanContact(r.db.Pool.QueryRow(ctx, query, instanceID, remoteJID))
}

func (r *contactRepo) ListUnlinked(ctx context.Context, instanceID string, limit, offset int) ([]model.Contact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE client_id IS NULL
		  AND phone IS NOT NULL AND phone <> ''
		  AND ($1 = '' OR instance_id = $1)
		ORDER BY created_at
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool.Query(ctx, query, instanceID, limit, offset)
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
		WHERE ($1 = '' OR instance_id = $1)
	`

	var total, linked int64
	if err := r.db.Pool.QueryRow(ctx, query, instanceID).Scan(&total, &linked); err != nil {
		return 0, 0, err
	}
	return total, linked, nil
}

func (r *contactRepo) SetClientLink(ctx context.Context, contactID, clientID string, contactType model.ContactType, name string) error {
	query := `
		UPDATE contacts
		SET client_id = $2,
			contact_type = $3,
			name = COALESCE(NULLIF($4, ''), name),
			updated_at = $5
		WHERE id = $1
	`

	result, err := r.db.Pool.Exec(ctx, query, contactID, clientID, string(contactType), name, time.Now().UTC())
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *contactRepo) TouchLastMessage(ctx context.Context, contactID string, at time.Time) error {
	query := `UPDATE contacts SET last_message_at = $2, updated_at = $3 WHERE id = $1`
	_, err := r.db.Pool.Exec(ctx, query, contactID, at, time.Now().UTC())
	return err
}

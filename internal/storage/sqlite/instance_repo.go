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

type instanceRepo struct {
	db *DB
}

func NewInstanceRepository(db *DB) *instanceRepo {
	return &instanceRepo{db: db}
}

const instanceColumns = `
	id, external_name, COALESCE(token, ''), display_name, status,
	COALESCE(qr_code, ''), qr_updated_at, COALESCE(phone_number, ''),
	COALESCE(timezone, ''), connected_at, last_seen_at, created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (model.Instance, error) {
	var inst model.Instance
	var qrUpdatedAt, connectedAt, lastSeenAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&inst.ID, &inst.ExternalName, &inst.Token, &inst.DisplayName, &inst.Status,
		&inst.QRCode, &qrUpdatedAt, &inst.PhoneNumber,
		&inst.Timezone, &connectedAt, &lastSeenAt, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Instance{}, storage.ErrNotFound
	}
	if err != nil {
		return model.Instance{}, err
	}

	inst.QRUpdatedAt = parseTimePtr(qrUpdatedAt)
	inst.ConnectedAt = parseTimePtr(connectedAt)
	inst.LastSeenAt = parseTimePtr(lastSeenAt)
	inst.CreatedAt = parseTime(createdAt)
	inst.UpdatedAt = parseTime(updatedAt)

	return inst, nil
}

func (r *instanceRepo) Create(ctx context.Context, inst model.Instance) (model.Instance, error) {
	if inst.ID == "" {
		inst.ID = uuid.New().String()
	}
	if inst.Status == "" {
		inst.Status = model.InstanceStatusDisconnected
	}
	now := time.Now().UTC()
	inst.CreatedAt = now
	inst.UpdatedAt = now

	query := `
		INSERT INTO instances (id, external_name, token, display_name, status, qr_code, qr_updated_at, phone_number, timezone, connected_at, last_seen_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Conn.ExecContext(ctx, query,
		inst.ID, inst.ExternalName, inst.Token, inst.DisplayName, string(inst.Status),
		inst.QRCode, formatTimePtr(inst.QRUpdatedAt), inst.PhoneNumber, inst.Timezone,
		formatTimePtr(inst.ConnectedAt), formatTimePtr(inst.LastSeenAt),
		formatTime(inst.CreatedAt), formatTime(inst.UpdatedAt),
	)
	if err != nil {
		return model.Instance{}, err
	}

	return inst, nil
}

func (r *instanceRepo) GetByID(ctx context.Context, id string) (model.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE id = ?`
	return scanInstance(r.db.Conn.QueryRowContext(ctx, query, id))
}

func (r *instanceRepo) GetByExternalName(ctx context.Context, externalName string) (model.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE external_name = ?`
	return scanInstance(r.db.Conn.QueryRowContext(ctx, query, externalName))
}

func (r *instanceRepo) List(ctx context.Context) ([]model.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances ORDER BY created_at DESC`

	rows, err := r.db.Conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []model.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}

	return instances, rows.Err()
}

func (r *instanceRepo) Update(ctx context.Context, inst model.Instance) (model.Instance, error) {
	inst.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE instances
		SET external_name = ?, token = ?, display_name = ?, status = ?, qr_code = ?, qr_updated_at = ?, phone_number = ?, timezone = ?, connected_at = ?, last_seen_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Conn.ExecContext(ctx, query,
		inst.ExternalName, inst.Token, inst.DisplayName, string(inst.Status),
		inst.QRCode, formatTimePtr(inst.QRUpdatedAt), inst.PhoneNumber, inst.Timezone,
		formatTimePtr(inst.ConnectedAt), formatTimePtr(inst.LastSeenAt),
		formatTime(inst.UpdatedAt), inst.ID,
	)
	if err != nil {
		return model.Instance{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return model.Instance{}, err
	}
	if affected == 0 {
		return model.Instance{}, storage.ErrNotFound
	}

	return inst, nil
}

func (r *instanceRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.Conn.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id)
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

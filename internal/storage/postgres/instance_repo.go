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

func scanInstance(row pgx.Row) (model.Instance, error) {
	var inst model.Instance
	err := row.Scan(
		&inst.ID, &inst.ExternalName, &inst.Token, &inst.DisplayName, &inst.Status,
		&inst.QRCode, &inst.QRUpdatedAt, &inst.PhoneNumber,
		&inst.Timezone, &inst.ConnectedAt, &inst.LastSeenAt, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Instance{}, storage.ErrNotFound
	}
	if err != nil {
		return model.Instance{}, err
	}
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + instanceColumns

	return scanInstance(r.db.Pool.QueryRow(ctx, query,
		inst.ID, inst.ExternalName, nullIfEmpty(inst.Token), inst.DisplayName, string(inst.Status),
		nullIfEmpty(inst.QRCode), inst.QRUpdatedAt, nullIfEmpty(inst.PhoneNumber),
		nullIfEmpty(inst.Timezone), inst.ConnectedAt, inst.LastSeenAt, inst.CreatedAt, inst.UpdatedAt,
	))
}

func (r *instanceRepo) GetByID(ctx context.Context, id string) (model.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE id = $1`
	return scanInstance(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *instanceRepo) GetByExternalName(ctx context.Context, externalName string) (model.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE external_name = $1`
	return scanInstance(r.db.Pool.QueryRow(ctx, query, externalName))
}

func (r *instanceRepo) List(ctx context.Context) ([]model.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances ORDER BY created_at DESC`

	rows, err := r.db.Pool.Query(ctx, query)
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
		SET external_name = $2, token = $3, display_name = $4, status = $5, qr_code = $6, qr_updated_at = $7, phone_number = $8, timezone = $9, connected_at = $10, last_seen_at = $11, updated_at = $12
		WHERE id = $1
		RETURNING ` + instanceColumns

	return scanInstance(r.db.Pool.QueryRow(ctx, query,
		inst.ID, inst.ExternalName, nullIfEmpty(inst.Token), inst.DisplayName, string(inst.Status),
		nullIfEmpty(inst.QRCode), inst.QRUpdatedAt, nullIfEmpty(inst.PhoneNumber),
		nullIfEmpty(inst.Timezone), inst.ConnectedAt, inst.LastSeenAt, inst.UpdatedAt,
	))
}

func (r *instanceRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM instances WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func nullIfEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/zapgestor/zapgestor/internal/storage"
	"github.com/zapgestor/zapgestor/internal/storage/model"
)

// clientRepo lê o cadastro de clientes do CRM. Somente leitura: o vínculo
// acontece do lado do contato.
type clientRepo struct {
	db *DB
}

func NewClientRepository(db *DB) *clientRepo {
	return &clientRepo{db: db}
}

func (r *clientRepo) GetByID(ctx context.Context, id string) (model.Client, error) {
	query := `SELECT id, name, COALESCE(phone, '') FROM clients WHERE id = $1`

	var c model.Client
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Client{}, storage.ErrNotFound
	}
	if err != nil {
		return model.Client{}, err
	}
	return c, nil
}

func (r *clientRepo) List(ctx context.Context) ([]model.Client, error) {
	query := `SELECT id, name, COALESCE(phone, '') FROM clients ORDER BY name`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []model.Client
	for rows.Next() {
		var c model.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}

	return clients, rows.Err()
}

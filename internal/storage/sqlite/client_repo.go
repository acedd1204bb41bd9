package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/zapgestor/zapgestor/internal/storage"
	"github.com/zapgestor/zapgestor/internal/storage/model"
)

// clientRepo lê o cadastro de clientes do CRM. Somente leitura.
type clientRepo struct {
	db *DB
}

func NewClientRepository(db *DB) *clientRepo {
	return &clientRepo{db: db}
}

func (r *clientRepo) GetByID(ctx context.Context, id string) (model.Client, error) {
	query := `SELECT id, name, COALESCE(phone, '') FROM clients WHERE id = ?`

	var c model.Client
	err := r.db.Conn.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Name, &c.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Client{}, storage.ErrNotFound
	}
	if err != nil {
		return model.Client{}, err
	}
	return c, nil
}

func (r *clientRepo) List(ctx context.Context) ([]model.Client, error) {
	query := `SELECT id, name, COALESCE(phone, '') FROM clients ORDER BY name`

	rows, err := r.db.Conn.QueryContext(ctx, query)
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

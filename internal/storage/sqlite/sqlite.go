package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

type DB struct {
	Conn *sql.DB
	log  *zap.Logger
}

func New(dataDir string, log *zap.Logger) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("sqlite: criar diretório: %w", err)
	}

	dbPath := filepath.Join(dataDir, "zapgestor.db")
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: falha ao abrir: %w", err)
	}

	// SQLite não suporta múltiplas escritas simultâneas.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("sqlite: falha ao ping: %w", err)
	}

	log.Info("sqlite: conectado com sucesso",
		zap.String("path", dbPath),
	)

	return &DB{Conn: db, log: log}, nil
}

func (db *DB) Close() error {
	if db.Conn != nil {
		return db.Conn.Close()
	}
	return nil
}

// Timestamps são gravados como texto de largura fixa em UTC. Comparações e
// ordenação acontecem direto na coluna TEXT, então a fração de segundo
// precisa ter sempre o mesmo tamanho.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	// Compatibilidade com bancos gravados antes da largura fixa.
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

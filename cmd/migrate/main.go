package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/mattn/go-sqlite3"

	"github.com/zapgestor/zapgestor/internal/config"
)

func main() {
	pgDir := flag.String("migrations", "db/migrations/postgres", "Diretório de migrations PostgreSQL")
	sqliteDir := flag.String("migrations-sqlite", "db/migrations/sqlite", "Diretório de migrations SQLite")
	seedsDir := flag.String("seeds", "db/seeds", "Diretório de seeds")
	withSeeds := flag.Bool("with-seeds", false, "Executar seeds após migrations")
	flag.Parse()

	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch cfg.Storage.Driver {
	case "sqlite", "":
		log.Println("migrate: usando SQLite")
		runSQLite(ctx, cfg, *sqliteDir, *seedsDir, *withSeeds)
	case "postgres":
		log.Println("migrate: usando PostgreSQL")
		runPostgres(ctx, cfg, *pgDir, *seedsDir, *withSeeds)
	default:
		log.Fatalf("migrate: driver desconhecido: %s", cfg.Storage.Driver)
	}
}

func runSQLite(ctx context.Context, cfg config.Config, dir, seedsDir string, withSeeds bool) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		log.Fatalf("migrate: erro ao criar diretório: %v", err)
	}

	dbPath := filepath.Join(cfg.Storage.DataDir, "zapgestor.db")
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", dbPath))
	if err != nil {
		log.Fatalf("migrate: falha ao abrir SQLite: %v", err)
	}
	defer db.Close()

	log.Printf("migrate: conectado ao SQLite em %s", dbPath)

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`)
	if err != nil {
		log.Fatalf("migrate: falha ao preparar schema_migrations: %v", err)
	}

	exec := func(ctx context.Context, statements string) error {
		// O driver aceita um comando por Exec; arquivos trazem vários.
		for _, stmt := range strings.Split(statements, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	}

	applied := func(ctx context.Context, version string) (bool, error) {
		var count int
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&count)
		return count > 0, err
	}

	record := func(ctx context.Context, version string) error {
		_, err := db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version)
		return err
	}

	if err := apply(ctx, dir, exec, applied, record); err != nil {
		log.Fatalf("migrate: erro ao aplicar migrations: %v", err)
	}
	if withSeeds {
		if err := seed(ctx, filepath.Join(seedsDir, "sqlite"), exec); err != nil {
			log.Fatalf("migrate: erro ao executar seeds: %v", err)
		}
	}

	log.Println("migrate: concluído com sucesso.")
}

func runPostgres(ctx context.Context, cfg config.Config, dir, seedsDir string, withSeeds bool) {
	pool, err := pgxpool.New(ctx, cfg.DB.DSN())
	if err != nil {
		log.Fatalf("migrate: falha ao conectar no banco: %v", err)
	}
	defer pool.Close()

	log.Println("migrate: conectado ao PostgreSQL")

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Fatalf("migrate: falha ao preparar schema_migrations: %v", err)
	}

	exec := func(ctx context.Context, statements string) error {
		statements = strings.TrimSpace(statements)
		if statements == "" {
			return nil
		}
		execCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		_, err := pool.Exec(execCtx, statements)
		return err
	}

	applied := func(ctx context.Context, version string) (bool, error) {
		var exists bool
		err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, version).Scan(&exists)
		return exists, err
	}

	record := func(ctx context.Context, version string) error {
		_, err := pool.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version)
		return err
	}

	if err := apply(ctx, dir, exec, applied, record); err != nil {
		log.Fatalf("migrate: erro ao aplicar migrations: %v", err)
	}
	if withSeeds {
		if err := seed(ctx, filepath.Join(seedsDir, "postgres"), exec); err != nil {
			log.Fatalf("migrate: erro ao executar seeds: %v", err)
		}
	}

	log.Println("migrate: concluído com sucesso.")
}

type execFunc func(ctx context.Context, statements string) error

func apply(
	ctx context.Context,
	dir string,
	exec execFunc,
	applied func(ctx context.Context, version string) (bool, error),
	record func(ctx context.Context, version string) error,
) error {
	files, err := listSQLFiles(dir, ".up.sql")
	if err != nil {
		return fmt.Errorf("listar migrations: %w", err)
	}
	if len(files) == 0 {
		log.Printf("migrate: nenhum arquivo .up.sql encontrado em %s", dir)
		return nil
	}

	for _, file := range files {
		version := filepath.Base(file)
		done, err := applied(ctx, version)
		if err != nil {
			return fmt.Errorf("verificar %s: %w", version, err)
		}
		if done {
			continue
		}

		log.Printf("migrate: aplicando %s ...", version)
		stmt, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("ler %s: %w", version, err)
		}
		if err := exec(ctx, string(stmt)); err != nil {
			return fmt.Errorf("executar %s: %w", version, err)
		}
		if err := record(ctx, version); err != nil {
			return fmt.Errorf("registrar %s: %w", version, err)
		}

		log.Printf("migrate: %s aplicado.", version)
	}
	return nil
}

func seed(ctx context.Context, dir string, exec execFunc) error {
	files, err := listSQLFiles(dir, ".sql")
	if err != nil {
		return fmt.Errorf("listar seeds: %w", err)
	}
	if len(files) == 0 {
		log.Printf("migrate: nenhum seed encontrado em %s", dir)
		return nil
	}

	for _, file := range files {
		stmt, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("ler seed %s: %w", file, err)
		}
		if err := exec(ctx, string(stmt)); err != nil {
			return fmt.Errorf("executar seed %s: %w", file, err)
		}
		log.Printf("migrate: seed %s aplicado", filepath.Base(file))
	}
	return nil
}

func listSQLFiles(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, suffix) {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}

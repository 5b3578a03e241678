package db

import (
	"embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Connect opens the database, waiting for it to come up, and applies migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := connectWithRetry(dsn, 8, time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	db.SetMaxOpenConns(40)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

func connectWithRetry(dsn string, attempts int, wait time.Duration) (*sqlx.DB, error) {
	var last error
	for i := 1; i <= attempts; i++ {
		db, err := sqlx.Connect("postgres", dsn)
		if err == nil {
			return db, nil
		}
		last = err
		log.Warn().Err(err).Int("attempt", i).Msg("database not ready")
		time.Sleep(wait)
		if wait < 8*time.Second {
			wait *= 2
		}
	}
	return nil, last
}

func runMigrations(db *sqlx.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetTableName("goose_migrations")
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return err
	}
	version, err := goose.GetDBVersion(db.DB)
	if err != nil {
		return err
	}
	log.Info().Int64("version", version).Msg("database migrations applied")
	return nil
}

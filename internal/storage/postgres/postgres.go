package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"evently/internal/storage"
	"evently/internal/storage/sqlstore"
)

const uniqueViolation = "23505"

func init() {
	storage.RegisterFactory("postgres", New)
}

var Dialect = sqlstore.Dialect{
	Name:              "postgres",
	Numbered:          true,
	IsUniqueViolation: isUniqueViolation,
}

func New(dsn string) (storage.StorageInterface, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres: dsn is required")
	}

	slog.Info("Initializing Postgres storage")

	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store, err := sqlstore.Open(conn, Dialect)
	if err != nil {
		conn.Close()
		return nil, err
	}

	slog.Info("Storage initialized successfully")
	return store, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

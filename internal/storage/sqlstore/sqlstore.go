// Package sqlstore implements the task and event stores on database/sql.
// Backends differ only in their Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"

	"evently/internal/storage"
)

//go:embed migrations
var migrations embed.FS

// goose keeps its dialect and base FS in package globals.
var migrateMu sync.Mutex

type Dialect struct {
	// Goose dialect name, also the migrations subdirectory.
	Name string
	// Numbered switches ? placeholders to $1, $2, ...
	Numbered          bool
	IsUniqueViolation func(error) bool
}

func (d Dialect) rebind(query string) string {
	if !d.Numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type Store struct {
	conn    *sql.DB
	dialect Dialect
	tasks   *taskStore
	events  *eventStore
}

var _ storage.StorageInterface = (*Store)(nil)

// Open migrates conn and wraps it. The store takes ownership of conn.
func Open(conn *sql.DB, dialect Dialect) (*Store, error) {
	if dialect.IsUniqueViolation == nil {
		dialect.IsUniqueViolation = func(error) bool { return false }
	}

	if err := Migrate(conn, dialect); err != nil {
		return nil, err
	}

	return &Store{
		conn:    conn,
		dialect: dialect,
		tasks:   &taskStore{db: conn, d: dialect},
		events:  &eventStore{db: conn, d: dialect},
	}, nil
}

func Migrate(conn *sql.DB, dialect Dialect) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	slog.Debug("Running database migrations", "dialect", dialect.Name)

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect.Name); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	dir := path.Join("migrations", migrationsDir(dialect.Name))
	if err := goose.Up(conn, dir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Debug("Migrations completed successfully")
	return nil
}

func migrationsDir(dialect string) string {
	if dialect == "sqlite3" {
		return "sqlite"
	}
	return dialect
}

func (s *Store) GetConnection() *sql.DB {
	return s.conn
}

func (s *Store) Tasks() storage.TaskStore {
	return s.tasks
}

func (s *Store) Events() storage.EventStore {
	return s.events
}

func (s *Store) Close(ctx context.Context) error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRebind(t *testing.T) {
	numbered := Dialect{Numbered: true}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)",
		numbered.rebind("SELECT * FROM t WHERE a = ? AND b IN (?, ?)"))

	plain := Dialect{}
	assert.Equal(t, "a = ?", plain.rebind("a = ?"))
}

func TestMigrationsDir(t *testing.T) {
	assert.Equal(t, "sqlite", migrationsDir("sqlite3"))
	assert.Equal(t, "postgres", migrationsDir("postgres"))
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	for _, dir := range []string{"migrations/sqlite", "migrations/postgres"} {
		entries, err := migrations.ReadDir(dir)
		assert.NoError(t, err)
		assert.Len(t, entries, 2, dir)
	}
}

package migrations

import (
	"io/fs"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteFS(t *testing.T) {
	entries, err := fs.ReadDir(SQLite(), ".")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "001_create_scans.up.sql", entries[0].Name())
}

func TestPostgresSource(t *testing.T) {
	src, err := iofs.New(postgresFS, "postgres")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)
}

func TestUpPostgres_BadURL(t *testing.T) {
	assert.Error(t, UpPostgres("not-a-database-url"))
}

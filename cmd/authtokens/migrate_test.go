package main

import (
	"errors"
	"net/url"
	"os"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMigrationStepsArg(t *testing.T) {
	steps, ok, err := parseMigrationStepsArg(nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, steps)

	steps, ok, err = parseMigrationStepsArg([]string{" 2 "})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, steps)

	for _, bad := range []string{"0", "-1", "two"} {
		_, _, err := parseMigrationStepsArg([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestApplyMigrationsTable(t *testing.T) {
	out, err := applyMigrationsTable("postgres://u:p@localhost:5432/db?sslmode=disable", defaultMigrationsTable)
	require.NoError(t, err)
	parsed, err := url.Parse(out)
	require.NoError(t, err)
	assert.Equal(t, defaultMigrationsTable, parsed.Query().Get("x-migrations-table"))
	assert.Equal(t, "disable", parsed.Query().Get("sslmode"))

	explicit := "postgres://localhost/db?x-migrations-table=custom"
	out, err = applyMigrationsTable(explicit, defaultMigrationsTable)
	require.NoError(t, err)
	assert.Equal(t, explicit, out)
}

func TestResolveDatabaseURL(t *testing.T) {
	t.Setenv("AUTHTOKENS_MIGRATE_DATABASE_URL", "postgres://env/db")
	root := &rootOptions{}

	got, err := resolveDatabaseURL(root, "postgres://flag/db")
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag/db", got)

	got, err = resolveDatabaseURL(root, "")
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", got)

	t.Setenv("AUTHTOKENS_MIGRATE_DATABASE_URL", "")
	_, err = resolveDatabaseURL(root, "")
	assert.Error(t, err)
}

func TestIsNoChangeBoundaryError(t *testing.T) {
	assert.False(t, isNoChangeBoundaryError(nil))
	assert.True(t, isNoChangeBoundaryError(migrate.ErrNoChange))
	assert.True(t, isNoChangeBoundaryError(os.ErrNotExist))
	assert.False(t, isNoChangeBoundaryError(errors.New("boom")))
}

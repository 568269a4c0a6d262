package migrate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSQLMigrationSortsAfterExisting(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	first, err := createSQLMigration(dir, "Add Agent Zones", now)
	require.NoError(t, err)
	assert.Equal(t, "20240301090000_add_agent_zones.sql", filepath.Base(first))

	second, err := createSQLMigration(dir, "add zone index", now)
	require.NoError(t, err)
	assert.Equal(t, "20240301090001_add_zone_index.sql", filepath.Base(second))

	require.NoError(t, ValidateDir(dir))
}

func TestCreateSQLMigrationRejectsEmptyName(t *testing.T) {
	_, err := createSQLMigration(t.TempDir(), " !! ", time.Now())
	assert.Error(t, err)
}

func TestValidateDirReportsEveryProblem(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("20240301090000_ok.sql", "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n")
	write("20240301090000_dup.sql", "-- +goose Up\n-- +goose Down\n")
	write("bad-name.sql", "-- +goose Up\n-- +goose Down\n")
	write("20240301090100_reversed.sql", "-- +goose Down\n-- +goose Up\n")

	err := ValidateDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate migration version")
	assert.Contains(t, err.Error(), "invalid migration filename")
	assert.Contains(t, err.Error(), "Down section before Up")
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("20240301090400")
	require.NoError(t, err)
	assert.Equal(t, int64(20240301090400), v)

	_, err = ParseVersion("2024")
	assert.Error(t, err)
	_, err = ParseVersion("")
	assert.Error(t, err)
}

package postgres

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert user: %w", &pgconn.PgError{Code: "23505"})
	check := &pgconn.PgError{Code: "23514"}

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(check))
	assert.True(t, IsCheckViolation(check))
	assert.False(t, IsCheckViolation(errors.New("boom")))
}

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	b, err := fs.ReadFile(migrations, files[0])
	require.NoError(t, err)
	sql := string(b)
	assert.True(t, strings.HasPrefix(sql, "-- +goose Up"))
	assert.Contains(t, sql, "reserved <= max_capacity")
	assert.Contains(t, sql, "-- +goose Down")
}

func TestValidUUID(t *testing.T) {
	assert.True(t, ValidUUID("0b1c2d3e-4f50-4a6b-8c7d-9e0f1a2b3c4d"))
	assert.True(t, ValidUUID())
	assert.False(t, ValidUUID(""))
	assert.False(t, ValidUUID("inv-1"))
	assert.False(t, ValidUUID("0b1c2d3e-4f50-4a6b-8c7d-9e0f1a2b3c4d", "not-a-uuid"))
}

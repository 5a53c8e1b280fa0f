// Package migrations embeds the authd SQL schema.
package migrations

import (
	_ "embed"
	"strings"

	"github.com/jackc/pgx/v5"
)

// DefaultSchema is the schema name used by 0001_auth.sql.
const DefaultSchema = "auth"

//go:embed 0001_auth.sql
var authSQL string

// Auth returns the schema DDL as shipped.
func Auth() string { return authSQL }

// AuthForSchema returns the schema DDL retargeted at schema.
// Integration tests use it to run against an isolated, throwaway schema.
func AuthForSchema(schema string) string {
	if schema == "" || schema == DefaultSchema {
		return authSQL
	}
	q := pgx.Identifier{schema}.Sanitize()
	out := strings.ReplaceAll(authSQL, "SCHEMA IF NOT EXISTS "+DefaultSchema+";", "SCHEMA IF NOT EXISTS "+q+";")
	return strings.ReplaceAll(out, DefaultSchema+".", q+".")
}

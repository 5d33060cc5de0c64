// Package postgres implements the internal/store interfaces on PostgreSQL
// through database/sql and the pgx stdlib driver. It also owns the schema:
// goose migrations are embedded in the binary and applied by Migrate.
package postgres

// Package postgres ships reference Postgres implementations of the
// credential and API-key stores, built on pgx with SQL assembled through
// squirrel. Schema is in schema.sql; apply it with [Store.EnsureSchema] or
// through your own migration tooling.
package postgres

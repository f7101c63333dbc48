// Package postgres implements store.Store using pgx/v5 with raw SQL.
// Features: SKIP LOCKED queue pops, conditional-UPDATE schedule entry
// locks, embedded SQL migrations.
package postgres

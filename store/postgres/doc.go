// Package postgres implements the store using pgx/v5 with raw SQL.
//
// Response identities are stored as BIGINT. A partial index over
// unprocessed rows keeps the recovery scan proportional to the backlog
// rather than to the table. Schema changes ship as embedded SQL files
// applied in filename order by Migrate.
package postgres

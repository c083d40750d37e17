package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	errx "github.com/receiptqa/server/internal/core/error"
	logx "github.com/receiptqa/server/pkg/logger"
)

// DB is the subset of pgxpool.Pool used by the repository, so that
// pgxmock.PgxPoolIface can stand in for it in tests.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const (
	RelationView  = "VIEW"
	RelationTable = "BASE TABLE"
)

const tablesSchemaQuery = `
SELECT
    t.table_schema AS table_schema,
    t.table_name AS table_name,
    obj_description((quote_ident(t.table_schema) || '.' || quote_ident(t.table_name))::regclass, 'pg_class') AS table_comment
FROM information_schema.tables t
WHERE t.table_schema NOT IN ('pg_catalog', 'information_schema') AND t.table_type = ANY($1)
ORDER BY t.table_schema, t.table_name`

const columnsSchemaQuery = `
SELECT
    c.column_name AS column_name,
    c.data_type AS column_type,
    pg_catalog.col_description((quote_ident(c.table_schema) || '.' || quote_ident(c.table_name))::regclass, c.ordinal_position) AS column_comment
FROM information_schema.columns AS c
WHERE c.table_schema = $1 AND c.table_name = $2
ORDER BY c.ordinal_position`

// Table describes one relation visible to the SQL agent.
type Table struct {
	Schema  string
	Name    string
	Comment *string
}

// Column describes one column of a relation.
type Column struct {
	Name    string
	Type    string
	Comment *string
}

// Row is a single result row keyed by column name.
type Row = map[string]any

type Repository struct {
	db            DB
	relationTypes []string
}

// NewRepository builds a repository exposing the given relation types
// (RelationView, RelationTable). Views only when none are given.
func NewRepository(db DB, relationTypes ...string) *Repository {
	if len(relationTypes) == 0 {
		relationTypes = []string{RelationView}
	}
	return &Repository{db: db, relationTypes: relationTypes}
}

func (r *Repository) TablesSchema(ctx context.Context) ([]Table, error) {
	rows, err := r.db.Query(ctx, tablesSchemaQuery, r.relationTypes)
	if err != nil {
		logx.Error().Err(err).Msg("failed to query tables schema")
		return nil, errx.WrapPostgres(err)
	}
	tables, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Table, error) {
		var t Table
		err := row.Scan(&t.Schema, &t.Name, &t.Comment)
		return t, err
	})
	if err != nil {
		return nil, errx.WrapPostgres(fmt.Errorf("scan tables schema: %w", err))
	}
	return tables, nil
}

func (r *Repository) ColumnsSchema(ctx context.Context, tableSchema, tableName string) ([]Column, error) {
	rows, err := r.db.Query(ctx, columnsSchemaQuery, tableSchema, tableName)
	if err != nil {
		logx.Error().Err(err).Str("table", tableSchema+"."+tableName).Msg("failed to query columns schema")
		return nil, errx.WrapPostgres(err)
	}
	columns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Column, error) {
		var c Column
		err := row.Scan(&c.Name, &c.Type, &c.Comment)
		return c, err
	})
	if err != nil {
		return nil, errx.WrapPostgres(fmt.Errorf("scan columns schema: %w", err))
	}
	return columns, nil
}

// ExecuteQuery runs a generated query once and returns its rows. No retry,
// no caching.
func (r *Repository) ExecuteQuery(ctx context.Context, sql string) ([]Row, error) {
	rows, err := r.db.Query(ctx, sql)
	if err != nil {
		return nil, errx.WrapPostgres(err)
	}
	result, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, errx.WrapPostgres(err)
	}
	if result == nil {
		result = []Row{}
	}
	return result, nil
}

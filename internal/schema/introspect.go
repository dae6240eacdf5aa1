package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/lithammer/dedent"

	"github.com/hurou927/tsdb-report/internal/db"
)

// Queries are dedented so they read cleanly in debug logs and test expectations.
var (
	TablesQuery = dedent.Dedent(`
		SELECT
			n.nspname AS schema_name,
			c.relname AS table_name,
			c.relkind = 'p' AS partitioned,
			a.attname AS column_name,
			format_type(a.atttypid, a.atttypmod) AS data_type,
			NOT a.attnotnull AS is_nullable,
			a.attnum AS ordinal_position
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_attribute a ON a.attrelid = c.oid
		WHERE c.relkind IN ('r', 'p')
			AND NOT c.relispartition
			AND a.attnum > 0
			AND NOT a.attisdropped
			AND n.nspname = ANY($1)
		ORDER BY n.nspname, c.relname, a.attnum
	`)

	IndexesQuery = dedent.Dedent(`
		SELECT
			n.nspname AS schema_name,
			t.relname AS table_name,
			i.relname AS index_name,
			am.amname AS method,
			ix.indisprimary AS is_primary,
			ix.indisunique AS is_unique,
			array_to_string(ARRAY(
				SELECT pg_get_indexdef(ix.indexrelid, k + 1, true)
				FROM generate_subscripts(ix.indkey, 1) AS k
				ORDER BY k
			), ', ') AS columns
		FROM pg_index ix
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_am am ON am.oid = i.relam
		WHERE t.relkind IN ('r', 'p')
			AND n.nspname = ANY($1)
		ORDER BY n.nspname, t.relname, ix.indisprimary DESC, i.relname
	`)
)

// Introspect queries PostgreSQL catalogs and returns all tables with columns,
// primary keys and indexes, ordered by schema and name.
func Introspect(ctx context.Context, q db.Querier, schemas []string) ([]*Table, error) {
	tables, err := queryTablesAndColumns(ctx, q, schemas)
	if err != nil {
		return nil, fmt.Errorf("querying tables and columns: %w", err)
	}

	if err := queryIndexes(ctx, q, schemas, tables); err != nil {
		return nil, fmt.Errorf("querying indexes: %w", err)
	}

	return tables, nil
}

func queryTablesAndColumns(ctx context.Context, q db.Querier, schemas []string) ([]*Table, error) {
	rows, err := q.QueryContext(ctx, TablesQuery, schemas)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []*Table
	byKey := make(map[string]*Table)
	for rows.Next() {
		var schemaName, tableName, colName, dataType string
		var partitioned, nullable bool
		var ordPos int
		if err := rows.Scan(&schemaName, &tableName, &partitioned, &colName, &dataType, &nullable, &ordPos); err != nil {
			return nil, err
		}

		key := schemaName + "." + tableName
		tbl, ok := byKey[key]
		if !ok {
			tbl = &Table{
				Schema:      schemaName,
				Name:        tableName,
				Partitioned: partitioned,
			}
			byKey[key] = tbl
			tables = append(tables, tbl)
		}
		tbl.Columns = append(tbl.Columns, Column{
			Name:     colName,
			DataType: dataType,
			Nullable: nullable,
			OrdPos:   ordPos,
		})
	}

	return tables, rows.Err()
}

func queryIndexes(ctx context.Context, q db.Querier, schemas []string, tables []*Table) error {
	rows, err := q.QueryContext(ctx, IndexesQuery, schemas)
	if err != nil {
		return err
	}
	defer rows.Close()

	byKey := make(map[string]*Table, len(tables))
	for _, t := range tables {
		byKey[t.FullName()] = t
	}

	for rows.Next() {
		var schemaName, tableName, columns string
		var idx Index
		if err := rows.Scan(&schemaName, &tableName, &idx.Name, &idx.Method, &idx.IsPrimary, &idx.IsUnique, &columns); err != nil {
			return err
		}

		tbl, ok := byKey[schemaName+"."+tableName]
		if !ok {
			continue
		}
		if columns != "" {
			idx.Columns = strings.Split(columns, ", ")
		}
		if idx.IsPrimary && tbl.PrimaryKey == nil {
			tbl.PrimaryKey = &PrimaryKey{Columns: idx.Columns}
		}
		tbl.Indexes = append(tbl.Indexes, idx)
	}

	return rows.Err()
}

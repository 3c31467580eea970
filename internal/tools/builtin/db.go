package builtin

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/stagehand-ai/stagehand/internal/tools"
	"github.com/stagehand-ai/stagehand/pkg/models"
)

// maxQueryRows caps rows returned to the model.
const maxQueryRows = 200

// DBTools returns the database tool family over the given connection.
func DBTools(db *sql.DB) []tools.Tool {
	return []tools.Tool{
		tools.New(tools.Spec{
			Name:        "db_query",
			Description: "Run a read-only SQL query (SELECT) against the application database. Use $1, $2 placeholders with the params array.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"sql": {"type": "string", "description": "SQL statement with $n placeholders"},
					"params": {"type": "array", "description": "Positional query parameters"}
				},
				"required": ["sql"]
			}`),
			RequiredRoles:     tools.RolesAtLeast(models.RoleDev),
			SafeForProduction: true,
		}, func(ctx context.Context, args map[string]any) (any, error) {
			query, err := stringArg(args, "sql")
			if err != nil {
				return nil, err
			}
			return queryRows(ctx, db, query, sliceArg(args, "params"))
		}),

		tools.New(tools.Spec{
			Name:        "db_execute",
			Description: "Execute a data-modifying SQL statement (INSERT, UPDATE, DELETE). Use $1, $2 placeholders with the params array.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"sql": {"type": "string"},
					"params": {"type": "array"}
				},
				"required": ["sql"]
			}`),
			RequiredRoles:     tools.RolesAtLeast(models.RoleOperator),
			SafeForProduction: false,
		}, func(ctx context.Context, args map[string]any) (any, error) {
			query, err := stringArg(args, "sql")
			if err != nil {
				return nil, err
			}
			res, err := db.ExecContext(ctx, query, sliceArg(args, "params")...)
			if err != nil {
				return nil, err
			}
			affected, _ := res.RowsAffected()
			return map[string]any{"rows_affected": affected}, nil
		}),

		tools.New(tools.Spec{
			Name:        "db_tables",
			Description: "List tables in the public schema of the application database.",
			InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
			RequiredRoles:     tools.RolesAtLeast(models.RoleReadonly),
			SafeForProduction: true,
		}, func(ctx context.Context, args map[string]any) (any, error) {
			return queryRows(ctx, db,
				`SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name`, nil)
		}),

		tools.New(tools.Spec{
			Name:        "db_schema",
			Description: "Describe the columns of one table: name, type, nullability.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"table": {"type": "string", "description": "Table name"}
				},
				"required": ["table"]
			}`),
			RequiredRoles:     tools.RolesAtLeast(models.RoleReadonly),
			SafeForProduction: true,
		}, func(ctx context.Context, args map[string]any) (any, error) {
			table, err := stringArg(args, "table")
			if err != nil {
				return nil, err
			}
			return queryRows(ctx, db,
				`SELECT column_name, data_type, is_nullable FROM information_schema.columns WHERE table_name = $1 ORDER BY ordinal_position`,
				[]any{table})
		}),

		tools.New(tools.Spec{
			Name:        "db_migrate",
			Description: "Run raw DDL against the database (CREATE, ALTER, DROP). Admin only.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"sql": {"type": "string", "description": "DDL statement"}
				},
				"required": ["sql"]
			}`),
			RequiredRoles:     []models.Role{models.RoleAdmin},
			SafeForProduction: false,
		}, func(ctx context.Context, args map[string]any) (any, error) {
			ddl, err := stringArg(args, "sql")
			if err != nil {
				return nil, err
			}
			if _, err := db.ExecContext(ctx, ddl); err != nil {
				return nil, err
			}
			return map[string]any{"ok": true}, nil
		}),
	}
}

func queryRows(ctx context.Context, db *sql.DB, query string, params []any) (any, error) {
	rows, err := db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		if len(out) >= maxQueryRows {
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return map[string]any{"rows": out, "count": len(out)}, nil
}

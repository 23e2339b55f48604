package connectors

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/tools"
)

// informationSchemaColumns feeds introspection on engines that expose the
// standard catalog. Drivers append their schema scoping clause.
const informationSchemaColumns = `SELECT table_name, column_name, data_type, is_nullable, character_maximum_length, column_default FROM information_schema.columns`

type sqlTable struct {
	name       string
	columns    []sqlColumn
	primaryKey []string
}

func (t *sqlTable) column(name string) *sqlColumn {
	for i := range t.columns {
		if t.columns[i].name == name {
			return &t.columns[i]
		}
	}
	return nil
}

// keyColumns are the columns identifying one record. Tables without a
// declared primary key fall back to an "id" column.
func (t *sqlTable) keyColumns() []string {
	if len(t.primaryKey) > 0 {
		return t.primaryKey
	}
	return []string{"id"}
}

type sqlColumn struct {
	name       string
	typ        string
	nullable   bool
	isPrimary  bool
	hasDefault bool
	maxLength  int
}

// SQLConnector generates CRUD tools from a database schema. The caller
// owns the *sql.DB; the connector never closes it.
type SQLConnector struct {
	db       *sql.DB
	driver   string
	prefix   string
	readOnly bool
	allow    map[string]bool
	tables   map[string]*sqlTable
	built    []tools.Tool
}

// SQLOption configures a SQLConnector.
type SQLOption func(*SQLConnector)

// WithSQLTables limits tool generation to the named tables.
func WithSQLTables(names ...string) SQLOption {
	return func(c *SQLConnector) {
		if c.allow == nil {
			c.allow = make(map[string]bool, len(names))
		}
		for _, name := range names {
			c.allow[name] = true
		}
	}
}

// WithSQLPrefix prefixes generated tool names, separated with an
// underscore.
func WithSQLPrefix(prefix string) SQLOption {
	return func(c *SQLConnector) { c.prefix = prefix }
}

// WithSQLReadOnly generates only the list and get tools.
func WithSQLReadOnly() SQLOption {
	return func(c *SQLConnector) { c.readOnly = true }
}

// NewSQL introspects the database schema and builds the connector.
// driver selects introspection queries, identifier quoting, and
// placeholder style; supported values are "sqlite", "postgres", and
// "mysql", with information_schema as the fallback.
func NewSQL(ctx context.Context, db *sql.DB, driver string, opts ...SQLOption) (*SQLConnector, error) {
	if db == nil {
		return nil, errors.Newf(errors.CodeValidation, "sql connector requires an open database")
	}
	c := &SQLConnector{db: db, driver: strings.ToLower(driver)}
	c.tables = make(map[string]*sqlTable)
	for _, opt := range opts {
		opt(c)
	}
	if err := c.introspect(ctx); err != nil {
		return nil, errors.New(errors.CodeValidation, "sql introspection failed", err)
	}
	if len(c.tables) == 0 {
		return nil, errors.Newf(errors.CodeValidation, "no tables discovered")
	}
	c.build()
	return c, nil
}

// Name implements Connector.
func (c *SQLConnector) Name() string { return "sql:" + c.driver }

// Tools implements Connector.
func (c *SQLConnector) Tools() []tools.Tool { return c.built }

// TableNames returns the discovered table names, sorted.
func (c *SQLConnector) TableNames() []string {
	return slices.Sorted(maps.Keys(c.tables))
}

func (c *SQLConnector) allowed(table string) bool {
	return len(c.allow) == 0 || c.allow[table]
}

func (c *SQLConnector) introspect(ctx context.Context) error {
	switch c.driver {
	case "sqlite", "sqlite3":
		return c.introspectPragma(ctx)
	}
	return c.introspectInformationSchema(ctx)
}

func (c *SQLConnector) introspectInformationSchema(ctx context.Context) error {
	query := informationSchemaColumns
	switch c.driver {
	case "postgres", "postgresql":
		query += " WHERE table_schema = 'public'"
	case "mysql":
		query += " WHERE table_schema = DATABASE()"
	}
	query += " ORDER BY table_name, ordinal_position"

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("introspect columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tbl      string
			col      sqlColumn
			nullable string
			length   sql.NullInt64
			dflt     sql.NullString
		)
		if err := rows.Scan(&tbl, &col.name, &col.typ, &nullable, &length, &dflt); err != nil {
			return fmt.Errorf("scan column row: %w", err)
		}
		if !c.allowed(tbl) {
			continue
		}
		col.nullable = strings.EqualFold(nullable, "YES")
		col.hasDefault = dflt.Valid
		col.maxLength = int(length.Int64)

		table := c.tables[tbl]
		if table == nil {
			table = &sqlTable{name: tbl}
			c.tables[tbl] = table
		}
		table.columns = append(table.columns, col)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	c.introspectPrimaryKeys(ctx)
	return nil
}

// introspectPragma reads the schema through PRAGMA table_info, which is
// the only portable way to get column metadata out of SQLite.
func (c *SQLConnector) introspectPragma(ctx context.Context) error {
	rows, err := c.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		if c.allowed(name) {
			names = append(names, name)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, tableName := range names {
		table := &sqlTable{name: tableName}

		cols, err := c.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", c.quote(tableName)))
		if err != nil {
			return fmt.Errorf("table %s: %w", tableName, err)
		}
		for cols.Next() {
			var cid, notNull, pk int
			var name, ctype string
			var dflt sql.NullString
			if err := cols.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
				cols.Close()
				return fmt.Errorf("table %s: %w", tableName, err)
			}
			table.columns = append(table.columns, sqlColumn{
				name:       name,
				typ:        ctype,
				nullable:   notNull == 0,
				isPrimary:  pk > 0,
				hasDefault: dflt.Valid,
			})
			if pk > 0 {
				table.primaryKey = append(table.primaryKey, name)
			}
		}
		cols.Close()
		if err := cols.Err(); err != nil {
			return err
		}

		c.tables[tableName] = table
	}
	return nil
}

// introspectPrimaryKeys fills in key columns where the driver exposes
// them. Failure is not fatal; tools fall back to an "id" column.
func (c *SQLConnector) introspectPrimaryKeys(ctx context.Context) {
	var query string
	switch c.driver {
	case "postgres", "postgresql":
		query = `SELECT kcu.table_name, kcu.column_name
			FROM information_schema.key_column_usage kcu
			JOIN information_schema.table_constraints tc ON tc.constraint_name = kcu.constraint_name
			WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = 'public'`
	case "mysql":
		query = `SELECT table_name, column_name FROM information_schema.key_column_usage
			WHERE constraint_name = 'PRIMARY' AND table_schema = DATABASE()`
	default:
		return
	}

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return
	}
	defer rows.Close()

	for rows.Next() {
		var tbl, colName string
		if err := rows.Scan(&tbl, &colName); err != nil {
			continue
		}
		table := c.tables[tbl]
		if table == nil {
			continue
		}
		table.primaryKey = append(table.primaryKey, colName)
		if col := table.column(colName); col != nil {
			col.isPrimary = true
		}
	}
}

// build generates tools in sorted table order so registration order is
// stable.
func (c *SQLConnector) build() {
	for _, name := range c.TableNames() {
		table := c.tables[name]
		c.built = append(c.built, c.listTool(table), c.getTool(table))
		if !c.readOnly {
			c.built = append(c.built, c.createTool(table), c.updateTool(table), c.deleteTool(table))
		}
	}
}

func (c *SQLConnector) toolName(operation string, table *sqlTable) string {
	name := operation + "_" + snakeCase(table.name)
	if c.prefix != "" {
		name = c.prefix + "_" + name
	}
	return name
}

func (c *SQLConnector) listTool(table *sqlTable) tools.Tool {
	colProps := map[string]any{}
	for _, col := range table.columns {
		colProps[col.name] = columnJSONSchema(col)
	}
	properties := map[string]any{
		"filters":    map[string]any{"type": "object", "description": "Equality filters (column: value)", "properties": colProps},
		"limit":      map[string]any{"type": "integer", "description": "Max rows returned", "default": 100},
		"offset":     map[string]any{"type": "integer", "description": "Rows skipped before the first result", "default": 0},
		"order_by":   map[string]any{"type": "string", "description": "Sort column"},
		"order_desc": map[string]any{"type": "boolean", "description": "Sort descending", "default": false},
	}
	def := tools.NewDefinition(c.toolName("list", table),
		fmt.Sprintf("List records from the %s table with optional filters", table.name), properties)
	return tools.New(def, func(ctx context.Context, args map[string]any) (any, error) {
		return c.listRows(ctx, table, args)
	})
}

func (c *SQLConnector) keyProperties(table *sqlTable) (map[string]any, []string) {
	props := map[string]any{}
	var required []string
	for _, pk := range table.keyColumns() {
		if col := table.column(pk); col != nil {
			props[pk] = columnJSONSchema(*col)
		} else {
			props[pk] = map[string]any{"type": "string", "description": "Record ID"}
		}
		required = append(required, pk)
	}
	return props, required
}

func (c *SQLConnector) getTool(table *sqlTable) tools.Tool {
	props, required := c.keyProperties(table)
	def := tools.NewDefinition(c.toolName("get", table),
		fmt.Sprintf("Get a single record from %s by primary key", table.name), props, required...)
	return tools.New(def, func(ctx context.Context, args map[string]any) (any, error) {
		return c.getRow(ctx, table, args)
	})
}

func (c *SQLConnector) createTool(table *sqlTable) tools.Tool {
	props := map[string]any{}
	var required []string
	for _, col := range table.columns {
		if col.isPrimary && col.hasDefault {
			continue
		}
		props[col.name] = columnJSONSchema(col)
		if !col.nullable && !col.hasDefault && !col.isPrimary {
			required = append(required, col.name)
		}
	}
	def := tools.NewDefinition(c.toolName("create", table),
		fmt.Sprintf("Insert a new record into %s", table.name), props, required...)
	return tools.New(def, func(ctx context.Context, args map[string]any) (any, error) {
		return c.insertRow(ctx, table, args)
	})
}

func (c *SQLConnector) updateTool(table *sqlTable) tools.Tool {
	props, required := c.keyProperties(table)
	for _, col := range table.columns {
		if col.isPrimary {
			continue
		}
		props[col.name] = columnJSONSchema(col)
	}
	def := tools.NewDefinition(c.toolName("update", table),
		fmt.Sprintf("Update a record in %s by primary key", table.name), props, required...)
	return tools.New(def, func(ctx context.Context, args map[string]any) (any, error) {
		return c.updateRow(ctx, table, args)
	})
}

func (c *SQLConnector) deleteTool(table *sqlTable) tools.Tool {
	props, required := c.keyProperties(table)
	def := tools.NewDefinition(c.toolName("delete", table),
		fmt.Sprintf("Delete a record from %s by primary key", table.name), props, required...)
	return tools.New(def, func(ctx context.Context, args map[string]any) (any, error) {
		return c.deleteRow(ctx, table, args)
	})
}

func (c *SQLConnector) listRows(ctx context.Context, table *sqlTable, args map[string]any) (any, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT * FROM %s", c.quote(table.name))
	var queryArgs []any

	if filters, ok := args["filters"].(map[string]any); ok && len(filters) > 0 {
		conditions := make([]string, 0, len(filters))
		for _, col := range slices.Sorted(maps.Keys(filters)) {
			if table.column(col) == nil {
				return nil, fmt.Errorf("unknown filter column %q", col)
			}
			conditions = append(conditions, fmt.Sprintf("%s = %s", c.quote(col), c.placeholder(len(queryArgs))))
			queryArgs = append(queryArgs, filters[col])
		}
		b.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}

	if orderBy, _ := args["order_by"].(string); orderBy != "" {
		if table.column(orderBy) == nil {
			return nil, fmt.Errorf("unknown order_by column %q", orderBy)
		}
		fmt.Fprintf(&b, " ORDER BY %s", c.quote(orderBy))
		if desc, _ := args["order_desc"].(bool); desc {
			b.WriteString(" DESC")
		}
	}

	limit := int64(100)
	if l, ok := asInt64(args["limit"]); ok && l > 0 {
		limit = l
	}
	fmt.Fprintf(&b, " LIMIT %d", limit)
	if offset, ok := asInt64(args["offset"]); ok && offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", offset)
	}

	rows, err := c.db.QueryContext(ctx, b.String(), queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table.name, err)
	}
	defer rows.Close()
	return rowsToMaps(rows)
}

func (c *SQLConnector) getRow(ctx context.Context, table *sqlTable, args map[string]any) (any, error) {
	where, values, err := c.keyConditions(table, args)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s LIMIT 1", c.quote(table.name), where)

	rows, err := c.db.QueryContext(ctx, query, values...)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", table.name, err)
	}
	defer rows.Close()

	records, err := rowsToMaps(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no %s record matches the given key", table.name)
	}
	return records[0], nil
}

func (c *SQLConnector) insertRow(ctx context.Context, table *sqlTable, args map[string]any) (any, error) {
	cols := slices.Sorted(maps.Keys(args))
	if len(cols) == 0 {
		return nil, fmt.Errorf("insert needs at least one column value")
	}

	columns := make([]string, 0, len(cols))
	placeholders := make([]string, 0, len(cols))
	values := make([]any, 0, len(cols))
	for i, col := range cols {
		if table.column(col) == nil {
			return nil, fmt.Errorf("unknown column %q", col)
		}
		columns = append(columns, c.quote(col))
		placeholders = append(placeholders, c.placeholder(i))
		values = append(values, args[col])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		c.quote(table.name), strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	result, err := c.db.ExecContext(ctx, query, values...)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", table.name, err)
	}

	id, _ := result.LastInsertId()
	affected, _ := result.RowsAffected()
	return map[string]any{"last_insert_id": id, "rows_affected": affected}, nil
}

func (c *SQLConnector) updateRow(ctx context.Context, table *sqlTable, args map[string]any) (any, error) {
	keySet := map[string]bool{}
	for _, pk := range table.keyColumns() {
		keySet[pk] = true
	}

	var clauses []string
	var values []any
	for _, col := range slices.Sorted(maps.Keys(args)) {
		if keySet[col] {
			continue
		}
		if table.column(col) == nil {
			return nil, fmt.Errorf("unknown column %q", col)
		}
		clauses = append(clauses, fmt.Sprintf("%s = %s", c.quote(col), c.placeholder(len(values))))
		values = append(values, args[col])
	}
	if len(clauses) == 0 {
		return nil, fmt.Errorf("update needs at least one non-key column")
	}

	var keyClauses []string
	for _, pk := range table.keyColumns() {
		value, ok := args[pk]
		if !ok {
			return nil, fmt.Errorf("missing primary key %q", pk)
		}
		keyClauses = append(keyClauses, fmt.Sprintf("%s = %s", c.quote(pk), c.placeholder(len(values))))
		values = append(values, value)
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		c.quote(table.name), strings.Join(clauses, ", "), strings.Join(keyClauses, " AND "))
	result, err := c.db.ExecContext(ctx, query, values...)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", table.name, err)
	}

	affected, _ := result.RowsAffected()
	return map[string]any{"rows_affected": affected}, nil
}

func (c *SQLConnector) deleteRow(ctx context.Context, table *sqlTable, args map[string]any) (any, error) {
	where, values, err := c.keyConditions(table, args)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", c.quote(table.name), where)
	result, err := c.db.ExecContext(ctx, query, values...)
	if err != nil {
		return nil, fmt.Errorf("delete from %s: %w", table.name, err)
	}

	affected, _ := result.RowsAffected()
	return map[string]any{"rows_affected": affected}, nil
}

// keyConditions builds the WHERE clause that identifies one record.
func (c *SQLConnector) keyConditions(table *sqlTable, args map[string]any) (string, []any, error) {
	var clauses []string
	var values []any
	for _, pk := range table.keyColumns() {
		value, ok := args[pk]
		if !ok {
			return "", nil, fmt.Errorf("missing primary key %q", pk)
		}
		clauses = append(clauses, fmt.Sprintf("%s = %s", c.quote(pk), c.placeholder(len(values))))
		values = append(values, value)
	}
	return strings.Join(clauses, " AND "), values, nil
}

// rowsToMaps drains a result set into column-keyed maps. []byte values
// become strings so the output serializes cleanly for the model.
func rowsToMaps(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range ptrs {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeSQLValue(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func normalizeSQLValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// columnJSONSchema maps a SQL column type onto a JSON schema fragment for
// the generated tool parameters.
func columnJSONSchema(col sqlColumn) map[string]any {
	jsonType := "string"
	format := ""
	t := strings.ToUpper(col.typ)
	switch {
	case strings.Contains(t, "INT"):
		jsonType = "integer"
	case strings.Contains(t, "FLOAT"), strings.Contains(t, "DOUBLE"),
		strings.Contains(t, "DECIMAL"), strings.Contains(t, "NUMERIC"),
		strings.Contains(t, "REAL"):
		jsonType = "number"
	case strings.Contains(t, "BOOL"):
		jsonType = "boolean"
	case strings.Contains(t, "DATE"), strings.Contains(t, "TIME"):
		format = "date-time"
	case strings.Contains(t, "JSON"):
		jsonType = "object"
	}

	out := map[string]any{"type": jsonType}
	if format != "" {
		out["format"] = format
	}
	if jsonType == "string" && col.maxLength > 0 {
		out["maxLength"] = col.maxLength
	}
	return out
}

// placeholder renders the i-th bind parameter in driver syntax.
func (c *SQLConnector) placeholder(i int) string {
	switch c.driver {
	case "postgres", "postgresql":
		return fmt.Sprintf("$%d", i+1)
	default:
		return "?"
	}
}

func (c *SQLConnector) quote(name string) string {
	switch c.driver {
	case "mysql":
		return "`" + strings.ReplaceAll(name, "`", "") + "`"
	default:
		return `"` + strings.ReplaceAll(name, `"`, "") + `"`
	}
}

package database

import (
	"context"
	"fmt"
	"strings"
)

type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Schema lists the user tables of a source.
type Schema struct {
	Source  string  `json:"source"`
	Dialect Dialect `json:"dialect"`
	Tables  []Table `json:"tables"`
}

// Summary renders one line per table, e.g. "orders(order_id INTEGER, ship_city TEXT)".
func (s *Schema) Summary() string {
	var b strings.Builder
	for _, t := range s.Tables {
		cols := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			cols = append(cols, strings.TrimSpace(c.Name+" "+c.Type))
		}
		fmt.Fprintf(&b, "%s(%s)\n", t.Name, strings.Join(cols, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// DescribeSchema lists tables and their columns.
func (e *Executor) DescribeSchema(ctx context.Context) (*Schema, error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ConnectionError{Op: "acquire connection", Err: err}
	}
	defer conn.Close()

	qctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rows, err := conn.QueryContext(qctx, e.dialect.ListTablesQuery())
	if err != nil {
		return nil, e.classify(ctx, qctx, e.dialect.ListTablesQuery(), err)
	}
	columns, records, _, err := scanRows(rows, 0)
	rows.Close()
	if err != nil {
		return nil, e.classify(ctx, qctx, e.dialect.ListTablesQuery(), err)
	}

	schema := &Schema{Source: e.name, Dialect: e.dialect}
	for _, rec := range records {
		// every dialect's table listing has the name in its first column
		name := fmt.Sprint(rec[columns[0]])
		query, args := e.dialect.DescribeColumnsQuery(name)
		colRows, err := conn.QueryContext(qctx, query, args...)
		if err != nil {
			return nil, e.classify(ctx, qctx, query, err)
		}
		_, colRecords, _, err := scanRows(colRows, 0)
		colRows.Close()
		if err != nil {
			return nil, e.classify(ctx, qctx, query, err)
		}
		schema.Tables = append(schema.Tables, Table{Name: name, Columns: e.columnsFrom(colRecords)})
	}
	return schema, nil
}

func (e *Executor) columnsFrom(records []map[string]any) []Column {
	nameKey, typeKey, nullKey := e.dialect.columnFields()
	cols := make([]Column, 0, len(records))
	for _, rec := range records {
		col := Column{Name: fmt.Sprint(rec[nameKey]), Type: strings.ToUpper(fmt.Sprint(rec[typeKey]))}
		switch v := rec[nullKey].(type) {
		case int64:
			// sqlite reports notnull
			col.Nullable = v == 0
		case string:
			col.Nullable = strings.EqualFold(v, "YES")
		}
		cols = append(cols, col)
	}
	return cols
}

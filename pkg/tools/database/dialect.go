package database

import (
	"fmt"
	"strings"
)

// Dialect selects the driver and the schema introspection queries.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	}
	return "", fmt.Errorf("unsupported dialect %q", s)
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	switch d {
	case DialectMySQL:
		return "mysql"
	case DialectPostgres:
		return "postgres"
	default:
		return "sqlite"
	}
}

// DisplayName is the dialect name used in prompts.
func (d Dialect) DisplayName() string {
	switch d {
	case DialectMySQL:
		return "MySQL"
	case DialectPostgres:
		return "PostgreSQL"
	default:
		return "SQLite"
	}
}

// QuoteIdent returns a properly quoted SQL identifier.
func (d Dialect) QuoteIdent(name string) string {
	if d == DialectMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ListTablesQuery returns the SQL to list user tables.
func (d Dialect) ListTablesQuery() string {
	switch d {
	case DialectMySQL:
		return "SHOW TABLES"
	case DialectPostgres:
		return "SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' AND table_type = 'BASE TABLE' ORDER BY table_name"
	default:
		return "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
	}
}

// DescribeColumnsQuery returns the SQL to describe a table's columns and its
// bind arguments. Result columns are mapped by columnFields.
func (d Dialect) DescribeColumnsQuery(table string) (string, []any) {
	switch d {
	case DialectMySQL:
		return "DESCRIBE " + d.QuoteIdent(table), nil
	case DialectPostgres:
		return `SELECT column_name, data_type, is_nullable
			FROM information_schema.columns
			WHERE table_schema = 'public' AND table_name = $1
			ORDER BY ordinal_position`, []any{table}
	default:
		return fmt.Sprintf("PRAGMA table_info(%s)", d.QuoteIdent(table)), nil
	}
}

// columnFields names the name, type and nullability columns of DescribeColumnsQuery.
func (d Dialect) columnFields() (name, typ, nullable string) {
	switch d {
	case DialectMySQL:
		return "Field", "Type", "Null"
	case DialectPostgres:
		return "column_name", "data_type", "is_nullable"
	default:
		return "name", "type", "notnull"
	}
}

// normalizeDSN adds the driver options every connection should carry.
func (d Dialect) normalizeDSN(dsn string) string {
	switch d {
	case DialectSQLite:
		if strings.Contains(dsn, "_pragma=busy_timeout") {
			return dsn
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "_pragma=busy_timeout(5000)"
	case DialectMySQL:
		if strings.Contains(dsn, "parseTime=") {
			return dsn
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "parseTime=true&timeout=10s"
	default:
		return dsn
	}
}

package sqlstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dShard/lib/schema"
)

// Dialect names a supported SQL dialect
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// countersTable is the table holding all global counters
const countersTable = "dshard_counters"

// dialect holds the SQL differences between the supported databases
type dialect struct {
	name       Dialect
	driver     string
	quote      func(ident string) string
	bind       func(n int) string // placeholder for the n-th (1-based) argument
	columnType func(f schema.Field) string
	idColumn   string

	// incrementSQL increments the counter given as the only argument.
	// If lastValueSQL is empty, incrementSQL returns the new value (RETURNING),
	// otherwise lastValueSQL has to be queried in the same transaction.
	incrementSQL string
	lastValueSQL string
}

func doubleQuote(ident string) string { return `"` + ident + `"` }
func backtick(ident string) string    { return "`" + ident + "`" }
func questionMark(int) string         { return "?" }
func dollar(n int) string             { return "$" + strconv.Itoa(n) }

func varchar(f schema.Field, unbounded string) string {
	if f.Size > 0 {
		return fmt.Sprintf("VARCHAR(%d)", f.Size)
	}
	return unbounded
}

var dialects = map[Dialect]*dialect{
	DialectSQLite: {
		name:   DialectSQLite,
		driver: "sqlite",
		quote:  doubleQuote,
		bind:   questionMark,
		columnType: func(f schema.Field) string {
			switch f.Type {
			case schema.FieldTInt:
				return "INTEGER"
			case schema.FieldTFloat:
				return "REAL"
			case schema.FieldTBool:
				return "BOOLEAN"
			default:
				return varchar(f, "TEXT")
			}
		},
		idColumn: "INTEGER PRIMARY KEY",
		incrementSQL: `INSERT INTO ` + countersTable + ` (name, value) VALUES (?, 1)
			ON CONFLICT (name) DO UPDATE SET value = ` + countersTable + `.value + 1
			RETURNING value`,
	},
	DialectPostgres: {
		name:   DialectPostgres,
		driver: "pgx",
		quote:  doubleQuote,
		bind:   dollar,
		columnType: func(f schema.Field) string {
			switch f.Type {
			case schema.FieldTInt:
				return "BIGINT"
			case schema.FieldTFloat:
				return "DOUBLE PRECISION"
			case schema.FieldTBool:
				return "BOOLEAN"
			default:
				return varchar(f, "TEXT")
			}
		},
		idColumn: "BIGINT PRIMARY KEY",
		incrementSQL: `INSERT INTO ` + countersTable + ` (name, value) VALUES ($1, 1)
			ON CONFLICT (name) DO UPDATE SET value = ` + countersTable + `.value + 1
			RETURNING value`,
	},
	DialectMySQL: {
		name:   DialectMySQL,
		driver: "mysql",
		quote:  backtick,
		bind:   questionMark,
		columnType: func(f schema.Field) string {
			switch f.Type {
			case schema.FieldTInt:
				return "BIGINT"
			case schema.FieldTFloat:
				return "DOUBLE"
			case schema.FieldTBool:
				return "BOOLEAN"
			default:
				return varchar(f, "TEXT")
			}
		},
		idColumn: "BIGINT PRIMARY KEY",
		incrementSQL: `INSERT INTO ` + countersTable + ` (name, value) VALUES (?, LAST_INSERT_ID(1))
			ON DUPLICATE KEY UPDATE value = LAST_INSERT_ID(value + 1)`,
		lastValueSQL: `SELECT LAST_INSERT_ID()`,
	},
}

// ParseDialect returns the dialect with the given name
func ParseDialect(name string) (Dialect, error) {
	d := Dialect(strings.ToLower(strings.TrimSpace(name)))
	if d == "postgresql" || d == "pgx" {
		d = DialectPostgres
	}
	if _, ok := dialects[d]; !ok {
		return "", fmt.Errorf("unknown sql dialect %q (expected one of: sqlite, postgres, mysql)", name)
	}
	return d, nil
}

// --------------------------------------------------------------------------
// Statement builders
// --------------------------------------------------------------------------

func (d *dialect) createCountersSQL() string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (name VARCHAR(191) PRIMARY KEY, value BIGINT NOT NULL)", countersTable)
}

func (d *dialect) peekSQL() string {
	return fmt.Sprintf("SELECT value FROM %s WHERE name = %s", countersTable, d.bind(1))
}

func (d *dialect) createTableSQL(table string, fields *schema.FieldSchema) string {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE IF NOT EXISTS ")
	sb.WriteString(d.quote(table))
	sb.WriteString(" (")
	sb.WriteString(d.quote(schema.PrimaryKey))
	sb.WriteString(" ")
	sb.WriteString(d.idColumn)
	for _, f := range fields.Fields() {
		sb.WriteString(", ")
		sb.WriteString(d.quote(f.Name))
		sb.WriteString(" ")
		sb.WriteString(d.columnType(f))
	}
	sb.WriteString(")")
	return sb.String()
}

func (d *dialect) insertSQL(table string, fields *schema.FieldSchema) string {
	cols := []string{d.quote(schema.PrimaryKey)}
	binds := []string{d.bind(1)}
	for i, f := range fields.Fields() {
		cols = append(cols, d.quote(f.Name))
		binds = append(binds, d.bind(i+2))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.quote(table), strings.Join(cols, ", "), strings.Join(binds, ", "))
}

func (d *dialect) selectSQL(table string, fields *schema.FieldSchema) string {
	cols := []string{d.quote(schema.PrimaryKey)}
	for _, f := range fields.Fields() {
		cols = append(cols, d.quote(f.Name))
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		strings.Join(cols, ", "), d.quote(table), d.quote(schema.PrimaryKey), d.bind(1))
}

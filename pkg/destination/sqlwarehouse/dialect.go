package sqlwarehouse

import (
	"fmt"
	"strings"
	"time"

	"github.com/ajitpratap0/pulsar/pkg/destination"
	"github.com/ajitpratap0/pulsar/pkg/errors"
	pstrings "github.com/ajitpratap0/pulsar/pkg/strings"
)

// Dialect captures what differs between the supported databases.
type Dialect struct {
	Name   string
	Driver string

	types       map[destination.ColumnType]string
	placeholder func(n int) string
	quote       func(ident string) string
	// ifAbsent wraps a CREATE TABLE statement so it is a no-op when the table exists.
	ifAbsent func(qualified, schema, table, create string) string
	existsSQL string
	// timeValue converts a timestamp to the driver argument stored for it.
	timeValue func(t time.Time) interface{}
	// maxParams bounds the bind parameters of one statement.
	maxParams int
}

// sqliteTimeLayout is fixed width so text timestamps sort chronologically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func quoteWith(open, close string) func(string) string {
	return func(ident string) string {
		return open + strings.ReplaceAll(ident, close, close+close) + close
	}
}

func questionMark(int) string { return "?" }

func createIfNotExists(_, _, _, create string) string {
	return strings.Replace(create, "CREATE TABLE ", "CREATE TABLE IF NOT EXISTS ", 1)
}

func nativeTime(t time.Time) interface{} { return t.UTC() }

var dialects = map[string]*Dialect{
	"sqlite": {
		Name:   "sqlite",
		Driver: "sqlite",
		types: map[destination.ColumnType]string{
			destination.ColumnTypeString:    "TEXT",
			destination.ColumnTypeTimestamp: "TEXT",
			destination.ColumnTypeJSON:      "TEXT",
		},
		placeholder: questionMark,
		quote:       quoteWith(`"`, `"`),
		ifAbsent:    createIfNotExists,
		existsSQL:   `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
		timeValue:   func(t time.Time) interface{} { return t.UTC().Format(sqliteTimeLayout) },
		maxParams:   999,
	},
	"postgres": {
		Name:   "postgres",
		Driver: "pgx",
		types: map[destination.ColumnType]string{
			destination.ColumnTypeString:    "TEXT",
			destination.ColumnTypeTimestamp: "TIMESTAMPTZ",
			destination.ColumnTypeJSON:      "JSONB",
		},
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		quote:       quoteWith(`"`, `"`),
		ifAbsent:    createIfNotExists,
		existsSQL:   `SELECT COUNT(*) FROM information_schema.tables WHERE table_name = $1 AND table_schema = COALESCE(NULLIF($2, ''), current_schema())`,
		timeValue:   nativeTime,
		maxParams:   65535,
	},
	"mysql": {
		Name:   "mysql",
		Driver: "mysql",
		types: map[destination.ColumnType]string{
			destination.ColumnTypeString:    "VARCHAR(255)",
			destination.ColumnTypeTimestamp: "DATETIME(6)",
			destination.ColumnTypeJSON:      "JSON",
		},
		placeholder: questionMark,
		quote:       quoteWith("`", "`"),
		ifAbsent:    createIfNotExists,
		existsSQL:   `SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ? AND table_schema = COALESCE(NULLIF(?, ''), DATABASE())`,
		timeValue:   nativeTime,
		maxParams:   65535,
	},
	"snowflake": {
		Name:   "snowflake",
		Driver: "snowflake",
		types: map[destination.ColumnType]string{
			destination.ColumnTypeString:    "VARCHAR",
			destination.ColumnTypeTimestamp: "TIMESTAMP_TZ",
			destination.ColumnTypeJSON:      "VARCHAR",
		},
		placeholder: questionMark,
		quote:       quoteWith(`"`, `"`),
		ifAbsent:    createIfNotExists,
		existsSQL:   `SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ? AND table_schema = COALESCE(NULLIF(?, ''), CURRENT_SCHEMA())`,
		timeValue:   nativeTime,
		maxParams:   16384,
	},
	"sqlserver": {
		Name:   "sqlserver",
		Driver: "sqlserver",
		types: map[destination.ColumnType]string{
			destination.ColumnTypeString:    "NVARCHAR(255)",
			destination.ColumnTypeTimestamp: "DATETIMEOFFSET",
			destination.ColumnTypeJSON:      "NVARCHAR(MAX)",
		},
		placeholder: func(n int) string { return fmt.Sprintf("@p%d", n) },
		quote:       quoteWith("[", "]"),
		ifAbsent: func(qualified, _, _, create string) string {
			lit := strings.ReplaceAll(qualified, "'", "''")
			return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL %s", lit, create)
		},
		existsSQL: `SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_NAME = @p1 AND TABLE_SCHEMA = COALESCE(NULLIF(@p2, ''), SCHEMA_NAME())`,
		timeValue: nativeTime,
		// sp_executesql spends some of the 2100 parameter slots itself.
		maxParams: 2000,
	},
}

// LookupDialect returns the dialect named name.
func LookupDialect(name string) (*Dialect, error) {
	d, ok := dialects[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported sql dialect %q", name).
			WithDetail("allowed", DialectNames())
	}
	return d, nil
}

// DialectNames lists the supported dialects.
func DialectNames() []string {
	return []string{"sqlite", "postgres", "mysql", "snowflake", "sqlserver"}
}

// Qualify returns the quoted, optionally schema-qualified table name.
func (d *Dialect) Qualify(schema, table string) string {
	if schema == "" || d.Name == "sqlite" {
		return d.quote(table)
	}
	return d.quote(schema) + "." + d.quote(table)
}

// CreateTableSQL returns an idempotent CREATE TABLE statement for table.
func (d *Dialect) CreateTableSQL(schema, table string) string {
	cols := make([]string, 0, len(destination.Columns))
	for _, c := range destination.Columns {
		def := d.quote(c.Name) + " " + d.types[c.Type]
		if !c.Nullable {
			def += " NOT NULL"
		}
		cols = append(cols, def)
	}
	qualified := d.Qualify(schema, table)
	create := fmt.Sprintf("CREATE TABLE %s (%s)", qualified, strings.Join(cols, ", "))
	return d.ifAbsent(qualified, schema, table, create)
}

// InsertSQL returns a multi-row INSERT for rows rows.
func (d *Dialect) InsertSQL(schema, table string, rows int) string {
	cols := make([]string, 0, len(destination.Columns))
	for _, c := range destination.Columns {
		cols = append(cols, d.quote(c.Name))
	}

	b := pstrings.GetBuilder(pstrings.Large)
	defer pstrings.PutBuilder(b, pstrings.Large)
	fmt.Fprintf(b, "INSERT INTO %s (%s) VALUES ", d.Qualify(schema, table), strings.Join(cols, ", "))
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		_ = b.WriteByte('(')
		for c := range destination.Columns {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.placeholder(n))
			n++
		}
		_ = b.WriteByte(')')
	}
	return b.String()
}

// SelectStatesSQL returns the newest-first query over the states table.
func (d *Dialect) SelectStatesSQL(schema string) string {
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s DESC",
		d.quote(destination.ColumnData),
		d.Qualify(schema, destination.StatesTable),
		d.quote(destination.ColumnLoadedAt),
	)
}

// batchRows returns how many rows fit in one INSERT.
func (d *Dialect) batchRows() int {
	n := d.maxParams / len(destination.Columns)
	if n > 1000 {
		n = 1000
	}
	return n
}

func (d *Dialect) args(row destination.Row) []interface{} {
	var extracted interface{}
	if row.ExtractedAt != nil {
		extracted = d.timeValue(*row.ExtractedAt)
	}
	return []interface{}{
		row.RawID,
		d.timeValue(row.JobStartedAt),
		d.timeValue(row.SliceStartedAt),
		extracted,
		d.timeValue(row.LoadedAt),
		string(row.Data),
	}
}

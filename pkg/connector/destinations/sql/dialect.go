package sql

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/pipeflow/pkg/config"
	"github.com/ajitpratap0/pipeflow/pkg/errors"
	"github.com/ajitpratap0/pipeflow/pkg/models"
)

// Dialect captures the SQL differences between the supported databases.
type Dialect struct {
	Name string
	// Driver is the database/sql driver name
	Driver string
	// TimeAsText stores datetime values as RFC3339 text
	TimeAsText bool

	quote       byte
	numbered    bool
	columnTypes map[models.FieldType]string
	// keyString is the column type for str columns that are part of a key
	keyString string
}

var (
	SQLite = &Dialect{
		Name:       config.LoadSQLite,
		Driver:     "sqlite",
		TimeAsText: true,
		quote:      '"',
		columnTypes: map[models.FieldType]string{
			models.FieldTypeInt:      "INTEGER",
			models.FieldTypeFloat:    "REAL",
			models.FieldTypeString:   "TEXT",
			models.FieldTypeBool:     "BOOLEAN",
			models.FieldTypeDatetime: "TEXT",
			models.FieldTypeJSON:     "TEXT",
		},
		keyString: "TEXT",
	}

	Postgres = &Dialect{
		Name:     config.LoadPostgres,
		Driver:   "pgx",
		quote:    '"',
		numbered: true,
		columnTypes: map[models.FieldType]string{
			models.FieldTypeInt:      "BIGINT",
			models.FieldTypeFloat:    "DOUBLE PRECISION",
			models.FieldTypeString:   "TEXT",
			models.FieldTypeBool:     "BOOLEAN",
			models.FieldTypeDatetime: "TIMESTAMPTZ",
			models.FieldTypeJSON:     "JSONB",
		},
		keyString: "TEXT",
	}

	MySQL = &Dialect{
		Name:   config.LoadMySQL,
		Driver: "mysql",
		quote:  '`',
		columnTypes: map[models.FieldType]string{
			models.FieldTypeInt:      "BIGINT",
			models.FieldTypeFloat:    "DOUBLE",
			models.FieldTypeString:   "TEXT",
			models.FieldTypeBool:     "BOOLEAN",
			models.FieldTypeDatetime: "DATETIME(6)",
			models.FieldTypeJSON:     "JSON",
		},
		// MySQL cannot index unbounded TEXT
		keyString: "VARCHAR(255)",
	}
)

// DialectFor returns the dialect for a load type.
func DialectFor(loadType string) (*Dialect, error) {
	switch loadType {
	case config.LoadSQLite:
		return SQLite, nil
	case config.LoadPostgres:
		return Postgres, nil
	case config.LoadMySQL:
		return MySQL, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported sql dialect %q", loadType)
	}
}

// Quote quotes an identifier. Dotted names are quoted per part.
func (d *Dialect) Quote(name string) string {
	parts := strings.Split(name, ".")
	q := string(d.quote)
	for i, p := range parts {
		parts[i] = q + strings.ReplaceAll(p, q, q+q) + q
	}
	return strings.Join(parts, ".")
}

// Placeholder returns the bind marker for the n-th (1-based) parameter.
func (d *Dialect) Placeholder(n int) string {
	if d.numbered {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// ColumnType returns the column type for ft.
func (d *Dialect) ColumnType(ft models.FieldType, key bool) string {
	if ft == models.FieldTypeString && key {
		return d.keyString
	}
	if t, ok := d.columnTypes[ft]; ok {
		return t
	}
	return d.columnTypes[models.FieldTypeString]
}

// CreateTable renders CREATE TABLE IF NOT EXISTS for s. A non-empty key
// becomes the primary key.
func (d *Dialect) CreateTable(table string, s models.Schema, key []string) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(d.Quote(table))
	b.WriteString(" (")
	for i, f := range s.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		isKey := contains(key, f.Name)
		b.WriteString(d.Quote(f.Name))
		b.WriteByte(' ')
		b.WriteString(d.ColumnType(f.Type, isKey))
		if isKey {
			b.WriteString(" NOT NULL")
		}
	}
	if len(key) > 0 {
		b.WriteString(", PRIMARY KEY (")
		b.WriteString(d.quoteList(key))
		b.WriteByte(')')
	}
	b.WriteByte(')')
	return b.String()
}

// Insert renders a single-row INSERT for columns. With a non-empty key the
// statement updates the other columns on conflict.
func (d *Dialect) Insert(table string, columns, key []string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.Quote(table))
	b.WriteString(" (")
	b.WriteString(d.quoteList(columns))
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Placeholder(i + 1))
	}
	b.WriteByte(')')

	if len(key) == 0 {
		return b.String()
	}

	var updates []string
	for _, c := range columns {
		if contains(key, c) {
			continue
		}
		q := d.Quote(c)
		if d == MySQL {
			updates = append(updates, fmt.Sprintf("%s = VALUES(%s)", q, q))
		} else {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", q, q))
		}
	}

	if d == MySQL {
		if len(updates) == 0 {
			q := d.Quote(key[0])
			updates = append(updates, fmt.Sprintf("%s = %s", q, q))
		}
		b.WriteString(" ON DUPLICATE KEY UPDATE ")
		b.WriteString(strings.Join(updates, ", "))
		return b.String()
	}

	b.WriteString(" ON CONFLICT (")
	b.WriteString(d.quoteList(key))
	b.WriteString(") ")
	if len(updates) == 0 {
		b.WriteString("DO NOTHING")
	} else {
		b.WriteString("DO UPDATE SET ")
		b.WriteString(strings.Join(updates, ", "))
	}
	return b.String()
}

// SelectNone renders a query that returns the table's columns and no rows.
func (d *Dialect) SelectNone(table string) string {
	return "SELECT * FROM " + d.Quote(table) + " WHERE 1 = 0"
}

func (d *Dialect) quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.Quote(n)
	}
	return strings.Join(quoted, ", ")
}

// fieldTypeOf maps a database type name back to a FieldType.
func fieldTypeOf(dbType string) models.FieldType {
	t := strings.ToUpper(dbType)
	switch {
	case strings.Contains(t, "BOOL"), t == "TINYINT":
		return models.FieldTypeBool
	case strings.Contains(t, "INT"):
		return models.FieldTypeInt
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"),
		strings.Contains(t, "NUMERIC"), strings.Contains(t, "DECIMAL"):
		return models.FieldTypeFloat
	case strings.Contains(t, "TIME"), t == "DATE":
		return models.FieldTypeDatetime
	case strings.Contains(t, "JSON"):
		return models.FieldTypeJSON
	default:
		return models.FieldTypeString
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

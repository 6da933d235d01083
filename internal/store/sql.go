package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/knifflig/ChargeApp/internal/domain"
)

// Record is one row as a column-name to value map.
type Record map[string]any

// Condition compares Column with Value using Op. An empty Op means equality.
type Condition struct {
	Column string
	Op     string
	Value  any
}

// Filter selects rows. Column/Values restrict Column to a value list; Where
// conditions are combined with AND.
type Filter struct {
	Column string
	Values []any
	Where  []Condition
}

var allowedOps = map[string]bool{
	"=": true, "<>": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
	"LIKE": true, "ILIKE": true,
}

func quote(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quote(n)
	}
	return out
}

func placeholders(from, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "$" + strconv.Itoa(from+i)
	}
	return out
}

func createTableSQL(t Table, withReference bool) string {
	defs := make([]string, 0, len(t.Columns)+2)
	for _, c := range t.Columns {
		defs = append(defs, quote(c.Name)+" "+c.Type)
	}
	defs = append(defs, "PRIMARY KEY ("+quote(t.Key)+")")
	if withReference && t.Reference != nil {
		defs = append(defs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			quote(t.Reference.Column), quote(t.Reference.Table), quote(t.Reference.ReferenceColumn)))
	}
	return "CREATE TABLE " + quote(t.Name) + " (" + strings.Join(defs, ", ") + ")"
}

func dropTableSQL(name string) string {
	return "DROP TABLE IF EXISTS " + quote(name) + " CASCADE"
}

func addColumnSQL(table string, c Column) string {
	return "ALTER TABLE " + quote(table) + " ADD COLUMN IF NOT EXISTS " + quote(c.Name) + " " + c.Type
}

func lockRowSQL(table, key string) string {
	return "SELECT 1 FROM " + quote(table) + " WHERE " + quote(key) + " = $1 FOR UPDATE"
}

func existsSQL(table, column string) string {
	return "SELECT EXISTS (SELECT 1 FROM " + quote(table) + " WHERE " + quote(column) + " = $1)"
}

// insertSQL builds an INSERT for the columns in order.
func insertSQL(table string, columns []string) string {
	return "INSERT INTO " + quote(table) + " (" + strings.Join(quoteAll(columns), ", ") +
		") VALUES (" + strings.Join(placeholders(1, len(columns)), ", ") + ")"
}

// updateSQL builds an UPDATE setting columns in order; the key value is the last argument.
func updateSQL(table, key string, columns []string) string {
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = quote(c) + " = $" + strconv.Itoa(i+1)
	}
	return "UPDATE " + quote(table) + " SET " + strings.Join(sets, ", ") +
		" WHERE " + quote(key) + " = $" + strconv.Itoa(len(columns)+1)
}

func countSQL(table, column string) string {
	if column == "" {
		return "SELECT COUNT(*) FROM " + quote(table)
	}
	return "SELECT COUNT(*) FROM " + quote(table) + " WHERE " + quote(column) + " = $1"
}

// selectSQL builds a SELECT * for the filter, ordered by key.
func selectSQL(table, key string, f Filter) (string, []any, error) {
	var (
		clauses []string
		args    []any
	)
	if f.Column != "" {
		if len(f.Values) == 0 {
			// An empty value list matches nothing.
			clauses = append(clauses, "FALSE")
		} else {
			ph := placeholders(len(args)+1, len(f.Values))
			clauses = append(clauses, quote(f.Column)+" IN ("+strings.Join(ph, ", ")+")")
			args = append(args, f.Values...)
		}
	}
	for _, c := range f.Where {
		op := strings.ToUpper(strings.TrimSpace(c.Op))
		if op == "" {
			op = "="
		}
		if !allowedOps[op] {
			return "", nil, fmt.Errorf("%w: unsupported operator %q", domain.ErrSchema, c.Op)
		}
		if c.Value == nil {
			if op != "=" {
				return "", nil, fmt.Errorf("%w: operator %q cannot compare NULL", domain.ErrSchema, c.Op)
			}
			clauses = append(clauses, quote(c.Column)+" IS NULL")
			continue
		}
		args = append(args, c.Value)
		clauses = append(clauses, quote(c.Column)+" "+op+" $"+strconv.Itoa(len(args)))
	}

	sql := "SELECT * FROM " + quote(table)
	if len(clauses) > 0 {
		sql += " WHERE " + strings.Join(clauses, " AND ")
	}
	if key != "" {
		sql += " ORDER BY " + quote(key)
	}
	return sql, args, nil
}

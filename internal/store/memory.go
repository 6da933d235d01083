package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/knifflig/ChargeApp/internal/domain"
)

// MemoryBackend is an in-process Backend used for dry runs and tests. It
// enforces primary and foreign keys like the database does.
type MemoryBackend struct {
	mu     sync.Mutex
	tables map[string]*memTable
}

type memTable struct {
	columns []string
	ref     *Reference
	rows    map[any]Record
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{tables: make(map[string]*memTable)}
}

func (m *MemoryBackend) Ping(context.Context) error { return nil }

func (m *MemoryBackend) TableExists(_ context.Context, table string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tables[table]
	return ok, nil
}

func (m *MemoryBackend) CreateTable(_ context.Context, t Table, withReference bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[t.Name]; ok {
		return fmt.Errorf("relation %q already exists", t.Name)
	}
	mt := &memTable{rows: make(map[any]Record)}
	for _, c := range t.Columns {
		mt.columns = append(mt.columns, c.Name)
	}
	if withReference && t.Reference != nil {
		if _, ok := m.tables[t.Reference.Table]; !ok {
			return fmt.Errorf("%w: relation %q does not exist", domain.ErrSchema, t.Reference.Table)
		}
		ref := *t.Reference
		mt.ref = &ref
	}
	m.tables[t.Name] = mt
	return nil
}

func (m *MemoryBackend) DropTable(_ context.Context, table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables, table)
	// CASCADE removes constraints pointing at the dropped table.
	for _, t := range m.tables {
		if t.ref != nil && t.ref.Table == table {
			t.ref = nil
		}
	}
	return nil
}

func (m *MemoryBackend) AddColumn(_ context.Context, table string, c Column) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(table)
	if err != nil {
		return err
	}
	for _, existing := range t.columns {
		if existing == c.Name {
			return nil
		}
	}
	t.columns = append(t.columns, c.Name)
	return nil
}

func (m *MemoryBackend) Columns(_ context.Context, table string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		return nil, nil
	}
	return append([]string(nil), t.columns...), nil
}

func (m *MemoryBackend) RowExists(_ context.Context, table, column string, value any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(table)
	if err != nil {
		return false, err
	}
	for _, row := range t.rows {
		if equalValues(row[column], value) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryBackend) WriteRow(_ context.Context, table, key string, keyValue any, values Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(table)
	if err != nil {
		return false, err
	}
	for col := range values {
		if !containsString(t.columns, col) {
			return false, fmt.Errorf("%w: column %q of relation %q does not exist", domain.ErrSchema, col, table)
		}
	}

	pk := normalizeKey(keyValue)
	row, exists := t.rows[pk]
	next := Record{}
	for k, v := range row {
		next[k] = v
	}
	next[key] = keyValue
	for k, v := range values {
		next[k] = v
	}
	if t.ref != nil {
		if err := m.checkReference(t.ref, next); err != nil {
			return false, err
		}
	}
	t.rows[pk] = next
	return !exists, nil
}

func (m *MemoryBackend) checkReference(ref *Reference, row Record) error {
	v := row[ref.Column]
	if v == nil {
		return nil
	}
	parent, err := m.table(ref.Table)
	if err != nil {
		return err
	}
	for _, p := range parent.rows {
		if equalValues(p[ref.ReferenceColumn], v) {
			return nil
		}
	}
	return fmt.Errorf("%w: key (%s)=(%v) is not present in table %q", domain.ErrForeignKeyViolation, ref.Column, v, ref.Table)
}

func (m *MemoryBackend) Select(_ context.Context, table, key string, f Filter) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(table)
	if err != nil {
		return nil, err
	}
	for _, c := range f.Where {
		if !allowedOps[strings.ToUpper(strings.TrimSpace(c.Op))] && c.Op != "" {
			return nil, fmt.Errorf("%w: unsupported operator %q", domain.ErrSchema, c.Op)
		}
	}

	var out []Record
	for _, row := range t.rows {
		if matches(row, f) {
			rec := make(Record, len(t.columns))
			for _, c := range t.columns {
				rec[c] = row[c]
			}
			out = append(out, rec)
		}
	}
	if key != "" {
		sort.Slice(out, func(i, j int) bool { return less(out[i][key], out[j][key]) })
	}
	return out, nil
}

func (m *MemoryBackend) Count(_ context.Context, table, column string, value any) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(table)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, row := range t.rows {
		if column == "" || equalValues(row[column], value) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryBackend) table(name string) (*memTable, error) {
	t, ok := m.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: relation %q does not exist", domain.ErrSchema, name)
	}
	return t, nil
}

func matches(row Record, f Filter) bool {
	if f.Column != "" {
		found := false
		for _, v := range f.Values {
			if equalValues(row[f.Column], v) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, c := range f.Where {
		if !compare(row[c.Column], strings.ToUpper(strings.TrimSpace(c.Op)), c.Value) {
			return false
		}
	}
	return true
}

func compare(have any, op string, want any) bool {
	if want == nil {
		return have == nil
	}
	if have == nil {
		return false
	}
	switch op {
	case "", "=":
		return equalValues(have, want)
	case "<>", "!=":
		return !equalValues(have, want)
	case "<":
		return less(have, want)
	case "<=":
		return less(have, want) || equalValues(have, want)
	case ">":
		return less(want, have)
	case ">=":
		return less(want, have) || equalValues(have, want)
	case "LIKE", "ILIKE":
		hs, ok1 := have.(string)
		ws, ok2 := want.(string)
		if !ok1 || !ok2 {
			return false
		}
		if op == "ILIKE" {
			hs, ws = strings.ToLower(hs), strings.ToLower(ws)
		}
		return likeMatch(hs, ws)
	}
	return false
}

// likeMatch supports the % wildcard only.
func likeMatch(s, pattern string) bool {
	parts := strings.Split(pattern, "%")
	if len(parts) == 1 {
		return s == pattern
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	for _, p := range parts[1 : len(parts)-1] {
		i := strings.Index(s, p)
		if i < 0 {
			return false
		}
		s = s[i+len(p):]
	}
	return strings.HasSuffix(s, parts[len(parts)-1])
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

func normalizeKey(v any) any {
	if f, ok := toFloat(v); ok {
		return f
	}
	return v
}

func equalValues(a, b any) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func less(a, b any) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return fa < fb
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	return okA && okB && sa < sb
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

package postgres

import (
	"reflect"
	"sync"
)

// RowMapper maps the "db" tags of a struct type to field index paths.
// Fields of embedded structs (entity.Base) are promoted like Go promotes them.
type RowMapper struct {
	columns []string
	index   map[string][]int
}

var mappers sync.Map // reflect.Type -> *RowMapper

// RowMapperOf returns the cached mapper of T, which may be a struct or a
// pointer to one.
func RowMapperOf[T any]() *RowMapper {
	t := reflect.TypeFor[T]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if m, ok := mappers.Load(t); ok {
		return m.(*RowMapper)
	}

	m := &RowMapper{index: make(map[string][]int)}
	if t.Kind() == reflect.Struct {
		for _, f := range reflect.VisibleFields(t) {
			col := f.Tag.Get("db")
			if col == "" || col == "-" || f.Anonymous {
				continue
			}
			if _, dup := m.index[col]; dup {
				continue
			}
			m.columns = append(m.columns, col)
			m.index[col] = f.Index
		}
	}
	actual, _ := mappers.LoadOrStore(t, m)
	return actual.(*RowMapper)
}

// Columns lists the mapped columns in field order.
func (m *RowMapper) Columns() []string {
	return m.columns
}

// Missing returns the entries of columns that no field maps.
func (m *RowMapper) Missing(columns []string) []string {
	var missing []string
	for _, col := range columns {
		if _, ok := m.index[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

// Values reads columns from v. A nil pointer attribute yields a nil
// interface so pgx writes NULL. Unmapped columns are left out.
func (m *RowMapper) Values(v any, columns []string) map[string]any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	values := make(map[string]any, len(columns))
	for _, col := range columns {
		idx, ok := m.index[col]
		if !ok {
			continue
		}
		fv, err := rv.FieldByIndexErr(idx)
		if err != nil || (fv.Kind() == reflect.Pointer && fv.IsNil()) {
			values[col] = nil
			continue
		}
		values[col] = fv.Interface()
	}
	return values
}

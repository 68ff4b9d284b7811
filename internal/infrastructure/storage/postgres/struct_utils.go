package postgres

import (
	"reflect"
	"sync"
)

// column maps a "db" tag to the field index path inside its struct,
// promoted fields of embedded structs included.
type column struct {
	name  string
	index []int
}

var columnCache sync.Map // reflect.Type -> []column

func columnsOf(t reflect.Type) []column {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	if cached, ok := columnCache.Load(t); ok {
		return cached.([]column)
	}

	var cols []column
	for _, f := range reflect.VisibleFields(t) {
		if f.Anonymous || !f.IsExported() {
			continue
		}
		name := f.Tag.Get("db")
		if name == "" || name == "-" {
			continue
		}
		cols = append(cols, column{name: name, index: f.Index})
	}

	actual, _ := columnCache.LoadOrStore(t, cols)
	return actual.([]column)
}

// ExtractDBColumns lists the "db" columns of T in field order. Repositories
// call it once at package init to build their SELECT lists.
func ExtractDBColumns[T any]() []string {
	cols := columnsOf(reflect.TypeFor[T]())
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	return names
}

// StructToMap returns column -> value for every "db" tagged field of v, ready
// for squirrel's SetMap. Fields behind a nil embedded pointer are skipped.
// Non-struct input yields nil.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	cols := columnsOf(rv.Type())
	out := make(map[string]any, len(cols))
	for _, c := range cols {
		f, err := rv.FieldByIndexErr(c.index)
		if err != nil {
			continue
		}
		out[c.name] = f.Interface()
	}
	return out
}

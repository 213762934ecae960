package metadata

import (
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/AksahyDwivedi/pharmacy/internal/core/entity"
)

var (
	timeType    = reflect.TypeOf(time.Time{})
	dateType    = reflect.TypeOf(entity.Date{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
)

// Inspect analyzes a record struct and returns its EntityDef. Only fields
// carrying a db tag are described.
func Inspect(record any, name, path, table string) EntityDef {
	t := reflect.TypeOf(record)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if name == "" {
		name = t.Name()
	}

	def := EntityDef{
		Name:      name,
		Label:     guessLabel(t.Name()),
		Path:      path,
		TableName: table,
		Fields:    make([]FieldDef, 0, t.NumField()),
	}

	inspectStruct(t, &def)

	return def
}

func inspectStruct(t reflect.Type, def *EntityDef) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.PkgPath != "" { // unexported
			continue
		}

		// Handle embedded structs (flattening)
		if field.Anonymous {
			ft := field.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				inspectStruct(ft, def)
			}
			continue
		}

		column := field.Tag.Get("db")
		if column == "" || column == "-" {
			continue
		}

		fDef := FieldDef{
			Name:   jsonName(field),
			Column: column,
			Label:  guessLabel(field.Name),
		}
		mapFieldType(&fDef, field)

		def.Fields = append(def.Fields, fDef)
	}
}

func mapFieldType(def *FieldDef, field reflect.StructField) {
	if ref := field.Tag.Get("ref"); ref != "" {
		def.Type = TypeReference
		def.ReferenceType = ref
		return
	}
	if def.Column == "id" {
		def.Type = TypeID
		return
	}

	t := field.Type
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t {
	case dateType:
		def.Type = TypeDate
		return
	case timeType:
		def.Type = TypeDateTime
		return
	case decimalType:
		def.Type = TypeMoney
		return
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		def.Type = TypeInteger
	case reflect.Float32, reflect.Float64:
		def.Type = TypeMoney
	default:
		def.Type = TypeString // fallback
	}
}

func jsonName(field reflect.StructField) string {
	if tag, ok := field.Tag.Lookup("json"); ok {
		parts := strings.Split(tag, ",")
		if parts[0] != "" && parts[0] != "-" {
			return parts[0]
		}
	}
	// Fallback: camelCase
	runes := []rune(field.Name)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}

// guessLabel splits a Go identifier into words: "ContactPerson" -> "Contact Person".
func guessLabel(name string) string {
	name = strings.TrimSuffix(name, "ID")
	var b strings.Builder
	for i, r := range name {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

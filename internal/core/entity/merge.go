package entity

import (
	"fmt"
	"reflect"
)

// Merge copies every set attribute of patch onto dst. A pointer attribute is
// set when non-nil, any other attribute when it is not the zero value. The
// identity column is never copied. dst and patch must be pointers to the same
// struct type.
func Merge(dst, patch any) error {
	dv := reflect.ValueOf(dst)
	pv := reflect.ValueOf(patch)
	if dv.Kind() != reflect.Ptr || pv.Kind() != reflect.Ptr || dv.IsNil() || pv.IsNil() {
		return fmt.Errorf("merge: dst and patch must be non-nil pointers")
	}
	if dv.Type() != pv.Type() {
		return fmt.Errorf("merge: type mismatch %s vs %s", dv.Type(), pv.Type())
	}
	mergeStruct(dv.Elem(), pv.Elem())
	return nil
}

func mergeStruct(dst, patch reflect.Value) {
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		if field.Tag.Get("db") == "id" {
			continue
		}

		df := dst.Field(i)
		pf := patch.Field(i)

		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			mergeStruct(df, pf)
			continue
		}

		switch pf.Kind() {
		case reflect.Ptr:
			if pf.IsNil() {
				continue
			}
			cp := reflect.New(pf.Type().Elem())
			cp.Elem().Set(pf.Elem())
			df.Set(cp)
		default:
			if !pf.IsZero() {
				df.Set(pf)
			}
		}
	}
}

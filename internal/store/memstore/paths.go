package memstore

import (
	"fmt"
	"reflect"
	"strings"
)

// Field paths mirror the dotted notation the document store uses
// ("unreadCount.u1"): struct segments are resolved through bson tags, the
// final segment may index into a string-keyed map.

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("bson"), ",")[0]
		if tag == "" {
			tag = strings.ToLower(t.Field(i).Name)
		}
		if tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func getPath(doc any, path string) (any, bool) {
	v := reflect.ValueOf(doc)
	for _, seg := range strings.Split(path, ".") {
		for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
			if v.IsNil() {
				return nil, false
			}
			v = v.Elem()
		}
		switch v.Kind() {
		case reflect.Struct:
			f, ok := fieldByTag(v, seg)
			if !ok {
				return nil, false
			}
			v = f
		case reflect.Map:
			mv := v.MapIndex(reflect.ValueOf(seg))
			if !mv.IsValid() {
				return nil, false
			}
			v = mv
		default:
			return nil, false
		}
	}
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	return v.Interface(), true
}

func setPath(doc any, path string, val any) error {
	v := reflect.ValueOf(doc)
	segs := strings.Split(path, ".")
	for i, seg := range segs {
		last := i == len(segs)-1
		for v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return fmt.Errorf("memstore: nil pointer at %q in path %q", seg, path)
			}
			v = v.Elem()
		}
		switch v.Kind() {
		case reflect.Struct:
			f, ok := fieldByTag(v, seg)
			if !ok {
				return fmt.Errorf("memstore: unknown field %q in path %q", seg, path)
			}
			if last {
				return assign(f, val)
			}
			v = f
		case reflect.Map:
			if !last {
				return fmt.Errorf("memstore: cannot traverse map at %q in path %q", seg, path)
			}
			if v.IsNil() {
				return fmt.Errorf("memstore: nil map in path %q", path)
			}
			return assignMapKey(v, seg, val)
		default:
			return fmt.Errorf("memstore: cannot descend into %s at %q", v.Kind(), seg)
		}
	}
	return nil
}

func incPath(doc any, path string, delta int64) error {
	cur, ok := getPath(doc, path)
	var base int64
	if ok && cur != nil {
		cv := reflect.ValueOf(cur)
		if !cv.CanInt() {
			return fmt.Errorf("memstore: field %q is not numeric", path)
		}
		base = cv.Int()
	}
	// Missing counters start at zero, matching the store's $inc semantics.
	return ensureSetPath(doc, path, base+delta)
}

// ensureSetPath is setPath that also allocates a nil map when the final
// segment lands in one.
func ensureSetPath(doc any, path string, val any) error {
	segs := strings.Split(path, ".")
	if len(segs) > 1 {
		parent := strings.Join(segs[:len(segs)-1], ".")
		if err := allocMap(doc, parent); err != nil {
			return err
		}
	}
	return setPath(doc, path, val)
}

func allocMap(doc any, path string) error {
	v := reflect.ValueOf(doc)
	for _, seg := range strings.Split(path, ".") {
		for v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return fmt.Errorf("memstore: nil pointer in path %q", path)
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return fmt.Errorf("memstore: expected struct at %q", seg)
		}
		f, ok := fieldByTag(v, seg)
		if !ok {
			return fmt.Errorf("memstore: unknown field %q", seg)
		}
		v = f
	}
	if v.Kind() == reflect.Map && v.IsNil() && v.CanSet() {
		v.Set(reflect.MakeMap(v.Type()))
	}
	return nil
}

func assign(f reflect.Value, val any) error {
	if !f.CanSet() {
		return fmt.Errorf("memstore: field is not settable")
	}
	if val == nil {
		f.Set(reflect.Zero(f.Type()))
		return nil
	}
	vv := reflect.ValueOf(val)
	if !vv.Type().AssignableTo(f.Type()) {
		if !vv.Type().ConvertibleTo(f.Type()) {
			return fmt.Errorf("memstore: cannot assign %s to %s", vv.Type(), f.Type())
		}
		vv = vv.Convert(f.Type())
	}
	f.Set(vv)
	return nil
}

func assignMapKey(m reflect.Value, key string, val any) error {
	elem := m.Type().Elem()
	if val == nil {
		m.SetMapIndex(reflect.ValueOf(key), reflect.Zero(elem))
		return nil
	}
	vv := reflect.ValueOf(val)
	if !vv.Type().AssignableTo(elem) {
		if !vv.Type().ConvertibleTo(elem) {
			return fmt.Errorf("memstore: cannot assign %s to map of %s", vv.Type(), elem)
		}
		vv = vv.Convert(elem)
	}
	m.SetMapIndex(reflect.ValueOf(key), vv)
	return nil
}

// Package copyterm deep-copies message terms so the sender and the receiver
// never share mutable memory.
//
// Slices, maps, arrays, pointers and exported struct fields are duplicated.
// Unexported struct fields are copied shallowly since they cannot be set via
// reflection. Errors, channels, funcs and values implementing [Shared] are
// passed by reference; [Copier] implementations supply their own copy.
package copyterm

import (
	"reflect"
)

// Shared marks a type whose values are handed to the receiver as-is. Use
// it for handles (PIDs, loggers, connection pools) and for data the sender
// promises not to mutate.
type Shared interface {
	SharedTerm()
}

// Copier lets a type provide its own copy. The returned value must be
// assignable to the original type or it is ignored.
type Copier interface {
	CopyTerm() any
}

var (
	errorType  = reflect.TypeFor[error]()
	sharedType = reflect.TypeFor[Shared]()
	copierType = reflect.TypeFor[Copier]()
)

type visitKey struct {
	ptr uintptr
	typ reflect.Type
	len int
}

type copier struct {
	visited map[visitKey]reflect.Value
}

// Copy returns a deep copy of term.
func Copy(term any) any {
	if term == nil {
		return nil
	}
	c := &copier{visited: make(map[visitKey]reflect.Value)}
	return c.copy(reflect.ValueOf(term)).Interface()
}

func (c *copier) copy(v reflect.Value) reflect.Value {
	if !v.IsValid() {
		return v
	}
	t := v.Type()

	if t.Kind() != reflect.Interface {
		if t.Implements(copierType) && v.CanInterface() && !isNilPtr(v) {
			cp := reflect.ValueOf(v.Interface().(Copier).CopyTerm())
			if cp.IsValid() && cp.Type().AssignableTo(t) {
				return cp
			}
		}
		if t.Implements(sharedType) || t.Implements(errorType) {
			return v
		}
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		key := visitKey{ptr: v.Pointer(), typ: t}
		if seen, ok := c.visited[key]; ok {
			return seen
		}
		n := reflect.New(t.Elem())
		c.visited[key] = n
		n.Elem().Set(c.copy(v.Elem()))
		return n

	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(t).Elem()
		out.Set(c.copy(v.Elem()))
		return out

	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		key := visitKey{ptr: v.Pointer(), typ: t, len: v.Len()}
		if seen, ok := c.visited[key]; ok {
			return seen
		}
		n := reflect.MakeSlice(t, v.Len(), v.Len())
		c.visited[key] = n
		for i := range v.Len() {
			n.Index(i).Set(c.copy(v.Index(i)))
		}
		return n

	case reflect.Map:
		if v.IsNil() {
			return v
		}
		key := visitKey{ptr: v.Pointer(), typ: t}
		if seen, ok := c.visited[key]; ok {
			return seen
		}
		n := reflect.MakeMapWithSize(t, v.Len())
		c.visited[key] = n
		iter := v.MapRange()
		for iter.Next() {
			n.SetMapIndex(c.copy(iter.Key()), c.copy(iter.Value()))
		}
		return n

	case reflect.Array:
		n := reflect.New(t).Elem()
		for i := range v.Len() {
			n.Index(i).Set(c.copy(v.Index(i)))
		}
		return n

	case reflect.Struct:
		n := reflect.New(t).Elem()
		n.Set(v)
		for i := range t.NumField() {
			if !t.Field(i).IsExported() {
				continue
			}
			n.Field(i).Set(c.copy(v.Field(i)))
		}
		return n

	default:
		// scalars, strings, chans, funcs
		return v
	}
}

func isNilPtr(v reflect.Value) bool {
	return v.Kind() == reflect.Pointer && v.IsNil()
}

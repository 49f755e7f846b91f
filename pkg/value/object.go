package value

import (
	"reflect"
)

// Object is a lazy handle on a Go struct, or a pointer to one. Exported
// fields are converted only when read, so host object graphs with back
// pointers are never walked as a whole.
type Object struct {
	rv reflect.Value
}

func (o *Object) elem() reflect.Value {
	if o.rv.Kind() == reflect.Pointer {
		return o.rv.Elem()
	}
	return o.rv
}

// TypeName is the Go type name of the underlying struct.
func (o *Object) TypeName() string {
	if name := o.elem().Type().Name(); name != "" {
		return name
	}
	return "object"
}

func (o *Object) String() string { return "<" + o.TypeName() + ">" }
func (o *Object) Truth() bool    { return true }

// Lookup implements Accessor over the exported fields, promoted fields
// included.
func (o *Object) Lookup(name string) (Value, bool) {
	s := o.elem()
	f, ok := s.Type().FieldByName(name)
	if !ok || !f.IsExported() {
		return nil, false
	}
	fv, err := s.FieldByIndexErr(f.Index)
	if err != nil {
		// Promoted through a nil embedded pointer.
		return None, true
	}
	return FromGo(fv.Interface()), true
}

// Interface returns the wrapped Go value.
func (o *Object) Interface() any { return o.rv.Interface() }

// same reports whether o and p wrap the same pointer, or equal struct values.
func (o *Object) same(p *Object) bool {
	if o.rv.Type() != p.rv.Type() {
		return false
	}
	if o.rv.Kind() == reflect.Pointer {
		return o.rv.Pointer() == p.rv.Pointer()
	}
	return reflect.DeepEqual(o.rv.Interface(), p.rv.Interface())
}

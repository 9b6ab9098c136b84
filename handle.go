package doclock

import (
	"fmt"
	"reflect"
)

// Handle is the opaque capability every lockable instance presents to the
// engine. The engine never reaches into an instance's fields directly; it
// only ever calls ClassName to find the instance's Descriptor, and then
// drives that Descriptor's Sources against the instance.
//
// Binding doclock into a particular ORM or object model - deciding what
// ClassName returns, what an "id" field means - is explicitly out of scope
// (spec.md SS1); Handle is the minimal seam that keeps this package free of
// any such binding.
type Handle interface {
	// ClassName identifies which registered Descriptor governs this
	// instance. It must be stable for the lifetime of the process for a
	// given Go type.
	ClassName() string
}

// StringSource evaluates to the scope or key of a Handle. It is the Go
// rendition of spec.md's tagged union {literal string, symbolic accessor,
// callable}: a plain func literal already is the "callable" variant, and
// Literal/Method below construct the other two without needing a separate
// enum type.
type StringSource func(Handle) (string, error)

// ParentSource evaluates to the parent Handle of a non-root instance. A
// (nil, nil) result means no parent was found; resolveRoot reports that as
// ErrInvalidConfig, since only a descriptor without a ParentSource is a
// root.
type ParentSource func(Handle) (Handle, error)

// Literal returns a StringSource that ignores its argument and always
// yields s. Used for descriptors whose scope is a fixed string rather than
// derived per-instance (spec.md SS3: "scope_source ... one of: literal
// string, ...").
func Literal(s string) StringSource {
	return func(Handle) (string, error) { return s, nil }
}

// Method returns a StringSource that invokes the zero-argument, single
// string-returning method named name on the instance via reflection - the
// Go stand-in for spec.md's "symbolic method name to invoke on the
// instance". It raises ErrInvalidConfig, not a panic, if the method does
// not exist or has the wrong shape, matching spec.md SS4.B ("raises
// InvalidConfig if the configured source kind is none of the accepted
// variants").
func Method(name string) StringSource {
	return func(h Handle) (string, error) {
		v, err := callZeroArgMethod(h, name)
		if err != nil {
			return "", err
		}
		s, ok := v.Interface().(string)
		if !ok {
			return "", fmt.Errorf("%w: method %q on %T does not return a string", ErrInvalidConfig, name, h)
		}
		return s, nil
	}
}

// ParentMethod returns a ParentSource that invokes the zero-argument method
// named name on the instance and expects it to return a Handle (or a type
// implementing Handle). A nil result yields (nil, nil), which resolveRoot
// reports as ErrInvalidConfig.
func ParentMethod(name string) ParentSource {
	return func(h Handle) (Handle, error) {
		v, err := callZeroArgMethod(h, name)
		if err != nil {
			return nil, err
		}
		if v.Kind() == reflect.Interface || v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return nil, nil
			}
		}
		parent, ok := v.Interface().(Handle)
		if !ok {
			return nil, fmt.Errorf("%w: method %q on %T does not return a Handle", ErrInvalidConfig, name, h)
		}
		return parent, nil
	}
}

func callZeroArgMethod(h Handle, name string) (reflect.Value, error) {
	v := reflect.ValueOf(h)
	m := v.MethodByName(name)
	if !m.IsValid() {
		return reflect.Value{}, fmt.Errorf("%w: no method %q on %T", ErrInvalidConfig, name, h)
	}
	mt := m.Type()
	if mt.NumIn() != 0 || mt.NumOut() != 1 {
		return reflect.Value{}, fmt.Errorf("%w: method %q on %T must take no arguments and return one value", ErrInvalidConfig, name, h)
	}
	out := m.Call(nil)
	return out[0], nil
}

// Typed field constructors bridging entity structs to untyped Field accessors.

package jsondb

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64
}

type float interface {
	~float32 | ~float64
}

// String declares a text field.
func String[T Entity](name string, get func(T) string, set func(T, string)) Field {
	return scalar(name, KindString, get, set)
}

// Bool declares a boolean field.
func Bool[T Entity](name string, get func(T) bool, set func(T, bool)) Field {
	return scalar(name, KindBool, get, set)
}

// Bytes declares a byte sequence field.
func Bytes[T Entity](name string, get func(T) []byte, set func(T, []byte)) Field {
	return scalar(name, KindBytes, get, set)
}

// Time declares a timestamp field.
func Time[T Entity](name string, get func(T) time.Time, set func(T, time.Time)) Field {
	return scalar(name, KindTime, get, set)
}

// UUID declares a UUID field.
func UUID[T Entity](name string, get func(T) uuid.UUID, set func(T, uuid.UUID)) Field {
	return scalar(name, KindUUID, get, set)
}

// Int declares an integer field of any signed integer type. Values cross the
// untyped boundary as int64.
func Int[T Entity, V integer](name string, get func(T) V, set func(T, V)) Field {
	return scalar(name, KindInt,
		func(e T) int64 { return int64(get(e)) },
		func(e T, v int64) { set(e, V(v)) })
}

// Float declares a floating point field. Values cross the untyped boundary as
// float64.
func Float[T Entity, V float](name string, get func(T) V, set func(T, V)) Field {
	return scalar(name, KindFloat,
		func(e T) float64 { return float64(get(e)) },
		func(e T, v float64) { set(e, V(v)) })
}

func scalar[T Entity, V any](name string, kind Kind, get func(T) V, set func(T, V)) Field {
	return Field{
		Name: name,
		Kind: kind,
		Get: func(e Entity) any {
			t, ok := e.(T)
			if !ok {
				return nil
			}
			return get(t)
		},
		Set: func(e Entity, v any) error {
			t, ok := e.(T)
			if !ok {
				return fmt.Errorf("field %s: entity is %T", name, e)
			}
			val, ok := v.(V)
			if !ok {
				return fmt.Errorf("field %s: got %T, want %s", name, v, kind)
			}
			set(t, val)
			return nil
		},
	}
}

// Ref declares a navigation field holding one entity of the target type. It
// is persisted as the primary key of the referenced entity.
func Ref[T Entity, R Entity](name, target string, get func(T) R, set func(T, R)) Field {
	return Field{
		Name:   name,
		Kind:   KindReference,
		Role:   RoleForeignKey,
		Target: target,
		Get: func(e Entity) any {
			t, ok := e.(T)
			if !ok {
				return nil
			}
			r := get(t)
			var zero R
			if any(r) == any(zero) {
				return nil
			}
			return Entity(r)
		},
		Set: func(e Entity, v any) error {
			t, ok := e.(T)
			if !ok {
				return fmt.Errorf("field %s: entity is %T", name, e)
			}
			if v == nil {
				var zero R
				set(t, zero)
				return nil
			}
			r, ok := v.(R)
			if !ok {
				return fmt.Errorf("field %s: got %T, want %s", name, v, target)
			}
			set(t, r)
			return nil
		},
	}
}

// Collection declares a navigation field holding any number of entities of
// the target type. Collections are kept in memory only and never persisted.
func Collection[T Entity, R Entity](name, target string, get func(T) []R, set func(T, []R)) Field {
	return Field{
		Name:     name,
		Kind:     KindReference,
		Role:     RoleForeignKey,
		Multiple: true,
		Target:   target,
		Get: func(e Entity) any {
			t, ok := e.(T)
			if !ok {
				return nil
			}
			rs := get(t)
			if rs == nil {
				return nil
			}
			out := make([]Entity, len(rs))
			for i, r := range rs {
				out[i] = r
			}
			return out
		},
		Set: func(e Entity, v any) error {
			t, ok := e.(T)
			if !ok {
				return fmt.Errorf("field %s: entity is %T", name, e)
			}
			if v == nil {
				set(t, nil)
				return nil
			}
			es, ok := v.([]Entity)
			if !ok {
				return fmt.Errorf("field %s: got %T, want []%s", name, v, target)
			}
			rs := make([]R, len(es))
			for i, x := range es {
				r, ok := x.(R)
				if !ok {
					return fmt.Errorf("field %s: element %d is %T, want %s", name, i, x, target)
				}
				rs[i] = r
			}
			set(t, rs)
			return nil
		},
	}
}

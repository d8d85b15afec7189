// Describes entity types: their fields, primary key and navigation fields.

package jsondb

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"

	"github.com/google/uuid"
)

// Kind is the semantic value kind of a field.
type Kind int

const (
	// KindInvalid is the zero Kind. Fields of this kind encode as a placeholder.
	KindInvalid Kind = iota
	// KindString stores text.
	KindString
	// KindInt stores a signed integer, carried as int64.
	KindInt
	// KindFloat stores a floating point number, carried as float64.
	KindFloat
	// KindBool stores a boolean.
	KindBool
	// KindBytes stores a byte sequence, base64 encoded on disk.
	KindBytes
	// KindTime stores a time.Time, RFC 3339 encoded on disk.
	KindTime
	// KindUUID stores a uuid.UUID.
	KindUUID
	// KindReference stores a reference to another entity, or a collection of
	// them when Field.Multiple is set.
	KindReference
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindBytes:
		return "bytes"
	case KindTime:
		return "time"
	case KindUUID:
		return "uuid"
	case KindReference:
		return "reference"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Role tags a field with its role in the entity type.
type Role uint8

const (
	// RolePrimaryKey marks the field identifying an entity within its table.
	RolePrimaryKey Role = 1 << iota
	// RoleForeignKey marks a navigation field. It is persisted as the primary
	// key of the referenced entity.
	RoleForeignKey
)

// Entity is implemented by every type stored in a Table.
//
// Implementations are pointer types. EntityType must not dereference its
// receiver: it is called on a nil value to discover the type of a table.
type Entity interface {
	EntityType() *EntityType
}

// Field describes one field of an entity type.
//
// Get and Set give untyped access to the field. Scalar values cross as string,
// int64, float64, bool, []byte, time.Time or uuid.UUID according to Kind. A
// singular reference crosses as an Entity and a collection as []Entity; nil
// means unset in both cases.
//
// Use the typed constructors (String, Int, Ref, Collection, ...) rather than
// filling Get and Set by hand.
type Field struct {
	Name     string
	Kind     Kind
	Role     Role
	Multiple bool
	// Target is the name of the referenced entity type for KindReference.
	Target string

	Get func(Entity) any
	Set func(Entity, any) error
}

// PrimaryKey returns a copy of the field tagged as primary key.
func (f Field) PrimaryKey() Field {
	f.Role |= RolePrimaryKey
	return f
}

// IsPrimaryKey reports whether the field is the primary key.
func (f *Field) IsPrimaryKey() bool {
	return f.Role&RolePrimaryKey != 0
}

// IsForeignKey reports whether the field navigates to another entity.
func (f *Field) IsForeignKey() bool {
	return f.Role&RoleForeignKey != 0
}

// EntityType is the static description of an entity type.
//
// Its Name is also the table name and the base name of the table file.
type EntityType struct {
	Name   string
	Fields []Field
	// New returns a new zero entity of this type. It is used when loading.
	New func() Entity
}

// NewEntityType returns an entity type. Call Validate, or let OpenTable do
// it, before use.
func NewEntityType(name string, newFn func() Entity, fields ...Field) *EntityType {
	return &EntityType{Name: name, Fields: fields, New: newFn}
}

// Validate checks that the entity type is well-formed.
func (t *EntityType) Validate() error {
	if t == nil {
		return configErrorf("nil entity type")
	}
	if t.Name == "" {
		return configErrorf("entity type name is required")
	}
	if t.New == nil {
		return configErrorf("%s: New is required", t.Name)
	}
	seen := make(map[string]bool, len(t.Fields))
	var keys []string
	for i := range t.Fields {
		f := &t.Fields[i]
		if f.Name == "" {
			return configErrorf("%s: field %d: name is required", t.Name, i)
		}
		if seen[f.Name] {
			return configErrorf("%s: duplicate field %q", t.Name, f.Name)
		}
		seen[f.Name] = true
		if f.Get == nil || f.Set == nil {
			return configErrorf("%s.%s: accessors are required", t.Name, f.Name)
		}
		if f.Kind == KindReference && f.Target == "" {
			return configErrorf("%s.%s: reference target is required", t.Name, f.Name)
		}
		if f.IsPrimaryKey() {
			keys = append(keys, f.Name)
		}
	}
	switch len(keys) {
	case 0:
		return fmt.Errorf("%s: %w", t.Name, ErrMissingPrimaryKeyField)
	case 1:
	default:
		return configErrorf("%s: several primary keys %v", t.Name, keys)
	}
	pk, _ := t.PrimaryKey()
	if pk.Kind != KindInt && pk.Kind != KindUUID {
		return fmt.Errorf("%s.%s is %s: %w", t.Name, pk.Name, pk.Kind, ErrUnsupportedKeyType)
	}
	return nil
}

// PrimaryKey returns the field tagged as primary key.
func (t *EntityType) PrimaryKey() (*Field, error) {
	for i := range t.Fields {
		if t.Fields[i].IsPrimaryKey() {
			return &t.Fields[i], nil
		}
	}
	return nil, fmt.Errorf("%s: %w", t.Name, ErrMissingPrimaryKeyField)
}

// Field returns the field with the given name.
func (t *EntityType) Field(name string) (*Field, bool) {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i], true
		}
	}
	return nil, false
}

// KeyOf returns the canonical primary key of e.
func KeyOf(e Entity) (string, error) {
	if isNilEntity(e) {
		return "", errors.New("nil entity")
	}
	t := e.EntityType()
	if t == nil {
		return "", fmt.Errorf("%T has no entity type: %w", e, ErrMissingPrimaryKeyField)
	}
	pk, err := t.PrimaryKey()
	if err != nil {
		return "", err
	}
	return CanonicalKey(pk.Get(e)), nil
}

// CanonicalKey returns the string form used to compare primary keys
// regardless of their kind.
func CanonicalKey(key any) string {
	switch v := key.(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case uuid.UUID:
		return v.String()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func isNilEntity(e Entity) bool {
	if e == nil {
		return true
	}
	v := reflect.ValueOf(e)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// Declarative relationships between entity types.

package jsondb

import (
	"errors"
	"fmt"
	"slices"
)

// Relationship links a navigation field of the owner type to the field of
// the other type pointing back.
//
// OwnerField holds one entity of OtherType. OtherField, on that entity, holds
// either one owner entity or a collection of them.
type Relationship struct {
	OwnerType  string
	OtherType  string
	OwnerField *Field
	OtherField *Field
}

// Incomplete reports whether the relationship is missing its other type or
// either navigation field. Incomplete relationships are never synchronized.
func (r *Relationship) Incomplete() bool {
	return r.OtherType == "" || r.OwnerField == nil || r.OtherField == nil
}

// Many reports whether the other side holds a collection.
func (r *Relationship) Many() bool {
	return r.OtherField != nil && r.OtherField.Multiple
}

func (r *Relationship) String() string {
	owner, other := "?", "?"
	if r.OwnerField != nil {
		owner = r.OwnerField.Name
	}
	if r.OtherField != nil {
		other = r.OtherField.Name
	}
	otherType := r.OtherType
	if otherType == "" {
		otherType = "?"
	}
	return fmt.Sprintf("%s.%s <-> %s.%s", r.OwnerType, owner, otherType, other)
}

// Registry holds the relationships declared while configuring a DB.
//
// It is written once by the configuration callback and only read afterward.
type Registry struct {
	types         map[string]*EntityType
	relationships []*Relationship
	errs          []error
	frozen        bool
}

// NewRegistry returns an empty registry resolving entity type names against
// types.
func NewRegistry(types ...*EntityType) *Registry {
	reg := &Registry{types: make(map[string]*EntityType, len(types))}
	for _, t := range types {
		reg.types[t.Name] = t
	}
	return reg
}

// Model starts the declaration of a relationship owned by t.
//
// The relationship is registered immediately and stays incomplete until both
// HasOne and WithMany or WithOne succeed.
func (reg *Registry) Model(t *EntityType) *RelationshipBuilder {
	b := &RelationshipBuilder{reg: reg}
	if reg.frozen {
		b.fail("registry is frozen")
		return b
	}
	if t == nil {
		b.fail("nil entity type")
		return b
	}
	if known, ok := reg.types[t.Name]; ok && known != t {
		b.fail("%s: conflicting entity type declarations", t.Name)
		return b
	}
	reg.types[t.Name] = t
	b.owner = t
	b.rel = &Relationship{OwnerType: t.Name}
	reg.relationships = append(reg.relationships, b.rel)
	return b
}

// Relationships returns the relationships owned by the named type, in
// registration order.
func (reg *Registry) Relationships(typeName string) []*Relationship {
	var out []*Relationship
	for _, r := range reg.relationships {
		if r.OwnerType == typeName {
			out = append(out, r)
		}
	}
	return out
}

// All returns every registered relationship in registration order.
func (reg *Registry) All() []*Relationship {
	return slices.Clone(reg.relationships)
}

// Freeze ends the configuration. It returns every configuration error
// recorded by the builders. Incomplete relationships are not an error.
func (reg *Registry) Freeze() error {
	reg.frozen = true
	return errors.Join(reg.errs...)
}

// RelationshipBuilder declares the two sides of a relationship.
type RelationshipBuilder struct {
	reg    *Registry
	owner  *EntityType
	other  *EntityType
	rel    *Relationship
	err    error
	failed bool
}

// HasOne records the owner's navigation field. It must hold a single entity;
// its target type becomes the other side of the relationship.
func (b *RelationshipBuilder) HasOne(ownerField string) *RelationshipBuilder {
	if b.failed {
		return b
	}
	f, ok := b.owner.Field(ownerField)
	if !ok {
		return b.fail("%s has no field %q", b.owner.Name, ownerField)
	}
	if f.Kind != KindReference {
		return b.fail("%s.%s is %s, not a reference", b.owner.Name, f.Name, f.Kind)
	}
	if f.Multiple {
		return b.fail("%s.%s is a collection; HasOne requires a single reference", b.owner.Name, f.Name)
	}
	other, ok := b.reg.types[f.Target]
	if !ok {
		return b.fail("%s.%s references unknown type %q", b.owner.Name, f.Name, f.Target)
	}
	b.other = other
	b.rel.OwnerField = f
	b.rel.OtherType = other.Name
	return b
}

// HasMany is rejected: synchronizing from a collection on the owner side
// (many-to-one and many-to-many) is not supported.
func (b *RelationshipBuilder) HasMany(ownerField string) *RelationshipBuilder {
	if b.failed {
		return b
	}
	return b.fail("%s.%s: HasMany relationships are not supported", b.owner.Name, ownerField)
}

// WithMany records the collection on the other type holding owner entities.
func (b *RelationshipBuilder) WithMany(otherField string) *RelationshipBuilder {
	return b.with(otherField, true)
}

// WithOne records the field on the other type holding one owner entity.
func (b *RelationshipBuilder) WithOne(otherField string) *RelationshipBuilder {
	return b.with(otherField, false)
}

func (b *RelationshipBuilder) with(otherField string, many bool) *RelationshipBuilder {
	if b.failed {
		return b
	}
	if b.other == nil {
		return b.fail("%s: HasOne must be declared before %s", b.owner.Name, withName(many))
	}
	if b.rel.OtherField != nil {
		return b.fail("%s: other side already declared as %s", b.rel, b.rel.OtherField.Name)
	}
	f, ok := b.other.Field(otherField)
	if !ok {
		return b.fail("%s has no field %q", b.other.Name, otherField)
	}
	if f.Kind != KindReference || f.Target != b.owner.Name {
		return b.fail("%s.%s does not reference %s", b.other.Name, f.Name, b.owner.Name)
	}
	if f.Multiple != many {
		if many {
			return b.fail("%s.%s is not a collection; use WithOne", b.other.Name, f.Name)
		}
		return b.fail("%s.%s is a collection; use WithMany", b.other.Name, f.Name)
	}
	b.rel.OtherField = f
	return b
}

// Err returns the configuration error recorded by this builder, if any.
func (b *RelationshipBuilder) Err() error {
	return b.err
}

func (b *RelationshipBuilder) fail(format string, args ...any) *RelationshipBuilder {
	b.failed = true
	b.err = configErrorf(format, args...)
	b.reg.errs = append(b.reg.errs, b.err)
	return b
}

func withName(many bool) string {
	if many {
		return "WithMany"
	}
	return "WithOne"
}

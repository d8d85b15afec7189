// Propagates inserted entities into the navigation fields of the entities
// they reference.

package jsondb

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

var (
	errIncomplete        = errors.New("relationship is incomplete")
	errOwnerCollection   = errors.New("owner side is a collection; reverse synchronization is not supported")
	errAlreadyReferenced = errors.New("already referenced")
)

// synchronizer is the TableObserver the DB attaches to its tables.
type synchronizer struct {
	db *DB
}

// OnAdd implements TableObserver. It runs with the DB lock held.
func (s *synchronizer) OnAdd(e Entity) {
	s.db.synchronize(context.Background(), e)
}

// Synchronize updates the navigation fields of every entity e references,
// following the relationships owned by e's type. It returns the number of
// relationships that changed a navigation field.
//
// DB.Add and Table.Add already call it; call it directly after changing a
// navigation field of an entity that is already stored.
func (db *DB) Synchronize(ctx context.Context, e Entity) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.initialized {
		return 0
	}
	return db.synchronize(ctx, e)
}

func (db *DB) synchronize(ctx context.Context, e Entity) int {
	if isNilEntity(e) {
		return 0
	}
	name := e.EntityType().Name
	n := 0
	for _, r := range db.registry.Relationships(name) {
		err := syncRelationship(e, r)
		switch {
		case err == nil:
			n++
		case errors.Is(err, errAlreadyReferenced):
		case errors.Is(err, errIncomplete), errors.Is(err, errOwnerCollection):
			db.log.DebugContext(ctx, "Skipping relationship", "type", name, "relationship", r.String(), "err", err)
		default:
			db.log.WarnContext(ctx, "Failed to synchronize relationship", "type", name, "relationship", r.String(), "err", err)
		}
	}
	return n
}

// syncRelationship applies one relationship for the freshly added entity e.
func syncRelationship(e Entity, r *Relationship) error {
	if r.Incomplete() {
		return errIncomplete
	}
	var ref Entity
	switch v := r.OwnerField.Get(e).(type) {
	case nil:
		return fmt.Errorf("%s.%s is not set", r.OwnerType, r.OwnerField.Name)
	case []Entity:
		return errOwnerCollection
	case Entity:
		ref = v
	default:
		return fmt.Errorf("%s.%s holds %T", r.OwnerType, r.OwnerField.Name, v)
	}
	if isNilEntity(ref) {
		return fmt.Errorf("%s.%s is not set", r.OwnerType, r.OwnerField.Name)
	}
	if got := typeName(ref.EntityType()); got != r.OtherType {
		return fmt.Errorf("%s.%s references %s, want %s", r.OwnerType, r.OwnerField.Name, got, r.OtherType)
	}

	back := r.OtherField.Get(ref)
	if back == nil && r.OtherField.Multiple {
		back = []Entity{}
	}
	values, ok := back.([]Entity)
	if !ok {
		// Single back-reference: last write wins. The entity previously
		// referenced keeps its own forward link.
		return r.OtherField.Set(ref, e)
	}
	if len(values) == 0 {
		return r.OtherField.Set(ref, []Entity{e})
	}
	key, err := KeyOf(e)
	if err != nil {
		return err
	}
	for _, v := range values {
		k, err := KeyOf(v)
		if err != nil {
			return err
		}
		if k == key {
			return errAlreadyReferenced
		}
	}
	return r.OtherField.Set(ref, append(slices.Clone(values), e))
}

package jsondb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// DB owns one Table per declared entity type and the relationships between
// them.
//
// Declare tables with Declare, then call Initialize once. Entities added
// afterward, through DB.Add or a Table, are persisted and synchronized into
// the navigation fields of the entities they reference.
type DB struct {
	dir       string
	configure func(*Registry)
	opts      *options
	log       *slog.Logger

	// mu is shared by every table of the DB.
	mu          sync.RWMutex
	registry    *Registry
	tables      map[string]AnyTable
	order       []AnyTable
	initialized bool
}

// New returns a DB storing its tables in dir. configure, if not nil, is
// called once by Initialize to declare relationships.
func New(dir string, configure func(*Registry), opts ...Option) *DB {
	o := newOptions(opts)
	return &DB{
		dir:       dir,
		configure: configure,
		opts:      o,
		log:       o.logger,
		tables:    make(map[string]AnyTable),
	}
}

// Declare declares the table storing T and returns it. The table is usable
// once db.Initialize succeeded.
//
// It panics when called after Initialize or twice for the same type.
func Declare[T Entity](db *DB) *Table[T] {
	db.mu.Lock()
	defer db.mu.Unlock()
	t := newTable[T](&db.mu)
	if db.initialized {
		panic(fmt.Sprintf("jsondb: Declare(%s) after Initialize", typeName(t.typ)))
	}
	if t.typ == nil {
		var zero T
		panic(fmt.Sprintf("jsondb: %T has no entity type", zero))
	}
	if _, ok := db.tables[t.typ.Name]; ok {
		panic(fmt.Sprintf("jsondb: table %s declared twice", t.typ.Name))
	}
	db.tables[t.typ.Name] = t
	db.order = append(db.order, t)
	return t
}

// Initialize configures the relationships, opens every declared table and
// loads their content.
//
// Any failure is fatal: tables already opened are closed and the DB stays
// unusable.
func (db *DB) Initialize(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.initialized {
		return errors.New("database already initialized")
	}
	if err := checkDir(db.dir); err != nil {
		return err
	}
	types := make([]*EntityType, 0, len(db.order))
	for _, t := range db.order {
		types = append(types, t.Type())
	}
	reg := NewRegistry(types...)
	if db.configure != nil {
		db.configure(reg)
	}
	if err := reg.Freeze(); err != nil {
		return fmt.Errorf("failed to configure relationships: %w", err)
	}
	for _, r := range reg.All() {
		if r.Incomplete() {
			db.log.WarnContext(ctx, "Relationship is incomplete and will not be synchronized", "relationship", r.String())
		}
	}
	for i, t := range db.order {
		if err := t.open(db.dir, db.opts); err != nil {
			closeTables(db.order[:i])
			return err
		}
	}
	if err := loadTables(db.log, db.order); err != nil {
		closeTables(db.order)
		return fmt.Errorf("failed to load database: %w", err)
	}
	obs := &synchronizer{db: db}
	for _, t := range db.order {
		t.attach(obs)
	}
	db.registry = reg
	db.initialized = true
	db.log.DebugContext(ctx, "Database initialized", "dir", db.dir, "tables", len(db.order), "relationships", len(reg.All()))
	return nil
}

// Add adds e to the table of its type. See Table.Add.
func (db *DB) Add(e Entity, persist bool) error {
	if isNilEntity(e) {
		return errors.New("cannot add nil entity")
	}
	typ := e.EntityType()
	if typ == nil {
		return fmt.Errorf("%T has no entity type: %w", e, ErrMissingPrimaryKeyField)
	}
	t, err := db.Table(typ.Name)
	if err != nil {
		return err
	}
	return t.AddEntity(e, persist)
}

// Table returns the table storing the named type.
func (db *DB) Table(name string) (AnyTable, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if !db.initialized {
		return nil, ErrUninitialized
	}
	t, ok := db.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return t, nil
}

// TableOf returns the typed table storing T.
func TableOf[T Entity](db *DB) (*Table[T], error) {
	var zero T
	typ := zero.EntityType()
	if typ == nil {
		return nil, fmt.Errorf("%w: %T has no entity type", ErrTableNotFound, zero)
	}
	t, err := db.Table(typ.Name)
	if err != nil {
		return nil, err
	}
	tt, ok := t.(*Table[T])
	if !ok {
		return nil, fmt.Errorf("%w: %s is not stored as %T", ErrTableNotFound, typ.Name, zero)
	}
	return tt, nil
}

// Dir returns the directory holding the table files.
func (db *DB) Dir() string {
	return db.dir
}

// Types returns the declared entity types in declaration order.
func (db *DB) Types() []*EntityType {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]*EntityType, len(db.order))
	for i, t := range db.order {
		out[i] = t.Type()
	}
	return out
}

// Relationships returns the relationships owned by the named type.
func (db *DB) Relationships(name string) ([]*Relationship, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if !db.initialized {
		return nil, ErrUninitialized
	}
	return db.registry.Relationships(name), nil
}

// Close closes every table. The DB can't be used afterward.
func (db *DB) Close() error {
	db.mu.Lock()
	initialized := db.initialized
	db.initialized = false
	db.mu.Unlock()
	if !initialized {
		return nil
	}
	var errs []error
	for _, t := range db.order {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func closeTables(tables []AnyTable) {
	for _, t := range tables {
		_ = t.closeLocked()
	}
}

func typeName(t *EntityType) string {
	if t == nil {
		return "<nil>"
	}
	return t.Name
}

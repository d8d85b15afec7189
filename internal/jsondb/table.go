package jsondb

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Option configures a DB or a standalone Table.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	resetCorrupt bool
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithResetCorrupt makes a table whose file can't be decoded start empty
// instead of failing. The file is truncated when the table is opened.
func WithResetCorrupt(reset bool) Option {
	return func(o *options) { o.resetCorrupt = reset }
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// TableObserver is notified after an entity is added to a table.
type TableObserver interface {
	OnAdd(e Entity)
}

// AnyTable is the untyped view of a Table.
type AnyTable interface {
	Type() *EntityType
	Path() string
	Len() int
	ContainsKey(key any) bool
	Lookup(key any) (Entity, bool)
	Entities() iter.Seq[Entity]
	AddEntity(e Entity, persist bool) error
	Close() error

	open(dir string, o *options) error
	attach(obs TableObserver)
	materialize() ([]loadedRow, error)
	lookupLocked(key string) (Entity, bool)
	closeLocked() error
}

// Table stores the entities of one type in memory, backed by one file.
//
// Rows keep load order followed by insertion order. The backing file is held
// open for the lifetime of the table.
type Table[T Entity] struct {
	typ  *EntityType
	mu   *sync.RWMutex
	path string
	f    *os.File
	log  *slog.Logger

	rows      []T
	raw       []Record
	observers []TableObserver
}

// OpenTable opens the table of T stored in dir and loads its entities.
//
// dir must be an existing directory. The file is created if missing.
// References to other types are left unset since no other table is known;
// use a DB to resolve them.
func OpenTable[T Entity](dir string, opts ...Option) (*Table[T], error) {
	o := newOptions(opts)
	t := newTable[T](&sync.RWMutex{})
	if err := t.open(dir, o); err != nil {
		return nil, err
	}
	if err := loadTables(o.logger, []AnyTable{t}); err != nil {
		_ = t.closeLocked()
		return nil, err
	}
	return t, nil
}

func newTable[T Entity](mu *sync.RWMutex) *Table[T] {
	var zero T
	return &Table[T]{typ: zero.EntityType(), mu: mu}
}

func (t *Table[T]) open(dir string, o *options) error {
	if err := checkDir(dir); err != nil {
		return err
	}
	if err := t.typ.Validate(); err != nil {
		return err
	}
	t.log = o.logger
	t.path = filepath.Join(dir, t.typ.Name+".json")
	f, err := os.OpenFile(t.path, os.O_RDWR|os.O_CREATE, 0o644) //nolint:gosec // G304: path is built from the database directory
	if err != nil {
		return fmt.Errorf("failed to open table file %s: %w", t.path, err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to read table file %s: %w", t.path, err)
	}
	records, err := Decode(data)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			de.Path = t.path
		}
		if !o.resetCorrupt {
			_ = f.Close()
			return err
		}
		t.log.Warn("Discarding corrupt table file", "type", t.typ.Name, "path", t.path, "err", err)
		if err := f.Truncate(0); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to reset table file %s: %w", t.path, err)
		}
		records = nil
	} else if size := appendableSize(data, len(records)); size != int64(len(data)) {
		t.log.Debug("Trimming table file", "type", t.typ.Name, "path", t.path, "from", len(data), "to", size)
		if err := f.Truncate(size); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to trim table file %s: %w", t.path, err)
		}
	}
	t.f = f
	t.raw = records
	t.rows = make([]T, 0, len(records))
	return nil
}

func checkDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidPath, dir)
	}
	return nil
}

// Type returns the entity type stored in the table.
func (t *Table[T]) Type() *EntityType {
	return t.typ
}

// Path returns the path of the backing file.
func (t *Table[T]) Path() string {
	return t.path
}

// Len returns the number of entities.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Last returns the last entity in insertion order, or false if empty.
func (t *Table[T]) Last() (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.rows) == 0 {
		var zero T
		return zero, false
	}
	return t.rows[len(t.rows)-1], true
}

// All returns an iterator over the entities in order.
//
// Entities are shared, not copied: navigation fields point at the same
// values. Do not call Add or DB.Synchronize while iterating.
func (t *Table[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		t.mu.RLock()
		defer t.mu.RUnlock()
		for _, row := range t.rows {
			if !yield(row) {
				return
			}
		}
	}
}

// Entities implements AnyTable.
func (t *Table[T]) Entities() iter.Seq[Entity] {
	return func(yield func(Entity) bool) {
		for row := range t.All() {
			if !yield(row) {
				return
			}
		}
	}
}

// ContainsKey reports whether an entity has the given primary key. Keys are
// compared by their canonical string form, so 2 and int64(2) match.
func (t *Table[T]) ContainsKey(key any) bool {
	_, ok := t.Get(key)
	return ok
}

// Get returns the entity with the given primary key.
func (t *Table[T]) Get(key any) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.lookupLocked(CanonicalKey(key)); ok {
		return e.(T), true
	}
	var zero T
	return zero, false
}

// Lookup implements AnyTable.
func (t *Table[T]) Lookup(key any) (Entity, bool) {
	return t.Get(key)
}

func (t *Table[T]) lookupLocked(key string) (Entity, bool) {
	pk, err := t.typ.PrimaryKey()
	if err != nil {
		return nil, false
	}
	for _, row := range t.rows {
		if CanonicalKey(pk.Get(row)) == key {
			return row, true
		}
	}
	return nil, false
}

// Add appends entity to the table.
//
// When persist is true the entity receives a new primary key and is appended
// to the file. An integer key is the key of the last entity plus one, or 1
// for an empty table; a UUID key is random. When persist is false the entity
// is only registered in memory, unchanged.
//
// Observers, such as the DB's relationship synchronizer, run afterward.
func (t *Table[T]) Add(entity T, persist bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return fmt.Errorf("table %s: %w", t.typ.Name, ErrUninitialized)
	}
	if isNilEntity(entity) {
		return fmt.Errorf("table %s: cannot add nil entity", t.typ.Name)
	}
	if persist {
		if err := t.assignKey(entity); err != nil {
			return err
		}
		enc, err := Encode(entity)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", t.typ.Name, err)
		}
		if _, err := appendRecord(t.f, enc); err != nil {
			return err
		}
	}
	t.rows = append(t.rows, entity)
	for _, o := range t.observers {
		o.OnAdd(entity)
	}
	return nil
}

// AddEntity implements AnyTable.
func (t *Table[T]) AddEntity(e Entity, persist bool) error {
	row, ok := e.(T)
	if !ok {
		return fmt.Errorf("table %s: cannot add %T", t.typ.Name, e)
	}
	return t.Add(row, persist)
}

func (t *Table[T]) assignKey(entity T) error {
	pk, err := t.typ.PrimaryKey()
	if err != nil {
		return err
	}
	switch pk.Kind {
	case KindInt:
		next := int64(1)
		if n := len(t.rows); n != 0 {
			last, ok := pk.Get(t.rows[n-1]).(int64)
			if !ok {
				return fmt.Errorf("%s.%s: last key is not an integer", t.typ.Name, pk.Name)
			}
			next = last + 1
		}
		return pk.Set(entity, next)
	case KindUUID:
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate key for %s: %w", t.typ.Name, err)
		}
		return pk.Set(entity, id)
	default:
		return fmt.Errorf("%s.%s is %s: %w", t.typ.Name, pk.Name, pk.Kind, ErrUnsupportedKeyType)
	}
}

// AddObserver registers an observer notified after each Add.
func (t *Table[T]) AddObserver(obs TableObserver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attach(obs)
}

func (t *Table[T]) attach(obs TableObserver) {
	t.observers = append(t.observers, obs)
}

// Close releases the backing file.
func (t *Table[T]) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked()
}

func (t *Table[T]) closeLocked() error {
	if t.f == nil {
		return nil
	}
	err := t.f.Close()
	t.f = nil
	return err
}

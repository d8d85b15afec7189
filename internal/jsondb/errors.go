package jsondb

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPath is returned when the database directory is empty or is not
	// an existing directory.
	ErrInvalidPath = errors.New("invalid database directory")
	// ErrMissingPrimaryKeyField is returned when an entity type has no field
	// tagged as primary key.
	ErrMissingPrimaryKeyField = errors.New("missing primary key field")
	// ErrUnsupportedKeyType is returned when the primary key is neither an
	// integer nor a UUID.
	ErrUnsupportedKeyType = errors.New("unsupported primary key type")
	// ErrUninitialized is returned when a table or the registry is used before
	// DB.Initialize completed.
	ErrUninitialized = errors.New("database is not initialized")
	// ErrConfiguration is returned for invalid entity type or relationship
	// declarations.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrDecode is matched by every *DecodeError.
	ErrDecode = errors.New("invalid table content")
	// ErrTableNotFound is returned when no table was declared for a type.
	ErrTableNotFound = errors.New("table not found")
)

// DecodeError reports a table file whose content is not a JSON array of
// objects, or whose values don't match the entity type.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid table content: %v", e.Err)
	}
	return fmt.Sprintf("invalid table file %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying parse error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrDecode) true for every DecodeError.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

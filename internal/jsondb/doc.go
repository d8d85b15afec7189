// Package jsondb provides an embedded, file-backed object store with declarative
// relationships between entity types.
//
// # Overview
//
// Each entity type is described once by an [EntityType]: its ordered fields,
// which field is the primary key and which fields navigate to other entities.
// A [DB] owns one [Table] per declared type and a [Registry] of relationships.
// Entities added through a table are persisted and then propagated into the
// navigation fields of the entities they reference.
//
// # File Format
//
// One file per entity type, named "<TypeName>.json", holding a single JSON
// array of objects in insertion order. Inserts never rewrite prior content: the
// closing bracket is overwritten by ",<object>]". The last byte of a table file
// must therefore always be ']' between operations. Nothing validates this;
// editing a table file by hand while the database is open corrupts the next
// append.
//
// # Concurrency
//
// A DB is meant to be driven by one logical writer. All tables of a DB share
// one lock so relationship propagation, which mutates entities of several
// tables, is serialized with inserts. Two processes opening the same
// directory is not supported.
package jsondb

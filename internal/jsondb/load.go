// Converts decoded records into typed entities when tables are opened.

package jsondb

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// loadedRow pairs an entity built during load with the record it came from,
// so references can be resolved once every table is populated.
type loadedRow struct {
	e   Entity
	rec Record
}

// loadTables populates tables from the records decoded at open.
//
// The first pass builds every entity from its scalar fields. The second pass
// resolves single references against the loaded tables. References to a
// table that isn't loaded, or to a key that doesn't exist, are logged and
// left unset. Relationships are not synchronized during load.
func loadTables(log *slog.Logger, tables []AnyTable) error {
	byName := make(map[string]AnyTable, len(tables))
	var loaded []loadedRow
	for _, t := range tables {
		byName[t.Type().Name] = t
		rows, err := t.materialize()
		if err != nil {
			return err
		}
		loaded = append(loaded, rows...)
	}
	for _, lr := range loaded {
		typ := lr.e.EntityType()
		for i := range typ.Fields {
			f := &typ.Fields[i]
			if !f.IsForeignKey() || f.Multiple {
				continue
			}
			raw, ok := lr.rec[f.Name]
			if !ok || raw == nil {
				continue
			}
			target, ok := byName[f.Target]
			if !ok {
				log.Debug("Reference target not loaded", "type", typ.Name, "field", f.Name, "target", f.Target)
				continue
			}
			key := rawKey(raw)
			ref, ok := target.lookupLocked(key)
			if !ok {
				log.Warn("Dangling reference", "type", typ.Name, "field", f.Name, "target", f.Target, "key", key)
				continue
			}
			if err := f.Set(lr.e, ref); err != nil {
				return fmt.Errorf("failed to resolve %s.%s: %w", typ.Name, f.Name, err)
			}
		}
	}
	return nil
}

func (t *Table[T]) materialize() ([]loadedRow, error) {
	out := make([]loadedRow, 0, len(t.raw))
	for i, rec := range t.raw {
		row, ok := t.typ.New().(T)
		if !ok {
			return nil, configErrorf("%s: New returns %T", t.typ.Name, t.typ.New())
		}
		for j := range t.typ.Fields {
			f := &t.typ.Fields[j]
			if f.IsForeignKey() {
				continue
			}
			raw, ok := rec[f.Name]
			if !ok || raw == nil {
				continue
			}
			v, err := decodeValue(f, raw)
			if err != nil {
				return nil, &DecodeError{Path: t.path, Err: fmt.Errorf("element %d: %s: %w", i, f.Name, err)}
			}
			if v == nil {
				continue
			}
			if err := f.Set(row, v); err != nil {
				return nil, &DecodeError{Path: t.path, Err: fmt.Errorf("element %d: %w", i, err)}
			}
		}
		t.rows = append(t.rows, row)
		out = append(out, loadedRow{e: row, rec: rec})
	}
	t.raw = nil
	return out, nil
}

// decodeValue converts a raw record value to the Go type carried by f.
// It returns nil for placeholders written for kinds the codec can't render.
func decodeValue(f *Field, raw any) (any, error) {
	if s, ok := raw.(string); ok && s == "Not implemented" && f.Kind != KindString {
		return nil, nil
	}
	switch f.Kind {
	case KindString:
		s, ok := raw.(string)
		if !ok {
			return nil, rawTypeError(f, raw)
		}
		return s, nil
	case KindInt:
		n, ok := raw.(json.Number)
		if !ok {
			return nil, rawTypeError(f, raw)
		}
		return n.Int64()
	case KindFloat:
		n, ok := raw.(json.Number)
		if !ok {
			return nil, rawTypeError(f, raw)
		}
		return n.Float64()
	case KindBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, rawTypeError(f, raw)
		}
		return b, nil
	case KindBytes:
		s, ok := raw.(string)
		if !ok {
			return nil, rawTypeError(f, raw)
		}
		return base64.StdEncoding.DecodeString(s)
	case KindTime:
		s, ok := raw.(string)
		if !ok {
			return nil, rawTypeError(f, raw)
		}
		return time.Parse(time.RFC3339Nano, s)
	case KindUUID:
		s, ok := raw.(string)
		if !ok {
			return nil, rawTypeError(f, raw)
		}
		return uuid.Parse(s)
	default:
		return nil, nil
	}
}

func rawTypeError(f *Field, raw any) error {
	return fmt.Errorf("got %T, want %s", raw, f.Kind)
}

// rawKey returns the canonical form of a key read from a file.
func rawKey(raw any) string {
	switch v := raw.(type) {
	case json.Number:
		return v.String()
	default:
		return CanonicalKey(v)
	}
}

// Encodes entities as JSON objects and appends them to JSON array files.

package jsondb

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/buger/jsonparser"
	"github.com/google/uuid"
)

// notImplemented is written in place of values the codec can't render.
const notImplemented = `"Not implemented"`

// Record is one decoded array element: field name to raw value.
//
// Values are string, json.Number, bool, nil, or json.RawMessage for nested
// objects and arrays. Converting them into typed fields is the loader's job.
type Record map[string]any

// Encode renders e as a JSON object literal.
//
// Fields are written in descriptor order. Collections are skipped and
// references are written as the primary key of the referenced entity.
func Encode(e Entity) ([]byte, error) {
	if isNilEntity(e) {
		return nil, errors.New("cannot encode nil entity")
	}
	t := e.EntityType()
	if t == nil {
		return nil, fmt.Errorf("%T has no entity type: %w", e, ErrMissingPrimaryKeyField)
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for i := range t.Fields {
		f := &t.Fields[i]
		if f.Multiple {
			continue
		}
		if !first {
			buf.WriteString(", ")
		}
		first = false
		writeQuoted(&buf, f.Name)
		buf.WriteString(": ")
		if err := encodeValue(&buf, f, f.Get(e)); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.Name, f.Name, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// EncodeArray renders entities as the content of a table file, byte for byte
// what appending them one at a time produces.
func EncodeArray[T Entity](entities []T) ([]byte, error) {
	var buf bytes.Buffer
	for i, e := range entities {
		if i == 0 {
			buf.WriteByte('[')
		} else {
			buf.WriteByte(',')
		}
		b, err := Encode(e)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	if buf.Len() != 0 {
		buf.WriteByte(']')
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, f *Field, v any) error {
	if f.IsForeignKey() {
		return encodeReference(buf, v)
	}
	switch f.Kind {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return fieldValueError(f, v)
		}
		writeQuoted(buf, s)
	case KindInt:
		n, ok := v.(int64)
		if !ok {
			return fieldValueError(f, v)
		}
		buf.WriteString(strconv.FormatInt(n, 10))
	case KindFloat:
		n, ok := v.(float64)
		if !ok {
			return fieldValueError(f, v)
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			buf.WriteString(notImplemented)
			return nil
		}
		buf.WriteString(strconv.FormatFloat(n, 'g', -1, 64))
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return fieldValueError(f, v)
		}
		buf.WriteString(strconv.FormatBool(b))
	case KindBytes:
		b, ok := v.([]byte)
		if !ok && v != nil {
			return fieldValueError(f, v)
		}
		buf.WriteByte('"')
		buf.WriteString(base64.StdEncoding.EncodeToString(b))
		buf.WriteByte('"')
	case KindTime:
		ts, ok := v.(time.Time)
		if !ok {
			return fieldValueError(f, v)
		}
		writeQuoted(buf, ts.Format(time.RFC3339Nano))
	case KindUUID:
		u, ok := v.(uuid.UUID)
		if !ok {
			return fieldValueError(f, v)
		}
		writeQuoted(buf, u.String())
	default:
		buf.WriteString(notImplemented)
	}
	return nil
}

// encodeReference writes the primary key of the referenced entity.
func encodeReference(buf *bytes.Buffer, v any) error {
	if v == nil {
		buf.WriteString("null")
		return nil
	}
	r, ok := v.(Entity)
	if !ok {
		return fmt.Errorf("reference holds %T", v)
	}
	t := r.EntityType()
	if t == nil {
		return fmt.Errorf("%T has no entity type: %w", r, ErrMissingPrimaryKeyField)
	}
	pk, err := t.PrimaryKey()
	if err != nil {
		return err
	}
	return encodeValue(buf, pk, pk.Get(r))
}

func fieldValueError(f *Field, v any) error {
	return fmt.Errorf("%s field holds %T", f.Kind, v)
}

func writeQuoted(buf *bytes.Buffer, s string) {
	// Marshaling a string can't fail; invalid UTF-8 is coerced.
	b, _ := json.Marshal(s)
	buf.Write(b)
}

// appendRecord appends one encoded object to the array stored in f without
// reading or rewriting prior content. It returns the new file size.
//
// A non-empty file must end with ']'; Table.open ensures it with
// appendableSize.
func appendRecord(f *os.File, enc []byte) (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", f.Name(), err)
	}
	buf := make([]byte, 0, len(enc)+2)
	var off int64
	if size := fi.Size(); size == 0 {
		buf = append(buf, '[')
	} else {
		off = size - 1
		buf = append(buf, ',')
	}
	buf = append(buf, enc...)
	buf = append(buf, ']')
	if _, err := f.WriteAt(buf, off); err != nil {
		return 0, fmt.Errorf("failed to append to %s: %w", f.Name(), err)
	}
	return off + int64(len(buf)), nil
}

// appendableSize returns the length a table file holding data must be cut to
// so that appendRecord keeps it a valid array. A file without records is
// emptied and trailing whitespace after ']' is dropped.
func appendableSize(data []byte, records int) int64 {
	if records == 0 {
		return 0
	}
	return int64(len(bytes.TrimRight(data, " \t\r\n")))
}

// Decode parses the content of a table file. Empty content yields no records.
// Anything but a JSON array of objects is a *DecodeError.
func Decode(data []byte) ([]Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, &DecodeError{Err: errors.New("not valid JSON")}
	}
	if data[0] != '[' {
		return nil, &DecodeError{Err: errors.New("not a JSON array")}
	}
	var records []Record
	var elemErr error
	_, err := jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, offset int, err error) {
		if elemErr != nil {
			return
		}
		if err != nil {
			elemErr = err
			return
		}
		if dataType != jsonparser.Object {
			elemErr = fmt.Errorf("element %d at offset %d is %s, not an object", len(records), offset, dataType)
			return
		}
		rec, err := decodeObject(value)
		if err != nil {
			elemErr = fmt.Errorf("element %d: %w", len(records), err)
			return
		}
		records = append(records, rec)
	})
	if err == nil {
		err = elemErr
	}
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return records, nil
}

// DecodeFile reads and decodes a table file. A missing file yields no
// records.
func DecodeFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: table paths are built from the database directory
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read table file %s: %w", path, err)
	}
	records, err := Decode(data)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			de.Path = path
		}
		return nil, err
	}
	return records, nil
}

func decodeObject(data []byte) (Record, error) {
	rec := make(Record)
	err := jsonparser.ObjectEach(data, func(key, value []byte, dataType jsonparser.ValueType, _ int) error {
		name, err := jsonparser.ParseString(key)
		if err != nil {
			return fmt.Errorf("invalid key %q: %w", key, err)
		}
		switch dataType {
		case jsonparser.String:
			s, err := jsonparser.ParseString(value)
			if err != nil {
				return fmt.Errorf("field %s: %w", name, err)
			}
			rec[name] = s
		case jsonparser.Number:
			rec[name] = json.Number(value)
		case jsonparser.Boolean:
			b, err := jsonparser.ParseBoolean(value)
			if err != nil {
				return fmt.Errorf("field %s: %w", name, err)
			}
			rec[name] = b
		case jsonparser.Null:
			rec[name] = nil
		case jsonparser.Object, jsonparser.Array:
			rec[name] = json.RawMessage(bytes.Clone(value))
		default:
			return fmt.Errorf("field %s: unexpected %s", name, dataType)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

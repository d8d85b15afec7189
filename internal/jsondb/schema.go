// Describes table files as JSON Schema documents.

package jsondb

import (
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// JSONSchema describes one encoded entity of the type.
//
// Collections are omitted since they are never persisted. References are
// described by the type they point to; the key kind of that type is not known
// without a registry.
func (t *EntityType) JSONSchema() *jsonschema.Schema {
	props := orderedmap.New[string, *jsonschema.Schema]()
	var required []string
	for i := range t.Fields {
		f := &t.Fields[i]
		if f.Multiple {
			continue
		}
		props.Set(f.Name, fieldSchema(f))
		if f.IsPrimaryKey() {
			required = append(required, f.Name)
		}
	}
	return &jsonschema.Schema{
		Title:                t.Name,
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: jsonschema.FalseSchema,
	}
}

// TableSchema describes a whole table file: an array of entities.
func (t *EntityType) TableSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Version:     jsonschema.Version,
		ID:          jsonschema.ID(t.Name + ".json"),
		Title:       t.Name,
		Description: "Table file of " + t.Name + " entities in insertion order.",
		Type:        "array",
		Items:       t.JSONSchema(),
	}
}

func fieldSchema(f *Field) *jsonschema.Schema {
	if f.IsForeignKey() {
		return &jsonschema.Schema{
			Description: "Primary key of the referenced " + f.Target,
			OneOf: []*jsonschema.Schema{
				{Type: "integer"},
				{Type: "string", Format: "uuid"},
				{Type: "null"},
			},
		}
	}
	switch f.Kind {
	case KindString:
		return &jsonschema.Schema{Type: "string"}
	case KindInt:
		return &jsonschema.Schema{Type: "integer"}
	case KindFloat:
		// NaN and infinities are written as the placeholder.
		return &jsonschema.Schema{
			OneOf: []*jsonschema.Schema{
				{Type: "number"},
				placeholderSchema(),
			},
		}
	case KindBool:
		return &jsonschema.Schema{Type: "boolean"}
	case KindBytes:
		return &jsonschema.Schema{Type: "string", ContentEncoding: "base64"}
	case KindTime:
		return &jsonschema.Schema{Type: "string", Format: "date-time"}
	case KindUUID:
		return &jsonschema.Schema{Type: "string", Format: "uuid"}
	default:
		return placeholderSchema()
	}
}

func placeholderSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Const: "Not implemented"}
}

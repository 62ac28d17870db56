// Package schema implements the Schema Registry: one declarative schema per
// collection, producing a validator closure per spec.md 4.1. Schemas are
// strict — an unknown field fails validation — and support a custom
// "objectid" format for opaque identifier fields.
package schema

import (
	"fmt"
	"time"

	"github.com/MeridianExplorer/noobaa-core/pkg/catalog"
)

// FieldType names the primitive shape a field's value must take.
type FieldType string

const (
	TypeString    FieldType = "string"
	TypeObjectID  FieldType = "objectid"
	TypeTimestamp FieldType = "timestamp"
	TypeInt       FieldType = "int"
	TypeBool      FieldType = "bool"
	TypeEnum      FieldType = "enum"
	TypeArray     FieldType = "array"
	TypeObject    FieldType = "object"
)

// Field declares one field of a collection's document shape.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
	Nullable bool
	Enum     []string // populated values for TypeEnum
	Items    *Field   // element schema for TypeArray
}

// Schema is the declarative shape of one collection's documents.
type Schema struct {
	Collection string
	Fields     []Field
}

// validator is the closure produced for one schema, per spec.md 4.1's
// "validate(collection, item) -> ok | errors" operation.
type validator func(item catalog.Document) []error

// Registry holds one compiled validator per collection.
type Registry struct {
	validators map[string]validator
	schemas    map[string]Schema
}

// NewRegistry compiles a validator for each schema and returns a Registry.
func NewRegistry(schemas ...Schema) *Registry {
	r := &Registry{
		validators: make(map[string]validator, len(schemas)),
		schemas:    make(map[string]Schema, len(schemas)),
	}
	for _, s := range schemas {
		s := s
		r.validators[s.Collection] = compile(s)
		r.schemas[s.Collection] = s
	}
	return r
}

// Validate runs collection's validator over item. ok is false whenever errs
// is non-empty. An unregistered collection is itself a validation failure
// rather than a panic, since callers (Catalog Manager) drive this from
// store data they don't otherwise trust.
func (r *Registry) Validate(collection string, item catalog.Document) (ok bool, errs []error) {
	v, found := r.validators[collection]
	if !found {
		return false, []error{&catalog.ValidationError{Collection: collection, Reason: "no schema registered for collection"}}
	}
	errs = v(item)
	return len(errs) == 0, errs
}

// Schema returns the declared schema for collection, if registered.
func (r *Registry) Schema(collection string) (Schema, bool) {
	s, ok := r.schemas[collection]
	return s, ok
}

func compile(s Schema) validator {
	byName := make(map[string]Field, len(s.Fields))
	for _, f := range s.Fields {
		byName[f.Name] = f
	}

	return func(item catalog.Document) []error {
		var errs []error

		for name, v := range item {
			if name == "_id" || name == "deleted" {
				continue
			}
			f, known := byName[name]
			if !known {
				errs = append(errs, &catalog.ValidationError{
					Collection: s.Collection,
					Field:      name,
					Reason:     "unknown field",
				})
				continue
			}
			if err := checkField(s.Collection, f, v); err != nil {
				errs = append(errs, err)
			}
		}

		for _, f := range s.Fields {
			if !f.Required {
				continue
			}
			if _, present := item[f.Name]; !present {
				errs = append(errs, &catalog.ValidationError{
					Collection: s.Collection,
					Field:      f.Name,
					Reason:     "required field missing",
				})
			}
		}

		return errs
	}
}

func checkField(collection string, f Field, v interface{}) error {
	if v == nil {
		if f.Nullable {
			return nil
		}
		return &catalog.ValidationError{Collection: collection, Field: f.Name, Reason: "field is not nullable"}
	}

	switch f.Type {
	case TypeString:
		if _, ok := v.(string); !ok {
			return typeErr(collection, f, v)
		}
	case TypeObjectID:
		s, ok := v.(string)
		if !ok || !catalog.IsIdentifier(s) {
			return &catalog.ValidationError{Collection: collection, Field: f.Name, Reason: "not a valid objectid"}
		}
	case TypeTimestamp:
		switch v.(type) {
		case time.Time, string:
		default:
			return typeErr(collection, f, v)
		}
	case TypeInt:
		switch v.(type) {
		case int, int32, int64, float64:
		default:
			return typeErr(collection, f, v)
		}
	case TypeBool:
		if _, ok := v.(bool); !ok {
			return typeErr(collection, f, v)
		}
	case TypeEnum:
		s, ok := v.(string)
		if !ok || !contains(f.Enum, s) {
			return &catalog.ValidationError{Collection: collection, Field: f.Name, Reason: fmt.Sprintf("value %v not in enum %v", v, f.Enum)}
		}
	case TypeArray:
		arr, ok := toSlice(v)
		if !ok {
			return typeErr(collection, f, v)
		}
		if f.Items != nil {
			for i, elem := range arr {
				itemField := *f.Items
				itemField.Name = fmt.Sprintf("%s[%d]", f.Name, i)
				if err := checkField(collection, itemField, elem); err != nil {
					return err
				}
			}
		}
	case TypeObject:
		switch v.(type) {
		case catalog.Document, map[string]interface{}:
		default:
			return typeErr(collection, f, v)
		}
	}
	return nil
}

func typeErr(collection string, f Field, v interface{}) error {
	return &catalog.ValidationError{
		Collection: collection,
		Field:      f.Name,
		Reason:     fmt.Sprintf("expected %s, got %T", f.Type, v),
	}
}

func toSlice(v interface{}) ([]interface{}, bool) {
	switch s := v.(type) {
	case []interface{}:
		return s, true
	case []string:
		out := make([]interface{}, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	default:
		return nil, false
	}
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

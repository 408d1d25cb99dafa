package model

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IDField is the reserved identity field present in every stored document.
const IDField = "_id"

var collectionNameRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_\-]{0,63}$`)

// CheckCollectionName reports whether name is usable as a collection name.
func CheckCollectionName(name string) bool {
	return collectionNameRegex.MatchString(name)
}

// Document is an ordered set of named fields. Field order is preserved across
// storage round trips; writing an existing field keeps its position, new
// fields append at the end.
type Document bson.D

// Get returns the value of the named field.
func (d Document) Get(name string) (any, bool) {
	for _, f := range d {
		if f.Key == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Has reports whether the named field is present.
func (d Document) Has(name string) bool {
	_, ok := d.Get(name)
	return ok
}

// Set writes a field value, overwriting in place when the field exists and
// appending otherwise.
func (d *Document) Set(name string, value any) {
	for i, f := range *d {
		if f.Key == name {
			(*d)[i].Value = value
			return
		}
	}
	*d = append(*d, primitive.E{Key: name, Value: value})
}

// Delete removes the named field and reports whether it was present.
func (d *Document) Delete(name string) bool {
	for i, f := range *d {
		if f.Key == name {
			*d = append((*d)[:i], (*d)[i+1:]...)
			return true
		}
	}
	return false
}

// Keys returns the field names in document order.
func (d Document) Keys() []string {
	keys := make([]string, len(d))
	for i, f := range d {
		keys[i] = f.Key
	}
	return keys
}

// Len returns the number of fields.
func (d Document) Len() int { return len(d) }

// ID returns the identity field as a DocID. Both the native DocID
// representation and its 12-byte binary storage form are recognized.
func (d Document) ID() (DocID, bool) {
	v, ok := d.Get(IDField)
	if !ok {
		return DocID{}, false
	}
	switch id := v.(type) {
	case DocID:
		return id, true
	case primitive.Binary:
		if id.Subtype == 0x00 && len(id.Data) == DocIDRawLen {
			parsed, err := DocIDFromBytes(id.Data)
			if err == nil {
				return parsed, true
			}
		}
	}
	return DocID{}, false
}

// SetID writes the identity field, keeping it in first position.
func (d *Document) SetID(id DocID) {
	for i, f := range *d {
		if f.Key == IDField {
			(*d)[i].Value = id
			return
		}
	}
	*d = append(Document{{Key: IDField, Value: id}}, *d...)
}

// Equal reports whether two documents encode identically: same fields, same
// values, same order.
func (d Document) Equal(other Document) bool {
	if len(d) != len(other) {
		return false
	}
	a, err := bson.Marshal(bson.D(d))
	if err != nil {
		return false
	}
	b, err := bson.Marshal(bson.D(other))
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// Clone returns a deep copy. Nested documents, arrays, maps and binary values
// are copied; scalar values are shared.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for i, f := range d {
		out[i] = primitive.E{Key: f.Key, Value: cloneValue(f.Value)}
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Document:
		return val.Clone()
	case bson.D:
		return bson.D(Document(val).Clone())
	case bson.A:
		out := make(bson.A, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case primitive.Binary:
		data := make([]byte, len(val.Data))
		copy(data, val.Data)
		return primitive.Binary{Subtype: val.Subtype, Data: data}
	case []byte:
		out := make([]byte, len(val))
		copy(out, val)
		return out
	default:
		return v
	}
}

// Validate checks structural rules: field names must be non-empty and free of
// NUL bytes, and a present identity field must hold a document id.
func (d Document) Validate() error {
	for _, f := range d {
		if f.Key == "" {
			return errors.New("empty field name")
		}
		if strings.ContainsRune(f.Key, 0) {
			return fmt.Errorf("field name %q contains NUL", f.Key)
		}
	}
	if v, ok := d.Get(IDField); ok {
		if _, isID := d.ID(); !isID {
			return fmt.Errorf("%w: %T is not a document id", ErrInvalidDocumentID, v)
		}
	}
	return nil
}

// MarshalBSON encodes the document preserving field order.
func (d Document) MarshalBSON() ([]byte, error) {
	return bson.Marshal(bson.D(d))
}

// UnmarshalBSON decodes a BSON document preserving field order. Nested
// documents decode as bson.D, arrays as bson.A.
func (d *Document) UnmarshalBSON(data []byte) error {
	var raw bson.D
	if err := bson.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = Document(raw)
	return nil
}

// FromMap builds a document from a map, ordering fields by name for
// determinism. Nested maps and slices convert recursively.
func FromMap(m map[string]any) Document {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	d := make(Document, 0, len(m))
	for _, k := range keys {
		d = append(d, primitive.E{Key: k, Value: normalizeValue(m[k])})
	}
	return d
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return FromMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}

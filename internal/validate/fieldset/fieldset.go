// Package fieldset defines the central in-memory structure the validation
// and cross-reference engine operates on: a FieldSet maps field names to
// Fields, each carrying its datatype, crossref-datatype, ordered values, and
// the validation/comparison/additional results the engine accumulates in
// its two passes.
package fieldset

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/correlator-io/metavalidate/internal/validate/plugin"
)

// AdditionalValue is an authority-observed value absent from the input,
// paired with the authority that supplied it.
type AdditionalValue struct {
	Value  string `json:"value"`
	Source string `json:"source"`
}

// Field holds one named field's datatype, crossref-datatype, ordered unique
// values, and the per-value results the engine fills in.
//
// Validation is always non-nil once Phase A has run for this field, even if
// individual entries hold an empty slice (meaning "no applicable
// validator"). Comparison is nil until Phase C decides the field was
// eligible for cross-reference; a present-but-empty slice for a given value
// means "attempted, nothing matched" — the distinction is load-bearing and
// preserved through JSON via MarshalJSON/UnmarshalJSON below.
type Field struct {
	Datatype string   `json:"datatype"`
	Crossref string   `json:"crossref,omitempty"`
	Values   []string `json:"values"`

	Validation map[string][]plugin.ValidationResult  `json:"validation"`
	Comparison map[string][]plugin.ComparisonResult  `json:"comparison,omitempty"`
	Additional map[string][]AdditionalValue           `json:"additional,omitempty"`

	seen map[string]bool
}

// NewField returns an empty Field for the given datatype/crossref. Crossref
// may be empty, meaning "this field is never cross-referenced".
func NewField(datatype, crossref string) *Field {
	return &Field{
		Datatype:   datatype,
		Crossref:   crossref,
		Values:     []string{},
		Validation: map[string][]plugin.ValidationResult{},
		seen:       map[string]bool{},
	}
}

// Add appends value to the field's value list, deduplicating on insertion.
// A value already present is a no-op.
func (f *Field) Add(value string) {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}

	if f.seen[value] {
		return
	}

	f.seen[value] = true
	f.Values = append(f.Values, value)
}

// fieldJSON mirrors Field's public JSON shape; it exists so MarshalJSON can
// distinguish a nil Comparison/Additional map (field not eligible) from a
// non-nil-but-empty one without recursing back into Field.MarshalJSON.
type fieldJSON struct {
	Datatype   string                                `json:"datatype"`
	Crossref   string                                `json:"crossref,omitempty"`
	Values     []string                               `json:"values"`
	Validation map[string][]plugin.ValidationResult  `json:"validation"`
	Comparison map[string][]plugin.ComparisonResult  `json:"comparison,omitzero"`
	Additional map[string][]AdditionalValue           `json:"additional,omitzero"`
}

// MarshalJSON serializes a Field. A nil Comparison or Additional map is
// omitted entirely (omitzero on a nil map serializes as absent); a
// non-nil-but-empty map serializes as `{}`, preserving the "attempted but
// nothing cross-referenced" signal per field.
func (f Field) MarshalJSON() ([]byte, error) {
	return json.Marshal(fieldJSON{
		Datatype:   f.Datatype,
		Crossref:   f.Crossref,
		Values:     f.Values,
		Validation: f.Validation,
		Comparison: f.Comparison,
		Additional: f.Additional,
	})
}

// UnmarshalJSON restores a Field, including the nil-vs-empty-map
// distinction on Comparison and Additional.
func (f *Field) UnmarshalJSON(data []byte) error {
	var raw fieldJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	f.Datatype = raw.Datatype
	f.Crossref = raw.Crossref
	f.Values = raw.Values
	f.Validation = raw.Validation
	f.Comparison = raw.Comparison
	f.Additional = raw.Additional

	f.seen = make(map[string]bool, len(raw.Values))
	for _, v := range raw.Values {
		f.seen[v] = true
	}

	return nil
}

// FieldSet is a mapping from field name to Field, with field order preserved
// independently of Go's unordered map iteration.
type FieldSet struct {
	names  []string
	fields map[string]*Field
}

// New returns an empty FieldSet.
func New() *FieldSet {
	return &FieldSet{fields: map[string]*Field{}}
}

// Field declares a field in one call: datatype, crossref-datatype (empty
// string means "never cross-referenced"), and its initial values. Calling
// Field again for a name already present replaces the existing Field's
// datatype/crossref and appends any new values (insertion order and
// dedup rules still apply).
func (fs *FieldSet) Field(name, datatype, crossref string, values ...string) {
	existing, ok := fs.fields[name]
	if !ok {
		existing = NewField(datatype, crossref)
		fs.fields[name] = existing
		fs.names = append(fs.names, name)
	} else {
		existing.Datatype = datatype
		existing.Crossref = crossref
	}

	for _, v := range values {
		existing.Add(v)
	}
}

// Get returns the named field and whether it exists.
func (fs *FieldSet) Get(name string) (*Field, bool) {
	f, ok := fs.fields[name]
	return f, ok
}

// Names returns field names in insertion order. Callers must not mutate the
// returned slice.
func (fs *FieldSet) Names() []string {
	return fs.names
}

// Len reports the number of fields.
func (fs *FieldSet) Len() int {
	return len(fs.names)
}

// MarshalJSON serializes the FieldSet in insertion order: Go's
// encoding/json sorts map keys alphabetically, which would violate the
// "field order SHOULD follow insertion order" contract, so FieldSet
// marshals itself by hand via json.RawMessage segments instead of
// delegating to map[string]*Field.
func (fs *FieldSet) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}

	for i, name := range fs.names {
		if i > 0 {
			buf = append(buf, ',')
		}

		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}

		val, err := json.Marshal(fs.fields[name])
		if err != nil {
			return nil, err
		}

		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}

	buf = append(buf, '}')

	return buf, nil
}

// UnmarshalJSON restores a FieldSet. Field order is recovered from the
// token stream rather than from Go's map, since json.Decoder.Token exposes
// object keys in source order.
func (fs *FieldSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	if _, err := dec.Token(); err != nil { // consume opening '{'
		return err
	}

	fs.fields = map[string]*Field{}
	fs.names = nil

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}

		name, _ := keyTok.(string)

		var f Field
		if err := dec.Decode(&f); err != nil {
			return err
		}

		fs.fields[name] = &f
		fs.names = append(fs.names, name)
	}

	_, err := dec.Token() // consume closing '}'

	return err
}

// Generator parses an input document into one or more FieldSets. Declared
// here rather than in package plugin because it returns *FieldSet directly.
type Generator interface {
	// Supports reports whether this generator can parse modeltype.
	Supports(modeltype string, opts plugin.Options) bool

	// Generate parses stream and emits one FieldSet per logical record (a
	// document with sub-records, e.g. title-language/abstract-language
	// pairs, yields more than one).
	Generate(ctx context.Context, modeltype string, stream io.Reader, opts plugin.Options) ([]*FieldSet, error)
}

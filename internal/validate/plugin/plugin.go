// Package plugin defines the contracts shared by every validator, comparator,
// and generator plugin, along with the response types the engine assembles
// from them. Plugins never depend on the engine or on each other; they only
// depend on this package.
package plugin

import (
	"context"
	"time"
)

const (
	// DefaultLevenshteinRatioThreshold is the similarity ratio above which a
	// fuzzy text comparator (titles, abstracts) considers two strings equivalent.
	DefaultLevenshteinRatioThreshold = 0.90

	// DefaultHTTPTimeout bounds a single outbound authority call.
	DefaultHTTPTimeout = 3 * time.Second
)

// Options carries the engine-wide tunables a plugin may consult. It is a
// plain record, never a free-form map, so every knob is discoverable at
// compile time.
type Options struct {
	// LevenshteinRatioThreshold is the minimum ratio (exclusive) for a fuzzy
	// text comparator to report success. Zero means "use the default".
	LevenshteinRatioThreshold float64

	// HTTPTimeout bounds a single outbound authority call. Zero means "use
	// the default".
	HTTPTimeout time.Duration
}

// WithDefaults returns a copy of o with zero-valued fields replaced by the
// package defaults.
func (o Options) WithDefaults() Options {
	if o.LevenshteinRatioThreshold == 0 {
		o.LevenshteinRatioThreshold = DefaultLevenshteinRatioThreshold
	}

	if o.HTTPTimeout == 0 {
		o.HTTPTimeout = DefaultHTTPTimeout
	}

	return o
}

// DataWrapper is an opaque handle onto a third-party authority's record. Each
// authority adapter implements it over its own native schema; the engine
// never inspects that schema, only this projection.
type DataWrapper interface {
	// SourceName returns a stable authority identifier, e.g. "crossref",
	// "entrez", "handle".
	SourceName() string

	// Get returns the deduplicated, ordered sequence of the authority's
	// values for the given semantic datatype, or nil when unsupported or
	// absent. Callers must not mutate the returned slice.
	Get(datatype string) []string
}

// ValidationResult is the structured outcome of running one validator
// against one (datatype, value) pair. Provenance is assigned by the
// dispatcher, never by the plugin itself.
type ValidationResult struct {
	Provenance  string        `json:"provenance"`
	Info        []string      `json:"info"`
	Warn        []string      `json:"warn"`
	Error       []string      `json:"error"`
	Correction  []string      `json:"correction"`
	Alternative []string      `json:"alternative"`
	Data        DataWrapper   `json:"-"`
	DataSource  string        `json:"data_source,omitempty"`
}

// NewValidationResult returns a ValidationResult with empty-but-non-nil
// message slices, matching the JSON contract that every field always
// serializes as an array, never null.
func NewValidationResult() ValidationResult {
	return ValidationResult{
		Info:        []string{},
		Warn:        []string{},
		Error:       []string{},
		Correction:  []string{},
		Alternative: []string{},
	}
}

// WithInfo appends an info message and returns the receiver for chaining.
func (v ValidationResult) WithInfo(msg string) ValidationResult {
	v.Info = append(v.Info, msg)
	return v
}

// WithWarn appends a warn message and returns the receiver for chaining.
func (v ValidationResult) WithWarn(msg string) ValidationResult {
	v.Warn = append(v.Warn, msg)
	return v
}

// WithError appends an error message and returns the receiver for chaining.
func (v ValidationResult) WithError(msg string) ValidationResult {
	v.Error = append(v.Error, msg)
	return v
}

// WithCorrection appends a suggested replacement and returns the receiver.
func (v ValidationResult) WithCorrection(msg string) ValidationResult {
	v.Correction = append(v.Correction, msg)
	return v
}

// WithAlternative appends an equivalent form and returns the receiver.
func (v ValidationResult) WithAlternative(msg string) ValidationResult {
	v.Alternative = append(v.Alternative, msg)
	return v
}

// WithData attaches a DataWrapper, enabling downstream cross-reference.
func (v ValidationResult) WithData(data DataWrapper) ValidationResult {
	v.Data = data
	if data != nil {
		v.DataSource = data.SourceName()
	}

	return v
}

// Failed reports whether this result carries at least one error message.
func (v ValidationResult) Failed() bool {
	return len(v.Error) > 0
}

// ComparisonResult is the structured outcome of comparing one input value
// against one authority-supplied value under a crossref-datatype.
type ComparisonResult struct {
	Success      bool     `json:"success"`
	Comparator   string   `json:"comparator"`
	DataSource   string   `json:"data_source"`
	ComparedWith string   `json:"compared_with"`
	Correction   []string `json:"correction"`
}

// NewComparisonResult returns a ComparisonResult with a non-nil Correction
// slice, matching the stable-array JSON contract.
func NewComparisonResult() ComparisonResult {
	return ComparisonResult{Correction: []string{}}
}

// WithCorrection appends a suggested replacement and returns the receiver.
func (c ComparisonResult) WithCorrection(msg string) ComparisonResult {
	c.Correction = append(c.Correction, msg)
	return c
}

// Validator judges a single (datatype, value) pair. Implementations must
// never panic; a validator that contacts a remote authority must turn
// timeouts and 5xx responses into warnings, never errors, and must keep
// every outbound call bounded by Options.HTTPTimeout.
type Validator interface {
	// Supports reports whether this validator applies to datatype.
	Supports(datatype string, opts Options) bool

	// Validate judges value under datatype and returns a ValidationResult.
	// Provenance is left zero-valued; the dispatcher assigns it.
	Validate(ctx context.Context, datatype, value string, opts Options) ValidationResult
}

// Comparator judges equivalence of two values under a crossref-datatype.
// Implementations must never panic; a parse failure must yield
// success = false, not an error.
type Comparator interface {
	// Supports reports whether this comparator applies to the given
	// crossref-datatype.
	Supports(crossref string, opts Options) bool

	// Compare judges original against comparison under crossref. Comparator,
	// DataSource and ComparedWith are left zero-valued; the engine assigns
	// them.
	Compare(crossref, original, comparison string, opts Options) ComparisonResult
}

// The Generator interface is declared in package fieldset rather than here:
// it returns *fieldset.FieldSet values, and fieldset already imports plugin
// for ValidationResult/ComparisonResult, so declaring Generator in this
// package would close an import cycle.

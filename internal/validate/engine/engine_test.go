package engine

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/correlator-io/metavalidate/internal/validate/fieldset"
	"github.com/correlator-io/metavalidate/internal/validate/plugin"
	"github.com/correlator-io/metavalidate/internal/validate/registry"
)

// wrapperStub is a minimal plugin.DataWrapper fake projecting a fixed set of
// values for one crossref-datatype, modeled on doi.wrapper/orcid's shape.
type wrapperStub struct {
	source string
	values map[string][]string
}

func (w *wrapperStub) SourceName() string { return w.source }

func (w *wrapperStub) Get(datatype string) []string { return w.values[datatype] }

// confirmingValidator always succeeds and attaches a wrapper, modeling a
// CrossRef-shaped authority adapter without any network dependency.
type confirmingValidator struct {
	datatype string
	wrapper  plugin.DataWrapper
}

func (v confirmingValidator) Supports(datatype string, _ plugin.Options) bool {
	return datatype == v.datatype
}

func (v confirmingValidator) Validate(_ context.Context, _, _ string, _ plugin.Options) plugin.ValidationResult {
	return plugin.NewValidationResult().WithInfo("confirmed").WithData(v.wrapper)
}

// panickingValidator simulates a broken plugin to exercise invokeValidator's
// recover path.
type panickingValidator struct{ datatype string }

func (v panickingValidator) Supports(datatype string, _ plugin.Options) bool {
	return datatype == v.datatype
}

func (v panickingValidator) Validate(context.Context, string, string, plugin.Options) plugin.ValidationResult {
	panic("boom")
}

// exactComparator succeeds on byte-exact equality, standing in for the
// package's real identifier comparators (doi.SemanticEqual, issn.ISSNEqual).
type exactComparator struct{ crossref string }

func (c exactComparator) Supports(crossref string, _ plugin.Options) bool { return crossref == c.crossref }

func (c exactComparator) Compare(_, original, comparison string, _ plugin.Options) plugin.ComparisonResult {
	result := plugin.NewComparisonResult()
	result.Success = original == comparison

	return result
}

type stubGenerator struct{ modeltype string }

func (g stubGenerator) Supports(modeltype string, _ plugin.Options) bool { return modeltype == g.modeltype }

func (g stubGenerator) Generate(
	_ context.Context, _ string, _ io.Reader, _ plugin.Options,
) ([]*fieldset.FieldSet, error) {
	fs := fieldset.New()
	fs.Field("doi", "doi", "doi", "10.1000/xyz")

	return []*fieldset.FieldSet{fs}, nil
}

func TestEngine_ValidateField_RunsEveryMatchingValidatorInOrder(t *testing.T) {
	reg := registry.New()
	reg.RegisterValidator("a.A", panickingValidator{datatype: "other"})
	reg.RegisterValidator("b.B", confirmingValidator{datatype: "doi", wrapper: &wrapperStub{source: "crossref"}})

	e := New(reg)

	results := e.ValidateField(context.Background(), "doi", "10.1000/xyz")

	require.Len(t, results, 1)
	assert.Equal(t, "b.B", results[0].Provenance)
	assert.Equal(t, []string{"confirmed"}, results[0].Info)
}

func TestEngine_ValidateField_RecoversPanickingValidator(t *testing.T) {
	reg := registry.New()
	reg.RegisterValidator("doi.Broken", panickingValidator{datatype: "doi"})

	e := New(reg)

	results := e.ValidateField(context.Background(), "doi", "10.1000/xyz")

	require.Len(t, results, 1)
	assert.True(t, results[0].Failed())
	assert.Contains(t, results[0].Error[0], "doi.Broken")
}

func TestEngine_ValidateFieldSet_PhaseA_FillsEveryValue(t *testing.T) {
	reg := registry.New()
	reg.RegisterValidator("doi.Confirm", confirmingValidator{datatype: "doi", wrapper: &wrapperStub{source: "crossref"}})

	e := New(reg)

	fs := fieldset.New()
	fs.Field("doi", "doi", "", "10.1000/xyz", "10.1000/abc")

	e.ValidateFieldSet(context.Background(), fs)

	f, _ := fs.Get("doi")
	assert.Len(t, f.Validation["10.1000/xyz"], 1)
	assert.Len(t, f.Validation["10.1000/abc"], 1)
}

func TestEngine_ValidateFieldSet_SkipsCrossReferenceWhenNoWrapperHarvested(t *testing.T) {
	reg := registry.New()
	reg.RegisterComparator("doi.Exact", exactComparator{crossref: "doi"})

	e := New(reg)

	fs := fieldset.New()
	fs.Field("doi", "doi", "doi", "10.1000/xyz")

	e.ValidateFieldSet(context.Background(), fs)

	f, _ := fs.Get("doi")
	assert.Nil(t, f.Comparison, "phase C must not run when phase B harvests no wrappers")
}

func TestEngine_ValidateFieldSet_CrossReferencesMatchedAndUnmatchedValues(t *testing.T) {
	reg := registry.New()
	wrapper := &wrapperStub{source: "crossref", values: map[string][]string{
		"doi": {"10.1000/xyz", "10.1000/extra"},
	}}
	reg.RegisterValidator("doi.Confirm", confirmingValidator{datatype: "doi", wrapper: wrapper})
	reg.RegisterComparator("doi.Exact", exactComparator{crossref: "doi"})

	e := New(reg)

	fs := fieldset.New()
	fs.Field("doi", "doi", "doi", "10.1000/xyz", "10.1000/unmatched")

	e.ValidateFieldSet(context.Background(), fs)

	f, _ := fs.Get("doi")
	require.NotNil(t, f.Comparison)
	require.Len(t, f.Comparison["10.1000/xyz"], 1)
	assert.True(t, f.Comparison["10.1000/xyz"][0].Success)
	assert.Equal(t, "crossref", f.Comparison["10.1000/xyz"][0].DataSource)

	assert.Empty(t, f.Comparison["10.1000/unmatched"], "attempted but unmatched value still gets an explicit entry")

	require.Contains(t, f.Additional, "10.1000/extra")
	assert.Equal(t, "crossref", f.Additional["10.1000/extra"][0].Source)
}

func TestEngine_ValidateFieldSet_SkipsFieldsWithNoCrossref(t *testing.T) {
	reg := registry.New()
	wrapper := &wrapperStub{source: "crossref", values: map[string][]string{"doi": {"10.1000/xyz"}}}
	reg.RegisterValidator("doi.Confirm", confirmingValidator{datatype: "doi", wrapper: wrapper})
	reg.RegisterComparator("doi.Exact", exactComparator{crossref: "doi"})

	e := New(reg)

	fs := fieldset.New()
	fs.Field("note", "text", "", "just a note, never cross-referenced")

	e.ValidateFieldSet(context.Background(), fs)

	f, _ := fs.Get("note")
	assert.Nil(t, f.Comparison)
}

func TestEngine_ValidateFieldSet_WithWorkers_ProducesSameResultsAsSequential(t *testing.T) {
	reg := registry.New()
	reg.RegisterValidator("doi.Confirm", confirmingValidator{datatype: "doi", wrapper: &wrapperStub{source: "crossref"}})

	fs := fieldset.New()
	fs.Field("doi", "doi", "", "10.1000/a", "10.1000/b", "10.1000/c", "10.1000/d")

	sequential := New(reg)
	sequential.ValidateFieldSet(context.Background(), fs)

	fsConcurrent := fieldset.New()
	fsConcurrent.Field("doi", "doi", "", "10.1000/a", "10.1000/b", "10.1000/c", "10.1000/d")

	concurrent := New(reg, WithWorkers(4))
	concurrent.ValidateFieldSet(context.Background(), fsConcurrent)

	fSeq, _ := fs.Get("doi")
	fConc, _ := fsConcurrent.Get("doi")

	for _, v := range fSeq.Values {
		assert.Equal(t, fSeq.Validation[v], fConc.Validation[v], "value %s diverged under concurrent dispatch", v)
	}
}

func TestEngine_Generate_DispatchesToMatchingGenerator(t *testing.T) {
	reg := registry.New()
	reg.RegisterGenerator("ingestion.JSONGenerator", stubGenerator{modeltype: "bibjson"})

	e := New(reg)

	sets, err := e.Generate(context.Background(), "bibjson", nil)
	require.NoError(t, err)
	require.Len(t, sets, 1)

	f, ok := sets[0].Get("doi")
	require.True(t, ok)
	assert.Equal(t, []string{"10.1000/xyz"}, f.Values)
}

func TestEngine_Generate_UnknownModeltypeReturnsSentinelError(t *testing.T) {
	reg := registry.New()

	e := New(reg)

	_, err := e.Generate(context.Background(), "unknown", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownModeltype))
}

func TestWithOptions_AppliesDefaultsAtConstruction(t *testing.T) {
	e := New(registry.New(), WithOptions(plugin.Options{}))

	assert.Equal(t, plugin.DefaultLevenshteinRatioThreshold, e.opts.LevenshteinRatioThreshold)
	assert.Equal(t, plugin.DefaultHTTPTimeout, e.opts.HTTPTimeout)
}
